package vault

import (
	"bytes"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLeaf derives the Merkle leaf for a wallet address.
func AddressLeaf(addr [20]byte) [32]byte {
	var leaf [32]byte
	copy(leaf[:], ethcrypto.Keccak256(addr[:]))
	return leaf
}

// VerifyProof folds a Merkle inclusion proof into the stored root using
// sorted-pair keccak256 hashing. Proof file generation and distribution live
// outside the vault; only membership verification is consumed here.
func VerifyProof(proof [][32]byte, root, leaf [32]byte) bool {
	computed := leaf
	for _, node := range proof {
		computed = hashPair(computed, node)
	}
	return computed == root
}

func hashPair(a, b [32]byte) [32]byte {
	var out [32]byte
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	} else {
		copy(out[:], ethcrypto.Keccak256(b[:], a[:]))
	}
	return out
}
