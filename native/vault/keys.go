package vault

import "encoding/hex"

var (
	roundCurrentKey    = []byte("vault/round/current")
	roundRecordPrefix  = []byte("vault/round/")
	limitUsagePrefix   = []byte("vault/limits/usage/")
	limitClockPrefix   = []byte("vault/limits/clock/")
	registryIndexKey   = []byte("vault/registry/index")
	registryItemPrefix = []byte("vault/registry/token/")
	receiptPrefix      = []byte("vault/redeem/receipt/")
	receiptIndexKey    = []byte("vault/redeem/index")
	receiptSeqKey      = []byte("vault/redeem/seq")
)

func appendAddr(prefix []byte, addr [20]byte) []byte {
	suffix := hex.EncodeToString(addr[:])
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}

func appendString(prefix []byte, suffix string) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}
