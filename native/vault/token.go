package vault

import (
	"fmt"
	"math/big"
)

// Token is the fungible-token capability consumed for both input tokens and
// the two payout assets. Transfer moves funds out of the vault's own balance;
// TransferFrom pulls funds the owner has made available to the vault. A
// capability wrapping the native coin performs wrapping inside TransferFrom.
type Token interface {
	BalanceOf(owner [20]byte) (*big.Int, error)
	Transfer(to [20]byte, amount *big.Int) error
	TransferFrom(from, to [20]byte, amount *big.Int) error
}

// Burnable is the optional burn entry point. Absence of burn support is a
// handled case, not an error.
type Burnable interface {
	Burn(amount *big.Int) error
}

// TokenSource resolves the token capability for an address.
type TokenSource func(addr [20]byte) (Token, bool)

// BurnMode tags how the net portion of a redemption was destroyed.
type BurnMode string

const (
	// BurnModeBurned records a successful call to the token's burn entry point.
	BurnModeBurned BurnMode = "burned"
	// BurnModeSunk records the fallback transfer to the irrecoverable sink.
	BurnModeSunk BurnMode = "sunk"
)

// BurnOutcome reports the burn-or-sink result for observability. The fallback
// is never a silent substitution: Reason carries why the burn did not happen.
type BurnOutcome struct {
	Mode   BurnMode
	Reason string
}

// burnOrSink destroys the net portion of a redemption. It attempts the
// duck-typed burn entry point and falls back to the sink transfer on any
// failure, including a panicking implementation. Only a failing sink transfer
// aborts the redemption.
func burnOrSink(token Token, sink [20]byte, amount *big.Int) (BurnOutcome, error) {
	if amount == nil || amount.Sign() == 0 {
		return BurnOutcome{Mode: BurnModeBurned}, nil
	}
	reason := "burn not supported"
	if burnable, ok := token.(Burnable); ok {
		if err := attemptBurn(burnable, amount); err == nil {
			return BurnOutcome{Mode: BurnModeBurned}, nil
		} else {
			reason = err.Error()
		}
	}
	if err := token.Transfer(sink, amount); err != nil {
		return BurnOutcome{}, fmt.Errorf("vault: sink transfer failed: %w", err)
	}
	return BurnOutcome{Mode: BurnModeSunk, Reason: reason}, nil
}

func attemptBurn(burnable Burnable, amount *big.Int) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("burn panicked: %v", recovered)
		}
	}()
	return burnable.Burn(amount)
}
