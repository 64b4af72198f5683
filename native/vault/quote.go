package vault

import (
	"fmt"
	"math/big"
)

// QuoteResult mirrors every figure a redemption with the same inputs would
// settle with. Whitelist membership, round activity, and the hard lock are
// reported as fields rather than errors so callers can render previews.
type QuoteResult struct {
	Whitelisted      bool
	RoundActive      bool
	RoundID          uint64
	LockedFeeRateBps uint32
	OracleRate       *big.Int
	OracleDecimals   uint8
	InputDecimals    uint8
	OutputDecimals   uint8
	GrossUsd         *big.Int
	NetUsd           *big.Int
	FeeAmount        *big.Int
	NetAmount        *big.Int
	OutputAmount     *big.Int
	CapacityBefore   *big.Int
	CapacityAfter    *big.Int
	Locked           bool
	LockUntil        int64
}

// Quote evaluates a redemption without mutating any state. Calling it any
// number of times leaves usage, locks, and rounds untouched, and a redemption
// with identical inputs settles with exactly the figures returned here.
func (e *Engine) Quote(caller, inputToken [20]byte, amount *big.Int, outputToken [20]byte, proof [][32]byte) (*QuoteResult, error) {
	if e == nil {
		return nil, fmt.Errorf("vault engine not initialised")
	}
	now := e.now()
	eval, err := e.evaluate(caller, inputToken, amount, outputToken, proof, now, false)
	if err != nil {
		return nil, err
	}
	inputDecimals, err := e.valuator.TokenDecimals(inputToken)
	if err != nil {
		return nil, err
	}
	outputDecimals, err := e.valuator.TokenDecimals(outputToken)
	if err != nil {
		return nil, err
	}
	result := &QuoteResult{
		Whitelisted:      eval.whitelisted,
		RoundActive:      eval.roundActive,
		RoundID:          eval.round.ID,
		LockedFeeRateBps: eval.round.LockedFeeRateBps,
		InputDecimals:    inputDecimals,
		OutputDecimals:   outputDecimals,
		GrossUsd:         eval.grossUsd,
		NetUsd:           eval.netUsd,
		FeeAmount:        eval.feeAmount,
		NetAmount:        eval.netAmount,
		OutputAmount:     eval.outputAmount,
		CapacityBefore:   eval.capacityBefore,
		CapacityAfter:    eval.capacityAfter,
		Locked:           eval.locked,
		LockUntil:        eval.lockUntil,
	}
	if eval.oracleUsed {
		result.OracleRate = cloneAmount(eval.snapshot.Raw)
		result.OracleDecimals = eval.snapshot.Decimals
	}
	return result, nil
}
