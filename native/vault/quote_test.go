package vault

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"
)

func TestQuoteMatchesExecution(t *testing.T) {
	f := newFixture(t, false)
	f.fund(500, 10_000)
	f.startRound(1)

	amount := new(big.Int).Mul(big.NewInt(400), unit18)
	quote, err := f.engine.Quote(f.user, f.depegAddr, amount, f.stableAddr, f.proof)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !quote.Whitelisted || !quote.RoundActive {
		t.Fatalf("quote flags = %+v", quote)
	}
	receipt, err := f.engine.Redeem(f.user, f.depegAddr, amount, f.stableAddr, f.proof)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if quote.GrossUsd.Cmp(receipt.GrossUsd) != 0 {
		t.Fatalf("gross: quote %s, receipt %s", quote.GrossUsd, receipt.GrossUsd)
	}
	if quote.NetUsd.Cmp(receipt.NetUsd) != 0 {
		t.Fatalf("net usd: quote %s, receipt %s", quote.NetUsd, receipt.NetUsd)
	}
	if quote.FeeAmount.Cmp(receipt.FeeAmount) != 0 {
		t.Fatalf("fee: quote %s, receipt %s", quote.FeeAmount, receipt.FeeAmount)
	}
	if quote.NetAmount.Cmp(receipt.NetAmount) != 0 {
		t.Fatalf("net: quote %s, receipt %s", quote.NetAmount, receipt.NetAmount)
	}
	if quote.OutputAmount.Cmp(receipt.OutputAmount) != 0 {
		t.Fatalf("output: quote %s, receipt %s", quote.OutputAmount, receipt.OutputAmount)
	}
	if quote.LockedFeeRateBps != 100 {
		t.Fatalf("locked rate = %d, want 100", quote.LockedFeeRateBps)
	}
	if quote.InputDecimals != 18 || quote.OutputDecimals != 6 {
		t.Fatalf("decimals = %d/%d, want 18/6", quote.InputDecimals, quote.OutputDecimals)
	}
	if quote.CapacityBefore.Cmp(usd(100)) != 0 || quote.CapacityAfter.Cmp(usd(60)) != 0 {
		t.Fatalf("capacity = %s/%s", quote.CapacityBefore, quote.CapacityAfter)
	}
}

func TestQuoteIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	f.fund(500, 10_000)
	f.startRound(1)

	before := f.store.snapshot()
	amount := new(big.Int).Mul(big.NewInt(400), unit18)
	for i := 0; i < 3; i++ {
		if _, err := f.engine.Quote(f.user, f.depegAddr, amount, f.stableAddr, f.proof); err != nil {
			t.Fatalf("quote %d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(before, f.store.snapshot()) {
		t.Fatal("quote mutated storage")
	}
}

func TestQuoteReportsFlagsWithoutErroring(t *testing.T) {
	f := newFixture(t, false)
	f.fund(500, 10_000)
	if err := f.engine.SetRoundDelay(f.admin, true, time.Hour); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	f.startRound(1)

	amount := new(big.Int).Mul(big.NewInt(100), unit18)
	quote, err := f.engine.Quote(f.user, f.depegAddr, amount, f.stableAddr, f.proof)
	if err != nil {
		t.Fatalf("quote during pending round: %v", err)
	}
	if quote.RoundActive {
		t.Fatal("round should report inactive before its start time")
	}

	quote, err = f.engine.Quote(f.other, f.depegAddr, amount, f.stableAddr, f.proof)
	if err != nil {
		t.Fatalf("quote with bad proof: %v", err)
	}
	if quote.Whitelisted {
		t.Fatal("non-member should report unwhitelisted")
	}
}

func TestQuoteReflectsHardLock(t *testing.T) {
	f := newFixture(t, false)
	f.fund(500, 10_000)
	f.startRound(1)

	if _, err := f.redeemDepeg(1000); err != nil {
		t.Fatalf("saturating redeem: %v", err)
	}
	amount := new(big.Int).Mul(big.NewInt(10), unit18)
	quote, err := f.engine.Quote(f.user, f.depegAddr, amount, f.stableAddr, f.proof)
	if err != nil {
		t.Fatalf("quote while locked: %v", err)
	}
	if !quote.Locked || quote.LockUntil == 0 {
		t.Fatalf("quote lock = %t/%d, want locked with deadline", quote.Locked, quote.LockUntil)
	}
	if quote.CapacityBefore.Sign() != 0 {
		t.Fatalf("capacity before = %s, want 0", quote.CapacityBefore)
	}

	// Past the lock deadline the quote mirrors the lazy reset a redeem would
	// apply.
	f.now = f.now.Add(limitWindow).Add(time.Second)
	quote, err = f.engine.Quote(f.user, f.depegAddr, amount, f.stableAddr, f.proof)
	if err != nil {
		t.Fatalf("quote after expiry: %v", err)
	}
	if quote.Locked {
		t.Fatal("expired lock should not be reported")
	}
	if quote.CapacityBefore.Cmp(usd(100)) != 0 {
		t.Fatalf("capacity before = %s, want %s", quote.CapacityBefore, usd(100))
	}
}

func TestQuoteSharesErrorPathsWithRedeem(t *testing.T) {
	f := newFixture(t, false)
	f.fund(500, 10_000)

	amount := new(big.Int).Mul(big.NewInt(10), unit18)
	if _, err := f.engine.Quote(f.user, f.depegAddr, amount, f.stableAddr, f.proof); !errors.Is(err, ErrRoundNotInitialized) {
		t.Fatalf("quote without round: %v, want ErrRoundNotInitialized", err)
	}
	f.startRound(1)
	if _, err := f.engine.Quote(f.user, testAddr(0x7f), amount, f.stableAddr, f.proof); !errors.Is(err, ErrTokenNotSupported) {
		t.Fatalf("quote unknown input: %v, want ErrTokenNotSupported", err)
	}
	if _, err := f.engine.Quote(f.user, f.depegAddr, amount, f.depegAddr, f.proof); !errors.Is(err, ErrInvalidRedeemToken) {
		t.Fatalf("quote bad output: %v, want ErrInvalidRedeemToken", err)
	}
	big20 := new(big.Int).Mul(big.NewInt(2000), unit18)
	if _, err := f.engine.Quote(f.user, f.depegAddr, big20, f.stableAddr, f.proof); !errors.Is(err, ErrExceedsDailyLimit) {
		t.Fatalf("quote above cap: %v, want ErrExceedsDailyLimit", err)
	}
}
