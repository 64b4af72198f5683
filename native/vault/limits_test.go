package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestLimitCheckAdmission(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	capUsd := usd(100)

	before, after, err := ledger.Check(usd(0), usd(100), capUsd)
	if err != nil {
		t.Fatalf("full-cap request should pass: %v", err)
	}
	if before.Cmp(usd(100)) != 0 || after.Sign() != 0 {
		t.Fatalf("capacity = %s/%s, want 100/0", before, after)
	}
	if _, _, err := ledger.Check(usd(0), usd(101), capUsd); !errors.Is(err, ErrExceedsDailyLimit) {
		t.Fatalf("above cap: %v, want ErrExceedsDailyLimit", err)
	}
	before, after, err = ledger.Check(usd(40), usd(60), capUsd)
	if err != nil {
		t.Fatalf("saturating request should pass: %v", err)
	}
	if before.Cmp(usd(60)) != 0 || after.Sign() != 0 {
		t.Fatalf("capacity = %s/%s, want 60/0", before, after)
	}
	if _, _, err := ledger.Check(usd(40), usd(61), capUsd); !errors.Is(err, ErrExceedsDailyLimit) {
		t.Fatalf("partial fill must not be admitted: %v", err)
	}
	// No cap means no limit and no capacity figures.
	before, after, err = ledger.Check(usd(0), usd(1_000_000), nil)
	if err != nil || before != nil || after != nil {
		t.Fatalf("uncapped: %s/%s err=%v", before, after, err)
	}
}

func TestLimitRecordLocksOnExactSaturation(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)
	capUsd := usd(100)

	locked, _, err := ledger.Record(1, wallet, usd(40), capUsd, now)
	if err != nil || locked {
		t.Fatalf("partial record: locked=%t err=%v", locked, err)
	}
	locked, lockUntil, err := ledger.Record(1, wallet, usd(60), capUsd, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("saturating record: %v", err)
	}
	if !locked {
		t.Fatal("exact saturation must lock")
	}
	// The lock runs from the window anchor set by the first spend, not from
	// the saturating spend.
	wantUntil := now.Add(limitWindow).Unix()
	if lockUntil != wantUntil {
		t.Fatalf("lock until = %d, want %d", lockUntil, wantUntil)
	}

	isLocked, until, err := ledger.HardLocked(wallet, now.Add(2*time.Hour))
	if err != nil || !isLocked || until != wantUntil {
		t.Fatalf("hard locked = %t/%d err=%v", isLocked, until, err)
	}
	if _, _, err := ledger.Check(usd(100), usd(1), capUsd); !errors.Is(err, ErrExceedsDailyLimit) {
		t.Fatalf("saturated admission: %v, want ErrExceedsDailyLimit", err)
	}
}

func TestLimitRecordDoesNotLockBelowCap(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)

	locked, _, err := ledger.Record(1, wallet, usd(99), usd(100), now)
	if err != nil || locked {
		t.Fatalf("sub-cap record: locked=%t err=%v", locked, err)
	}
	isLocked, _, err := ledger.HardLocked(wallet, now)
	if err != nil || isLocked {
		t.Fatalf("should not be locked: %t err=%v", isLocked, err)
	}
}

func TestLimitLockExpiryResetsUsage(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)
	capUsd := usd(100)

	if _, _, err := ledger.Record(1, wallet, usd(100), capUsd, now); err != nil {
		t.Fatalf("record: %v", err)
	}

	later := now.Add(limitWindow).Add(time.Second)
	isLocked, _, err := ledger.HardLocked(wallet, later)
	if err != nil || isLocked {
		t.Fatalf("lock should have expired: %t err=%v", isLocked, err)
	}
	if err := ledger.Resolve(1, wallet, later); err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	used, err := ledger.Used(1, wallet)
	if err != nil {
		t.Fatalf("used: %v", err)
	}
	if used.Sign() != 0 {
		t.Fatalf("used = %s, want 0 after reset", used)
	}
}

func TestLimitWindowRollsOver(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)

	if _, _, err := ledger.Record(1, wallet, usd(70), usd(100), now); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Inside the window the usage persists.
	mid := now.Add(12 * time.Hour)
	if err := ledger.Resolve(1, wallet, mid); err != nil {
		t.Fatalf("resolve mid-window: %v", err)
	}
	used, _ := ledger.Used(1, wallet)
	if used.Cmp(usd(70)) != 0 {
		t.Fatalf("used = %s, want %s", used, usd(70))
	}

	// A full window after the anchor the usage resets.
	later := now.Add(limitWindow)
	if err := ledger.Resolve(1, wallet, later); err != nil {
		t.Fatalf("resolve after window: %v", err)
	}
	used, _ = ledger.Used(1, wallet)
	if used.Sign() != 0 {
		t.Fatalf("used = %s, want 0", used)
	}
}

func TestResolveWritesNothingForFreshWallet(t *testing.T) {
	store := newMockStorage()
	ledger := NewLimitLedger(store)
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)

	if err := ledger.Resolve(1, wallet, now); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(store.snapshot()) != 0 {
		t.Fatal("resolving a wallet with no spend must not persist anything")
	}
}

func TestLimitWindowAnchoredAtFirstSpend(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)
	capUsd := usd(100)

	// Resolving without a spend leaves no anchor behind.
	if err := ledger.Resolve(1, wallet, now); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// The first recorded spend comes much later and saturates the cap; the
	// lock must cover a full window from that spend, not from the earlier
	// resolve.
	spendAt := now.Add(23 * time.Hour)
	locked, lockUntil, err := ledger.Record(1, wallet, usd(100), capUsd, spendAt)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !locked {
		t.Fatal("exact saturation must lock")
	}
	wantUntil := spendAt.Add(limitWindow).Unix()
	if lockUntil != wantUntil {
		t.Fatalf("lock until = %d, want %d", lockUntil, wantUntil)
	}
	isLocked, _, err := ledger.HardLocked(wallet, now.Add(25*time.Hour))
	if err != nil || !isLocked {
		t.Fatalf("lock must still hold two hours after the spend: %t err=%v", isLocked, err)
	}
}

func TestEffectiveUsedIsVirtual(t *testing.T) {
	store := newMockStorage()
	ledger := NewLimitLedger(store)
	wallet := testAddr(0x02)
	now := time.Unix(1_700_000_000, 0)

	if _, _, err := ledger.Record(1, wallet, usd(70), usd(100), now); err != nil {
		t.Fatalf("record: %v", err)
	}

	later := now.Add(limitWindow).Add(time.Minute)
	before := store.snapshot()
	effective, err := ledger.EffectiveUsed(1, wallet, later)
	if err != nil {
		t.Fatalf("effective used: %v", err)
	}
	if effective.Sign() != 0 {
		t.Fatalf("effective = %s, want 0 past the window", effective)
	}
	after := store.snapshot()
	if len(before) != len(after) {
		t.Fatal("EffectiveUsed must not write")
	}
	for k, v := range before {
		if string(after[k]) != string(v) {
			t.Fatalf("EffectiveUsed mutated key %q", k)
		}
	}
	// The stored usage itself is untouched until a Resolve runs.
	used, _ := ledger.Used(1, wallet)
	if used.Cmp(usd(70)) != 0 {
		t.Fatalf("stored used = %s, want %s", used, usd(70))
	}
}

func TestLimitRecordRejectsNegative(t *testing.T) {
	ledger := NewLimitLedger(newMockStorage())
	now := time.Unix(1_700_000_000, 0)
	if _, _, err := ledger.Record(1, testAddr(0x02), big.NewInt(-1), usd(100), now); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative record: %v, want ErrInvalidAmount", err)
	}
}
