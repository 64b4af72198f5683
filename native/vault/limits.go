package vault

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// limitWindow is the rolling window applied to per-wallet USD spend.
const limitWindow = 24 * time.Hour

type usageRecord struct {
	UsedUsd string
}

type walletClockRecord struct {
	LockUntil    uint64
	WindowAnchor uint64
}

// LimitLedger tracks USD spend per (round, wallet) and enforces the rolling
// 24h cap. Windows and locks are reset lazily on the access path; there is no
// background sweeper.
type LimitLedger struct {
	store Storage
}

// NewLimitLedger constructs a ledger bound to the provided storage backend.
func NewLimitLedger(store Storage) *LimitLedger {
	return &LimitLedger{store: store}
}

func usageKey(roundID uint64, addr [20]byte) []byte {
	return appendAddr(appendString(limitUsagePrefix, strconv.FormatUint(roundID, 10)+"/"), addr)
}

func clockKey(addr [20]byte) []byte {
	return appendAddr(limitClockPrefix, addr)
}

// HardLocked reports whether the wallet is under an unexpired hard lock. It
// performs no writes so the orchestrator can reject locked callers before any
// valuation work.
func (l *LimitLedger) HardLocked(addr [20]byte, now time.Time) (bool, int64, error) {
	if l == nil {
		return false, 0, fmt.Errorf("limit ledger not initialised")
	}
	clock, err := l.loadClock(addr)
	if err != nil {
		return false, 0, err
	}
	if clock.LockUntil != 0 && uint64(now.Unix()) < clock.LockUntil {
		return true, int64(clock.LockUntil), nil
	}
	return false, 0, nil
}

// Resolve applies the lazy reset rules for the wallet: an expired hard lock
// or an elapsed window zeroes the usage and clears the clock. It never starts
// a new window; the anchor is written only when spend is recorded, so failed
// attempts leave no trace.
func (l *LimitLedger) Resolve(roundID uint64, addr [20]byte, now time.Time) error {
	if l == nil {
		return fmt.Errorf("limit ledger not initialised")
	}
	clock, err := l.loadClock(addr)
	if err != nil {
		return err
	}
	ts := uint64(now.Unix())
	dirty := false
	if clock.LockUntil != 0 && ts >= clock.LockUntil {
		if err := l.putUsage(roundID, addr, big.NewInt(0)); err != nil {
			return err
		}
		clock.LockUntil = 0
		clock.WindowAnchor = 0
		dirty = true
	}
	if clock.WindowAnchor != 0 && ts >= clock.WindowAnchor+uint64(limitWindow/time.Second) {
		if err := l.putUsage(roundID, addr, big.NewInt(0)); err != nil {
			return err
		}
		clock.WindowAnchor = 0
		dirty = true
	}
	if dirty {
		return l.store.KVPut(clockKey(addr), clock)
	}
	return nil
}

// Check runs the admission test for a requested spend and reports the
// remaining capacity before and after it. The usage figure is supplied by the
// caller so the execution path (Used) and the quote path (EffectiveUsed) share
// one admission rule. A nil or non-positive cap disables the limit; both
// capacities are nil then. There are no partial fills.
func (l *LimitLedger) Check(usedUsd18, requestedUsd18, capUsd18 *big.Int) (*big.Int, *big.Int, error) {
	if l == nil {
		return nil, nil, fmt.Errorf("limit ledger not initialised")
	}
	if capUsd18 == nil || capUsd18.Sign() <= 0 {
		return nil, nil, nil
	}
	if usedUsd18 == nil {
		usedUsd18 = big.NewInt(0)
	}
	before := new(big.Int).Sub(capUsd18, usedUsd18)
	if before.Sign() < 0 {
		before = big.NewInt(0)
	}
	if requestedUsd18 == nil || requestedUsd18.Cmp(before) > 0 {
		return before, nil, ErrExceedsDailyLimit
	}
	return before, new(big.Int).Sub(before, requestedUsd18), nil
}

// Record accumulates the gross USD spend after a successful redemption and
// anchors the rolling window on first spend. When usage lands exactly on the
// cap the wallet is hard-locked until the window anchor plus the full window,
// a stricter guard than the rolling reset alone.
func (l *LimitLedger) Record(roundID uint64, addr [20]byte, grossUsd18, capUsd18 *big.Int, now time.Time) (bool, int64, error) {
	if l == nil {
		return false, 0, fmt.Errorf("limit ledger not initialised")
	}
	if grossUsd18 == nil || grossUsd18.Sign() < 0 {
		return false, 0, ErrInvalidAmount
	}
	used, err := l.Used(roundID, addr)
	if err != nil {
		return false, 0, err
	}
	updated := new(big.Int).Add(used, grossUsd18)
	if err := l.putUsage(roundID, addr, updated); err != nil {
		return false, 0, err
	}
	clock, err := l.loadClock(addr)
	if err != nil {
		return false, 0, err
	}
	dirty := false
	if clock.WindowAnchor == 0 {
		clock.WindowAnchor = uint64(now.Unix())
		dirty = true
	}
	saturated := capUsd18 != nil && capUsd18.Sign() > 0 && updated.Cmp(capUsd18) == 0
	if saturated {
		clock.LockUntil = clock.WindowAnchor + uint64(limitWindow/time.Second)
		dirty = true
	}
	if dirty {
		if err := l.store.KVPut(clockKey(addr), clock); err != nil {
			return false, 0, err
		}
	}
	if !saturated {
		return false, 0, nil
	}
	return true, int64(clock.LockUntil), nil
}

// limitState captures the usage and clock of one wallet so a failed
// settlement can roll its bookkeeping back.
type limitState struct {
	used  *big.Int
	clock walletClockRecord
}

func (l *LimitLedger) state(roundID uint64, addr [20]byte) (limitState, error) {
	used, err := l.Used(roundID, addr)
	if err != nil {
		return limitState{}, err
	}
	clock, err := l.loadClock(addr)
	if err != nil {
		return limitState{}, err
	}
	return limitState{used: used, clock: clock}, nil
}

func (l *LimitLedger) restore(roundID uint64, addr [20]byte, prior limitState) error {
	if err := l.putUsage(roundID, addr, prior.used); err != nil {
		return err
	}
	return l.store.KVPut(clockKey(addr), prior.clock)
}

// Used returns the accumulated USD spend for the wallet within the round.
func (l *LimitLedger) Used(roundID uint64, addr [20]byte) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("limit ledger not initialised")
	}
	var record usageRecord
	ok, err := l.store.KVGet(usageKey(roundID, addr), &record)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(record.UsedUsd) == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(record.UsedUsd), 10)
	if !ok {
		return nil, fmt.Errorf("limits: invalid usage %q", record.UsedUsd)
	}
	return value, nil
}

// EffectiveUsed computes the usage a resolver would observe at the supplied
// time without mutating state. Quotes rely on this to mirror the execution
// path exactly.
func (l *LimitLedger) EffectiveUsed(roundID uint64, addr [20]byte, now time.Time) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("limit ledger not initialised")
	}
	clock, err := l.loadClock(addr)
	if err != nil {
		return nil, err
	}
	ts := uint64(now.Unix())
	if clock.LockUntil != 0 && ts >= clock.LockUntil {
		return big.NewInt(0), nil
	}
	if clock.WindowAnchor != 0 && ts >= clock.WindowAnchor+uint64(limitWindow/time.Second) {
		return big.NewInt(0), nil
	}
	return l.Used(roundID, addr)
}

func (l *LimitLedger) loadClock(addr [20]byte) (walletClockRecord, error) {
	var record walletClockRecord
	if _, err := l.store.KVGet(clockKey(addr), &record); err != nil {
		return walletClockRecord{}, err
	}
	return record, nil
}

func (l *LimitLedger) putUsage(roundID uint64, addr [20]byte, used *big.Int) error {
	return l.store.KVPut(usageKey(roundID, addr), usageRecord{UsedUsd: used.String()})
}
