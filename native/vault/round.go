package vault

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Round captures one admin-delimited redemption period. The fee rate is
// frozen into the record when the round starts and never changes afterwards;
// only starting a new round establishes a new locked rate.
type Round struct {
	ID               uint64
	StartTime        int64
	LockedFeeRateBps uint32
	FeeBasisUsd      *big.Int
}

// Copy returns a deep copy of the round record.
func (r *Round) Copy() *Round {
	if r == nil {
		return nil
	}
	clone := *r
	if r.FeeBasisUsd != nil {
		clone.FeeBasisUsd = new(big.Int).Set(r.FeeBasisUsd)
	}
	return &clone
}

// Started reports whether the round's delayed start has elapsed.
func (r *Round) Started(now int64) bool {
	return r != nil && now >= r.StartTime
}

type storedRound struct {
	ID               uint64
	StartTime        uint64
	LockedFeeRateBps uint32
	FeeBasisUsd      string
}

// RoundStore persists round records. Prior rounds stay addressable by id so
// that orphaned usage records keep a stable key space.
type RoundStore struct {
	store Storage
}

// NewRoundStore constructs a round store bound to the storage backend.
func NewRoundStore(store Storage) *RoundStore {
	return &RoundStore{store: store}
}

// Current returns the active round record, if any round was ever started.
func (rs *RoundStore) Current() (*Round, bool, error) {
	if rs == nil {
		return nil, false, fmt.Errorf("round store not initialised")
	}
	var stored storedRound
	ok, err := rs.store.KVGet(roundCurrentKey, &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	round, err := fromStoredRound(&stored)
	if err != nil {
		return nil, false, err
	}
	return round, true, nil
}

// Get returns a round by id.
func (rs *RoundStore) Get(id uint64) (*Round, bool, error) {
	if rs == nil {
		return nil, false, fmt.Errorf("round store not initialised")
	}
	var stored storedRound
	ok, err := rs.store.KVGet(roundKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	round, err := fromStoredRound(&stored)
	if err != nil {
		return nil, false, err
	}
	return round, true, nil
}

// Put installs the round as current and records it under its id.
func (rs *RoundStore) Put(round *Round) error {
	if rs == nil {
		return fmt.Errorf("round store not initialised")
	}
	if round == nil {
		return fmt.Errorf("round store: record must not be nil")
	}
	stored := toStoredRound(round)
	if err := rs.store.KVPut(roundKey(round.ID), stored); err != nil {
		return err
	}
	return rs.store.KVPut(roundCurrentKey, stored)
}

func roundKey(id uint64) []byte {
	return appendString(roundRecordPrefix, strconv.FormatUint(id, 10))
}

func toStoredRound(round *Round) storedRound {
	stored := storedRound{ID: round.ID, LockedFeeRateBps: round.LockedFeeRateBps}
	if round.StartTime > 0 {
		stored.StartTime = uint64(round.StartTime)
	}
	if round.FeeBasisUsd != nil {
		stored.FeeBasisUsd = round.FeeBasisUsd.String()
	}
	return stored
}

func fromStoredRound(stored *storedRound) (*Round, error) {
	if stored == nil {
		return nil, fmt.Errorf("round store: nil stored record")
	}
	round := &Round{
		ID:               stored.ID,
		StartTime:        int64(stored.StartTime),
		LockedFeeRateBps: stored.LockedFeeRateBps,
		FeeBasisUsd:      big.NewInt(0),
	}
	if trimmed := strings.TrimSpace(stored.FeeBasisUsd); trimmed != "" {
		basis, ok := new(big.Int).SetString(trimmed, 10)
		if !ok {
			return nil, fmt.Errorf("round store: invalid fee basis %q", stored.FeeBasisUsd)
		}
		round.FeeBasisUsd = basis
	}
	return round, nil
}
