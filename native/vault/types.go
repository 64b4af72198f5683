package vault

import (
	"math/big"
	"time"
)

// Storage abstracts the subset of state manager functionality required by the
// vault engine and its ledgers.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

// PriceOracle resolves the latest wrapped-native/USD observation. The price is
// expressed as USD per whole token at the reported number of decimals.
type PriceOracle interface {
	LatestPrice() (price *big.Int, decimals uint8, err error)
}

// PriceSnapshot is a single oracle observation normalised to 18-decimal USD.
// It is fetched at most once per redeem or quote call and threaded explicitly
// through every valuation to keep pre-fee and post-fee math consistent.
type PriceSnapshot struct {
	Rate18   *big.Int
	Raw      *big.Int
	Decimals uint8
}

// SnapshotFromOracle fetches and normalises a single oracle observation.
func SnapshotFromOracle(oracle PriceOracle) (PriceSnapshot, error) {
	if oracle == nil {
		return PriceSnapshot{}, ErrInvalidOracle
	}
	price, decimals, err := oracle.LatestPrice()
	if err != nil {
		return PriceSnapshot{}, err
	}
	if price == nil || price.Sign() <= 0 {
		return PriceSnapshot{}, ErrInvalidOracle
	}
	rate18, err := scaleAmount(price, decimals, usdDecimals)
	if err != nil {
		return PriceSnapshot{}, err
	}
	return PriceSnapshot{Rate18: rate18, Raw: new(big.Int).Set(price), Decimals: decimals}, nil
}

// Params is the engine-owned configuration aggregate. It is mutated only
// through the admin surface on the engine; nothing reads module-level globals.
type Params struct {
	Admin                 [20]byte
	VaultAddress          [20]byte
	WrappedNative         [20]byte
	WrappedNativeDecimals uint8
	StableAsset           [20]byte
	StableAssetDecimals   uint8
	FeeRecipient          [20]byte
	Sink                  [20]byte
	DailyCapUsd18         *big.Int
	MembershipRoot        [32]byte
	StartDelay            time.Duration
	DelayEnabled          bool
	Paused                bool
	FeeTiers              FeeTierTable
}

// Clone returns a deep copy to shield callers from accidental mutation.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	if p.DailyCapUsd18 != nil {
		clone.DailyCapUsd18 = new(big.Int).Set(p.DailyCapUsd18)
	}
	clone.FeeTiers = p.FeeTiers.Clone()
	return &clone
}

// IsPayoutAsset reports whether the address is one of the two configured
// payout assets.
func (p *Params) IsPayoutAsset(token [20]byte) bool {
	if p == nil {
		return false
	}
	return token == p.WrappedNative || token == p.StableAsset
}
