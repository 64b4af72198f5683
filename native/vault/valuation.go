package vault

import (
	"math/big"

	"github.com/holiman/uint256"
)

// usdDecimals is the fixed-point precision used for every USD figure in the
// vault. All valuation maths stays in integer space at this scale.
const usdDecimals = uint8(18)

var usdUnit = pow10(usdDecimals)

// Valuator converts raw token amounts to 18-decimal USD values and back. The
// pricing strategy depends on token identity: the wrapped-native payout asset
// is priced through the oracle snapshot, the stable payout asset is assumed
// pegged 1:1, and any other supported token requires a nonzero fixed price.
type Valuator struct {
	registry              *Registry
	wrappedNative         [20]byte
	wrappedNativeDecimals uint8
	stableAsset           [20]byte
	stableAssetDecimals   uint8
}

// NewValuator constructs a valuator bound to the registry holding fixed
// prices for non-payout tokens.
func NewValuator(registry *Registry, params *Params) *Valuator {
	v := &Valuator{registry: registry}
	if params != nil {
		v.wrappedNative = params.WrappedNative
		v.wrappedNativeDecimals = params.WrappedNativeDecimals
		v.stableAsset = params.StableAsset
		v.stableAssetDecimals = params.StableAssetDecimals
	}
	return v
}

// USDValue prices the raw token amount in 18-decimal USD.
func (v *Valuator) USDValue(token [20]byte, raw *big.Int, snap PriceSnapshot) (*big.Int, error) {
	if v == nil {
		return nil, ErrUnsupportedValuation
	}
	if raw == nil || raw.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	switch token {
	case v.wrappedNative:
		if snap.Rate18 == nil || snap.Rate18.Sign() <= 0 {
			return nil, ErrInvalidOracle
		}
		amount18, err := scaleAmount(raw, v.wrappedNativeDecimals, usdDecimals)
		if err != nil {
			return nil, err
		}
		return mulDiv256(amount18, snap.Rate18, usdUnit)
	case v.stableAsset:
		return scaleAmount(raw, v.stableAssetDecimals, usdDecimals)
	default:
		if v.registry == nil {
			return nil, ErrUnsupportedValuation
		}
		info, ok, err := v.registry.Get(token)
		if err != nil {
			return nil, err
		}
		if !ok || info.FixedPriceUsd18 == nil || info.FixedPriceUsd18.Sign() == 0 {
			return nil, ErrUnsupportedValuation
		}
		return mulDiv256(raw, info.FixedPriceUsd18, pow10(info.Decimals))
	}
}

// OutputAmount converts an 18-decimal USD value into raw units of the
// requested payout asset. Division always floors; rounding never favours the
// caller over the vault.
func (v *Valuator) OutputAmount(usd18 *big.Int, token [20]byte, snap PriceSnapshot) (*big.Int, error) {
	if v == nil {
		return nil, ErrInvalidRedeemToken
	}
	if usd18 == nil || usd18.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	switch token {
	case v.wrappedNative:
		if snap.Rate18 == nil || snap.Rate18.Sign() <= 0 {
			return nil, ErrInvalidOracle
		}
		amount18, err := mulDiv256(usd18, usdUnit, snap.Rate18)
		if err != nil {
			return nil, err
		}
		return scaleAmount(amount18, usdDecimals, v.wrappedNativeDecimals)
	case v.stableAsset:
		return scaleAmount(usd18, usdDecimals, v.stableAssetDecimals)
	default:
		return nil, ErrInvalidRedeemToken
	}
}

// TokenDecimals resolves the decimals used to interpret raw amounts for the
// supplied token.
func (v *Valuator) TokenDecimals(token [20]byte) (uint8, error) {
	if v == nil {
		return 0, ErrUnsupportedValuation
	}
	switch token {
	case v.wrappedNative:
		return v.wrappedNativeDecimals, nil
	case v.stableAsset:
		return v.stableAssetDecimals, nil
	default:
		if v.registry == nil {
			return 0, ErrUnsupportedValuation
		}
		info, ok, err := v.registry.Get(token)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrTokenNotSupported
		}
		return info.Decimals, nil
	}
}

// WholeUsd floors an 18-decimal USD value to whole dollars.
func WholeUsd(usd18 *big.Int) *big.Int {
	if usd18 == nil || usd18.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(usd18, usdUnit)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// scaleAmount rescales an integer amount between decimal precisions. Scaling
// down floors the result.
func scaleAmount(amount *big.Int, from, to uint8) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if from == to {
		return new(big.Int).Set(amount), nil
	}
	if to > from {
		return checkedMul(amount, pow10(to-from))
	}
	return new(big.Int).Quo(amount, pow10(from-to)), nil
}

// mulDiv256 computes floor(a*b/denom) keeping the intermediate product inside
// the 256-bit range the reference arithmetic guarantees.
func mulDiv256(a, b, denom *big.Int) (*big.Int, error) {
	if denom == nil || denom.Sign() == 0 {
		return nil, ErrUnsupportedValuation
	}
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrAmountOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	d, overflow := uint256.FromBig(denom)
	if overflow {
		return nil, ErrAmountOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return new(uint256.Int).Div(product, d).ToBig(), nil
}

func checkedMul(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrAmountOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return product.ToBig(), nil
}
