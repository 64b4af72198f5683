package vault

import "math/big"

// feeDenominator is the basis-point scale for fee rates.
const feeDenominator = 10_000

// FeeTierTable maps whole-USD magnitudes to basis-point fee rates. Thresholds
// are ascending and the rate slice carries exactly one more entry than the
// thresholds: the final entry is the catch-all rate above every threshold.
type FeeTierTable struct {
	ThresholdsUsd []*big.Int
	RatesBps      []uint32
}

// Validate enforces the structural invariants at admin-set time.
func (t FeeTierTable) Validate() error {
	if len(t.RatesBps) != len(t.ThresholdsUsd)+1 {
		return ErrFeeTiersMalformed
	}
	var prev *big.Int
	for _, threshold := range t.ThresholdsUsd {
		if threshold == nil || threshold.Sign() < 0 {
			return ErrFeeTiersMalformed
		}
		if prev != nil && threshold.Cmp(prev) <= 0 {
			return ErrFeeTiersMalformed
		}
		prev = threshold
	}
	for _, bps := range t.RatesBps {
		if bps > feeDenominator {
			return ErrFeeTiersMalformed
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t FeeTierTable) Clone() FeeTierTable {
	clone := FeeTierTable{
		ThresholdsUsd: make([]*big.Int, 0, len(t.ThresholdsUsd)),
		RatesBps:      append([]uint32{}, t.RatesBps...),
	}
	for _, threshold := range t.ThresholdsUsd {
		if threshold == nil {
			clone.ThresholdsUsd = append(clone.ThresholdsUsd, big.NewInt(0))
			continue
		}
		clone.ThresholdsUsd = append(clone.ThresholdsUsd, new(big.Int).Set(threshold))
	}
	return clone
}

// Rate scans the thresholds in ascending order and returns the first tier
// whose threshold covers the magnitude, falling through to the catch-all
// rate. The scan runs once per round, at round start; redemptions inside a
// round always use the rate frozen in the round record.
func (t FeeTierTable) Rate(wholeUsd *big.Int) uint32 {
	if len(t.RatesBps) == 0 {
		return 0
	}
	magnitude := wholeUsd
	if magnitude == nil {
		magnitude = big.NewInt(0)
	}
	for i, threshold := range t.ThresholdsUsd {
		if threshold == nil {
			continue
		}
		if magnitude.Cmp(threshold) <= 0 {
			return t.RatesBps[i]
		}
	}
	return t.RatesBps[len(t.RatesBps)-1]
}

// FeeAmount computes floor(raw * bps / 10000) in raw input-token units.
func FeeAmount(raw *big.Int, bps uint32) *big.Int {
	if raw == nil || raw.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(raw, big.NewInt(int64(bps)))
	return fee.Quo(fee, big.NewInt(feeDenominator))
}
