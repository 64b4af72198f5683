package vault

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"redeemvault/core/events"
)

// Admin mutators. Every entry point verifies the caller against the
// configured admin before touching state and emits a params-updated event so
// indexers can track governance activity.

// SetDailyCap replaces the per-wallet rolling 24h USD cap. A nil or zero cap
// disables the limit entirely.
func (e *Engine) SetDailyCap(caller [20]byte, capUsd18 *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if capUsd18 != nil && capUsd18.Sign() < 0 {
		return ErrInvalidAmount
	}
	if capUsd18 == nil {
		e.params.DailyCapUsd18 = nil
	} else {
		e.params.DailyCapUsd18 = new(big.Int).Set(capUsd18)
	}
	e.emit(events.VaultParamsUpdated{Field: "dailyCapUsd", Value: amountToString(capUsd18)})
	return nil
}

// SetOracle replaces the price oracle capability for the wrapped-native
// asset. Quotes and redemptions pick up the new source on their next call.
func (e *Engine) SetOracle(caller [20]byte, oracle PriceOracle) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if oracle == nil {
		return ErrInvalidOracle
	}
	e.oracle = oracle
	e.emit(events.VaultParamsUpdated{Field: "oracle", Value: "replaced"})
	return nil
}

// SetFeeRecipient redirects future fee skims. Already-settled redemptions are
// unaffected.
func (e *Engine) SetFeeRecipient(caller, recipient [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.params.FeeRecipient = recipient
	e.emit(events.VaultParamsUpdated{Field: "feeRecipient", Value: "0x" + hex.EncodeToString(recipient[:])})
	return nil
}

// SetFeeTiers replaces the fee tier table after validating its shape. Rounds
// already started keep their locked rate; the new table applies from the next
// StartRound.
func (e *Engine) SetFeeTiers(caller [20]byte, tiers FeeTierTable) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := tiers.Validate(); err != nil {
		return err
	}
	e.params.FeeTiers = tiers.Clone()
	e.emit(events.VaultParamsUpdated{Field: "feeTiers", Value: fmt.Sprintf("%d tiers", len(tiers.RatesBps))})
	return nil
}

// SetFixedPrice assigns a fixed 18-decimal USD price to a supported token.
func (e *Engine) SetFixedPrice(caller, token [20]byte, priceUsd18 *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if priceUsd18 == nil || priceUsd18.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.registry.SetFixedPrice(token, priceUsd18); err != nil {
		return err
	}
	e.emit(events.VaultParamsUpdated{Field: "fixedPrice:" + hex.EncodeToString(token[:]), Value: priceUsd18.String()})
	return nil
}

// AddSupportedToken lists a token for redemption. Re-adding an existing token
// updates its metadata in place.
func (e *Engine) AddSupportedToken(caller [20]byte, info TokenInfo) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if e.params.IsPayoutAsset(info.Address) {
		return ErrTokenNotSupported
	}
	if err := e.registry.Add(info); err != nil {
		return err
	}
	e.emit(events.VaultTokenListed{Token: info.Address, Decimals: info.Decimals})
	return nil
}

// RemoveSupportedToken delists a token. Pending quotes against it fail on
// their next evaluation.
func (e *Engine) RemoveSupportedToken(caller, token [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.registry.Remove(token); err != nil {
		return err
	}
	e.emit(events.VaultTokenDelisted{Token: token})
	return nil
}

// SetPaused toggles the redemption circuit breaker. Quotes keep working while
// paused; only the mutating path is gated.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.params.Paused = paused
	e.emit(events.VaultParamsUpdated{Field: "paused", Value: fmt.Sprintf("%t", paused)})
	return nil
}

// SetMembershipRoot rotates the whitelist Merkle root. Proofs built against
// the previous root stop verifying immediately.
func (e *Engine) SetMembershipRoot(caller [20]byte, root [32]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.params.MembershipRoot = root
	e.emit(events.VaultParamsUpdated{Field: "membershipRoot", Value: "0x" + hex.EncodeToString(root[:])})
	return nil
}

// SetRoundDelay configures the optional start delay applied by StartRound.
func (e *Engine) SetRoundDelay(caller [20]byte, enabled bool, delay time.Duration) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if delay < 0 {
		return ErrInvalidAmount
	}
	e.params.DelayEnabled = enabled
	e.params.StartDelay = delay
	e.emit(events.VaultParamsUpdated{Field: "roundDelay", Value: fmt.Sprintf("enabled=%t delay=%s", enabled, delay)})
	return nil
}

// Withdraw moves payout-asset balance out of the vault. Draining holdings
// deactivates the current round through the derived activity predicate.
func (e *Engine) Withdraw(caller, token, to [20]byte, amount *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !e.params.IsPayoutAsset(token) {
		return ErrInvalidRedeemToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	capability, err := e.token(token)
	if err != nil {
		return err
	}
	balance, err := capability.BalanceOf(e.params.VaultAddress)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := capability.Transfer(to, amount); err != nil {
		return fmt.Errorf("vault: withdraw transfer: %w", err)
	}
	e.emit(events.VaultWithdrawn{Token: token, To: to, Amount: amount})
	return nil
}
