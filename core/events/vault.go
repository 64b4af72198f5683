package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	TypeVaultRoundStarted  = "vault.round.started"
	TypeVaultRedeemed      = "vault.redeem.executed"
	TypeVaultBurnFallback  = "vault.redeem.burn_fallback"
	TypeVaultWalletLocked  = "vault.limits.locked"
	TypeVaultParamsUpdated = "vault.params.updated"
	TypeVaultTokenListed   = "vault.registry.listed"
	TypeVaultTokenDelisted = "vault.registry.delisted"
	TypeVaultWithdrawn     = "vault.treasury.withdrawn"
)

// VaultRoundStarted is emitted when the admin starts a new redemption round.
type VaultRoundStarted struct {
	RoundID          uint64
	StartTime        int64
	LockedFeeRateBps uint32
	FeeBasisUsd      *big.Int
}

func (VaultRoundStarted) EventType() string { return TypeVaultRoundStarted }

func (e VaultRoundStarted) Event() *Payload {
	return &Payload{
		Type: TypeVaultRoundStarted,
		Attributes: map[string]string{
			"roundId":          strconv.FormatUint(e.RoundID, 10),
			"startTime":        intToString(e.StartTime),
			"lockedFeeRateBps": strconv.FormatUint(uint64(e.LockedFeeRateBps), 10),
			"feeBasisUsd":      formatAmount(e.FeeBasisUsd),
		},
	}
}

// VaultRedeemed is emitted after a fully settled redemption. It carries both
// gross and net USD values plus the remaining capacity before and after.
type VaultRedeemed struct {
	RoundID        uint64
	Wallet         [20]byte
	InputToken     [20]byte
	OutputToken    [20]byte
	InputAmount    *big.Int
	FeeAmount      *big.Int
	NetAmount      *big.Int
	OutputAmount   *big.Int
	GrossUsd       *big.Int
	NetUsd         *big.Int
	CapacityBefore *big.Int
	CapacityAfter  *big.Int
}

func (VaultRedeemed) EventType() string { return TypeVaultRedeemed }

func (e VaultRedeemed) Event() *Payload {
	return &Payload{
		Type: TypeVaultRedeemed,
		Attributes: map[string]string{
			"roundId":        strconv.FormatUint(e.RoundID, 10),
			"wallet":         formatAddress(e.Wallet),
			"inputToken":     formatAddress(e.InputToken),
			"outputToken":    formatAddress(e.OutputToken),
			"inputAmount":    formatAmount(e.InputAmount),
			"feeAmount":      formatAmount(e.FeeAmount),
			"netAmount":      formatAmount(e.NetAmount),
			"outputAmount":   formatAmount(e.OutputAmount),
			"grossUsd":       formatAmount(e.GrossUsd),
			"netUsd":         formatAmount(e.NetUsd),
			"capacityBefore": formatAmount(e.CapacityBefore),
			"capacityAfter":  formatAmount(e.CapacityAfter),
		},
	}
}

// VaultBurnFallback is emitted when the burn entry point failed and the net
// portion was routed to the sink instead.
type VaultBurnFallback struct {
	Token  [20]byte
	Amount *big.Int
	Reason string
}

func (VaultBurnFallback) EventType() string { return TypeVaultBurnFallback }

func (e VaultBurnFallback) Event() *Payload {
	return &Payload{
		Type: TypeVaultBurnFallback,
		Attributes: map[string]string{
			"token":  formatAddress(e.Token),
			"amount": formatAmount(e.Amount),
			"reason": e.Reason,
		},
	}
}

// VaultWalletLocked is emitted when usage saturates the daily cap exactly and
// the hard lock engages.
type VaultWalletLocked struct {
	Wallet    [20]byte
	RoundID   uint64
	LockUntil int64
}

func (VaultWalletLocked) EventType() string { return TypeVaultWalletLocked }

func (e VaultWalletLocked) Event() *Payload {
	return &Payload{
		Type: TypeVaultWalletLocked,
		Attributes: map[string]string{
			"wallet":    formatAddress(e.Wallet),
			"roundId":   strconv.FormatUint(e.RoundID, 10),
			"lockUntil": intToString(e.LockUntil),
		},
	}
}

// VaultParamsUpdated is emitted whenever the admin mutates the configuration
// aggregate.
type VaultParamsUpdated struct {
	Field string
	Value string
}

func (VaultParamsUpdated) EventType() string { return TypeVaultParamsUpdated }

func (e VaultParamsUpdated) Event() *Payload {
	return &Payload{
		Type: TypeVaultParamsUpdated,
		Attributes: map[string]string{
			"field": e.Field,
			"value": e.Value,
		},
	}
}

// VaultTokenListed is emitted when a token joins the supported set.
type VaultTokenListed struct {
	Token    [20]byte
	Decimals uint8
}

func (VaultTokenListed) EventType() string { return TypeVaultTokenListed }

func (e VaultTokenListed) Event() *Payload {
	return &Payload{
		Type: TypeVaultTokenListed,
		Attributes: map[string]string{
			"token":    formatAddress(e.Token),
			"decimals": strconv.FormatUint(uint64(e.Decimals), 10),
		},
	}
}

// VaultTokenDelisted is emitted when a token leaves the supported set.
type VaultTokenDelisted struct {
	Token [20]byte
}

func (VaultTokenDelisted) EventType() string { return TypeVaultTokenDelisted }

func (e VaultTokenDelisted) Event() *Payload {
	return &Payload{
		Type:       TypeVaultTokenDelisted,
		Attributes: map[string]string{"token": formatAddress(e.Token)},
	}
}

// VaultWithdrawn is emitted when the admin withdraws payout-asset balance.
type VaultWithdrawn struct {
	Token  [20]byte
	To     [20]byte
	Amount *big.Int
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

func (e VaultWithdrawn) Event() *Payload {
	return &Payload{
		Type: TypeVaultWithdrawn,
		Attributes: map[string]string{
			"token":  formatAddress(e.Token),
			"to":     formatAddress(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
