package vault

import "errors"

var (
	// ErrNotAdmin indicates the caller does not hold the admin capability.
	ErrNotAdmin = errors.New("vault: caller is not the admin")
	// ErrNotWhitelisted indicates the membership proof did not verify against the stored root.
	ErrNotWhitelisted = errors.New("vault: caller is not whitelisted")
	// ErrPaused indicates the vault has been paused by the admin.
	ErrPaused = errors.New("vault: contract paused")
	// ErrReentrantCall indicates a nested redeem attempted to re-enter the engine.
	ErrReentrantCall = errors.New("vault: reentrant call")
	// ErrRoundNotInitialized indicates no redemption round has ever been started.
	ErrRoundNotInitialized = errors.New("vault: round not initialized")
	// ErrRoundNotActive indicates the current round has not reached its start time.
	ErrRoundNotActive = errors.New("vault: round not active")
	// ErrRoundNotIncreasing indicates the proposed round id does not exceed the current one.
	ErrRoundNotIncreasing = errors.New("vault: round id must increase")
	// ErrNoFunds indicates the vault holds no payout-asset balance.
	ErrNoFunds = errors.New("vault: no payout funds")
	// ErrTokenNotSupported indicates the input token is not in the supported set.
	ErrTokenNotSupported = errors.New("vault: token not supported")
	// ErrInvalidRedeemToken indicates the requested output token is not a payout asset.
	ErrInvalidRedeemToken = errors.New("vault: invalid redeem token")
	// ErrInvalidAmount indicates a zero or negative redemption amount.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
	// ErrInvalidOracle indicates the oracle returned a non-positive or missing price.
	ErrInvalidOracle = errors.New("vault: invalid oracle reading")
	// ErrUnsupportedValuation indicates no fixed price is set for a non-payout token.
	ErrUnsupportedValuation = errors.New("vault: unsupported valuation")
	// ErrDailyLimitLocked indicates the wallet is hard-locked until the window expires.
	ErrDailyLimitLocked = errors.New("vault: daily limit locked")
	// ErrExceedsDailyLimit indicates the request exceeds the remaining daily capacity.
	ErrExceedsDailyLimit = errors.New("vault: exceeds daily limit")
	// ErrInsufficientLiquidity indicates the vault cannot cover the computed payout.
	ErrInsufficientLiquidity = errors.New("vault: insufficient liquidity")
	// ErrFeeTiersMalformed indicates the fee tier table failed validation.
	ErrFeeTiersMalformed = errors.New("vault: fee tier table malformed")
	// ErrAmountOverflow indicates an intermediate product exceeded the 256-bit range.
	ErrAmountOverflow = errors.New("vault: amount exceeds 256-bit range")
	// ErrTokenUnavailable indicates no token capability is wired for an address.
	ErrTokenUnavailable = errors.New("vault: token capability unavailable")
)
