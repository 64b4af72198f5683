package vault

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"redeemvault/core/events"
)

// Engine wires the redemption business logic with storage, token
// capabilities, the price oracle, and event emission. All mutating state
// transitions run through it; there is no external writer.
type Engine struct {
	store    Storage
	params   *Params
	registry *Registry
	rounds   *RoundStore
	limits   *LimitLedger
	ledger   *RedemptionLedger
	valuator *Valuator
	oracle   PriceOracle
	tokens   TokenSource
	emitter  events.Emitter
	nowFn    func() time.Time
	entered  bool
}

// NewEngine constructs an engine over the storage backend and configuration
// aggregate. Token and oracle capabilities are wired via setters.
func NewEngine(store Storage, params *Params) *Engine {
	cfg := params.Clone()
	if cfg == nil {
		cfg = &Params{}
	}
	registry := NewRegistry(store)
	return &Engine{
		store:    store,
		params:   cfg,
		registry: registry,
		rounds:   NewRoundStore(store),
		limits:   NewLimitLedger(store),
		ledger:   NewRedemptionLedger(store),
		valuator: NewValuator(registry, cfg),
		emitter:  events.NoopEmitter{},
		nowFn:    time.Now,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetTokenSource wires the resolver for token capabilities.
func (e *Engine) SetTokenSource(tokens TokenSource) { e.tokens = tokens }

// SetOracleSource wires the price oracle capability at construction time.
// Admin-driven replacement goes through SetOracle.
func (e *Engine) SetOracleSource(oracle PriceOracle) { e.oracle = oracle }

// Registry exposes the supported-token registry for read paths.
func (e *Engine) Registry() *Registry { return e.registry }

// Ledger exposes the redemption receipt ledger for audits.
func (e *Engine) Ledger() *RedemptionLedger { return e.ledger }

// Params returns a defensive copy of the configuration aggregate.
func (e *Engine) Params() *Params { return e.params.Clone() }

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now()
	}
	return e.nowFn()
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) token(addr [20]byte) (Token, error) {
	if e.tokens == nil {
		return nil, ErrTokenUnavailable
	}
	token, ok := e.tokens(addr)
	if !ok || token == nil {
		return nil, ErrTokenUnavailable
	}
	return token, nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if caller != e.params.Admin {
		return ErrNotAdmin
	}
	return nil
}

// payoutBalances reads the vault's live holdings of the two payout assets.
// Balances are never cached; activity predicates depend on them directly.
func (e *Engine) payoutBalances() (*big.Int, *big.Int, error) {
	wrappedTok, err := e.token(e.params.WrappedNative)
	if err != nil {
		return nil, nil, err
	}
	stableTok, err := e.token(e.params.StableAsset)
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := wrappedTok.BalanceOf(e.params.VaultAddress)
	if err != nil {
		return nil, nil, err
	}
	stable, err := stableTok.BalanceOf(e.params.VaultAddress)
	if err != nil {
		return nil, nil, err
	}
	if wrapped == nil {
		wrapped = big.NewInt(0)
	}
	if stable == nil {
		stable = big.NewInt(0)
	}
	return wrapped, stable, nil
}

// RoundActive recomputes the derived activity predicate: a current round
// exists, its delayed start has elapsed, and the vault holds a nonzero
// balance of at least one payout asset right now.
func (e *Engine) RoundActive(now time.Time) (*Round, bool, error) {
	round, ok, err := e.rounds.Current()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if !round.Started(now.Unix()) {
		return round, false, nil
	}
	wrapped, stable, err := e.payoutBalances()
	if err != nil {
		return round, false, err
	}
	if wrapped.Sign() == 0 && stable.Sign() == 0 {
		return round, false, nil
	}
	return round, true, nil
}

// StartRound opens a new redemption round. The fee tier table is evaluated
// exactly once here, against the vault's current USD holdings, and the
// resulting rate is frozen into the round record.
func (e *Engine) StartRound(caller [20]byte, id uint64) (*Round, error) {
	if e == nil {
		return nil, fmt.Errorf("vault engine not initialised")
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	current, ok, err := e.rounds.Current()
	if err != nil {
		return nil, err
	}
	if ok && id <= current.ID {
		return nil, ErrRoundNotIncreasing
	}
	wrapped, stable, err := e.payoutBalances()
	if err != nil {
		return nil, err
	}
	if wrapped.Sign() == 0 && stable.Sign() == 0 {
		return nil, ErrNoFunds
	}
	holdingsUsd, err := e.holdingsUsd(wrapped, stable)
	if err != nil {
		return nil, err
	}
	basis := WholeUsd(holdingsUsd)
	now := e.now()
	start := now.Unix()
	if e.params.DelayEnabled {
		start += int64(e.params.StartDelay / time.Second)
	}
	round := &Round{
		ID:               id,
		StartTime:        start,
		LockedFeeRateBps: e.params.FeeTiers.Rate(basis),
		FeeBasisUsd:      basis,
	}
	if err := e.rounds.Put(round); err != nil {
		return nil, err
	}
	e.emit(events.VaultRoundStarted{
		RoundID:          round.ID,
		StartTime:        round.StartTime,
		LockedFeeRateBps: round.LockedFeeRateBps,
		FeeBasisUsd:      round.FeeBasisUsd,
	})
	return round.Copy(), nil
}

// holdingsUsd values the payout balances in 18-decimal USD. The oracle is
// consulted only when the wrapped-native balance is nonzero.
func (e *Engine) holdingsUsd(wrapped, stable *big.Int) (*big.Int, error) {
	total := big.NewInt(0)
	if stable.Sign() > 0 {
		stableUsd, err := e.valuator.USDValue(e.params.StableAsset, stable, PriceSnapshot{})
		if err != nil {
			return nil, err
		}
		total.Add(total, stableUsd)
	}
	if wrapped.Sign() > 0 {
		snapshot, err := SnapshotFromOracle(e.oracle)
		if err != nil {
			return nil, err
		}
		wrappedUsd, err := e.valuator.USDValue(e.params.WrappedNative, wrapped, snapshot)
		if err != nil {
			return nil, err
		}
		total.Add(total, wrappedUsd)
	}
	return total, nil
}

// evaluation carries every figure computed for one redeem or quote call. The
// quote surface and the mutating path share it so their arithmetic can never
// diverge.
type evaluation struct {
	round          *Round
	snapshot       PriceSnapshot
	oracleUsed     bool
	inputTok       Token
	outputTok      Token
	grossUsd       *big.Int
	netUsd         *big.Int
	feeAmount      *big.Int
	netAmount      *big.Int
	outputAmount   *big.Int
	capacityBefore *big.Int
	capacityAfter  *big.Int
	whitelisted    bool
	roundActive    bool
	locked         bool
	lockUntil      int64
}

// evaluate runs the full precondition and valuation pipeline. In mutate mode
// every gate is enforced as an error and lazy ledger resets are persisted; in
// quote mode whitelist/activity/lock become reported flags and no state is
// touched.
func (e *Engine) evaluate(caller, inputToken [20]byte, amount *big.Int, outputToken [20]byte, proof [][32]byte, now time.Time, mutate bool) (*evaluation, error) {
	eval := &evaluation{}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	round, active, err := e.RoundActive(now)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrRoundNotInitialized
	}
	eval.round = round
	eval.roundActive = active
	if mutate && !active {
		if !round.Started(now.Unix()) {
			return nil, ErrRoundNotActive
		}
		return nil, ErrNoFunds
	}
	if mutate && e.params.Paused {
		return nil, ErrPaused
	}

	eval.whitelisted = VerifyProof(proof, e.params.MembershipRoot, AddressLeaf(caller))
	if mutate && !eval.whitelisted {
		return nil, ErrNotWhitelisted
	}

	supported := e.params.IsPayoutAsset(inputToken)
	if !supported {
		supported, err = e.registry.Contains(inputToken)
		if err != nil {
			return nil, err
		}
	}
	if !supported {
		return nil, ErrTokenNotSupported
	}
	if !e.params.IsPayoutAsset(outputToken) {
		return nil, ErrInvalidRedeemToken
	}

	locked, lockUntil, err := e.limits.HardLocked(caller, now)
	if err != nil {
		return nil, err
	}
	eval.locked = locked
	eval.lockUntil = lockUntil
	if mutate && locked {
		return nil, ErrDailyLimitLocked
	}

	if mutate {
		if err := e.limits.Resolve(round.ID, caller, now); err != nil {
			return nil, err
		}
	}

	// One snapshot per call; both valuations below reuse it.
	eval.oracleUsed = inputToken == e.params.WrappedNative || outputToken == e.params.WrappedNative
	if eval.oracleUsed {
		snapshot, err := SnapshotFromOracle(e.oracle)
		if err != nil {
			return nil, err
		}
		eval.snapshot = snapshot
	}

	eval.grossUsd, err = e.valuator.USDValue(inputToken, amount, eval.snapshot)
	if err != nil {
		return nil, err
	}

	var used *big.Int
	if mutate {
		used, err = e.limits.Used(round.ID, caller)
	} else {
		used, err = e.limits.EffectiveUsed(round.ID, caller, now)
	}
	if err != nil {
		return nil, err
	}
	eval.capacityBefore, eval.capacityAfter, err = e.limits.Check(used, eval.grossUsd, e.params.DailyCapUsd18)
	if err != nil {
		if !locked {
			return nil, err
		}
		// A locked quote reports exhausted capacity through the Locked flag
		// instead of the admission error.
		eval.capacityAfter = big.NewInt(0)
	}

	eval.feeAmount = FeeAmount(amount, round.LockedFeeRateBps)
	eval.netAmount = new(big.Int).Sub(amount, eval.feeAmount)
	eval.netUsd, err = e.valuator.USDValue(inputToken, eval.netAmount, eval.snapshot)
	if err != nil {
		return nil, err
	}
	eval.outputAmount, err = e.valuator.OutputAmount(eval.netUsd, outputToken, eval.snapshot)
	if err != nil {
		return nil, err
	}

	eval.inputTok, err = e.token(inputToken)
	if err != nil {
		return nil, err
	}
	eval.outputTok, err = e.token(outputToken)
	if err != nil {
		return nil, err
	}
	liquidity, err := eval.outputTok.BalanceOf(e.params.VaultAddress)
	if err != nil {
		return nil, err
	}
	if liquidity == nil || liquidity.Cmp(eval.outputAmount) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	return eval, nil
}

// Redeem executes the full redemption state transition: precondition gates,
// single-snapshot valuation, fee skim, payout, gross-USD cap accounting, and
// burn-or-sink of the net portion. Every settled step pushes its reversal onto
// a compensation stack, so any failure unwinds the call to a no-effect state.
// The irreversible destruction runs last, once only reversible work remains.
func (e *Engine) Redeem(caller, inputToken [20]byte, amount *big.Int, outputToken [20]byte, proof [][32]byte) (*RedemptionReceipt, error) {
	if e == nil {
		return nil, fmt.Errorf("vault engine not initialised")
	}
	if e.entered {
		return nil, ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()

	now := e.now()
	eval, err := e.evaluate(caller, inputToken, amount, outputToken, proof, now, true)
	if err != nil {
		return nil, err
	}

	receiptID, err := e.ledger.NextID()
	if err != nil {
		return nil, err
	}

	var undo []func() error
	abort := func(cause error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				cause = fmt.Errorf("%w (unwind: %v)", cause, uerr)
			}
		}
		return cause
	}

	if err := eval.inputTok.TransferFrom(caller, e.params.VaultAddress, amount); err != nil {
		return nil, fmt.Errorf("vault: pull input: %w", err)
	}
	undo = append(undo, func() error {
		return eval.inputTok.Transfer(caller, amount)
	})

	if eval.feeAmount.Sign() > 0 {
		if err := eval.inputTok.Transfer(e.params.FeeRecipient, eval.feeAmount); err != nil {
			return nil, abort(fmt.Errorf("vault: fee transfer: %w", err))
		}
		undo = append(undo, func() error {
			return eval.inputTok.TransferFrom(e.params.FeeRecipient, e.params.VaultAddress, eval.feeAmount)
		})
	}

	if eval.outputAmount.Sign() > 0 {
		if err := eval.outputTok.Transfer(caller, eval.outputAmount); err != nil {
			return nil, abort(fmt.Errorf("vault: payout transfer: %w", err))
		}
		undo = append(undo, func() error {
			return eval.outputTok.TransferFrom(caller, e.params.VaultAddress, eval.outputAmount)
		})
	}

	// The cap consumes the gross redemption size; the payout reflects net.
	prior, err := e.limits.state(eval.round.ID, caller)
	if err != nil {
		return nil, abort(err)
	}
	lockedNow, lockUntil, err := e.limits.Record(eval.round.ID, caller, eval.grossUsd, e.params.DailyCapUsd18, now)
	if err != nil {
		return nil, abort(err)
	}
	undo = append(undo, func() error {
		return e.limits.restore(eval.round.ID, caller, prior)
	})

	receipt := &RedemptionReceipt{
		ReceiptID:    receiptID,
		RoundID:      eval.round.ID,
		Wallet:       caller,
		InputToken:   inputToken,
		OutputToken:  outputToken,
		InputAmount:  cloneAmount(amount),
		FeeAmount:    eval.feeAmount,
		NetAmount:    eval.netAmount,
		OutputAmount: eval.outputAmount,
		GrossUsd:     eval.grossUsd,
		NetUsd:       eval.netUsd,
		CreatedAt:    now.Unix(),
	}
	if err := e.ledger.Put(receipt); err != nil {
		return nil, abort(err)
	}
	undo = append(undo, func() error {
		return e.ledger.Remove(receiptID)
	})

	outcome, err := burnOrSink(eval.inputTok, e.params.Sink, eval.netAmount)
	if err != nil {
		return nil, abort(err)
	}
	receipt.BurnMode = string(outcome.Mode)
	receipt.BurnReason = outcome.Reason
	if err := e.ledger.Update(receipt); err != nil {
		// Funds are settled at this point; only the burn tag is missing.
		slog.Error("vault: receipt burn tag not persisted",
			"receipt", receiptID,
			"err", err,
		)
	}

	if outcome.Mode == BurnModeSunk {
		slog.Warn("vault: burn fallback engaged",
			"token", fmt.Sprintf("%x", inputToken),
			"amount", eval.netAmount.String(),
			"reason", outcome.Reason,
		)
		e.emit(events.VaultBurnFallback{Token: inputToken, Amount: eval.netAmount, Reason: outcome.Reason})
	}
	e.emit(events.VaultRedeemed{
		RoundID:        eval.round.ID,
		Wallet:         caller,
		InputToken:     inputToken,
		OutputToken:    outputToken,
		InputAmount:    amount,
		FeeAmount:      eval.feeAmount,
		NetAmount:      eval.netAmount,
		OutputAmount:   eval.outputAmount,
		GrossUsd:       eval.grossUsd,
		NetUsd:         eval.netUsd,
		CapacityBefore: eval.capacityBefore,
		CapacityAfter:  eval.capacityAfter,
	})
	if lockedNow {
		e.emit(events.VaultWalletLocked{Wallet: caller, RoundID: eval.round.ID, LockUntil: lockUntil})
	}
	return receipt, nil
}
