// Package engine implements the collateral and solvency core: deposits,
// redemptions, liability mint/burn, and liquidation of undercollateralized
// positions. Every mutating operation runs under a try-acquire guard, stages
// its external token movements before touching the ledger, and commits a
// balanced journal batch only once every movement has succeeded.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"synthengine/internal/event"
	"synthengine/internal/ledger"
	"synthengine/internal/observability"
	"synthengine/internal/oracle"
	"synthengine/internal/token"
)

// Config wires an Engine. Registry, Liability, Collateral, and Metrics are
// required; PersistCh and PublishCh may be nil in tests.
type Config struct {
	Registry   *oracle.Registry
	Liability  token.LiabilityToken
	Collateral token.CollateralAssets

	// CustodyID identifies the engine on the external token ledgers. All
	// pulled collateral and all liability awaiting burn sit under this
	// identity.
	CustodyID uuid.UUID

	StartSequence int64

	// Bootstrap seeds the book from a journal replay on restart.
	Bootstrap map[ledger.AccountKey]*big.Int

	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// PersistCh receives every committed output; sends block because the
	// audit trail must not lose records.
	PersistCh chan<- Output

	// PublishCh receives committed outputs best-effort; a full channel
	// drops the send and bumps a counter.
	PublishCh chan<- Output

	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// Engine is the single-writer solvency core. Mutations are serialized by the
// guard; reads take the state lock and always observe a fully committed book.
type Engine struct {
	registry   *oracle.Registry
	converter  *oracle.Converter
	liability  token.LiabilityToken
	collateral token.CollateralAssets
	custodyID  uuid.UUID

	guard   guard
	stateMu sync.RWMutex
	book    *ledger.Book
	gen     *ledger.Generator
	seq     int64

	clock     func() time.Time
	log       zerolog.Logger
	metrics   *observability.Metrics
	persistCh chan<- Output
	publishCh chan<- Output
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine config: nil collateral registry")
	}
	if cfg.Liability == nil {
		return nil, fmt.Errorf("engine config: nil liability token")
	}
	if cfg.Collateral == nil {
		return nil, fmt.Errorf("engine config: nil collateral assets")
	}
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("engine config: nil metrics")
	}
	if cfg.CustodyID == uuid.Nil {
		cfg.CustodyID = uuid.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	book := ledger.NewBook()
	for key, balance := range cfg.Bootstrap {
		book.SetBalance(key, balance)
	}

	return &Engine{
		registry:   cfg.Registry,
		converter:  oracle.NewConverter(cfg.Registry),
		liability:  cfg.Liability,
		collateral: cfg.Collateral,
		custodyID:  cfg.CustodyID,
		book:       book,
		gen:        ledger.NewGenerator(cfg.StartSequence, book),
		seq:        cfg.StartSequence,
		clock:      cfg.Clock,
		log:        cfg.Logger.With().Str("component", "engine").Logger(),
		metrics:    cfg.Metrics,
		persistCh:  cfg.PersistCh,
		publishCh:  cfg.PublishCh,
	}, nil
}

// CustodyID returns the engine's identity on the external token ledgers.
func (e *Engine) CustodyID() uuid.UUID { return e.custodyID }

// ---------------------------------------------------------------------------
// Mutating operations
// ---------------------------------------------------------------------------

// Deposit pulls amount of asset from the user into custody and credits the
// user's collateral account. Depositing never lowers a health factor, so no
// solvency check runs.
func (e *Engine) Deposit(ctx context.Context, userID uuid.UUID, asset string, amount *big.Int) (uuid.UUID, error) {
	const op = "deposit"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	if err := e.validateInput(op, asset, amount); err != nil {
		return uuid.Nil, err
	}

	opID := uuid.New()
	if err := e.collateral.TransferFrom(ctx, asset, userID, e.custodyID, amount); err != nil {
		e.reject(op, "transfer")
		return uuid.Nil, fmt.Errorf("pull %s collateral: %w: %v", asset, ErrTransferFailed, err)
	}

	ts := e.clock()
	batch, err := e.gen.Deposit(userID, opID.String(), asset, amount, ts.UnixNano())
	if err != nil {
		// Collateral is already in custody; a generator failure here is a
		// programming error, not a recoverable condition.
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfer")
	}

	e.commit(batch, &event.CollateralDeposited{
		OperationID: opID,
		UserID:      userID,
		Asset:       asset,
		Amount:      new(big.Int).Set(amount),
	}, ts)

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.log.Info().
		Str("user", userID.String()).
		Str("asset", asset).
		Str("amount", amount.String()).
		Int64("seq", batch.Sequence).
		Msg("collateral deposited")
	return opID, nil
}

// Redeem releases amount of asset from the user's collateral back to their
// wallet, provided the position stays solvent afterwards.
func (e *Engine) Redeem(ctx context.Context, userID uuid.UUID, asset string, amount *big.Int) (uuid.UUID, error) {
	const op = "redeem"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	opID, batch, err := e.redeemLocked(ctx, op, uuid.New(), userID, asset, amount)
	if err != nil {
		return uuid.Nil, err
	}

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.log.Info().
		Str("user", userID.String()).
		Str("asset", asset).
		Str("amount", amount.String()).
		Int64("seq", batch.Sequence).
		Msg("collateral redeemed")
	return opID, nil
}

// Mint issues amount liability to the user, provided the resulting position
// stays above the minimum health factor.
func (e *Engine) Mint(ctx context.Context, userID uuid.UUID, amount *big.Int) (uuid.UUID, error) {
	const op = "mint"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	opID, batch, hf, err := e.mintLocked(ctx, op, uuid.New(), userID, amount)
	if err != nil {
		return uuid.Nil, err
	}

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.log.Info().
		Str("user", userID.String()).
		Str("amount", amount.String()).
		Str("health_factor", hf.String()).
		Int64("seq", batch.Sequence).
		Msg("liability minted")
	return opID, nil
}

// Burn repays amount of the user's liability: the tokens are pulled into
// custody, destroyed, and the debt account reduced. Burning never lowers a
// health factor, but the position must be solvent after the repayment; an
// underwater position accepts only full repayment or liquidation.
func (e *Engine) Burn(ctx context.Context, userID uuid.UUID, amount *big.Int) (uuid.UUID, error) {
	const op = "burn"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	opID, batch, err := e.burnLocked(ctx, op, uuid.New(), userID, userID, amount)
	if err != nil {
		return uuid.Nil, err
	}

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.log.Info().
		Str("user", userID.String()).
		Str("amount", amount.String()).
		Int64("seq", batch.Sequence).
		Msg("liability burned")
	return opID, nil
}

// DepositAndMint performs a deposit and a mint as one atomic position change.
// The solvency check runs against the combined result, so collateral and
// liability that only balance together are accepted together. If the mint
// leg fails the pulled collateral is returned and nothing commits.
func (e *Engine) DepositAndMint(ctx context.Context, userID uuid.UUID, asset string, depositAmount, mintAmount *big.Int) (uuid.UUID, error) {
	const op = "deposit_and_mint"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	if err := e.validateInput(op, asset, depositAmount); err != nil {
		return uuid.Nil, err
	}
	if err := e.validateAmount(op, mintAmount); err != nil {
		return uuid.Nil, err
	}

	hf, err := e.projectedHealth(ctx, userID, asset, depositAmount, mintAmount)
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, err
	}
	if hf.Cmp(MinHealthFactor) < 0 {
		e.reject(op, "solvency")
		e.metrics.SolvencyRejections.WithLabelValues(op).Inc()
		return uuid.Nil, &SolvencyError{HealthFactor: hf}
	}

	opID := uuid.New()
	if err := e.collateral.TransferFrom(ctx, asset, userID, e.custodyID, depositAmount); err != nil {
		e.reject(op, "transfer")
		return uuid.Nil, fmt.Errorf("pull %s collateral: %w: %v", asset, ErrTransferFailed, err)
	}
	if err := e.liability.Mint(ctx, userID, mintAmount); err != nil {
		// Unwind the deposit leg so the caller loses nothing.
		if pushErr := e.collateral.Transfer(ctx, asset, userID, depositAmount); pushErr != nil {
			e.log.Error().Err(pushErr).
				Str("user", userID.String()).
				Str("asset", asset).
				Msg("collateral refund failed after mint failure; funds stranded in custody")
		}
		e.reject(op, "mint")
		return uuid.Nil, fmt.Errorf("issue liability: %w: %v", ErrMintFailed, err)
	}

	ts := e.clock()
	depositBatch, err := e.gen.Deposit(userID, opID.String(), asset, depositAmount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfers")
	}
	e.commit(depositBatch, &event.CollateralDeposited{
		OperationID: opID,
		UserID:      userID,
		Asset:       asset,
		Amount:      new(big.Int).Set(depositAmount),
	}, ts)

	mintBatch, err := e.gen.Mint(userID, opID.String(), mintAmount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfers")
	}
	e.commit(mintBatch, &event.DebtMinted{
		OperationID:  opID,
		UserID:       userID,
		Amount:       new(big.Int).Set(mintAmount),
		HealthFactor: hf,
	}, ts)

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.log.Info().
		Str("user", userID.String()).
		Str("asset", asset).
		Str("deposited", depositAmount.String()).
		Str("minted", mintAmount.String()).
		Str("health_factor", hf.String()).
		Int64("seq", mintBatch.Sequence).
		Msg("collateral deposited and liability minted")
	return opID, nil
}

// RedeemForBurn repays liability and withdraws collateral as one atomic
// position change, checked against the combined result. The burn leg runs
// first so the freed collateral is measured against the reduced debt.
func (e *Engine) RedeemForBurn(ctx context.Context, userID uuid.UUID, asset string, redeemAmount, burnAmount *big.Int) (uuid.UUID, error) {
	const op = "redeem_for_burn"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	if err := e.validateInput(op, asset, redeemAmount); err != nil {
		return uuid.Nil, err
	}
	if err := e.validateAmount(op, burnAmount); err != nil {
		return uuid.Nil, err
	}

	e.stateMu.RLock()
	debt := e.book.DebtBalance(userID)
	collateral := e.book.CollateralBalance(userID, asset)
	e.stateMu.RUnlock()

	if debt.Cmp(burnAmount) < 0 {
		e.reject(op, "insufficient_debt")
		return uuid.Nil, fmt.Errorf("%w: have %s, burning %s", ErrInsufficientDebt, debt, burnAmount)
	}
	if collateral.Cmp(redeemAmount) < 0 {
		e.reject(op, "insufficient_collateral")
		return uuid.Nil, fmt.Errorf("%w: have %s %s, redeeming %s", ErrInsufficientCollateral, collateral, asset, redeemAmount)
	}

	hf, err := e.projectedHealth(ctx, userID, asset,
		new(big.Int).Neg(redeemAmount), new(big.Int).Neg(burnAmount))
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, err
	}
	if hf.Cmp(MinHealthFactor) < 0 {
		e.reject(op, "solvency")
		e.metrics.SolvencyRejections.WithLabelValues(op).Inc()
		return uuid.Nil, &SolvencyError{HealthFactor: hf}
	}

	id := uuid.New()
	if err := e.pullAndBurn(ctx, op, userID, burnAmount); err != nil {
		return uuid.Nil, err
	}
	if err := e.collateral.Transfer(ctx, asset, userID, redeemAmount); err != nil {
		// Re-issue the burned liability so the position is exactly as before.
		if mintErr := e.liability.Mint(ctx, userID, burnAmount); mintErr != nil {
			e.log.Error().Err(mintErr).
				Str("user", userID.String()).
				Msg("liability re-issue failed after redemption failure; position understates debt off-ledger")
		}
		e.reject(op, "transfer")
		return uuid.Nil, fmt.Errorf("release %s collateral: %w: %v", asset, ErrTransferFailed, err)
	}

	ts := e.clock()
	burnBatch, err := e.gen.Burn(userID, id.String(), burnAmount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfers")
	}
	e.commit(burnBatch, &event.DebtBurned{
		OperationID: id,
		UserID:      userID,
		Amount:      new(big.Int).Set(burnAmount),
	}, ts)

	redeemBatch, err := e.gen.Redemption(userID, id.String(), asset, redeemAmount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfers")
	}
	e.commit(redeemBatch, &event.CollateralRedeemed{
		OperationID: id,
		UserID:      userID,
		Asset:       asset,
		Amount:      new(big.Int).Set(redeemAmount),
	}, ts)

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.log.Info().
		Str("user", userID.String()).
		Str("asset", asset).
		Str("burned", burnAmount.String()).
		Str("redeemed", redeemAmount.String()).
		Int64("seq", redeemBatch.Sequence).
		Msg("liability burned and collateral redeemed")
	return id, nil
}

// Liquidate lets a solvent liquidator repay debtToCover of an insolvent
// target's liability in exchange for the equivalent collateral plus a 10%
// bonus, seized from the target. The liquidation must leave the target
// strictly healthier than before.
func (e *Engine) Liquidate(ctx context.Context, liquidatorID, targetID uuid.UUID, asset string, debtToCover *big.Int) (uuid.UUID, error) {
	const op = "liquidate"
	defer e.timed(op)()

	if err := e.guard.acquire(); err != nil {
		e.reject(op, "reentrant")
		return uuid.Nil, err
	}
	defer e.guard.release()

	if err := e.validateInput(op, asset, debtToCover); err != nil {
		return uuid.Nil, err
	}

	e.stateMu.RLock()
	targetDebt := e.book.DebtBalance(targetID)
	targetCollateral := e.book.CollateralBalance(targetID, asset)
	e.stateMu.RUnlock()

	if targetDebt.Cmp(debtToCover) < 0 {
		e.reject(op, "insufficient_debt")
		e.metrics.LiquidationsRejected.WithLabelValues("insufficient_debt").Inc()
		return uuid.Nil, fmt.Errorf("%w: target owes %s, covering %s", ErrInsufficientDebt, targetDebt, debtToCover)
	}

	hfBefore, err := e.projectedHealth(ctx, targetID, "", nil, nil)
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, err
	}
	if hfBefore.Cmp(MinHealthFactor) >= 0 {
		e.reject(op, "healthy_target")
		e.metrics.LiquidationsRejected.WithLabelValues("healthy_target").Inc()
		return uuid.Nil, fmt.Errorf("%w: target at %s", ErrHealthFactorOK, hfBefore)
	}

	seizedBase, err := e.amountFromUSD(ctx, asset, debtToCover)
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, err
	}
	bonus := new(big.Int).Mul(seizedBase, LiquidationBonus)
	bonus.Quo(bonus, LiquidationPrecision)
	seized := new(big.Int).Add(seizedBase, bonus)

	if targetCollateral.Cmp(seized) < 0 {
		e.reject(op, "insufficient_collateral")
		e.metrics.LiquidationsRejected.WithLabelValues("insufficient_collateral").Inc()
		return uuid.Nil, fmt.Errorf("%w: target holds %s %s, seizure needs %s",
			ErrInsufficientCollateral, targetCollateral, asset, seized)
	}

	hfAfter, err := e.projectedHealth(ctx, targetID, asset,
		new(big.Int).Neg(seized), new(big.Int).Neg(debtToCover))
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, err
	}
	if hfAfter.Cmp(hfBefore) <= 0 {
		e.reject(op, "not_improved")
		e.metrics.LiquidationsRejected.WithLabelValues("not_improved").Inc()
		return uuid.Nil, fmt.Errorf("%w: %s -> %s", ErrHealthFactorNotImproved, hfBefore, hfAfter)
	}

	hfLiquidator, err := e.projectedHealth(ctx, liquidatorID, "", nil, nil)
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, err
	}
	if hfLiquidator.Cmp(MinHealthFactor) < 0 {
		e.reject(op, "solvency")
		e.metrics.SolvencyRejections.WithLabelValues(op).Inc()
		return uuid.Nil, &SolvencyError{HealthFactor: hfLiquidator}
	}

	id := uuid.New()
	if err := e.pullAndBurn(ctx, op, liquidatorID, debtToCover); err != nil {
		return uuid.Nil, err
	}
	if err := e.collateral.Transfer(ctx, asset, liquidatorID, seized); err != nil {
		if mintErr := e.liability.Mint(ctx, liquidatorID, debtToCover); mintErr != nil {
			e.log.Error().Err(mintErr).
				Str("liquidator", liquidatorID.String()).
				Msg("liability re-issue failed after seizure failure; liquidator shorted off-ledger")
		}
		e.reject(op, "transfer")
		return uuid.Nil, fmt.Errorf("release seized %s: %w: %v", asset, ErrTransferFailed, err)
	}

	ts := e.clock()
	batch, err := e.gen.Liquidation(targetID, id.String(), asset, seized, debtToCover, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfers")
	}
	e.commit(batch, &event.PositionLiquidated{
		OperationID:  id,
		LiquidatorID: liquidatorID,
		TargetID:     targetID,
		Asset:        asset,
		DebtCovered:  new(big.Int).Set(debtToCover),
		SeizedAmount: seized,
		Bonus:        bonus,
		HealthBefore: hfBefore,
		HealthAfter:  hfAfter,
	}, ts)

	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.LiquidationsApplied.WithLabelValues(asset).Inc()
	e.log.Info().
		Str("liquidator", liquidatorID.String()).
		Str("target", targetID.String()).
		Str("asset", asset).
		Str("debt_covered", debtToCover.String()).
		Str("seized", seized.String()).
		Str("hf_before", hfBefore.String()).
		Str("hf_after", hfAfter.String()).
		Int64("seq", batch.Sequence).
		Msg("position liquidated")
	return id, nil
}

// ---------------------------------------------------------------------------
// Operation internals
// ---------------------------------------------------------------------------

func (e *Engine) validateAmount(op string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		e.reject(op, "invalid_amount")
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) validateInput(op, asset string, amount *big.Int) error {
	if err := e.validateAmount(op, amount); err != nil {
		return err
	}
	if !e.registry.IsAllowed(asset) {
		e.reject(op, "asset_not_allowed")
		return fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset)
	}
	return nil
}

// redeemLocked runs the shared redemption path: sufficiency check, projected
// solvency, external release, journal commit. Caller holds the guard.
func (e *Engine) redeemLocked(ctx context.Context, op string, id, userID uuid.UUID, asset string, amount *big.Int) (uuid.UUID, *ledger.Batch, error) {
	if err := e.validateInput(op, asset, amount); err != nil {
		return uuid.Nil, nil, err
	}

	e.stateMu.RLock()
	balance := e.book.CollateralBalance(userID, asset)
	e.stateMu.RUnlock()
	if balance.Cmp(amount) < 0 {
		e.reject(op, "insufficient_collateral")
		return uuid.Nil, nil, fmt.Errorf("%w: have %s %s, redeeming %s", ErrInsufficientCollateral, balance, asset, amount)
	}

	hf, err := e.projectedHealth(ctx, userID, asset, new(big.Int).Neg(amount), nil)
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, nil, err
	}
	if hf.Cmp(MinHealthFactor) < 0 {
		e.reject(op, "solvency")
		e.metrics.SolvencyRejections.WithLabelValues(op).Inc()
		return uuid.Nil, nil, &SolvencyError{HealthFactor: hf}
	}

	if err := e.collateral.Transfer(ctx, asset, userID, amount); err != nil {
		e.reject(op, "transfer")
		return uuid.Nil, nil, fmt.Errorf("release %s collateral: %w: %v", asset, ErrTransferFailed, err)
	}

	ts := e.clock()
	batch, err := e.gen.Redemption(userID, id.String(), asset, amount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external transfer")
	}
	e.commit(batch, &event.CollateralRedeemed{
		OperationID: id,
		UserID:      userID,
		Asset:       asset,
		Amount:      new(big.Int).Set(amount),
	}, ts)
	return id, batch, nil
}

// mintLocked runs the shared mint path. Caller holds the guard.
func (e *Engine) mintLocked(ctx context.Context, op string, id, userID uuid.UUID, amount *big.Int) (uuid.UUID, *ledger.Batch, *big.Int, error) {
	if err := e.validateAmount(op, amount); err != nil {
		return uuid.Nil, nil, nil, err
	}

	hf, err := e.projectedHealth(ctx, userID, "", nil, amount)
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, nil, nil, err
	}
	if hf.Cmp(MinHealthFactor) < 0 {
		e.reject(op, "solvency")
		e.metrics.SolvencyRejections.WithLabelValues(op).Inc()
		return uuid.Nil, nil, nil, &SolvencyError{HealthFactor: hf}
	}

	if err := e.liability.Mint(ctx, userID, amount); err != nil {
		e.reject(op, "mint")
		return uuid.Nil, nil, nil, fmt.Errorf("issue liability: %w: %v", ErrMintFailed, err)
	}

	ts := e.clock()
	batch, err := e.gen.Mint(userID, id.String(), amount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external mint")
	}
	e.commit(batch, &event.DebtMinted{
		OperationID:  id,
		UserID:       userID,
		Amount:       new(big.Int).Set(amount),
		HealthFactor: hf,
	}, ts)
	return id, batch, hf, nil
}

// burnLocked runs the shared burn path for the debtor's own repayment.
// Caller holds the guard.
func (e *Engine) burnLocked(ctx context.Context, op string, id, debtorID, payerID uuid.UUID, amount *big.Int) (uuid.UUID, *ledger.Batch, error) {
	if err := e.validateAmount(op, amount); err != nil {
		return uuid.Nil, nil, err
	}

	e.stateMu.RLock()
	debt := e.book.DebtBalance(debtorID)
	e.stateMu.RUnlock()
	if debt.Cmp(amount) < 0 {
		e.reject(op, "insufficient_debt")
		return uuid.Nil, nil, fmt.Errorf("%w: have %s, burning %s", ErrInsufficientDebt, debt, amount)
	}

	// Repayment only raises the health factor, so this rejects exactly the
	// positions that stay underwater after the burn. Those must go through
	// liquidation instead of committing in an insolvent state.
	hf, err := e.projectedHealth(ctx, debtorID, "", nil, new(big.Int).Neg(amount))
	if err != nil {
		e.reject(op, "oracle")
		return uuid.Nil, nil, err
	}
	if hf.Cmp(MinHealthFactor) < 0 {
		e.reject(op, "solvency")
		e.metrics.SolvencyRejections.WithLabelValues(op).Inc()
		return uuid.Nil, nil, &SolvencyError{HealthFactor: hf}
	}

	if err := e.pullAndBurn(ctx, op, payerID, amount); err != nil {
		return uuid.Nil, nil, err
	}

	ts := e.clock()
	batch, err := e.gen.Burn(debtorID, id.String(), amount, ts.UnixNano())
	if err != nil {
		e.log.Panic().Err(err).Str("op", op).Msg("journal generation failed after external burn")
	}
	e.commit(batch, &event.DebtBurned{
		OperationID: id,
		UserID:      debtorID,
		Amount:      new(big.Int).Set(amount),
	}, ts)
	return id, batch, nil
}

// pullAndBurn moves amount liability from payer into custody and destroys
// it. If the burn fails the tokens are handed back.
func (e *Engine) pullAndBurn(ctx context.Context, op string, payerID uuid.UUID, amount *big.Int) error {
	if err := e.liability.TransferFrom(ctx, payerID, e.custodyID, amount); err != nil {
		e.reject(op, "transfer")
		return fmt.Errorf("pull liability: %w: %v", ErrTransferFailed, err)
	}
	if err := e.liability.Burn(ctx, amount); err != nil {
		if backErr := e.liability.TransferFrom(ctx, e.custodyID, payerID, amount); backErr != nil {
			e.log.Error().Err(backErr).
				Str("payer", payerID.String()).
				Msg("liability return failed after burn failure; tokens stranded in custody")
		}
		e.reject(op, "burn")
		return fmt.Errorf("destroy liability: %w: %v", ErrTransferFailed, err)
	}
	return nil
}

// commit applies a validated batch, advances the sequence, and fans the
// committed output out to persistence (blocking) and publishing (lossy).
func (e *Engine) commit(batch *ledger.Batch, payload event.Event, ts time.Time) {
	e.stateMu.Lock()
	if err := e.book.ApplyBatch(batch); err != nil {
		e.stateMu.Unlock()
		e.log.Panic().Err(err).Int64("seq", batch.Sequence).Msg("batch rejected at commit")
	}
	e.postCheckInvariants(batch)
	e.seq = batch.Sequence + 1
	totalLiability := e.book.TotalMinted()
	e.stateMu.Unlock()

	e.metrics.EngineSequence.Set(float64(batch.Sequence))
	liabilityApprox, _ := new(big.Float).SetInt(totalLiability).Float64()
	e.metrics.TotalLiability.Set(liabilityApprox)

	out := Output{
		Envelope: event.Envelope{
			Sequence:       batch.Sequence,
			IdempotencyKey: payload.IdempotencyKey(),
			EventType:      payload.EventType(),
			Asset:          payload.AssetCode(),
			Timestamp:      ts,
		},
		Payload: payload,
		Batch:   *batch,
	}

	if e.persistCh != nil {
		e.persistCh <- out
	}
	if e.publishCh != nil {
		select {
		case e.publishCh <- out:
		default:
			e.metrics.PublishDrops.Inc()
			e.log.Warn().Int64("seq", batch.Sequence).Msg("publish channel full, event dropped")
		}
	}
}

// postCheckInvariants verifies that no user account touched by the batch
// went negative and the book stayed zero-sum. A violation means the
// operation pre-checks are wrong; the process halts rather than serve
// corrupt balances.
func (e *Engine) postCheckInvariants(batch *ledger.Batch) {
	for _, j := range batch.Journals {
		for _, key := range []ledger.AccountKey{j.DebitAccount, j.CreditAccount} {
			if key.Scope != ledger.AccountScopeUser {
				continue
			}
			if err := e.book.ValidateUserNonNegative(key); err != nil {
				e.log.Panic().Err(err).Int64("seq", batch.Sequence).Msg("ledger invariant violated")
			}
		}
	}
	for asset, total := range e.book.ComputeGlobalBalance() {
		if total.Sign() != 0 {
			e.log.Panic().
				Str("asset", asset).
				Str("total", total.String()).
				Int64("seq", batch.Sequence).
				Msg("book is not zero-sum")
		}
	}
}

// ---------------------------------------------------------------------------
// Solvency math
// ---------------------------------------------------------------------------

// projectedHealth computes a user's health factor with optional deltas
// applied to one collateral asset and to the liability, without mutating
// state. Balances are snapshotted under the read lock; oracle calls run
// outside it.
func (e *Engine) projectedHealth(ctx context.Context, userID uuid.UUID, asset string, collateralDelta, debtDelta *big.Int) (*big.Int, error) {
	assets := e.registry.Assets()

	e.stateMu.RLock()
	debt := e.book.DebtBalance(userID)
	balances := make(map[string]*big.Int, len(assets))
	for _, a := range assets {
		balances[a] = e.book.CollateralBalance(userID, a)
	}
	e.stateMu.RUnlock()

	if debtDelta != nil {
		debt.Add(debt, debtDelta)
	}
	if collateralDelta != nil {
		balances[asset].Add(balances[asset], collateralDelta)
	}

	totalUSD := new(big.Int)
	for _, a := range assets {
		if balances[a].Sign() == 0 {
			continue
		}
		value, err := e.valueInUSD(ctx, a, balances[a])
		if err != nil {
			return nil, err
		}
		totalUSD.Add(totalUSD, value)
	}

	return HealthFactorFor(debt, totalUSD), nil
}

func (e *Engine) valueInUSD(ctx context.Context, asset string, amount *big.Int) (*big.Int, error) {
	e.metrics.OracleCalls.WithLabelValues(asset).Inc()
	value, err := e.converter.ValueInUSD(ctx, asset, amount)
	if err != nil {
		e.metrics.OracleErrors.WithLabelValues(asset).Inc()
	}
	return value, err
}

func (e *Engine) amountFromUSD(ctx context.Context, asset string, usdValue *big.Int) (*big.Int, error) {
	e.metrics.OracleCalls.WithLabelValues(asset).Inc()
	amount, err := e.converter.AmountFromUSD(ctx, asset, usdValue)
	if err != nil {
		e.metrics.OracleErrors.WithLabelValues(asset).Inc()
	}
	return amount, err
}

func (e *Engine) timed(op string) func() {
	start := time.Now()
	return func() {
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) reject(op, reason string) {
	e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
}
