package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// AccountSummary is a point-in-time view of one user's position.
type AccountSummary struct {
	UserID             uuid.UUID           `json:"user_id"`
	Liability          *big.Int            `json:"liability"`
	Collateral         map[string]*big.Int `json:"collateral"`
	CollateralValueUSD *big.Int            `json:"collateral_value_usd"`
	HealthFactor       *big.Int            `json:"health_factor"`
}

// HealthFactor returns the user's current health factor.
func (e *Engine) HealthFactor(ctx context.Context, userID uuid.UUID) (*big.Int, error) {
	return e.projectedHealth(ctx, userID, "", nil, nil)
}

// Summary returns the user's liability, per-asset collateral, total
// collateral value, and health factor as one consistent snapshot.
func (e *Engine) Summary(ctx context.Context, userID uuid.UUID) (*AccountSummary, error) {
	assets := e.registry.Assets()

	e.stateMu.RLock()
	debt := e.book.DebtBalance(userID)
	balances := make(map[string]*big.Int, len(assets))
	for _, a := range assets {
		balances[a] = e.book.CollateralBalance(userID, a)
	}
	e.stateMu.RUnlock()

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

	return &AccountSummary{
		UserID:             userID,
		Liability:          debt,
		Collateral:         balances,
		CollateralValueUSD: totalUSD,
		HealthFactor:       HealthFactorFor(debt, totalUSD),
	}, nil
}

// CollateralBalance returns the user's deposited amount of one asset.
func (e *Engine) CollateralBalance(userID uuid.UUID, asset string) (*big.Int, error) {
	if !e.registry.IsAllowed(asset) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset)
	}
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.book.CollateralBalance(userID, asset), nil
}

// DebtBalance returns the user's outstanding liability.
func (e *Engine) DebtBalance(userID uuid.UUID) *big.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.book.DebtBalance(userID)
}

// TotalLiability returns the system-wide outstanding liability.
func (e *Engine) TotalLiability() *big.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.book.TotalMinted()
}

// Assets returns the allowed collateral assets in registration order.
func (e *Engine) Assets() []string {
	return e.registry.Assets()
}

// Sequence returns the next operation sequence the engine will assign.
func (e *Engine) Sequence() int64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.seq
}

// ValueInUSD converts an asset amount to its 18-decimal USD value at the
// current oracle price.
func (e *Engine) ValueInUSD(ctx context.Context, asset string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return e.valueInUSD(ctx, asset, amount)
}

// AmountFromUSD converts an 18-decimal USD value to asset native units at
// the current oracle price.
func (e *Engine) AmountFromUSD(ctx context.Context, asset string, usdValue *big.Int) (*big.Int, error) {
	if usdValue == nil || usdValue.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return e.amountFromUSD(ctx, asset, usdValue)
}
