package engine

import (
	"math/big"

	"synthengine/internal/oracle"
)

// Protocol constants. Threshold 50 over precision 100 counts half of raw
// collateral value toward solvency, which is the 200% overcollateralization
// requirement; bonus 10 over precision 100 is the liquidator's 10% incentive.
var (
	// Precision is the engine's 18-decimal fixed-point scale (1e18).
	Precision = new(big.Int).Set(oracle.Precision)

	// LiquidationThreshold is the percentage of collateral value counted
	// toward solvency.
	LiquidationThreshold = big.NewInt(50)

	// LiquidationPrecision is the denominator for threshold and bonus.
	LiquidationPrecision = big.NewInt(100)

	// LiquidationBonus is the extra collateral percentage awarded to a
	// liquidator above the debt value they cover.
	LiquidationBonus = big.NewInt(10)

	// MinHealthFactor is the solvency floor (1.0 in 18-decimal fixed point).
	MinHealthFactor = new(big.Int).Set(oracle.Precision)

	// MaxHealthFactor is the sentinel for a position with zero liability:
	// conceptually infinite, represented as 2^256 - 1 so it compares above
	// any reachable ratio.
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Constants is the fixed protocol parameter set exposed on the query surface.
type Constants struct {
	Precision            *big.Int `json:"precision"`
	LiquidationThreshold *big.Int `json:"liquidation_threshold"`
	LiquidationPrecision *big.Int `json:"liquidation_precision"`
	LiquidationBonus     *big.Int `json:"liquidation_bonus"`
	MinHealthFactor      *big.Int `json:"min_health_factor"`
}

// ProtocolConstants returns a copy of the fixed protocol parameters.
func ProtocolConstants() Constants {
	return Constants{
		Precision:            new(big.Int).Set(Precision),
		LiquidationThreshold: new(big.Int).Set(LiquidationThreshold),
		LiquidationPrecision: new(big.Int).Set(LiquidationPrecision),
		LiquidationBonus:     new(big.Int).Set(LiquidationBonus),
		MinHealthFactor:      new(big.Int).Set(MinHealthFactor),
	}
}

// HealthFactorFor computes the health factor for an arbitrary
// (liability, collateralValueUSD) pair, both in 18-decimal fixed point.
// Zero liability is maximally healthy; the ratio is never a division by zero.
func HealthFactorFor(liability, collateralValueUSD *big.Int) *big.Int {
	if liability == nil || liability.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}

	adjusted := new(big.Int).Mul(collateralValueUSD, LiquidationThreshold)
	adjusted.Quo(adjusted, LiquidationPrecision)

	hf := adjusted.Mul(adjusted, Precision)
	return hf.Quo(hf, liability)
}
