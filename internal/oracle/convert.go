package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// The engine works in 18-decimal fixed point internally. Feed prices arrive
// in the feed's native precision (8 decimals for the standard USD feeds) and
// are normalized up to 18 decimals before use.
const engineDecimals = 18

// Precision is the engine's internal fixed-point scale (1e18).
var Precision = exp10(engineDecimals)

// ErrInvalidPrice is returned when a feed reports a price <= 0.
var ErrInvalidPrice = errors.New("oracle reported non-positive price")

// Converter turns asset amounts into USD values and back through the
// registry's price feeds. All arithmetic is exact integer math; the only
// loss is integer-division truncation.
type Converter struct {
	registry *Registry
}

func NewConverter(registry *Registry) *Converter {
	return &Converter{registry: registry}
}

// fetchPrice returns the feed price normalized to 18 decimals.
func (c *Converter) fetchPrice(ctx context.Context, asset string) (*big.Int, error) {
	feed, err := c.registry.Feed(asset)
	if err != nil {
		return nil, err
	}

	price, err := feed.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("price feed for %s: %w", asset, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: asset %s price %v", ErrInvalidPrice, asset, price)
	}

	decimals := feed.Decimals()
	if decimals > engineDecimals {
		return nil, fmt.Errorf("feed for %s reports %d decimals, max %d", asset, decimals, engineDecimals)
	}

	// Normalize: price * 10^(18 - feedDecimals)
	return new(big.Int).Mul(price, exp10(engineDecimals-int(decimals))), nil
}

// ValueInUSD converts an asset amount (native smallest units) to its USD
// value in 18-decimal fixed point: amount * normalizedPrice / 1e18.
func (c *Converter) ValueInUSD(ctx context.Context, asset string, amount *big.Int) (*big.Int, error) {
	price, err := c.fetchPrice(ctx, asset)
	if err != nil {
		return nil, err
	}

	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, Precision), nil
}

// AmountFromUSD is the exact inverse of ValueInUSD modulo truncation:
// usdValue * 1e18 / normalizedPrice, in asset native smallest units.
func (c *Converter) AmountFromUSD(ctx context.Context, asset string, usdValue *big.Int) (*big.Int, error) {
	price, err := c.fetchPrice(ctx, asset)
	if err != nil {
		return nil, err
	}

	amount := new(big.Int).Mul(usdValue, Precision)
	return amount.Quo(amount, price), nil
}

func exp10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
