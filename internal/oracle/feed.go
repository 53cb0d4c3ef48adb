package oracle

import (
	"context"
	"fmt"
	"math/big"
)

// PriceFeed reports the current USD price of one asset.
// Feeds are external collaborators: every mutating operation fetches the
// price live and treats the answer as authoritative for that call.
type PriceFeed interface {
	// LatestPrice returns the price in the feed's native fixed-point
	// precision (Decimals fractional digits). Price may be reported as a
	// signed value by the upstream feed; callers must reject prices <= 0.
	LatestPrice(ctx context.Context) (*big.Int, error)

	// Decimals returns the feed's native fixed-point precision.
	Decimals() uint8
}

// StaticFeed is a PriceFeed with a fixed price, used by tests and dev mode.
type StaticFeed struct {
	price    *big.Int
	decimals uint8
}

func NewStaticFeed(price *big.Int, decimals uint8) *StaticFeed {
	return &StaticFeed{price: new(big.Int).Set(price), decimals: decimals}
}

// NewUSDFeed builds an 8-decimal feed quoting whole USD, the convention of
// Chainlink-style USD feeds (e.g. $2000 -> 2000e8).
func NewUSDFeed(usd int64) *StaticFeed {
	price := new(big.Int).Mul(big.NewInt(usd), big.NewInt(100_000_000))
	return &StaticFeed{price: price, decimals: 8}
}

func (f *StaticFeed) LatestPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.price), nil
}

func (f *StaticFeed) Decimals() uint8 { return f.decimals }

// SetPrice replaces the reported price. Not synchronized: test scenarios
// drive the feed from the same goroutine as the engine.
func (f *StaticFeed) SetPrice(price *big.Int) {
	f.price = new(big.Int).Set(price)
}

// SetUSDPrice replaces the reported price with a whole-USD quote.
func (f *StaticFeed) SetUSDPrice(usd int64) {
	f.price = new(big.Int).Mul(big.NewInt(usd), big.NewInt(100_000_000))
}

// FeedFunc adapts a function to the PriceFeed interface.
type FeedFunc struct {
	Fn        func(ctx context.Context) (*big.Int, error)
	Precision uint8
}

func (f FeedFunc) LatestPrice(ctx context.Context) (*big.Int, error) {
	return f.Fn(ctx)
}

func (f FeedFunc) Decimals() uint8 { return f.Precision }

// FailingFeed always returns an error. Tests use it to exercise oracle
// failure propagation.
type FailingFeed struct {
	Err error
}

func (f FailingFeed) LatestPrice(ctx context.Context) (*big.Int, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return nil, fmt.Errorf("feed unavailable")
}

func (f FailingFeed) Decimals() uint8 { return 8 }
