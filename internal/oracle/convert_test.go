package oracle_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"synthengine/internal/oracle"
)

func newConverter(t *testing.T, feed oracle.PriceFeed) *oracle.Converter {
	t.Helper()
	registry, err := oracle.NewRegistry([]string{"WETH"}, []oracle.PriceFeed{feed})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return oracle.NewConverter(registry)
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oracle.Precision)
}

func TestValueInUSDAtWholePrice(t *testing.T) {
	c := newConverter(t, oracle.NewUSDFeed(2000))

	value, err := c.ValueInUSD(context.Background(), "WETH", units(15))
	if err != nil {
		t.Fatalf("ValueInUSD: %v", err)
	}
	if value.Cmp(units(30000)) != 0 {
		t.Fatalf("15 WETH at $2000: got %s, want %s", value, units(30000))
	}
}

func TestValueInUSDNormalizesFeedDecimals(t *testing.T) {
	// The same $2000 quote at three different feed precisions must value
	// identically.
	for _, tc := range []struct {
		price    int64
		decimals uint8
	}{
		{2000, 0},
		{2000_00000000, 8},
		{2000_000000000000, 12},
	} {
		c := newConverter(t, oracle.NewStaticFeed(big.NewInt(tc.price), tc.decimals))
		value, err := c.ValueInUSD(context.Background(), "WETH", units(3))
		if err != nil {
			t.Fatalf("decimals=%d: %v", tc.decimals, err)
		}
		if value.Cmp(units(6000)) != 0 {
			t.Fatalf("decimals=%d: got %s, want %s", tc.decimals, value, units(6000))
		}
	}
}

func TestAmountFromUSDInvertsValue(t *testing.T) {
	c := newConverter(t, oracle.NewUSDFeed(2000))

	amount, err := c.AmountFromUSD(context.Background(), "WETH", units(100))
	if err != nil {
		t.Fatalf("AmountFromUSD: %v", err)
	}
	want := new(big.Int).Quo(oracle.Precision, big.NewInt(20)) // 0.05 WETH
	if amount.Cmp(want) != 0 {
		t.Fatalf("$100 at $2000: got %s, want %s", amount, want)
	}
}

func TestRejectsNonPositivePrice(t *testing.T) {
	for _, price := range []int64{0, -1} {
		c := newConverter(t, oracle.NewStaticFeed(big.NewInt(price), 8))
		if _, err := c.ValueInUSD(context.Background(), "WETH", units(1)); !errors.Is(err, oracle.ErrInvalidPrice) {
			t.Fatalf("price %d: expected ErrInvalidPrice, got %v", price, err)
		}
	}
}

func TestRejectsOversizedFeedDecimals(t *testing.T) {
	c := newConverter(t, oracle.NewStaticFeed(big.NewInt(1), 19))
	if _, err := c.ValueInUSD(context.Background(), "WETH", units(1)); err == nil {
		t.Fatal("expected error for 19-decimal feed")
	}
}

func TestFeedFailurePropagates(t *testing.T) {
	feedErr := errors.New("upstream timeout")
	c := newConverter(t, oracle.FailingFeed{Err: feedErr})
	if _, err := c.ValueInUSD(context.Background(), "WETH", units(1)); !errors.Is(err, feedErr) {
		t.Fatalf("expected feed error, got %v", err)
	}
}

func TestUnknownAssetRejected(t *testing.T) {
	c := newConverter(t, oracle.NewUSDFeed(2000))
	if _, err := c.ValueInUSD(context.Background(), "DOGE", units(1)); !errors.Is(err, oracle.ErrAssetNotAllowed) {
		t.Fatalf("expected ErrAssetNotAllowed, got %v", err)
	}
}
