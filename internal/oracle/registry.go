package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch is returned when the asset and feed lists passed to
	// NewRegistry differ in length.
	ErrLengthMismatch = errors.New("asset and feed lists differ in length")

	// ErrAssetNotAllowed is returned for any asset without a registered feed.
	ErrAssetNotAllowed = errors.New("asset not in collateral registry")
)

// Registry is the immutable allow-list of collateral assets and their price
// feeds. It is populated once at construction; every mutating engine entry
// point consults it before touching state.
type Registry struct {
	assets []string             // registration order, iterated by solvency math
	feeds  map[string]PriceFeed // membership map
}

// NewRegistry builds the registry from parallel asset and feed lists.
func NewRegistry(assets []string, feeds []PriceFeed) (*Registry, error) {
	if len(assets) != len(feeds) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds", ErrLengthMismatch, len(assets), len(feeds))
	}

	r := &Registry{
		assets: make([]string, 0, len(assets)),
		feeds:  make(map[string]PriceFeed, len(assets)),
	}

	for i, asset := range assets {
		if asset == "" {
			return nil, fmt.Errorf("empty asset identifier at index %d", i)
		}
		if feeds[i] == nil {
			return nil, fmt.Errorf("nil price feed for asset %s", asset)
		}
		if _, dup := r.feeds[asset]; dup {
			return nil, fmt.Errorf("duplicate asset %s", asset)
		}
		r.assets = append(r.assets, asset)
		r.feeds[asset] = feeds[i]
	}

	return r, nil
}

// IsAllowed reports whether the asset has a registered feed.
func (r *Registry) IsAllowed(asset string) bool {
	_, ok := r.feeds[asset]
	return ok
}

// Assets returns the registered assets in registration order. The slice is
// a copy; the registry itself never changes after construction.
func (r *Registry) Assets() []string {
	out := make([]string, len(r.assets))
	copy(out, r.assets)
	return out
}

// Feed returns the price feed for an asset, or ErrAssetNotAllowed.
func (r *Registry) Feed(asset string) (PriceFeed, error) {
	feed, ok := r.feeds[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset)
	}
	return feed, nil
}
