package oracle_test

import (
	"errors"
	"testing"

	"synthengine/internal/oracle"
)

func TestRegistryMembership(t *testing.T) {
	registry, err := oracle.NewRegistry(
		[]string{"WETH", "WBTC"},
		[]oracle.PriceFeed{oracle.NewUSDFeed(2000), oracle.NewUSDFeed(60000)},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if !registry.IsAllowed("WETH") || !registry.IsAllowed("WBTC") {
		t.Fatal("registered assets must be allowed")
	}
	if registry.IsAllowed("DOGE") {
		t.Fatal("unregistered asset must not be allowed")
	}

	assets := registry.Assets()
	if len(assets) != 2 || assets[0] != "WETH" || assets[1] != "WBTC" {
		t.Fatalf("Assets() order: got %v", assets)
	}

	if _, err := registry.Feed("DOGE"); !errors.Is(err, oracle.ErrAssetNotAllowed) {
		t.Fatalf("expected ErrAssetNotAllowed, got %v", err)
	}
}

func TestRegistryRejectsMalformedInput(t *testing.T) {
	feed := oracle.NewUSDFeed(2000)

	if _, err := oracle.NewRegistry([]string{"WETH"}, nil); !errors.Is(err, oracle.ErrLengthMismatch) {
		t.Fatalf("length mismatch: got %v", err)
	}
	if _, err := oracle.NewRegistry([]string{""}, []oracle.PriceFeed{feed}); err == nil {
		t.Fatal("empty asset accepted")
	}
	if _, err := oracle.NewRegistry([]string{"WETH"}, []oracle.PriceFeed{nil}); err == nil {
		t.Fatal("nil feed accepted")
	}
	if _, err := oracle.NewRegistry(
		[]string{"WETH", "WETH"},
		[]oracle.PriceFeed{feed, feed},
	); err == nil {
		t.Fatal("duplicate asset accepted")
	}
}
