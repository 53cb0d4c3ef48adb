package token_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"synthengine/internal/token"
)

func TestLiabilityMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	engine := uuid.New()
	user := uuid.New()
	tok := token.NewMemoryLiabilityToken(engine)

	if err := tok.Mint(ctx, user, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := tok.BalanceOf(user); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("user balance: got %s", got)
	}

	if err := tok.TransferFrom(ctx, user, engine, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tok.Burn(ctx, big.NewInt(60)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := tok.BalanceOf(engine); got.Sign() != 0 {
		t.Fatalf("engine balance after burn: got %s", got)
	}
	if got := tok.BalanceOf(user); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("user balance after transfer: got %s", got)
	}

	// Burning more than held fails.
	if err := tok.Burn(ctx, big.NewInt(1)); !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("over-burn: expected ErrTransferFailed, got %v", err)
	}
	// Transfers beyond balance fail.
	if err := tok.TransferFrom(ctx, user, engine, big.NewInt(41)); !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("over-transfer: expected ErrTransferFailed, got %v", err)
	}
}

func TestLiabilityFailureInjection(t *testing.T) {
	ctx := context.Background()
	tok := token.NewMemoryLiabilityToken(uuid.New())
	user := uuid.New()

	tok.FailMint = true
	if err := tok.Mint(ctx, user, big.NewInt(1)); !errors.Is(err, token.ErrMintFailed) {
		t.Fatalf("expected ErrMintFailed, got %v", err)
	}

	tok.FailMint = false
	if err := tok.Mint(ctx, user, big.NewInt(5)); err != nil {
		t.Fatalf("mint after reset: %v", err)
	}
	tok.FailTransfer = true
	if err := tok.TransferFrom(ctx, user, uuid.New(), big.NewInt(1)); !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}

func TestCollateralCustodyFlow(t *testing.T) {
	ctx := context.Background()
	custody := uuid.New()
	user := uuid.New()
	assets := token.NewMemoryCollateralAssets(custody)

	assets.Fund("WETH", user, big.NewInt(10))

	if err := assets.TransferFrom(ctx, "WETH", user, custody, big.NewInt(7)); err != nil {
		t.Fatalf("pull into custody: %v", err)
	}
	if got := assets.BalanceOf("WETH", custody); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("custody balance: got %s", got)
	}

	if err := assets.Transfer(ctx, "WETH", user, big.NewInt(3)); err != nil {
		t.Fatalf("push from custody: %v", err)
	}
	if got := assets.BalanceOf("WETH", user); got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("user balance: got %s", got)
	}

	// Balances are tracked per asset.
	if got := assets.BalanceOf("WBTC", user); got.Sign() != 0 {
		t.Fatalf("WBTC balance should be zero, got %s", got)
	}

	if err := assets.Transfer(ctx, "WETH", user, big.NewInt(5)); !errors.Is(err, token.ErrTransferFailed) {
		t.Fatalf("custody overdraw: expected ErrTransferFailed, got %v", err)
	}
}
