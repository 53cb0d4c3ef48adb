package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// MemoryLiabilityToken is an in-process LiabilityToken used by tests and
// dev mode. Mint/burn authority is bound to a single holder at construction.
type MemoryLiabilityToken struct {
	mu        sync.Mutex
	balances  map[uuid.UUID]*big.Int
	authority uuid.UUID

	// Failure injection for atomicity tests.
	FailMint     bool
	FailTransfer bool
}

func NewMemoryLiabilityToken(authority uuid.UUID) *MemoryLiabilityToken {
	return &MemoryLiabilityToken{
		balances:  make(map[uuid.UUID]*big.Int),
		authority: authority,
	}
}

func (t *MemoryLiabilityToken) Mint(ctx context.Context, to uuid.UUID, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailMint {
		return fmt.Errorf("%w: injected failure", ErrMintFailed)
	}

	t.credit(to, amount)
	return nil
}

func (t *MemoryLiabilityToken) Burn(ctx context.Context, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balance(t.authority)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s exceeds engine balance %s", ErrTransferFailed, amount, bal)
	}
	bal.Sub(bal, amount)
	return nil
}

func (t *MemoryLiabilityToken) TransferFrom(ctx context.Context, from, to uuid.UUID, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailTransfer {
		return fmt.Errorf("%w: injected failure", ErrTransferFailed)
	}

	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrTransferFailed, from, bal, amount)
	}
	bal.Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

// BalanceOf returns a holder's balance (tests only).
func (t *MemoryLiabilityToken) BalanceOf(holder uuid.UUID) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(holder))
}

func (t *MemoryLiabilityToken) balance(holder uuid.UUID) *big.Int {
	if bal, ok := t.balances[holder]; ok {
		return bal
	}
	bal := new(big.Int)
	t.balances[holder] = bal
	return bal
}

func (t *MemoryLiabilityToken) credit(holder uuid.UUID, amount *big.Int) {
	bal := t.balance(holder)
	bal.Add(bal, amount)
}

type assetHolder struct {
	asset  string
	holder uuid.UUID
}

// MemoryCollateralAssets is an in-process CollateralAssets implementation
// for tests and dev mode.
type MemoryCollateralAssets struct {
	mu       sync.Mutex
	balances map[assetHolder]*big.Int
	custody  uuid.UUID

	FailTransferFrom bool
	FailTransfer     bool
}

func NewMemoryCollateralAssets(custody uuid.UUID) *MemoryCollateralAssets {
	return &MemoryCollateralAssets{
		balances: make(map[assetHolder]*big.Int),
		custody:  custody,
	}
}

// Fund seeds a holder's balance (test setup).
func (c *MemoryCollateralAssets) Fund(asset string, holder uuid.UUID, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal := c.balance(asset, holder)
	bal.Add(bal, amount)
}

func (c *MemoryCollateralAssets) TransferFrom(ctx context.Context, asset string, from, to uuid.UUID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailTransferFrom {
		return fmt.Errorf("%w: injected failure", ErrTransferFailed)
	}

	return c.move(asset, from, to, amount)
}

func (c *MemoryCollateralAssets) Transfer(ctx context.Context, asset string, to uuid.UUID, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailTransfer {
		return fmt.Errorf("%w: injected failure", ErrTransferFailed)
	}

	return c.move(asset, c.custody, to, amount)
}

// BalanceOf returns a holder's balance for one asset (tests only).
func (c *MemoryCollateralAssets) BalanceOf(asset string, holder uuid.UUID) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance(asset, holder))
}

func (c *MemoryCollateralAssets) move(asset string, from, to uuid.UUID, amount *big.Int) error {
	bal := c.balance(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s of %s holds %s, needs %s", ErrTransferFailed, from, asset, bal, amount)
	}
	bal.Sub(bal, amount)
	toBal := c.balance(asset, to)
	toBal.Add(toBal, amount)
	return nil
}

func (c *MemoryCollateralAssets) balance(asset string, holder uuid.UUID) *big.Int {
	key := assetHolder{asset: asset, holder: holder}
	if bal, ok := c.balances[key]; ok {
		return bal
	}
	bal := new(big.Int)
	c.balances[key] = bal
	return bal
}
