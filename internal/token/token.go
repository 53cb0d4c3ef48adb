// Package token defines the engine's external collaborators: the pegged
// liability token and the collateral asset ledgers. Both are fallible,
// side-effecting calls whose failure must unwind the enclosing operation,
// so every method returns an explicit error instead of a silent boolean.
package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/google/uuid"
)

var (
	// ErrTransferFailed is returned when an external transfer is refused.
	ErrTransferFailed = errors.New("external transfer failed")

	// ErrMintFailed is returned when the liability token refuses a mint.
	ErrMintFailed = errors.New("liability token mint failed")
)

// LiabilityToken is the pegged synthetic-dollar ledger. The engine must be
// its sole authorized minter and burner; the capability is granted at
// construction of the concrete implementation.
type LiabilityToken interface {
	// Mint creates amount base units for the recipient.
	Mint(ctx context.Context, to uuid.UUID, amount *big.Int) error

	// Burn destroys amount base units held by the engine.
	Burn(ctx context.Context, amount *big.Int) error

	// TransferFrom moves amount base units between holders.
	TransferFrom(ctx context.Context, from, to uuid.UUID, amount *big.Int) error
}

// CollateralAssets exposes the fungible-transfer capability of every
// registered collateral asset, keyed by asset code.
type CollateralAssets interface {
	// TransferFrom pulls amount of asset from a user into custody.
	TransferFrom(ctx context.Context, asset string, from, to uuid.UUID, amount *big.Int) error

	// Transfer pushes amount of asset out of custody to a recipient.
	Transfer(ctx context.Context, asset string, to uuid.UUID, amount *big.Int) error
}
