package engine

import (
	"errors"
	"fmt"
	"math/big"

	"synthengine/internal/oracle"
	"synthengine/internal/token"
)

var (
	// ErrInvalidAmount rejects zero or negative amounts on any operation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAssetNotAllowed rejects assets without a registered price feed.
	ErrAssetNotAllowed = oracle.ErrAssetNotAllowed

	// ErrTransferFailed surfaces a failed external asset movement.
	ErrTransferFailed = token.ErrTransferFailed

	// ErrMintFailed surfaces a failed liability issuance.
	ErrMintFailed = token.ErrMintFailed

	// ErrReentrantCall rejects a mutating call that arrives while another
	// mutating call is in flight. The caller is expected to retry.
	ErrReentrantCall = errors.New("reentrant call")

	// ErrHealthFactorOK rejects a liquidation of a solvent position.
	ErrHealthFactorOK = errors.New("health factor above minimum")

	// ErrHealthFactorNotImproved rejects a liquidation that would leave the
	// target no healthier than before.
	ErrHealthFactorNotImproved = errors.New("health factor not improved")

	// ErrInsufficientCollateral rejects a redemption or seizure that exceeds
	// the account's collateral balance in that asset.
	ErrInsufficientCollateral = errors.New("insufficient collateral balance")

	// ErrInsufficientDebt rejects a burn or debt cover that exceeds the
	// account's outstanding liability.
	ErrInsufficientDebt = errors.New("insufficient debt balance")

	// ErrSolvencyBroken is the sentinel wrapped by SolvencyError.
	ErrSolvencyBroken = errors.New("health factor below minimum")
)

// SolvencyError reports the health factor an operation would have produced
// had it been allowed to proceed.
type SolvencyError struct {
	HealthFactor *big.Int
}

func (e *SolvencyError) Error() string {
	return fmt.Sprintf("health factor %s below minimum", e.HealthFactor.String())
}

func (e *SolvencyError) Unwrap() error { return ErrSolvencyBroken }
