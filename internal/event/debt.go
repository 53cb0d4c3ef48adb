package event

import (
	"math/big"

	"github.com/google/uuid"
)

// DebtMinted records new liability issued against a user's collateral.
type DebtMinted struct {
	OperationID uuid.UUID `json:"operation_id"`
	UserID      uuid.UUID `json:"user_id"`
	Amount      *big.Int  `json:"amount"`
	// HealthFactor after the mint committed, for diagnostics.
	HealthFactor *big.Int `json:"health_factor"`
}

func (e *DebtMinted) IdempotencyKey() string {
	return e.OperationID.String()
}

func (e *DebtMinted) EventType() EventType {
	return EventTypeDebtMinted
}

func (e *DebtMinted) AssetCode() *string {
	return nil
}

// DebtBurned records liability repaid and destroyed.
type DebtBurned struct {
	OperationID uuid.UUID `json:"operation_id"`
	UserID      uuid.UUID `json:"user_id"`
	Amount      *big.Int  `json:"amount"`
}

func (e *DebtBurned) IdempotencyKey() string {
	return e.OperationID.String()
}

func (e *DebtBurned) EventType() EventType {
	return EventTypeDebtBurned
}

func (e *DebtBurned) AssetCode() *string {
	return nil
}
