package event

import (
	"math/big"

	"github.com/google/uuid"
)

// CollateralDeposited is the auditable record of a completed deposit.
type CollateralDeposited struct {
	OperationID uuid.UUID `json:"operation_id"`
	UserID      uuid.UUID `json:"user_id"`
	Asset       string    `json:"asset"`
	Amount      *big.Int  `json:"amount"`
}

func (e *CollateralDeposited) IdempotencyKey() string {
	return e.OperationID.String()
}

func (e *CollateralDeposited) EventType() EventType {
	return EventTypeCollateralDeposited
}

func (e *CollateralDeposited) AssetCode() *string {
	return &e.Asset
}

// CollateralRedeemed is the auditable record of a completed redemption.
// Collateral always returns to the redeeming user; seizures show up as
// PositionLiquidated instead.
type CollateralRedeemed struct {
	OperationID uuid.UUID `json:"operation_id"`
	UserID      uuid.UUID `json:"user_id"`
	Asset       string    `json:"asset"`
	Amount      *big.Int  `json:"amount"`
}

func (e *CollateralRedeemed) IdempotencyKey() string {
	return e.OperationID.String()
}

func (e *CollateralRedeemed) EventType() EventType {
	return EventTypeCollateralRedeemed
}

func (e *CollateralRedeemed) AssetCode() *string {
	return &e.Asset
}
