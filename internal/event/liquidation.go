package event

import (
	"math/big"

	"github.com/google/uuid"
)

// PositionLiquidated records a completed liquidation: debtCovered of the
// target's liability was retired by the liquidator in exchange for
// bonus-adjusted collateral seized from the target.
type PositionLiquidated struct {
	OperationID  uuid.UUID `json:"operation_id"`
	LiquidatorID uuid.UUID `json:"liquidator_id"`
	TargetID     uuid.UUID `json:"target_id"`
	Asset        string    `json:"asset"`
	DebtCovered  *big.Int  `json:"debt_covered"`
	SeizedAmount *big.Int  `json:"seized_amount"`
	Bonus        *big.Int  `json:"bonus"`
	// Target health factor before and after, for the improvement audit.
	HealthBefore *big.Int `json:"health_before"`
	HealthAfter  *big.Int `json:"health_after"`
}

func (e *PositionLiquidated) IdempotencyKey() string {
	return e.OperationID.String()
}

func (e *PositionLiquidated) EventType() EventType {
	return EventTypePositionLiquidated
}

func (e *PositionLiquidated) AssetCode() *string {
	return &e.Asset
}
