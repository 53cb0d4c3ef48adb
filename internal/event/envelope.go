package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeCollateralDeposited
	EventTypeCollateralRedeemed
	EventTypeDebtMinted
	EventTypeDebtBurned
	EventTypePositionLiquidated
)

func (et EventType) String() string {
	switch et {
	case EventTypeCollateralDeposited:
		return "CollateralDeposited"
	case EventTypeCollateralRedeemed:
		return "CollateralRedeemed"
	case EventTypeDebtMinted:
		return "DebtMinted"
	case EventTypeDebtBurned:
		return "DebtBurned"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	default:
		return "Unknown"
	}
}

// Envelope wraps every committed operation in the audit log. Envelopes are
// created only after the whole operation has committed, so a record in the
// log always corresponds to durable ledger state.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key (operation ID)
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Asset context (nil for liability-only events)
	Asset *string

	// Commit timestamp
	Timestamp time.Time
}

// Event is the interface all operation payloads implement.
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// AssetCode returns the collateral asset context (nil for
	// liability-only events)
	AssetCode() *string
}
