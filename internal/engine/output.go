package engine

import (
	"synthengine/internal/event"
	"synthengine/internal/ledger"
)

// Output is one committed operation: its event envelope, the typed payload,
// and the balanced journal batch it produced. Outputs flow to the persistence
// worker (blocking, loss would break the audit trail) and to the stream
// publisher (non-blocking, consumers catch up from storage).
type Output struct {
	Envelope event.Envelope
	Payload  event.Event
	Batch    ledger.Batch
}
