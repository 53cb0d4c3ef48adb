package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"synthengine/internal/engine"
)

// EventRow is a row in synth.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Asset          *string
	Payload        []byte // JSON-encoded event payload
	Timestamp      time.Time
}

// JournalRow is a row in synth.journal. Amounts are serialized as decimal
// strings; the column is NUMERIC(78,0) so full 18-decimal token quantities
// fit without loss.
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        string
	JournalType   string
	Timestamp     int64
}

// RowsFromOutput converts a committed engine output into its storage rows.
func RowsFromOutput(out engine.Output) (EventRow, []JournalRow, error) {
	payload, err := json.Marshal(out.Payload)
	if err != nil {
		return EventRow{}, nil, fmt.Errorf("marshal event payload: %w", err)
	}

	eventRow := EventRow{
		Sequence:       out.Envelope.Sequence,
		EventType:      out.Envelope.EventType.String(),
		IdempotencyKey: out.Envelope.IdempotencyKey,
		Asset:          out.Envelope.Asset,
		Payload:        payload,
		Timestamp:      out.Envelope.Timestamp,
	}

	journalRows := make([]JournalRow, 0, len(out.Batch.Journals))
	for _, j := range out.Batch.Journals {
		journalRows = append(journalRows, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Asset:         j.Asset,
			Amount:        j.Amount.String(),
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}

	return eventRow, journalRows, nil
}

// EventLogWriter writes events and journals to Postgres with multi-row
// INSERTs. Conflict targets make replays after a crash idempotent.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch inserts events inside the caller's transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO synth.events
		(sequence, event_type, idempotency_key, asset, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)
	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, e.Sequence, e.EventType, e.IdempotencyKey, e.Asset, e.Payload, e.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch inserts journal entries inside the caller's transaction.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO synth.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, asset, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*10)
	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
