// Package query serves historical reads from the Postgres audit log. Live
// position state is answered by the engine directly; this service covers
// everything that needs the durable record: journal history, event lookups,
// and per-account statements.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"synthengine/internal/ledger"
	"synthengine/internal/observability"
)

const maxPageSize = 500

// JournalEntry is one row of a user's statement.
type JournalEntry struct {
	JournalID     uuid.UUID `json:"journal_id"`
	BatchID       uuid.UUID `json:"batch_id"`
	EventRef      string    `json:"event_ref"`
	Sequence      int64     `json:"sequence"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	Asset         string    `json:"asset"`
	Amount        string    `json:"amount"`
	JournalType   string    `json:"journal_type"`
	Timestamp     int64     `json:"timestamp"`
}

// EventRecord is one committed operation from the audit log.
type EventRecord struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Asset          *string         `json:"asset,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
}

type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// AccountJournal returns a user's journal entries newest-first: every entry
// that debits or credits one of the user's accounts.
func (s *Service) AccountJournal(ctx context.Context, userID uuid.UUID, limit, offset int) ([]JournalEntry, error) {
	defer s.observe("account_journal")()
	limit = clampLimit(limit)

	collateralPrefix := fmt.Sprintf("user:%s:collateral:%%", userID)
	debtPath := ledger.NewDebtKey(userID).AccountPath()

	rows, err := s.db.QueryContext(ctx, `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset, amount, journal_type, timestamp
		FROM synth.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
		   OR debit_account = $2 OR credit_account = $2
		ORDER BY sequence DESC, journal_id
		LIMIT $3 OFFSET $4
	`, collateralPrefix, debtPath, limit, offset)
	if err != nil {
		s.metrics.QueryErrors.WithLabelValues("account_journal").Inc()
		return nil, fmt.Errorf("query account journal: %w", err)
	}
	defer rows.Close()

	return scanJournal(rows)
}

// Events returns the audit log newest-first, optionally filtered by event
// type.
func (s *Service) Events(ctx context.Context, eventType string, limit, offset int) ([]EventRecord, error) {
	defer s.observe("events")()
	limit = clampLimit(limit)

	var (
		rows *sql.Rows
		err  error
	)
	if eventType == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT sequence, event_type, idempotency_key, asset, payload, timestamp
			FROM synth.events
			ORDER BY sequence DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT sequence, event_type, idempotency_key, asset, payload, timestamp
			FROM synth.events
			WHERE event_type = $1
			ORDER BY sequence DESC
			LIMIT $2 OFFSET $3
		`, eventType, limit, offset)
	}
	if err != nil {
		s.metrics.QueryErrors.WithLabelValues("events").Inc()
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Asset, (*[]byte)(&r.Payload), &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Operation returns all events committed under one operation ID, oldest
// first, so combined operations read as their legs in commit order.
func (s *Service) Operation(ctx context.Context, operationID uuid.UUID) ([]EventRecord, error) {
	defer s.observe("operation")()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, asset, payload, timestamp
		FROM synth.events
		WHERE idempotency_key = $1
		ORDER BY sequence ASC
	`, operationID.String())
	if err != nil {
		s.metrics.QueryErrors.WithLabelValues("operation").Inc()
		return nil, fmt.Errorf("query operation: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Asset, (*[]byte)(&r.Payload), &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Watermark returns the highest persisted sequence, the freshness bound for
// every historical answer.
func (s *Service) Watermark(ctx context.Context) (int64, error) {
	defer s.observe("watermark")()

	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM synth.events`).Scan(&seq)
	if err != nil {
		s.metrics.QueryErrors.WithLabelValues("watermark").Inc()
		return 0, fmt.Errorf("query watermark: %w", err)
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

func (s *Service) observe(endpoint string) func() {
	s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	start := time.Now()
	return func() {
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func scanJournal(rows *sql.Rows) ([]JournalEntry, error) {
	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var journalID, batchID string
		if err := rows.Scan(&journalID, &batchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Asset, &e.Amount, &e.JournalType, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		jid, err := uuid.Parse(journalID)
		if err != nil {
			return nil, fmt.Errorf("journal row has malformed journal_id: %w", err)
		}
		bid, err := uuid.Parse(batchID)
		if err != nil {
			return nil, fmt.Errorf("journal row has malformed batch_id: %w", err)
		}
		e.JournalID = jid
		e.BatchID = bid
		out = append(out, e)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
