package persistence_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"synthengine/internal/engine"
	"synthengine/internal/event"
	"synthengine/internal/ledger"
	"synthengine/internal/persistence"
	"synthengine/internal/testutil"
)

func sampleOutput(t *testing.T, seq int64) engine.Output {
	t.Helper()

	opID := uuid.New()
	userID := uuid.New()
	asset := "WETH"
	amount := new(big.Int).Mul(big.NewInt(3), new(big.Int).SetUint64(1e18))
	now := time.Now().UTC()

	batchID := uuid.New()
	return engine.Output{
		Envelope: event.Envelope{
			Sequence:       seq,
			IdempotencyKey: opID.String(),
			EventType:      event.EventTypeCollateralDeposited,
			Asset:          &asset,
			Timestamp:      now,
		},
		Payload: &event.CollateralDeposited{
			OperationID: opID,
			UserID:      userID,
			Asset:       asset,
			Amount:      amount,
		},
		Batch: ledger.Batch{
			BatchID:   batchID,
			EventRef:  opID.String(),
			Sequence:  seq,
			Timestamp: now.UnixNano(),
			Journals: []ledger.Journal{{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      opID.String(),
				Sequence:      seq,
				DebitAccount:  ledger.NewCollateralKey(userID, asset),
				CreditAccount: ledger.NewCustodyKey(asset),
				Asset:         asset,
				Amount:        amount,
				JournalType:   ledger.JournalTypeDeposit,
				Timestamp:     now.UnixNano(),
			}},
		},
	}
}

func TestRowsFromOutput(t *testing.T) {
	out := sampleOutput(t, 7)

	eventRow, journalRows, err := persistence.RowsFromOutput(out)
	if err != nil {
		t.Fatalf("RowsFromOutput: %v", err)
	}

	if eventRow.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", eventRow.Sequence)
	}
	if eventRow.EventType != "CollateralDeposited" {
		t.Errorf("event type: got %q", eventRow.EventType)
	}
	if eventRow.IdempotencyKey != out.Envelope.IdempotencyKey {
		t.Errorf("idempotency key: got %q", eventRow.IdempotencyKey)
	}
	if eventRow.Asset == nil || *eventRow.Asset != "WETH" {
		t.Errorf("asset: got %v", eventRow.Asset)
	}

	var decoded event.CollateralDeposited
	if err := json.Unmarshal(eventRow.Payload, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	payload := out.Payload.(*event.CollateralDeposited)
	if decoded.UserID != payload.UserID || decoded.Amount.Cmp(payload.Amount) != 0 {
		t.Errorf("payload round trip mismatch: %+v", decoded)
	}

	if len(journalRows) != 1 {
		t.Fatalf("journal rows: got %d, want 1", len(journalRows))
	}
	j := journalRows[0]
	if j.Amount != payload.Amount.String() {
		t.Errorf("amount: got %q, want %q", j.Amount, payload.Amount.String())
	}
	if j.JournalType != "deposit" {
		t.Errorf("journal type: got %q", j.JournalType)
	}
	if _, err := ledger.ParseAccountPath(j.DebitAccount); err != nil {
		t.Errorf("debit account not parseable: %v", err)
	}
	if _, err := ledger.ParseAccountPath(j.CreditAccount); err != nil {
		t.Errorf("credit account not parseable: %v", err)
	}
}

func TestWriteAndReplayJournal(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := zerolog.Nop()

	migrator := persistence.NewMigrator(db, "../../migrations", logger)
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewEventLogWriter(db)

	outputs := []engine.Output{sampleOutput(t, 0), sampleOutput(t, 1)}
	var events []persistence.EventRow
	var journals []persistence.JournalRow
	for _, out := range outputs {
		e, js, err := persistence.RowsFromOutput(out)
		if err != nil {
			t.Fatalf("RowsFromOutput: %v", err)
		}
		events = append(events, e)
		journals = append(journals, js...)
	}

	write := func() {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		if err := writer.WriteEventBatch(ctx, tx, events); err != nil {
			t.Fatalf("write events: %v", err)
		}
		if err := writer.WriteJournalBatch(ctx, tx, journals); err != nil {
			t.Fatalf("write journals: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	write()
	// A replayed flush after a crash must be a no-op.
	write()

	var eventCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM synth.events").Scan(&eventCount); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != len(events) {
		t.Errorf("event count after replay: got %d, want %d", eventCount, len(events))
	}

	state, err := persistence.LoadState(ctx, db)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.NextSequence != 2 {
		t.Errorf("next sequence: got %d, want 2", state.NextSequence)
	}

	for _, out := range outputs {
		j := out.Batch.Journals[0]
		bal, ok := state.Balances[j.DebitAccount]
		if !ok {
			t.Fatalf("restored state missing account %s", j.DebitAccount.AccountPath())
		}
		if bal.Cmp(j.Amount) != 0 {
			t.Errorf("restored balance for %s: got %s, want %s",
				j.DebitAccount.AccountPath(), bal, j.Amount)
		}
	}
}
