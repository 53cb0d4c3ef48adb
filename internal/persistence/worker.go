package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"synthengine/internal/engine"
	"synthengine/internal/observability"
)

// Worker drains the engine's persist channel and batch-writes events and
// journals to Postgres. The channel uses blocking sends, so if this worker
// falls behind the engine stalls rather than losing audit records.
type Worker struct {
	writer       *EventLogWriter
	db           *sql.DB
	input        <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	input <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		db:           db,
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          logger.With().Str("component", "persistence").Logger(),
		metrics:      metrics,
	}
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout fires. Blocks until ctx is cancelled or the input channel
// closes; either way the remaining batch is flushed before returning.
func (w *Worker) Run(ctx context.Context) error {
	eventBatch := make([]EventRow, 0, w.batchSize)
	journalBatch := make([]JournalRow, 0, w.batchSize*2)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(eventBatch) > 0 {
				if err := w.flush(context.Background(), eventBatch, journalBatch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				if len(eventBatch) > 0 {
					if err := w.flush(context.Background(), eventBatch, journalBatch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			eventRow, journalRows, err := RowsFromOutput(out)
			if err != nil {
				// A payload that fails to marshal is a programming error;
				// skipping it silently would hole the audit trail.
				w.log.Panic().Err(err).Int64("seq", out.Envelope.Sequence).Msg("unserializable output")
			}
			eventBatch = append(eventBatch, eventRow)
			journalBatch = append(journalBatch, journalRows...)

			if len(eventBatch) >= w.batchSize {
				w.flushWithRetry(ctx, eventBatch, journalBatch)
				eventBatch = eventBatch[:0]
				journalBatch = journalBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(eventBatch) > 0 {
				w.flushWithRetry(ctx, eventBatch, journalBatch)
				eventBatch = eventBatch[:0]
				journalBatch = journalBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds.
// The worker never drops a batch; on shutdown it makes one last attempt with
// a background context.
func (w *Worker) flushWithRetry(ctx context.Context, events []EventRow, journals []JournalRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(events)).
				Msg("retrying persistence flush")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), events, journals); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, events, journals)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
		w.metrics.PersistErrors.WithLabelValues("retry").Inc()
	}
}

// flush writes events and journals in a single transaction.
func (w *Worker) flush(ctx context.Context, events []EventRow, journals []JournalRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		return fmt.Errorf("begin persistence tx: %w", err)
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, events); err != nil {
		w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		return fmt.Errorf("write events: %w", err)
	}
	if err := w.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		w.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		return fmt.Errorf("write journals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		return fmt.Errorf("commit persistence tx: %w", err)
	}

	w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	w.metrics.PersistBatchSize.Observe(float64(len(events)))
	w.metrics.PersistEventsWritten.Add(float64(len(events)))
	w.metrics.PersistJournalsWritten.Add(float64(len(journals)))
	w.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))

	return nil
}
