package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"synthengine/internal/engine"
	"synthengine/internal/observability"
	"synthengine/internal/persistence"
	"synthengine/internal/testutil"
)

// Prometheus collectors register against the default registry once per test
// binary.
var testMetrics = observability.NewMetrics()

func TestWorkerDrainsQueueBeforeReturning(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := zerolog.Nop()

	migrator := persistence.NewMigrator(db, "../../migrations", logger)
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Batch size larger than the queue so nothing flushes until the channel
	// closes; the flush timeout is long enough to never fire.
	input := make(chan engine.Output, 8)
	worker := persistence.NewWorker(db, input, 100, time.Minute, logger, testMetrics)

	const queued = 3
	for seq := int64(0); seq < queued; seq++ {
		input <- sampleOutput(t, seq)
	}
	close(input)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after channel close: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not return after channel close")
	}

	// Everything queued at close time is on disk once Run returns; the
	// daemon's shutdown path relies on this when it joins the worker.
	var eventCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM synth.events").Scan(&eventCount); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != queued {
		t.Errorf("persisted events: got %d, want %d", eventCount, queued)
	}
}
