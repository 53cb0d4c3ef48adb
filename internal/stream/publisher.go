// Package stream publishes committed ledger events to NATS JetStream for
// downstream consumers (risk dashboards, peg monitors, indexers).
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"synthengine/internal/engine"
	"synthengine/internal/observability"
)

// StreamName holds every outbound ledger event.
const StreamName = "SYNTH_LEDGER_EVENTS"

// OutboundEvent is the wire shape published to NATS.
type OutboundEvent struct {
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	Asset          *string     `json:"asset,omitempty"`
	Payload        interface{} `json:"payload"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Publisher drains the engine's publish channel and emits each committed
// event. Publishing is best-effort: events live durably in Postgres, so a
// failed publish is logged and skipped rather than retried.
type Publisher struct {
	js      jetstream.JetStream
	input   <-chan engine.Output
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, input <-chan engine.Output, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:      js,
		input:   input,
		log:     logger.With().Str("component", "publisher").Logger(),
		metrics: metrics,
	}
}

// Run blocks until ctx is cancelled or the input channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				p.log.Warn().Err(err).Int64("seq", out.Envelope.Sequence).Msg("outbound publish failed")
				continue
			}
			p.metrics.PublishedEvents.Inc()
		}
	}
}

// publish emits to synth.ledger.events.{event_type}[.{asset}].
func (p *Publisher) publish(ctx context.Context, out engine.Output) error {
	evt := OutboundEvent{
		Sequence:       out.Envelope.Sequence,
		EventType:      out.Envelope.EventType.String(),
		IdempotencyKey: out.Envelope.IdempotencyKey,
		Asset:          out.Envelope.Asset,
		Payload:        out.Payload,
		Timestamp:      out.Envelope.Timestamp,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal outbound event: %w", err)
	}

	subject := fmt.Sprintf("synth.ledger.events.%s", evt.EventType)
	if evt.Asset != nil {
		subject = fmt.Sprintf("%s.%s", subject, *evt.Asset)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"synth.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	log := logger.With().Str("component", "nats").Logger()

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
