package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine and its workers.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EngineSequence prometheus.Gauge

	// --- Solvency ---
	SolvencyRejections   *prometheus.CounterVec
	LiquidationsApplied  *prometheus.CounterVec
	LiquidationsRejected *prometheus.CounterVec
	TotalLiability       prometheus.Gauge

	// --- Oracle ---
	OracleCalls  *prometheus.CounterVec
	OracleErrors *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- Publishing ---
	PublishedEvents prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_applied_total",
			Help: "Operations successfully committed by the engine",
		}, []string{"operation"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_rejected_total",
			Help: "Operations rejected (validation, transfer, solvency)",
		}, []string{"operation", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_engine_op_duration_seconds",
			Help:    "Time to process a single operation",
			Buckets: latencyBuckets,
		}, []string{"operation"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_engine_sequence",
			Help: "Current global operation sequence",
		}),

		SolvencyRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_solvency_rejections_total",
			Help: "Operations aborted by a broken health factor",
		}, []string{"operation"}),

		LiquidationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_liquidations_applied_total",
			Help: "Liquidations committed",
		}, []string{"asset"}),

		LiquidationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_liquidations_rejected_total",
			Help: "Liquidations rejected (healthy target, insufficient collateral)",
		}, []string{"reason"}),

		TotalLiability: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_total_liability_base_units",
			Help: "System-wide outstanding liability, 1e18 base units (float-lossy)",
		}),

		OracleCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_oracle_calls_total",
			Help: "Price feed fetches",
		}, []string{"asset"}),

		OracleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_oracle_errors_total",
			Help: "Price feed failures or invalid prices",
		}, []string{"asset"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_size",
			Help:    "Events per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		PublishedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_published_events_total",
			Help: "Events published to NATS",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: latencyBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_query_errors_total",
			Help: "Query API errors",
		}, []string{"endpoint"}),
	}
}
