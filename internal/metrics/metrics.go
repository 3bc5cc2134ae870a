package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Classifier metrics
var (
	// Classifications counts verdicts by label and outcome (ok, skipped, degraded).
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_classifications_total",
			Help: "Sentiment verdicts by label and outcome",
		},
		[]string{"label", "outcome"},
	)

	ClassificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedback_classification_duration_seconds",
			Help:    "Model invocation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"model"},
	)

	// ModelBreakerState tracks the remote model circuit breaker (0=closed, 1=half-open, 2=open).
	ModelBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedback_model_breaker_state",
			Help: "Remote sentiment model circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"model"},
	)
)

// Analysis metrics
var (
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_alerts_emitted_total",
			Help: "Alert events emitted by category and severity",
		},
		[]string{"category", "severity"},
	)

	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_anomalies_flagged_total",
			Help: "Records flagged as unusual relative to their batch",
		},
	)

	AnomalyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_anomaly_failures_total",
			Help: "Anomaly detection runs that failed and returned no anomalies",
		},
	)
)

// Ingest metrics
var (
	WorkerBatches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedback_worker_batch_size",
			Help:    "Messages per processed worker batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	RecordsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_records_indexed_total",
			Help: "Enriched feedback records written to Elasticsearch",
		},
	)

	DLQMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_dlq_messages_total",
			Help: "Messages routed to the dead-letter topic by status",
		},
		[]string{"status"},
	)

	CollectorItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_collector_items_total",
			Help: "Feed items seen by the collector by result (published, duplicate, failed)",
		},
		[]string{"result"},
	)
)

// Retention metrics
var (
	RecordsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_records_purged_total",
			Help: "Feedback records removed by the retention job",
		},
	)

	RetentionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_retention_runs_total",
			Help: "Retention runs by result (ok, failed)",
		},
		[]string{"result"},
	)
)
