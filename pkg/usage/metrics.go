package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the usage ledger.
type Metrics struct {
	// Limit checks
	limitChecks *prometheus.CounterVec
	limitHits   *prometheus.CounterVec

	// Event recording
	eventsRecorded *prometheus.CounterVec
	recordFailures prometheus.Counter

	// Windowed usage as a fraction of the limit
	usageRatio *prometheus.GaugeVec

	// Operation latency
	opDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with Prometheus collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		limitChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketscope_usage_limit_checks_total",
				Help: "Total number of user limit checks performed",
			},
			[]string{"result"},
		),

		limitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketscope_usage_limit_hits_total",
				Help: "Total number of limit violations by window",
			},
			[]string{"window"},
		),

		eventsRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketscope_usage_events_recorded_total",
				Help: "Total number of usage events written to the ledger",
			},
			[]string{"service"},
		),

		recordFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "marketscope_usage_record_failures_total",
				Help: "Total number of usage events dropped due to storage failures",
			},
		),

		usageRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketscope_usage_window_ratio",
				Help: "Usage as a fraction of the configured limit (0.0-1.0+) per window",
			},
			[]string{"user_id", "window"},
		),

		opDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketscope_usage_op_duration_seconds",
				Help:    "Duration of ledger operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
			[]string{"operation"},
		),
	}
}

// RecordLimitCheck records the outcome of a limit check.
func (m *Metrics) RecordLimitCheck(withinLimits bool) {
	result := "allowed"
	if !withinLimits {
		result = "blocked"
	}
	m.limitChecks.WithLabelValues(result).Inc()
}

// RecordLimitHit records a limit violation for a window ("hourly", "daily", "monthly").
func (m *Metrics) RecordLimitHit(window string) {
	m.limitHits.WithLabelValues(window).Inc()
}

// RecordEvent records a successfully written usage event.
func (m *Metrics) RecordEvent(service string) {
	m.eventsRecorded.WithLabelValues(service).Inc()
}

// RecordDroppedEvent records a usage event lost to a storage failure.
// This counter backs the operational alert for missed accounting writes.
func (m *Metrics) RecordDroppedEvent() {
	m.recordFailures.Inc()
}

// UpdateUsageRatio updates the usage-to-limit ratio for a user and window.
func (m *Metrics) UpdateUsageRatio(userID, window string, ratio float64) {
	m.usageRatio.WithLabelValues(userID, window).Set(ratio)
}

// RecordOpDuration records the duration of a ledger operation.
func (m *Metrics) RecordOpDuration(operation string, seconds float64) {
	m.opDuration.WithLabelValues(operation).Observe(seconds)
}
