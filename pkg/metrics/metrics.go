package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/searchkit/searchkit/pkg/errors"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Call metrics
	CallAttemptsTotal *prometheus.CounterVec
	CallOutcomesTotal *prometheus.CounterVec
	CallAttemptCount  *prometheus.HistogramVec

	// Classification metrics
	ClassificationsTotal *prometheus.CounterVec

	// Diagnostic metrics
	CheckDuration *prometheus.HistogramVec
	ChecksTotal   *prometheus.CounterVec

	// Upload metrics
	DocumentsUploaded *prometheus.CounterVec
	BatchesTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "searchkit",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		CallAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "call_attempts_total",
				Help:      "Total number of remote call attempts",
			},
			[]string{"operation", "retryable"},
		),
		CallOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "call_outcomes_total",
				Help:      "Terminal outcomes of logical calls",
			},
			[]string{"operation", "result", "kind"},
		),
		CallAttemptCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "call_attempt_count",
				Help:      "Number of attempts per logical call",
				Buckets:   []float64{1, 2, 3, 4, 5},
			},
			[]string{"operation"},
		),
		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "classifications_total",
				Help:      "Failure classifications by kind",
			},
			[]string{"kind"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "check_duration_seconds",
				Help:      "Diagnostic check duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"check"},
		),
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "checks_total",
				Help:      "Diagnostic check executions",
			},
			[]string{"check", "result"},
		),
		DocumentsUploaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "documents_uploaded_total",
				Help:      "Documents pushed to the search index",
			},
			[]string{"index", "result"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "upload_batches_total",
				Help:      "Upload batches processed",
			},
			[]string{"index", "result"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CallAttemptsTotal,
		m.CallOutcomesTotal,
		m.CallAttemptCount,
		m.ClassificationsTotal,
		m.CheckDuration,
		m.ChecksTotal,
		m.DocumentsUploaded,
		m.BatchesTotal,
	)

	return m
}

// RecordAttempt implements resilience.Recorder
func (m *Metrics) RecordAttempt(operation string, retryable bool) {
	if m.CallAttemptsTotal == nil {
		return
	}
	retryableLabel := "false"
	if retryable {
		retryableLabel = "true"
	}
	m.CallAttemptsTotal.WithLabelValues(operation, retryableLabel).Inc()
}

// RecordOutcome implements resilience.Recorder
func (m *Metrics) RecordOutcome(operation string, kind errors.Kind, success bool, attempts int) {
	if m.CallOutcomesTotal == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	} else {
		m.ClassificationsTotal.WithLabelValues(string(kind)).Inc()
	}
	m.CallOutcomesTotal.WithLabelValues(operation, result, string(kind)).Inc()
	m.CallAttemptCount.WithLabelValues(operation).Observe(float64(attempts))
}

// RecordCheck records one diagnostic check execution
func (m *Metrics) RecordCheck(check string, passed bool, seconds float64) {
	if m.ChecksTotal == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.ChecksTotal.WithLabelValues(check, result).Inc()
	m.CheckDuration.WithLabelValues(check).Observe(seconds)
}

// RecordBatch records one processed upload batch
func (m *Metrics) RecordBatch(index string, succeeded bool, documents int) {
	if m.BatchesTotal == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	m.BatchesTotal.WithLabelValues(index, result).Inc()
	m.DocumentsUploaded.WithLabelValues(index, result).Add(float64(documents))
}

// Handler returns a Gin handler exposing the metrics registry
func (m *Metrics) Handler() gin.HandlerFunc {
	if m.registry == nil {
		return func(c *gin.Context) { c.Status(404) }
	}
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
