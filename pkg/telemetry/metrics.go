package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for openrestyle.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec

	// Element mutation metrics
	elementMutations *prometheus.CounterVec
	retryAttempts    prometheus.Counter

	// Batch metrics
	batchSize     prometheus.Gauge
	batchDuration *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Staleness metrics
	staleSignals *prometheus.CounterVec

	// System metrics
	activeOperations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Operation metrics
		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of replacement operations started",
			},
			[]string{"kind"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of replacement operations settled",
			},
			[]string{"status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of replacement operations in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Element mutation metrics
		elementMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "element_mutations_total",
				Help:      "Total number of element mutations by outcome",
			},
			[]string{"outcome"},
		),
		retryAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of element mutation retries",
			},
		),

		// Batch metrics
		batchSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Batch size currently in effect",
			},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch processing in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),

		// Error metrics
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of operation errors by kind",
			},
			[]string{"kind"},
		),

		// Staleness metrics
		staleSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_signals_total",
				Help:      "Total number of document staleness signals",
			},
			[]string{"document_id"},
		),

		// System metrics
		activeOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_operations",
				Help:      "Current number of active replacement operations",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.operationsStarted,
		m.operationsCompleted,
		m.operationDuration,
		m.elementMutations,
		m.retryAttempts,
		m.batchSize,
		m.batchDuration,
		m.errorsByKind,
		m.staleSignals,
		m.activeOperations,
	)

	return m, nil
}

// Operation Metrics

// RecordOperationStarted increments the counter for started operations.
func (m *Metrics) RecordOperationStarted(kind string) {
	if m.operationsStarted == nil {
		return
	}
	m.operationsStarted.WithLabelValues(kind).Inc()
	m.activeOperations.Inc()
}

// RecordOperationCompleted records a settled operation with its terminal
// status and duration.
func (m *Metrics) RecordOperationCompleted(status string, duration time.Duration) {
	if m.operationsCompleted == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(status).Inc()
	m.operationDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeOperations.Dec()
}

// Element Metrics

// RecordElementMutation records one element mutation outcome.
func (m *Metrics) RecordElementMutation(outcome string) {
	if m.elementMutations == nil {
		return
	}
	m.elementMutations.WithLabelValues(outcome).Inc()
}

// RecordElementMutations records a count of element mutations sharing one
// outcome, as settled at a batch boundary.
func (m *Metrics) RecordElementMutations(outcome string, count int) {
	if m.elementMutations == nil || count <= 0 {
		return
	}
	m.elementMutations.WithLabelValues(outcome).Add(float64(count))
}

// RecordRetryAttempt records one mutation retry.
func (m *Metrics) RecordRetryAttempt() {
	if m.retryAttempts == nil {
		return
	}
	m.retryAttempts.Inc()
}

// Batch Metrics

// SetBatchSize sets the batch size currently in effect.
func (m *Metrics) SetBatchSize(size int) {
	if m.batchSize == nil {
		return
	}
	m.batchSize.Set(float64(size))
}

// RecordBatchDuration records the wall-clock time of one batch.
func (m *Metrics) RecordBatchDuration(outcome string, duration time.Duration) {
	if m.batchDuration == nil {
		return
	}
	m.batchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an operation error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Staleness Metrics

// RecordStaleSignal records one document staleness signal.
func (m *Metrics) RecordStaleSignal(documentID string) {
	if m.staleSignals == nil {
		return
	}
	m.staleSignals.WithLabelValues(documentID).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
