package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for management operations.
// Every Record/Set method is a no-op on a disabled instance.
type Metrics struct {
	config MetricsConfig

	// Executor operation metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Per-request metrics
	roundTrips        *prometheus.CounterVec
	roundTripDuration *prometheus.HistogramVec
	rollbacks         *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Session metrics
	sessionsOpened prometheus.Counter
	closeErrors    prometheus.Counter

	// Datasource inventory
	datasources *prometheus.GaugeVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of executor operations by status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of executor operations in seconds, including fan-out",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		roundTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "round_trips_total",
				Help:      "Total number of management request/response round trips by outcome",
			},
			[]string{"operation", "outcome"},
		),
		roundTripDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_trip_duration_seconds",
				Help:      "Duration of a single management round trip in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Total number of failed operations the server reported as rolled back",
			},
			[]string{"operation"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of executor errors by kind",
			},
			[]string{"kind"},
		),
		sessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_opened_total",
				Help:      "Total number of management sessions opened",
			},
		),
		closeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_close_errors_total",
				Help:      "Total number of errors while closing management sessions",
			},
		),
		datasources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "datasources",
				Help:      "Number of datasources seen by the last listing, by profile and status filter",
			},
			[]string{"profile", "status"},
		),
	}

	collectors := []prometheus.Collector{
		m.operations, m.operationDuration,
		m.roundTrips, m.roundTripDuration, m.rollbacks,
		m.errorsByKind,
		m.sessionsOpened, m.closeErrors,
		m.datasources,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Enabled reports whether metrics are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// RecordOperation records a completed executor operation.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRoundTrip records one request/response exchange.
func (m *Metrics) RecordRoundTrip(operation, outcome string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.roundTrips.WithLabelValues(operation, outcome).Inc()
	m.roundTripDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRollback records a failure that the server rolled back.
func (m *Metrics) RecordRollback(operation string) {
	if !m.Enabled() {
		return
	}
	m.rollbacks.WithLabelValues(operation).Inc()
}

// RecordError records an executor error by kind.
func (m *Metrics) RecordError(kind string) {
	if !m.Enabled() {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordSessionOpened counts an opened session.
func (m *Metrics) RecordSessionOpened() {
	if !m.Enabled() {
		return
	}
	m.sessionsOpened.Inc()
}

// RecordCloseError counts a failed session close.
func (m *Metrics) RecordCloseError() {
	if !m.Enabled() {
		return
	}
	m.closeErrors.Inc()
}

// SetDatasourceCount sets the number of datasources listed for a profile and filter.
func (m *Metrics) SetDatasourceCount(profile, status string, count int) {
	if !m.Enabled() {
		return
	}
	m.datasources.WithLabelValues(profile, status).Set(float64(count))
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.Enabled() {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("metrics server error")
		}
	}()

	log.Info().Str("address", m.config.ListenAddress).Str("path", path).Msg("metrics server started")
	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
