package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for beanstack. A Metrics built with
// metrics disabled records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	// Environment metrics
	reconciliations    *prometheus.CounterVec
	reconcileDuration  *prometheus.HistogramVec
	readyWait          *prometheus.HistogramVec
	environmentReady   *prometheus.GaugeVec
	driftedEnvironment *prometheus.GaugeVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	errorsByClass    *prometheus.CounterVec
	policyViolations *prometheus.CounterVec

	registry *prometheus.Registry
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

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"kind"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"kind", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),

		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Total number of environment reconciliations",
			},
			[]string{"operation", "status"},
		),
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of environment reconciliations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		readyWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ready_wait_seconds",
				Help:      "Time spent waiting for an environment to become Ready",
				Buckets:   buckets,
			},
			[]string{"environment"},
		),
		environmentReady: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "environment_ready",
				Help:      "Last observed readiness of an environment (1=ready, 0=not ready)",
			},
			[]string{"environment"},
		),
		driftedEnvironment: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "environment_drifted_settings",
				Help:      "Number of template settings an environment does not carry",
			},
			[]string{"environment"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of control-plane calls",
			},
			[]string{"provider", "operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of control-plane calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of control-plane errors",
			},
			[]string{"provider", "operation"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class", "code"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of settings policy violations",
			},
			[]string{"policy", "family"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.reconciliations,
		m.reconcileDuration,
		m.readyWait,
		m.environmentReady,
		m.driftedEnvironment,
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
		m.errorsByClass,
		m.policyViolations,
	)

	return m, nil
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(kind string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(kind).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(kind, status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Environment Metrics

// RecordReconciliation records one environment reconciliation.
func (m *Metrics) RecordReconciliation(operation, status string, duration time.Duration) {
	if m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(operation, status).Inc()
	m.reconcileDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReadyWait records how long an environment took to settle.
func (m *Metrics) RecordReadyWait(environment string, duration time.Duration) {
	if m.readyWait == nil {
		return
	}
	m.readyWait.WithLabelValues(environment).Observe(duration.Seconds())
}

// SetEnvironmentReady sets the last observed readiness of an environment.
func (m *Metrics) SetEnvironmentReady(environment string, ready bool) {
	if m.environmentReady == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1.0
	}
	m.environmentReady.WithLabelValues(environment).Set(value)
}

// SetDriftedSettings sets the number of mismatched settings of an environment.
func (m *Metrics) SetDriftedSettings(environment string, count int) {
	if m.driftedEnvironment == nil {
		return
	}
	m.driftedEnvironment.WithLabelValues(environment).Set(float64(count))
}

// Provider Metrics

// RecordProviderCall records a provider call with its duration.
func (m *Metrics) RecordProviderCall(provider, operation string, duration time.Duration) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, operation).Inc()
	m.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(provider, operation string) {
	if m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, operation).Inc()
}

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass, errorCode).Inc()
}

// RecordPolicyViolation records a policy denial for a template family.
func (m *Metrics) RecordPolicyViolation(policy, family string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, family).Inc()
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
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ServeMetrics serves the metrics endpoint on ln until ctx is done.
func (m *Metrics) ServeMetrics(ctx context.Context, ln net.Listener) error {
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartMetricsServer listens on the configured address and serves metrics in
// the background until ctx is done. It returns the bound address.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger *Logger) (string, error) {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return "", nil
	}

	ln, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return "", err
	}

	go func() {
		if err := m.ServeMetrics(ctx, ln); err != nil {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()

	return ln.Addr().String(), nil
}
