package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the warden agent.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutionsStarted   *prometheus.CounterVec
	resolutionsCompleted *prometheus.CounterVec
	resolutionDuration   *prometheus.HistogramVec
	resolutionPasses     prometheus.Histogram

	// Service metrics
	serviceOutcomes   *prometheus.CounterVec
	servicesDesired   prometheus.Gauge
	servicesFulfilled prometheus.Gauge
	servicesUnmet     prometheus.Gauge

	// Probe metrics
	probeDuration prometheus.Histogram
	probeFailures *prometheus.CounterVec

	// Policy metrics
	policyEvaluations *prometheus.CounterVec
	policyViolations  *prometheus.CounterVec

	// Runtime metrics
	runtimeTransitions *prometheus.CounterVec

	// Target state metrics
	stateReloads *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Agent health metrics
	lastResolutionValid     prometheus.Gauge
	lastResolutionTimestamp prometheus.Gauge

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

		// Resolution metrics
		resolutionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_started_total",
				Help:      "Total number of resolutions started",
			},
			[]string{"trigger"},
		),
		resolutionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_completed_total",
				Help:      "Total number of resolutions completed",
			},
			[]string{"valid"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of contract resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"valid"},
		),
		resolutionPasses: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_passes",
				Help:      "Number of fixed-point passes per resolution",
				Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
			},
		),

		// Service metrics
		serviceOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_outcomes_total",
				Help:      "Total number of per-service resolution outcomes",
			},
			[]string{"outcome"},
		),
		servicesDesired: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_desired",
				Help:      "Number of services in the current target state",
			},
		),
		servicesFulfilled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_fulfilled",
				Help:      "Number of services fulfilled by the last resolution",
			},
		),
		servicesUnmet: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_unmet",
				Help:      "Number of services unmet in the last resolution",
			},
		),

		// Probe metrics
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of device fact probing in seconds",
				Buckets:   buckets,
			},
		),
		probeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_failures_total",
				Help:      "Total number of device probe failures",
			},
			[]string{"code"},
		),

		// Policy metrics
		policyEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_evaluations_total",
				Help:      "Total number of policy gate evaluations",
			},
			[]string{"decision"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations",
			},
			[]string{"policy"},
		),

		// Runtime metrics
		runtimeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runtime_transitions_total",
				Help:      "Total number of service runtime transitions requested",
			},
			[]string{"action"},
		),

		// Target state metrics
		stateReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_reloads_total",
				Help:      "Total number of target state reloads",
			},
			[]string{"result"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// Agent health metrics
		lastResolutionValid: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_resolution_valid",
				Help:      "Whether the last resolution was valid (1=valid, 0=invalid)",
			},
		),
		lastResolutionTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_resolution_timestamp_seconds",
				Help:      "Unix timestamp of the last completed resolution",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.resolutionsStarted,
		m.resolutionsCompleted,
		m.resolutionDuration,
		m.resolutionPasses,
		m.serviceOutcomes,
		m.servicesDesired,
		m.servicesFulfilled,
		m.servicesUnmet,
		m.probeDuration,
		m.probeFailures,
		m.policyEvaluations,
		m.policyViolations,
		m.runtimeTransitions,
		m.stateReloads,
		m.errorsByClass,
		m.errorsByCode,
		m.lastResolutionValid,
		m.lastResolutionTimestamp,
	)

	return m, nil
}

// Resolution Metrics

// RecordResolutionStarted increments the counter for started resolutions.
func (m *Metrics) RecordResolutionStarted(trigger string) {
	if m.resolutionsStarted == nil {
		return
	}
	m.resolutionsStarted.WithLabelValues(trigger).Inc()
}

// RecordResolutionCompleted records a completed resolution with its outcome.
func (m *Metrics) RecordResolutionCompleted(valid bool, duration time.Duration, passes int) {
	if m.resolutionsCompleted == nil {
		return
	}
	validLabel := "false"
	validValue := 0.0
	if valid {
		validLabel = "true"
		validValue = 1.0
	}
	m.resolutionsCompleted.WithLabelValues(validLabel).Inc()
	m.resolutionDuration.WithLabelValues(validLabel).Observe(duration.Seconds())
	m.resolutionPasses.Observe(float64(passes))
	m.lastResolutionValid.Set(validValue)
	m.lastResolutionTimestamp.SetToCurrentTime()
}

// Service Metrics

// RecordServiceOutcome increments the per-service outcome counter
// (fulfilled, unmet, elided).
func (m *Metrics) RecordServiceOutcome(outcome string) {
	if m.serviceOutcomes == nil {
		return
	}
	m.serviceOutcomes.WithLabelValues(outcome).Inc()
}

// SetServiceCounts sets the current service gauges.
func (m *Metrics) SetServiceCounts(desired, fulfilled, unmet float64) {
	if m.servicesDesired == nil {
		return
	}
	m.servicesDesired.Set(desired)
	m.servicesFulfilled.Set(fulfilled)
	m.servicesUnmet.Set(unmet)
}

// Probe Metrics

// RecordProbe records a successful device probe with its duration.
func (m *Metrics) RecordProbe(duration time.Duration) {
	if m.probeDuration == nil {
		return
	}
	m.probeDuration.Observe(duration.Seconds())
}

// RecordProbeFailure records a device probe failure by error code.
func (m *Metrics) RecordProbeFailure(code string) {
	if m.probeFailures == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.probeFailures.WithLabelValues(code).Inc()
}

// Policy Metrics

// RecordPolicyEvaluation records a policy gate decision (allow, deny).
func (m *Metrics) RecordPolicyEvaluation(decision string) {
	if m.policyEvaluations == nil {
		return
	}
	m.policyEvaluations.WithLabelValues(decision).Inc()
}

// RecordPolicyViolation records a violation raised by a named policy.
func (m *Metrics) RecordPolicyViolation(policy string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy).Inc()
}

// Runtime Metrics

// RecordRuntimeTransition records a requested service runtime transition
// (start, stop).
func (m *Metrics) RecordRuntimeTransition(action string) {
	if m.runtimeTransitions == nil {
		return
	}
	m.runtimeTransitions.WithLabelValues(action).Inc()
}

// Target State Metrics

// RecordStateReload records a target state reload attempt (ok, error).
func (m *Metrics) RecordStateReload(result string) {
	if m.stateReloads == nil {
		return
	}
	m.stateReloads.WithLabelValues(result).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
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

// StartMetricsServer starts a standalone HTTP server to expose metrics.
// A no-op unless a listen address is configured; the agent API mounts the
// same handler on its own router.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

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
