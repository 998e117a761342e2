package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for openhoist. It implements the
// effect and publish observer interfaces of the engine and assets packages,
// so a nil-safe no-op instance is returned when metrics are disabled.
type Metrics struct {
	config MetricsConfig

	// Deployment metrics
	deploymentsStarted   *prometheus.CounterVec
	deploymentsCompleted *prometheus.CounterVec
	deploymentDuration   *prometheus.HistogramVec

	// Effect metrics
	effectsRan     *prometheus.CounterVec
	effectsSkipped prometheus.Counter
	effectDuration prometheus.Histogram

	// Asset metrics
	objectsPublished prometheus.Counter
	bytesPublished   prometheus.Counter

	// Rule metrics
	rulesApplied prometheus.Counter
	rulesRetired prometheus.Counter

	// Endpoint query metrics
	endpointQueries *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance: all record methods check for nil collectors.
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

		deploymentsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_started_total",
				Help:      "Total number of deployment runs started",
			},
			[]string{"mode"},
		),
		deploymentsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_completed_total",
				Help:      "Total number of deployment runs completed",
			},
			[]string{"mode", "status"},
		),
		deploymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   buckets,
			},
			[]string{"mode", "status"},
		),

		effectsRan: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effects_ran_total",
				Help:      "Total number of side effects executed",
			},
			[]string{"status"},
		),
		effectsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effects_skipped_total",
				Help:      "Total number of side effects short-circuited in preview",
			},
		),
		effectDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "effect_duration_seconds",
				Help:      "Duration of side effect execution in seconds",
				Buckets:   buckets,
			},
		),

		objectsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_published_total",
				Help:      "Total number of objects published to the object store",
			},
		),
		bytesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_published_total",
				Help:      "Total bytes published to the object store",
			},
		),

		rulesApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "firewall_rules_applied_total",
				Help:      "Total number of firewall rules applied",
			},
		),
		rulesRetired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "firewall_rules_retired_total",
				Help:      "Total number of stale firewall rules retired",
			},
		),

		endpointQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_queries_total",
				Help:      "Total number of endpoint resolution queries",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.deploymentsStarted,
		m.deploymentsCompleted,
		m.deploymentDuration,
		m.effectsRan,
		m.effectsSkipped,
		m.effectDuration,
		m.objectsPublished,
		m.bytesPublished,
		m.rulesApplied,
		m.rulesRetired,
		m.endpointQueries,
	)

	return m, nil
}

// RecordDeploymentStarted increments the counter for started deployment runs.
func (m *Metrics) RecordDeploymentStarted(mode string) {
	if m.deploymentsStarted == nil {
		return
	}
	m.deploymentsStarted.WithLabelValues(mode).Inc()
}

// RecordDeploymentCompleted records a completed run with its status and duration.
func (m *Metrics) RecordDeploymentCompleted(mode, status string, duration time.Duration) {
	if m.deploymentsCompleted == nil {
		return
	}
	m.deploymentsCompleted.WithLabelValues(mode, status).Inc()
	m.deploymentDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

// EffectRan implements engine.EffectObserver.
func (m *Metrics) EffectRan(name string, duration time.Duration, err error) {
	if m.effectsRan == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.effectsRan.WithLabelValues(status).Inc()
	m.effectDuration.Observe(duration.Seconds())
}

// EffectSkipped implements engine.EffectObserver.
func (m *Metrics) EffectSkipped(name string) {
	if m.effectsSkipped == nil {
		return
	}
	m.effectsSkipped.Inc()
}

// ObjectPublished implements assets.Observer.
func (m *Metrics) ObjectPublished(name string, size int) {
	if m.objectsPublished == nil {
		return
	}
	m.objectsPublished.Inc()
	m.bytesPublished.Add(float64(size))
}

// RecordRulesApplied adds to the applied rule counter.
func (m *Metrics) RecordRulesApplied(count int) {
	if m.rulesApplied == nil {
		return
	}
	m.rulesApplied.Add(float64(count))
}

// RecordRulesRetired adds to the retired rule counter.
func (m *Metrics) RecordRulesRetired(count int) {
	if m.rulesRetired == nil {
		return
	}
	m.rulesRetired.Add(float64(count))
}

// RecordEndpointQuery records an endpoint resolution attempt.
func (m *Metrics) RecordEndpointQuery(err error) {
	if m.endpointQueries == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.endpointQueries.WithLabelValues(status).Inc()
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
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return nil
}
