package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the cutover engine.
type Metrics struct {
	config MetricsConfig

	// Transition metrics
	transitionsApplied  *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	// Instantiation metrics
	graphsInstantiated    prometheus.Counter
	instantiationDuration prometheus.Histogram
	graphNodes            prometheus.Histogram

	// Registry metrics
	registeredStatuses *prometheus.GaugeVec

	// Audit metrics
	auditEvents prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeGraphs     prometheus.Gauge
	closedIterations prometheus.Counter

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

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		transitionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_applied_total",
				Help:      "Total number of status transitions applied",
			},
			[]string{"kind", "to_category"},
		),
		transitionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_rejected_total",
				Help:      "Total number of status transitions rejected",
			},
			[]string{"code"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_execution_duration_seconds",
				Help:      "Wall time from first start to terminal category per node",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		graphsInstantiated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphs_instantiated_total",
				Help:      "Total number of instance graphs created from plan templates",
			},
		),
		instantiationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "instantiation_duration_seconds",
				Help:      "Duration of template-to-instance graph copies in seconds",
				Buckets:   buckets,
			},
		),
		graphNodes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_nodes",
				Help:      "Number of instance nodes per instantiated graph",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
			},
		),

		registeredStatuses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registered_statuses",
				Help:      "Current number of registered statuses per entity kind",
			},
			[]string{"kind"},
		),

		auditEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_events_total",
				Help:      "Total number of audit events recorded",
			},
		),

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

		activeGraphs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_graphs",
				Help:      "Current number of instance graphs on open iterations",
			},
		),
		closedIterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_closed_total",
				Help:      "Total number of iterations closed",
			},
		),
	}

	registry.MustRegister(
		m.transitionsApplied,
		m.transitionsRejected,
		m.nodeDuration,
		m.graphsInstantiated,
		m.instantiationDuration,
		m.graphNodes,
		m.registeredStatuses,
		m.auditEvents,
		m.errorsByClass,
		m.errorsByCode,
		m.activeGraphs,
		m.closedIterations,
	)

	return m, nil
}

// Transition Metrics

// RecordTransitionApplied increments the applied-transition counter and the
// audit event counter.
func (m *Metrics) RecordTransitionApplied(kind, toCategory string) {
	if m.transitionsApplied == nil {
		return
	}
	m.transitionsApplied.WithLabelValues(kind, toCategory).Inc()
	m.auditEvents.Inc()
}

// RecordTransitionRejected increments the rejected-transition counter by
// rejection code.
func (m *Metrics) RecordTransitionRejected(code string) {
	if m.transitionsRejected == nil {
		return
	}
	m.transitionsRejected.WithLabelValues(code).Inc()
}

// RecordNodeDuration records the wall time a node spent executing.
func (m *Metrics) RecordNodeDuration(kind string, duration time.Duration) {
	if m.nodeDuration == nil {
		return
	}
	m.nodeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Instantiation Metrics

// RecordInstantiation records a completed template-to-instance copy.
func (m *Metrics) RecordInstantiation(nodeCount int, duration time.Duration) {
	if m.graphsInstantiated == nil {
		return
	}
	m.graphsInstantiated.Inc()
	m.instantiationDuration.Observe(duration.Seconds())
	m.graphNodes.Observe(float64(nodeCount))
	m.activeGraphs.Inc()
}

// Registry Metrics

// SetRegisteredStatuses sets the current status count for an entity kind.
func (m *Metrics) SetRegisteredStatuses(kind string, count float64) {
	if m.registeredStatuses == nil {
		return
	}
	m.registeredStatuses.WithLabelValues(kind).Set(count)
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

// System Metrics

// RecordIterationClosed marks an iteration closed and drops its graph from
// the active gauge.
func (m *Metrics) RecordIterationClosed() {
	if m.closedIterations == nil {
		return
	}
	m.closedIterations.Inc()
	m.activeGraphs.Dec()
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
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
