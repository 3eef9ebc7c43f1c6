// Package metrics provides Prometheus metrics for the KTM prediction service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every KTM collector.
type Manager struct {
	namespace         string
	subsystem         string
	histogramBuckets  []float64
	evaluationBuckets []float64
	enabled           bool
	registry          prometheus.Registerer

	// Live prediction
	pointsTotal            *prometheus.CounterVec
	predictionsTotal       *prometheus.CounterVec
	nearestNeighborLatency prometheus.Histogram
	activeSessions         prometheus.Gauge
	tracesCompleted        prometheus.Counter

	// Library
	librarySize       prometheus.Gauge
	libraryOvershoots prometheus.Gauge
	libraryLoads      *prometheus.CounterVec

	// Offline evaluation
	evaluationRows     *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	evaluationJobs     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Collectors register on the configured
// registry (prometheus.DefaultRegisterer unless overridden).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "ktm",
		subsystem:         "predictor",
		histogramBuckets:  []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		evaluationBuckets: prometheus.ExponentialBuckets(1, 2, 14),
		enabled:           true,
		registry:          prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.pointsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "points_total",
		Help:      "Pointer samples received, by admission outcome",
	}, []string{"outcome"})

	m.predictionsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_total",
		Help:      "Endpoint predictions by mode and outcome",
	}, []string{"mode", "outcome"})

	m.nearestNeighborLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "nearest_neighbor_latency_milliseconds",
		Help:      "Time spent scanning the template library for one prediction",
		Buckets:   m.histogramBuckets,
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Live prediction sessions currently held in memory",
	})

	m.tracesCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trials_completed_total",
		Help:      "Trials completed with a recorded click",
	})

	m.librarySize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "library",
		Name:      "templates",
		Help:      "Templates in the active library",
	})

	m.libraryOvershoots = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "library",
		Name:      "overshoot_templates",
		Help:      "Templates in the active library flagged as overshoots",
	})

	m.libraryLoads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "library",
		Name:      "loads_total",
		Help:      "Library load attempts by outcome",
	}, []string{"outcome"})

	m.evaluationRows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "evaluation",
		Name:      "rows_total",
		Help:      "Evaluation rows produced, split by whether the prediction landed in the target",
	}, []string{"in_target"})

	m.evaluationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "evaluation",
		Name:      "candidate_duration_milliseconds",
		Help:      "Time spent evaluating one candidate template across all prefixes",
		Buckets:   m.evaluationBuckets,
	})

	m.evaluationJobs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "evaluation",
		Name:      "pending_jobs",
		Help:      "Candidate jobs waiting in the evaluation queue",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP error responses by endpoint and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "errors_by_component_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})
}

// Points

// RecordPoint counts a pointer sample; accepted reports whether it passed admission.
func RecordPoint(accepted bool) {
	if !globalManager.enabled {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	globalManager.pointsTotal.WithLabelValues(outcome).Inc()
}

// RecordPrediction counts a prediction attempt. outcome is "ok" or an error kind.
func RecordPrediction(mode, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.predictionsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordNearestNeighborLatency observes one library scan.
func RecordNearestNeighborLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.nearestNeighborLatency.Observe(latencyMs)
}

// UpdateActiveSessions sets the live session gauge.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordTrialCompleted counts a finished trial.
func RecordTrialCompleted() {
	if !globalManager.enabled {
		return
	}
	globalManager.tracesCompleted.Inc()
}

// Library

// UpdateLibrary sets library gauges.
func UpdateLibrary(templates, overshoots int) {
	globalManager.librarySize.Set(float64(templates))
	globalManager.libraryOvershoots.Set(float64(overshoots))
}

// RecordLibraryLoad counts a load attempt.
func RecordLibraryLoad(ok bool) {
	if !globalManager.enabled {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	globalManager.libraryLoads.WithLabelValues(outcome).Inc()
}

// Evaluation

// RecordEvaluationRow counts one evaluation row.
func RecordEvaluationRow(inTarget bool) {
	if !globalManager.enabled {
		return
	}
	label := "false"
	if inTarget {
		label = "true"
	}
	globalManager.evaluationRows.WithLabelValues(label).Inc()
}

// RecordEvaluationDuration observes the time spent on one candidate.
func RecordEvaluationDuration(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.evaluationDuration.Observe(latencyMs)
}

// UpdateEvaluationJobs sets the pending evaluation job gauge.
func UpdateEvaluationJobs(count int) {
	globalManager.evaluationJobs.Set(float64(count))
}

// HTTP

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the package registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
