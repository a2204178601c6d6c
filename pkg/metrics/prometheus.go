// Package metrics provides Prometheus metrics for the KVN scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	scoreSubmissions   *prometheus.CounterVec
	scoreboardDuration prometheus.Histogram
	scoreboardBuilds   prometheus.Counter
	resets             prometheus.Counter

	// Roster
	rosterMutations *prometheus.CounterVec
	rosterSize      *prometheus.GaugeVec

	// Store
	entriesTotal prometheus.Gauge
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level helpers

// Custom registry keeps the default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // shared registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "kvn",
		subsystem:        "scoring",
		histogramBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.scoreSubmissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "score_submissions_total",
		Help:        "Judge score submissions by outcome (accepted, invalid, stale, error)",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.scoreboardDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "scoreboard_duration_milliseconds",
		Help:        "Time to load entries and compute the ranked scoreboard",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.scoreboardBuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "scoreboard_builds_total",
		Help:        "Scoreboard computations actually executed (shared requests count once)",
		ConstLabels: m.constLabels,
	})

	m.resets = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "resets_total",
		Help:        "Number of clear-all operations",
		ConstLabels: m.constLabels,
	})

	m.rosterMutations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "roster_mutations_total",
		Help:        "Roster edits by kind (team, judge, round) and action (add, rename, remove)",
		ConstLabels: m.constLabels,
	}, []string{"kind", "action"})

	m.rosterSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "roster_size",
		Help:        "Current number of teams, judges and rounds",
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.entriesTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "entries_total",
		Help:        "Number of stored score entries",
		ConstLabels: m.constLabels,
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_latency_milliseconds",
		Help:        "Score store operation latency by operation",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "HTTP requests by endpoint, method and status code",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_component_total",
		Help:        "Errors by component and error type",
		ConstLabels: m.constLabels,
	}, []string{"component", "error_type"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_endpoint_total",
		Help:        "HTTP errors by endpoint, method and error type",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "Heap bytes allocated",
		ConstLabels: m.constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: m.constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		ConstLabels: m.constLabels,
	})
}

// RecordScoreSubmission counts a submission with its outcome.
func (m *Manager) RecordScoreSubmission(outcome string) {
	if m.enabled {
		m.scoreSubmissions.WithLabelValues(outcome).Inc()
	}
}

// RecordScoreboard records one executed scoreboard computation.
func (m *Manager) RecordScoreboard(durationMs float64) {
	if m.enabled {
		m.scoreboardBuilds.Inc()
		m.scoreboardDuration.Observe(durationMs)
	}
}

// RecordReset counts a clear-all.
func (m *Manager) RecordReset() {
	if m.enabled {
		m.resets.Inc()
	}
}

// RecordRosterMutation counts a roster edit.
func (m *Manager) RecordRosterMutation(kind, action string) {
	if m.enabled {
		m.rosterMutations.WithLabelValues(kind, action).Inc()
	}
}

// UpdateRosterSize sets the roster gauges.
func (m *Manager) UpdateRosterSize(teams, judges, rounds int) {
	if m.enabled {
		m.rosterSize.WithLabelValues("team").Set(float64(teams))
		m.rosterSize.WithLabelValues("judge").Set(float64(judges))
		m.rosterSize.WithLabelValues("round").Set(float64(rounds))
	}
}

// UpdateEntriesTotal sets the stored entry gauge.
func (m *Manager) UpdateEntriesTotal(count int) {
	if m.enabled {
		m.entriesTotal.Set(float64(count))
	}
}

// RecordStoreLatency observes a store operation.
func (m *Manager) RecordStoreLatency(op string, latencyMs float64) {
	if m.enabled {
		m.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// RecordHTTPRequest counts an HTTP request and observes its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent counts an error raised inside a component.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if m.enabled {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint counts an HTTP error response.
func (m *Manager) RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m.enabled {
		m.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// Package-level helpers delegate to the global manager.

// RecordScoreSubmission counts a submission with its outcome.
func RecordScoreSubmission(outcome string) { globalManager.RecordScoreSubmission(outcome) }

// RecordScoreboard records one executed scoreboard computation.
func RecordScoreboard(durationMs float64) { globalManager.RecordScoreboard(durationMs) }

// RecordReset counts a clear-all.
func RecordReset() { globalManager.RecordReset() }

// RecordRosterMutation counts a roster edit.
func RecordRosterMutation(kind, action string) { globalManager.RecordRosterMutation(kind, action) }

// UpdateRosterSize sets the roster gauges.
func UpdateRosterSize(teams, judges, rounds int) {
	globalManager.UpdateRosterSize(teams, judges, rounds)
}

// UpdateEntriesTotal sets the stored entry gauge.
func UpdateEntriesTotal(count int) { globalManager.UpdateEntriesTotal(count) }

// RecordStoreLatency observes a store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.RecordStoreLatency(op, latencyMs)
}

// RecordHTTPRequest counts an HTTP request and observes its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.RecordErrorByEndpoint(endpoint, method, errorType)
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
