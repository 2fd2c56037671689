package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/metrics"
)

// esMetrics implements es.ESMetrics using Prometheus.
type esMetrics struct {
	// Store metrics
	storeReadDuration   *prometheus.HistogramVec
	storeAppendDuration *prometheus.HistogramVec
	eventsAppended      *prometheus.CounterVec

	// Command pipeline metrics
	handleDuration       *prometheus.HistogramVec
	commandsRejected     *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Projection metrics
	projectDuration  *prometheus.HistogramVec
	projectionSaves  *prometheus.CounterVec
	projectionErrors *prometheus.CounterVec
}

// NewESMetrics creates a new Prometheus implementation of ESMetrics.
func NewESMetrics(reg prometheus.Registerer) es.ESMetrics {
	m := &esMetrics{
		storeReadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "esk_es_store_read_duration_seconds",
			Help:    "Event store read latency in seconds",
			Buckets: latencyBuckets,
		}, []string{"category"}),

		storeAppendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "esk_es_store_append_duration_seconds",
			Help:    "Event store append latency in seconds",
			Buckets: latencyBuckets,
		}, []string{"category"}),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_events_appended_total",
			Help: "Total number of events appended",
		}, []string{"category"}),

		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "esk_es_handle_duration_seconds",
			Help:    "Command handling latency in seconds",
			Buckets: latencyBuckets,
		}, []string{"category"}),

		commandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_commands_rejected_total",
			Help: "Total number of commands rejected by validation",
		}, []string{"category"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_concurrency_conflicts_total",
			Help: "Total number of expected version mismatches",
		}, []string{"category"}),

		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_cache_hits_total",
			Help: "Total number of state cache hits",
		}, []string{"category"}),

		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_cache_misses_total",
			Help: "Total number of state cache misses",
		}, []string{"category"}),

		projectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "esk_es_project_duration_seconds",
			Help:    "Read model projection latency in seconds",
			Buckets: latencyBuckets,
		}, []string{"projection"}),

		projectionSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_projection_saves_total",
			Help: "Total number of snapshot saves, by whether anything was written",
		}, []string{"projection", "written"}),

		projectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esk_es_projection_errors_total",
			Help: "Total number of failed projections",
		}, []string{"projection"}),
	}

	reg.MustRegister(
		m.storeReadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.handleDuration,
		m.commandsRejected,
		m.concurrencyConflicts,
		m.cacheHits,
		m.cacheMisses,
		m.projectDuration,
		m.projectionSaves,
		m.projectionErrors,
	)

	return m
}

func (m *esMetrics) StoreReadDuration(category string) metrics.Timer {
	return newTimer(m.storeReadDuration.WithLabelValues(category))
}

func (m *esMetrics) StoreAppendDuration(category string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(category))
}

func (m *esMetrics) EventsAppended(category string, count int) {
	m.eventsAppended.WithLabelValues(category).Add(float64(count))
}

func (m *esMetrics) HandleDuration(category string) metrics.Timer {
	return newTimer(m.handleDuration.WithLabelValues(category))
}

func (m *esMetrics) CommandRejected(category string) {
	m.commandsRejected.WithLabelValues(category).Inc()
}

func (m *esMetrics) ConcurrencyConflict(category string) {
	m.concurrencyConflicts.WithLabelValues(category).Inc()
}

func (m *esMetrics) CacheHit(category string) {
	m.cacheHits.WithLabelValues(category).Inc()
}

func (m *esMetrics) CacheMiss(category string) {
	m.cacheMisses.WithLabelValues(category).Inc()
}

func (m *esMetrics) ProjectDuration(projection string) metrics.Timer {
	return newTimer(m.projectDuration.WithLabelValues(projection))
}

func (m *esMetrics) ProjectionSaved(projection string, written bool) {
	m.projectionSaves.WithLabelValues(projection, boolLabel(written)).Inc()
}

func (m *esMetrics) ProjectionFailed(projection string) {
	m.projectionErrors.WithLabelValues(projection).Inc()
}

var _ es.ESMetrics = (*esMetrics)(nil)
