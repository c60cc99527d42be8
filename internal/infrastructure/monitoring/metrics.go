package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Dispatch metrics
	Dispatches      *prometheus.CounterVec
	DispatchErrors  *prometheus.CounterVec
	ActiveStreams   prometheus.Gauge
	StreamEvents    *prometheus.CounterVec
	Supersedes      *prometheus.CounterVec
	StaleEvents     *prometheus.CounterVec
	StreamTimeouts  *prometheus.CounterVec
	HistoryEvicted  *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	Dispatches     int64   `json:"dispatches"`
	ActiveStreams  int64   `json:"active_streams"`
	ActiveSessions int64   `json:"active_sessions"`
	WSConnections  int64   `json:"ws_connections"`
	TotalDuration  float64 `json:"total_duration_seconds"`
	RequestCount   int64   `json:"request_count"`
}

// NewMetrics creates a new metrics collector with its own registry, so
// multiple instances can coexist in one process.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	promauto := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "widgetd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Dispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_dispatches_total",
				Help: "Total number of widget requests dispatched",
			},
			[]string{"widget", "status"},
		),
		DispatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_dispatch_errors_total",
				Help: "Total number of synchronous dispatch rejections",
			},
			[]string{"widget"},
		),
		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "widgetd_active_streams",
				Help: "Number of event streams currently being ingested",
			},
		),
		StreamEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_stream_events_total",
				Help: "Total number of stream events applied",
			},
			[]string{"widget", "kind"},
		),
		Supersedes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_supersedes_total",
				Help: "Total number of in-flight requests superseded",
			},
			[]string{"widget"},
		),
		StaleEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_stale_events_total",
				Help: "Total number of events dropped by the stale-id guard",
			},
			[]string{"widget"},
		),
		StreamTimeouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_stream_timeouts_total",
				Help: "Total number of streams that timed out waiting for events",
			},
			[]string{"widget"},
		),
		HistoryEvicted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_history_evictions_total",
				Help: "Total number of history items evicted by capacity",
			},
			[]string{"widget"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "widgetd_sessions_active",
				Help: "Number of active widget sessions",
			},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "widgetd_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "widgetd_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "widgetd_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// Registry returns the metric registry for the scrape handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordDispatch records a dispatched widget request
func (m *Metrics) RecordDispatch(widget, status string) {
	m.Dispatches.WithLabelValues(widget, status).Inc()
	m.mu.Lock()
	m.snapshot.Dispatches++
	m.mu.Unlock()
}

// IncDispatchErrors records a synchronous dispatch rejection
func (m *Metrics) IncDispatchErrors(widget string) {
	m.DispatchErrors.WithLabelValues(widget).Inc()
}

// IncActiveStreams increments the active stream gauge
func (m *Metrics) IncActiveStreams() {
	m.ActiveStreams.Inc()
	m.mu.Lock()
	m.snapshot.ActiveStreams++
	m.mu.Unlock()
}

// DecActiveStreams decrements the active stream gauge
func (m *Metrics) DecActiveStreams() {
	m.ActiveStreams.Dec()
	m.mu.Lock()
	m.snapshot.ActiveStreams--
	m.mu.Unlock()
}

// IncStreamEvents records an applied stream event
func (m *Metrics) IncStreamEvents(widget, kind string) {
	m.StreamEvents.WithLabelValues(widget, kind).Inc()
}

// IncSupersedes records a superseded in-flight request
func (m *Metrics) IncSupersedes(widget string) {
	m.Supersedes.WithLabelValues(widget).Inc()
}

// IncStaleEvents records an event dropped by the stale-id guard
func (m *Metrics) IncStaleEvents(widget string) {
	m.StaleEvents.WithLabelValues(widget).Inc()
}

// IncStreamTimeouts records a stream idle timeout
func (m *Metrics) IncStreamTimeouts(widget string) {
	m.StreamTimeouts.WithLabelValues(widget).Inc()
}

// IncHistoryEvictions records a capacity eviction
func (m *Metrics) IncHistoryEvictions(widget string) {
	m.HistoryEvicted.WithLabelValues(widget).Inc()
}

// SetSessionsActive sets the number of active sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.WSConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.WSConnections--
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// GetSnapshot returns current metric values for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
