// Package metrics provides Prometheus metrics for the awards live-sync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Listener lifecycle
	listenersOpen   *prometheus.GaugeVec
	listenersOpened *prometheus.CounterVec
	listenersClosed *prometheus.CounterVec
	listenerErrors  *prometheus.CounterVec

	// Streams
	streamsActive     *prometheus.GaugeVec
	snapshotsEmitted  *prometheus.CounterVec
	decodeDrops       *prometheus.CounterVec
	fanoutChildren    *prometheus.GaugeVec
	fanoutChildErrors *prometheus.CounterVec
	mailboxDepth      *prometheus.GaugeVec
	mailboxRejected   *prometheus.CounterVec

	// RPC
	rpcCalls   *prometheus.CounterVec
	rpcLatency *prometheus.HistogramVec

	// Vote confirmation
	voteConfirmations *prometheus.CounterVec

	// HTTP and websocket gateway
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsSessions          prometheus.Gauge
	wsSubscriptions     prometheus.Gauge
	wsDropped           prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "awards",
		subsystem:        "sync",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.listenersOpen = m.gaugeVec("listeners_open", "Backend live listeners currently open", "kind")
	m.listenersOpened = m.counterVec("listeners_opened_total", "Backend live listeners opened", "kind")
	m.listenersClosed = m.counterVec("listeners_closed_total", "Backend live listeners closed", "kind")
	m.listenerErrors = m.counterVec("listener_errors_total", "Backend listeners terminated by an error", "kind")

	m.streamsActive = m.gaugeVec("streams_active", "Streams currently held open by consumers", "stream")
	m.snapshotsEmitted = m.counterVec("snapshots_emitted_total", "Snapshots delivered to consumers", "stream")
	m.decodeDrops = m.counterVec("decode_drops_total", "Documents dropped because they failed to decode", "collection")
	m.fanoutChildren = m.gaugeVec("fanout_children", "Child subscriptions held by fan-out aggregators", "stream")
	m.fanoutChildErrors = m.counterVec("fanout_child_errors_total", "Fan-out children removed after an error", "stream")
	m.mailboxDepth = m.gaugeVec("mailbox_depth", "Messages waiting in a queue", "queue")
	m.mailboxRejected = m.counterVec("mailbox_rejected_total", "Messages rejected by a full or closed queue", "queue", "reason")

	m.rpcCalls = m.counterVec("rpc_calls_total", "Remote procedure calls by outcome", "procedure", "outcome")
	m.rpcLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rpc_latency_milliseconds",
		Help:        "Remote procedure call latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"procedure"})

	m.voteConfirmations = m.counterVec("vote_confirmations_total", "Ceremony votes by read-side confirmation result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.wsSessions = m.gauge("ws_sessions", "Open websocket sessions")
	m.wsSubscriptions = m.gauge("ws_subscriptions", "Stream subscriptions held by websocket sessions")
	m.wsDropped = promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "ws_slow_consumers_total",
		Help:        "Websocket sessions closed because their outbox was full",
		ConstLabels: m.customLabels,
	})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Listener lifecycle.

// RecordListenerOpened counts a backend listener opening.
func RecordListenerOpened(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.listenersOpened.WithLabelValues(kind).Inc()
	globalManager.listenersOpen.WithLabelValues(kind).Inc()
}

// RecordListenerClosed counts a backend listener closing.
func RecordListenerClosed(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.listenersClosed.WithLabelValues(kind).Inc()
	globalManager.listenersOpen.WithLabelValues(kind).Dec()
}

// RecordListenerError counts a listener that ended with a backend error.
func RecordListenerError(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.listenerErrors.WithLabelValues(kind).Inc()
}

// Streams.

// RecordStreamOpened tracks a stream handed to a consumer.
func RecordStreamOpened(stream string) {
	if !globalManager.enabled {
		return
	}
	globalManager.streamsActive.WithLabelValues(stream).Inc()
}

// RecordStreamClosed tracks a stream torn down.
func RecordStreamClosed(stream string) {
	if !globalManager.enabled {
		return
	}
	globalManager.streamsActive.WithLabelValues(stream).Dec()
}

// RecordSnapshotEmitted counts a snapshot delivered to a consumer.
func RecordSnapshotEmitted(stream string) {
	if !globalManager.enabled {
		return
	}
	globalManager.snapshotsEmitted.WithLabelValues(stream).Inc()
}

// RecordDecodeDrop counts a document excluded from a snapshot.
func RecordDecodeDrop(collection string) {
	if !globalManager.enabled {
		return
	}
	globalManager.decodeDrops.WithLabelValues(collection).Inc()
}

// UpdateFanOutChildren sets the number of children held by a fan-out stream.
func UpdateFanOutChildren(stream string, delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.fanoutChildren.WithLabelValues(stream).Add(float64(delta))
}

// RecordFanOutChildError counts a child dropped after an error.
func RecordFanOutChildError(stream string) {
	if !globalManager.enabled {
		return
	}
	globalManager.fanoutChildErrors.WithLabelValues(stream).Inc()
}

// UpdateMailboxDepth sets the number of pending messages in a queue.
func UpdateMailboxDepth(queue string, depth int) {
	if !globalManager.enabled {
		return
	}
	globalManager.mailboxDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordMailboxRejected counts a message a queue refused.
func RecordMailboxRejected(queue, reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.mailboxRejected.WithLabelValues(queue, reason).Inc()
}

// RPC.

// RecordRPC records a remote procedure call outcome and latency.
func RecordRPC(procedure, outcome string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.rpcCalls.WithLabelValues(procedure, outcome).Inc()
	globalManager.rpcLatency.WithLabelValues(procedure).Observe(latencyMs)
}

// RecordVoteConfirmation counts "confirmed" or "timeout" results.
func RecordVoteConfirmation(result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.voteConfirmations.WithLabelValues(result).Inc()
}

// HTTP and websocket gateway.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateWSSessions adjusts the open websocket session gauge.
func UpdateWSSessions(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.wsSessions.Add(float64(delta))
}

// UpdateWSSubscriptions adjusts the websocket subscription gauge.
func UpdateWSSubscriptions(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.wsSubscriptions.Add(float64(delta))
}

// RecordWSSlowConsumer counts a session dropped for not reading.
func RecordWSSlowConsumer() {
	if !globalManager.enabled {
		return
	}
	globalManager.wsDropped.Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RefreshInterval is how often the process should refresh the system gauges.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
