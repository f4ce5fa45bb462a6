package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all whitelist sync metrics.
type Registry struct {
	// Whitelist store
	WhitelistOps     *prometheus.CounterVec
	WhitelistEntries *prometheus.GaugeVec

	// RCON
	RCONCommands *prometheus.CounterVec
	RCONLatency  prometheus.Histogram

	// Bridge
	BridgeState      prometheus.Gauge
	BridgeMessages   *prometheus.CounterVec
	BridgeDropped    *prometheus.CounterVec
	BridgeReconnects prometheus.Counter

	// Server
	OnlinePlayers prometheus.Gauge
	LogEvents     *prometheus.CounterVec

	// Notifications
	Notifications *prometheus.CounterVec

	// System
	Uptime      prometheus.Gauge
	Goroutines  prometheus.Gauge
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.WhitelistOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whitelist_operations_total",
		Help: "Whitelist store operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	r.WhitelistEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "whitelist_entries",
		Help: "Number of whitelisted players seen by the last list operation",
	}, []string{"backend"})

	r.RCONCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcon_commands_total",
		Help: "RCON commands executed by result",
	}, []string{"result"})

	r.RCONLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rcon_command_duration_seconds",
		Help:    "RCON round trip latency including connect and auth",
		Buckets: prometheus.DefBuckets,
	})

	r.BridgeState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_state",
		Help: "Bridge connection state (0=stopped, 1=connecting, 2=authenticated)",
	})

	r.BridgeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_total",
		Help: "Bridge messages by direction and type",
	}, []string{"direction", "type"})

	r.BridgeDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_dropped_total",
		Help: "Outbound bridge messages dropped because the bridge was not ready or the queue was full",
	}, []string{"type"})

	r.BridgeReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reconnects_total",
		Help: "Bridge reconnect attempts",
	})

	r.OnlinePlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "server_online_players",
		Help: "Players currently online according to the server log",
	})

	r.LogEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "server_log_events_total",
		Help: "Player events parsed from the server log",
	}, []string{"type"})

	r.Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Whitelist notifications by event type and whether any channel accepted them",
	}, []string{"type", "result"})

	r.Uptime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whitelisthub_uptime_seconds",
		Help: "Seconds since the daemon started",
	})

	r.Goroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whitelisthub_goroutines",
		Help: "Number of live goroutines",
	})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "HTTP API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "HTTP API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// RecordWhitelistOp records one store operation. A nil error counts as success.
func (r *Registry) RecordWhitelistOp(backend, op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.WhitelistOps.WithLabelValues(backend, op, result).Inc()
}

// RecordRCON records one RCON round trip.
func (r *Registry) RecordRCON(result string, seconds float64) {
	r.RCONCommands.WithLabelValues(result).Inc()
	r.RCONLatency.Observe(seconds)
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}
