package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for live-channel connections.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	WatchedPolls        prometheus.Gauge
	MessagesSent        prometheus.Counter
	SlowClientsEvicted  prometheus.Counter
	PingFailures        prometheus.Counter
	IdleDisconnects     prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	VotesThrottled      prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_subscriptions",
			Help:      "Number of connection-to-poll subscriptions.",
		}),
		WatchedPolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "watched_polls",
			Help:      "Number of polls with at least one subscriber.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total number of WebSocket messages written to clients.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of clients disconnected for not draining their send buffer.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total number of failed ping writes.",
		}),
		IdleDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "idle_disconnects_total",
			Help:      "Total number of connections closed for inactivity.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Total number of upgrade requests refused by connection limits, by reason.",
		}, []string{"reason"}),
		VotesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "votes_throttled_total",
			Help:      "Total number of votes dropped by the per-connection vote rate limit.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.ActiveSubscriptions, m.WatchedPolls, m.MessagesSent,
		m.SlowClientsEvicted, m.PingFailures, m.IdleDisconnects, m.ConnectionsRejected, m.VotesThrottled)
	return m
}
