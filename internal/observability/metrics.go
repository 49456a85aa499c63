package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	BlockedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_blocked_requests_total",
			Help: "Requests and websocket events rejected because the origin is blocked",
		},
		[]string{"surface"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"room"},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of frames queued to WebSocket connections",
		},
		[]string{"room", "mode"},
	)

	WebSocketSlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_consumers_total",
			Help: "Connections severed because their send buffer was full",
		},
	)

	// Message store metrics
	StoreBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_store_bytes",
			Help: "Total body bytes retained in the message store",
		},
	)

	StoreMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_store_messages",
			Help: "Number of messages retained in the message store",
		},
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_appended_total",
			Help: "Messages appended to the store",
		},
		[]string{"kind"},
	)

	MessagesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_evicted_total",
			Help: "Messages evicted to keep the store under capacity",
		},
	)

	// Escalation metrics
	EscalationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_escalation_attempts_total",
			Help: "Offline delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	EscalationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_escalations_dropped_total",
			Help: "Escalation tasks dropped because the worker pool was saturated",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
