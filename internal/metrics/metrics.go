package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parlor_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Broker metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parlor_ws_connections",
			Help: "Currently open websocket connections",
		},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parlor_messages_relayed_total",
			Help: "Messages fanned out to peers",
		},
	)

	ConversationsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parlor_conversations_flushed_total",
			Help: "Conversation blocks persisted",
		},
	)

	FlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parlor_conversation_flush_failures_total",
			Help: "Conversation blocks dropped on persistence failure",
		},
	)

	// Auth metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parlor_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parlor_rate_limit_hits_total",
			Help: "Requests rejected by the login rate limiter",
		},
	)
)
