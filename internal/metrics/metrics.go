package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatterbox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatterbox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Channel metrics
	ChannelConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatterbox_channel_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	FramesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatterbox_frames_relayed_total",
			Help: "Frames relayed through chat channels",
		},
		[]string{"type"},
	)

	ProtocolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatterbox_protocol_errors_total",
			Help: "Inbound frames dropped as malformed",
		},
	)

	// Business metrics
	AccountsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatterbox_accounts_created_total",
			Help: "Total accounts created",
		},
	)

	ChatsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatterbox_chats_created_total",
			Help: "Total chats created",
		},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatterbox_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // "ok" or "rejected"
	)
)
