// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wschat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wschat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wschat_connections_active",
			Help: "Currently registered connections",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wschat_auth_failures_total",
			Help: "Handshake authentication failures",
		},
		[]string{"reason"},
	)

	ConnectionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wschat_connections_superseded_total",
			Help: "Connections replaced by a newer connection of the same user",
		},
	)

	// Routing metrics
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wschat_messages_routed_total",
			Help: "Messages accepted for delivery",
		},
		[]string{"outcome"}, // "delivered" or "unread"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wschat_messages_rejected_total",
			Help: "Messages rejected before delivery",
		},
		[]string{"kind"},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wschat_send_failures_total",
			Help: "Per-recipient send failures",
		},
	)

	HookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wschat_hook_failures_total",
			Help: "Persistence and send hook failures",
		},
		[]string{"hook"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wschat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"}, // "message", "upgrade" or "api"
	)

	// Infrastructure metrics
	DialogLookupLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wschat_dialog_lookup_seconds",
			Help:    "Dialog membership lookup latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
	)

	MessagesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wschat_messages_purged_total",
			Help: "Stored messages removed by retention",
		},
	)
)
