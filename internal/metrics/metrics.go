package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total accepted connections",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Total refused connection attempts",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Currently registered connections",
		},
	)

	// Broadcast metrics
	MessagesBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_broadcast_total",
			Help: "Total messages accepted for broadcast",
		},
		[]string{"kind"}, // "text" or "image"
	)

	Deliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total per-recipient deliveries",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Total failed per-recipient pushes",
		},
	)

	// Signaling metrics
	PeersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_peer_sessions_active",
			Help: "Currently active peer signaling sessions",
		},
	)

	SignalsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_signals_relayed_total",
			Help: "Total call-signal payloads relayed",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Total messages refused by the rate limiter",
		},
	)
)
