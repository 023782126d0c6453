// Package metrics declares the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sessions tracks live sessions by online status (online|reconnecting).
	Sessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "counselchat_sessions",
			Help: "Number of sessions by online status",
		},
		[]string{"status"},
	)

	// Transitions counts session state changes by target state.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counselchat_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"to"},
	)

	// Rooms tracks the number of rooms.
	Rooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "counselchat_rooms",
			Help: "Number of open rooms",
		},
	)

	// Queued tracks clients waiting in global queues.
	Queued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "counselchat_queued_clients",
			Help: "Number of clients waiting in global queues",
		},
	)

	// Calls counts inbound server method calls by method and result (ok|error|denied).
	Calls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counselchat_calls_total",
			Help: "Total number of server method calls",
		},
		[]string{"method", "result"},
	)

	// PingDelay measures heartbeat round trips.
	PingDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "counselchat_ping_delay_seconds",
			Help:    "Heartbeat round trip time",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Rejected counts refused connections by reason (banned|geo).
	Rejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counselchat_rejected_connections_total",
			Help: "Total number of refused connections",
		},
		[]string{"reason"},
	)
)
