package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventure_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventure_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Messaging metrics
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventure_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	ConversationCreateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventure_conversation_create_conflicts_total",
			Help: "Concurrent first-contact races resolved by re-reading the winner",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventure_messages_sent_total",
			Help: "Total messages appended",
		},
	)

	// Real-time metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventure_ws_connected_clients",
			Help: "Currently connected websocket clients",
		},
	)

	BroadcastsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventure_broadcasts_dropped_total",
			Help: "Real-time events that were not delivered",
		},
		[]string{"reason"}, // "hub_queue", "slow_consumer", "publish_error"
	)

	// Notification metrics
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventure_notifications_created_total",
			Help: "Total notifications persisted",
		},
		[]string{"kind"}, // "comment", "reply", "event_changed", "direct"
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventure_notification_failures_total",
			Help: "Notifications that could not be persisted and were discarded",
		},
		[]string{"kind"},
	)
)
