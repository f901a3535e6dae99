package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnzy_push_messages_received_total",
			Help: "Inbound push messages by transport.",
		},
		[]string{"transport"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnzy_push_messages_dropped_total",
			Help: "Push messages that did not produce a notification, by reason.",
		},
		[]string{"reason"},
	)

	NotificationsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnzy_push_notifications_posted_total",
			Help: "Notifications posted to the tray, by style.",
		},
		[]string{"style"},
	)

	ImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnzy_push_image_fetches_total",
			Help: "Notification image fetch attempts by result.",
		},
		[]string{"result"},
	)

	SideEffects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnzy_push_side_effects_total",
			Help: "Type-routed side effects dispatched, by type.",
		},
		[]string{"type"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnzy_push_token_refreshes_total",
			Help: "Registration token refreshes by status.",
		},
		[]string{"status"},
	)
)
