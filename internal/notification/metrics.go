package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_notification_channel_deliveries_total",
		Help: "Channel delivery attempts by channel and outcome (sent, failed, skipped).",
	}, []string{"channel", "outcome"})

	pushTokensPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_push_tokens_pruned_total",
		Help: "Device tokens removed after the push gateway reported them invalid.",
	})

	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_notifications_created_total",
		Help: "Notifications accepted by the creation path, by category and final status.",
	}, []string{"category", "status"})
)
