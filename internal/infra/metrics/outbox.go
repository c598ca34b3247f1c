package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(notificationsTotal, outboxPendingGauge)
}

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbox deliveries by channel (push/email) and result (sent/failed).",
		},
		[]string{"channel", "result"},
	)

	outboxPendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_outbox_pending",
			Help: "Entries currently pending in the notification outbox.",
		},
	)
)

func IncNotification(channel, result string) {
	notificationsTotal.WithLabelValues(norm(channel), norm(result)).Inc()
}

func SetOutboxPending(n int) {
	outboxPendingGauge.Set(float64(n))
}
