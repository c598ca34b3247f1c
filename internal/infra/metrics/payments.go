package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(paymentsTotal)
}

var paymentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Gateway interactions by status (initiated/canceled/refunded/create_failed/refund_failed).",
	},
	[]string{"status"},
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}
