package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(ordersTotal, ordersRevenueTotal)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Orders by type (assign/bundle_top_up/wallet_top_up) and terminal status.",
		},
		[]string{"type", "status"},
	)

	ordersRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_revenue_total",
			Help: "Charged minor units of successful orders, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncOrder(orderType, status string) {
	ordersTotal.WithLabelValues(norm(orderType), norm(status)).Inc()
}

func AddOrderRevenue(currency string, amount int64) {
	ordersRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
