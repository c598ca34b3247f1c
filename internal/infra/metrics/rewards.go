package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(rewardsTotal, rewardsAmountTotal)
}

var (
	rewardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_total",
			Help: "Settled rewards by kind (promotion/referral) and status.",
		},
		[]string{"kind", "status"},
	)

	rewardsAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_amount_total",
			Help: "Minor units of settled reward value by kind.",
		},
		[]string{"kind"},
	)
)

func IncReward(kind, status string) {
	rewardsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func AddRewardAmount(kind string, amount int64) {
	rewardsAmountTotal.WithLabelValues(norm(kind)).Add(float64(amount))
}
