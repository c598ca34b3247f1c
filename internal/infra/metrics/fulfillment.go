package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(fulfillmentLatencyMs)
}

var fulfillmentLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fulfillment_latency_ms",
		Help:    "eSIM hub call latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 20000},
	},
	[]string{"endpoint", "success"},
)

func ObserveFulfillment(endpoint string, d time.Duration, success bool) {
	fulfillmentLatencyMs.WithLabelValues(endpoint, strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}
