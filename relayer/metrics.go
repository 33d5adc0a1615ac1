package relayer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "relayer",
		Name:      "request_results_total",
	}, []string{"endpoint", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "permission_relay",
		Subsystem: "relayer",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "poller",
		Name:      "ticks_total",
	}, []string{"state"})
)

func ObserveDuration(endpoint string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(endpoint)).ObserveDuration
}
