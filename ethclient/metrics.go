package ethclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "rpc",
		Name:      "request_results_total",
	}, []string{"url", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "permission_relay",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"url", "query"})
)

func ObserveError(url, query string, err error) {
	var rpcErr rpc.Error
	switch {
	case err == nil:
		RequestResults.WithLabelValues(url, query, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(url, query, "timeout").Inc()
	case errors.As(err, &rpcErr):
		RequestResults.WithLabelValues(url, query, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
	default:
		RequestResults.WithLabelValues(url, query, "error").Inc()
	}
}

func ObserveDuration(url, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(url, query)).ObserveDuration
}
