package permissions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "controller",
		Name:      "operations_total",
	}, []string{"operation", "result"})

	ResumedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "sweeper",
		Name:      "resumed_operations_total",
	}, []string{"result"})
)

func observeResult(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	Operations.WithLabelValues(op, result).Inc()
}
