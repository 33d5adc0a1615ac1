package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "batch",
		Name:      "multicalls_total",
	}, []string{"kind"})

	ItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission_relay",
		Subsystem: "batch",
		Name:      "item_failures_total",
	}, []string{"kind"})
)
