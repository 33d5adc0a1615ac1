package signer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SignatureRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "permission_relay",
	Subsystem: "signer",
	Name:      "signature_requests_total",
}, []string{"result"})
