package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks escrow calls by operation and outcome
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_calls_total",
			Help: "Total number of escrow calls",
		},
		[]string{"operation", "outcome"}, // ok, timeout, unavailable, rejected, invalid
	)

	// CallLatency tracks escrow call latency
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_call_latency_seconds",
			Help:    "Escrow call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)
