package forecast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PredictionsTotal tracks forecast requests by cache usage
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_predictions_total",
			Help: "Total number of grade forecasts served",
		},
		[]string{"cache_hit"},
	)

	// PredictionLatency tracks upstream forecast latency
	PredictionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecast_prediction_latency_seconds",
			Help:    "Forecast service latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ErrorsTotal tracks forecast failures by class
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_errors_total",
			Help: "Total number of failed forecast requests",
		},
		[]string{"error_type"}, // timeout, unavailable, rejected, invalid
	)

	// CacheHitRatio tracks cache hit ratio
	CacheHitRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forecast_cache_hit_ratio",
			Help: "Forecast cache hit ratio",
		},
	)
)
