// Package metrics provides the centralized Prometheus registry for the grade market.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	BetsPlacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "bets_placed_total",
		Help:      "Total number of bets placed and recorded",
	})
	PlacementFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "placement_failures_total",
		Help:      "Total number of failed bet placements by reason",
	}, []string{"reason"})
	BetsSettledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "bets_settled_total",
		Help:      "Total number of bets settled by outcome",
	}, []string{"outcome"})
	CoursesResolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "courses_resolved_total",
		Help:      "Total number of course resolutions by status",
	}, []string{"status"})
	OddsWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "odds_writes_total",
		Help:      "Total number of odds updates by mode",
	}, []string{"mode"})
	InconsistenciesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "inconsistencies_total",
		Help:      "Total number of cross-ledger inconsistencies detected",
	}, []string{"reason"})
	ContractsDeployedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "grade_market",
		Name:      "contracts_deployed_total",
		Help:      "Total number of escrow contracts deployed",
	})
)

// Gauge metrics
var (
	PendingSettlements = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "grade_market",
		Name:      "pending_settlements",
		Help:      "Unresolved bets on resolved courses seen by the last sweep",
	})
)

// Histogram metrics
var (
	BetPlacementLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grade_market",
		Name:      "bet_placement_latency_seconds",
		Help:      "Latency of bet placement operations in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	ResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grade_market",
		Name:      "resolution_duration_seconds",
		Help:      "Duration of course resolution in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(BetsPlacedTotal)
		registry.MustRegister(PlacementFailuresTotal)
		registry.MustRegister(BetsSettledTotal)
		registry.MustRegister(CoursesResolvedTotal)
		registry.MustRegister(OddsWritesTotal)
		registry.MustRegister(InconsistenciesTotal)
		registry.MustRegister(ContractsDeployedTotal)

		registry.MustRegister(PendingSettlements)

		registry.MustRegister(BetPlacementLatency)
		registry.MustRegister(ResolutionDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler. Client metrics registered
// through promauto live on the default registry and are served alongside.
func Handler() http.Handler {
	gatherers := prometheus.Gatherers{GetRegistry(), prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// RecordBetPlaced records a recorded bet placement and its latency.
func RecordBetPlaced(durationSeconds float64) {
	BetsPlacedTotal.Inc()
	BetPlacementLatency.Observe(durationSeconds)
}

// RecordPlacementFailure records a failed placement by reason code.
func RecordPlacementFailure(reason string) {
	PlacementFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordBetSettled records a bet backfilled with its outcome.
func RecordBetSettled(won bool) {
	outcome := "lose"
	if won {
		outcome = "win"
	}
	BetsSettledTotal.WithLabelValues(outcome).Inc()
}

// RecordCourseResolved records a course resolution by terminal status.
func RecordCourseResolved(status string, durationSeconds float64) {
	CoursesResolvedTotal.WithLabelValues(status).Inc()
	ResolutionDuration.Observe(durationSeconds)
}

// RecordOddsWrite records an odds update by mode.
func RecordOddsWrite(mode string) {
	OddsWritesTotal.WithLabelValues(mode).Inc()
}

// RecordInconsistency records a detected cross-ledger inconsistency.
func RecordInconsistency(reason string) {
	InconsistenciesTotal.WithLabelValues(reason).Inc()
}

// RecordContractDeployed records an escrow deployment.
func RecordContractDeployed() {
	ContractsDeployedTotal.Inc()
}

// UpdatePendingSettlements sets the pending settlement gauge.
func UpdatePendingSettlements(count int) {
	PendingSettlements.Set(float64(count))
}
