package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
	assert.Same(t, registry, InitRegistry())
}

func TestRecordBetPlaced(t *testing.T) {
	InitRegistry()
	before := testutil.ToFloat64(BetsPlacedTotal)

	RecordBetPlaced(0.25)

	assert.Equal(t, before+1, testutil.ToFloat64(BetsPlacedTotal))
}

func TestRecordPlacementFailure(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name   string
		reason string
	}{
		{name: "deploy", reason: "contract_deploy_failed"},
		{name: "stake", reason: "stake_placement_failed"},
		{name: "ledger", reason: "stake_placed_but_unrecorded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := PlacementFailuresTotal.WithLabelValues(tt.reason)
			before := testutil.ToFloat64(counter)
			RecordPlacementFailure(tt.reason)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestRecordBetSettled(t *testing.T) {
	InitRegistry()
	wins := testutil.ToFloat64(BetsSettledTotal.WithLabelValues("win"))
	losses := testutil.ToFloat64(BetsSettledTotal.WithLabelValues("lose"))

	RecordBetSettled(true)
	RecordBetSettled(false)
	RecordBetSettled(false)

	assert.Equal(t, wins+1, testutil.ToFloat64(BetsSettledTotal.WithLabelValues("win")))
	assert.Equal(t, losses+2, testutil.ToFloat64(BetsSettledTotal.WithLabelValues("lose")))
}

func TestRecordResolutionAndOdds(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordCourseResolved("partial_failure", 1.5)
		RecordOddsWrite("seed")
		RecordInconsistency("stake_placed_but_unrecorded")
		RecordContractDeployed()
		UpdatePendingSettlements(3)
	})
	assert.Equal(t, 3.0, testutil.ToFloat64(PendingSettlements))
}

func TestMetricsHandler(t *testing.T) {
	InitRegistry()
	RecordBetPlaced(0.1)

	handler := Handler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grade_market_bets_placed_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func BenchmarkRecordBetPlaced(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordBetPlaced(0.01)
	}
}
