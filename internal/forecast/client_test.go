package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/grade-market/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.ForecastConfig{
		URL:             srv.URL,
		Endpoint:        "/predict_regression",
		TimeoutSeconds:  1,
		RetryAttempts:   0,
		RateLimit:       1000,
		CacheTTLSeconds: 60,
		CacheMaxSize:    10,
	}
	return NewClient(cfg, log), &calls
}

func TestPredictSendsTenGradesAndClampedDifficulty(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict_regression", r.URL.Path)

		var req PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []float64{80, 80, 80, 80, 80, 80, 80, 80, 85, 90}, req.PastGrades)
		assert.Equal(t, 10.0, req.Difficulty)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"predicted_grade": 87.6,
			"rounded_grade":   88,
			"model_scaled":    true,
			"used_difficulty": true,
		})
	})

	difficulty := 15.0
	pred, err := client.Predict(context.Background(), []float64{80, 85, 90}, &difficulty)
	require.NoError(t, err)

	assert.Equal(t, 87.6, pred.PredictedGrade)
	assert.Equal(t, 88.0, pred.RoundedGrade)
	assert.Len(t, pred.Grades, HistoryLength)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// identical inputs are served from cache
	_, err = client.Predict(context.Background(), []float64{80, 85, 90}, &difficulty)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestPredictResultsDoNotShareCachedGrades(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"predicted_grade": 70.0, "rounded_grade": 70})
	})

	history := []float64{60, 70, 80}
	first, err := client.Predict(context.Background(), history, nil)
	require.NoError(t, err)
	want := append([]float64(nil), first.Grades...)
	first.Grades[0] = -1

	second, err := client.Predict(context.Background(), history, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, want, second.Grades)

	second.Grades[9] = -1
	third, err := client.Predict(context.Background(), history, nil)
	require.NoError(t, err)
	assert.Equal(t, want, third.Grades)
}

func TestPredictNoGradesSkipsUpstream(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.Predict(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, ErrNoGrades))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestPredictTimeoutIsDistinctFromRejection(t *testing.T) {
	slow, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	})

	_, err := slow.Predict(context.Background(), []float64{70}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrRejected))

	rejecting, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	_, err = rejecting.Predict(context.Background(), []float64{70}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestPredictInvalidResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rounded_grade": 80}`))
	})

	_, err := client.Predict(context.Background(), []float64{70, 75}, nil)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
}

func TestPredictUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	client := NewClient(&config.ForecastConfig{
		URL: url, Endpoint: "/predict_regression", TimeoutSeconds: 1,
		RateLimit: 1000, CacheTTLSeconds: 60, CacheMaxSize: 10,
	}, log)

	_, err := client.Predict(context.Background(), []float64{70}, nil)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestPredictionCacheKeyAndStats(t *testing.T) {
	cache := NewPredictionCache(time.Minute, 1)
	key := CacheKey{Grades: []float64{80, 90}, Difficulty: 1}

	assert.Nil(t, cache.Get(key))
	cache.Set(key, &Prediction{PredictedGrade: 85})
	require.NotNil(t, cache.Get(key))

	// full cache refuses new entries
	cache.Set(CacheKey{Grades: []float64{1}, Difficulty: 1}, &Prediction{})
	assert.Equal(t, 1, cache.ItemCount())

	hits, misses, ratio := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	assert.Equal(t, "80,90|1", key.String())
}
