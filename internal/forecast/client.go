// Package forecast adapts the external grade regression service.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/httpclient"
	"github.com/yourusername/grade-market/internal/logger"
)

// Forecaster produces a point estimate of the next grade from a grade history
type Forecaster interface {
	Predict(ctx context.Context, history []float64, difficulty *float64) (*Prediction, error)
}

// PredictRequest is the regression service request payload
type PredictRequest struct {
	PastGrades []float64 `json:"past_grades"`
	Difficulty float64   `json:"difficulty"`
}

// PredictResponse is the regression service response payload
type PredictResponse struct {
	PredictedGrade *float64 `json:"predicted_grade"`
	RoundedGrade   float64  `json:"rounded_grade"`
	ModelScaled    bool     `json:"model_scaled"`
	UsedDifficulty bool     `json:"used_difficulty"`
}

// Prediction is a forecast together with the exact inputs that produced it
type Prediction struct {
	Grades         []float64 `json:"grades"`
	Difficulty     float64   `json:"difficulty"`
	PredictedGrade float64   `json:"predicted_grade"`
	RoundedGrade   float64   `json:"rounded_grade"`
	ModelScaled    bool      `json:"model_scaled"`
	UsedDifficulty bool      `json:"used_difficulty"`
}

// clone returns a copy whose Grades do not alias the cached entry
func (p *Prediction) clone() *Prediction {
	out := *p
	out.Grades = append([]float64(nil), p.Grades...)
	return &out
}

// Client calls the regression service over HTTP
type Client struct {
	http     *httpclient.Client
	endpoint string
	timeout  time.Duration
	cache    *PredictionCache
	logger   *logger.ForecastLogger
}

// NewClient creates a forecast client from configuration
func NewClient(cfg *config.ForecastConfig, log *logrus.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Timeout()
	httpCfg.MaxRetries = cfg.RetryAttempts
	httpCfg.RateLimit = cfg.RateLimit

	return &Client{
		http:     httpclient.New("forecast", httpCfg, log),
		endpoint: strings.TrimRight(cfg.URL, "/") + cfg.Endpoint,
		timeout:  cfg.Timeout(),
		cache:    NewPredictionCache(time.Duration(cfg.CacheTTLSeconds)*time.Second, cfg.CacheMaxSize),
		logger:   logger.NewForecastLogger(log),
	}
}

// Predict forecasts the next grade. The history is shaped to exactly ten values and the
// difficulty clamped before the call. An empty history fails with ErrNoGrades without
// contacting the service.
func (c *Client) Predict(ctx context.Context, history []float64, difficulty *float64) (*Prediction, error) {
	grades := BuildTenGrades(FiniteGrades(history))
	if len(grades) == 0 {
		return nil, ErrNoGrades
	}
	diff := ClampDifficulty(difficulty)

	key := CacheKey{Grades: grades, Difficulty: diff}
	if cached := c.cache.Get(key); cached != nil {
		PredictionsTotal.WithLabelValues("true").Inc()
		c.logger.LogPredictionRequest(len(history), int(diff), true, 0)
		return cached.clone(), nil
	}

	start := time.Now()
	resp, err := c.call(ctx, PredictRequest{PastGrades: grades, Difficulty: diff})
	latency := time.Since(start)
	PredictionLatency.Observe(latency.Seconds())
	if err != nil {
		return nil, err
	}

	prediction := &Prediction{
		Grades:         grades,
		Difficulty:     diff,
		PredictedGrade: *resp.PredictedGrade,
		RoundedGrade:   resp.RoundedGrade,
		ModelScaled:    resp.ModelScaled,
		UsedDifficulty: resp.UsedDifficulty,
	}
	c.cache.Set(key, prediction)

	PredictionsTotal.WithLabelValues("false").Inc()
	c.logger.LogPredictionRequest(len(history), int(diff), false, float64(latency.Milliseconds()))

	return prediction.clone(), nil
}

func (c *Client) call(ctx context.Context, payload PredictRequest) (*PredictResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.http.Post(ctx, c.endpoint, nil, bytes.NewReader(body))
	if err != nil {
		if httpclient.IsTimeout(err) {
			return nil, c.fail("timeout", fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		return nil, c.fail("unavailable", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, c.fail("rejected", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if httpclient.IsTimeout(err) {
			return nil, c.fail("timeout", fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		return nil, c.fail("invalid", fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if out.PredictedGrade == nil || math.IsNaN(*out.PredictedGrade) || math.IsInf(*out.PredictedGrade, 0) {
		return nil, c.fail("invalid", fmt.Errorf("%w: missing predicted_grade", ErrInvalidResponse))
	}

	return &out, nil
}

func (c *Client) fail(errorType string, err error) error {
	ErrorsTotal.WithLabelValues(errorType).Inc()
	c.logger.LogPredictionError(errorType, err)
	return err
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.http.Close()
}
