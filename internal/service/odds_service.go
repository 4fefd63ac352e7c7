package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/events"
	"github.com/yourusername/grade-market/internal/forecast"
	"github.com/yourusername/grade-market/internal/logger"
	"github.com/yourusername/grade-market/internal/market"
	"github.com/yourusername/grade-market/internal/metrics"
	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
)

// OddsService derives bucket probabilities from forecasts and keeps the odds store current
type OddsService struct {
	repos      *repository.Repositories
	forecaster forecast.Forecaster
	publisher  events.Publisher
	audit      *logger.AuditLogger
	logger     *logrus.Logger
}

// NewOddsService creates a new odds service
func NewOddsService(
	repos *repository.Repositories,
	forecaster forecast.Forecaster,
	publisher events.Publisher,
	log *logrus.Logger,
) *OddsService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OddsService{
		repos:      repos,
		forecaster: forecaster,
		publisher:  publisher,
		audit:      logger.NewAuditLogger(log),
		logger:     log,
	}
}

// PredictRequest asks for a grade forecast. When Grades is empty the
// caller's stored history is used.
type PredictRequest struct {
	Grades     []float64 `json:"grades"`
	Difficulty *float64  `json:"difficulty"`
}

// SyncRequest writes computed buckets into a course's odds
type SyncRequest struct {
	CourseCode string          `json:"courseCode"`
	Buckets    []models.Bucket `json:"buckets"`
	// Seed forces a full overwrite; otherwise the mode is detected from existing odds
	Seed *bool `json:"seed,omitempty"`
}

// RefreshResult is the outcome of a forecast-driven odds refresh
type RefreshResult struct {
	CourseCode string                 `json:"courseCode"`
	Prediction *forecast.Prediction   `json:"prediction"`
	Buckets    []models.Bucket        `json:"buckets"`
	Sync       *models.OddsSyncResult `json:"sync"`
	Odds       []models.OddsEntry     `json:"odds"`
}

// Predict forecasts the caller's next grade
func (s *OddsService) Predict(ctx context.Context, sub string, req PredictRequest) (*forecast.Prediction, error) {
	const op = "predict"

	for _, g := range req.Grades {
		if !models.ValidGrade(g) {
			return nil, validationError(op, "grade %v out of range [0,100]", g)
		}
	}
	if req.Difficulty != nil && (math.IsNaN(*req.Difficulty) || math.IsInf(*req.Difficulty, 0)) {
		return nil, validationError(op, "difficulty must be finite")
	}

	history := req.Grades
	if len(history) == 0 {
		user, err := loadUser(ctx, s.repos, op, sub)
		if err != nil {
			return nil, err
		}
		if history, err = gradeHistory(ctx, s.repos, user); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	prediction, err := s.forecaster.Predict(ctx, history, req.Difficulty)
	if err != nil {
		return nil, forecastError(op, err)
	}
	return prediction, nil
}

// RefreshOdds forecasts from the user's grade history, derives buckets and syncs them into
// the course's odds with the automatically detected mode.
func (s *OddsService) RefreshOdds(ctx context.Context, sub, courseCode string, difficulty *float64) (*RefreshResult, error) {
	const op = "refresh_odds"

	user, course, err := loadCourse(ctx, s.repos, op, sub, courseCode)
	if err != nil {
		return nil, err
	}
	if course.Past {
		return nil, opError(KindValidation, ReasonMarketClosed, op, fmt.Errorf("course %s is resolved", course.Code))
	}

	history, err := gradeHistory(ctx, s.repos, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	prediction, err := s.forecaster.Predict(ctx, history, difficulty)
	if err != nil {
		return nil, forecastError(op, err)
	}

	buckets := market.Buckets(&prediction.PredictedGrade, history)
	if len(buckets) == 0 {
		return nil, opError(KindUpstreamUnavailable, ReasonUpstreamUnavailable, op, errors.New("prediction unavailable"))
	}

	result, err := s.apply(ctx, op, user, course, buckets, false)
	if err != nil {
		return nil, err
	}

	odds, err := s.repos.Odds.List(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read odds: %w", op, err)
	}

	return &RefreshResult{
		CourseCode: course.Code,
		Prediction: prediction,
		Buckets:    buckets,
		Sync:       result,
		Odds:       odds,
	}, nil
}

// SyncOdds applies client-supplied buckets to a course's odds
func (s *OddsService) SyncOdds(ctx context.Context, sub string, req SyncRequest) (*models.OddsSyncResult, error) {
	const op = "sync_odds"

	if err := validateBuckets(op, req.Buckets); err != nil {
		return nil, err
	}

	user, course, err := loadCourse(ctx, s.repos, op, sub, req.CourseCode)
	if err != nil {
		return nil, err
	}
	if course.Past {
		return nil, opError(KindValidation, ReasonMarketClosed, op, fmt.Errorf("course %s is resolved", course.Code))
	}

	return s.apply(ctx, op, user, course, req.Buckets, req.Seed != nil && *req.Seed)
}

// GetOdds returns a course's odds ordered by ascending threshold
func (s *OddsService) GetOdds(ctx context.Context, sub, courseCode string) ([]models.OddsEntry, error) {
	const op = "get_odds"

	_, course, err := loadCourse(ctx, s.repos, op, sub, courseCode)
	if err != nil {
		return nil, err
	}

	odds, err := s.repos.Odds.List(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read odds: %w", op, err)
	}
	return odds, nil
}

// apply chooses seed or maintain mode and writes the qualifying buckets
func (s *OddsService) apply(ctx context.Context, op string, user *models.User, course *models.Course, buckets []models.Bucket, forceSeed bool) (*models.OddsSyncResult, error) {
	mode := models.OddsModeMaintain
	if forceSeed || needsSeed(course.Odds, buckets) {
		mode = models.OddsModeSeed
	}

	toWrite := buckets
	if mode == models.OddsModeMaintain {
		toWrite = maintainable(buckets)
	}

	result := &models.OddsSyncResult{Mode: mode, Updated: make([]float64, 0, len(toWrite))}
	if len(toWrite) == 0 {
		result.Skipped = true
		s.logger.WithFields(logrus.Fields{
			"course_code": course.Code,
			"mode":        mode,
		}).Debug("No thresholds qualify for maintenance")
		return result, nil
	}

	if err := s.repos.Odds.Upsert(ctx, course.ID, toWrite); err != nil {
		return nil, fmt.Errorf("%s: failed to write odds: %w", op, err)
	}

	for _, b := range toWrite {
		result.Updated = append(result.Updated, b.Threshold)
	}

	s.audit.LogOddsWrite(course.Code, string(mode), result.Updated)
	metrics.RecordOddsWrite(string(mode))

	evt := events.OddsUpdated{
		CourseID:   course.ID.String(),
		CourseCode: course.Code,
		Mode:       string(mode),
		Thresholds: result.Updated,
	}
	if err := s.publisher.PublishOddsUpdated(ctx, evt); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to publish odds update")
	}

	return result, nil
}

// needsSeed reports whether no existing entry shares a threshold with the incoming set
func needsSeed(existing []models.OddsEntry, buckets []models.Bucket) bool {
	if len(existing) == 0 {
		return true
	}
	known := make(map[float64]struct{}, len(existing))
	for _, e := range existing {
		known[e.Threshold] = struct{}{}
	}
	for _, b := range buckets {
		if _, ok := known[b.Threshold]; ok {
			return false
		}
	}
	return true
}

// maintainable keeps buckets whose new probability is below the freeze cutoff
func maintainable(buckets []models.Bucket) []models.Bucket {
	out := make([]models.Bucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Probability < models.MaintainCutoff {
			out = append(out, b)
		}
	}
	return out
}

func validateBuckets(op string, buckets []models.Bucket) error {
	if len(buckets) == 0 {
		return validationError(op, "at least one bucket is required")
	}

	seen := make(map[float64]struct{}, len(buckets))
	for _, b := range buckets {
		if math.IsNaN(b.Threshold) || b.Threshold < 0 || b.Threshold > 100 {
			return validationError(op, "threshold %v out of range [0,100]", b.Threshold)
		}
		if math.IsNaN(b.Probability) || b.Probability < 0 || b.Probability > 1 {
			return validationError(op, "probability %v for threshold %v out of range [0,1]", b.Probability, b.Threshold)
		}
		if _, dup := seen[b.Threshold]; dup {
			return validationError(op, "duplicate threshold %v", b.Threshold)
		}
		seen[b.Threshold] = struct{}{}
	}
	return nil
}

// forecastError classifies a forecast adapter failure
func forecastError(op string, err error) error {
	switch {
	case errors.Is(err, forecast.ErrNoGrades):
		return opError(KindValidation, ReasonNoGrades, op, err)
	case errors.Is(err, forecast.ErrTimeout):
		return opError(KindUpstreamUnavailable, ReasonUpstreamTimeout, op, err)
	case errors.Is(err, forecast.ErrUnavailable),
		errors.Is(err, forecast.ErrRejected),
		errors.Is(err, forecast.ErrInvalidResponse):
		return opError(KindUpstreamUnavailable, ReasonUpstreamUnavailable, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
