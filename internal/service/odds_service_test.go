package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/grade-market/internal/forecast"
	"github.com/yourusername/grade-market/internal/logger"
	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
)

func newTestOddsService(repos *repository.Repositories, f *MockForecaster) *OddsService {
	return NewOddsService(repos, f, nil, logger.Discard())
}

// seedEmptyCourse creates an open course with no odds yet
func seedEmptyCourse(t *testing.T, repos *repository.Repositories, code string) *models.Course {
	t.Helper()
	ctx := context.Background()
	user, err := repos.Users.EnsureBySub(ctx, testSub, "")
	require.NoError(t, err)
	course := &models.Course{UserID: user.ID, Code: code}
	require.NoError(t, repos.Courses.Create(ctx, course))
	return course
}

func probabilities(t *testing.T, repos *repository.Repositories, course *models.Course) map[float64]float64 {
	t.Helper()
	odds, err := repos.Odds.List(context.Background(), course.ID)
	require.NoError(t, err)
	out := make(map[float64]float64, len(odds))
	for _, e := range odds {
		require.NotNil(t, e.Probability)
		out[e.Threshold] = *e.Probability
	}
	return out
}

func boolPtr(v bool) *bool { return &v }

func TestSyncOddsSeedsEmptyCourse(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	course := seedEmptyCourse(t, repos, "CS101")
	s := newTestOddsService(repos, new(MockForecaster))

	result, err := s.SyncOdds(context.Background(), testSub, SyncRequest{
		CourseCode: "cs101",
		Buckets: []models.Bucket{
			{Threshold: 95, Probability: 0.12},
			{Threshold: 85, Probability: 0.69},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OddsModeSeed, result.Mode)
	assert.False(t, result.Skipped)
	assert.ElementsMatch(t, []float64{85, 95}, result.Updated)

	odds, err := repos.Odds.List(context.Background(), course.ID)
	require.NoError(t, err)
	require.Len(t, odds, 2)
	assert.Equal(t, 85.0, odds[0].Threshold, "odds are ordered by threshold")
}

func TestSyncOddsMaintainWritesOnlyLowProbabilities(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	course := seedMarket(t, repos, "CS101", nil)
	before := probabilities(t, repos, course)
	s := newTestOddsService(repos, new(MockForecaster))

	result, err := s.SyncOdds(context.Background(), testSub, SyncRequest{
		CourseCode: "CS101",
		Buckets: []models.Bucket{
			{Threshold: 70, Probability: 0.95},
			{Threshold: 90, Probability: 0.30},
			{Threshold: 95, Probability: 0.10},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OddsModeMaintain, result.Mode)
	assert.Equal(t, []float64{90, 95}, result.Updated)

	after := probabilities(t, repos, course)
	assert.Equal(t, before[70], after[70], "likely thresholds stay frozen")
	assert.Equal(t, 0.30, after[90])
	assert.Equal(t, 0.10, after[95])
}

func TestSyncOddsMaintainNoOpIsNotAnError(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	course := seedEmptyCourse(t, repos, "CS101")
	s := newTestOddsService(repos, new(MockForecaster))
	ctx := context.Background()

	seed := []models.Bucket{
		{Threshold: 70, Probability: 0.9},
		{Threshold: 80, Probability: 0.6},
		{Threshold: 90, Probability: 0.2},
	}
	_, err := s.SyncOdds(ctx, testSub, SyncRequest{CourseCode: "CS101", Buckets: seed})
	require.NoError(t, err)
	before := probabilities(t, repos, course)

	result, err := s.SyncOdds(ctx, testSub, SyncRequest{
		CourseCode: "CS101",
		Buckets: []models.Bucket{
			{Threshold: 70, Probability: 0.99},
			{Threshold: 80, Probability: 0.5},
			{Threshold: 90, Probability: 0.7},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, models.OddsModeMaintain, result.Mode)
	assert.Empty(t, result.Updated)
	assert.Equal(t, before, probabilities(t, repos, course))
}

func TestSyncOddsExplicitSeedOverwritesAll(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	course := seedMarket(t, repos, "CS101", nil)
	require.NoError(t, repos.Odds.IncrementShares(context.Background(), course.ID, 70))
	s := newTestOddsService(repos, new(MockForecaster))

	result, err := s.SyncOdds(context.Background(), testSub, SyncRequest{
		CourseCode: "CS101",
		Buckets:    []models.Bucket{{Threshold: 70, Probability: 0.99}},
		Seed:       boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OddsModeSeed, result.Mode)

	odds, err := repos.Odds.List(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.99, *odds[0].Probability)
	assert.Equal(t, 1, odds[0].Shares, "shares survive a seed")
}

func TestSyncOddsValidation(t *testing.T) {
	tests := []struct {
		name    string
		buckets []models.Bucket
	}{
		{name: "empty", buckets: nil},
		{name: "probability above one", buckets: []models.Bucket{{Threshold: 90, Probability: 1.2}}},
		{name: "negative probability", buckets: []models.Bucket{{Threshold: 90, Probability: -0.1}}},
		{name: "threshold out of range", buckets: []models.Bucket{{Threshold: 120, Probability: 0.2}}},
		{name: "duplicate threshold", buckets: []models.Bucket{{Threshold: 90, Probability: 0.2}, {Threshold: 90, Probability: 0.3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := repository.NewMemoryRepositories()
			seedEmptyCourse(t, repos, "CS101")
			s := newTestOddsService(repos, new(MockForecaster))

			_, err := s.SyncOdds(context.Background(), testSub, SyncRequest{CourseCode: "CS101", Buckets: tt.buckets})
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestSyncOddsUnknownCourse(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	seedEmptyCourse(t, repos, "CS101")
	s := newTestOddsService(repos, new(MockForecaster))

	_, err := s.SyncOdds(context.Background(), testSub, SyncRequest{
		CourseCode: "MATH101",
		Buckets:    []models.Bucket{{Threshold: 90, Probability: 0.2}},
	})
	assert.Equal(t, ReasonCourseNotFound, ReasonOf(err))
}

func TestRefreshOddsUsesStoredHistory(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	seedHistory(t, repos, 80, 82, 85, 88, 90)
	course := seedEmptyCourse(t, repos, "CS301")

	f := new(MockForecaster)
	f.On("Predict", mock.Anything, []float64{80, 82, 85, 88, 90}, (*float64)(nil)).
		Return(&forecast.Prediction{PredictedGrade: 88, RoundedGrade: 88}, nil)
	s := newTestOddsService(repos, f)

	result, err := s.RefreshOdds(context.Background(), testSub, "CS301", nil)
	require.NoError(t, err)
	f.AssertExpectations(t)

	assert.Equal(t, models.OddsModeSeed, result.Sync.Mode)
	require.Len(t, result.Odds, 6)

	probs := probabilities(t, repos, course)
	assert.InDelta(t, 0.691, probs[85], 0.001)
	assert.InDelta(t, 0.122, probs[95], 0.001)
}

func TestRefreshOddsForecastFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		reason string
	}{
		{name: "no grades", err: forecast.ErrNoGrades, kind: KindValidation, reason: ReasonNoGrades},
		{name: "timeout", err: fmt.Errorf("%w: deadline", forecast.ErrTimeout), kind: KindUpstreamUnavailable, reason: ReasonUpstreamTimeout},
		{name: "unavailable", err: fmt.Errorf("%w: refused", forecast.ErrUnavailable), kind: KindUpstreamUnavailable, reason: ReasonUpstreamUnavailable},
		{name: "rejected", err: fmt.Errorf("%w: 500", forecast.ErrRejected), kind: KindUpstreamUnavailable, reason: ReasonUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := repository.NewMemoryRepositories()
			course := seedEmptyCourse(t, repos, "CS101")

			f := new(MockForecaster)
			f.On("Predict", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newTestOddsService(repos, f)

			_, err := s.RefreshOdds(context.Background(), testSub, "CS101", nil)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.reason, ReasonOf(err))

			odds, err := repos.Odds.List(context.Background(), course.ID)
			require.NoError(t, err)
			assert.Empty(t, odds, "no probabilities are fabricated")
		})
	}
}

func TestPredictWithSuppliedGrades(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	difficulty := 4.0

	f := new(MockForecaster)
	f.On("Predict", mock.Anything, []float64{70, 75}, &difficulty).
		Return(&forecast.Prediction{PredictedGrade: 76.4, RoundedGrade: 76}, nil)
	s := newTestOddsService(repos, f)

	prediction, err := s.Predict(context.Background(), "", PredictRequest{Grades: []float64{70, 75}, Difficulty: &difficulty})
	require.NoError(t, err)
	assert.Equal(t, 76.0, prediction.RoundedGrade)
}

func TestPredictRejectsInvalidGrades(t *testing.T) {
	s := newTestOddsService(repository.NewMemoryRepositories(), new(MockForecaster))

	_, err := s.Predict(context.Background(), testSub, PredictRequest{Grades: []float64{70, 140}})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestGetOdds(t *testing.T) {
	repos := repository.NewMemoryRepositories()
	seedMarket(t, repos, "CS101", nil)
	s := newTestOddsService(repos, new(MockForecaster))

	odds, err := s.GetOdds(context.Background(), testSub, "cs101")
	require.NoError(t, err)
	require.Len(t, odds, 6)
	for i := 1; i < len(odds); i++ {
		assert.Less(t, odds[i-1].Threshold, odds[i].Threshold)
	}
}
