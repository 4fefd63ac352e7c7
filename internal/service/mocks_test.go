package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/forecast"
	"github.com/yourusername/grade-market/internal/logger"
	"github.com/yourusername/grade-market/internal/market"
	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
	"github.com/yourusername/grade-market/internal/settlement"
)

const (
	testSub      = "auth0|student"
	testContract = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testTxHash   = "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"
)

// MockGateway mocks the escrow gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) DeployAndFund(ctx context.Context, courseCode, ownerID string) (*settlement.Deployment, error) {
	args := m.Called(ctx, courseCode, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Deployment), args.Error(1)
}

func (m *MockGateway) PlaceStake(ctx context.Context, contract string, threshold float64, native decimal.Decimal) (*settlement.StakeReceipt, error) {
	args := m.Called(ctx, contract, threshold, native)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.StakeReceipt), args.Error(1)
}

func (m *MockGateway) ResolveOne(ctx context.Context, contract string, betID int64, grade float64) (*settlement.Resolution, error) {
	args := m.Called(ctx, contract, betID, grade)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Resolution), args.Error(1)
}

func (m *MockGateway) ResolveAll(ctx context.Context, contract string, grade float64) ([]settlement.Resolution, error) {
	args := m.Called(ctx, contract, grade)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Resolution), args.Error(1)
}

func (m *MockGateway) ContractInfo(ctx context.Context, contract string) (*settlement.ContractInfo, error) {
	args := m.Called(ctx, contract)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ContractInfo), args.Error(1)
}

func (m *MockGateway) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockForecaster mocks the forecast adapter
type MockForecaster struct {
	mock.Mock
}

func (m *MockForecaster) Predict(ctx context.Context, history []float64, difficulty *float64) (*forecast.Prediction, error) {
	args := m.Called(ctx, history, difficulty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecast.Prediction), args.Error(1)
}

// failingLedger rejects every placement with err
type failingLedger struct {
	err error
}

func (f failingLedger) RecordPlacement(context.Context, *models.Bet) error {
	return f.err
}

func testMarketConfig() config.MarketConfig {
	return config.MarketConfig{NativePerUnit: 0.001}
}

func newTestCoordinator(repos *repository.Repositories, gw *MockGateway) *Coordinator {
	c := NewCoordinator(repos, gw, nil, testMarketConfig(), logger.Discard())
	c.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

// seedMarket creates the test user with one open course carrying the standard thresholds
func seedMarket(t *testing.T, repos *repository.Repositories, code string, contract *string) *models.Course {
	t.Helper()
	ctx := context.Background()

	user, err := repos.Users.EnsureBySub(ctx, testSub, "student@example.com")
	require.NoError(t, err)

	course := &models.Course{UserID: user.ID, Code: code, Contract: contract}
	require.NoError(t, repos.Courses.Create(ctx, course))

	buckets := market.Buckets(floatPtr(80), nil)
	require.NoError(t, repos.Odds.Upsert(ctx, course.ID, buckets))
	return course
}

// seedHistory adds completed courses with final grades for the test user
func seedHistory(t *testing.T, repos *repository.Repositories, grades ...float64) {
	t.Helper()
	ctx := context.Background()

	user, err := repos.Users.EnsureBySub(ctx, testSub, "")
	require.NoError(t, err)

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, g := range grades {
		completed := base.AddDate(0, i, 0)
		grade := g
		require.NoError(t, repos.Courses.Create(ctx, &models.Course{
			UserID:      user.ID,
			Code:        "HIST" + uuid.NewString()[:8],
			Grade:       &grade,
			Past:        true,
			CompletedAt: &completed,
		}))
	}
}

func floatPtr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }
