package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/grade-market/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	EnsureBySub(ctx context.Context, sub, email string) (*models.User, error)
}

// CourseRepository defines the interface for course data access.
// Courses are returned with their odds entries ordered by ascending threshold.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByCode(ctx context.Context, userID uuid.UUID, code string) (*models.Course, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Course, error)
	// SetContractIfUnset attaches address only when no contract is set and returns the effective address
	SetContractIfUnset(ctx context.Context, courseID uuid.UUID, address string) (string, error)
	// Resolve records the final grade, marks the course past and resets every shares counter.
	// It reports false when the course was already resolved with the same grade and
	// returns models.ErrGradeConflict for a different grade.
	Resolve(ctx context.Context, courseID uuid.UUID, grade float64, at time.Time) (bool, error)
	ListPastWithPendingBets(ctx context.Context) ([]*models.Course, error)
}

// OddsRepository defines the interface for the per-course odds store
type OddsRepository interface {
	List(ctx context.Context, courseID uuid.UUID) ([]models.OddsEntry, error)
	// Upsert writes probability for each bucket, preserving shares of existing thresholds
	Upsert(ctx context.Context, courseID uuid.UUID, buckets []models.Bucket) error
	// IncrementShares is a standalone write; placements go through PlacementLedger
	IncrementShares(ctx context.Context, courseID uuid.UUID, threshold float64) error
}

// BetRepository defines the interface for the bet ledger
type BetRepository interface {
	// Append inserts a bet without touching shares; placements go through PlacementLedger
	Append(ctx context.Context, bet *models.Bet) error
	// ListForUser returns bets newest first
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Bet, error)
	ListUnresolvedByContract(ctx context.Context, contract string) ([]*models.Bet, error)
	GetByBetID(ctx context.Context, betID int64, contract string) (*models.Bet, error)
	// MarkResolved is idempotent for identical values and returns
	// models.ErrResolutionConflict when the bet was resolved differently
	MarkResolved(ctx context.Context, betID int64, contract string, profit decimal.Decimal, won bool, at time.Time) error
}

// PlacementLedger persists a placed bet together with its shares increment
type PlacementLedger interface {
	RecordPlacement(ctx context.Context, bet *models.Bet) error
}
