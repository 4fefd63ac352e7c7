// Package repository provides the ledger and odds store persistence.
package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yourusername/grade-market/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Users   UserRepository
	Courses CourseRepository
	Odds    OddsRepository
	Bets    BetRepository
	Ledger  PlacementLedger
}

// NewRepositories creates and returns all PostgreSQL repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Users:   NewPostgresUserRepository(db),
		Courses: NewPostgresCourseRepository(db),
		Odds:    NewPostgresOddsRepository(db),
		Bets:    NewPostgresBetRepository(db),
		Ledger:  NewPostgresPlacementLedger(db),
	}, nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
