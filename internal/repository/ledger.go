package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/models"
)

// PostgresPlacementLedger records a bet and its shares increment atomically
type PostgresPlacementLedger struct {
	db *database.DB
}

// NewPostgresPlacementLedger creates a new placement ledger
func NewPostgresPlacementLedger(db *database.DB) PlacementLedger {
	return &PostgresPlacementLedger{db: db}
}

// RecordPlacement appends the bet and increments the backed threshold in one transaction
func (l *PostgresPlacementLedger) RecordPlacement(ctx context.Context, bet *models.Bet) error {
	return l.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := appendBet(ctx, tx, bet); err != nil {
			return err
		}
		if err := incrementShares(ctx, tx, bet.CourseID, bet.GradeThreshold); err != nil {
			return fmt.Errorf("threshold %v: %w", bet.GradeThreshold, err)
		}
		return nil
	})
}
