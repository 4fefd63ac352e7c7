package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/models"
)

// PostgresOddsRepository implements OddsRepository for PostgreSQL
type PostgresOddsRepository struct {
	db *database.DB
}

// NewPostgresOddsRepository creates a new odds repository
func NewPostgresOddsRepository(db *database.DB) OddsRepository {
	return &PostgresOddsRepository{db: db}
}

func listOdds(ctx context.Context, q database.Querier, courseID uuid.UUID) ([]models.OddsEntry, error) {
	query := `
		SELECT course_id, threshold, probability, shares, updated_at
		FROM odds_entries
		WHERE course_id = $1
		ORDER BY threshold ASC
	`

	rows, err := q.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query odds: %w", err)
	}
	defer rows.Close()

	entries := []models.OddsEntry{}
	for rows.Next() {
		var e models.OddsEntry
		if err := rows.Scan(&e.CourseID, &e.Threshold, &e.Probability, &e.Shares, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan odds entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// List returns a course's odds ordered by ascending threshold
func (o *PostgresOddsRepository) List(ctx context.Context, courseID uuid.UUID) ([]models.OddsEntry, error) {
	return listOdds(ctx, o.db.GetPool(), courseID)
}

// Upsert writes each bucket's probability with a per-threshold conditional write
func (o *PostgresOddsRepository) Upsert(ctx context.Context, courseID uuid.UUID, buckets []models.Bucket) error {
	if len(buckets) == 0 {
		return nil
	}

	query := `
		INSERT INTO odds_entries (course_id, threshold, probability, shares)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (course_id, threshold)
		DO UPDATE SET probability = EXCLUDED.probability, updated_at = NOW()
	`

	return o.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, b := range buckets {
			batch.Queue(query, courseID, b.Threshold, b.Probability)
		}

		results := tx.SendBatch(ctx, batch)
		for range buckets {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to upsert odds: %w", err)
			}
		}
		return results.Close()
	})
}

// IncrementShares adds one backing to a threshold
func (o *PostgresOddsRepository) IncrementShares(ctx context.Context, courseID uuid.UUID, threshold float64) error {
	return incrementShares(ctx, o.db.GetPool(), courseID, threshold)
}

func incrementShares(ctx context.Context, q database.Querier, courseID uuid.UUID, threshold float64) error {
	tag, err := q.Exec(ctx,
		`UPDATE odds_entries SET shares = shares + 1, updated_at = NOW() WHERE course_id = $1 AND threshold = $2`,
		courseID, threshold,
	)
	if err != nil {
		return fmt.Errorf("failed to increment shares: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
