package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/models"
)

const courseColumns = `id, user_id, code, grade, past, contract, completed_at, created_at, updated_at`

// PostgresCourseRepository implements CourseRepository for PostgreSQL
type PostgresCourseRepository struct {
	db *database.DB
}

// NewPostgresCourseRepository creates a new course repository
func NewPostgresCourseRepository(db *database.DB) CourseRepository {
	return &PostgresCourseRepository{db: db}
}

func scanCourse(row pgx.Row) (*models.Course, error) {
	course := &models.Course{}
	err := row.Scan(
		&course.ID, &course.UserID, &course.Code, &course.Grade, &course.Past,
		&course.Contract, &course.CompletedAt, &course.CreatedAt, &course.UpdatedAt,
	)
	return course, err
}

// Create inserts a new course
func (c *PostgresCourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	course.Code = models.NormalizeCourseCode(course.Code)

	query := `
		INSERT INTO courses (id, user_id, code, grade, past, contract, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := c.db.GetPool().QueryRow(ctx, query,
		course.ID, course.UserID, course.Code, course.Grade, course.Past, course.Contract, course.CompletedAt,
	).Scan(&course.CreatedAt, &course.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}

	return nil
}

// GetByCode retrieves a user's course and its odds
func (c *PostgresCourseRepository) GetByCode(ctx context.Context, userID uuid.UUID, code string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE user_id = $1 AND code = $2`

	course, err := scanCourse(c.db.GetPool().QueryRow(ctx, query, userID, models.NormalizeCourseCode(code)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	course.Odds, err = listOdds(ctx, c.db.GetPool(), course.ID)
	if err != nil {
		return nil, err
	}

	return course, nil
}

// ListByUser retrieves all courses of a user in completion order, unfinished courses last
func (c *PostgresCourseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses
		WHERE user_id = $1
		ORDER BY completed_at ASC NULLS LAST, created_at ASC
	`

	return c.queryCourses(ctx, query, userID)
}

// SetContractIfUnset attaches an escrow address unless one is already recorded
func (c *PostgresCourseRepository) SetContractIfUnset(ctx context.Context, courseID uuid.UUID, address string) (string, error) {
	query := `
		UPDATE courses SET contract = $2, updated_at = NOW()
		WHERE id = $1 AND (contract IS NULL OR contract = '')
		RETURNING contract
	`

	var effective string
	err := c.db.GetPool().QueryRow(ctx, query, courseID, address).Scan(&effective)
	if err == nil {
		return effective, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to set course contract: %w", err)
	}

	// lost the race or the course is gone
	var existing *string
	err = c.db.GetPool().QueryRow(ctx, `SELECT contract FROM courses WHERE id = $1`, courseID).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read course contract: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("course contract unset after conditional update")
	}

	return *existing, nil
}

// Resolve records the final grade and closes the market in one transaction
func (c *PostgresCourseRepository) Resolve(ctx context.Context, courseID uuid.UUID, grade float64, at time.Time) (bool, error) {
	changed := false

	err := c.db.WithTx(ctx, func(tx pgx.Tx) error {
		var current *float64
		var past bool
		err := tx.QueryRow(ctx, `SELECT grade, past FROM courses WHERE id = $1 FOR UPDATE`, courseID).Scan(&current, &past)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock course: %w", err)
		}

		if past && current != nil {
			if *current != grade {
				return models.ErrGradeConflict
			}
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE courses
			SET grade = $2, past = TRUE, completed_at = COALESCE(completed_at, $3), updated_at = NOW()
			WHERE id = $1
		`, courseID, grade, at); err != nil {
			return fmt.Errorf("failed to set course grade: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE odds_entries SET shares = 0, updated_at = NOW() WHERE course_id = $1`, courseID); err != nil {
			return fmt.Errorf("failed to reset shares: %w", err)
		}

		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return changed, nil
}

// ListPastWithPendingBets retrieves resolved courses whose escrow still holds unresolved bets
func (c *PostgresCourseRepository) ListPastWithPendingBets(ctx context.Context) ([]*models.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses c
		WHERE c.past AND c.grade IS NOT NULL AND c.contract IS NOT NULL
		  AND EXISTS (SELECT 1 FROM bets b WHERE b.contract_address = c.contract AND NOT b.resolved)
		ORDER BY c.updated_at ASC
	`

	return c.queryCourses(ctx, query)
}

func (c *PostgresCourseRepository) queryCourses(ctx context.Context, query string, args ...any) ([]*models.Course, error) {
	rows, err := c.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, course := range courses {
		if course.Odds, err = listOdds(ctx, c.db.GetPool(), course.ID); err != nil {
			return nil, err
		}
	}

	return courses, nil
}
