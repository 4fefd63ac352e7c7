package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/models"
)

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *database.DB
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *database.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

// GetBySub retrieves a user by identity subject
func (u *PostgresUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	query := `SELECT id, sub, email, created_at FROM users WHERE sub = $1`

	user := &models.User{}
	err := u.db.GetPool().QueryRow(ctx, query, sub).Scan(&user.ID, &user.Sub, &user.Email, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// EnsureBySub returns the user for sub, creating it on first sight
func (u *PostgresUserRepository) EnsureBySub(ctx context.Context, sub, email string) (*models.User, error) {
	query := `
		INSERT INTO users (id, sub, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (sub) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
		RETURNING id, sub, email, created_at
	`

	user := &models.User{}
	err := u.db.GetPool().QueryRow(ctx, query, uuid.New(), sub, email).Scan(&user.ID, &user.Sub, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	return user, nil
}
