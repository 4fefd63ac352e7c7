package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/yourusername/grade-market/internal/database"
	"github.com/yourusername/grade-market/internal/models"
)

const betColumns = `
	id, bet_id, user_id, course_id, course_code, grade_threshold, bet_amount::text, bet_amount_native::text,
	contract_address, transaction_hash, resolved, profit::text, won, placed_at, resolved_at`

// PostgresBetRepository implements BetRepository for PostgreSQL
type PostgresBetRepository struct {
	db *database.DB
}

// NewPostgresBetRepository creates a new bet repository
func NewPostgresBetRepository(db *database.DB) BetRepository {
	return &PostgresBetRepository{db: db}
}

func scanBet(row pgx.Row) (*models.Bet, error) {
	bet := &models.Bet{}
	var amount, native string
	var profit *string

	err := row.Scan(
		&bet.ID, &bet.BetID, &bet.UserID, &bet.CourseID, &bet.CourseCode, &bet.GradeThreshold, &amount, &native,
		&bet.ContractAddress, &bet.TransactionHash, &bet.Resolved, &profit, &bet.Won, &bet.PlacedAt, &bet.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if bet.BetAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid bet_amount %q: %w", amount, err)
	}
	if bet.BetAmountNative, err = decimal.NewFromString(native); err != nil {
		return nil, fmt.Errorf("invalid bet_amount_native %q: %w", native, err)
	}
	if profit != nil {
		p, err := decimal.NewFromString(*profit)
		if err != nil {
			return nil, fmt.Errorf("invalid profit %q: %w", *profit, err)
		}
		bet.Profit = &p
	}

	return bet, nil
}

func appendBet(ctx context.Context, q database.Querier, bet *models.Bet) error {
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	if bet.PlacedAt.IsZero() {
		bet.PlacedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO bets (id, bet_id, user_id, course_id, course_code, grade_threshold, bet_amount,
		                  bet_amount_native, contract_address, transaction_hash, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.Exec(ctx, query,
		bet.ID, bet.BetID, bet.UserID, bet.CourseID, bet.CourseCode, bet.GradeThreshold,
		bet.BetAmount.String(), bet.BetAmountNative.String(), bet.ContractAddress, bet.TransactionHash, bet.PlacedAt,
	)
	if isUniqueViolation(err) {
		return models.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to append bet: %w", err)
	}

	return nil
}

// Append inserts a new unresolved bet; existing bets are never overwritten
func (b *PostgresBetRepository) Append(ctx context.Context, bet *models.Bet) error {
	return appendBet(ctx, b.db.GetPool(), bet)
}

// ListForUser retrieves a user's bets newest first
func (b *PostgresBetRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE user_id = $1 ORDER BY placed_at DESC, bet_id DESC`
	return b.queryBets(ctx, query, userID)
}

// ListUnresolvedByContract retrieves the bets an escrow has not settled yet
func (b *PostgresBetRepository) ListUnresolvedByContract(ctx context.Context, contract string) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE contract_address = $1 AND NOT resolved ORDER BY bet_id ASC`
	return b.queryBets(ctx, query, contract)
}

// GetByBetID retrieves a bet by its escrow id and contract
func (b *PostgresBetRepository) GetByBetID(ctx context.Context, betID int64, contract string) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE bet_id = $1 AND contract_address = $2`

	bet, err := scanBet(b.db.GetPool().QueryRow(ctx, query, betID, contract))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}

	return bet, nil
}

// MarkResolved settles a bet once; replays with equal values are no-ops
func (b *PostgresBetRepository) MarkResolved(ctx context.Context, betID int64, contract string, profit decimal.Decimal, won bool, at time.Time) error {
	query := `
		UPDATE bets SET resolved = TRUE, profit = $3, won = $4, resolved_at = $5
		WHERE bet_id = $1 AND contract_address = $2 AND NOT resolved
	`

	tag, err := b.db.GetPool().Exec(ctx, query, betID, contract, profit.String(), won, at)
	if err != nil {
		return fmt.Errorf("failed to resolve bet: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := b.GetByBetID(ctx, betID, contract)
	if err != nil {
		return err
	}
	if existing.MatchesResolution(profit, won) {
		return nil
	}
	return fmt.Errorf("%w: bet %d on %s", models.ErrResolutionConflict, betID, contract)
}

func (b *PostgresBetRepository) queryBets(ctx context.Context, query string, args ...any) ([]*models.Bet, error) {
	rows, err := b.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	bets := []*models.Bet{}
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}

	return bets, rows.Err()
}
