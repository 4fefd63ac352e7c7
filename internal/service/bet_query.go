package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
)

// BetView is one bet as exposed to its owner
type BetView struct {
	ID               int64              `json:"id"`
	CourseCode       string             `json:"courseCode"`
	Threshold        float64            `json:"threshold"`
	StakeAmount      decimal.Decimal    `json:"stakeAmount"`
	StakeNative      decimal.Decimal    `json:"stakeNative"`
	ContractAddress  string             `json:"contractAddress"`
	TransactionHash  *string            `json:"transactionHash"`
	CreatedAt        time.Time          `json:"createdAt"`
	Status           models.BetStatus   `json:"status"`
	Outcome          *models.BetOutcome `json:"outcome"`
	RealizedProfit   decimal.Decimal    `json:"realizedProfit"`
	UnrealizedProfit decimal.Decimal    `json:"unrealizedProfit"`
}

// BetSummary is a user's bets newest first with portfolio aggregates
type BetSummary struct {
	Bets             []BetView       `json:"bets"`
	OpenValue        decimal.Decimal `json:"openValue"`
	RealizedProfit   decimal.Decimal `json:"realizedProfit"`
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
}

// BetQuery serves the read side of the bet ledger
type BetQuery struct {
	repos *repository.Repositories
}

// NewBetQuery creates a new bet query service
func NewBetQuery(repos *repository.Repositories) *BetQuery {
	return &BetQuery{repos: repos}
}

// ListBets returns the user's bets sorted newest first
func (q *BetQuery) ListBets(ctx context.Context, sub string) (*BetSummary, error) {
	const op = "list_bets"

	user, err := loadUser(ctx, q.repos, op, sub)
	if err != nil {
		return nil, err
	}

	bets, err := q.repos.Bets.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list bets: %w", op, err)
	}

	return Summarize(bets), nil
}

// Summarize builds the bet views and aggregates; the input order is preserved
func Summarize(bets []*models.Bet) *BetSummary {
	summary := &BetSummary{
		Bets:             make([]BetView, 0, len(bets)),
		OpenValue:        decimal.Zero,
		RealizedProfit:   decimal.Zero,
		UnrealizedProfit: decimal.Zero,
	}

	for _, b := range bets {
		view := BetView{
			ID:              b.BetID,
			CourseCode:      b.CourseCode,
			Threshold:       b.GradeThreshold,
			StakeAmount:     b.BetAmount,
			StakeNative:     b.BetAmountNative,
			ContractAddress: b.ContractAddress,
			TransactionHash: b.TransactionHash,
			CreatedAt:       b.PlacedAt,
			Status:          b.Status(),
			Outcome:         b.Outcome(),
			RealizedProfit:  b.RealizedProfit(),
			// fixed-odds stakes carry no mark-to-market value
			UnrealizedProfit: decimal.Zero,
		}
		summary.Bets = append(summary.Bets, view)

		if view.Status == models.BetStatusOpen {
			summary.OpenValue = summary.OpenValue.Add(b.BetAmount)
		}
		summary.RealizedProfit = summary.RealizedProfit.Add(view.RealizedProfit)
	}

	return summary
}
