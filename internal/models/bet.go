package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetStatus represents the settlement state of a bet
type BetStatus string

const (
	BetStatusOpen    BetStatus = "open"
	BetStatusSettled BetStatus = "settled"
)

// BetOutcome represents the result of a settled bet
type BetOutcome string

const (
	BetOutcomeWin  BetOutcome = "win"
	BetOutcomeLose BetOutcome = "lose"
)

// StakeScale is the number of decimal places the ledger stores for a stake
const StakeScale = 8

// MaxStakeAmount is the exclusive upper bound the ledger can store for a stake
var MaxStakeAmount = decimal.New(1, 12)

// StakeRepresentable reports whether amount is stored exactly by the ledger
func StakeRepresentable(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(StakeScale)) && amount.LessThan(MaxStakeAmount)
}

// Bet represents a stake placed on one course threshold
type Bet struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	BetID           int64            `db:"bet_id" json:"bet_id"` // escrow bet identifier
	UserID          uuid.UUID        `db:"user_id" json:"user_id"`
	CourseID        uuid.UUID        `db:"course_id" json:"course_id"`
	CourseCode      string           `db:"course_code" json:"course_code"`
	GradeThreshold  float64          `db:"grade_threshold" json:"grade_threshold"`
	BetAmount       decimal.Decimal  `db:"bet_amount" json:"bet_amount"`
	BetAmountNative decimal.Decimal  `db:"bet_amount_native" json:"bet_amount_native"`
	ContractAddress string           `db:"contract_address" json:"contract_address"`
	TransactionHash *string          `db:"transaction_hash" json:"transaction_hash"`
	Resolved        bool             `db:"resolved" json:"resolved"`
	Profit          *decimal.Decimal `db:"profit" json:"profit"`
	Won             *bool            `db:"won" json:"won"`
	PlacedAt        time.Time        `db:"placed_at" json:"placed_at"`
	ResolvedAt      *time.Time       `db:"resolved_at" json:"resolved_at"`
}

// Status derives open/settled from the resolution flag
func (b *Bet) Status() BetStatus {
	if b.Resolved {
		return BetStatusSettled
	}
	return BetStatusOpen
}

// Outcome returns the win/lose result, nil while open
func (b *Bet) Outcome() *BetOutcome {
	if !b.Resolved || b.Won == nil {
		return nil
	}
	outcome := BetOutcomeLose
	if *b.Won {
		outcome = BetOutcomeWin
	}
	return &outcome
}

// RealizedProfit returns the settled profit, zero while open
func (b *Bet) RealizedProfit() decimal.Decimal {
	if !b.Resolved || b.Profit == nil {
		return decimal.Zero
	}
	return *b.Profit
}

// MatchesResolution reports whether the bet is already resolved with exactly these values
func (b *Bet) MatchesResolution(profit decimal.Decimal, won bool) bool {
	return b.Resolved && b.Won != nil && *b.Won == won && b.Profit != nil && b.Profit.Equal(profit)
}
