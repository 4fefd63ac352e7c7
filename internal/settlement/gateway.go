// Package settlement adapts the escrow service that custodies stakes and releases payouts.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the call contract of the escrow system. Every call may fail
// independently of ledger writes; mutating calls are never retried.
type Gateway interface {
	// DeployAndFund provisions and funds a new escrow for a course.
	// Callers must not invoke it when the course already has a contract.
	DeployAndFund(ctx context.Context, courseCode, ownerID string) (*Deployment, error)
	PlaceStake(ctx context.Context, contract string, threshold float64, native decimal.Decimal) (*StakeReceipt, error)
	ResolveOne(ctx context.Context, contract string, betID int64, grade float64) (*Resolution, error)
	ResolveAll(ctx context.Context, contract string, grade float64) ([]Resolution, error)
	ContractInfo(ctx context.Context, contract string) (*ContractInfo, error)
	Health(ctx context.Context) error
}

// Deployment describes a freshly funded escrow
type Deployment struct {
	Address         string          `json:"address"`
	FundedAmount    decimal.Decimal `json:"funded_amount"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
}

// StakeReceipt is the escrow's proof of a stake transfer.
// BetID is nil and TransactionHash empty when the escrow did not report a usable value.
type StakeReceipt struct {
	BetID           *int64 `json:"bet_id"`
	TransactionHash string `json:"transaction_hash"`
}

// Resolution is the escrow's settlement of one bet
type Resolution struct {
	BetID           int64  `json:"bet_id"`
	Won             bool   `json:"won"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// ContractInfo is a balance snapshot of one escrow, in native units
type ContractInfo struct {
	Address          string          `json:"address"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	ContractBalance  decimal.Decimal `json:"contract_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	NextBetID        int64           `json:"next_bet_id"`
}
