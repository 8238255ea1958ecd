package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types recorded in the ledger.
const (
	TransactionTypeJoin     = "join"
	TransactionTypeAdminAdd = "admin_add"
	TransactionTypePayment  = "payment"
)

// GroupSettings holds the per-group economy configuration
type GroupSettings struct {
	GroupId               string          `db:"group_id"`
	FairEvaluationEnabled bool            `db:"fair_evaluation_enabled"`
	InitialBalance        decimal.Decimal `db:"initial_balance"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// Wallet represents current balance state for one (group, user) pair (hot data).
// Invariant: Balance == TotalReceived - TotalSpent.
type Wallet struct {
	Id            string          `db:"id"`
	GroupId       string          `db:"group_id"`
	UserId        string          `db:"user_id"`
	Balance       decimal.Decimal `db:"balance"`
	TotalReceived decimal.Decimal `db:"total_received"`
	TotalSpent    decimal.Decimal `db:"total_spent"`
	Version       int64           `db:"version"`
	CreatedAt     time.Time       `db:"created_at"`
	LastUpdate    time.Time       `db:"last_update"`
}

// Transaction represents an immutable ledger entry (cold data). Amount is
// signed: credits positive, payments negative.
type Transaction struct {
	Id              string          `db:"id"`
	GroupId         string          `db:"group_id"`
	UserId          string          `db:"user_id"`
	TransactionType string          `db:"transaction_type"`
	Amount          decimal.Decimal `db:"amount"`
	BalanceBefore   decimal.Decimal `db:"balance_before"`
	BalanceAfter    decimal.Decimal `db:"balance_after"`
	AnswerId        string          `db:"answer_id"`
	EvaluationValue decimal.Decimal `db:"evaluation_value"`
	PaymentShare    decimal.Decimal `db:"payment_share"`
	Reference       string          `db:"reference"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Evaluation is one user's declared support for an answer, on a [-1, 1]
// scale. Values <= 0 contribute nothing to funding.
type Evaluation struct {
	AnswerId  string          `db:"answer_id"`
	UserId    string          `db:"user_id"`
	GroupId   string          `db:"group_id"`
	ParentId  string          `db:"parent_id"`
	Value     decimal.Decimal `db:"value"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// AnswerMetrics is the denormalized funding state of one answer. It is a
// derived cache except for the acceptance fields, which are terminal: once
// IsAccepted is true the row is frozen.
type AnswerMetrics struct {
	AnswerId             string          `db:"answer_id"`
	GroupId              string          `db:"group_id"`
	ParentId             string          `db:"parent_id"`
	AnswerCost           decimal.Decimal `db:"answer_cost"`
	WeightedSupporters   decimal.Decimal `db:"weighted_supporters"`
	TotalContribution    decimal.Decimal `db:"total_contribution"`
	DistanceToGoal       decimal.Decimal `db:"distance_to_goal"`
	DistancePerSupporter decimal.Decimal `db:"distance_per_supporter"`
	IsAccepted           bool            `db:"is_accepted"`
	AcceptedAt           time.Time       `db:"accepted_at"`
	AcceptedBy           string          `db:"accepted_by"`
	LastCalculation      time.Time       `db:"last_calculation"`
}
