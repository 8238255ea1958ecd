package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrAnswerNotFound         = errors.New("answer not found")
)

// WalletNotFoundError identifies exactly which (group, user) wallet was
// missing, so multi-wallet operations can attribute the failure to the
// right supporter. Unwraps to ErrWalletNotFound.
type WalletNotFoundError struct {
	GroupId string
	UserId  string
}

func (e *WalletNotFoundError) Error() string {
	return fmt.Sprintf("wallet not found: %s in group %s", e.UserId, e.GroupId)
}

func (e *WalletNotFoundError) Unwrap() error { return ErrWalletNotFound }

// PaymentOrder is one supporter's debit within a settlement.
type PaymentOrder struct {
	UserId          string
	Amount          decimal.Decimal // positive; debited from the wallet
	EvaluationValue decimal.Decimal // the support level that earned this share
	Share           decimal.Decimal // fraction of total contribution, for the ledger metadata
}

// SettleParams carries everything a backend needs to apply an acceptance
// atomically: every supporter payment plus the frozen final metrics.
type SettleParams struct {
	AnswerId string
	GroupId  string
	AdminId  string
	Cost     decimal.Decimal
	Payments []PaymentOrder
	Metrics  models.AnswerMetrics
}

// WalletLedger is the contract every wallet backend (SQLite, Formance)
// must satisfy. All amounts are in minutes.
//
// SettleAnswer applies every payment in params all-or-nothing, keyed by a
// settlement:{answerId} reference so a repeat surfaces as
// ErrDuplicateTransaction instead of double-charging. Backends that also
// own the metrics store freeze the answer row in the same unit of work;
// others leave the freeze to the caller.
//
// HasSettlement reports whether the settlement:{answerId} transaction
// already exists on the ledger. Callers use it to detect an acceptance
// that debited wallets but crashed before the freeze completed: balances
// are already drained, so fundability must not be re-derived from them.
type WalletLedger interface {
	CreateWallet(ctx context.Context, groupId, userId string, initialBalance decimal.Decimal) (*models.Wallet, bool, error)
	Credit(ctx context.Context, groupId, userId string, amount decimal.Decimal, txType, reference string) (*models.Transaction, error)
	GetWallet(ctx context.Context, groupId, userId string) (*models.Wallet, error)
	GetGroupWallets(ctx context.Context, groupId string) ([]models.Wallet, error)
	GetTransactionHistory(ctx context.Context, groupId, userId string, limit, offset int) ([]models.Transaction, error)
	SettleAnswer(ctx context.Context, params SettleParams) error
	HasSettlement(ctx context.Context, answerId string) (bool, error)
}

// EconomyStore is the full document-store contract: the wallet ledger plus
// the evaluation, metrics, and group-settings records the recalculation
// cascade works from.
type EconomyStore interface {
	WalletLedger

	// --- Evaluations ---
	UpsertEvaluation(ctx context.Context, eval models.Evaluation) error
	DeleteEvaluation(ctx context.Context, answerId, userId string) error
	GetAnswerEvaluations(ctx context.Context, answerId string) ([]models.Evaluation, error)
	GetEvaluationsUpdatedSince(ctx context.Context, since time.Time) ([]models.Evaluation, error)

	// --- Answer metrics ---
	GetAnswerMetrics(ctx context.Context, answerId string) (*models.AnswerMetrics, error)
	SaveAnswerMetrics(ctx context.Context, m models.AnswerMetrics) error
	MarkAccepted(ctx context.Context, answerId, adminId string, m models.AnswerMetrics) error
	SetAnswerCost(ctx context.Context, answerId, groupId, parentId string, cost decimal.Decimal) error
	GetOpenAnswers(ctx context.Context, groupId string) ([]models.AnswerMetrics, error)

	// --- Group settings ---
	GetGroupSettings(ctx context.Context, groupId string) (*models.GroupSettings, error)
	SaveGroupSettings(ctx context.Context, settings models.GroupSettings) error

	// --- Lifecycle ---
	Close()
}
