package economy

import (
	"errors"
	"fmt"

	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
)

// Business-rule errors surfaced by the settlement engine.
var (
	ErrAlreadyAccepted  = errors.New("answer already accepted")
	ErrGoalNotReached   = errors.New("funding goal not reached")
	ErrPermissionDenied = errors.New("permission denied")
	ErrWalletMissing    = errors.New("supporter wallet missing")
	ErrInvalidCost      = errors.New("invalid answer cost")
	ErrInvalidInput     = errors.New("invalid input")
)

// GoalNotReachedError carries the remaining funding gap.
type GoalNotReachedError struct {
	Distance decimal.Decimal
}

func (e *GoalNotReachedError) Error() string {
	return fmt.Sprintf("funding goal not reached: %s minutes remaining", e.Distance.String())
}

func (e *GoalNotReachedError) Unwrap() error { return ErrGoalNotReached }

// WalletMissingError identifies the supporter whose wallet vanished
// mid-settlement, aborting the whole transaction.
type WalletMissingError struct {
	UserId string
}

func (e *WalletMissingError) Error() string {
	return fmt.Sprintf("supporter wallet missing for user %s", e.UserId)
}

func (e *WalletMissingError) Unwrap() error { return ErrWalletMissing }

// ErrorCode maps an error to the structured code the API surface reports.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyAccepted):
		return "ALREADY_ACCEPTED"
	case errors.Is(err, ErrGoalNotReached):
		return "GOAL_NOT_REACHED"
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrWalletMissing), errors.Is(err, store.ErrWalletNotFound):
		return "WALLET_MISSING"
	case errors.Is(err, ErrInvalidCost):
		return "INVALID_COST"
	case errors.Is(err, ErrInvalidInput):
		return "VALIDATION_ERROR"
	case errors.Is(err, store.ErrAnswerNotFound):
		return "ANSWER_NOT_FOUND"
	case errors.Is(err, store.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, store.ErrConcurrentModification):
		return "CONFLICT_RETRY"
	default:
		return "INTERNAL_ERROR"
	}
}
