/**
 * Copyright 2025-present the fair-evaluation-go authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package economy

import (
	"context"
	"errors"
	"fmt"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
)

// AdminChecker is the injected role capability: is this user an admin of
// this group. The engine never looks roles up itself.
type AdminChecker func(ctx context.Context, userId, groupId string) (bool, error)

// Engine decides fundability and executes acceptance settlements.
type Engine struct {
	db      store.EconomyStore
	ledger  store.WalletLedger
	isAdmin AdminChecker
}

func NewEngine(db store.EconomyStore, ledger store.WalletLedger, isAdmin AdminChecker) *Engine {
	return &Engine{db: db, ledger: ledger, isAdmin: isAdmin}
}

// AcceptOutcome reports what an acceptance settled.
type AcceptOutcome struct {
	Metrics        models.AnswerMetrics
	Payments       []store.PaymentOrder
	MinutesGranted decimal.Decimal // non-zero only for complete-to-goal
}

// Accept verifies authorization and fundability from live records, then
// settles: every supporter pays their proportional share of the cost and
// the answer's economics freeze, all-or-nothing.
func (e *Engine) Accept(ctx context.Context, answerId, adminId string) (*AcceptOutcome, error) {
	if answerId == "" || adminId == "" {
		return nil, fmt.Errorf("%w: answerId and adminId are required", ErrInvalidInput)
	}

	current, err := e.db.GetAnswerMetrics(ctx, answerId)
	if err != nil {
		return nil, err
	}
	if current.IsAccepted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAccepted, answerId)
	}
	if current.AnswerCost.IsNegative() {
		return nil, fmt.Errorf("%w: cost %s", ErrInvalidCost, current.AnswerCost.String())
	}

	if err := e.authorize(ctx, adminId, current.GroupId); err != nil {
		return nil, err
	}

	// A prior acceptance may have debited the wallets and crashed before
	// the freeze. The drained balances would fail any fundability check,
	// so the existing settlement must be detected before re-deriving
	// metrics; all that is left to do is complete the freeze.
	settled, err := e.ledger.HasSettlement(ctx, answerId)
	if err != nil {
		return nil, err
	}
	if settled {
		return e.completeFreeze(ctx, answerId, adminId)
	}

	// Metrics are a cache; acceptance always re-derives from live
	// evaluations and wallet balances.
	metrics, contributions, err := e.liveMetrics(ctx, current)
	if err != nil {
		return nil, err
	}
	if metrics.DistanceToGoal.IsPositive() {
		// A concurrent accept may have drained the balances between the
		// settlement check above and the wallet reads; re-read before
		// deciding the goal was genuinely missed.
		latest, rerr := e.db.GetAnswerMetrics(ctx, answerId)
		if rerr != nil {
			return nil, rerr
		}
		if latest.IsAccepted {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyAccepted, answerId)
		}
		return nil, &GoalNotReachedError{Distance: metrics.DistanceToGoal}
	}

	payments := ProportionalPayments(current.AnswerCost, contributions)

	err = e.ledger.SettleAnswer(ctx, store.SettleParams{
		AnswerId: answerId,
		GroupId:  current.GroupId,
		AdminId:  adminId,
		Cost:     current.AnswerCost,
		Payments: payments,
		Metrics:  metrics,
	})
	switch {
	case err == nil:
		// settled by this call
	case errors.Is(err, store.ErrDuplicateTransaction):
		// Payments were already applied: either a racing accept won, or a
		// prior attempt crashed between debits and the freeze. Re-read to
		// tell the two apart.
		settled, rerr := e.db.GetAnswerMetrics(ctx, answerId)
		if rerr != nil {
			return nil, rerr
		}
		if settled.IsAccepted {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyAccepted, answerId)
		}
	case errors.Is(err, store.ErrWalletNotFound):
		return nil, walletMissingFrom(err)
	default:
		return nil, err
	}

	// Complete the freeze for backends that could not do it in the same
	// unit of work. Idempotent; a no-op when SettleAnswer already froze.
	if err := e.db.MarkAccepted(ctx, answerId, adminId, metrics); err != nil {
		return nil, err
	}

	return &AcceptOutcome{Metrics: metrics, Payments: payments}, nil
}

// completeFreeze finishes an acceptance whose settlement already sits on
// the ledger but whose answer row never froze. The wallets are drained, so
// fundability cannot be re-derived; the cached metrics row freezes as-is.
func (e *Engine) completeFreeze(ctx context.Context, answerId, adminId string) (*AcceptOutcome, error) {
	latest, err := e.db.GetAnswerMetrics(ctx, answerId)
	if err != nil {
		return nil, err
	}
	if latest.IsAccepted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAccepted, answerId)
	}
	if err := e.db.MarkAccepted(ctx, answerId, adminId, *latest); err != nil {
		return nil, err
	}
	frozen := *latest
	frozen.IsAccepted = true
	return &AcceptOutcome{Metrics: frozen}, nil
}

// CompleteToGoal closes an answer's funding gap and accepts it. Each group
// wallet is credited distancePerSupporter (rounded up to 4 decimal
// places), then Accept runs. Two dependent atomic phases, not one
// transaction: a crash in between leaves ordinary top-up credits behind,
// which a retried Accept consumes.
func (e *Engine) CompleteToGoal(ctx context.Context, answerId, adminId string) (*AcceptOutcome, error) {
	if answerId == "" || adminId == "" {
		return nil, fmt.Errorf("%w: answerId and adminId are required", ErrInvalidInput)
	}

	current, err := e.db.GetAnswerMetrics(ctx, answerId)
	if err != nil {
		return nil, err
	}
	if current.IsAccepted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAccepted, answerId)
	}
	if err := e.authorize(ctx, adminId, current.GroupId); err != nil {
		return nil, err
	}

	// If supporters already paid, there is no gap left to close; Accept
	// takes over and completes whatever the earlier attempt left undone.
	settled, err := e.ledger.HasSettlement(ctx, answerId)
	if err != nil {
		return nil, err
	}
	if settled {
		return e.Accept(ctx, answerId, adminId)
	}

	metrics, _, err := e.liveMetrics(ctx, current)
	if err != nil {
		return nil, err
	}
	if metrics.DistanceToGoal.IsZero() {
		return e.Accept(ctx, answerId, adminId)
	}
	if !metrics.DistancePerSupporter.IsPositive() {
		// No supporters to spread the gap across; crediting closes nothing.
		return nil, &GoalNotReachedError{Distance: metrics.DistanceToGoal}
	}

	wallets, err := e.ledger.GetGroupWallets(ctx, current.GroupId)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: group %s has no wallets", ErrWalletMissing, current.GroupId)
	}

	perWallet := ceil4(metrics.DistancePerSupporter)
	reference := "complete-to-goal:" + answerId
	for _, wallet := range wallets {
		if _, err := e.ledger.Credit(ctx, current.GroupId, wallet.UserId, perWallet, models.TransactionTypeAdminAdd, reference); err != nil {
			return nil, fmt.Errorf("failed to credit wallet for %s: %w", wallet.UserId, err)
		}
	}
	granted := perWallet.Mul(decimal.NewFromInt(int64(len(wallets))))

	outcome, err := e.Accept(ctx, answerId, adminId)
	if err != nil {
		return nil, err
	}
	outcome.MinutesGranted = granted
	return outcome, nil
}

func (e *Engine) authorize(ctx context.Context, adminId, groupId string) error {
	ok, err := e.isAdmin(ctx, adminId, groupId)
	if err != nil {
		return fmt.Errorf("admin check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an admin of group %s", ErrPermissionDenied, adminId, groupId)
	}
	return nil
}

// liveMetrics recomputes the answer's funding state from current
// evaluations and wallet balances.
func (e *Engine) liveMetrics(ctx context.Context, current *models.AnswerMetrics) (models.AnswerMetrics, []Contribution, error) {
	evaluations, err := e.db.GetAnswerEvaluations(ctx, current.AnswerId)
	if err != nil {
		return models.AnswerMetrics{}, nil, err
	}
	wallets, err := e.ledger.GetGroupWallets(ctx, current.GroupId)
	if err != nil {
		return models.AnswerMetrics{}, nil, err
	}
	balances := make(map[string]decimal.Decimal, len(wallets))
	for _, w := range wallets {
		balances[w.UserId] = w.Balance
	}

	contributions := SupporterContributions(current.AnswerCost, evaluations, balances)
	metrics := AggregateMetrics(current.AnswerCost, contributions)
	metrics.AnswerId = current.AnswerId
	metrics.GroupId = current.GroupId
	metrics.ParentId = current.ParentId
	return metrics, contributions, nil
}

func walletMissingFrom(err error) error {
	// Backends report the missing wallet as a typed error; carry the user
	// id over so callers can tell which supporter aborted settlement.
	var notFound *store.WalletNotFoundError
	if errors.As(err, &notFound) {
		return &WalletMissingError{UserId: notFound.UserId}
	}
	return &WalletMissingError{}
}

// ceil4 rounds up to 4 decimal places so complete-to-goal never
// undershoots the gap.
func ceil4(d decimal.Decimal) decimal.Decimal {
	return d.RoundUp(amountPrecision)
}
