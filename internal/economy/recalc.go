package economy

import (
	"context"
	"errors"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Recalculator keeps the denormalized answer metrics in sync with the
// source records. It always recomputes from scratch: running it twice on
// unchanged inputs writes identical metrics, never accumulates.
//
// Failures are logged and swallowed. Metrics are a derived cache; a stale
// value self-heals on the next triggering event, and recalculation must
// never block the write that triggered it.
type Recalculator struct {
	db     store.EconomyStore
	ledger store.WalletLedger
}

func NewRecalculator(db store.EconomyStore, ledger store.WalletLedger) *Recalculator {
	return &Recalculator{db: db, ledger: ledger}
}

// OnEvaluationChange recomputes metrics for one answer after an evaluation
// was created, updated, or deleted. Accepted answers are frozen and
// skipped.
func (r *Recalculator) OnEvaluationChange(ctx context.Context, answerId string) {
	if err := r.recalculate(ctx, answerId); err != nil {
		zap.L().Error("Recalculation failed after evaluation change",
			zap.String("answer_id", answerId),
			zap.Error(err))
	}
}

// OnWalletChange recomputes metrics for every non-accepted answer in the
// group: a balance change shifts what each supporter can commit everywhere.
func (r *Recalculator) OnWalletChange(ctx context.Context, groupId string) {
	answers, err := r.db.GetOpenAnswers(ctx, groupId)
	if err != nil {
		zap.L().Error("Recalculation sweep failed to list open answers",
			zap.String("group_id", groupId),
			zap.Error(err))
		return
	}
	for _, answer := range answers {
		if err := r.recalculate(ctx, answer.AnswerId); err != nil {
			zap.L().Error("Recalculation failed during group sweep",
				zap.String("group_id", groupId),
				zap.String("answer_id", answer.AnswerId),
				zap.Error(err))
		}
	}
	zap.L().Debug("Recalculation sweep complete",
		zap.String("group_id", groupId),
		zap.Int("answers", len(answers)))
}

func (r *Recalculator) recalculate(ctx context.Context, answerId string) error {
	evaluations, err := r.db.GetAnswerEvaluations(ctx, answerId)
	if err != nil {
		return err
	}

	current, err := r.db.GetAnswerMetrics(ctx, answerId)
	if errors.Is(err, store.ErrAnswerNotFound) {
		// First evaluation arrived before the answer had a cost; start a
		// metrics row with cost 0 so the funding state is visible.
		if len(evaluations) == 0 {
			return nil
		}
		current = &models.AnswerMetrics{
			AnswerId:   answerId,
			GroupId:    evaluations[0].GroupId,
			ParentId:   evaluations[0].ParentId,
			AnswerCost: decimal.Zero,
		}
	} else if err != nil {
		return err
	}
	if current.IsAccepted {
		zap.L().Debug("Skipping recalculation for accepted answer",
			zap.String("answer_id", answerId))
		return nil
	}

	wallets, err := r.ledger.GetGroupWallets(ctx, current.GroupId)
	if err != nil {
		return err
	}
	balances := make(map[string]decimal.Decimal, len(wallets))
	for _, w := range wallets {
		balances[w.UserId] = w.Balance
	}

	metrics := ComputeMetrics(current.AnswerCost, evaluations, balances)
	metrics.AnswerId = current.AnswerId
	metrics.GroupId = current.GroupId
	metrics.ParentId = current.ParentId

	if err := r.db.SaveAnswerMetrics(ctx, metrics); err != nil {
		return err
	}

	zap.L().Debug("Answer metrics recalculated",
		zap.String("answer_id", answerId),
		zap.String("total_contribution", metrics.TotalContribution.String()),
		zap.String("distance_to_goal", metrics.DistanceToGoal.String()))
	return nil
}
