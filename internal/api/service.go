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

package api

import (
	"context"
	"fmt"
	"time"

	"fair-evaluation-go/internal/economy"
	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EconomyService is the operation surface consumed by the platform's
// request handlers and document-write triggers. Authentication and role
// resolution happen outside; adminId parameters are trusted identities
// checked against the injected admin capability.
type EconomyService struct {
	db      store.EconomyStore
	ledger  store.WalletLedger
	engine  *economy.Engine
	recalc  *economy.Recalculator
	isAdmin economy.AdminChecker
}

func NewEconomyService(db store.EconomyStore, ledger store.WalletLedger, isAdmin economy.AdminChecker) *EconomyService {
	return &EconomyService{
		db:      db,
		ledger:  ledger,
		engine:  economy.NewEngine(db, ledger, isAdmin),
		recalc:  economy.NewRecalculator(db, ledger),
		isAdmin: isAdmin,
	}
}

// Recalculator exposes the orchestrator for listeners that drive the
// cascade directly.
func (s *EconomyService) Recalculator() *economy.Recalculator { return s.recalc }

// InitializeWallet creates the member's wallet when their group
// subscription is created. Idempotent: a second call for the same pair is
// a no-op. The initial balance comes from the group's settings; groups
// with the economy disabled start members at zero.
func (s *EconomyService) InitializeWallet(ctx context.Context, groupId, userId string) (*models.WalletInfo, error) {
	if groupId == "" || userId == "" {
		return nil, fmt.Errorf("%w: groupId and userId are required", economy.ErrInvalidInput)
	}

	settings, err := s.db.GetGroupSettings(ctx, groupId)
	if err != nil {
		return nil, err
	}
	initialBalance := decimal.Zero
	if settings.FairEvaluationEnabled {
		initialBalance = settings.InitialBalance
	}

	wallet, created, err := s.ledger.CreateWallet(ctx, groupId, userId, initialBalance)
	if err != nil {
		return nil, err
	}
	if created {
		zap.L().Info("Member wallet initialized",
			zap.String("group_id", groupId),
			zap.String("user_id", userId),
			zap.String("initial_balance", initialBalance.String()))
	}
	return walletInfo(wallet), nil
}

// OnEvaluationChange records an evaluation write (or delete) and triggers
// the recalculation cascade for the affected answer. Recalculation
// problems never fail the evaluation write itself.
func (s *EconomyService) OnEvaluationChange(ctx context.Context, eval models.Evaluation, deleted bool) error {
	if eval.AnswerId == "" || eval.UserId == "" {
		return fmt.Errorf("%w: answerId and userId are required", economy.ErrInvalidInput)
	}

	if deleted {
		if err := s.db.DeleteEvaluation(ctx, eval.AnswerId, eval.UserId); err != nil {
			return err
		}
	} else {
		one := decimal.NewFromInt(1)
		if eval.Value.GreaterThan(one) || eval.Value.LessThan(one.Neg()) {
			return fmt.Errorf("%w: evaluation value %s outside [-1, 1]", economy.ErrInvalidInput, eval.Value.String())
		}
		if err := s.db.UpsertEvaluation(ctx, eval); err != nil {
			return err
		}
	}

	s.recalc.OnEvaluationChange(ctx, eval.AnswerId)
	return nil
}

// AddMinutesToGroup splits an admin top-up evenly across every wallet in
// the group and re-runs the cascade: more balance may mean more committed
// funding on every open answer.
func (s *EconomyService) AddMinutesToGroup(ctx context.Context, groupId string, totalMinutes decimal.Decimal, adminId string) (*models.TopUpResult, error) {
	if groupId == "" || adminId == "" {
		return nil, fmt.Errorf("%w: groupId and adminId are required", economy.ErrInvalidInput)
	}
	if !totalMinutes.IsPositive() {
		return nil, fmt.Errorf("%w: totalMinutes must be positive, got %s", economy.ErrInvalidInput, totalMinutes.String())
	}
	if err := s.authorize(ctx, adminId, groupId); err != nil {
		return nil, err
	}

	wallets, err := s.ledger.GetGroupWallets(ctx, groupId)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: group %s has no wallets", store.ErrWalletNotFound, groupId)
	}

	perWallet := totalMinutes.DivRound(decimal.NewFromInt(int64(len(wallets))), 4)
	reference := "admin-add:" + time.Now().UTC().Format(time.RFC3339Nano)
	for _, wallet := range wallets {
		if _, err := s.ledger.Credit(ctx, groupId, wallet.UserId, perWallet, models.TransactionTypeAdminAdd, reference); err != nil {
			return nil, fmt.Errorf("failed to credit wallet for %s: %w", wallet.UserId, err)
		}
	}

	s.recalc.OnWalletChange(ctx, groupId)

	return &models.TopUpResult{
		GroupId:       groupId,
		WalletsTopped: len(wallets),
		PerWallet:     perWallet,
		TotalGranted:  perWallet.Mul(decimal.NewFromInt(int64(len(wallets)))),
	}, nil
}

// SetAnswerCost sets the funding goal for an answer and recomputes its
// metrics. The cost of an accepted answer is frozen.
func (s *EconomyService) SetAnswerCost(ctx context.Context, answerId, groupId, parentId string, newCost decimal.Decimal, adminId string) error {
	if answerId == "" || groupId == "" || adminId == "" {
		return fmt.Errorf("%w: answerId, groupId, and adminId are required", economy.ErrInvalidInput)
	}
	if newCost.IsNegative() {
		return fmt.Errorf("%w: cost %s", economy.ErrInvalidCost, newCost.String())
	}
	if err := s.authorize(ctx, adminId, groupId); err != nil {
		return err
	}

	if err := s.db.SetAnswerCost(ctx, answerId, groupId, parentId, newCost); err != nil {
		return err
	}
	s.recalc.OnEvaluationChange(ctx, answerId)
	return nil
}

// AcceptAnswer settles an answer that has reached its funding goal.
// Retrying a successful accept is rejected with ALREADY_ACCEPTED rather
// than double-charging. The supporters' balances changed, so the group's
// other open answers are recalculated afterwards.
func (s *EconomyService) AcceptAnswer(ctx context.Context, answerId, adminId string) (*models.AcceptResult, error) {
	outcome, err := s.engine.Accept(ctx, answerId, adminId)
	if err != nil {
		return nil, err
	}

	s.recalc.OnWalletChange(ctx, outcome.Metrics.GroupId)
	return acceptResult(answerId, outcome), nil
}

// CompleteToGoal credits the group enough minutes to close the answer's
// funding gap, then accepts it.
func (s *EconomyService) CompleteToGoal(ctx context.Context, answerId, adminId string) (*models.AcceptResult, error) {
	outcome, err := s.engine.CompleteToGoal(ctx, answerId, adminId)
	if err != nil {
		return nil, err
	}

	s.recalc.OnWalletChange(ctx, outcome.Metrics.GroupId)
	return acceptResult(answerId, outcome), nil
}

// GetWalletInfo returns the wallet summary for one member.
func (s *EconomyService) GetWalletInfo(ctx context.Context, groupId, userId string) (*models.WalletInfo, error) {
	if groupId == "" || userId == "" {
		return nil, fmt.Errorf("%w: groupId and userId are required", economy.ErrInvalidInput)
	}
	wallet, err := s.ledger.GetWallet(ctx, groupId, userId)
	if err != nil {
		return nil, err
	}
	return walletInfo(wallet), nil
}

// GetTransactionHistory returns a member's ledger entries, newest first.
func (s *EconomyService) GetTransactionHistory(ctx context.Context, groupId, userId string, limit int) ([]models.TransactionRecord, error) {
	if groupId == "" || userId == "" {
		return nil, fmt.Errorf("%w: groupId and userId are required", economy.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	transactions, err := s.ledger.GetTransactionHistory(ctx, groupId, userId, limit, 0)
	if err != nil {
		return nil, err
	}

	records := make([]models.TransactionRecord, 0, len(transactions))
	for _, tx := range transactions {
		records = append(records, models.TransactionRecord{
			Id:           tx.Id,
			Type:         tx.TransactionType,
			Amount:       tx.Amount,
			BalanceAfter: tx.BalanceAfter,
			AnswerId:     tx.AnswerId,
			CreatedAt:    tx.CreatedAt,
		})
	}
	return records, nil
}

// OperationError converts an error into the structured payload callers
// return over the wire.
func OperationError(err error) *models.OperationError {
	if err == nil {
		return nil
	}
	return &models.OperationError{
		Code:    economy.ErrorCode(err),
		Message: err.Error(),
	}
}

func (s *EconomyService) authorize(ctx context.Context, adminId, groupId string) error {
	ok, err := s.isAdmin(ctx, adminId, groupId)
	if err != nil {
		return fmt.Errorf("admin check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an admin of group %s", economy.ErrPermissionDenied, adminId, groupId)
	}
	return nil
}

func walletInfo(wallet *models.Wallet) *models.WalletInfo {
	return &models.WalletInfo{
		GroupId:       wallet.GroupId,
		UserId:        wallet.UserId,
		Balance:       wallet.Balance,
		TotalReceived: wallet.TotalReceived,
		TotalSpent:    wallet.TotalSpent,
		CreatedAt:     wallet.CreatedAt,
		LastUpdate:    wallet.LastUpdate,
	}
}

func acceptResult(answerId string, outcome *economy.AcceptOutcome) *models.AcceptResult {
	totalPaid := decimal.Zero
	for _, p := range outcome.Payments {
		totalPaid = totalPaid.Add(p.Amount)
	}
	return &models.AcceptResult{
		AnswerId:       answerId,
		AnswerCost:     outcome.Metrics.AnswerCost,
		PaidBySupports: len(outcome.Payments),
		TotalPaid:      totalPaid,
		MinutesGranted: outcome.MinutesGranted,
		AcceptedAt:     time.Now(),
	}
}
