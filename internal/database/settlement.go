package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettleAnswer applies an acceptance in one database transaction: every
// supporter wallet is re-read, verified, debited, and paired with a payment
// ledger entry, then the answer row is frozen. Any failure rolls the whole
// settlement back. The settlement:{answerId} reference makes repeats
// surface as ErrDuplicateTransaction instead of double-charging.
func (s *Service) SettleAnswer(ctx context.Context, params store.SettleParams) error {
	reference := settlementReference(params.AnswerId)

	zap.L().Info("Settling answer",
		zap.String("answer_id", params.AnswerId),
		zap.String("group_id", params.GroupId),
		zap.String("admin_id", params.AdminId),
		zap.String("cost", params.Cost.String()),
		zap.Int("payments", len(params.Payments)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Duplicate settlement check inside the transaction so two racing
	// accepts cannot both charge.
	var existingTxId string
	err = tx.QueryRowContext(ctx, queryCheckDuplicateReference, reference).Scan(&existingTxId)
	if err == nil {
		zap.L().Warn("Settlement already recorded, skipping",
			zap.String("answer_id", params.AnswerId),
			zap.String("existing_tx_id", existingTxId))
		return fmt.Errorf("%w: settlement for answer %s already exists", store.ErrDuplicateTransaction, params.AnswerId)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check for duplicate settlement: %w", err)
	}

	var acceptedFlag int
	err = tx.QueryRowContext(ctx, `SELECT is_accepted FROM answers WHERE answer_id = ?`, params.AnswerId).Scan(&acceptedFlag)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", store.ErrAnswerNotFound, params.AnswerId)
	}
	if err != nil {
		return fmt.Errorf("failed to read answer: %w", err)
	}
	if acceptedFlag != 0 {
		return fmt.Errorf("%w: answer %s already accepted", store.ErrDuplicateTransaction, params.AnswerId)
	}

	now := time.Now()
	for _, payment := range params.Payments {
		if err := s.applyPayment(ctx, tx, params, payment, reference, now); err != nil {
			return err
		}
	}

	// Freeze the answer's economics in the same unit of work.
	result, err := tx.ExecContext(ctx, queryMarkAccepted,
		params.Metrics.WeightedSupporters.String(),
		params.Metrics.TotalContribution.String(),
		params.Metrics.DistanceToGoal.String(),
		params.Metrics.DistancePerSupporter.String(),
		params.AdminId,
		params.AnswerId)
	if err != nil {
		return fmt.Errorf("failed to mark answer accepted: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("answer freeze failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}

	zap.L().Info("Answer settled",
		zap.String("answer_id", params.AnswerId),
		zap.String("cost", params.Cost.String()),
		zap.Int("supporters_charged", len(params.Payments)))
	return nil
}

// applyPayment debits one supporter wallet and appends its payment ledger
// entry. The balance is re-read inside the settlement transaction; a
// shortfall or missing wallet aborts the caller's transaction entirely.
func (s *Service) applyPayment(ctx context.Context, tx *sql.Tx, params store.SettleParams, payment store.PaymentOrder, reference string, now time.Time) error {
	wallet, err := scanWallet(tx.QueryRowContext(ctx, queryGetWallet, params.GroupId, payment.UserId))
	if err == sql.ErrNoRows {
		return &store.WalletNotFoundError{GroupId: params.GroupId, UserId: payment.UserId}
	}
	if err != nil {
		return fmt.Errorf("failed to read wallet for %s: %w", payment.UserId, err)
	}

	if wallet.Balance.LessThan(payment.Amount) {
		return fmt.Errorf("%w: user %s has %s, payment requires %s",
			store.ErrInsufficientBalance, payment.UserId,
			wallet.Balance.String(), payment.Amount.String())
	}

	newBalance := wallet.Balance.Sub(payment.Amount)
	newSpent := wallet.TotalSpent.Add(payment.Amount)

	evalValue, _ := payment.EvaluationValue.Float64()
	share, _ := payment.Share.Float64()
	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		uuid.New().String(), params.GroupId, payment.UserId, models.TransactionTypePayment,
		payment.Amount.Neg().String(), wallet.Balance.String(), newBalance.String(),
		params.AnswerId, evalValue, share, reference, now)
	if err != nil {
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdateWallet,
		newBalance.String(), wallet.TotalReceived.String(), newSpent.String(),
		params.GroupId, payment.UserId, wallet.Version)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet debit failed - %w", store.ErrConcurrentModification)
	}
	return nil
}

// HasSettlement reports whether the answer's settlement transaction has
// already been recorded.
func (s *Service) HasSettlement(ctx context.Context, answerId string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, queryCheckDuplicateReference, settlementReference(answerId)).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for settlement: %w", err)
	}
	return true, nil
}

func settlementReference(answerId string) string {
	return "settlement:" + answerId
}
