package database

import (
	"context"
	"database/sql"
	"fmt"

	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetTransactionHistory returns paginated ledger history for a wallet,
// newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, groupId, userId string, limit, offset int) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("group_id", groupId),
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, groupId, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanTransactions(rows)
}

// GetAnswerPayments returns every payment ledger entry recorded for an
// answer's settlement, oldest first.
func (s *Service) GetAnswerPayments(ctx context.Context, answerId string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAnswerPayments, answerId)
	if err != nil {
		return nil, fmt.Errorf("failed to get answer payments: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var amountStr, beforeStr, afterStr string
		var answerId, reference sql.NullString
		var evalValue, share sql.NullFloat64
		err := rows.Scan(&tx.Id, &tx.GroupId, &tx.UserId, &tx.TransactionType,
			&amountStr, &beforeStr, &afterStr,
			&answerId, &evalValue, &share, &reference, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		if tx.BalanceBefore, err = decimal.NewFromString(beforeStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance before '%s': %w", beforeStr, err)
		}
		if tx.BalanceAfter, err = decimal.NewFromString(afterStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance after '%s': %w", afterStr, err)
		}
		tx.AnswerId = answerId.String
		tx.Reference = reference.String
		if evalValue.Valid {
			tx.EvaluationValue = decimal.NewFromFloat(evalValue.Float64)
		}
		if share.Valid {
			tx.PaymentShare = decimal.NewFromFloat(share.Float64)
		}

		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}
