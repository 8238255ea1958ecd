package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateWallet creates the (group, user) wallet and its single join
// transaction, or does nothing if the wallet already exists. The bool
// result reports whether a wallet was created by this call.
func (s *Service) CreateWallet(ctx context.Context, groupId, userId string, initialBalance decimal.Decimal) (*models.Wallet, bool, error) {
	if groupId == "" || userId == "" {
		return nil, false, fmt.Errorf("groupId and userId are required")
	}
	if initialBalance.IsNegative() {
		return nil, false, fmt.Errorf("initial balance cannot be negative, got %s", initialBalance.String())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanWallet(tx.QueryRowContext(ctx, queryGetWallet, groupId, userId))
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to check existing wallet: %w", err)
	}

	walletId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertWallet,
		walletId, groupId, userId,
		initialBalance.String(), initialBalance.String(), "0")
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet: %w", err)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		uuid.New().String(), groupId, userId, models.TransactionTypeJoin,
		initialBalance.String(), "0", initialBalance.String(),
		"", nil, nil, fmt.Sprintf("join:%s:%s", groupId, userId), now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record join transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit wallet creation: %w", err)
	}

	zap.L().Info("Wallet created",
		zap.String("group_id", groupId),
		zap.String("user_id", userId),
		zap.String("initial_balance", initialBalance.String()))

	return &models.Wallet{
		Id:            walletId,
		GroupId:       groupId,
		UserId:        userId,
		Balance:       initialBalance,
		TotalReceived: initialBalance,
		TotalSpent:    decimal.Zero,
		Version:       1,
		CreatedAt:     now,
		LastUpdate:    now,
	}, true, nil
}

// Credit increments a wallet's balance and totalReceived and appends the
// matching ledger entry, all inside one database transaction.
func (s *Service) Credit(ctx context.Context, groupId, userId string, amount decimal.Decimal, txType, reference string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount.String())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	wallet, err := scanWallet(tx.QueryRowContext(ctx, queryGetWallet, groupId, userId))
	if err == sql.ErrNoRows {
		return nil, &store.WalletNotFoundError{GroupId: groupId, UserId: userId}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet: %w", err)
	}

	newBalance := wallet.Balance.Add(amount)
	newReceived := wallet.TotalReceived.Add(amount)

	transactionId := uuid.New().String()
	now := time.Now()
	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		transactionId, groupId, userId, txType,
		amount.String(), wallet.Balance.String(), newBalance.String(),
		"", nil, nil, reference, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdateWallet,
		newBalance.String(), newReceived.String(), wallet.TotalSpent.String(),
		groupId, userId, wallet.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("wallet update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit credit: %w", err)
	}

	zap.L().Info("Wallet credited",
		zap.String("group_id", groupId),
		zap.String("user_id", userId),
		zap.String("type", txType),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()))

	return &models.Transaction{
		Id:              transactionId,
		GroupId:         groupId,
		UserId:          userId,
		TransactionType: txType,
		Amount:          amount,
		BalanceBefore:   wallet.Balance,
		BalanceAfter:    newBalance,
		Reference:       reference,
		CreatedAt:       now,
	}, nil
}

// GetWallet returns the wallet for a (group, user) pair.
func (s *Service) GetWallet(ctx context.Context, groupId, userId string) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, groupId, userId))
	if err == sql.ErrNoRows {
		return nil, &store.WalletNotFoundError{GroupId: groupId, UserId: userId}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

// GetGroupWallets returns every wallet in a group.
func (s *Service) GetGroupWallets(ctx context.Context, groupId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryGetGroupWallets, groupId)
	if err != nil {
		return nil, fmt.Errorf("failed to get group wallets: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWalletRows(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

// ReconcileWallet verifies balance == totalReceived - totalSpent and that
// the balance equals the signed sum of the wallet's ledger entries.
func (s *Service) ReconcileWallet(ctx context.Context, groupId, userId string) error {
	wallet, err := s.GetWallet(ctx, groupId, userId)
	if err != nil {
		return err
	}

	if !wallet.Balance.Equal(wallet.TotalReceived.Sub(wallet.TotalSpent)) {
		return fmt.Errorf("wallet totals mismatch: balance=%s received=%s spent=%s",
			wallet.Balance.String(), wallet.TotalReceived.String(), wallet.TotalSpent.String())
	}

	rows, err := s.db.QueryContext(ctx, queryReconcileWallet, groupId, userId)
	if err != nil {
		return fmt.Errorf("failed to read transactions for reconciliation: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	calculated := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return fmt.Errorf("failed to scan transaction amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse transaction amount '%s': %w", amountStr, err)
		}
		calculated = calculated.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating transaction rows: %w", err)
	}

	if !wallet.Balance.Equal(calculated) {
		zap.L().Error("Wallet reconciliation failed",
			zap.String("group_id", groupId),
			zap.String("user_id", userId),
			zap.String("current_balance", wallet.Balance.String()),
			zap.String("calculated_balance", calculated.String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", wallet.Balance.String(), calculated.String())
	}
	return nil
}

// row is satisfied by *sql.Row and *sql.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanWallet(r row) (*models.Wallet, error) {
	var w models.Wallet
	var balanceStr, receivedStr, spentStr string
	err := r.Scan(&w.Id, &w.GroupId, &w.UserId, &balanceStr, &receivedStr, &spentStr,
		&w.Version, &w.CreatedAt, &w.LastUpdate)
	if err != nil {
		return nil, err
	}
	if w.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	if w.TotalReceived, err = decimal.NewFromString(receivedStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_received '%s': %w", receivedStr, err)
	}
	if w.TotalSpent, err = decimal.NewFromString(spentStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_spent '%s': %w", spentStr, err)
	}
	return &w, nil
}

func scanWalletRows(rows *sql.Rows) (*models.Wallet, error) {
	wallet, err := scanWallet(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return wallet, nil
}
