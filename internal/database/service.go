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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.EconomyStore.
var _ store.EconomyStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Group Settings Table (economy configuration per deliberation group)
	CREATE TABLE IF NOT EXISTS group_settings (
		group_id TEXT PRIMARY KEY,
		fair_evaluation_enabled INTEGER NOT NULL DEFAULT 0,
		initial_balance TEXT NOT NULL DEFAULT '0',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Group admins (injected role capability is backed by this table
	-- when no external role provider is wired)
	CREATE TABLE IF NOT EXISTS group_admins (
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	-- Wallets Table (Current State - Hot Data)
	-- Minute amounts are stored as decimal strings; REAL affinity would
	-- round-trip them through floats and break exact reconciliation.
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		total_received TEXT NOT NULL DEFAULT '0',
		total_spent TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_update TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(group_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_group_id ON wallets(group_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_group_user ON wallets(group_id, user_id);

	-- Transactions Table (Audit Trail - Cold Data)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		answer_id TEXT,
		evaluation_value REAL,
		payment_share REAL,
		reference TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_group_user ON transactions(group_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_answer_id ON transactions(answer_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);

	-- Evaluations Table (raw per-user support records)
	CREATE TABLE IF NOT EXISTS evaluations (
		answer_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (answer_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_answer_id ON evaluations(answer_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_group_id ON evaluations(group_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_updated_at ON evaluations(updated_at);

	-- Answers Table (denormalized funding metrics, frozen on acceptance)
	CREATE TABLE IF NOT EXISTS answers (
		answer_id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		answer_cost TEXT NOT NULL DEFAULT '0',
		weighted_supporters TEXT NOT NULL DEFAULT '0',
		total_contribution TEXT NOT NULL DEFAULT '0',
		distance_to_goal TEXT NOT NULL DEFAULT '0',
		distance_per_supporter TEXT NOT NULL DEFAULT '0',
		is_accepted INTEGER NOT NULL DEFAULT 0,
		accepted_at TIMESTAMP,
		accepted_by TEXT,
		last_calculation TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_answers_group_id ON answers(group_id);
	CREATE INDEX IF NOT EXISTS idx_answers_parent_id ON answers(parent_id);
	CREATE INDEX IF NOT EXISTS idx_answers_is_accepted ON answers(is_accepted);
	`

	_, err := s.db.Exec(schema)
	return err
}

// IsGroupAdmin reports whether the user appears in the group's admin table.
// Deployments with an external role provider inject their own checker
// instead; this is the local fallback capability.
func (s *Service) IsGroupAdmin(ctx context.Context, groupId, userId string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, queryIsGroupAdmin, groupId, userId).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check group admin: %w", err)
	}
	return true, nil
}

// AddGroupAdmin registers a user as admin of a group (idempotent).
func (s *Service) AddGroupAdmin(ctx context.Context, groupId, userId string) error {
	if _, err := s.db.ExecContext(ctx, queryInsertGroupAdmin, groupId, userId); err != nil {
		return fmt.Errorf("failed to add group admin: %w", err)
	}
	return nil
}
