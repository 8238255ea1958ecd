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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletInfo is the success payload for wallet lookups
type WalletInfo struct {
	GroupId       string          `json:"group_id"`
	UserId        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	TotalReceived decimal.Decimal `json:"total_received"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	CreatedAt     time.Time       `json:"created_at"`
	LastUpdate    time.Time       `json:"last_update"`
}

// TransactionRecord represents one ledger entry in a user's history
type TransactionRecord struct {
	Id           string          `json:"id"`
	Type         string          `json:"type"` // "join", "admin_add", "payment"
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	AnswerId     string          `json:"answer_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AcceptResult represents the outcome of an acceptance or complete-to-goal request
type AcceptResult struct {
	AnswerId       string          `json:"answer_id"`
	AnswerCost     decimal.Decimal `json:"answer_cost"`
	PaidBySupports int             `json:"paid_by_supporters"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	MinutesGranted decimal.Decimal `json:"minutes_granted,omitempty"` // complete-to-goal only
	AcceptedAt     time.Time       `json:"accepted_at"`
}

// TopUpResult represents the outcome of an admin top-up
type TopUpResult struct {
	GroupId       string          `json:"group_id"`
	WalletsTopped int             `json:"wallets_topped"`
	PerWallet     decimal.Decimal `json:"per_wallet"`
	TotalGranted  decimal.Decimal `json:"total_granted"`
}

// OperationError is the structured error payload surfaced by the API layer
type OperationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
