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

const (
	// Group settings queries
	queryGetGroupSettings = `
		SELECT group_id, fair_evaluation_enabled, initial_balance, updated_at
		FROM group_settings
		WHERE group_id = ?`

	queryUpsertGroupSettings = `
		INSERT INTO group_settings (group_id, fair_evaluation_enabled, initial_balance, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(group_id) DO UPDATE SET
			fair_evaluation_enabled = excluded.fair_evaluation_enabled,
			initial_balance = excluded.initial_balance,
			updated_at = CURRENT_TIMESTAMP`

	queryIsGroupAdmin = `
		SELECT 1 FROM group_admins WHERE group_id = ? AND user_id = ? LIMIT 1`

	queryInsertGroupAdmin = `
		INSERT OR IGNORE INTO group_admins (group_id, user_id) VALUES (?, ?)`

	// Wallet queries
	queryGetWallet = `
		SELECT id, group_id, user_id, balance, total_received, total_spent, version, created_at, last_update
		FROM wallets
		WHERE group_id = ? AND user_id = ?`

	queryGetGroupWallets = `
		SELECT id, group_id, user_id, balance, total_received, total_spent, version, created_at, last_update
		FROM wallets
		WHERE group_id = ?
		ORDER BY user_id`

	queryInsertWallet = `
		INSERT INTO wallets (id, group_id, user_id, balance, total_received, total_spent, version)
		VALUES (?, ?, ?, ?, ?, ?, 1)`

	queryUpdateWallet = `
		UPDATE wallets
		SET balance = ?, total_received = ?, total_spent = ?, version = version + 1, last_update = CURRENT_TIMESTAMP
		WHERE group_id = ? AND user_id = ? AND version = ?`

	// Amounts live in TEXT columns; summing happens in Go with decimals
	// because SQL SUM would coerce through floats.
	queryReconcileWallet = `
		SELECT amount
		FROM transactions
		WHERE group_id = ? AND user_id = ?`

	// Transaction queries
	queryCheckDuplicateReference = `
		SELECT id FROM transactions WHERE reference = ? LIMIT 1`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, group_id, user_id, transaction_type, amount, balance_before, balance_after,
			answer_id, evaluation_value, payment_share, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, group_id, user_id, transaction_type, amount, balance_before, balance_after,
		       answer_id, evaluation_value, payment_share, reference, created_at
		FROM transactions
		WHERE group_id = ? AND user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`

	queryGetAnswerPayments = `
		SELECT id, group_id, user_id, transaction_type, amount, balance_before, balance_after,
		       answer_id, evaluation_value, payment_share, reference, created_at
		FROM transactions
		WHERE answer_id = ? AND transaction_type = 'payment'
		ORDER BY created_at, id`

	// Evaluation queries
	queryUpsertEvaluation = `
		INSERT INTO evaluations (answer_id, user_id, group_id, parent_id, value, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(answer_id, user_id) DO UPDATE SET
			group_id = excluded.group_id,
			parent_id = excluded.parent_id,
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	queryDeleteEvaluation = `
		DELETE FROM evaluations WHERE answer_id = ? AND user_id = ?`

	queryGetAnswerEvaluations = `
		SELECT answer_id, user_id, group_id, parent_id, value, updated_at
		FROM evaluations
		WHERE answer_id = ?
		ORDER BY user_id`

	queryGetEvaluationsUpdatedSince = `
		SELECT answer_id, user_id, group_id, parent_id, value, updated_at
		FROM evaluations
		WHERE updated_at > ?
		ORDER BY updated_at`

	// Answer metrics queries
	queryGetAnswerMetrics = `
		SELECT answer_id, group_id, parent_id, answer_cost, weighted_supporters, total_contribution,
		       distance_to_goal, distance_per_supporter, is_accepted, accepted_at, accepted_by, last_calculation
		FROM answers
		WHERE answer_id = ?`

	queryGetOpenAnswers = `
		SELECT answer_id, group_id, parent_id, answer_cost, weighted_supporters, total_contribution,
		       distance_to_goal, distance_per_supporter, is_accepted, accepted_at, accepted_by, last_calculation
		FROM answers
		WHERE group_id = ? AND is_accepted = 0
		ORDER BY answer_id`

	querySaveAnswerMetrics = `
		INSERT INTO answers (answer_id, group_id, parent_id, answer_cost, weighted_supporters,
			total_contribution, distance_to_goal, distance_per_supporter, last_calculation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(answer_id) DO UPDATE SET
			weighted_supporters = excluded.weighted_supporters,
			total_contribution = excluded.total_contribution,
			distance_to_goal = excluded.distance_to_goal,
			distance_per_supporter = excluded.distance_per_supporter,
			last_calculation = CURRENT_TIMESTAMP
		WHERE is_accepted = 0`

	querySetAnswerCost = `
		INSERT INTO answers (answer_id, group_id, parent_id, answer_cost)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(answer_id) DO UPDATE SET
			answer_cost = excluded.answer_cost
		WHERE is_accepted = 0`

	queryMarkAccepted = `
		UPDATE answers
		SET weighted_supporters = ?, total_contribution = ?, distance_to_goal = ?,
			distance_per_supporter = ?, is_accepted = 1, accepted_at = CURRENT_TIMESTAMP,
			accepted_by = ?, last_calculation = CURRENT_TIMESTAMP
		WHERE answer_id = ? AND is_accepted = 0`
)
