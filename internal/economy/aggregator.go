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
	"sort"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
)

// Settlement amounts are rounded to 4 decimal places of a minute.
const amountPrecision = 4

// Contribution is one supporter's computed stake in an answer:
// min(balance, value x cost). Monotonic in both the support value and the
// wallet balance, and never more than the supporter can actually pay.
type Contribution struct {
	UserId  string
	Value   decimal.Decimal // declared support, (0, 1]
	Balance decimal.Decimal // wallet balance at computation time
	Amount  decimal.Decimal // funding committed by this supporter
}

// SupporterContributions derives the per-supporter funding commitments for
// an answer. Evaluations with value <= 0 and users without a wallet (zero
// balance) contribute nothing. Pure: no side effects, stable output order.
func SupporterContributions(cost decimal.Decimal, evaluations []models.Evaluation, balances map[string]decimal.Decimal) []Contribution {
	var contributions []Contribution
	for _, eval := range evaluations {
		if !eval.Value.IsPositive() {
			continue
		}
		balance, ok := balances[eval.UserId]
		if !ok {
			balance = decimal.Zero
		}
		amount := eval.Value.Mul(cost)
		if amount.GreaterThan(balance) {
			amount = balance
		}
		contributions = append(contributions, Contribution{
			UserId:  eval.UserId,
			Value:   eval.Value,
			Balance: balance,
			Amount:  amount,
		})
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].UserId < contributions[j].UserId
	})
	return contributions
}

// AggregateMetrics folds contributions into the answer's funding metrics.
// weightedSupporters is the sum of support values, not a headcount;
// distanceToGoal clamps the shortfall at zero; distancePerSupporter is the
// even spread that would close the gap (zero when nobody supports).
func AggregateMetrics(cost decimal.Decimal, contributions []Contribution) models.AnswerMetrics {
	weighted := decimal.Zero
	total := decimal.Zero
	for _, c := range contributions {
		weighted = weighted.Add(c.Value)
		total = total.Add(c.Amount)
	}

	distance := cost.Sub(total)
	if distance.IsNegative() {
		distance = decimal.Zero
	}

	perSupporter := decimal.Zero
	if distance.IsPositive() && weighted.IsPositive() {
		perSupporter = distance.DivRound(weighted, amountPrecision)
	}

	return models.AnswerMetrics{
		AnswerCost:           cost,
		WeightedSupporters:   weighted,
		TotalContribution:    total,
		DistanceToGoal:       distance,
		DistancePerSupporter: perSupporter,
	}
}

// ComputeMetrics is the full Support Aggregator: cost + evaluations +
// balances in, metrics out. Idempotent and side-effect-free.
func ComputeMetrics(cost decimal.Decimal, evaluations []models.Evaluation, balances map[string]decimal.Decimal) models.AnswerMetrics {
	return AggregateMetrics(cost, SupporterContributions(cost, evaluations, balances))
}

// ProportionalPayments splits the answer cost across supporters in
// proportion to their contributions: payment_i = cost x amount_i / total,
// rounded to 4 decimal places, with the largest contributor absorbing the
// rounding residual so payments sum to exactly the cost. Requires
// total >= cost, which also guarantees each proportional share fits the
// supporter's balance; only the residual can push the largest share above
// its raw value, and it is capped there.
func ProportionalPayments(cost decimal.Decimal, contributions []Contribution) []store.PaymentOrder {
	total := decimal.Zero
	for _, c := range contributions {
		total = total.Add(c.Amount)
	}
	if !total.IsPositive() || !cost.IsPositive() {
		return nil
	}

	var payments []store.PaymentOrder
	paid := decimal.Zero
	largestIdx := -1
	largestAmount := decimal.Zero
	largestBalance := decimal.Zero
	for _, c := range contributions {
		if !c.Amount.IsPositive() {
			continue
		}
		share := c.Amount.DivRound(total, amountPrecision+2)
		payment := cost.Mul(c.Amount).DivRound(total, amountPrecision)
		payments = append(payments, store.PaymentOrder{
			UserId:          c.UserId,
			Amount:          payment,
			EvaluationValue: c.Value,
			Share:           share,
		})
		paid = paid.Add(payment)
		if c.Amount.GreaterThan(largestAmount) {
			largestAmount = c.Amount
			largestBalance = c.Balance
			largestIdx = len(payments) - 1
		}
	}

	// Rounding residual goes to the largest contributor, capped at their
	// balance so the no-negative-balance invariant holds.
	residual := cost.Sub(paid)
	if !residual.IsZero() && largestIdx >= 0 {
		adjusted := payments[largestIdx].Amount.Add(residual)
		if adjusted.GreaterThan(largestBalance) {
			adjusted = largestBalance
		}
		if !adjusted.IsNegative() {
			payments[largestIdx].Amount = adjusted
		}
	}
	return payments
}
