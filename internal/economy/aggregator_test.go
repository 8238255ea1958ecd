package economy

import (
	"testing"

	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func eval(userId, value string) models.Evaluation {
	return models.Evaluation{
		AnswerId: "ans1",
		UserId:   userId,
		GroupId:  "g1",
		ParentId: "q1",
		Value:    dec(value),
	}
}

func TestSupporterContributions(t *testing.T) {
	cost := dec("10")
	evaluations := []models.Evaluation{
		eval("alice", "1"),    // full support, rich wallet
		eval("bob", "0.5"),    // half support
		eval("carol", "1"),    // full support but only 3 in the wallet
		eval("dave", "0"),     // zero support contributes nothing
		eval("erin", "-0.7"),  // negative support contributes nothing
		eval("no-wallet", "1"), // no wallet means zero balance
	}
	balances := map[string]decimal.Decimal{
		"alice": dec("20"),
		"bob":   dec("20"),
		"carol": dec("3"),
		"dave":  dec("20"),
		"erin":  dec("20"),
	}

	contributions := SupporterContributions(cost, evaluations, balances)
	if len(contributions) != 4 {
		t.Fatalf("Expected 4 contributions, got %d", len(contributions))
	}

	// Sorted by user id, amounts capped at balance.
	want := []struct {
		userId string
		amount string
	}{
		{"alice", "10"},    // 1 x 10
		{"bob", "5"},       // 0.5 x 10
		{"carol", "3"},     // min(3, 1 x 10)
		{"no-wallet", "0"}, // min(0, 10)
	}
	for i, w := range want {
		if contributions[i].UserId != w.userId {
			t.Errorf("contribution %d: expected user %s, got %s", i, w.userId, contributions[i].UserId)
		}
		if !contributions[i].Amount.Equal(dec(w.amount)) {
			t.Errorf("contribution %d (%s): expected amount %s, got %s",
				i, w.userId, w.amount, contributions[i].Amount.String())
		}
	}
}

func TestComputeMetrics(t *testing.T) {
	cost := dec("10")
	evaluations := []models.Evaluation{
		eval("alice", "0.5"),
		eval("bob", "0.3"),
	}
	balances := map[string]decimal.Decimal{
		"alice": dec("20"),
		"bob":   dec("2"),
	}

	m := ComputeMetrics(cost, evaluations, balances)

	if !m.WeightedSupporters.Equal(dec("0.8")) {
		t.Errorf("Expected weighted supporters 0.8, got %s", m.WeightedSupporters.String())
	}
	// alice: 0.5 x 10 = 5; bob: min(2, 3) = 2.
	if !m.TotalContribution.Equal(dec("7")) {
		t.Errorf("Expected total contribution 7, got %s", m.TotalContribution.String())
	}
	if !m.DistanceToGoal.Equal(dec("3")) {
		t.Errorf("Expected distance 3, got %s", m.DistanceToGoal.String())
	}
	// 3 / 0.8 = 3.75
	if !m.DistancePerSupporter.Equal(dec("3.75")) {
		t.Errorf("Expected distance per supporter 3.75, got %s", m.DistancePerSupporter.String())
	}
}

func TestComputeMetrics_OverfundedClampsDistance(t *testing.T) {
	cost := dec("10")
	evaluations := []models.Evaluation{
		eval("alice", "1"),
		eval("bob", "1"),
	}
	balances := map[string]decimal.Decimal{
		"alice": dec("20"),
		"bob":   dec("20"),
	}

	m := ComputeMetrics(cost, evaluations, balances)

	if !m.TotalContribution.Equal(dec("20")) {
		t.Errorf("Expected total contribution 20, got %s", m.TotalContribution.String())
	}
	if !m.DistanceToGoal.IsZero() {
		t.Errorf("Expected zero distance when overfunded, got %s", m.DistanceToGoal.String())
	}
	if !m.DistancePerSupporter.IsZero() {
		t.Errorf("Expected zero distance per supporter, got %s", m.DistancePerSupporter.String())
	}
}

func TestComputeMetrics_NoSupporters(t *testing.T) {
	m := ComputeMetrics(dec("10"), nil, nil)

	if !m.WeightedSupporters.IsZero() {
		t.Errorf("Expected zero weighted supporters, got %s", m.WeightedSupporters.String())
	}
	if !m.DistanceToGoal.Equal(dec("10")) {
		t.Errorf("Expected distance equal to cost, got %s", m.DistanceToGoal.String())
	}
	// No supporters to spread the gap across.
	if !m.DistancePerSupporter.IsZero() {
		t.Errorf("Expected zero distance per supporter, got %s", m.DistancePerSupporter.String())
	}
}

func TestComputeMetrics_ZeroCost(t *testing.T) {
	evaluations := []models.Evaluation{eval("alice", "1")}
	balances := map[string]decimal.Decimal{"alice": dec("10")}

	m := ComputeMetrics(decimal.Zero, evaluations, balances)

	if !m.TotalContribution.IsZero() {
		t.Errorf("Expected zero contribution at zero cost, got %s", m.TotalContribution.String())
	}
	if !m.DistanceToGoal.IsZero() {
		t.Errorf("Expected zero distance at zero cost, got %s", m.DistanceToGoal.String())
	}
	if !m.WeightedSupporters.Equal(dec("1")) {
		t.Errorf("Expected weighted supporters 1, got %s", m.WeightedSupporters.String())
	}
}

func TestComputeMetrics_Idempotent(t *testing.T) {
	cost := dec("10")
	evaluations := []models.Evaluation{
		eval("alice", "0.3333"),
		eval("bob", "0.6667"),
	}
	balances := map[string]decimal.Decimal{
		"alice": dec("1.5"),
		"bob":   dec("4"),
	}

	first := ComputeMetrics(cost, evaluations, balances)
	second := ComputeMetrics(cost, evaluations, balances)

	if !first.TotalContribution.Equal(second.TotalContribution) ||
		!first.WeightedSupporters.Equal(second.WeightedSupporters) ||
		!first.DistanceToGoal.Equal(second.DistanceToGoal) ||
		!first.DistancePerSupporter.Equal(second.DistancePerSupporter) {
		t.Error("Recomputing on unchanged inputs must produce identical metrics")
	}
}

func TestProportionalPayments(t *testing.T) {
	cost := dec("10")
	contributions := []Contribution{
		{UserId: "alice", Value: dec("1"), Balance: dec("20"), Amount: dec("10")},
		{UserId: "bob", Value: dec("0.5"), Balance: dec("20"), Amount: dec("5")},
	}

	payments := ProportionalPayments(cost, contributions)
	if len(payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(payments))
	}

	// alice pays 10 x 10/15 = 6.6667, bob 10 x 5/15 = 3.3333.
	if !payments[0].Amount.Equal(dec("6.6667")) {
		t.Errorf("Expected alice payment 6.6667, got %s", payments[0].Amount.String())
	}
	if !payments[1].Amount.Equal(dec("3.3333")) {
		t.Errorf("Expected bob payment 3.3333, got %s", payments[1].Amount.String())
	}

	// Exact conservation: payments sum to the cost.
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	if !total.Equal(cost) {
		t.Errorf("Expected payments to sum to %s, got %s", cost.String(), total.String())
	}
}

func TestProportionalPayments_ResidualToLargest(t *testing.T) {
	cost := dec("10")
	contributions := []Contribution{
		{UserId: "a", Value: dec("1"), Balance: dec("10"), Amount: dec("4")},
		{UserId: "b", Value: dec("1"), Balance: dec("10"), Amount: dec("4")},
		{UserId: "c", Value: dec("1"), Balance: dec("10"), Amount: dec("4")},
	}

	payments := ProportionalPayments(cost, contributions)
	if len(payments) != 3 {
		t.Fatalf("Expected 3 payments, got %d", len(payments))
	}

	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	if !total.Equal(cost) {
		t.Errorf("Expected payments to sum to %s, got %s", cost.String(), total.String())
	}

	// 10/3 rounds to 3.3333 each; the first (largest, ties keep first)
	// absorbs the 0.0001 residual.
	if !payments[0].Amount.Equal(dec("3.3334")) {
		t.Errorf("Expected first payment 3.3334, got %s", payments[0].Amount.String())
	}
	if !payments[1].Amount.Equal(dec("3.3333")) {
		t.Errorf("Expected second payment 3.3333, got %s", payments[1].Amount.String())
	}
}

func TestProportionalPayments_SingleSupporter(t *testing.T) {
	cost := dec("10")
	contributions := []Contribution{
		{UserId: "alice", Value: dec("1"), Balance: dec("10"), Amount: dec("10")},
	}

	payments := ProportionalPayments(cost, contributions)
	if len(payments) != 1 {
		t.Fatalf("Expected 1 payment, got %d", len(payments))
	}
	if !payments[0].Amount.Equal(cost) {
		t.Errorf("Expected single supporter to pay full cost %s, got %s", cost.String(), payments[0].Amount.String())
	}
}

func TestProportionalPayments_Empty(t *testing.T) {
	if payments := ProportionalPayments(dec("10"), nil); payments != nil {
		t.Errorf("Expected nil payments without contributions, got %v", payments)
	}
	contributions := []Contribution{
		{UserId: "alice", Value: dec("1"), Balance: dec("0"), Amount: dec("0")},
	}
	if payments := ProportionalPayments(dec("10"), contributions); payments != nil {
		t.Errorf("Expected nil payments with zero total, got %v", payments)
	}
}
