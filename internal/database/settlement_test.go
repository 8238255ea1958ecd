package database

import (
	"context"
	"errors"
	"testing"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func settleParams(answerId string, cost decimal.Decimal, payments []store.PaymentOrder) store.SettleParams {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return store.SettleParams{
		AnswerId: answerId,
		GroupId:  "g1",
		AdminId:  "admin",
		Cost:     cost,
		Payments: payments,
		Metrics: models.AnswerMetrics{
			AnswerId:          answerId,
			GroupId:           "g1",
			AnswerCost:        cost,
			TotalContribution: total,
			DistanceToGoal:    decimal.Zero,
		},
	}
}

func TestSettleAnswer(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	for _, userId := range []string{"alice", "bob"} {
		if _, _, err := service.CreateWallet(ctx, "g1", userId, decimal.NewFromInt(10)); err != nil {
			t.Fatalf("CreateWallet(%s) failed: %v", userId, err)
		}
	}
	cost := decimal.NewFromInt(10)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	payments := []store.PaymentOrder{
		{UserId: "alice", Amount: decimal.NewFromInt(6), EvaluationValue: decimal.NewFromInt(1), Share: decimal.NewFromFloat(0.6)},
		{UserId: "bob", Amount: decimal.NewFromInt(4), EvaluationValue: decimal.NewFromFloat(0.5), Share: decimal.NewFromFloat(0.4)},
	}
	if err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments)); err != nil {
		t.Fatalf("SettleAnswer failed: %v", err)
	}

	// Balances reflect the debits and totals stay conserved.
	alice, err := service.GetWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetWallet(alice) failed: %v", err)
	}
	if !alice.Balance.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected alice balance 4, got %s", alice.Balance.String())
	}
	if !alice.TotalSpent.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected alice total_spent 6, got %s", alice.TotalSpent.String())
	}
	bob, err := service.GetWallet(ctx, "g1", "bob")
	if err != nil {
		t.Fatalf("GetWallet(bob) failed: %v", err)
	}
	if !bob.Balance.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected bob balance 6, got %s", bob.Balance.String())
	}

	for _, userId := range []string{"alice", "bob"} {
		if err := service.ReconcileWallet(ctx, "g1", userId); err != nil {
			t.Errorf("Reconciliation failed for %s: %v", userId, err)
		}
	}

	// Payments sum to exactly the cost.
	recorded, err := service.GetAnswerPayments(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerPayments failed: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("Expected 2 payment entries, got %d", len(recorded))
	}
	paid := decimal.Zero
	for _, tx := range recorded {
		if !tx.Amount.IsNegative() {
			t.Errorf("Payment amount should be negative, got %s", tx.Amount.String())
		}
		paid = paid.Add(tx.Amount.Neg())
	}
	if !paid.Equal(cost) {
		t.Errorf("Expected total paid %s, got %s", cost.String(), paid.String())
	}

	// The answer is frozen in the same unit of work.
	metrics, err := service.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if !metrics.IsAccepted {
		t.Error("Expected answer to be accepted after settlement")
	}
	if metrics.AcceptedBy != "admin" {
		t.Errorf("Expected accepted_by admin, got %s", metrics.AcceptedBy)
	}
}

func TestSettleAnswer_FractionalAmountsReconcile(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	for _, userId := range []string{"alice", "bob"} {
		if _, _, err := service.CreateWallet(ctx, "g1", userId, decimal.NewFromInt(20)); err != nil {
			t.Fatalf("CreateWallet(%s) failed: %v", userId, err)
		}
	}
	cost := decimal.NewFromInt(10)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	// A proportional split leaves repeating-decimal amounts in the
	// ledger; balances and ledger sums must still match exactly.
	payments := []store.PaymentOrder{
		{UserId: "alice", Amount: decimal.RequireFromString("6.6667")},
		{UserId: "bob", Amount: decimal.RequireFromString("3.3333")},
	}
	if err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments)); err != nil {
		t.Fatalf("SettleAnswer failed: %v", err)
	}

	alice, err := service.GetWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetWallet(alice) failed: %v", err)
	}
	if !alice.Balance.Equal(decimal.RequireFromString("13.3333")) {
		t.Errorf("Expected alice balance 13.3333, got %s", alice.Balance.String())
	}
	bob, err := service.GetWallet(ctx, "g1", "bob")
	if err != nil {
		t.Fatalf("GetWallet(bob) failed: %v", err)
	}
	if !bob.Balance.Equal(decimal.RequireFromString("16.6667")) {
		t.Errorf("Expected bob balance 16.6667, got %s", bob.Balance.String())
	}

	for _, userId := range []string{"alice", "bob"} {
		if err := service.ReconcileWallet(ctx, "g1", userId); err != nil {
			t.Errorf("Reconciliation failed for %s: %v", userId, err)
		}
	}
}

func TestSettleAnswer_InsufficientBalanceAborts(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, _, err := service.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet(alice) failed: %v", err)
	}
	if _, _, err := service.CreateWallet(ctx, "g1", "bob", decimal.NewFromInt(3)); err != nil {
		t.Fatalf("CreateWallet(bob) failed: %v", err)
	}
	cost := decimal.NewFromInt(10)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	// bob's wallet is short; the entire settlement must roll back, alice
	// included.
	payments := []store.PaymentOrder{
		{UserId: "alice", Amount: decimal.NewFromInt(6)},
		{UserId: "bob", Amount: decimal.NewFromInt(4)},
	}
	err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments))
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	alice, err := service.GetWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetWallet(alice) failed: %v", err)
	}
	if !alice.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected alice balance untouched at 10, got %s", alice.Balance.String())
	}

	metrics, err := service.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if metrics.IsAccepted {
		t.Error("Answer must not be accepted after a failed settlement")
	}

	recorded, err := service.GetAnswerPayments(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerPayments failed: %v", err)
	}
	if len(recorded) != 0 {
		t.Errorf("Expected no payment entries after rollback, got %d", len(recorded))
	}
}

func TestSettleAnswer_MissingWalletAborts(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, _, err := service.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	cost := decimal.NewFromInt(5)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	payments := []store.PaymentOrder{
		{UserId: "alice", Amount: decimal.NewFromInt(3)},
		{UserId: "ghost", Amount: decimal.NewFromInt(2)},
	}
	err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments))
	if !errors.Is(err, store.ErrWalletNotFound) {
		t.Fatalf("Expected ErrWalletNotFound, got %v", err)
	}

	// The error names the supporter whose wallet was missing.
	var notFound *store.WalletNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatal("Expected a WalletNotFoundError")
	}
	if notFound.UserId != "ghost" {
		t.Errorf("Expected missing wallet for ghost, got %q", notFound.UserId)
	}

	alice, err := service.GetWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !alice.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected alice balance untouched at 10, got %s", alice.Balance.String())
	}
}

func TestSettleAnswer_Duplicate(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, _, err := service.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	cost := decimal.NewFromInt(5)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	payments := []store.PaymentOrder{{UserId: "alice", Amount: cost}}
	if err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments)); err != nil {
		t.Fatalf("First settlement failed: %v", err)
	}

	err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments))
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	// Only one settlement's worth of debits.
	alice, err := service.GetWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !alice.Balance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected balance 5 after single settlement, got %s", alice.Balance.String())
	}
}

func TestHasSettlement(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, _, err := service.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	cost := decimal.NewFromInt(5)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	settled, err := service.HasSettlement(ctx, "ans1")
	if err != nil {
		t.Fatalf("HasSettlement failed: %v", err)
	}
	if settled {
		t.Error("Expected no settlement before settling")
	}

	payments := []store.PaymentOrder{{UserId: "alice", Amount: cost}}
	if err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments)); err != nil {
		t.Fatalf("SettleAnswer failed: %v", err)
	}

	settled, err = service.HasSettlement(ctx, "ans1")
	if err != nil {
		t.Fatalf("HasSettlement failed: %v", err)
	}
	if !settled {
		t.Error("Expected the settlement to be visible by reference")
	}
}

func TestSettleAnswer_AnswerNotFound(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, _, err := service.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	payments := []store.PaymentOrder{{UserId: "alice", Amount: decimal.NewFromInt(1)}}
	err := service.SettleAnswer(ctx, settleParams("nope", decimal.NewFromInt(1), payments))
	if !errors.Is(err, store.ErrAnswerNotFound) {
		t.Fatalf("Expected ErrAnswerNotFound, got %v", err)
	}
}

func TestSetAnswerCost_FrozenAfterAccept(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	if _, _, err := service.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	cost := decimal.NewFromInt(5)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}
	payments := []store.PaymentOrder{{UserId: "alice", Amount: cost}}
	if err := service.SettleAnswer(ctx, settleParams("ans1", cost, payments)); err != nil {
		t.Fatalf("SettleAnswer failed: %v", err)
	}

	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", decimal.NewFromInt(99)); err == nil {
		t.Error("Expected error changing cost of an accepted answer")
	}

	metrics, err := service.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if !metrics.AnswerCost.Equal(cost) {
		t.Errorf("Expected frozen cost %s, got %s", cost.String(), metrics.AnswerCost.String())
	}
}

func TestMarkAccepted_Idempotent(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	cost := decimal.NewFromInt(5)
	if err := service.SetAnswerCost(ctx, "ans1", "g1", "q1", cost); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	m := models.AnswerMetrics{AnswerCost: cost, TotalContribution: cost}
	if err := service.MarkAccepted(ctx, "ans1", "admin", m); err != nil {
		t.Fatalf("MarkAccepted failed: %v", err)
	}

	first, err := service.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if !first.IsAccepted {
		t.Fatal("Expected answer accepted")
	}

	// A repeat with a different admin must not change the frozen row.
	if err := service.MarkAccepted(ctx, "ans1", "someone-else", m); err != nil {
		t.Fatalf("Repeated MarkAccepted failed: %v", err)
	}
	second, err := service.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if second.AcceptedBy != "admin" {
		t.Errorf("Expected accepted_by to remain admin, got %s", second.AcceptedBy)
	}
	if !second.AcceptedAt.Equal(first.AcceptedAt) {
		t.Error("Expected accepted_at to remain unchanged")
	}
}
