package api

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fair-evaluation-go/internal/database"
	"fair-evaluation-go/internal/economy"
	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupService(t *testing.T) (*EconomyService, *database.Service) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	isAdmin := func(ctx context.Context, userId, groupId string) (bool, error) {
		return userId == "admin", nil
	}
	return NewEconomyService(db, db, isAdmin), db
}

func TestInitializeWallet(t *testing.T) {
	service, db := setupService(t)
	ctx := context.Background()

	settings := models.GroupSettings{
		GroupId:               "g1",
		FairEvaluationEnabled: true,
		InitialBalance:        decimal.NewFromInt(10),
	}
	if err := db.SaveGroupSettings(ctx, settings); err != nil {
		t.Fatalf("SaveGroupSettings failed: %v", err)
	}

	info, err := service.InitializeWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("InitializeWallet failed: %v", err)
	}
	if !info.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected initial balance 10, got %s", info.Balance.String())
	}

	// Re-initializing the same membership changes nothing.
	again, err := service.InitializeWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("Second InitializeWallet failed: %v", err)
	}
	if !again.Balance.Equal(info.Balance) {
		t.Errorf("Expected balance unchanged at %s, got %s", info.Balance.String(), again.Balance.String())
	}
}

func TestInitializeWallet_DisabledGroup(t *testing.T) {
	service, _ := setupService(t)

	info, err := service.InitializeWallet(context.Background(), "unconfigured", "alice")
	if err != nil {
		t.Fatalf("InitializeWallet failed: %v", err)
	}
	if !info.Balance.IsZero() {
		t.Errorf("Members of a disabled group must start at 0, got %s", info.Balance.String())
	}
}

func TestOnEvaluationChange(t *testing.T) {
	service, db := setupService(t)
	ctx := context.Background()

	if _, _, err := db.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if err := db.SetAnswerCost(ctx, "ans1", "g1", "q1", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("SetAnswerCost failed: %v", err)
	}

	e := models.Evaluation{
		AnswerId: "ans1",
		UserId:   "alice",
		GroupId:  "g1",
		ParentId: "q1",
		Value:    decimal.NewFromFloat(0.5),
	}
	if err := service.OnEvaluationChange(ctx, e, false); err != nil {
		t.Fatalf("OnEvaluationChange failed: %v", err)
	}

	// The write triggered the cascade.
	metrics, err := db.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if !metrics.TotalContribution.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected total contribution 5, got %s", metrics.TotalContribution.String())
	}

	// Deleting the evaluation drops the support again.
	if err := service.OnEvaluationChange(ctx, e, true); err != nil {
		t.Fatalf("OnEvaluationChange(delete) failed: %v", err)
	}
	metrics, err = db.GetAnswerMetrics(ctx, "ans1")
	if err != nil {
		t.Fatalf("GetAnswerMetrics failed: %v", err)
	}
	if !metrics.TotalContribution.IsZero() {
		t.Errorf("Expected zero contribution after delete, got %s", metrics.TotalContribution.String())
	}
}

func TestOnEvaluationChange_RejectsOutOfRange(t *testing.T) {
	service, _ := setupService(t)

	e := models.Evaluation{
		AnswerId: "ans1",
		UserId:   "alice",
		GroupId:  "g1",
		ParentId: "q1",
		Value:    decimal.NewFromFloat(1.5),
	}
	if err := service.OnEvaluationChange(context.Background(), e, false); !errors.Is(err, economy.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for value 1.5, got %v", err)
	}

	e.Value = decimal.NewFromFloat(-1.5)
	if err := service.OnEvaluationChange(context.Background(), e, false); !errors.Is(err, economy.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for value -1.5, got %v", err)
	}
}

func TestAddMinutesToGroup(t *testing.T) {
	service, db := setupService(t)
	ctx := context.Background()

	for _, userId := range []string{"alice", "bob", "carol"} {
		if _, _, err := db.CreateWallet(ctx, "g1", userId, decimal.Zero); err != nil {
			t.Fatalf("CreateWallet(%s) failed: %v", userId, err)
		}
	}

	result, err := service.AddMinutesToGroup(ctx, "g1", decimal.NewFromInt(10), "admin")
	if err != nil {
		t.Fatalf("AddMinutesToGroup failed: %v", err)
	}
	if result.WalletsTopped != 3 {
		t.Errorf("Expected 3 wallets topped, got %d", result.WalletsTopped)
	}
	if !result.PerWallet.Equal(decimal.RequireFromString("3.3333")) {
		t.Errorf("Expected per-wallet share 3.3333, got %s", result.PerWallet.String())
	}
	if !result.TotalGranted.Equal(decimal.RequireFromString("9.9999")) {
		t.Errorf("Expected total granted 9.9999, got %s", result.TotalGranted.String())
	}

	wallet, err := db.GetWallet(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(result.PerWallet) {
		t.Errorf("Expected alice balance %s, got %s", result.PerWallet.String(), wallet.Balance.String())
	}
}

func TestAddMinutesToGroup_PermissionDenied(t *testing.T) {
	service, db := setupService(t)
	ctx := context.Background()

	if _, _, err := db.CreateWallet(ctx, "g1", "alice", decimal.Zero); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	_, err := service.AddMinutesToGroup(ctx, "g1", decimal.NewFromInt(10), "mallory")
	if !errors.Is(err, economy.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestGetTransactionHistory(t *testing.T) {
	service, db := setupService(t)
	ctx := context.Background()

	if _, _, err := db.CreateWallet(ctx, "g1", "alice", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if _, err := db.Credit(ctx, "g1", "alice", decimal.NewFromInt(5), models.TransactionTypeAdminAdd, "admin-add:test"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	records, err := service.GetTransactionHistory(ctx, "g1", "alice", 10)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].Type != models.TransactionTypeAdminAdd {
		t.Errorf("Expected newest record to be the top-up, got %s", records[0].Type)
	}
	if !records[0].BalanceAfter.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected balance_after 15, got %s", records[0].BalanceAfter.String())
	}
}

func TestOperationError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{economy.ErrAlreadyAccepted, "ALREADY_ACCEPTED"},
		{&economy.GoalNotReachedError{Distance: decimal.NewFromInt(3)}, "GOAL_NOT_REACHED"},
		{economy.ErrPermissionDenied, "PERMISSION_DENIED"},
		{store.ErrAnswerNotFound, "ANSWER_NOT_FOUND"},
		{store.ErrWalletNotFound, "WALLET_MISSING"},
		{errors.New("boom"), "INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		opErr := OperationError(tc.err)
		if opErr.Code != tc.code {
			t.Errorf("Expected code %s for %v, got %s", tc.code, tc.err, opErr.Code)
		}
	}
	if OperationError(nil) != nil {
		t.Error("Expected nil payload for nil error")
	}
}
