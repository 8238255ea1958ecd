package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"fair-evaluation-go/internal/api"
	"fair-evaluation-go/internal/database"
	"fair-evaluation-go/internal/economy"
	"fair-evaluation-go/internal/formance"
	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService      *database.Service
	Ledger         store.WalletLedger
	EconomyService *api.EconomyService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the economy: the metrics store is always
// SQLite; the wallet ledger is either the same SQLite service or a
// Formance Stack ledger, selected by LEDGER_BACKEND.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var ledger store.WalletLedger
	switch cfg.Ledger.Backend {
	case "", "sqlite":
		ledger = dbService
	case "formance":
		zap.L().Info("Using Formance Stack wallet ledger")
		formanceService, err := formance.NewService(ctx, cfg.Ledger)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		ledger = formanceService
	default:
		dbService.Close()
		return nil, fmt.Errorf("unknown ledger backend %q (expected sqlite or formance)", cfg.Ledger.Backend)
	}

	economyService := api.NewEconomyService(dbService, ledger, NewAdminChecker(dbService))

	return &Services{
		DbService:      dbService,
		Ledger:         ledger,
		EconomyService: economyService,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like balance reports.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// NewAdminChecker adapts the database admin table to the engine's
// capability interface.
func NewAdminChecker(dbService *database.Service) economy.AdminChecker {
	return func(ctx context.Context, userId, groupId string) (bool, error) {
		return dbService.IsGroupAdmin(ctx, groupId, userId)
	}
}

func (cs *Services) Close() {
	if formanceService, ok := cs.Ledger.(*formance.Service); ok {
		formanceService.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
