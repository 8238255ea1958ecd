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

package main

import (
	"context"
	"flag"
	"fmt"

	"fair-evaluation-go/internal/common"
	"fair-evaluation-go/internal/config"
	"fair-evaluation-go/internal/database"
	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type walletStats struct {
	totalGroups  int
	totalWallets int
	totalMinutes decimal.Decimal
}

func formatReference(ref string) string {
	if ref == "" {
		return "none"
	}
	if len(ref) > 24 {
		return ref[:24] + "..."
	}
	return ref
}

func printWallet(wallet models.Wallet, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-20s: %12s min (received %s, spent %s, v%d, updated: %s)\n",
		symbol,
		wallet.UserId,
		wallet.Balance.String(),
		wallet.TotalReceived.String(),
		wallet.TotalSpent.String(),
		wallet.Version,
		wallet.LastUpdate.Format("2006-01-02 15:04:05"))
}

func printHistory(transactions []models.Transaction, isLast bool) {
	prefix := common.BoxDetailPrefix(isLast)
	for _, tx := range transactions {
		fmt.Printf("%s     %-10s %12s min -> %12s (%s)\n",
			prefix,
			tx.TransactionType,
			tx.Amount.String(),
			tx.BalanceAfter.String(),
			formatReference(tx.Reference))
	}
}

func printGroupHeader(groupId string, settings models.GroupSettings, walletCount int) {
	fmt.Printf("\n┌─ Group: %s\n", groupId)
	fmt.Printf("│  Economy enabled: %t\n", settings.FairEvaluationEnabled)
	fmt.Printf("│  Initial balance: %s min\n", settings.InitialBalance.String())
	fmt.Printf("│  Wallets: %d\n", walletCount)
	common.PrintBoxSeparator(78)
}

func processGroup(ctx context.Context, groupId string, dbService *database.Service, showHistory bool, historyLimit int) (int, decimal.Decimal, error) {
	settings, err := dbService.GetGroupSettings(ctx, groupId)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to get group settings: %w", err)
	}

	wallets, err := dbService.GetGroupWallets(ctx, groupId)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to get wallets: %w", err)
	}
	if len(wallets) == 0 {
		return 0, decimal.Zero, nil
	}

	printGroupHeader(groupId, *settings, len(wallets))

	total := decimal.Zero
	for i, wallet := range wallets {
		isLast := i == len(wallets)-1
		printWallet(wallet, isLast)
		total = total.Add(wallet.Balance)

		if showHistory {
			history, err := dbService.GetTransactionHistory(ctx, groupId, wallet.UserId, historyLimit, 0)
			if err != nil {
				zap.L().Error("Failed to get transaction history",
					zap.String("group_id", groupId),
					zap.String("user_id", wallet.UserId),
					zap.Error(err))
				continue
			}
			printHistory(history, isLast)
		}
	}

	return len(wallets), total, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	groupFlag := flag.String("group", "", "Filter by specific group id (optional)")
	historyFlag := flag.Bool("history", false, "Show transaction history per wallet")
	flag.Parse()

	logger.Info("Starting wallet report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	// Resolve the set of groups to report on.
	var groupIds []string
	if *groupFlag != "" {
		groupIds = []string{*groupFlag}
	} else {
		groups, err := common.LoadGroupConfig(cfg.Economy.GroupsFile)
		if err != nil {
			logger.Fatal("Failed to load group config", zap.Error(err))
		}
		for _, g := range groups {
			groupIds = append(groupIds, g.Id)
		}
	}

	common.PrintHeader("GROUP WALLET REPORT", common.DefaultWidth)

	stats := walletStats{totalMinutes: decimal.Zero}
	for _, groupId := range groupIds {
		stats.totalGroups++
		count, total, err := processGroup(ctx, groupId, dbService, *historyFlag, cfg.Economy.HistoryLimit)
		if err != nil {
			logger.Error("Failed to process group",
				zap.String("group_id", groupId),
				zap.Error(err))
			continue
		}
		stats.totalWallets += count
		stats.totalMinutes = stats.totalMinutes.Add(total)
	}

	summary := fmt.Sprintf("SUMMARY: %d wallets across %d groups, %s minutes in circulation",
		stats.totalWallets, stats.totalGroups, stats.totalMinutes.String())
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Wallet report completed",
		zap.Int("groups", stats.totalGroups),
		zap.Int("wallets", stats.totalWallets),
		zap.String("total_minutes", stats.totalMinutes.String()))
}
