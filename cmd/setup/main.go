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
	"time"

	"fair-evaluation-go/internal/common"
	"fair-evaluation-go/internal/config"
	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// seedGroup stores the group's settings, registers its admins, and opens
// a wallet for every member. Safe to rerun: existing wallets are left
// untouched.
func seedGroup(ctx context.Context, services *common.Services, group common.GroupConfig) error {
	settings := models.GroupSettings{
		GroupId:               group.Id,
		FairEvaluationEnabled: group.FairEvaluationEnabled,
		InitialBalance:        decimal.NewFromFloat(group.InitialBalance),
		UpdatedAt:             time.Now().UTC(),
	}
	if err := services.DbService.SaveGroupSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to save settings for group %s: %w", group.Id, err)
	}

	for _, adminId := range group.Admins {
		if err := services.DbService.AddGroupAdmin(ctx, group.Id, adminId); err != nil {
			return fmt.Errorf("failed to add admin %s to group %s: %w", adminId, group.Id, err)
		}
	}

	created := 0
	for _, memberId := range group.Members {
		wallet, err := services.EconomyService.InitializeWallet(ctx, group.Id, memberId)
		if err != nil {
			zap.L().Error("Failed to initialize wallet",
				zap.String("group_id", group.Id),
				zap.String("user_id", memberId),
				zap.Error(err))
			continue
		}
		created++
		zap.L().Info("Wallet ready",
			zap.String("group_id", group.Id),
			zap.String("user_id", memberId),
			zap.String("balance", wallet.Balance.String()))
	}

	zap.L().Info("Group seeded",
		zap.String("group_id", group.Id),
		zap.Bool("economy_enabled", group.FairEvaluationEnabled),
		zap.Int("admins", len(group.Admins)),
		zap.Int("wallets", created))
	return nil
}

func seedGroups(ctx context.Context, services *common.Services, groupsFile string) {
	zap.L().Info("Loading group configuration", zap.String("file", groupsFile))
	groups, err := common.LoadGroupConfig(groupsFile)
	if err != nil {
		zap.L().Fatal("Failed to load group config", zap.Error(err))
	}
	zap.L().Info("Group configuration loaded", zap.Int("count", len(groups)))

	var failed []string
	for _, group := range groups {
		if err := seedGroup(ctx, services, group); err != nil {
			zap.L().Error("Failed to seed group",
				zap.String("group_id", group.Id),
				zap.Error(err))
			failed = append(failed, group.Id)
		}
	}

	if len(failed) > 0 {
		zap.L().Warn("Seeding completed with some failures",
			zap.Int("total_groups", len(groups)),
			zap.Strings("failed_groups", failed))
	} else {
		zap.L().Info("Seeding completed successfully",
			zap.Int("total_groups", len(groups)))
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	groupsFile := flag.String("groups", "", "Path to groups.yaml (default: GROUPS_FILE env or groups.yaml)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	file := *groupsFile
	if file == "" {
		file = cfg.Economy.GroupsFile
	}

	zap.L().Info("Setting up economy database and seeding groups")
	seedGroups(ctx, services, file)
	zap.L().Info("Initialization complete")
}
