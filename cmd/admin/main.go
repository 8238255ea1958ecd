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
	"os"

	"fair-evaluation-go/internal/api"
	"fair-evaluation-go/internal/common"
	"fair-evaluation-go/internal/config"
	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: admin -action <action> [flags]

Actions:
  accept        Accept an answer (-answer, -admin)
  complete      Complete an answer's funding gap and accept it (-answer, -admin)
  add-minutes   Split minutes evenly across a group (-group, -admin, -minutes)
  set-cost      Set an answer's funding goal (-answer, -group, -admin, -cost [-parent])
`)
	flag.PrintDefaults()
}

func printAcceptResult(result *models.AcceptResult) {
	fmt.Printf("\nAnswer accepted: %s\n", result.AnswerId)
	fmt.Printf("  Cost:            %s min\n", result.AnswerCost.String())
	fmt.Printf("  Paid by:         %d supporters\n", result.PaidBySupports)
	fmt.Printf("  Total paid:      %s min\n", result.TotalPaid.String())
	if result.MinutesGranted.IsPositive() {
		fmt.Printf("  Minutes granted: %s min (complete-to-goal)\n", result.MinutesGranted.String())
	}
}

func fail(err error) {
	opErr := api.OperationError(err)
	fmt.Fprintf(os.Stderr, "\nOperation failed [%s]: %s\n", opErr.Code, opErr.Message)
	os.Exit(1)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	action := flag.String("action", "", "Action to perform: accept, complete, add-minutes, set-cost")
	answerId := flag.String("answer", "", "Answer id")
	groupId := flag.String("group", "", "Group id")
	parentId := flag.String("parent", "", "Parent question id (set-cost only)")
	adminId := flag.String("admin", "", "Acting admin user id")
	minutes := flag.String("minutes", "", "Total minutes to add (add-minutes only)")
	cost := flag.String("cost", "", "Answer cost in minutes (set-cost only)")
	flag.Usage = usage
	flag.Parse()

	if *action == "" || *adminId == "" {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	economy := services.EconomyService

	switch *action {
	case "accept":
		if *answerId == "" {
			usage()
			os.Exit(2)
		}
		result, err := economy.AcceptAnswer(ctx, *answerId, *adminId)
		if err != nil {
			fail(err)
		}
		printAcceptResult(result)

	case "complete":
		if *answerId == "" {
			usage()
			os.Exit(2)
		}
		result, err := economy.CompleteToGoal(ctx, *answerId, *adminId)
		if err != nil {
			fail(err)
		}
		printAcceptResult(result)

	case "add-minutes":
		if *groupId == "" || *minutes == "" {
			usage()
			os.Exit(2)
		}
		total, err := decimal.NewFromString(*minutes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -minutes value %q: %v\n", *minutes, err)
			os.Exit(2)
		}
		result, err := economy.AddMinutesToGroup(ctx, *groupId, total, *adminId)
		if err != nil {
			fail(err)
		}
		fmt.Printf("\nMinutes added to group %s\n", result.GroupId)
		fmt.Printf("  Wallets topped:  %d\n", result.WalletsTopped)
		fmt.Printf("  Per wallet:      %s min\n", result.PerWallet.String())
		fmt.Printf("  Total granted:   %s min\n", result.TotalGranted.String())

	case "set-cost":
		if *answerId == "" || *groupId == "" || *cost == "" {
			usage()
			os.Exit(2)
		}
		newCost, err := decimal.NewFromString(*cost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -cost value %q: %v\n", *cost, err)
			os.Exit(2)
		}
		if err := economy.SetAnswerCost(ctx, *answerId, *groupId, *parentId, newCost, *adminId); err != nil {
			fail(err)
		}
		fmt.Printf("\nCost for answer %s set to %s min\n", *answerId, newCost.String())

	default:
		usage()
		os.Exit(2)
	}
}
