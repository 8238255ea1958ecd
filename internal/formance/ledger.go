package formance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Metadata is set inside the script via set_tx_meta()
// so every ledger transaction is fully self-describing.
// ---------------------------------------------------------------------------

const numscriptWalletJoin = `vars {
  asset $asset
  number $amount
  account $group_id
  account $user_id
}

send [$asset $amount] (
  source = @groups:$group_id:treasury allowing unbounded overdraft
  destination = @groups:$group_id:users:$user_id
)

set_tx_meta("event_type", "wallet_join")
set_tx_meta("group_id", $group_id)
set_tx_meta("user_id", $user_id)
`

const numscriptMinutesGranted = `vars {
  asset $asset
  number $amount
  account $group_id
  account $user_id
  string $grant_type
  string $grant_reference
}

send [$asset $amount] (
  source = @groups:$group_id:treasury allowing unbounded overdraft
  destination = @groups:$group_id:users:$user_id
)

set_tx_meta("event_type", "minutes_granted")
set_tx_meta("grant_type", $grant_type)
set_tx_meta("grant_reference", $grant_reference)
set_tx_meta("group_id", $group_id)
set_tx_meta("user_id", $user_id)
`

// CreateWallet provisions the member's wallet account and, when the group
// grants an initial balance, posts the single join transaction. Idempotent
// via account metadata plus the join reference.
func (s *Service) CreateWallet(ctx context.Context, groupId, userId string, initialBalance decimal.Decimal) (*models.Wallet, bool, error) {
	if groupId == "" || userId == "" {
		return nil, false, fmt.Errorf("groupId and userId are required")
	}
	if initialBalance.IsNegative() {
		return nil, false, fmt.Errorf("initial balance cannot be negative, got %s", initialBalance.String())
	}

	address := walletAccount(groupId, userId)
	if meta := s.getAccountMetadata(ctx, address); meta["joined_at"] != "" {
		wallet, err := s.GetWallet(ctx, groupId, userId)
		if err != nil {
			return nil, false, err
		}
		return wallet, false, nil
	}

	now := time.Now().UTC()
	_, err := s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:      s.ledger,
		Address:     address,
		RequestBody: map[string]string{"group_id": groupId, "user_id": userId, "joined_at": now.Format(time.RFC3339)},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to provision wallet account: %w", err)
	}

	if initialBalance.IsPositive() {
		postTx := shared.V2PostTransaction{
			Reference: strPtr(fmt.Sprintf("join:%s:%s", groupId, userId)),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptWalletJoin,
				Vars: map[string]string{
					"asset":    minuteAsset,
					"amount":   minuteAmount(initialBalance),
					"group_id": accountSegment(groupId),
					"user_id":  accountSegment(userId),
				},
			},
		}
		_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
			Ledger:            s.ledger,
			V2PostTransaction: postTx,
		})
		if err != nil && !isConflictError(err) {
			return nil, false, fmt.Errorf("error recording join credit: %w", err)
		}
	}

	zap.L().Info("Wallet created in Formance",
		zap.String("group_id", groupId),
		zap.String("user_id", userId),
		zap.String("initial_balance", initialBalance.String()))

	return &models.Wallet{
		Id:            address,
		GroupId:       groupId,
		UserId:        userId,
		Balance:       initialBalance,
		TotalReceived: initialBalance,
		TotalSpent:    decimal.Zero,
		CreatedAt:     now,
		LastUpdate:    now,
	}, true, nil
}

// Credit grants minutes to one wallet from the group treasury. The
// caller's reference is suffixed with the user id so each wallet's grant
// is its own ledger transaction; a duplicate reference means the grant was
// already applied and is skipped.
func (s *Service) Credit(ctx context.Context, groupId, userId string, amount decimal.Decimal, txType, reference string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount.String())
	}

	ref := reference + ":" + userId
	postTx := shared.V2PostTransaction{
		Reference: strPtr(ref),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptMinutesGranted,
			Vars: map[string]string{
				"asset":           minuteAsset,
				"amount":          minuteAmount(amount),
				"group_id":        accountSegment(groupId),
				"user_id":         accountSegment(userId),
				"grant_type":      txType,
				"grant_reference": reference,
			},
		},
	}
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Warn("Duplicate credit reference, skipping", zap.String("reference", ref))
			return nil, nil
		}
		return nil, fmt.Errorf("error recording credit: %w", err)
	}

	zap.L().Info("Wallet credited in Formance",
		zap.String("group_id", groupId),
		zap.String("user_id", userId),
		zap.String("type", txType),
		zap.String("amount", amount.String()))

	return &models.Transaction{
		Id:              uuid.New().String(),
		GroupId:         groupId,
		UserId:          userId,
		TransactionType: txType,
		Amount:          amount,
		Reference:       reference,
		CreatedAt:       time.Now(),
	}, nil
}

// SettleAnswer debits every supporter into the answer account as ONE
// ledger transaction: the script carries one posting per supporter, and
// the ledger's no-overdraft default aborts the whole transaction if any
// wallet is short. The settlement:{answerId} reference turns repeats into
// ErrDuplicateTransaction. The answer freeze itself lives in the metrics
// store; the caller completes it (saga).
func (s *Service) SettleAnswer(ctx context.Context, params store.SettleParams) error {
	if len(params.Payments) == 0 {
		return fmt.Errorf("%w: settlement with no payments", store.ErrDuplicateTransaction)
	}

	script := buildSettlementScript(params)
	postTx := shared.V2PostTransaction{
		Reference: strPtr("settlement:" + params.AnswerId),
		Script:    &shared.V2PostTransactionScript{Plain: script},
	}
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return fmt.Errorf("%w: settlement for answer %s already exists", store.ErrDuplicateTransaction, params.AnswerId)
		}
		if isInsufficientFundError(err) {
			return fmt.Errorf("%w: settlement for answer %s rejected by ledger", store.ErrInsufficientBalance, params.AnswerId)
		}
		return fmt.Errorf("error recording settlement: %w", err)
	}

	zap.L().Info("Answer settled in Formance",
		zap.String("answer_id", params.AnswerId),
		zap.String("group_id", params.GroupId),
		zap.String("cost", params.Cost.String()),
		zap.Int("supporters_charged", len(params.Payments)))
	return nil
}

// HasSettlement checks the ledger for the answer's settlement transaction
// by reference.
func (s *Service) HasSettlement(ctx context.Context, answerId string) (bool, error) {
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: ptrInt64(1),
		RequestBody: map[string]any{
			"$match": map[string]any{"reference": "settlement:" + answerId},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up settlement: %w", err)
	}
	return len(resp.V2TransactionsCursorResponse.Cursor.Data) > 0, nil
}

// buildSettlementScript generates the multi-posting Numscript for one
// acceptance. Amounts and account segments are inlined because Numscript
// vars cannot express a variable number of postings.
func buildSettlementScript(params store.SettleParams) string {
	var b strings.Builder
	dest := "@" + answerAccount(params.GroupId, params.AnswerId)
	for _, p := range params.Payments {
		fmt.Fprintf(&b, "send [%s %s] (\n", minuteAsset, minuteAmount(p.Amount))
		fmt.Fprintf(&b, "  source = @%s\n", walletAccount(params.GroupId, p.UserId))
		fmt.Fprintf(&b, "  destination = %s\n", dest)
		b.WriteString(")\n\n")
	}
	fmt.Fprintf(&b, "set_tx_meta(\"event_type\", \"answer_settlement\")\n")
	fmt.Fprintf(&b, "set_tx_meta(\"answer_id\", \"%s\")\n", accountSegment(params.AnswerId))
	fmt.Fprintf(&b, "set_tx_meta(\"group_id\", \"%s\")\n", accountSegment(params.GroupId))
	fmt.Fprintf(&b, "set_tx_meta(\"accepted_by\", \"%s\")\n", accountSegment(params.AdminId))
	fmt.Fprintf(&b, "set_tx_meta(\"answer_cost\", \"%s\")\n", params.Cost.String())
	return b.String()
}

func strPtr(s string) *string { return &s }
