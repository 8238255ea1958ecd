package formance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWallet reads one member wallet from account volumes: balance is
// input minus output, totals come straight from the volume legs.
func (s *Service) GetWallet(ctx context.Context, groupId, userId string) (*models.Wallet, error) {
	address := walletAccount(groupId, userId)
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, &store.WalletNotFoundError{GroupId: groupId, UserId: userId}
		}
		return nil, fmt.Errorf("failed to get wallet account: %w", err)
	}

	acct := resp.V2AccountResponse.Data
	if acct.Metadata["joined_at"] == "" {
		return nil, &store.WalletNotFoundError{GroupId: groupId, UserId: userId}
	}
	return accountToWallet(&acct, groupId, userId), nil
}

// GetGroupWallets lists every member wallet in the group by metadata,
// keeping only top-level groups:{g}:users:{u} accounts. The listing is
// paginated; groups larger than one page are walked cursor by cursor.
func (s *Service) GetGroupWallets(ctx context.Context, groupId string) ([]models.Wallet, error) {
	prefix := fmt.Sprintf("groups:%s:users:", accountSegment(groupId))

	var wallets []models.Wallet
	var cursor *string
	for {
		req := operations.V2ListAccountsRequest{Ledger: s.ledger}
		if cursor != nil {
			// A cursor request encodes the original query; the API rejects
			// it when combined with other parameters.
			req.Cursor = cursor
		} else {
			req.PageSize = ptrInt64(100)
			req.Expand = v3.Pointer("volumes")
			req.RequestBody = map[string]any{
				"$match": map[string]any{
					"metadata[group_id]": groupId,
				},
			}
		}

		resp, err := s.client.Ledger.V2.ListAccounts(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list group wallets: %w", err)
		}

		page := resp.V2AccountsCursorResponse.Cursor
		for i := range page.Data {
			acct := &page.Data[i]
			if !isMemberWalletAddress(acct.Address, prefix) {
				continue
			}
			wallets = append(wallets, *accountToWallet(acct, groupId, acct.Metadata["user_id"]))
		}

		if page.Next == nil || *page.Next == "" {
			return wallets, nil
		}
		cursor = page.Next
	}
}

// isMemberWalletAddress keeps only direct groups:{g}:users:{u} accounts,
// excluding any deeper sub-accounts under a user.
func isMemberWalletAddress(address, prefix string) bool {
	return strings.HasPrefix(address, prefix) && !strings.Contains(address[len(prefix):], ":")
}

// GetTransactionHistory returns the member's ledger entries, newest first.
// Entry shape is reconstructed from postings: debits against the wallet
// are negative, treasury credits positive.
func (s *Service) GetTransactionHistory(ctx context.Context, groupId, userId string, limit, offset int) ([]models.Transaction, error) {
	address := walletAccount(groupId, userId)
	pageSize := int64(limit + offset)

	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$or": []any{
				map[string]any{"$match": map[string]any{"source": address}},
				map[string]any{"$match": map[string]any{"destination": address}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var result []models.Transaction
	skipped := 0
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		if skipped < offset {
			skipped++
			continue
		}

		amt := decimal.Zero
		for _, p := range tx.Postings {
			pAmt := minutesFromSmallest(p.Amount)
			if p.Source == address {
				amt = amt.Sub(pAmt)
			} else if p.Destination == address {
				amt = amt.Add(pAmt)
			}
		}

		ref := ""
		if tx.Reference != nil {
			ref = *tx.Reference
		}

		result = append(result, models.Transaction{
			Id:              fmt.Sprintf("%d", tx.ID),
			GroupId:         groupId,
			UserId:          userId,
			TransactionType: transactionTypeFor(tx.Metadata, amt),
			Amount:          amt,
			AnswerId:        tx.Metadata["answer_id"],
			Reference:       ref,
			CreatedAt:       tx.Timestamp,
		})

		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// ---------- helpers ----------

func transactionTypeFor(metadata map[string]string, amount decimal.Decimal) string {
	switch metadata["event_type"] {
	case "wallet_join":
		return models.TransactionTypeJoin
	case "answer_settlement":
		return models.TransactionTypePayment
	case "minutes_granted":
		if metadata["grant_type"] != "" {
			return metadata["grant_type"]
		}
		return models.TransactionTypeAdminAdd
	}
	if amount.IsNegative() {
		return models.TransactionTypePayment
	}
	return models.TransactionTypeAdminAdd
}

// getAccountMetadata fetches an account's metadata; missing accounts
// yield an empty map so callers can treat absent keys uniformly.
func (s *Service) getAccountMetadata(ctx context.Context, address string) map[string]string {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
	})
	if err != nil {
		if !isNotFoundError(err) {
			zap.L().Warn("Failed to get account metadata", zap.String("address", address), zap.Error(err))
		}
		return map[string]string{}
	}
	if resp.V2AccountResponse.Data.Metadata == nil {
		return map[string]string{}
	}
	return resp.V2AccountResponse.Data.Metadata
}

func accountToWallet(acct *shared.V2Account, groupId, userId string) *models.Wallet {
	received := decimal.Zero
	spent := decimal.Zero
	if vol, ok := acct.Volumes[minuteAsset]; ok {
		if vol.Input != nil {
			received = minutesFromSmallest(vol.Input)
		}
		if vol.Output != nil {
			spent = minutesFromSmallest(vol.Output)
		}
	}

	createdAt := time.Now()
	if t, err := time.Parse(time.RFC3339, acct.Metadata["joined_at"]); err == nil {
		createdAt = t
	}
	lastUpdate := createdAt
	if acct.UpdatedAt != nil {
		lastUpdate = *acct.UpdatedAt
	}

	return &models.Wallet{
		Id:            acct.Address,
		GroupId:       groupId,
		UserId:        userId,
		Balance:       received.Sub(spent),
		TotalReceived: received,
		TotalSpent:    spent,
		CreatedAt:     createdAt,
		LastUpdate:    lastUpdate,
	}
}

// minutesFromSmallest converts a smallest-unit ledger amount back to minutes.
func minutesFromSmallest(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -minutePrecision)
}

func ptrInt64(v int64) *int64 { return &v }
