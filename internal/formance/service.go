package formance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.WalletLedger.
var _ store.WalletLedger = (*Service)(nil)

// Minutes are tracked with 4 decimal places in Formance UMN notation.
const (
	minuteAsset     = "MIN/4"
	minutePrecision = 4
)

// Service implements store.WalletLedger backed by a Formance Stack ledger.
// Wallets live at groups:{groupId}:users:{userId}; group credits flow from
// groups:{groupId}:treasury and settlements into
// groups:{groupId}:answers:{answerId}. The metrics store stays in SQLite;
// the settlement saga completes the answer freeze there.
type Service struct {
	client *v3.Formance
	ledger string
}

// NewService creates a Formance-backed wallet ledger. It connects to the
// stack and creates the ledger if it doesn't already exist.
func NewService(ctx context.Context, cfg models.LedgerConfig) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "fair-evaluation"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client, ledger: cfg.LedgerName}
	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance wallet ledger initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "fair-evaluation",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// ---------- helpers ----------

func walletAccount(groupId, userId string) string {
	return fmt.Sprintf("groups:%s:users:%s", accountSegment(groupId), accountSegment(userId))
}

func treasuryAccount(groupId string) string {
	return fmt.Sprintf("groups:%s:treasury", accountSegment(groupId))
}

func answerAccount(groupId, answerId string) string {
	return fmt.Sprintf("groups:%s:answers:%s", accountSegment(groupId), accountSegment(answerId))
}

// accountSegment keeps ids within Formance's account address charset.
func accountSegment(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}

// minuteAmount renders a decimal minute value in smallest units.
func minuteAmount(d decimal.Decimal) string {
	return d.Shift(minutePrecision).BigInt().String()
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

// isInsufficientFundError checks whether the ledger rejected a posting for
// lack of funds (a supporter wallet came up short mid-settlement).
func isInsufficientFundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumInsufficientFund
}

func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

// Close is a no-op for the Formance backend (HTTP client needs no teardown).
func (s *Service) Close() {}
