package database

import (
	"context"
	"database/sql"
	"fmt"

	"fair-evaluation-go/internal/models"
	"fair-evaluation-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetAnswerMetrics returns the funding state of one answer.
func (s *Service) GetAnswerMetrics(ctx context.Context, answerId string) (*models.AnswerMetrics, error) {
	m, err := scanAnswerMetrics(s.db.QueryRowContext(ctx, queryGetAnswerMetrics, answerId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrAnswerNotFound, answerId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get answer metrics: %w", err)
	}
	return m, nil
}

// GetOpenAnswers returns every non-accepted answer in a group. These are
// the answers the recalculation cascade re-runs after a wallet change.
func (s *Service) GetOpenAnswers(ctx context.Context, groupId string) ([]models.AnswerMetrics, error) {
	rows, err := s.db.QueryContext(ctx, queryGetOpenAnswers, groupId)
	if err != nil {
		return nil, fmt.Errorf("failed to get open answers: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var answers []models.AnswerMetrics
	for rows.Next() {
		m, err := scanAnswerMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer metrics: %w", err)
		}
		answers = append(answers, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer rows: %w", err)
	}
	return answers, nil
}

// SaveAnswerMetrics writes recomputed metrics for a non-accepted answer.
// Accepted answers are frozen; the upsert leaves them untouched.
func (s *Service) SaveAnswerMetrics(ctx context.Context, m models.AnswerMetrics) error {
	_, err := s.db.ExecContext(ctx, querySaveAnswerMetrics,
		m.AnswerId, m.GroupId, m.ParentId, m.AnswerCost.String(),
		m.WeightedSupporters.String(), m.TotalContribution.String(),
		m.DistanceToGoal.String(), m.DistancePerSupporter.String())
	if err != nil {
		return fmt.Errorf("failed to save answer metrics: %w", err)
	}
	return nil
}

// MarkAccepted freezes an answer's metrics. Idempotent: marking an answer
// that is already accepted changes nothing. SettleAnswer normally performs
// the freeze itself; this completes the saga for ledger backends that
// cannot.
func (s *Service) MarkAccepted(ctx context.Context, answerId, adminId string, m models.AnswerMetrics) error {
	_, err := s.db.ExecContext(ctx, queryMarkAccepted,
		m.WeightedSupporters.String(), m.TotalContribution.String(),
		m.DistanceToGoal.String(), m.DistancePerSupporter.String(),
		adminId, answerId)
	if err != nil {
		return fmt.Errorf("failed to mark answer accepted: %w", err)
	}
	return nil
}

// SetAnswerCost sets the funding goal for an answer, creating the metrics
// row if needed. The cost of an accepted answer is frozen.
func (s *Service) SetAnswerCost(ctx context.Context, answerId, groupId, parentId string, cost decimal.Decimal) error {
	existing, err := s.GetAnswerMetrics(ctx, answerId)
	if err == nil && existing.IsAccepted {
		return fmt.Errorf("%w: answer %s cost is frozen", store.ErrDuplicateTransaction, answerId)
	}

	_, err = s.db.ExecContext(ctx, querySetAnswerCost, answerId, groupId, parentId, cost.String())
	if err != nil {
		return fmt.Errorf("failed to set answer cost: %w", err)
	}

	zap.L().Info("Answer cost set",
		zap.String("answer_id", answerId),
		zap.String("group_id", groupId),
		zap.String("cost", cost.String()))
	return nil
}

// GetGroupSettings returns the economy configuration for a group, or a
// disabled default when the group has never been configured.
func (s *Service) GetGroupSettings(ctx context.Context, groupId string) (*models.GroupSettings, error) {
	var settings models.GroupSettings
	var enabled int
	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetGroupSettings, groupId).
		Scan(&settings.GroupId, &enabled, &balanceStr, &settings.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.GroupSettings{GroupId: groupId, InitialBalance: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group settings: %w", err)
	}
	settings.FairEvaluationEnabled = enabled != 0
	if settings.InitialBalance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse initial balance '%s': %w", balanceStr, err)
	}
	return &settings, nil
}

// SaveGroupSettings creates or updates a group's economy configuration.
func (s *Service) SaveGroupSettings(ctx context.Context, settings models.GroupSettings) error {
	if settings.GroupId == "" {
		return fmt.Errorf("groupId is required")
	}
	enabled := 0
	if settings.FairEvaluationEnabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, queryUpsertGroupSettings,
		settings.GroupId, enabled, settings.InitialBalance.String())
	if err != nil {
		return fmt.Errorf("failed to save group settings: %w", err)
	}
	return nil
}

func scanAnswerMetrics(r row) (*models.AnswerMetrics, error) {
	var m models.AnswerMetrics
	var costStr, supportersStr, contributionStr, distanceStr, perSupporterStr string
	var accepted int
	var acceptedAt sql.NullTime
	var acceptedBy sql.NullString
	err := r.Scan(&m.AnswerId, &m.GroupId, &m.ParentId, &costStr, &supportersStr,
		&contributionStr, &distanceStr, &perSupporterStr,
		&accepted, &acceptedAt, &acceptedBy, &m.LastCalculation)
	if err != nil {
		return nil, err
	}

	if m.AnswerCost, err = decimal.NewFromString(costStr); err != nil {
		return nil, fmt.Errorf("failed to parse answer_cost '%s': %w", costStr, err)
	}
	if m.WeightedSupporters, err = decimal.NewFromString(supportersStr); err != nil {
		return nil, fmt.Errorf("failed to parse weighted_supporters '%s': %w", supportersStr, err)
	}
	if m.TotalContribution, err = decimal.NewFromString(contributionStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_contribution '%s': %w", contributionStr, err)
	}
	if m.DistanceToGoal, err = decimal.NewFromString(distanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse distance_to_goal '%s': %w", distanceStr, err)
	}
	if m.DistancePerSupporter, err = decimal.NewFromString(perSupporterStr); err != nil {
		return nil, fmt.Errorf("failed to parse distance_per_supporter '%s': %w", perSupporterStr, err)
	}
	m.IsAccepted = accepted != 0
	if acceptedAt.Valid {
		m.AcceptedAt = acceptedAt.Time
	}
	m.AcceptedBy = acceptedBy.String
	return &m, nil
}
