package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fair-evaluation-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UpsertEvaluation creates or replaces a user's evaluation of an answer.
func (s *Service) UpsertEvaluation(ctx context.Context, eval models.Evaluation) error {
	if eval.AnswerId == "" || eval.UserId == "" || eval.GroupId == "" {
		return fmt.Errorf("answerId, userId, and groupId are required")
	}

	_, err := s.db.ExecContext(ctx, queryUpsertEvaluation,
		eval.AnswerId, eval.UserId, eval.GroupId, eval.ParentId, eval.Value.String())
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation: %w", err)
	}

	zap.L().Debug("Evaluation saved",
		zap.String("answer_id", eval.AnswerId),
		zap.String("user_id", eval.UserId),
		zap.String("value", eval.Value.String()))
	return nil
}

// DeleteEvaluation removes a user's evaluation of an answer. Deleting an
// evaluation that does not exist is a no-op.
func (s *Service) DeleteEvaluation(ctx context.Context, answerId, userId string) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteEvaluation, answerId, userId); err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}
	return nil
}

// GetAnswerEvaluations returns every evaluation recorded for an answer.
func (s *Service) GetAnswerEvaluations(ctx context.Context, answerId string) ([]models.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAnswerEvaluations, answerId)
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluations: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanEvaluations(rows)
}

// GetEvaluationsUpdatedSince returns evaluations written after the given
// time, oldest first. The evaluation listener sweeps with this.
func (s *Service) GetEvaluationsUpdatedSince(ctx context.Context, since time.Time) ([]models.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, queryGetEvaluationsUpdatedSince, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent evaluations: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	return scanEvaluations(rows)
}

func scanEvaluations(rows *sql.Rows) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	for rows.Next() {
		var eval models.Evaluation
		var valueStr string
		err := rows.Scan(&eval.AnswerId, &eval.UserId, &eval.GroupId, &eval.ParentId, &valueStr, &eval.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		if eval.Value, err = decimal.NewFromString(valueStr); err != nil {
			return nil, fmt.Errorf("failed to parse evaluation value '%s': %w", valueStr, err)
		}
		evaluations = append(evaluations, eval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluation rows: %w", err)
	}
	return evaluations, nil
}
