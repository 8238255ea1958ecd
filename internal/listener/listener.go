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

package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fair-evaluation-go/internal/economy"
	"fair-evaluation-go/internal/store"

	"go.uber.org/zap"
)

// EvaluationListenerConfig contains configuration for EvaluationListener.
type EvaluationListenerConfig struct {
	DbService       store.EconomyStore
	Recalculator    *economy.Recalculator
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// EvaluationListener polls the evaluation table for recent writes and
// drives the metrics recalculation cascade. It backs deployments where
// evaluations are written by another process (or imported in bulk) and no
// in-process trigger fires.
type EvaluationListener struct {
	dbService store.EconomyStore
	recalc    *economy.Recalculator

	// State management for processed evaluation versions
	processed       map[string]time.Time
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	lastPoll time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewEvaluationListener creates a new evaluation listener.
func NewEvaluationListener(cfg EvaluationListenerConfig) *EvaluationListener {
	return &EvaluationListener{
		dbService:       cfg.DbService,
		recalc:          cfg.Recalculator,
		processed:       make(map[string]time.Time),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins the evaluation monitoring process. The first sweep covers
// the full lookback window so changes written while the daemon was down
// are picked up.
func (l *EvaluationListener) Start(ctx context.Context) error {
	zap.L().Info("Starting evaluation listener")

	if err := l.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go l.pollLoop(ctx)
	go l.cleanupLoop(ctx)

	zap.L().Info("Evaluation listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("lookback_window", l.lookbackWindow))

	return nil
}

// Stop gracefully stops the evaluation listener.
func (l *EvaluationListener) Stop() {
	zap.L().Info("Stopping evaluation listener")
	close(l.stopChan)
	<-l.doneChan
	zap.L().Info("Evaluation listener stopped")
}

// performStartupRecovery recalculates every answer touched during the
// lookback window. Recalculation is idempotent, so re-processing answers
// that were already current is harmless.
func (l *EvaluationListener) performStartupRecovery(ctx context.Context) error {
	recoveryStart := time.Now().UTC().Add(-l.lookbackWindow)

	zap.L().Info("Recovery window calculated",
		zap.Time("recovery_start", recoveryStart),
		zap.Duration("lookback_window", l.lookbackWindow))

	recovered, err := l.sweep(ctx, recoveryStart)
	if err != nil {
		return err
	}

	zap.L().Info("Startup recovery completed successfully",
		zap.Int("answers_recalculated", recovered))
	return nil
}

// pollLoop runs the main polling loop.
func (l *EvaluationListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	l.poll(ctx)

	for {
		select {
		case <-ticker.C:
			l.poll(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *EvaluationListener) poll(ctx context.Context) {
	// Overlap consecutive windows by one polling interval so an
	// evaluation committed just after the previous read is never missed;
	// the processed map absorbs the overlap.
	since := l.lastPoll.Add(-l.pollingInterval)
	if l.lastPoll.IsZero() {
		since = time.Now().UTC().Add(-l.lookbackWindow)
	}
	l.lastPoll = time.Now().UTC()

	if _, err := l.sweep(ctx, since); err != nil {
		zap.L().Error("Evaluation poll failed", zap.Error(err))
	}
}

// sweep fetches evaluations updated since the cutoff and recalculates
// each affected answer once.
func (l *EvaluationListener) sweep(ctx context.Context, since time.Time) (int, error) {
	evaluations, err := l.dbService.GetEvaluationsUpdatedSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch updated evaluations: %w", err)
	}

	answers := make(map[string]time.Time)
	for _, eval := range evaluations {
		if current, ok := answers[eval.AnswerId]; !ok || eval.UpdatedAt.After(current) {
			answers[eval.AnswerId] = eval.UpdatedAt
		}
	}

	recalculated := 0
	for answerId, updatedAt := range answers {
		if l.isProcessed(answerId, updatedAt) {
			continue
		}
		l.recalc.OnEvaluationChange(ctx, answerId)
		l.markProcessed(answerId, updatedAt)
		recalculated++
	}

	if recalculated > 0 {
		zap.L().Debug("Evaluation sweep recalculated answers",
			zap.Int("answers", recalculated),
			zap.Time("since", since))
	}
	return recalculated, nil
}

// isProcessed reports whether this answer was already recalculated for a
// write at or after the given timestamp.
func (l *EvaluationListener) isProcessed(answerId string, updatedAt time.Time) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	seen, exists := l.processed[answerId]
	return exists && !seen.Before(updatedAt)
}

func (l *EvaluationListener) markProcessed(answerId string, updatedAt time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.processed[answerId] = updatedAt
}

// cleanupLoop periodically evicts answer entries older than the lookback
// window from the processed map.
func (l *EvaluationListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupProcessed()
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *EvaluationListener) cleanupProcessed() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := time.Now().UTC().Add(-l.lookbackWindow)
	cleaned := 0

	for answerId, seen := range l.processed {
		if seen.Before(cutoff) {
			delete(l.processed, answerId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up processed evaluation entries",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(l.processed)))
	}
}
