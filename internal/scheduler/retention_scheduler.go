package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// Pruner deletes rows strictly older than a cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepResult reports one retention pass.
type SweepResult struct {
	Cutoff          time.Time `json:"cutoff"`
	HistoryDeleted  int64     `json:"history_deleted"`
	ActivityDeleted int64     `json:"activity_deleted"`
}

// RetentionScheduler prunes the action ledger and activity log on its own
// schedule, independent of warmup ticks.
type RetentionScheduler struct {
	history  Pruner
	activity Pruner
	logs     ActivityLogger
	clock    clock.Clock
	horizon  time.Duration
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRetentionScheduler creates a retention sweeper keeping retentionDays of
// data. activity and logs may be nil.
func NewRetentionScheduler(history, activity Pruner, logs ActivityLogger, clk clock.Clock, retentionDays int, interval time.Duration, logger *slog.Logger) *RetentionScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionScheduler{
		history:  history,
		activity: activity,
		logs:     logs,
		clock:    clk,
		horizon:  time.Duration(retentionDays) * 24 * time.Hour,
		interval: interval,
		logger:   logger.With("component", "retention"),
		stopChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval until Stop or
// ctx cancellation. It blocks.
func (s *RetentionScheduler) Start(ctx context.Context) {
	s.logger.Info("starting retention scheduler", "interval", s.interval, "horizon", s.horizon)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweepAndLog(ctx)
		case <-s.stopChan:
			s.logger.Info("retention scheduler stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop.
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *RetentionScheduler) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("retention sweep failed", "error", err)
	}
}

// Sweep deletes history and activity rows older than the horizon.
func (s *RetentionScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	start := s.clock.Now()
	result := SweepResult{Cutoff: start.Add(-s.horizon)}

	deleted, err := s.history.DeleteOlderThan(ctx, result.Cutoff)
	if err != nil {
		return result, fmt.Errorf("prune history: %w", err)
	}
	result.HistoryDeleted = deleted

	if s.activity != nil {
		deleted, err := s.activity.DeleteOlderThan(ctx, result.Cutoff)
		if err != nil {
			return result, fmt.Errorf("prune activity logs: %w", err)
		}
		result.ActivityDeleted = deleted
	}

	s.logger.Info("retention sweep completed",
		"cutoff", result.Cutoff, "history_deleted", result.HistoryDeleted, "activity_deleted", result.ActivityDeleted)

	if s.logs != nil {
		durationMs := int(s.clock.Now().Sub(start).Milliseconds())
		err := s.logs.Log(ctx, models.ActivityLog{
			Timestamp:    s.clock.Now(),
			ActivityType: models.ActivityTypeRetention,
			Message:      fmt.Sprintf("deleted %d history entries older than %s", result.HistoryDeleted, result.Cutoff.Format(time.RFC3339)),
			Details: map[string]any{
				"history_deleted":  result.HistoryDeleted,
				"activity_deleted": result.ActivityDeleted,
			},
			DurationMs: &durationMs,
		})
		if err != nil {
			s.logger.Warn("failed to write retention activity log", "error", err)
		}
	}
	return result, nil
}
