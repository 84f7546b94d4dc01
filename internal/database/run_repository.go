package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

const runColumns = `
	id, account_id, stage, trigger_source, status, used_fallback, planned_actions,
	completed_actions, failed_actions, skipped_actions, plan, summary, error, started_at, completed_at`

// RunRepository stores one record per warmup run.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run in its initial state.
func (r *RunRepository) Create(ctx context.Context, run models.WarmupRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO warmup_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, run.ID, run.AccountID, run.Stage, string(run.Trigger), string(run.Status), run.UsedFallback,
		run.PlannedActions, run.CompletedActions, run.FailedActions, run.SkippedActions,
		jsonText(run.Plan, "[]"), jsonText(run.Summary, "{}"), run.Error, utc(run.StartedAt), nullableTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert warmup run: %w", err)
	}
	return nil
}

// Complete stores the final state of a run.
func (r *RunRepository) Complete(ctx context.Context, run models.WarmupRun) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE warmup_runs SET
			status = $2, used_fallback = $3, planned_actions = $4, completed_actions = $5,
			failed_actions = $6, skipped_actions = $7, plan = $8, summary = $9, error = $10,
			completed_at = $11
		WHERE id = $1
	`, run.ID, string(run.Status), run.UsedFallback, run.PlannedActions, run.CompletedActions,
		run.FailedActions, run.SkippedActions, jsonText(run.Plan, "[]"), jsonText(run.Summary, "{}"),
		run.Error, nullableTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to complete warmup run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads one run.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.WarmupRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM warmup_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}

// ListByAccount returns the newest runs for an account.
func (r *RunRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.WarmupRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM warmup_runs
		WHERE account_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.WarmupRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*models.WarmupRun, error) {
	var run models.WarmupRun
	var trigger, status, plan, summary string
	var completed sql.NullTime
	err := row.Scan(
		&run.ID, &run.AccountID, &run.Stage, &trigger, &status, &run.UsedFallback,
		&run.PlannedActions, &run.CompletedActions, &run.FailedActions, &run.SkippedActions,
		&plan, &summary, &run.Error, &run.StartedAt, &completed,
	)
	if err != nil {
		return nil, err
	}
	run.Trigger = models.RunTrigger(trigger)
	run.Status = models.RunStatus(status)
	run.Plan = []byte(plan)
	run.Summary = []byte(summary)
	run.StartedAt = run.StartedAt.UTC()
	run.CompletedAt = timePtr(completed)
	return &run, nil
}

func jsonText(raw []byte, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}
