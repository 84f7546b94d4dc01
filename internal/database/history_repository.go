package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// HistoryRepository is the append-only action ledger. Rows are only ever
// inserted, and removed solely by DeleteOlderThan.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append writes one completed action and returns its id.
func (r *HistoryRepository) Append(ctx context.Context, entry models.HistoryEntry) (int64, error) {
	params := entry.ActionParams
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal action params: %w", err)
	}

	var runID any
	if entry.RunID != "" {
		runID = entry.RunID
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO action_history (account_id, run_id, action_type, action_params, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, entry.AccountID, runID, string(entry.ActionType), string(paramsJSON), utc(entry.Timestamp)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append history entry: %w", err)
	}
	return id, nil
}

// Recent returns the newest limit entries for an account, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, accountID int64, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx, `
		SELECT id, account_id, run_id, action_type, action_params, timestamp
		FROM action_history
		WHERE account_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, accountID, limit)
}

// ListSince returns all entries at or after since, newest first.
func (r *HistoryRepository) ListSince(ctx context.Context, accountID int64, since time.Time) ([]models.HistoryEntry, error) {
	return r.list(ctx, `
		SELECT id, account_id, run_id, action_type, action_params, timestamp
		FROM action_history
		WHERE account_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC, id DESC
	`, accountID, utc(since))
}

// Count returns the number of retained entries for an account.
func (r *HistoryRepository) Count(ctx context.Context, accountID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_history WHERE account_id = $1`, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// CountByRun returns the number of entries written by one run.
func (r *HistoryRepository) CountByRun(ctx context.Context, runID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_history WHERE run_id = $1`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count run history: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes entries strictly older than cutoff across all
// accounts. Rows at or after cutoff are never touched.
func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM action_history WHERE timestamp < $1`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}
	return result.RowsAffected()
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...any) ([]models.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		var runID sql.NullString
		var actionType, params string
		if err := rows.Scan(&e.ID, &e.AccountID, &runID, &actionType, &params, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.RunID = runID.String
		e.ActionType = models.ActionType(actionType)
		e.Timestamp = e.Timestamp.UTC()
		if params != "" {
			if err := json.Unmarshal([]byte(params), &e.ActionParams); err != nil {
				return nil, fmt.Errorf("failed to decode action params: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
