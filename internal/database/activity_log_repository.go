package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// ActivityLogRepository handles activity log storage and retrieval.
type ActivityLogRepository struct {
	db *DB
}

// NewActivityLogRepository creates a new activity log repository.
func NewActivityLogRepository(db *DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Log stores a new activity log entry.
func (r *ActivityLogRepository) Log(ctx context.Context, log models.ActivityLog) error {
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	var details any
	if log.Details != nil {
		detailsJSON, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
		details = string(detailsJSON)
	}

	query := `
		INSERT INTO activity_logs (timestamp, activity_type, account_id, message, details, account_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		utc(log.Timestamp),
		string(log.ActivityType),
		nullableInt64(log.AccountID),
		log.Message,
		details,
		log.AccountCount,
		log.DurationMs,
	)

	return err
}

// List retrieves activity logs with optional filtering.
func (r *ActivityLogRepository) List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, timestamp, activity_type, account_id, message, details, account_count, duration_ms
		FROM activity_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if filter.ActivityType != "" {
		query += fmt.Sprintf(" AND activity_type = $%d", argPos)
		args = append(args, string(filter.ActivityType))
		argPos++
	}

	if filter.AccountID != nil {
		query += fmt.Sprintf(" AND account_id = $%d", argPos)
		args = append(args, *filter.AccountID)
		argPos++
	}

	query += " ORDER BY timestamp DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.ActivityLog{}
	for rows.Next() {
		var log models.ActivityLog
		var activityType string
		var accountID sql.NullInt64
		var details sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.Timestamp,
			&activityType,
			&accountID,
			&log.Message,
			&details,
			&log.AccountCount,
			&log.DurationMs,
		)
		if err != nil {
			return nil, err
		}

		log.ActivityType = models.ActivityType(activityType)
		log.Timestamp = log.Timestamp.UTC()
		if accountID.Valid {
			id := accountID.Int64
			log.AccountID = &id
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &log.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// DeleteOlderThan deletes activity logs older than the cutoff.
func (r *ActivityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM activity_logs WHERE timestamp < $1`, utc(cutoff))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
