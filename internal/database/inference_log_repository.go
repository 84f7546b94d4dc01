package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// InferenceLogRepository handles inference log database operations
type InferenceLogRepository struct {
	db *DB
}

// NewInferenceLogRepository creates a new repository
func NewInferenceLogRepository(db *DB) *InferenceLogRepository {
	return &InferenceLogRepository{db: db}
}

// Create logs a new inference call
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO inference_logs (
			provider, model, operation, account_id, tokens_used, input_tokens, output_tokens,
			cost_usd, latency_ms, status, error_message, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.Provider,
		log.Model,
		log.Operation,
		nullableInt64(log.AccountID),
		log.TokensUsed,
		log.InputTokens,
		log.OutputTokens,
		log.CostUSD,
		log.LatencyMs,
		log.Status,
		log.ErrorMessage,
		log.Metadata,
		utc(createdAt),
	)

	return err
}

// List retrieves inference logs with optional filtering
func (r *InferenceLogRepository) List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error) {
	sqlQuery := `
		SELECT id, provider, model, operation, account_id, tokens_used, input_tokens, output_tokens,
		       cost_usd, latency_ms, status, error_message, metadata, created_at
		FROM inference_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if query.Provider != "" {
		sqlQuery += fmt.Sprintf(" AND provider = $%d", argPos)
		args = append(args, query.Provider)
		argPos++
	}

	if query.Operation != "" {
		sqlQuery += fmt.Sprintf(" AND operation = $%d", argPos)
		args = append(args, query.Operation)
		argPos++
	}

	if query.Status != "" {
		sqlQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, query.Status)
		argPos++
	}

	if query.AccountID != nil {
		sqlQuery += fmt.Sprintf(" AND account_id = $%d", argPos)
		args = append(args, *query.AccountID)
		argPos++
	}

	if query.Since != nil {
		sqlQuery += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, query.Since.UTC())
		argPos++
	}

	sqlQuery += " ORDER BY created_at DESC"

	limit := query.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	sqlQuery += fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference logs: %w", err)
	}
	defer rows.Close()

	logs := []models.InferenceLog{}
	for rows.Next() {
		var log models.InferenceLog
		var accountID sql.NullInt64
		var metadata sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&accountID,
			&log.TokensUsed,
			&log.InputTokens,
			&log.OutputTokens,
			&log.CostUSD,
			&log.LatencyMs,
			&log.Status,
			&log.ErrorMessage,
			&metadata,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", err)
		}

		if accountID.Valid {
			id := accountID.Int64
			log.AccountID = &id
		}
		if metadata.Valid {
			log.Metadata = metadata.String
		}
		log.CreatedAt = log.CreatedAt.UTC()

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// GetStats retrieves aggregated statistics since the given time (all time when nil).
func (r *InferenceLogRepository) GetStats(ctx context.Context, since *time.Time) (*models.InferenceLogStats, error) {
	query := `
		SELECT
			COUNT(*) as total_calls,
			COALESCE(SUM(tokens_used), 0) as total_tokens,
			COALESCE(SUM(cost_usd), 0) as total_cost_usd,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as successful_calls,
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0) as failed_calls,
			COALESCE(AVG(latency_ms), 0) as avg_latency_ms
		FROM inference_logs
	`
	args := []interface{}{}

	if since != nil {
		query += " WHERE created_at >= $1"
		args = append(args, since.UTC())
	}

	var stats models.InferenceLogStats
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalCalls,
		&stats.TotalTokens,
		&stats.TotalCostUSD,
		&stats.SuccessfulCalls,
		&stats.FailedCalls,
		&stats.AvgLatencyMs,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get inference stats: %w", err)
	}

	return &stats, nil
}
