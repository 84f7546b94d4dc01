package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

const accountColumns = `
	id, session_id, phone_number, country, warmup_stage, first_warmup_at, last_warmup_at,
	min_daily_activity, max_daily_activity, is_active, is_frozen, is_banned, is_deleted,
	llm_generation_disabled, unban_date, total_warmups, total_actions, joined_channels_count,
	created_at, updated_at`

// AccountRepository persists warmed accounts.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create registers a new session. Stage starts at 1 and the account is active.
func (r *AccountRepository) Create(ctx context.Context, req models.CreateAccountRequest, now time.Time) (*models.Account, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if err := models.ValidateActivityBounds(req.MinDailyActivity, req.MaxDailyActivity); err != nil {
		return nil, err
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (
			session_id, phone_number, country, warmup_stage, min_daily_activity, max_daily_activity,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $7)
		RETURNING id
	`, req.SessionID, req.PhoneNumber, req.Country, req.MinDailyActivity, req.MaxDailyActivity, true, utc(now)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetByID loads one account.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	return account, nil
}

// GetBySessionID loads one account by its gateway session handle.
func (r *AccountRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE session_id = $1`, sessionID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return account, nil
}

// List returns accounts ordered by id. Deleted accounts are excluded unless requested.
func (r *AccountRepository) List(ctx context.Context, includeDeleted bool) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeDeleted {
		query += ` WHERE is_deleted = $1`
	}
	query += ` ORDER BY id`

	var args []any
	if !includeDeleted {
		args = append(args, false)
	}
	return r.query(ctx, query, args...)
}

// ListSchedulable returns every active, non-deleted account. This is the
// only read path feeding the scheduler.
func (r *AccountRepository) ListSchedulable(ctx context.Context) ([]models.Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE is_active = $1 AND is_deleted = $2 ORDER BY id`, true, false)
}

func (r *AccountRepository) query(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// Update applies operator changes to flags and rate bounds. A deleted account
// stays deleted.
func (r *AccountRepository) Update(ctx context.Context, id int64, upd models.AccountUpdate, now time.Time) (*models.Account, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	minDaily, maxDaily := current.MinDailyActivity, current.MaxDailyActivity
	if upd.MinDailyActivity != nil {
		minDaily = *upd.MinDailyActivity
	}
	if upd.MaxDailyActivity != nil {
		maxDaily = *upd.MaxDailyActivity
	}
	if err := models.ValidateActivityBounds(minDaily, maxDaily); err != nil {
		return nil, err
	}
	if upd.IsDeleted != nil && !*upd.IsDeleted && current.IsDeleted {
		return nil, fmt.Errorf("account %d is deleted; deletion cannot be undone", id)
	}

	sets := []string{}
	args := []any{}
	argPos := 1
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	add("min_daily_activity", minDaily)
	add("max_daily_activity", maxDaily)
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if upd.IsFrozen != nil {
		add("is_frozen", *upd.IsFrozen)
	}
	if upd.IsDeleted != nil {
		add("is_deleted", *upd.IsDeleted)
	}
	if upd.LLMGenerationDisabled != nil {
		add("llm_generation_disabled", *upd.LLMGenerationDisabled)
	}

	banned := current.IsBanned
	if upd.IsBanned != nil {
		banned = *upd.IsBanned
		add("is_banned", banned)
	}
	switch {
	case upd.ClearUnbanDate || !banned:
		add("unban_date", nil)
	case upd.UnbanDate != nil:
		add("unban_date", upd.UnbanDate.UTC())
	}
	add("updated_at", utc(now))

	query := fmt.Sprintf("UPDATE accounts SET %s WHERE id = $%d", strings.Join(sets, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update account %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

// ApplyRunBookkeeping records a finished run. The stage only moves forward
// and counters only grow.
func (r *AccountRepository) ApplyRunBookkeeping(ctx context.Context, id int64, b models.RunBookkeeping) error {
	if b.Actions < 0 || b.JoinedChannels < 0 {
		return fmt.Errorf("negative counters in bookkeeping for account %d", id)
	}

	query := `
		UPDATE accounts SET
			last_warmup_at = $2,
			first_warmup_at = COALESCE(first_warmup_at, $2),
			warmup_stage = CASE WHEN warmup_stage < $3 THEN $3 ELSE warmup_stage END,
			total_warmups = total_warmups + 1,
			total_actions = total_actions + $4,
			joined_channels_count = joined_channels_count + $5,
			updated_at = $2`
	if b.Freeze {
		query += `, is_frozen = TRUE`
	}
	if b.ClearExpiredBan {
		// Only clears a ban whose date has passed at the time of the write.
		query += `,
			is_banned = CASE WHEN unban_date IS NOT NULL AND unban_date <= $2 THEN FALSE ELSE is_banned END,
			unban_date = CASE WHEN unban_date IS NOT NULL AND unban_date <= $2 THEN NULL ELSE unban_date END`
	}
	query += ` WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, utc(b.At), b.Stage, b.Actions, b.JoinedChannels)
	if err != nil {
		return fmt.Errorf("failed to apply bookkeeping for account %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// Freeze marks an account frozen outside of run bookkeeping.
func (r *AccountRepository) Freeze(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET is_frozen = $1, updated_at = $2 WHERE id = $3`, true, utc(now), id)
	if err != nil {
		return fmt.Errorf("failed to freeze account %d: %w", id, err)
	}
	return nil
}

// ApplySessionStatus mirrors the gateway's session state. Deletion is
// terminal, so a deleted row is never revived.
func (r *AccountRepository) ApplySessionStatus(ctx context.Context, id int64, status models.SessionStatus, now time.Time) error {
	var unban any
	if status.IsBanned {
		unban = nullableTime(status.UnbanDate)
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			is_frozen = $1,
			is_banned = $2,
			unban_date = $3,
			is_deleted = CASE WHEN is_deleted THEN is_deleted ELSE $4 END,
			updated_at = $5
		WHERE id = $6
	`, status.IsFrozen, status.IsBanned, unban, status.IsDeleted, utc(now), id)
	if err != nil {
		return fmt.Errorf("failed to apply session status for account %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var firstWarmup, lastWarmup, unban sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.PhoneNumber,
		&a.Country,
		&a.WarmupStage,
		&firstWarmup,
		&lastWarmup,
		&a.MinDailyActivity,
		&a.MaxDailyActivity,
		&a.IsActive,
		&a.IsFrozen,
		&a.IsBanned,
		&a.IsDeleted,
		&a.LLMGenerationDisabled,
		&unban,
		&a.TotalWarmups,
		&a.TotalActions,
		&a.JoinedChannelsCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.FirstWarmupAt = timePtr(firstWarmup)
	a.LastWarmupAt = timePtr(lastWarmup)
	a.UnbanDate = timePtr(unban)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
