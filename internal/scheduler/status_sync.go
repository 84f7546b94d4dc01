package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/gateway"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// SessionAccounts is the account access the status sync needs.
type SessionAccounts interface {
	List(ctx context.Context, includeDeleted bool) ([]models.Account, error)
	ApplySessionStatus(ctx context.Context, id int64, status models.SessionStatus, now time.Time) error
}

// SessionReader fetches the gateway's view of a session.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*gateway.SessionInfo, error)
}

// SyncResult reports one status sync pass.
type SyncResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// StatusSync mirrors gateway session flags onto accounts.
type StatusSync struct {
	accounts SessionAccounts
	sessions SessionReader
	logs     ActivityLogger
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewStatusSync creates a status sync loop. logs may be nil.
func NewStatusSync(accounts SessionAccounts, sessions SessionReader, logs ActivityLogger, clk clock.Clock, interval time.Duration, logger *slog.Logger) *StatusSync {
	return &StatusSync{
		accounts: accounts,
		sessions: sessions,
		logs:     logs,
		clock:    clk,
		interval: interval,
		logger:   logger.With("component", "status_sync"),
		stopChan: make(chan struct{}),
	}
}

// Start syncs immediately and then on every interval. It blocks.
func (s *StatusSync) Start(ctx context.Context) {
	s.logger.Info("starting session status sync", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sync(ctx)
	for {
		select {
		case <-ticker.C:
			s.Sync(ctx)
		case <-s.stopChan:
			s.logger.Info("session status sync stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop.
func (s *StatusSync) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Sync reads every non-deleted account's session and stores its flags. A
// gateway error for one account is logged and the pass continues.
func (s *StatusSync) Sync(ctx context.Context) SyncResult {
	var result SyncResult
	start := s.clock.Now()

	accounts, err := s.accounts.List(ctx, false)
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		return result
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		result.Checked++

		info, err := s.sessions.GetSession(ctx, account.SessionID)
		if err != nil {
			result.Errors++
			s.logger.Warn("failed to read session", "account_id", account.ID, "session_id", account.SessionID, "error", err)
			continue
		}

		status := models.SessionStatus{
			IsFrozen:  info.Frozen,
			IsBanned:  info.Spamblock,
			IsDeleted: info.Deleted,
			UnbanDate: info.UnbanDate,
		}
		if !changed(&account, status) {
			continue
		}
		if err := s.accounts.ApplySessionStatus(ctx, account.ID, status, s.clock.Now()); err != nil {
			result.Errors++
			s.logger.Error("failed to store session status", "account_id", account.ID, "error", err)
			continue
		}
		result.Updated++
		s.logger.Info("session status changed",
			"account_id", account.ID, "frozen", status.IsFrozen, "banned", status.IsBanned, "deleted", status.IsDeleted)
	}

	if s.logs != nil {
		count := result.Checked
		durationMs := int(s.clock.Now().Sub(start).Milliseconds())
		err := s.logs.Log(ctx, models.ActivityLog{
			Timestamp:    s.clock.Now(),
			ActivityType: models.ActivityTypeStatusSync,
			Message:      fmt.Sprintf("updated %d of %d accounts", result.Updated, result.Checked),
			Details:      map[string]any{"errors": result.Errors},
			AccountCount: &count,
			DurationMs:   &durationMs,
		})
		if err != nil {
			s.logger.Warn("failed to write status sync activity log", "error", err)
		}
	}
	return result
}

func changed(a *models.Account, st models.SessionStatus) bool {
	if a.IsFrozen != st.IsFrozen || a.IsBanned != st.IsBanned || (st.IsDeleted && !a.IsDeleted) {
		return true
	}
	if !st.IsBanned {
		return a.UnbanDate != nil
	}
	switch {
	case a.UnbanDate == nil && st.UnbanDate == nil:
		return false
	case a.UnbanDate == nil || st.UnbanDate == nil:
		return true
	default:
		return !a.UnbanDate.Equal(*st.UnbanDate)
	}
}
