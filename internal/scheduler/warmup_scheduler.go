package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/models"
	"github.com/tgwarmup/tgwarmup/internal/warmup"
)

// ErrAlreadyRunning is returned by Start when the loop is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// AccountLister returns the accounts the scheduler may consider.
type AccountLister interface {
	ListSchedulable(ctx context.Context) ([]models.Account, error)
}

// Runner executes one scheduled warmup.
type Runner interface {
	RunScheduled(ctx context.Context, account *models.Account) (*warmup.RunSummary, error)
}

// ActivityLogger records scheduler activity.
type ActivityLogger interface {
	Log(ctx context.Context, log models.ActivityLog) error
}

// InFlightCounter reports how many runs are in progress.
type InFlightCounter interface {
	Count() int
}

// TickObserver receives the outcome of every tick.
type TickObserver interface {
	ObserveTick(result TickResult)
}

// WarmupOptions configures a WarmupScheduler.
type WarmupOptions struct {
	Interval    time.Duration
	Concurrency int
	DueFactor   float64
}

// TickResult summarises one pass over the accounts.
type TickResult struct {
	Considered int           `json:"considered"`
	Due        int           `json:"due"`
	Succeeded  int           `json:"succeeded"`
	Skipped    int           `json:"skipped"`
	Busy       int           `json:"busy"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Status is the externally visible scheduler state.
type Status struct {
	Running           bool       `json:"running"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	LastTickAt        *time.Time `json:"last_tick_at,omitempty"`
	NextTickAt        *time.Time `json:"next_tick_at,omitempty"`
	Interval          string     `json:"interval"`
	AccountsScheduled int        `json:"accounts_scheduled"`
	InFlight          int        `json:"in_flight"`
}

// WarmupScheduler periodically warms every due account. Its state is owned
// by the instance; Start and Stop may be called repeatedly.
type WarmupScheduler struct {
	accounts AccountLister
	runner   Runner
	activity ActivityLogger
	inflight InFlightCounter
	observer TickObserver
	clock    clock.Clock
	random   warmup.Random
	opts     WarmupOptions
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  *time.Time
	lastTickAt *time.Time
	nextTickAt *time.Time
	scheduled  int
}

// NewWarmupScheduler creates a stopped scheduler. activity and observer may be nil.
func NewWarmupScheduler(
	accounts AccountLister,
	runner Runner,
	activity ActivityLogger,
	inflight InFlightCounter,
	observer TickObserver,
	clk clock.Clock,
	random warmup.Random,
	opts WarmupOptions,
	logger *slog.Logger,
) *WarmupScheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.DueFactor <= 0 {
		opts.DueFactor = 0.8
	}
	return &WarmupScheduler{
		accounts: accounts,
		runner:   runner,
		activity: activity,
		inflight: inflight,
		observer: observer,
		clock:    clk,
		random:   random,
		opts:     opts,
		logger:   logger.With("component", "warmup_scheduler"),
	}
}

// Start launches the loop in the background. The first tick runs at once.
func (s *WarmupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	now := s.clock.Now()
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startedAt = &now

	s.logger.Info("starting warmup scheduler", "interval", s.opts.Interval, "concurrency", s.opts.Concurrency)
	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for the current tick to finish. In-flight
// runs stop after their current action.
func (s *WarmupScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Status returns a snapshot of the scheduler state.
func (s *WarmupScheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:           s.running,
		StartedAt:         s.startedAt,
		LastTickAt:        s.lastTickAt,
		Interval:          s.opts.Interval.String(),
		AccountsScheduled: s.scheduled,
	}
	if s.running {
		st.NextTickAt = s.nextTickAt
	}
	if s.inflight != nil {
		st.InFlight = s.inflight.Count()
	}
	return st
}

func (s *WarmupScheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.nextTickAt = nil
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("warmup scheduler stopped")
			return
		}
	}
}

// Tick makes one pass: every due, eligible account is warmed, at most
// Concurrency at a time. A failure or panic for one account never stops the
// others.
func (s *WarmupScheduler) Tick(ctx context.Context) TickResult {
	start := s.clock.Now()
	var result TickResult

	accounts, err := s.accounts.ListSchedulable(ctx)
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		s.finishTick(ctx, start, &result, err)
		return result
	}
	result.Considered = len(accounts)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.opts.Concurrency)
	)
	for i := range accounts {
		account := &accounts[i]
		if !warmup.IsDue(account, start, s.random, s.opts.DueFactor) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		result.Due++

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := s.warmOne(ctx, account)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSucceeded:
				result.Succeeded++
			case outcomeSkipped:
				result.Skipped++
			case outcomeBusy:
				result.Busy++
			default:
				result.Failed++
			}
		}()
	}
	wg.Wait()

	s.finishTick(ctx, start, &result, nil)
	return result
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSucceeded
	outcomeSkipped
	outcomeBusy
)

func (s *WarmupScheduler) warmOne(ctx context.Context, account *models.Account) (out outcome) {
	log := s.logger.With("account_id", account.ID, "session_id", account.SessionID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during scheduled warmup", "panic", fmt.Sprint(r))
			out = outcomeFailed
		}
	}()

	summary, err := s.runner.RunScheduled(ctx, account)
	var skipErr *warmup.SkipError
	switch {
	case err == nil:
		log.Info("scheduled warmup completed", "run_id", summary.RunID, "successful", summary.Successful, "failed", summary.Failed)
		return outcomeSucceeded
	case errors.As(err, &skipErr):
		log.Warn("account skipped", "code", skipErr.Reason.Code, "reason", skipErr.Reason.Message)
		return outcomeSkipped
	case errors.Is(err, warmup.ErrRunInProgress):
		log.Info("warmup already in flight, skipping this tick")
		return outcomeBusy
	default:
		log.Error("scheduled warmup failed", "error", err)
		return outcomeFailed
	}
}

func (s *WarmupScheduler) finishTick(ctx context.Context, start time.Time, result *TickResult, tickErr error) {
	end := s.clock.Now()
	result.Duration = end.Sub(start)
	next := end.Add(s.opts.Interval)

	s.mu.Lock()
	s.lastTickAt = &end
	s.nextTickAt = &next
	s.scheduled = result.Due
	s.mu.Unlock()

	s.logger.Info("scheduler tick completed",
		"considered", result.Considered, "due", result.Due, "succeeded", result.Succeeded,
		"skipped", result.Skipped, "busy", result.Busy, "failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds())

	if s.observer != nil {
		s.observer.ObserveTick(*result)
	}
	if s.activity == nil {
		return
	}

	count := result.Due
	durationMs := int(result.Duration.Milliseconds())
	entry := models.ActivityLog{
		Timestamp:    end,
		ActivityType: models.ActivityTypeSchedulerTick,
		Message:      fmt.Sprintf("warmed %d of %d due accounts", result.Succeeded, result.Due),
		Details: map[string]any{
			"considered": result.Considered,
			"succeeded":  result.Succeeded,
			"skipped":    result.Skipped,
			"busy":       result.Busy,
			"failed":     result.Failed,
		},
		AccountCount: &count,
		DurationMs:   &durationMs,
	}
	if tickErr != nil {
		entry.Message = "tick aborted: " + tickErr.Error()
	}
	if err := s.activity.Log(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to write tick activity log", "error", err)
	}
}
