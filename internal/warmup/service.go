package warmup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/config"
	"github.com/tgwarmup/tgwarmup/internal/database"
	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

var (
	// ErrRunInProgress is returned when the account already has a run in flight.
	ErrRunInProgress = errors.New("warmup already running for account")
	// ErrAccountNotFound is returned for an unknown account id.
	ErrAccountNotFound = errors.New("account not found")
)

// relevantChatScore is the minimum relevance a discovered chat needs to be
// offered to the planner.
const relevantChatScore = 0.5

// AccountStore is the account persistence the service needs.
type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	ApplyRunBookkeeping(ctx context.Context, id int64, b models.RunBookkeeping) error
}

// PersonaSource returns an account's persona, creating it on first use.
type PersonaSource interface {
	Ensure(ctx context.Context, account *models.Account, now time.Time) (*models.Persona, error)
}

// ChatStore reads discovered chats.
type ChatStore interface {
	ListByAccount(ctx context.Context, accountID int64, minRelevance float64) ([]models.DiscoveredChat, error)
	CountRelevant(ctx context.Context, accountID int64, minRelevance float64) (int, error)
}

// ChatDiscoverer finds new chats for a persona.
type ChatDiscoverer interface {
	Discover(ctx context.Context, persona *models.Persona, limit int, now time.Time) (int, error)
}

// HistoryStore is the action ledger.
type HistoryStore interface {
	HistoryWriter
	Recent(ctx context.Context, accountID int64, limit int) ([]models.HistoryEntry, error)
	ListSince(ctx context.Context, accountID int64, since time.Time) ([]models.HistoryEntry, error)
	Count(ctx context.Context, accountID int64) (int, error)
}

// RunStore persists run records.
type RunStore interface {
	Create(ctx context.Context, run models.WarmupRun) error
	Complete(ctx context.Context, run models.WarmupRun) error
}

// ActivityLogger records notable background events.
type ActivityLogger interface {
	Log(ctx context.Context, log models.ActivityLog) error
}

// Observer receives run outcomes, typically for metrics.
type Observer interface {
	ObserveRun(summary RunSummary, trigger models.RunTrigger)
	ObserveSkip(code SkipCode)
}

// Settings are the tunables of the pipeline.
type Settings struct {
	MaxStage         int
	HistoryWindow    int
	MinRelevantChats int
	DiscoveryLimit   int
	Limits           Limits
	Timing           Timing
}

// SettingsFromConfig maps environment configuration onto Settings.
func SettingsFromConfig(cfg config.WarmupConfig) Settings {
	timing := DefaultTiming()
	timing.DelayMin, timing.DelayMax = cfg.DelayMin, cfg.DelayMax
	timing.ExtendedPauseProbability = cfg.ExtendedPauseProbability
	timing.ExtendedPauseMin, timing.ExtendedPauseMax = cfg.ExtendedPauseMin, cfg.ExtendedPauseMax

	return Settings{
		MaxStage:         cfg.MaxStage,
		HistoryWindow:    cfg.HistoryWindow,
		MinRelevantChats: cfg.MinRelevantChats,
		DiscoveryLimit:   cfg.DiscoveryLimit,
		Limits: Limits{
			ReadMin: cfg.ReadMin,
			ReadMax: cfg.ReadMax,
			IdleMin: cfg.IdleMin,
			IdleMax: cfg.IdleMax,
		},
		Timing: timing,
	}
}

// Deps wires the service to its collaborators. Discovery, Activity and
// Observer are optional.
type Deps struct {
	Accounts  AccountStore
	Personas  PersonaSource
	Chats     ChatStore
	Discovery ChatDiscoverer
	History   HistoryStore
	Runs      RunStore
	Activity  ActivityLogger
	Planner   llm.Completer
	Gateway   Gateway
	Registry  *Registry
	Observer  Observer
	Clock     clock.Clock
	Sleeper   Sleeper
	Random    Random
	Logger    *slog.Logger
}

// Service runs the warmup pipeline: eligibility, persona, discovery, plan
// generation, validation, execution and bookkeeping.
type Service struct {
	deps     Deps
	settings Settings
	executor *Executor
	logger   *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a warmup service.
func NewService(deps Deps, settings Settings) *Service {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Sleeper == nil {
		deps.Sleeper = RealSleeper{}
	}
	if deps.Random == nil {
		deps.Random = NewRandom()
	}
	if settings.MaxStage < 1 {
		settings.MaxStage = 15
	}
	if settings.HistoryWindow < 1 {
		settings.HistoryWindow = 20
	}

	logger := deps.Logger.With("component", "warmup")
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:     deps,
		settings: settings,
		executor: NewExecutor(deps.Gateway, deps.History, deps.Sleeper, deps.Random, deps.Clock, settings.Timing, logger),
		logger:   logger,
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Registry returns the in-flight registry shared with the scheduler.
func (s *Service) Registry() *Registry {
	return s.deps.Registry
}

// TriggerSync runs a warmup for accountID and waits for it to finish.
func (s *Service) TriggerSync(ctx context.Context, accountID int64) (*RunSummary, error) {
	account, err := s.claim(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer s.deps.Registry.Release(accountID)

	summary, err := s.run(ctx, account, uuid.NewString(), models.TriggerManual)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// TriggerAsync starts a warmup in the background and returns its run id.
// Eligibility and the in-flight check happen before it returns.
func (s *Service) TriggerAsync(ctx context.Context, accountID int64) (string, error) {
	account, err := s.claim(ctx, accountID)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.deps.Registry.Release(accountID)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in background warmup", "account_id", accountID, "run_id", runID, "panic", r)
			}
		}()

		if _, err := s.run(s.baseCtx, account, runID, models.TriggerAsync); err != nil {
			s.logger.Error("background warmup failed", "account_id", accountID, "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// RunScheduled warms an account chosen by the scheduler. The account row is
// the one the scheduler listed; eligibility is rechecked here.
func (s *Service) RunScheduled(ctx context.Context, account *models.Account) (*RunSummary, error) {
	if skip, reason := ShouldSkip(account, s.deps.Clock.Now()); skip {
		s.observeSkip(reason.Code)
		return nil, &SkipError{AccountID: account.ID, Reason: reason}
	}
	if !s.deps.Registry.TryAcquire(account.ID) {
		return nil, ErrRunInProgress
	}
	defer s.deps.Registry.Release(account.ID)

	summary, err := s.run(ctx, account, uuid.NewString(), models.TriggerScheduler)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Eligibility reports whether accountID would be skipped right now.
func (s *Service) Eligibility(ctx context.Context, accountID int64) (bool, SkipReason, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return false, SkipReason{}, err
	}
	skip, reason := ShouldSkip(account, s.deps.Clock.Now())
	return skip, reason, nil
}

// HistoryView is an account's ledger summary plus the entries in a window.
type HistoryView struct {
	AccountID int64                 `json:"account_id"`
	SinceDays int                   `json:"since_days"`
	Summary   models.HistorySummary `json:"summary"`
	Entries   []models.HistoryEntry `json:"entries"`
}

// History returns the ledger summary and the entries of the last sinceDays
// days, newest first.
func (s *Service) History(ctx context.Context, accountID int64, sinceDays int) (*HistoryView, error) {
	if _, err := s.load(ctx, accountID); err != nil {
		return nil, err
	}
	if sinceDays <= 0 {
		sinceDays = 7
	}

	recent, err := s.deps.History.Recent(ctx, accountID, s.settings.HistoryWindow)
	if err != nil {
		return nil, err
	}
	total, err := s.deps.History.Count(ctx, accountID)
	if err != nil {
		return nil, err
	}
	since := s.deps.Clock.Now().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	entries, err := s.deps.History.ListSince(ctx, accountID, since)
	if err != nil {
		return nil, err
	}

	summary := SummarizeHistory(recent, total, s.settings.HistoryWindow)
	// Joins anywhere in the requested window count, not only the recent ones.
	all := make([]models.HistoryEntry, 0, len(entries)+len(recent))
	all = append(append(all, entries...), recent...)
	summary.JoinedChannels = JoinedChannels(all)

	return &HistoryView{
		AccountID: accountID,
		SinceDays: sinceDays,
		Summary:   summary,
		Entries:   entries,
	}, nil
}

// Shutdown cancels background runs and waits for them to stop or for ctx
// to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background warmups still running: %w", ctx.Err())
	}
}

func (s *Service) load(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.deps.Accounts.GetByID(ctx, accountID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// claim loads the account, checks eligibility and takes the in-flight slot.
func (s *Service) claim(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if skip, reason := ShouldSkip(account, s.deps.Clock.Now()); skip {
		s.logger.Warn("warmup skipped", "account_id", accountID, "code", reason.Code, "reason", reason.Message)
		s.observeSkip(reason.Code)
		return nil, &SkipError{AccountID: accountID, Reason: reason}
	}
	if !s.deps.Registry.TryAcquire(accountID) {
		return nil, ErrRunInProgress
	}
	return account, nil
}

// run is the single execution path shared by every trigger. The caller
// holds the account's in-flight slot.
func (s *Service) run(ctx context.Context, account *models.Account, runID string, trigger models.RunTrigger) (RunSummary, error) {
	log := s.logger.With("account_id", account.ID, "session_id", account.SessionID, "run_id", runID)
	started := s.deps.Clock.Now()

	stage := EffectiveStage(account.WarmupStage, account.FirstWarmupAt, started, s.settings.MaxStage)
	policy := PolicyFor(stage)

	persona, err := s.deps.Personas.Ensure(ctx, account, started)
	if err != nil {
		log.Warn("persona unavailable, planning without it", "error", err)
		persona = nil
	}

	chats := s.relevantChats(ctx, log, account.ID, persona, started)

	recent, err := s.deps.History.Recent(ctx, account.ID, s.settings.HistoryWindow)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to load history: %w", err)
	}
	total, err := s.deps.History.Count(ctx, account.ID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to count history: %w", err)
	}

	prompt, err := BuildPrompt(PromptInput{
		Persona:      persona,
		Policy:       policy,
		Recent:       recent,
		TotalActions: total,
		Chats:        chats,
		Now:          started,
	})
	if err != nil {
		return RunSummary{}, err
	}

	raw := ""
	accountID := account.ID
	resp, err := s.deps.Planner.Complete(ctx, llm.Request{
		Operation: llm.OperationWarmupPlan,
		AccountID: &accountID,
		System:    prompt.System,
		Prompt:    prompt.User,
	})
	if err != nil {
		log.Warn("plan generation failed, using fallback plan", "error", err)
	} else {
		raw = resp.Text
	}

	plan := ValidatePlan(raw, prompt.Constraints, s.settings.Limits)
	if plan.Fallback {
		log.Warn("plan replaced by fallback", "notes", plan.Notes)
	} else if len(plan.Notes) > 0 {
		log.Info("plan adjusted by validator", "notes", plan.Notes)
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to encode plan: %w", err)
	}
	record := models.WarmupRun{
		ID:             runID,
		AccountID:      account.ID,
		Stage:          stage,
		Trigger:        trigger,
		Status:         models.RunStatusRunning,
		UsedFallback:   plan.Fallback,
		PlannedActions: len(plan.Actions),
		Plan:           planJSON,
		StartedAt:      started,
	}
	if err := s.deps.Runs.Create(ctx, record); err != nil {
		return RunSummary{}, err
	}

	summary := s.executor.Execute(ctx, account, runID, plan)
	summary.Stage = stage

	// Bookkeeping and the run record must land even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	finished := s.deps.Clock.Now()
	bookErr := s.deps.Accounts.ApplyRunBookkeeping(persistCtx, account.ID, models.RunBookkeeping{
		At:              finished,
		Stage:           stage,
		Actions:         summary.Successful,
		JoinedChannels:  len(summary.JoinedChannels),
		Freeze:          summary.Frozen,
		ClearExpiredBan: true,
	})
	if bookErr != nil {
		log.Error("failed to apply run bookkeeping", "error", bookErr)
	}

	s.completeRun(persistCtx, log, record, summary, finished, bookErr)

	if summary.Frozen {
		s.logActivity(persistCtx, models.ActivityLog{
			Timestamp:    finished,
			ActivityType: models.ActivityTypeAccountFrozen,
			AccountID:    &accountID,
			Message:      fmt.Sprintf("account %d frozen during run %s", account.ID, runID),
			Details: map[string]any{
				"run_id":             runID,
				"flood_wait_seconds": summary.FloodWaitSeconds,
			},
		})
	}
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveRun(summary, trigger)
	}

	log.Info("warmup run finished",
		"stage", stage, "trigger", trigger, "fallback", plan.Fallback,
		"successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped,
		"duration_ms", finished.Sub(started).Milliseconds())
	return summary, nil
}

// relevantChats returns chats for the prompt, running discovery first when
// the account has too few. Failures only cost the prompt its suggestions.
func (s *Service) relevantChats(ctx context.Context, log *slog.Logger, accountID int64, persona *models.Persona, now time.Time) []models.DiscoveredChat {
	if s.deps.Chats == nil {
		return nil
	}

	if s.deps.Discovery != nil && persona != nil {
		count, err := s.deps.Chats.CountRelevant(ctx, accountID, relevantChatScore)
		if err != nil {
			log.Warn("failed to count relevant chats", "error", err)
		} else if count < s.settings.MinRelevantChats {
			if _, err := s.deps.Discovery.Discover(ctx, persona, s.settings.DiscoveryLimit, now); err != nil {
				log.Warn("chat discovery failed", "error", err)
			}
		}
	}

	chats, err := s.deps.Chats.ListByAccount(ctx, accountID, relevantChatScore)
	if err != nil {
		log.Warn("failed to load discovered chats", "error", err)
		return nil
	}
	return chats
}

func (s *Service) completeRun(ctx context.Context, log *slog.Logger, record models.WarmupRun, summary RunSummary, finished time.Time, bookErr error) {
	record.Status = models.RunStatusCompleted
	switch {
	case summary.Cancelled:
		record.Status = models.RunStatusCancelled
	case summary.Total > 0 && summary.Successful == 0 && summary.Failed > 0:
		record.Status = models.RunStatusFailed
	}
	record.CompletedActions = summary.Successful
	record.FailedActions = summary.Failed
	record.SkippedActions = summary.Skipped
	record.CompletedAt = &finished
	if bookErr != nil {
		record.Error = bookErr.Error()
	}

	body, err := json.Marshal(summary)
	if err != nil {
		log.Error("failed to encode run summary", "error", err)
	} else {
		record.Summary = body
	}
	if err := s.deps.Runs.Complete(ctx, record); err != nil {
		log.Error("failed to complete run record", "error", err)
	}
}

func (s *Service) logActivity(ctx context.Context, entry models.ActivityLog) {
	if s.deps.Activity == nil {
		return
	}
	if err := s.deps.Activity.Log(ctx, entry); err != nil {
		s.logger.Warn("failed to write activity log", "activity_type", entry.ActivityType, "error", err)
	}
}

func (s *Service) observeSkip(code SkipCode) {
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveSkip(code)
	}
}
