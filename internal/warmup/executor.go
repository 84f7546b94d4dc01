package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/gateway"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// reactionSampleSize is how many recent messages are inspected for reactions.
const reactionSampleSize = 10

// Gateway is the subset of the session gateway the executor drives.
type Gateway interface {
	JoinChat(ctx context.Context, sessionID, chat string) error
	SendMessage(ctx context.Context, sessionID, chat, text string) error
	SendReaction(ctx context.Context, sessionID, chat string, messageID int64, emoji string) error
	GetChatMessages(ctx context.Context, sessionID, chat string, limit int) ([]gateway.Message, error)
	GetDialogs(ctx context.Context, sessionID string, limit int) error
	UpdateProfile(ctx context.Context, sessionID string, p gateway.ProfileUpdate) error
	CreateGroup(ctx context.Context, sessionID, title string) error
	ForwardMessages(ctx context.Context, sessionID, fromChat, toChat string) error
}

// HistoryWriter appends completed actions to the ledger.
type HistoryWriter interface {
	Append(ctx context.Context, entry models.HistoryEntry) (int64, error)
}

// ActionStatus is the outcome of one executed action.
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

// ActionResult records what happened to one planned action.
type ActionResult struct {
	Index  int               `json:"index"`
	Type   models.ActionType `json:"type"`
	Status ActionStatus      `json:"status"`
	Params map[string]any    `json:"params,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// RunSummary is the outcome of executing one plan.
type RunSummary struct {
	RunID            string         `json:"run_id"`
	AccountID        int64          `json:"account_id"`
	Stage            int            `json:"stage"`
	Fallback         bool           `json:"fallback"`
	Total            int            `json:"total"`
	Successful       int            `json:"successful"`
	Failed           int            `json:"failed"`
	Skipped          int            `json:"skipped"`
	JoinedChannels   []string       `json:"joined_channels"`
	Results          []ActionResult `json:"results"`
	FloodWaitSeconds int            `json:"flood_wait_seconds,omitempty"`
	Frozen           bool           `json:"frozen"`
	Cancelled        bool           `json:"cancelled"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}

// errReactionsUnavailable marks a reaction that was skipped because the
// channel shows no reactions to copy.
var errReactionsUnavailable = errors.New("no existing reactions in channel")

// Executor runs plans against the gateway one action at a time.
type Executor struct {
	gateway Gateway
	history HistoryWriter
	sleeper Sleeper
	random  Random
	clock   clock.Clock
	timing  Timing
	logger  *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(gw Gateway, history HistoryWriter, sleeper Sleeper, random Random, clk clock.Clock, timing Timing, logger *slog.Logger) *Executor {
	return &Executor{
		gateway: gw,
		history: history,
		sleeper: sleeper,
		random:  random,
		clock:   clk,
		timing:  timing,
		logger:  logger,
	}
}

// Execute walks plan in order. A gateway failure fails only that action.
// A flood wait or frozen error stops the run and skips the rest. The
// context is checked between actions; cancellation stops the run after the
// current action. Each success is in history before the next action starts.
func (e *Executor) Execute(ctx context.Context, account *models.Account, runID string, plan Plan) RunSummary {
	summary := RunSummary{
		RunID:          runID,
		AccountID:      account.ID,
		Fallback:       plan.Fallback,
		Total:          len(plan.Actions),
		JoinedChannels: []string{},
		Results:        make([]ActionResult, 0, len(plan.Actions)),
		StartedAt:      e.clock.Now(),
	}
	log := e.logger.With("account_id", account.ID, "session_id", account.SessionID, "run_id", runID)

	stopReason := ""
	for i, action := range plan.Actions {
		result := ActionResult{Index: i, Type: action.Type(), Params: action.Params()}

		if stopReason == "" && ctx.Err() != nil {
			stopReason = "cancelled"
			summary.Cancelled = true
		}
		if stopReason != "" {
			result.Status = ActionSkipped
			result.Error = stopReason
			summary.record(result)
			continue
		}

		params, err := e.perform(ctx, account.SessionID, action)
		if params != nil {
			result.Params = params
		}

		switch {
		case err == nil:
			entry := models.HistoryEntry{
				AccountID:    account.ID,
				RunID:        runID,
				ActionType:   action.Type(),
				ActionParams: result.Params,
				Timestamp:    e.clock.Now(),
			}
			if _, herr := e.history.Append(context.WithoutCancel(ctx), entry); herr != nil {
				result.Status = ActionFailed
				result.Error = "history write failed: " + herr.Error()
				log.Error("failed to record action", "action", action.Type(), "error", herr)
				break
			}
			result.Status = ActionSucceeded
			if join, ok := action.(*JoinChannel); ok {
				summary.JoinedChannels = append(summary.JoinedChannels, join.Channel)
			}

		case errors.Is(err, errReactionsUnavailable):
			result.Status = ActionSkipped
			result.Error = err.Error()

		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			result.Status = ActionSkipped
			result.Error = "cancelled"
			summary.Cancelled = true
			stopReason = "cancelled"

		default:
			result.Status = ActionFailed
			result.Error = err.Error()
			if wait, ok := gateway.AsFloodWait(err); ok {
				summary.FloodWaitSeconds = int(wait / time.Second)
				summary.Frozen = true
				stopReason = fmt.Sprintf("flood wait %s", wait)
				log.Warn("flood wait received, freezing account", "action", action.Type(), "wait_seconds", summary.FloodWaitSeconds)
			} else if gateway.IsFrozen(err) {
				summary.Frozen = true
				stopReason = "account frozen"
				log.Warn("account frozen by telegram", "action", action.Type(), "error", err)
			} else {
				log.Warn("action failed", "action", action.Type(), "error", err)
			}
		}
		summary.record(result)

		if stopReason != "" || i == len(plan.Actions)-1 {
			continue
		}
		if err := e.sleeper.Sleep(ctx, e.timing.interActionDelay(e.random)); err != nil {
			stopReason = "cancelled"
			summary.Cancelled = true
		}
	}

	summary.FinishedAt = e.clock.Now()
	log.Info("warmup plan executed",
		"total", summary.Total, "successful", summary.Successful,
		"failed", summary.Failed, "skipped", summary.Skipped, "frozen", summary.Frozen)
	return summary
}

func (s *RunSummary) record(r ActionResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case ActionSucceeded:
		s.Successful++
	case ActionFailed:
		s.Failed++
	case ActionSkipped:
		s.Skipped++
	}
}

// dwell pauses after a gateway call has already succeeded. Cancellation
// cuts it short without undoing the action; the run loop stops before the
// next one.
func (e *Executor) dwell(ctx context.Context, d time.Duration) {
	_ = e.sleeper.Sleep(ctx, d)
}

// perform executes one action. The returned params, when non-nil, replace
// the planned params in the result and history entry.
func (e *Executor) perform(ctx context.Context, sessionID string, action Action) (map[string]any, error) {
	switch a := action.(type) {
	case *JoinChannel:
		return nil, e.gateway.JoinChat(ctx, sessionID, a.Channel)

	case *ReadMessages:
		if _, err := e.gateway.GetChatMessages(ctx, sessionID, a.Channel, 20); err != nil {
			return nil, err
		}
		e.dwell(ctx, a.DurationSeconds.Duration())
		return nil, nil

	case *Idle:
		return nil, e.sleeper.Sleep(ctx, a.DurationSeconds.Duration())

	case *ReactToMessage:
		return e.react(ctx, sessionID, a)

	case *MessageBot:
		if err := e.gateway.SendMessage(ctx, sessionID, a.Bot, a.Message); err != nil {
			return nil, err
		}
		// Give the bot time to answer, as a person would.
		e.dwell(ctx, uniform(e.random, e.timing.BotReplyMin, e.timing.BotReplyMax))
		return nil, nil

	case *ViewProfile:
		if err := e.gateway.GetDialogs(ctx, sessionID, 10); err != nil {
			return nil, err
		}
		if _, err := e.gateway.GetChatMessages(ctx, sessionID, a.Channel, 1); err != nil {
			return nil, err
		}
		e.dwell(ctx, a.DurationSeconds.Duration())
		return nil, nil

	case *UpdateProfile:
		return nil, e.gateway.UpdateProfile(ctx, sessionID, gateway.ProfileUpdate{
			FirstName: a.FirstName,
			LastName:  a.LastName,
			About:     a.Bio,
		})

	case *StartConversation:
		return nil, e.gateway.SendMessage(ctx, sessionID, a.Username, a.Message)

	case *CreateGroup:
		return nil, e.gateway.CreateGroup(ctx, sessionID, a.GroupName)

	case *ForwardMessage:
		return nil, e.gateway.ForwardMessages(ctx, sessionID, a.FromChat, a.ToChat)

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, action.Type())
	}
}

// react copies a reaction someone already left in the channel onto a
// message that has reactions. Only emoji seen in the sample are used.
func (e *Executor) react(ctx context.Context, sessionID string, a *ReactToMessage) (map[string]any, error) {
	messages, err := e.gateway.GetChatMessages(ctx, sessionID, a.Channel, reactionSampleSize)
	if err != nil {
		return nil, err
	}

	emojiSet := map[string]bool{}
	var candidates []gateway.Message
	for _, m := range messages {
		found := false
		for _, r := range m.Reactions {
			if sym := r.Symbol(); sym != "" {
				emojiSet[sym] = true
				found = true
			}
		}
		if found {
			candidates = append(candidates, m)
		}
	}
	if len(emojiSet) == 0 {
		return nil, errReactionsUnavailable
	}

	emojis := make([]string, 0, len(emojiSet))
	for sym := range emojiSet {
		emojis = append(emojis, sym)
	}
	slices.Sort(emojis)

	emoji := emojis[e.random.IntN(len(emojis))]
	target := candidates[e.random.IntN(len(candidates))]
	if err := e.gateway.SendReaction(ctx, sessionID, a.Channel, target.ID, emoji); err != nil {
		return nil, err
	}

	return map[string]any{
		"channel_username": a.Channel,
		"message_id":       target.ID,
		"emoji":            emoji,
	}, nil
}
