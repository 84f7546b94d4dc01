package warmup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// Limits are the dwell clamps applied to plan durations.
type Limits struct {
	ReadMin time.Duration
	ReadMax time.Duration
	IdleMin time.Duration
	IdleMax time.Duration
}

// DefaultLimits clamps reads to [3,20]s and idles to [3,45]s.
func DefaultLimits() Limits {
	return Limits{
		ReadMin: 3 * time.Second,
		ReadMax: 20 * time.Second,
		IdleMin: 3 * time.Second,
		IdleMax: 45 * time.Second,
	}
}

// Plan is a validated, bounded action sequence.
type Plan struct {
	Actions  []Action
	Fallback bool
	Notes    []string
}

// MarshalJSON renders the plan as the list of tagged actions.
func (p Plan) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, 0, len(p.Actions))
	for _, a := range p.Actions {
		entry := a.Params()
		entry["type"] = string(a.Type())
		out = append(out, entry)
	}
	return json.Marshal(out)
}

// Count returns the number of actions of type t.
func (p Plan) Count(t models.ActionType) int {
	n := 0
	for _, a := range p.Actions {
		if a.Type() == t {
			n++
		}
	}
	return n
}

// ValidatePlan turns raw LLM output into a plan that satisfies policy.
// Entries with unknown types, missing parameters or types the stage does
// not allow are dropped; durations are clamped; joins beyond the stage cap
// are dropped; the plan is truncated to MaxActions and padded with idle up
// to MinActions. When nothing usable remains the plan is a fallback of idle
// actions. The result is never empty.
func ValidatePlan(raw string, policy StagePolicy, limits Limits) Plan {
	entries, err := decodeEntries(raw)
	if err != nil {
		return fallbackPlan(policy, limits, "unparsable plan: "+err.Error())
	}

	plan := Plan{}
	joins := 0
	for i, entry := range entries {
		action, err := decodeAction(entry)
		if err != nil {
			plan.Notes = append(plan.Notes, fmt.Sprintf("action %d dropped: %v", i, err))
			continue
		}
		if !policy.Allows(action.Type()) {
			plan.Notes = append(plan.Notes, fmt.Sprintf("action %d dropped: %s not allowed at stage %d", i, action.Type(), policy.Stage))
			continue
		}
		if action.Type() == models.ActionJoinChannel {
			if joins >= policy.MaxChannelJoins {
				plan.Notes = append(plan.Notes, fmt.Sprintf("action %d dropped: join limit %d reached", i, policy.MaxChannelJoins))
				continue
			}
			joins++
		}
		clampDurations(action, limits)
		plan.Actions = append(plan.Actions, action)
	}

	if len(plan.Actions) == 0 {
		fb := fallbackPlan(policy, limits, "no valid actions in plan")
		fb.Notes = append(plan.Notes, fb.Notes...)
		return fb
	}

	if len(plan.Actions) > policy.MaxActions {
		plan.Notes = append(plan.Notes, fmt.Sprintf("truncated from %d to %d actions", len(plan.Actions), policy.MaxActions))
		plan.Actions = plan.Actions[:policy.MaxActions]
	}
	if missing := policy.MinActions - len(plan.Actions); missing > 0 {
		plan.Notes = append(plan.Notes, fmt.Sprintf("padded with %d idle actions", missing))
		plan.Actions = padIdle(plan.Actions, policy.MinActions, limits)
	}
	return plan
}

func decodeEntries(raw string) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := llm.DecodeJSON(raw, &entries); err == nil {
		return entries, nil
	}

	var wrapped struct {
		Actions []json.RawMessage `json:"actions"`
	}
	if err := llm.DecodeJSON(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Actions == nil {
		return nil, fmt.Errorf("no actions array")
	}
	return wrapped.Actions, nil
}

func fallbackPlan(policy StagePolicy, limits Limits, note string) Plan {
	return Plan{
		Actions:  padIdle(nil, max(1, policy.MinActions), limits),
		Fallback: true,
		Notes:    []string{note},
	}
}

func padIdle(actions []Action, target int, limits Limits) []Action {
	for len(actions) < target {
		actions = append(actions, &Idle{DurationSeconds: midpoint(limits.IdleMin, limits.IdleMax)})
	}
	return actions
}

func clampDurations(action Action, limits Limits) {
	switch a := action.(type) {
	case *ReadMessages:
		a.DurationSeconds = clampSeconds(a.DurationSeconds, limits.ReadMin, limits.ReadMax)
	case *ViewProfile:
		a.DurationSeconds = clampSeconds(a.DurationSeconds, limits.ReadMin, limits.ReadMax)
	case *Idle:
		a.DurationSeconds = clampSeconds(a.DurationSeconds, limits.IdleMin, limits.IdleMax)
	}
}

// clampSeconds bounds s to [lo,hi]. A missing duration takes the midpoint.
func clampSeconds(s Seconds, lo, hi time.Duration) Seconds {
	if s <= 0 {
		return midpoint(lo, hi)
	}
	return min(max(s, toSeconds(lo)), toSeconds(hi))
}

func midpoint(lo, hi time.Duration) Seconds {
	return (toSeconds(lo) + toSeconds(hi)) / 2
}

func toSeconds(d time.Duration) Seconds {
	return Seconds(d / time.Second)
}
