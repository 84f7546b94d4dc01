package warmup

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

func TestValidatePlanNeverEmptyAndWithinBounds(t *testing.T) {
	inputs := []string{
		"",
		"not json at all",
		"[]",
		`{"actions": []}`,
		`[{"type": "teleport"}]`,
		`[{"type": "join_channel", "channel_username": "@news"}]`,
		"```json\n[{\"type\": \"idle\", \"duration_seconds\": 10}]\n```",
		strings.Repeat(`{"type": "idle"},`, 30),
	}

	for stage := 1; stage <= 16; stage++ {
		policy := PolicyFor(stage)
		for _, raw := range inputs {
			plan := ValidatePlan(raw, policy, DefaultLimits())
			n := len(plan.Actions)
			if n == 0 {
				t.Fatalf("stage %d, input %q: empty plan", stage, raw)
			}
			if n > policy.MaxActions || n < max(1, policy.MinActions) {
				t.Fatalf("stage %d, input %q: %d actions outside [%d,%d]", stage, raw, n, policy.MinActions, policy.MaxActions)
			}
			if joins := plan.Count(models.ActionJoinChannel); joins > policy.MaxChannelJoins {
				t.Fatalf("stage %d: %d joins exceeds %d", stage, joins, policy.MaxChannelJoins)
			}
			for _, a := range plan.Actions {
				if !policy.Allows(a.Type()) {
					t.Fatalf("stage %d: %s not allowed", stage, a.Type())
				}
			}
		}
	}
}

func TestValidatePlanFallback(t *testing.T) {
	plan := ValidatePlan("the model refused", PolicyFor(5), DefaultLimits())
	if !plan.Fallback {
		t.Fatalf("expected fallback plan")
	}
	if len(plan.Actions) != 3 || plan.Count(models.ActionIdle) != 3 {
		t.Fatalf("fallback = %d actions (%d idle), want 3 idle", len(plan.Actions), plan.Count(models.ActionIdle))
	}
	idle := plan.Actions[0].(*Idle)
	if idle.DurationSeconds != 24 {
		t.Errorf("fallback idle = %ds, want midpoint 24s", idle.DurationSeconds)
	}

	onlyInvalid := ValidatePlan(`[{"type": "join_channel"}, {"type": "unknown"}]`, PolicyFor(5), DefaultLimits())
	if !onlyInvalid.Fallback || len(onlyInvalid.Notes) < 3 {
		t.Fatalf("expected fallback with drop notes, got %+v", onlyInvalid)
	}
}

func TestValidatePlanDropsDisallowedAndCapsJoins(t *testing.T) {
	raw := `[
		{"type": "join_channel", "channel_username": "a_channel"},
		{"type": "join_channel", "channel_username": "@b_channel"},
		{"type": "join_channel", "channel_username": "https://t.me/c_channel"},
		{"type": "react_to_message", "channel_username": "@a_channel"},
		{"action": "read_messages", "channel_username": "@a_channel", "duration_seconds": 90},
		{"action_type": "idle", "duration_seconds": "1.4"}
	]`
	plan := ValidatePlan(raw, PolicyFor(3), DefaultLimits())

	if plan.Fallback {
		t.Fatalf("unexpected fallback: %v", plan.Notes)
	}
	if got := plan.Count(models.ActionJoinChannel); got != 2 {
		t.Fatalf("joins = %d, want 2", got)
	}
	if plan.Count(models.ActionReactToMessage) != 0 {
		t.Fatalf("react_to_message must be dropped at stage 3")
	}
	if len(plan.Actions) != 4 {
		t.Fatalf("actions = %d, want 4", len(plan.Actions))
	}

	if first := plan.Actions[0].(*JoinChannel); first.Channel != "@a_channel" {
		t.Errorf("channel = %q, want @a_channel", first.Channel)
	}
	read := plan.Actions[2].(*ReadMessages)
	if read.DurationSeconds.Duration() != 20*time.Second {
		t.Errorf("read duration = %v, want clamped to 20s", read.DurationSeconds.Duration())
	}
	idle := plan.Actions[3].(*Idle)
	if idle.DurationSeconds != 3 {
		t.Errorf("idle = %ds, want clamped to 3s", idle.DurationSeconds)
	}
}

func TestValidatePlanTruncatesAndPads(t *testing.T) {
	long := "[" + strings.TrimSuffix(strings.Repeat(`{"type": "idle", "duration_seconds": 5},`, 20), ",") + "]"
	plan := ValidatePlan(long, PolicyFor(15), DefaultLimits())
	if len(plan.Actions) != 12 {
		t.Fatalf("truncated plan = %d, want 12", len(plan.Actions))
	}

	short := `[{"type": "read_messages", "channel_username": "@x_news"}]`
	padded := ValidatePlan(short, PolicyFor(8), DefaultLimits())
	if len(padded.Actions) != 4 || padded.Count(models.ActionIdle) != 3 {
		t.Fatalf("padded plan = %d actions (%d idle), want 4 with 3 idle", len(padded.Actions), padded.Count(models.ActionIdle))
	}
	if padded.Fallback {
		t.Fatalf("padding is not a fallback")
	}
	read := padded.Actions[0].(*ReadMessages)
	if read.DurationSeconds != 11 {
		t.Errorf("missing read duration = %d, want midpoint 11", read.DurationSeconds)
	}
}

func TestValidatePlanStripsReactionEmoji(t *testing.T) {
	raw := `[{"type": "react_to_message", "channel_username": "@x_news", "emoji": "💩"}]`
	plan := ValidatePlan(raw, PolicyFor(5), DefaultLimits())

	body, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(body), "emoji") {
		t.Fatalf("plan kept an LLM-chosen emoji: %s", body)
	}
	if !strings.Contains(string(body), `"type":"react_to_message"`) {
		t.Fatalf("plan JSON lacks type tag: %s", body)
	}
}

func TestValidatePlanWrappedObjectAndDefaults(t *testing.T) {
	raw := `Sure! {"actions": [
		{"type": "message_bot", "bot_username": "weatherbot"},
		{"type": "update_profile", "bio": "  coffee and code  "},
		{"type": "start_conversation", "username": "@friend"}
	]}`
	plan := ValidatePlan(raw, PolicyFor(10), DefaultLimits())
	if plan.Fallback {
		t.Fatalf("unexpected fallback: %v", plan.Notes)
	}

	bot := plan.Actions[0].(*MessageBot)
	if bot.Bot != "@weatherbot" || bot.Message != "/start" {
		t.Errorf("message_bot = %+v", bot)
	}
	profile := plan.Actions[1].(*UpdateProfile)
	if profile.Bio != "coffee and code" {
		t.Errorf("bio = %q", profile.Bio)
	}
	// start_conversation without a message is dropped, then padded with idle.
	if plan.Count(models.ActionStartConversation) != 0 || len(plan.Actions) != 4 {
		t.Errorf("plan = %d actions, start_conversation=%d", len(plan.Actions), plan.Count(models.ActionStartConversation))
	}
}
