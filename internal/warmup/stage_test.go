package warmup

import (
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

func TestPolicyForTiers(t *testing.T) {
	tests := []struct {
		stage              int
		min, max, joins    int
		allowed, forbidden models.ActionType
	}{
		{0, 1, 3, 0, models.ActionUpdateProfile, models.ActionJoinChannel},
		{1, 1, 3, 0, models.ActionIdle, models.ActionReadMessages},
		{2, 2, 5, 1, models.ActionJoinChannel, models.ActionReactToMessage},
		{3, 2, 5, 2, models.ActionReadMessages, models.ActionMessageBot},
		{4, 3, 7, 2, models.ActionReactToMessage, models.ActionStartConversation},
		{7, 3, 7, 2, models.ActionViewProfile, models.ActionCreateGroup},
		{8, 4, 10, 3, models.ActionForwardMessage, ""},
		{14, 4, 10, 3, models.ActionStartConversation, ""},
		{15, 5, 12, 3, models.ActionCreateGroup, ""},
		{40, 5, 12, 3, models.ActionJoinChannel, ""},
	}

	for _, tt := range tests {
		p := PolicyFor(tt.stage)
		if p.MinActions != tt.min || p.MaxActions != tt.max || p.MaxChannelJoins != tt.joins {
			t.Errorf("stage %d: got [%d,%d] joins %d, want [%d,%d] joins %d",
				tt.stage, p.MinActions, p.MaxActions, p.MaxChannelJoins, tt.min, tt.max, tt.joins)
		}
		if !p.Allows(tt.allowed) {
			t.Errorf("stage %d should allow %s", tt.stage, tt.allowed)
		}
		if tt.forbidden != "" && p.Allows(tt.forbidden) {
			t.Errorf("stage %d should not allow %s", tt.stage, tt.forbidden)
		}
	}
}

func TestPolicyForReturnsIndependentSlices(t *testing.T) {
	p := PolicyFor(5)
	p.AllowedActions[0] = "mutated"
	if PolicyFor(5).AllowedActions[0] == "mutated" {
		t.Fatalf("policies share backing arrays")
	}
}

func TestEffectiveStage(t *testing.T) {
	first := baseTime.Add(-4*24*time.Hour - time.Hour)

	tests := []struct {
		name   string
		stored int
		first  *time.Time
		want   int
	}{
		{"never warmed keeps stored", 1, nil, 1},
		{"advances by calendar days", 1, &first, 5},
		{"never lowers a stored stage", 9, &first, 9},
		{"capped at max stage", 1, ptr(baseTime.Add(-100 * 24 * time.Hour)), 15},
		{"stored above cap is kept", 20, ptr(baseTime.Add(-100 * 24 * time.Hour)), 20},
		{"first warmup in the future", 2, ptr(baseTime.Add(time.Hour)), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveStage(tt.stored, tt.first, baseTime, 15); got != tt.want {
				t.Fatalf("EffectiveStage = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEffectiveStageIsMonotonic(t *testing.T) {
	first := baseTime
	prev := 0
	for day := 0; day < 30; day++ {
		now := first.Add(time.Duration(day)*24*time.Hour + 3*time.Hour)
		stage := EffectiveStage(prev, &first, now, 15)
		if stage < prev {
			t.Fatalf("day %d: stage dropped from %d to %d", day, prev, stage)
		}
		prev = stage
	}
	if prev != 15 {
		t.Fatalf("final stage = %d, want 15", prev)
	}
}

func ptr[T any](v T) *T { return &v }
