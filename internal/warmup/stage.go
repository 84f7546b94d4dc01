package warmup

import (
	"slices"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// StagePolicy is the parameter set for one warmup stage.
type StagePolicy struct {
	Stage           int                 `json:"stage"`
	AllowedActions  []models.ActionType `json:"allowed_actions"`
	MinActions      int                 `json:"min_actions"`
	MaxActions      int                 `json:"max_actions"`
	MaxChannelJoins int                 `json:"max_channel_joins"`
}

var (
	profileActions = []models.ActionType{
		models.ActionUpdateProfile,
		models.ActionIdle,
	}
	browsingActions = append(slices.Clone(profileActions),
		models.ActionJoinChannel,
		models.ActionReadMessages,
	)
	engagementActions = append(slices.Clone(browsingActions),
		models.ActionReactToMessage,
		models.ActionMessageBot,
		models.ActionViewProfile,
	)
	socialActions = append(slices.Clone(engagementActions),
		models.ActionStartConversation,
		models.ActionCreateGroup,
		models.ActionForwardMessage,
	)
)

// PolicyFor returns the policy for stage. Stages below 1 are treated as 1.
func PolicyFor(stage int) StagePolicy {
	if stage < 1 {
		stage = 1
	}

	p := StagePolicy{Stage: stage}
	switch {
	case stage == 1:
		p.AllowedActions, p.MinActions, p.MaxActions, p.MaxChannelJoins = profileActions, 1, 3, 0
	case stage <= 3:
		p.AllowedActions, p.MinActions, p.MaxActions, p.MaxChannelJoins = browsingActions, 2, 5, stage-1
	case stage <= 7:
		p.AllowedActions, p.MinActions, p.MaxActions, p.MaxChannelJoins = engagementActions, 3, 7, 2
	case stage <= 14:
		p.AllowedActions, p.MinActions, p.MaxActions, p.MaxChannelJoins = socialActions, 4, 10, 3
	default:
		p.AllowedActions, p.MinActions, p.MaxActions, p.MaxChannelJoins = socialActions, 5, 12, 3
	}
	p.AllowedActions = slices.Clone(p.AllowedActions)
	return p
}

// Allows reports whether t is permitted at this stage.
func (p StagePolicy) Allows(t models.ActionType) bool {
	return slices.Contains(p.AllowedActions, t)
}

// EffectiveStage advances the stored stage by whole days since the first
// warmup, capped at maxStage. It never returns less than stored.
func EffectiveStage(stored int, firstWarmup *time.Time, now time.Time, maxStage int) int {
	stored = max(stored, 1)
	if firstWarmup == nil {
		return stored
	}

	days := 0
	if elapsed := now.Sub(*firstWarmup); elapsed > 0 {
		days = int(elapsed / (24 * time.Hour))
	}
	return max(stored, min(days+1, maxStage))
}
