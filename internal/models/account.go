package models

import (
	"fmt"
	"time"
)

// Daily activity bounds accepted for an account.
const (
	MinDailyActivityFloor   = 2
	MaxDailyActivityCeiling = 10

	DefaultMinDailyActivity = 3
	DefaultMaxDailyActivity = 6
)

// Account is one warmed Telegram session.
type Account struct {
	ID          int64  `json:"id"`
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Country     string `json:"country,omitempty"`

	WarmupStage   int        `json:"warmup_stage"`
	FirstWarmupAt *time.Time `json:"first_warmup_at,omitempty"`
	LastWarmupAt  *time.Time `json:"last_warmup_at,omitempty"`

	MinDailyActivity int `json:"min_daily_activity"`
	MaxDailyActivity int `json:"max_daily_activity"`

	IsActive              bool       `json:"is_active"`
	IsFrozen              bool       `json:"is_frozen"`
	IsBanned              bool       `json:"is_banned"`
	IsDeleted             bool       `json:"is_deleted"`
	LLMGenerationDisabled bool       `json:"llm_generation_disabled"`
	UnbanDate             *time.Time `json:"unban_date,omitempty"`

	TotalWarmups        int `json:"total_warmups"`
	TotalActions        int `json:"total_actions"`
	JoinedChannelsCount int `json:"joined_channels_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BanExpired reports whether a temporary ban has lapsed at now.
func (a *Account) BanExpired(now time.Time) bool {
	return a.IsBanned && a.UnbanDate != nil && !a.UnbanDate.After(now)
}

// ValidateActivityBounds checks the daily activity range.
func ValidateActivityBounds(minDaily, maxDaily int) error {
	if minDaily < MinDailyActivityFloor || minDaily > MaxDailyActivityCeiling {
		return fmt.Errorf("min_daily_activity must be between %d and %d", MinDailyActivityFloor, MaxDailyActivityCeiling)
	}
	if maxDaily < MinDailyActivityFloor || maxDaily > MaxDailyActivityCeiling {
		return fmt.Errorf("max_daily_activity must be between %d and %d", MinDailyActivityFloor, MaxDailyActivityCeiling)
	}
	if minDaily > maxDaily {
		return fmt.Errorf("min_daily_activity (%d) exceeds max_daily_activity (%d)", minDaily, maxDaily)
	}
	return nil
}

// CreateAccountRequest is the input for registering a session.
type CreateAccountRequest struct {
	SessionID        string `json:"session_id"`
	PhoneNumber      string `json:"phone_number"`
	Country          string `json:"country"`
	MinDailyActivity int    `json:"min_daily_activity"`
	MaxDailyActivity int    `json:"max_daily_activity"`
}

// AccountUpdate carries optional field changes; nil means unchanged.
type AccountUpdate struct {
	MinDailyActivity      *int       `json:"min_daily_activity,omitempty"`
	MaxDailyActivity      *int       `json:"max_daily_activity,omitempty"`
	IsActive              *bool      `json:"is_active,omitempty"`
	IsFrozen              *bool      `json:"is_frozen,omitempty"`
	IsBanned              *bool      `json:"is_banned,omitempty"`
	IsDeleted             *bool      `json:"is_deleted,omitempty"`
	LLMGenerationDisabled *bool      `json:"llm_generation_disabled,omitempty"`
	UnbanDate             *time.Time `json:"unban_date,omitempty"`
	ClearUnbanDate        bool       `json:"clear_unban_date,omitempty"`
}

// RunBookkeeping is the post-run update applied to an account row.
type RunBookkeeping struct {
	At              time.Time
	Stage           int
	Actions         int
	JoinedChannels  int
	Freeze          bool
	ClearExpiredBan bool
}

// SessionStatus mirrors the gateway's view of a session.
type SessionStatus struct {
	IsFrozen  bool
	IsBanned  bool
	IsDeleted bool
	UnbanDate *time.Time
}
