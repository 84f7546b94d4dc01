package models

import "time"

// ActionType names a warmup action kind.
type ActionType string

const (
	ActionJoinChannel       ActionType = "join_channel"
	ActionReadMessages      ActionType = "read_messages"
	ActionIdle              ActionType = "idle"
	ActionReactToMessage    ActionType = "react_to_message"
	ActionMessageBot        ActionType = "message_bot"
	ActionViewProfile       ActionType = "view_profile"
	ActionUpdateProfile     ActionType = "update_profile"
	ActionStartConversation ActionType = "start_conversation"
	ActionCreateGroup       ActionType = "create_group"
	ActionForwardMessage    ActionType = "forward_message"
)

// HistoryEntry is one successfully completed action. Rows are never updated.
type HistoryEntry struct {
	ID           int64          `json:"id"`
	AccountID    int64          `json:"account_id"`
	RunID        string         `json:"run_id,omitempty"`
	ActionType   ActionType     `json:"action_type"`
	ActionParams map[string]any `json:"action_params,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// HistorySummary condenses an account's ledger.
type HistorySummary struct {
	IsNew          bool           `json:"is_new"`
	TotalActions   int            `json:"total_actions"`
	JoinedChannels []string       `json:"joined_channels"`
	LastActivity   *time.Time     `json:"last_activity,omitempty"`
	RecentActions  []HistoryEntry `json:"recent_actions"`
}
