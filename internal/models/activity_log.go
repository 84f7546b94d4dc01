package models

import "time"

// ActivityType represents the type of background activity being logged.
type ActivityType string

const (
	ActivityTypeSchedulerTick ActivityType = "scheduler_tick"
	ActivityTypeRetention     ActivityType = "retention_sweep"
	ActivityTypeStatusSync    ActivityType = "status_sync"
	ActivityTypeAccountFrozen ActivityType = "account_frozen"
)

// ActivityLog represents a logged background activity.
type ActivityLog struct {
	ID           int64          `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActivityType ActivityType   `json:"activity_type"`
	AccountID    *int64         `json:"account_id,omitempty"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	AccountCount *int           `json:"account_count,omitempty"`
	DurationMs   *int           `json:"duration_ms,omitempty"`
}

// ActivityLogFilter narrows activity log listings.
type ActivityLogFilter struct {
	ActivityType ActivityType
	AccountID    *int64
	Limit        int
}
