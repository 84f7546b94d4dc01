package models

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a warmup run record.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunTrigger records what started a run.
type RunTrigger string

const (
	TriggerScheduler RunTrigger = "scheduler"
	TriggerManual    RunTrigger = "manual"
	TriggerAsync     RunTrigger = "manual_async"
)

// WarmupRun is the persisted record of one warmup attempt that passed eligibility.
type WarmupRun struct {
	ID               string          `json:"id"`
	AccountID        int64           `json:"account_id"`
	Stage            int             `json:"stage"`
	Trigger          RunTrigger      `json:"trigger"`
	Status           RunStatus       `json:"status"`
	UsedFallback     bool            `json:"used_fallback"`
	PlannedActions   int             `json:"planned_actions"`
	CompletedActions int             `json:"completed_actions"`
	FailedActions    int             `json:"failed_actions"`
	SkippedActions   int             `json:"skipped_actions"`
	Plan             json.RawMessage `json:"plan,omitempty"`
	Summary          json.RawMessage `json:"summary,omitempty"`
	Error            string          `json:"error,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}
