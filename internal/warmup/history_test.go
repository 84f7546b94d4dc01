package warmup

import (
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

func TestSummarizeHistory(t *testing.T) {
	empty := SummarizeHistory(nil, 0, 20)
	if !empty.IsNew || empty.LastActivity != nil || len(empty.JoinedChannels) != 0 {
		t.Fatalf("empty summary = %+v", empty)
	}

	entries := []models.HistoryEntry{
		{ActionType: models.ActionJoinChannel, ActionParams: map[string]any{"channel_username": "@b"}, Timestamp: baseTime},
		{ActionType: models.ActionReadMessages, ActionParams: map[string]any{"channel_username": "@a"}, Timestamp: baseTime.Add(-time.Hour)},
		{ActionType: models.ActionJoinChannel, ActionParams: map[string]any{"channel_username": "@a"}, Timestamp: baseTime.Add(-2 * time.Hour)},
		{ActionType: models.ActionJoinChannel, ActionParams: map[string]any{"channel_username": "@b"}, Timestamp: baseTime.Add(-3 * time.Hour)},
	}
	s := SummarizeHistory(entries, 40, 2)

	if s.IsNew {
		t.Fatalf("account with history reported as new")
	}
	if s.TotalActions != 40 {
		t.Errorf("total = %d, want 40", s.TotalActions)
	}
	if s.LastActivity == nil || !s.LastActivity.Equal(baseTime) {
		t.Errorf("last activity = %v", s.LastActivity)
	}
	if len(s.JoinedChannels) != 2 || s.JoinedChannels[0] != "@b" || s.JoinedChannels[1] != "@a" {
		t.Errorf("joined = %v", s.JoinedChannels)
	}
	if len(s.RecentActions) != 2 {
		t.Errorf("recent = %d, want 2", len(s.RecentActions))
	}

	// A ledger that was swept by retention is still not new.
	if SummarizeHistory(nil, 5, 20).IsNew {
		t.Errorf("account with a non-zero total reported as new")
	}
}

func TestHumanizeSince(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Second: "just now",
		time.Minute:      "1 minute ago",
		45 * time.Minute: "45 minutes ago",
		time.Hour:        "1 hour ago",
		5 * time.Hour:    "5 hours ago",
		24 * time.Hour:   "1 day ago",
		72 * time.Hour:   "3 days ago",
	}
	for d, want := range tests {
		if got := HumanizeSince(d); got != want {
			t.Errorf("HumanizeSince(%v) = %q, want %q", d, got, want)
		}
	}
}
