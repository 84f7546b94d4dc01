package warmup

import (
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// SummarizeHistory condenses entries, which must be ordered newest first.
// total is the account's full ledger size; recent caps RecentActions.
func SummarizeHistory(entries []models.HistoryEntry, total, recent int) models.HistorySummary {
	summary := models.HistorySummary{
		IsNew:          len(entries) == 0 && total == 0,
		TotalActions:   max(total, len(entries)),
		JoinedChannels: JoinedChannels(entries),
		RecentActions:  []models.HistoryEntry{},
	}
	if len(entries) > 0 {
		last := entries[0].Timestamp
		summary.LastActivity = &last
	}
	if recent > len(entries) {
		recent = len(entries)
	}
	summary.RecentActions = append(summary.RecentActions, entries[:recent]...)
	return summary
}

// JoinedChannels lists the distinct channels of join_channel entries in the
// order they appear.
func JoinedChannels(entries []models.HistoryEntry) []string {
	seen := map[string]bool{}
	channels := []string{}
	for _, e := range entries {
		if e.ActionType != models.ActionJoinChannel {
			continue
		}
		channel, _ := e.ActionParams["channel_username"].(string)
		if channel == "" || seen[channel] {
			continue
		}
		seen[channel] = true
		channels = append(channels, channel)
	}
	return channels
}

// HumanizeSince renders d as "5 hours ago" style text.
func HumanizeSince(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	default:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
