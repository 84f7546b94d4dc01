package warmup

import (
	"strings"
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

func TestBuildPromptNewAccount(t *testing.T) {
	p, err := BuildPrompt(PromptInput{
		Policy: PolicyFor(1),
		Now:    baseTime,
	})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(p.User, "brand new account") {
		t.Fatalf("new account framing missing:\n%s", p.User)
	}
	if strings.Contains(p.User, "returning session") {
		t.Fatalf("new account framed as returning")
	}
	if strings.Contains(p.User, "join_channel") {
		t.Fatalf("stage 1 prompt offers join_channel")
	}
	if p.Constraints.Stage != 1 || p.System == "" {
		t.Fatalf("unexpected prompt: %+v", p.Constraints)
	}
}

func TestBuildPromptReturningAccount(t *testing.T) {
	persona := &models.Persona{
		Name: "Olena", Age: 29, Occupation: "designer", City: "Lviv", Country: "Ukraine",
		Interests: []string{"art", "coffee"}, CommunicationStyle: "casual", ActivityLevel: "medium",
	}
	recent := []models.HistoryEntry{
		{ActionType: models.ActionReadMessages, ActionParams: map[string]any{"channel_username": "@art_daily"}, Timestamp: baseTime.Add(-3 * time.Hour)},
		{ActionType: models.ActionJoinChannel, ActionParams: map[string]any{"channel_username": "@art_daily"}, Timestamp: baseTime.Add(-4 * time.Hour)},
	}
	chats := []models.DiscoveredChat{
		{Identifier: "@art_daily", Title: "Art Daily"},
		{Identifier: "@coffee_lovers", Title: "Coffee"},
	}

	in := PromptInput{Persona: persona, Policy: PolicyFor(4), Recent: recent, TotalActions: 12, Chats: chats, Now: baseTime}
	p, err := BuildPrompt(in)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}

	for _, want := range []string{
		"You are Olena, 29, designer from Lviv, Ukraine.",
		"Interests: art, coffee.",
		"returning session",
		"3 hours ago",
		"12 actions so far",
		"Channels you already joined: @art_daily",
		"@coffee_lovers (Coffee)",
		"react_to_message",
	} {
		if !strings.Contains(p.User, want) {
			t.Errorf("prompt missing %q:\n%s", want, p.User)
		}
	}
	if strings.Contains(p.User, "@art_daily (Art Daily)") {
		t.Errorf("already joined chat offered again")
	}
	if strings.Contains(p.User, "brand new account") {
		t.Errorf("returning account framed as new")
	}

	again, err := BuildPrompt(in)
	if err != nil || again.User != p.User {
		t.Fatalf("BuildPrompt is not deterministic")
	}
}
