// Package discovery finds channels and groups that fit an account's persona.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// Store appends discovered chats.
type Store interface {
	AddMany(ctx context.Context, chats []models.DiscoveredChat, now time.Time) (int, error)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

var blacklisted = map[string]bool{
	"telegram": true, "durov": true, "botfather": true, "username": true, "channel": true, "example": true,
}

const systemPrompt = "You know public Telegram channels and groups well. Always answer with a JSON array."

var promptTemplate = template.Must(template.New("discovery").Option("missingkey=error").Parse(`Suggest up to {{.Limit}} real, public Telegram channels or groups that this person would plausibly subscribe to.

Person: {{.Name}}, {{.Age}}, {{.Occupation}} from {{.City}}, {{.Country}}.
Interests: {{.Interests}}.

Prefer large, active, long-lived public channels in the person's language and region.
Answer with a JSON array only:
[{"username": "@channel", "title": "...", "kind": "channel" or "group", "relevance_score": 0.0-1.0, "query": "the interest it matches"}]`))

// Suggestion is one chat proposed by the LLM.
type Suggestion struct {
	Username  string  `json:"username"`
	Title     string  `json:"title"`
	Kind      string  `json:"kind"`
	Relevance float64 `json:"relevance_score"`
	Query     string  `json:"query"`
}

// Service asks the LLM for relevant chats and stores new ones.
type Service struct {
	llm    llm.Completer
	store  Store
	logger *slog.Logger
}

// NewService creates a discovery service.
func NewService(completer llm.Completer, store Store, logger *slog.Logger) *Service {
	return &Service{llm: completer, store: store, logger: logger}
}

// Discover requests up to limit chats for the persona and appends the valid,
// previously unseen ones. It returns how many rows were added.
func (s *Service) Discover(ctx context.Context, persona *models.Persona, limit int, now time.Time) (int, error) {
	if persona == nil {
		return 0, fmt.Errorf("persona is required for discovery")
	}

	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, map[string]any{
		"Limit":      limit,
		"Name":       persona.Name,
		"Age":        persona.Age,
		"Occupation": persona.Occupation,
		"City":       persona.City,
		"Country":    persona.Country,
		"Interests":  strings.Join(persona.Interests, ", "),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to build discovery prompt: %w", err)
	}

	accountID := persona.AccountID
	resp, err := s.llm.Complete(ctx, llm.Request{
		Operation: llm.OperationChatDiscovery,
		AccountID: &accountID,
		System:    systemPrompt,
		Prompt:    buf.String(),
	})
	if err != nil {
		return 0, fmt.Errorf("chat discovery failed: %w", err)
	}

	var suggestions []Suggestion
	if err := llm.DecodeJSON(resp.Text, &suggestions); err != nil {
		return 0, fmt.Errorf("chat discovery returned invalid JSON: %w", err)
	}

	chats := Normalize(persona.AccountID, suggestions, limit)
	added, err := s.store.AddMany(ctx, chats, now)
	if err != nil {
		return added, err
	}

	s.logger.Info("chat discovery completed",
		"account_id", persona.AccountID, "suggested", len(suggestions), "valid", len(chats), "added", added)
	return added, nil
}

// Normalize validates suggestions, puts identifiers in @username form, clamps
// relevance into [0,1] and drops duplicates. At most limit chats are kept.
func Normalize(accountID int64, suggestions []Suggestion, limit int) []models.DiscoveredChat {
	seen := map[string]bool{}
	chats := []models.DiscoveredChat{}
	for _, sug := range suggestions {
		if limit > 0 && len(chats) >= limit {
			break
		}
		name, ok := normalizeUsername(sug.Username)
		if !ok || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		kind := models.ChatKindChannel
		if strings.EqualFold(sug.Kind, string(models.ChatKindGroup)) {
			kind = models.ChatKindGroup
		}
		chats = append(chats, models.DiscoveredChat{
			AccountID:      accountID,
			Identifier:     "@" + name,
			Kind:           kind,
			Title:          strings.TrimSpace(sug.Title),
			RelevanceScore: min(1, max(0, sug.Relevance)),
			SourceQuery:    strings.TrimSpace(sug.Query),
		})
	}
	return chats
}

func normalizeUsername(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.TrimPrefix(name, "@")
	name = strings.TrimSuffix(name, "/")

	if !usernamePattern.MatchString(name) || strings.HasSuffix(name, "_") || strings.Contains(name, "__") {
		return "", false
	}
	if blacklisted[strings.ToLower(name)] {
		return "", false
	}
	return name, true
}
