package warmup

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// PromptInput is everything the prompt is built from.
type PromptInput struct {
	Persona      *models.Persona
	Policy       StagePolicy
	Recent       []models.HistoryEntry // newest first
	TotalActions int
	Chats        []models.DiscoveredChat
	Now          time.Time
}

// Prompt is the LLM request for a plan together with the constraints the
// validator enforces regardless of what the model returns.
type Prompt struct {
	System      string
	User        string
	Constraints StagePolicy
}

const planSystemPrompt = `You plan the next session of a real person using Telegram. ` +
	`Sessions must look natural and unhurried. Answer with a JSON array of actions only.`

// actionSchemas documents the parameters of every action type for the model.
var actionSchemas = map[models.ActionType]string{
	models.ActionUpdateProfile:     `{"type": "update_profile", "first_name": "...", "last_name": "...", "bio": "..."}`,
	models.ActionIdle:              `{"type": "idle", "duration_seconds": 3-45}`,
	models.ActionJoinChannel:       `{"type": "join_channel", "channel_username": "@name"}`,
	models.ActionReadMessages:      `{"type": "read_messages", "channel_username": "@name", "duration_seconds": 3-20}`,
	models.ActionReactToMessage:    `{"type": "react_to_message", "channel_username": "@name"}`,
	models.ActionMessageBot:        `{"type": "message_bot", "bot_username": "@somebot", "message": "/start"}`,
	models.ActionViewProfile:       `{"type": "view_profile", "channel_username": "@name", "duration_seconds": 3-20}`,
	models.ActionStartConversation: `{"type": "start_conversation", "username": "@user", "message": "..."}`,
	models.ActionCreateGroup:       `{"type": "create_group", "group_name": "..."}`,
	models.ActionForwardMessage:    `{"type": "forward_message", "from_chat": "@name", "to_chat": "@name"}`,
}

type promptView struct {
	Persona     *models.Persona
	Interests   string
	Stage       int
	MinActions  int
	MaxActions  int
	MaxJoins    int
	Schemas     []string
	Returning   bool
	LastSeen    string
	Total       int
	Joined      string
	RecentLines []string
	Chats       []string
	Weekday     string
	TimeOfDay   string
}

var userTemplate = template.Must(template.New("plan").Option("missingkey=error").Parse(
	`{{if .Persona}}You are {{.Persona.Name}}, {{.Persona.Age}}, {{.Persona.Occupation}} from {{.Persona.City}}, {{.Persona.Country}}.
Interests: {{.Interests}}. Communication style: {{.Persona.CommunicationStyle}}. Activity level: {{.Persona.ActivityLevel}}.
{{else}}You are an ordinary Telegram user.
{{end}}
It is {{.Weekday}} {{.TimeOfDay}}.
{{if .Returning}}
This is a returning session. Your last activity was {{.LastSeen}}. You have done {{.Total}} actions so far.
{{if .Joined}}Channels you already joined: {{.Joined}}. Do not join them again.
{{end}}Your most recent actions:
{{range .RecentLines}}- {{.}}
{{end}}{{else}}
This is a brand new account opening Telegram for the first time. Start gently.
{{end}}
{{if .Chats}}Channels and groups that match your interests:
{{range .Chats}}- {{.}}
{{end}}{{end}}
Plan between {{.MinActions}} and {{.MaxActions}} actions for warmup stage {{.Stage}}.
Join at most {{.MaxJoins}} channels. Use only these action types:
{{range .Schemas}}{{.}}
{{end}}`))

// BuildPrompt assembles the plan request. It is pure: the same input always
// yields the same prompt.
func BuildPrompt(in PromptInput) (Prompt, error) {
	view := promptView{
		Persona:    in.Persona,
		Stage:      in.Policy.Stage,
		MinActions: in.Policy.MinActions,
		MaxActions: in.Policy.MaxActions,
		MaxJoins:   in.Policy.MaxChannelJoins,
		Weekday:    in.Now.Weekday().String(),
		TimeOfDay:  timeOfDay(in.Now),
	}
	if in.Persona != nil {
		view.Interests = strings.Join(in.Persona.Interests, ", ")
	}
	for _, t := range in.Policy.AllowedActions {
		view.Schemas = append(view.Schemas, actionSchemas[t])
	}

	if len(in.Recent) > 0 {
		summary := SummarizeHistory(in.Recent, in.TotalActions, len(in.Recent))
		view.Returning = true
		view.LastSeen = HumanizeSince(in.Now.Sub(*summary.LastActivity))
		view.Total = summary.TotalActions
		view.Joined = strings.Join(summary.JoinedChannels, ", ")
		for _, e := range in.Recent {
			view.RecentLines = append(view.RecentLines, describeEntry(e, in.Now))
		}
	}

	joined := map[string]bool{}
	for _, c := range JoinedChannels(in.Recent) {
		joined[strings.ToLower(c)] = true
	}
	for _, c := range in.Chats {
		if joined[strings.ToLower(c.Identifier)] {
			continue
		}
		line := c.Identifier
		if c.Title != "" {
			line += " (" + c.Title + ")"
		}
		view.Chats = append(view.Chats, line)
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, view); err != nil {
		return Prompt{}, fmt.Errorf("failed to render plan prompt: %w", err)
	}

	return Prompt{
		System:      planSystemPrompt,
		User:        buf.String(),
		Constraints: in.Policy,
	}, nil
}

func describeEntry(e models.HistoryEntry, now time.Time) string {
	target := ""
	for _, key := range []string{"channel_username", "bot_username", "username", "group_name"} {
		if v, ok := e.ActionParams[key].(string); ok && v != "" {
			target = " " + v
			break
		}
	}
	return fmt.Sprintf("%s%s (%s)", e.ActionType, target, HumanizeSince(now.Sub(e.Timestamp)))
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
