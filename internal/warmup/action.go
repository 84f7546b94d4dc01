package warmup

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// Action is one planned step. Each action type has its own concrete struct.
type Action interface {
	Type() models.ActionType
	// Params is the JSON-ready parameter set stored in history and run plans.
	Params() map[string]any
	validate() error
}

// ErrUnknownAction is returned when a plan entry names no known action type.
var ErrUnknownAction = errors.New("unknown action type")

// Concrete action types.
type JoinChannel struct {
	Channel string `json:"channel_username"`
}

type ReadMessages struct {
	Channel         string  `json:"channel_username"`
	DurationSeconds Seconds `json:"duration_seconds,omitempty"`
}

type Idle struct {
	DurationSeconds Seconds `json:"duration_seconds,omitempty"`
}

// ReactToMessage carries no emoji: the executor only reuses reactions
// already present in the channel.
type ReactToMessage struct {
	Channel string `json:"channel_username"`
}

type MessageBot struct {
	Bot     string `json:"bot_username"`
	Message string `json:"message,omitempty"`
}

type ViewProfile struct {
	Channel         string  `json:"channel_username"`
	DurationSeconds Seconds `json:"duration_seconds,omitempty"`
}

type UpdateProfile struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

type StartConversation struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type CreateGroup struct {
	GroupName string `json:"group_name"`
}

type ForwardMessage struct {
	FromChat string `json:"from_chat"`
	ToChat   string `json:"to_chat"`
}

func (JoinChannel) Type() models.ActionType       { return models.ActionJoinChannel }
func (ReadMessages) Type() models.ActionType      { return models.ActionReadMessages }
func (Idle) Type() models.ActionType              { return models.ActionIdle }
func (ReactToMessage) Type() models.ActionType    { return models.ActionReactToMessage }
func (MessageBot) Type() models.ActionType        { return models.ActionMessageBot }
func (ViewProfile) Type() models.ActionType       { return models.ActionViewProfile }
func (UpdateProfile) Type() models.ActionType     { return models.ActionUpdateProfile }
func (StartConversation) Type() models.ActionType { return models.ActionStartConversation }
func (CreateGroup) Type() models.ActionType       { return models.ActionCreateGroup }
func (ForwardMessage) Type() models.ActionType    { return models.ActionForwardMessage }

func (a JoinChannel) Params() map[string]any {
	return map[string]any{"channel_username": a.Channel}
}

func (a ReadMessages) Params() map[string]any {
	return map[string]any{"channel_username": a.Channel, "duration_seconds": int(a.DurationSeconds)}
}

func (a Idle) Params() map[string]any {
	return map[string]any{"duration_seconds": int(a.DurationSeconds)}
}

func (a ReactToMessage) Params() map[string]any {
	return map[string]any{"channel_username": a.Channel}
}

func (a MessageBot) Params() map[string]any {
	return map[string]any{"bot_username": a.Bot, "message": a.Message}
}

func (a ViewProfile) Params() map[string]any {
	return map[string]any{"channel_username": a.Channel, "duration_seconds": int(a.DurationSeconds)}
}

func (a UpdateProfile) Params() map[string]any {
	params := map[string]any{}
	if a.FirstName != "" {
		params["first_name"] = a.FirstName
	}
	if a.LastName != "" {
		params["last_name"] = a.LastName
	}
	if a.Bio != "" {
		params["bio"] = a.Bio
	}
	return params
}

func (a StartConversation) Params() map[string]any {
	return map[string]any{"username": a.Username, "message": a.Message}
}

func (a CreateGroup) Params() map[string]any {
	return map[string]any{"group_name": a.GroupName}
}

func (a ForwardMessage) Params() map[string]any {
	return map[string]any{"from_chat": a.FromChat, "to_chat": a.ToChat}
}

func (a *JoinChannel) validate() error    { return requireChat(&a.Channel, "channel_username") }
func (a *ReadMessages) validate() error   { return requireChat(&a.Channel, "channel_username") }
func (a *Idle) validate() error           { return nil }
func (a *ReactToMessage) validate() error { return requireChat(&a.Channel, "channel_username") }
func (a *ViewProfile) validate() error    { return requireChat(&a.Channel, "channel_username") }

func (a *MessageBot) validate() error {
	if err := requireChat(&a.Bot, "bot_username"); err != nil {
		return err
	}
	a.Message = strings.TrimSpace(a.Message)
	if a.Message == "" {
		a.Message = "/start"
	}
	return nil
}

func (a *UpdateProfile) validate() error {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Bio = strings.TrimSpace(a.Bio)
	if a.FirstName == "" && a.LastName == "" && a.Bio == "" {
		return errors.New("update_profile needs first_name, last_name or bio")
	}
	return nil
}

func (a *StartConversation) validate() error {
	if err := requireChat(&a.Username, "username"); err != nil {
		return err
	}
	a.Message = strings.TrimSpace(a.Message)
	if a.Message == "" {
		return errors.New("start_conversation needs message")
	}
	return nil
}

func (a *CreateGroup) validate() error {
	a.GroupName = strings.TrimSpace(a.GroupName)
	if a.GroupName == "" {
		return errors.New("create_group needs group_name")
	}
	return nil
}

func (a *ForwardMessage) validate() error {
	if err := requireChat(&a.FromChat, "from_chat"); err != nil {
		return err
	}
	return requireChat(&a.ToChat, "to_chat")
}

// Seconds is a duration in whole seconds. It decodes from JSON numbers,
// including fractional ones, and from numeric strings.
type Seconds int

func (s *Seconds) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*s = Seconds(math.Round(f))
	return nil
}

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

// requireChat normalizes a username or t.me link to "@name" form.
func requireChat(field *string, name string) error {
	v := strings.TrimSpace(*field)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		v = strings.TrimPrefix(v, prefix)
	}
	v = strings.TrimSuffix(strings.TrimPrefix(v, "@"), "/")
	if v == "" || strings.ContainsAny(v, " /") {
		return fmt.Errorf("missing or invalid %s", name)
	}
	*field = "@" + v
	return nil
}

// decodeAction reads the type tag of one raw plan entry and decodes it into
// the matching concrete action. The tag may be spelled "type", "action" or
// "action_type".
func decodeAction(raw json.RawMessage) (Action, error) {
	var tag struct {
		Type       string `json:"type"`
		Action     string `json:"action"`
		ActionType string `json:"action_type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("malformed action: %w", err)
	}
	name := tag.Type
	if name == "" {
		name = tag.Action
	}
	if name == "" {
		name = tag.ActionType
	}

	var target Action
	switch models.ActionType(strings.ToLower(strings.TrimSpace(name))) {
	case models.ActionJoinChannel:
		target = &JoinChannel{}
	case models.ActionReadMessages:
		target = &ReadMessages{}
	case models.ActionIdle:
		target = &Idle{}
	case models.ActionReactToMessage:
		target = &ReactToMessage{}
	case models.ActionMessageBot:
		target = &MessageBot{}
	case models.ActionViewProfile:
		target = &ViewProfile{}
	case models.ActionUpdateProfile:
		target = &UpdateProfile{}
	case models.ActionStartConversation:
		target = &StartConversation{}
	case models.ActionCreateGroup:
		target = &CreateGroup{}
	case models.ActionForwardMessage:
		target = &ForwardMessage{}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, name)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("malformed %s action: %w", name, err)
	}
	if err := target.validate(); err != nil {
		return nil, err
	}
	return target, nil
}
