package gateway

import (
	"encoding/json"
	"time"
)

// RPCRequest is the envelope every gateway RPC endpoint accepts.
type RPCRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// RPCResponse is the envelope the gateway answers with.
type RPCResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Reaction is one reaction counter on a message. Depending on the gateway
// version the symbol arrives as "emoji" or "emoticon".
type Reaction struct {
	Emoji    string `json:"emoji,omitempty"`
	Emoticon string `json:"emoticon,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// Symbol returns whichever of Emoji or Emoticon is set.
func (r Reaction) Symbol() string {
	if r.Emoji != "" {
		return r.Emoji
	}
	return r.Emoticon
}

// Message is a chat message as returned by get_chat_messages.
type Message struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text,omitempty"`
	Date      int64      `json:"date,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// ProfileUpdate holds the fields of account.updateProfile. Empty fields are
// left unchanged.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	About     string
}

// SessionInfo is the gateway's record of a session.
type SessionInfo struct {
	ID        string     `json:"id"`
	IsPremium bool       `json:"is_premium"`
	Frozen    bool       `json:"frozen"`
	Deleted   bool       `json:"deleted"`
	Spamblock bool       `json:"spamblock"`
	UnbanDate *time.Time `json:"unban_date,omitempty"`
}
