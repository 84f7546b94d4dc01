package models

import "time"

// ChatKind distinguishes broadcast channels from groups.
type ChatKind string

const (
	ChatKindChannel ChatKind = "channel"
	ChatKindGroup   ChatKind = "group"
)

// DiscoveredChat is a channel or group found relevant to an account's persona.
type DiscoveredChat struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	Identifier     string    `json:"identifier"`
	Kind           ChatKind  `json:"kind"`
	Title          string    `json:"title,omitempty"`
	RelevanceScore float64   `json:"relevance_score"`
	SourceQuery    string    `json:"source_query,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
