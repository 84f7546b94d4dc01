package models

import "time"

// Persona is the synthetic identity generated once per account.
type Persona struct {
	ID                 int64     `json:"id"`
	AccountID          int64     `json:"account_id"`
	Name               string    `json:"name"`
	Age                int       `json:"age"`
	Gender             string    `json:"gender,omitempty"`
	Occupation         string    `json:"occupation,omitempty"`
	City               string    `json:"city,omitempty"`
	Country            string    `json:"country,omitempty"`
	Interests          []string  `json:"interests"`
	CommunicationStyle string    `json:"communication_style,omitempty"`
	ActivityLevel      string    `json:"activity_level,omitempty"`
	Description        string    `json:"description,omitempty"`
	BackgroundStory    string    `json:"background_story,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
