package domain

import "time"

// Template is versioned message content keyed by (channel, campaign week).
// Templates are managed externally and read-only to the engine; at most one
// template per key is active at a time.
type Template struct {
	ID           string    `json:"id" db:"id"`
	Channel      Channel   `json:"channel" db:"channel"`
	CampaignWeek int       `json:"campaign_week" db:"campaign_week"`
	SubjectLine  string    `json:"subject_line" db:"subject_line"`
	Body         string    `json:"body" db:"body"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
