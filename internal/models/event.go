package models

import "time"

const (
	EventMatchFound    = "match_found"
	EventMatchCanceled = "match_canceled"
	EventNewMessage    = "new_message"
)

// Event is published on the events channel whenever match or chat state changes
// for a user. Subscribers treat it as a hint to fetch, never as the state itself.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"user_id"`
	MatchID int64     `json:"match_id,omitempty"`
	At      time.Time `json:"at"`
}
