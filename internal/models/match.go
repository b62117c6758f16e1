package models

import "time"

const (
	MatchStatusActive   = "active"
	MatchStatusCanceled = "canceled"
)

type Match struct {
	ID         int64      `gorm:"primaryKey;autoIncrement;column:id"`
	UserAID    string     `gorm:"column:user_a_id;index;not null"`
	UserBID    string     `gorm:"column:user_b_id;index;not null"`
	Status     string     `gorm:"column:status;index;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	CanceledAt *time.Time `gorm:"column:canceled_at"`
}

func (Match) TableName() string {
	return "matches"
}

// PartnerOf returns the other participant, or "" when userID is not in the match.
func (m Match) PartnerOf(userID string) string {
	switch userID {
	case m.UserAID:
		return m.UserBID
	case m.UserBID:
		return m.UserAID
	}
	return ""
}

type Message struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	MatchID   int64     `gorm:"column:match_id;index;not null" json:"match_id"`
	SenderID  string    `gorm:"column:sender_id;not null" json:"sender_id"`
	Body      string    `gorm:"column:body;not null" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

type Partner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MatchState is the current-match resource as served to pollers.
type MatchState struct {
	Matched   bool       `json:"matched"`
	MatchID   *int64     `json:"match_id"`
	Partner   *Partner   `json:"partner,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ID returns the match id and whether one is set.
func (s MatchState) ID() (int64, bool) {
	if s.MatchID == nil {
		return 0, false
	}
	return *s.MatchID, true
}
