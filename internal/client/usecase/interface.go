package usecase

import (
	"context"
	"time"

	"github.com/Alwanly/lunch-match-sync/internal/models"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseMatching Phase = "matching"
	PhaseChatting Phase = "chatting"
)

// Listener receives the watch flow's notifications. Methods are called from
// polling goroutines and must not block for long.
type Listener interface {
	MatchFound(state models.MatchState)
	NewMessages(matchID int64, messages []models.Message)
	MatchCanceled(matchID int64)
	PollError(poller string, err error)
}

type Status struct {
	Phase        Phase     `json:"phase"`
	MatchID      int64     `json:"match_id,omitempty"`
	MatchPolling bool      `json:"match_polling"`
	ChatPolling  bool      `json:"chat_polling"`
	LastMatch    time.Time `json:"last_match_poll,omitempty"`
	LastChat     time.Time `json:"last_chat_poll,omitempty"`
	MessageCount int       `json:"message_count"`
	LastError    string    `json:"last_error,omitempty"`
}

// IUseCase defines the watch flow: poll for a match, then poll its chat until
// the match ends, then poll for a match again.
type IUseCase interface {
	// StartPolling starts the watch flow; it runs until ctx is done or StopPolling is called
	StartPolling(ctx context.Context) error
	// StopPolling stops every poller
	StopPolling() error
	// GetStatus returns the watch flow state
	GetStatus() Status
	// Nudge fetches the resource an event refers to right away
	Nudge(ctx context.Context, ev models.Event)
}
