package repository

import (
	"context"

	"github.com/Alwanly/lunch-match-sync/internal/models"
)

// IClient defines the interface for communicating with the lunch API
type IClient interface {
	// GetCurrentMatch retrieves the caller's active match, if any
	GetCurrentMatch(ctx context.Context) (*models.MatchState, error)
	// GetMessages retrieves the full message history of a match
	GetMessages(ctx context.Context, matchID int64) ([]models.Message, error)
	// SendMessage posts a message to a match
	SendMessage(ctx context.Context, matchID int64, body string) (*models.Message, error)
	// CancelMatch ends the caller's active match
	CancelMatch(ctx context.Context) error
}
