package poller

import (
	"context"

	"github.com/Alwanly/lunch-match-sync/internal/client/repository"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/retry"
)

// MatchClient is the part of the API client the match poller needs.
type MatchClient interface {
	GetCurrentMatch(ctx context.Context) (*models.MatchState, error)
}

// ChatClient is the part of the API client the chat poller needs.
type ChatClient interface {
	MatchClient
	GetMessages(ctx context.Context, matchID int64) ([]models.Message, error)
}

// withRetry retries transient failures within one tick. Client errors such as
// 401 or 404 surface immediately since retrying them cannot help.
func withRetry[T any](cfg *retry.Config, fetch poll.FetchFunc[T]) poll.FetchFunc[T] {
	if cfg == nil || cfg.MaxRetries == 0 {
		return fetch
	}
	return poll.WithRetry(*cfg, func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if repository.IsClientError(err) {
			return v, retry.Permanent(err)
		}
		return v, err
	})
}
