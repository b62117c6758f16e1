package poll

import (
	"context"

	"github.com/Alwanly/lunch-match-sync/pkg/retry"
)

// WithRetry wraps fetch so that a single tick retries with exponential
// backoff before reporting failure to the session.
func WithRetry[T any](cfg retry.Config, fetch FetchFunc[T]) FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		var result T
		err := retry.WithExponentialBackoff(ctx, cfg, func(ctx context.Context) error {
			data, err := fetch(ctx)
			if err != nil {
				return err
			}
			result = data
			return nil
		})
		return result, err
	}
}
