package poll

import (
	"context"
	"time"
)

// FetchFunc fetches the latest value for a session.
// It is responsible for its own timeout; the context is canceled when the session is closed.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// StopCondition reports whether a freshly fetched value should end polling.
type StopCondition[T any] func(data T) bool

// Strategy is the control surface shared by every polling implementation,
// whether it runs its own timer or delegates refresh to a cache store.
type Strategy interface {
	// Start activates polling; it is a no-op when already polling
	Start() error
	// Stop deactivates polling and cancels any pending tick; it is idempotent
	Stop()
	// IsPolling reports whether polling is active
	IsPolling() bool
	// LastPolled returns the time of the last successful fetch, zero if none
	LastPolled() time.Time
}

// Poller is a Strategy that also exposes its result and a manual trigger.
// Domain pollers are built against Poller so the strategy can be picked at construction.
type Poller[T any] interface {
	Strategy
	Execute(ctx context.Context) (T, error)
	Data() (T, bool)
	Err() error
	Close()
}
