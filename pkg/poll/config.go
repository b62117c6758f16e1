package poll

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInterval is returned when a session is configured with a non-positive interval.
	ErrInvalidInterval = errors.New("poll: interval must be positive")
	// ErrNilFetch is returned when a session is created without a fetch function.
	ErrNilFetch = errors.New("poll: fetch function is required")
	// ErrSessionClosed is returned when a closed session is asked to start or fetch.
	ErrSessionClosed = errors.New("poll: session closed")
)

// Config holds configuration for a polling session
type Config struct {
	// Interval between the end of one fetch and the start of the next
	Interval time.Duration
	// Enabled starts the session as soon as it is created
	Enabled bool
	// Immediate fetches on activation instead of waiting one interval
	Immediate bool
	// DetectVisibility pauses ticking while the host is in the background
	DetectVisibility bool
	// ShowError exposes the last error as VisibleError on the session state
	ShowError bool
	// ErrorAutoHideTimeout clears VisibleError after this long; zero keeps it until the next fetch
	ErrorAutoHideTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:             3 * time.Second,
		Enabled:              true,
		Immediate:            true,
		DetectVisibility:     true,
		ShowError:            true,
		ErrorAutoHideTimeout: 5 * time.Second,
	}
}

// Validate rejects configurations that can never poll.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, c.Interval)
	}
	if c.ErrorAutoHideTimeout < 0 {
		return fmt.Errorf("poll: error auto-hide timeout must not be negative: got %s", c.ErrorAutoHideTimeout)
	}
	return nil
}
