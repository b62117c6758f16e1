package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Alwanly/lunch-match-sync/pkg/logger"
)

const flightKey = "fetch"

// State is a snapshot of a session's result and lifecycle flags.
type State[T any] struct {
	Data    T
	HasData bool
	// Error is the last fetch failure; it is cleared when the next fetch starts
	Error error
	// VisibleError is Error as the consumer layer should display it (see Config.ShowError)
	VisibleError error
	IsLoading    bool
	IsPolling    bool
	// Paused is true while the host is hidden; IsPolling keeps its value
	Paused      bool
	LastUpdated time.Time
	Attempts    int
}

// Option configures a Session.
type Option[T any] func(*Session[T])

// WithName labels the session in logs and metrics.
func WithName[T any](name string) Option[T] {
	return func(s *Session[T]) {
		if name != "" {
			s.name = name
		}
	}
}

func WithLogger[T any](log *logger.CanonicalLogger) Option[T] {
	return func(s *Session[T]) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithVisibility sets the source consulted when Config.DetectVisibility is on.
func WithVisibility[T any](src VisibilitySource) Option[T] {
	return func(s *Session[T]) {
		if src != nil {
			s.visibility = src
		}
	}
}

// WithStopCondition stops the session after any successful fetch for which cond returns true.
func WithStopCondition[T any](cond StopCondition[T]) Option[T] {
	return func(s *Session[T]) {
		s.stopCondition = cond
	}
}

// OnSuccess is called after every successful fetch of a live session.
// Callbacks run on the fetching goroutine and must not call Execute synchronously.
func OnSuccess[T any](fn func(data T)) Option[T] {
	return func(s *Session[T]) {
		s.onSuccess = fn
	}
}

// OnError is called after every failed fetch of a live session.
func OnError[T any](fn func(err error)) Option[T] {
	return func(s *Session[T]) {
		s.onError = fn
	}
}

// Session owns one fetch function, its latest result and the timer that
// re-runs it. At most one fetch is in flight at any time: scheduled ticks and
// Execute calls that arrive during a fetch join it instead of starting another.
type Session[T any] struct {
	id            string
	name          string
	cfg           Config
	fetch         FetchFunc[T]
	stopCondition StopCondition[T]
	onSuccess     func(T)
	onError       func(error)
	visibility    VisibilitySource
	logger        *logger.CanonicalLogger

	ctx         context.Context
	cancel      context.CancelFunc
	timer       *Timer
	flight      singleflight.Group
	inFlight    atomic.Bool
	unsubscribe func()

	mu        sync.RWMutex
	state     State[T]
	closed    bool
	errSeq    uint64
	hideTimer *time.Timer
}

var _ Poller[int] = (*Session[int])(nil)

// NewSession validates cfg and creates a session. When cfg.Enabled is set the
// session starts polling before NewSession returns.
func NewSession[T any](fetch FetchFunc[T], cfg Config, opts ...Option[T]) (*Session[T], error) {
	if fetch == nil {
		return nil, ErrNilFetch
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session[T]{
		id:         uuid.NewString(),
		name:       "poller",
		cfg:        cfg,
		fetch:      fetch,
		visibility: AlwaysVisible{},
		logger:     logger.NewNop(),
		timer:      NewTimer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithSession(s.id).With(logger.String(logger.FieldPollName, s.name))
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if cfg.DetectVisibility {
		s.state.Paused = !s.visibility.Visible()
		s.unsubscribe = s.visibility.Subscribe(s.onVisibility)
	}

	if cfg.Enabled {
		if err := s.Start(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start begins polling. It is a no-op when the session is already polling.
// While the host is hidden the session is marked as polling but does not tick
// until it becomes visible again.
func (s *Session[T]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state.IsPolling {
		return nil
	}
	s.state.IsPolling = true
	ActiveSessions.WithLabelValues(s.name).Inc()

	if !s.state.Paused {
		s.activateLocked(s.cfg.Immediate)
	}

	s.logger.Info("polling started",
		logger.Duration("interval", s.cfg.Interval),
		logger.Bool("immediate", s.cfg.Immediate),
		logger.Bool("paused", s.state.Paused),
	)
	return nil
}

// Stop ends polling and cancels the pending tick. A fetch already in flight
// completes and its result is still applied.
func (s *Session[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsPolling {
		return
	}
	s.state.IsPolling = false
	s.timer.Cancel()
	ActiveSessions.WithLabelValues(s.name).Dec()

	s.logger.Info("polling stopped", logger.Int(logger.FieldAttempts, s.state.Attempts))
}

// Close stops the session for good. Results of fetches still in flight are
// discarded, and the fetch context is canceled.
func (s *Session[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.state.IsPolling {
		ActiveSessions.WithLabelValues(s.name).Dec()
	}
	s.state.IsPolling = false
	s.state.IsLoading = false
	s.timer.Cancel()
	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()

	s.logger.Info("session closed")
}

// Execute fetches now, independent of the timer cadence, and returns the
// result. If a fetch is already in flight the call waits for that one instead.
// ctx only bounds the wait; the fetch itself runs on the session context.
func (s *Session[T]) Execute(ctx context.Context) (T, error) {
	if s.inFlight.Load() {
		CoalescedTotal.WithLabelValues(s.name).Inc()
		s.logger.Debug("joining fetch in flight", logger.Bool(logger.FieldCoalesced, true))
	}

	ch := s.flight.DoChan(flightKey, func() (interface{}, error) {
		s.inFlight.Store(true)
		defer s.inFlight.Store(false)
		return s.fetchOnce()
	})

	select {
	case res := <-ch:
		data, _ := res.Val.(T)
		return data, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Session[T]) tick() {
	_, _ = s.Execute(s.ctx)
}

func (s *Session[T]) fetchOnce() (T, error) {
	var zero T

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrSessionClosed
	}
	s.state.IsLoading = true
	s.state.Error = nil
	s.mu.Unlock()

	start := time.Now()
	data, err := s.fetch(s.ctx)
	elapsed := time.Since(start)
	FetchDuration.WithLabelValues(s.name).Observe(elapsed.Seconds())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		FetchTotal.WithLabelValues(s.name, resultDiscarded).Inc()
		s.logger.Debug("discarding result of closed session")
		return zero, ErrSessionClosed
	}
	s.state.IsLoading = false
	s.state.Attempts++
	attempts := s.state.Attempts

	if err != nil {
		s.state.Error = err
		s.raiseVisibleErrorLocked(err)
		onError := s.onError
		s.mu.Unlock()

		FetchTotal.WithLabelValues(s.name, resultError).Inc()
		s.logger.Error("fetch failed",
			logger.Err(err),
			logger.Int(logger.FieldAttempts, attempts),
			logger.Int64(logger.FieldFetchDuration, elapsed.Milliseconds()),
		)
		if onError != nil {
			onError(err)
		}
		return zero, err
	}

	s.state.Data = data
	s.state.HasData = true
	s.state.LastUpdated = time.Now()
	s.clearVisibleErrorLocked()
	onSuccess := s.onSuccess
	stopCondition := s.stopCondition
	s.mu.Unlock()

	FetchTotal.WithLabelValues(s.name, resultSuccess).Inc()
	s.logger.Debug("fetch succeeded",
		logger.Int(logger.FieldAttempts, attempts),
		logger.Int64(logger.FieldFetchDuration, elapsed.Milliseconds()),
	)

	if onSuccess != nil {
		onSuccess(data)
	}
	if stopCondition != nil && stopCondition(data) {
		s.logger.Info("stop condition met")
		s.Stop()
	}
	return data, nil
}

// activateLocked starts ticking. With immediate set, one fetch is dispatched
// right away and the cadence starts once it settles; that fetch runs even if
// Stop is called in the meantime.
func (s *Session[T]) activateLocked(immediate bool) {
	if !immediate {
		s.timer.Schedule(s.cfg.Interval, s.tick)
		return
	}

	go func() {
		s.tick()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state.IsPolling && !s.state.Paused && !s.closed {
			s.timer.Schedule(s.cfg.Interval, s.tick)
		}
	}()
}

func (s *Session[T]) onVisibility(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state.Paused == !visible {
		return
	}
	s.state.Paused = !visible

	if !visible {
		s.timer.Cancel()
		s.logger.Info("polling paused", logger.Bool(logger.FieldVisible, false))
		return
	}
	if s.state.IsPolling {
		s.activateLocked(true)
		s.logger.Info("polling resumed", logger.Bool(logger.FieldVisible, true))
	}
}

func (s *Session[T]) raiseVisibleErrorLocked(err error) {
	if !s.cfg.ShowError {
		return
	}
	s.errSeq++
	seq := s.errSeq
	s.state.VisibleError = err

	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
	if s.cfg.ErrorAutoHideTimeout > 0 {
		s.hideTimer = time.AfterFunc(s.cfg.ErrorAutoHideTimeout, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.errSeq == seq {
				s.state.VisibleError = nil
			}
		})
	}
}

func (s *Session[T]) clearVisibleErrorLocked() {
	s.errSeq++
	s.state.VisibleError = nil
	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
}

// State returns a snapshot of the session.
func (s *Session[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Data returns the last successfully fetched value.
func (s *Session[T]) Data() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Data, s.state.HasData
}

func (s *Session[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}

func (s *Session[T]) IsPolling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsPolling
}

func (s *Session[T]) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsLoading
}

func (s *Session[T]) LastPolled() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastUpdated
}

func (s *Session[T]) ID() string { return s.id }

func (s *Session[T]) Name() string { return s.name }

func (s *Session[T]) Config() Config { return s.cfg }
