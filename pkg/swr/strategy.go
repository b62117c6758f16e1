package swr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
)

// Kind selects how a poller refreshes its data.
type Kind string

const (
	// KindNone polls with a plain session and no cache.
	KindNone Kind = "none"
	// KindBridge runs a session whose every tick revalidates the cache entry.
	KindBridge Kind = "bridge"
	// KindDelegated hands the cadence to the store's refresh interval.
	KindDelegated Kind = "delegated"
)

// ParseKind accepts "none", "bridge" or "delegated"; empty means none.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindNone:
		return KindNone, nil
	case KindBridge, KindDelegated:
		return k, nil
	default:
		return "", fmt.Errorf("swr: unknown cache strategy %q", s)
	}
}

// Bridge returns a fetch function that routes fetch through store under key:
// each call marks the entry stale and revalidates it, so concurrent readers of
// the same key share the request and subscribers see the result.
func Bridge[T any](store *Store[T], key string, fetch poll.FetchFunc[T]) poll.FetchFunc[T] {
	store.Register(key, fetch)
	return func(ctx context.Context) (T, error) {
		store.MarkStale(key)
		return store.Revalidate(ctx, key)
	}
}

// Params describes a poller independent of its refresh strategy.
type Params[T any] struct {
	Kind   Kind
	Name   string
	Config poll.Config
	Fetch  poll.FetchFunc[T]
	// Store and Key are required for KindBridge and KindDelegated
	Store         *Store[T]
	Key           string
	Logger        *logger.CanonicalLogger
	Visibility    poll.VisibilitySource
	StopCondition poll.StopCondition[T]
	OnSuccess     func(T)
	OnError       func(error)
}

// New builds the poller for p.Kind. Domain callbacks behave the same under every kind.
func New[T any](p Params[T]) (poll.Poller[T], error) {
	switch p.Kind {
	case "", KindNone:
		return newSession(p, p.Fetch)
	case KindBridge:
		if p.Store == nil || p.Key == "" {
			return nil, fmt.Errorf("swr: %s strategy needs a store and key", p.Kind)
		}
		if p.Fetch == nil {
			return nil, poll.ErrNilFetch
		}
		return newSession(p, Bridge(p.Store, p.Key, p.Fetch))
	case KindDelegated:
		return NewDelegated(p)
	default:
		return nil, fmt.Errorf("swr: unknown cache strategy %q", p.Kind)
	}
}

func newSession[T any](p Params[T], fetch poll.FetchFunc[T]) (*poll.Session[T], error) {
	opts := []poll.Option[T]{
		poll.WithName[T](p.Name),
		poll.WithLogger[T](p.Logger),
		poll.WithVisibility[T](p.Visibility),
	}
	if p.StopCondition != nil {
		opts = append(opts, poll.WithStopCondition(p.StopCondition))
	}
	if p.OnSuccess != nil {
		opts = append(opts, poll.OnSuccess(p.OnSuccess))
	}
	if p.OnError != nil {
		opts = append(opts, poll.OnError[T](p.OnError))
	}
	return poll.NewSession(fetch, p.Config, opts...)
}

// Delegated polls by toggling the store's refresh interval for one key
// between Config.Interval and zero. It runs no timer of its own.
type Delegated[T any] struct {
	name          string
	key           string
	cfg           poll.Config
	store         *Store[T]
	stopCondition poll.StopCondition[T]
	onSuccess     func(T)
	onError       func(error)
	log           *logger.CanonicalLogger

	mu          sync.Mutex
	polling     bool
	paused      bool
	closed      bool
	epoch       uint64
	unsubscribe []func()
}

var _ poll.Poller[int] = (*Delegated[int])(nil)

// NewDelegated registers p.Fetch for p.Key and wires visibility and the stop
// condition. It starts polling right away when p.Config.Enabled is set.
func NewDelegated[T any](p Params[T]) (*Delegated[T], error) {
	if p.Store == nil || p.Key == "" {
		return nil, fmt.Errorf("swr: %s strategy needs a store and key", KindDelegated)
	}
	if p.Fetch == nil {
		return nil, poll.ErrNilFetch
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}

	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}
	name := p.Name
	if name == "" {
		name = "poller"
	}

	d := &Delegated[T]{
		name:          name,
		key:           p.Key,
		cfg:           p.Config,
		store:         p.Store,
		stopCondition: p.StopCondition,
		onSuccess:     p.OnSuccess,
		onError:       p.OnError,
		log:           log.With(logger.String(logger.FieldPollName, name), logger.String("key", p.Key)),
	}

	p.Store.Register(p.Key, p.Fetch)
	d.unsubscribe = append(d.unsubscribe, p.Store.Subscribe(p.Key, d.onEntry))

	if p.Config.DetectVisibility {
		src := p.Visibility
		if src == nil {
			src = poll.AlwaysVisible{}
		}
		d.paused = !src.Visible()
		d.unsubscribe = append(d.unsubscribe, src.Subscribe(d.onVisibility))
	}

	if p.Config.Enabled {
		if err := d.Start(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Delegated[T]) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return poll.ErrSessionClosed
	}
	if d.polling {
		return nil
	}
	d.polling = true
	poll.ActiveSessions.WithLabelValues(d.name).Inc()
	if !d.paused {
		d.activateLocked(d.cfg.Immediate)
	}

	d.log.Info("polling started",
		logger.Duration("interval", d.cfg.Interval),
		logger.Bool("delegated", true),
		logger.Bool("paused", d.paused),
	)
	return nil
}

func (d *Delegated[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.polling {
		return
	}
	d.polling = false
	d.epoch++
	d.store.SetRefreshInterval(d.key, 0)
	poll.ActiveSessions.WithLabelValues(d.name).Dec()
	d.log.Info("polling stopped")
}

func (d *Delegated[T]) IsPolling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polling
}

// LastPolled is the time the cached entry last received fresh data.
func (d *Delegated[T]) LastPolled() time.Time {
	e, _ := d.store.Get(d.key)
	return e.UpdatedAt
}

// Execute revalidates the key now, sharing any revalidation already running.
func (d *Delegated[T]) Execute(ctx context.Context) (T, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		var zero T
		return zero, poll.ErrSessionClosed
	}
	return d.store.Revalidate(ctx, d.key)
}

func (d *Delegated[T]) Data() (T, bool) {
	e, _ := d.store.Get(d.key)
	return e.Data, e.HasData
}

func (d *Delegated[T]) Err() error {
	e, _ := d.store.Get(d.key)
	return e.Err
}

// Close stops polling and detaches from the store and visibility source.
func (d *Delegated[T]) Close() {
	d.Stop()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

// activateLocked turns the refresh on. With immediate set, the key is
// revalidated first and the interval is armed once that settles, so the next
// refresh is a full interval after the previous fetch ended.
func (d *Delegated[T]) activateLocked(immediate bool) {
	d.epoch++
	if !immediate {
		d.store.SetRefreshInterval(d.key, d.cfg.Interval)
		return
	}

	epoch := d.epoch
	go func() {
		_, _ = d.store.Revalidate(context.Background(), d.key)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.epoch != epoch || !d.polling || d.paused || d.closed {
			return
		}
		d.store.SetRefreshInterval(d.key, d.cfg.Interval)
	}()
}

func (d *Delegated[T]) onVisibility(visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.paused == !visible {
		return
	}
	d.paused = !visible

	if !visible {
		d.epoch++
		d.store.SetRefreshInterval(d.key, 0)
		d.log.Info("polling paused", logger.Bool(logger.FieldVisible, false))
		return
	}
	if d.polling {
		d.activateLocked(true)
		d.log.Info("polling resumed", logger.Bool(logger.FieldVisible, true))
	}
}

func (d *Delegated[T]) onEntry(e Entry[T]) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed || e.Validating {
		return
	}

	if e.Err != nil {
		if d.onError != nil {
			d.onError(e.Err)
		}
		return
	}
	if !e.HasData {
		return
	}
	if d.onSuccess != nil {
		d.onSuccess(e.Data)
	}
	if d.stopCondition != nil && d.stopCondition(e.Data) {
		d.log.Info("stop condition met")
		d.Stop()
	}
}
