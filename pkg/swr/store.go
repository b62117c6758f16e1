package swr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
)

var (
	// ErrUnknownKey is returned when a key is revalidated before a fetcher was registered for it.
	ErrUnknownKey = errors.New("swr: no fetcher registered for key")
	// ErrStoreClosed is returned by a closed store.
	ErrStoreClosed = errors.New("swr: store closed")
)

// Entry is the cached state of one key.
type Entry[T any] struct {
	Data    T
	HasData bool
	// Err is the last revalidation failure; Data is kept when it is set
	Err       error
	UpdatedAt time.Time
	// Stale marks data that should be refetched on the next revalidation
	Stale      bool
	Validating bool
}

// Options configures a Store.
type Options struct {
	// Name labels the store in logs and metrics
	Name string
	// Capacity bounds the number of cached keys; zero means unbounded
	Capacity int
	// TTL drops entries not read for this long; zero keeps them until evicted
	TTL    time.Duration
	Logger *logger.CanonicalLogger
}

type refreshLoop struct {
	interval time.Duration
	timer    *poll.Timer
}

// Store is a stale-while-revalidate cache. Concurrent revalidations of the
// same key share one fetch, subscribers see every settled revalidation and
// mutation, and each key can be refreshed on its own interval.
type Store[T any] struct {
	name   string
	cache  *otter.Cache[string, Entry[T]]
	flight singleflight.Group
	log    *logger.CanonicalLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	fetchers map[string]poll.FetchFunc[T]
	subs     map[string]map[uint64]func(Entry[T])
	nextSub  uint64
	refresh  map[string]*refreshLoop
	closed   bool
}

// NewStore creates an empty store.
func NewStore[T any](opts Options) *Store[T] {
	if opts.Name == "" {
		opts.Name = "swr"
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	s := &Store[T]{
		name:     opts.Name,
		log:      log.With(logger.String("store", opts.Name)),
		fetchers: make(map[string]poll.FetchFunc[T]),
		subs:     make(map[string]map[uint64]func(Entry[T])),
		refresh:  make(map[string]*refreshLoop),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cacheOpts := &otter.Options[string, Entry[T]]{
		InitialCapacity: 16,
		OnDeletion: func(e otter.DeletionEvent[string, Entry[T]]) {
			if e.WasEvicted() {
				Evictions.WithLabelValues(s.name).Inc()
				s.log.Debug("entry evicted", logger.String("key", e.Key))
			}
		},
	}
	if opts.Capacity > 0 {
		cacheOpts.MaximumSize = opts.Capacity
	}
	if opts.TTL > 0 {
		cacheOpts.ExpiryCalculator = otter.ExpiryAccessing[string, Entry[T]](opts.TTL)
	}
	s.cache = otter.Must(cacheOpts)

	return s
}

// Register sets the fetcher used to revalidate key, replacing any previous one.
func (s *Store[T]) Register(key string, fetch poll.FetchFunc[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[key] = fetch
}

// Get returns the cached entry for key.
func (s *Store[T]) Get(key string) (Entry[T], bool) {
	return s.cache.GetIfPresent(key)
}

// Snapshot copies every cached entry.
func (s *Store[T]) Snapshot() map[string]Entry[T] {
	out := make(map[string]Entry[T])
	for k, v := range s.cache.All() {
		out[k] = v
	}
	return out
}

// Mutate writes data for key locally, without fetching, and notifies subscribers.
func (s *Store[T]) Mutate(key string, data T) {
	e, subs := s.update(key, func(e *Entry[T]) {
		e.Data = data
		e.HasData = true
		e.Err = nil
		e.UpdatedAt = time.Now()
	})
	notify(subs, e)
}

// MarkStale flags key so the next read knows its data is out of date.
func (s *Store[T]) MarkStale(key string) {
	s.update(key, func(e *Entry[T]) {
		e.Stale = true
	})
}

// Invalidate drops the cached entry for key. Its fetcher and refresh interval are kept.
func (s *Store[T]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Invalidate(key)
}

// Revalidate fetches key with its registered fetcher and stores the result.
// Callers arriving while a revalidation of the same key is running share it.
// ctx bounds only the caller's wait.
func (s *Store[T]) Revalidate(ctx context.Context, key string) (T, error) {
	var zero T

	s.mu.Lock()
	closed := s.closed
	fetch, ok := s.fetchers[key]
	s.mu.Unlock()

	if closed {
		return zero, ErrStoreClosed
	}
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return s.revalidate(key, fetch)
	})

	select {
	case res := <-ch:
		if res.Shared {
			Deduped.WithLabelValues(s.name).Inc()
		}
		data, _ := res.Val.(T)
		return data, res.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Store[T]) revalidate(key string, fetch poll.FetchFunc[T]) (T, error) {
	s.update(key, func(e *Entry[T]) {
		e.Validating = true
		e.Err = nil
	})

	data, err := fetch(s.ctx)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		var zero T
		return zero, ErrStoreClosed
	}

	e, subs := s.update(key, func(e *Entry[T]) {
		e.Validating = false
		if err != nil {
			e.Err = err
			return
		}
		e.Data = data
		e.HasData = true
		e.Err = nil
		e.Stale = false
		e.UpdatedAt = time.Now()
	})

	if err != nil {
		Revalidations.WithLabelValues(s.name, "error").Inc()
		s.log.Warn("revalidation failed", logger.String("key", key), logger.Err(err))
	} else {
		Revalidations.WithLabelValues(s.name, "success").Inc()
	}
	notify(subs, e)

	return data, err
}

// Subscribe registers fn for every settled revalidation or mutation of key.
// fn runs on the goroutine that settled the change.
func (s *Store[T]) Subscribe(key string, fn func(Entry[T])) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]func(Entry[T]))
	}
	s.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
		})
	}
}

// SetRefreshInterval revalidates key every d, measured from the end of the
// previous revalidation. Zero or a negative d turns the refresh off.
func (s *Store[T]) SetRefreshInterval(key string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	r := s.refresh[key]
	if d <= 0 {
		if r != nil {
			r.timer.Cancel()
			delete(s.refresh, key)
			s.log.Debug("refresh disabled", logger.String("key", key))
		}
		return
	}

	if r == nil {
		r = &refreshLoop{timer: poll.NewTimer()}
		s.refresh[key] = r
	}
	if r.interval == d && r.timer.Active() {
		return
	}
	r.timer.Cancel()
	r.interval = d
	r.timer.Schedule(d, func() {
		_, _ = s.Revalidate(s.ctx, key)
	})
	s.log.Debug("refresh enabled", logger.String("key", key), logger.Duration("interval", d))
}

// RefreshInterval returns the active refresh interval for key, zero when off.
func (s *Store[T]) RefreshInterval(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.refresh[key]; ok && r.timer.Active() {
		return r.interval
	}
	return 0
}

// Close stops every refresh loop and cancels fetches in flight.
func (s *Store[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, r := range s.refresh {
		r.timer.Cancel()
		delete(s.refresh, key)
	}
	s.subs = make(map[string]map[uint64]func(Entry[T]))
	s.mu.Unlock()

	s.cancel()
}

func (s *Store[T]) update(key string, fn func(*Entry[T])) (Entry[T], []func(Entry[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _ := s.cache.GetIfPresent(key)
	fn(&e)
	s.cache.Set(key, e)

	subs := make([]func(Entry[T]), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		subs = append(subs, fn)
	}
	return e, subs
}

func notify[T any](subs []func(Entry[T]), e Entry[T]) {
	for _, fn := range subs {
		fn(e)
	}
}
