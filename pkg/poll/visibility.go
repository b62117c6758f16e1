package poll

import (
	"sync"
)

// VisibilitySource reports whether the host is in the foreground and
// notifies listeners on every actual transition.
type VisibilitySource interface {
	// Visible reports the current state
	Visible() bool
	// Subscribe registers fn for transitions and returns a function that removes it
	Subscribe(fn func(visible bool)) (unsubscribe func())
}

// AlwaysVisible is the VisibilitySource for hosts without a foreground
// signal. It never emits.
type AlwaysVisible struct{}

func (AlwaysVisible) Visible() bool { return true }

func (AlwaysVisible) Subscribe(func(bool)) func() { return func() {} }

// Observer is a VisibilitySource fed by the host. One Observer is meant to be
// shared by every session of a process.
type Observer struct {
	mu        sync.Mutex
	visible   bool
	nextID    uint64
	listeners map[uint64]func(bool)
}

// NewObserver returns an Observer that starts visible.
func NewObserver() *Observer {
	return &Observer{
		visible:   true,
		listeners: make(map[uint64]func(bool)),
	}
}

func (o *Observer) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

func (o *Observer) Subscribe(fn func(bool)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.listeners, id)
		})
	}
}

// SetVisible records the host state. Listeners run synchronously, and only
// when the state actually changes.
func (o *Observer) SetVisible(visible bool) {
	o.mu.Lock()
	if o.visible == visible {
		o.mu.Unlock()
		return
	}
	o.visible = visible
	fns := make([]func(bool), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

// Hide is shorthand for SetVisible(false).
func (o *Observer) Hide() { o.SetVisible(false) }

// Show is shorthand for SetVisible(true).
func (o *Observer) Show() { o.SetVisible(true) }
