package poll

import (
	"sync"
	"time"
)

// Timer drives a fetch-and-reschedule loop. The next tick is armed only after
// the previous action has returned, so actions never overlap.
type Timer struct {
	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	active bool
}

// NewTimer creates an idle Timer.
func NewTimer() *Timer {
	return &Timer{}
}

// Schedule runs action after interval, then again interval after each run
// returns, until Cancel is called. Calling Schedule while a loop is already
// scheduled does nothing.
func (t *Timer) Schedule(interval time.Duration, action func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return
	}
	t.active = true
	t.gen++
	t.arm(t.gen, interval, action)
}

// arm must be called with t.mu held.
func (t *Timer) arm(gen uint64, interval time.Duration, action func()) {
	t.timer = time.AfterFunc(interval, func() {
		t.mu.Lock()
		if !t.active || t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.timer = nil
		t.mu.Unlock()

		action()

		t.mu.Lock()
		defer t.mu.Unlock()
		// a Cancel (or Cancel+Schedule) while action ran owns the loop now
		if t.active && t.gen == gen {
			t.arm(gen, interval, action)
		}
	})
}

// Cancel clears any pending tick. It is safe to call when nothing is scheduled.
// An action that is already running finishes but is not rescheduled.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Active reports whether a loop is scheduled.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
