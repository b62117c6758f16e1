package nudge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
)

type fakeTarget struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeTarget) Nudge(ctx context.Context, ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeTarget) got() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Event(nil), f.events...)
}

func payload(t *testing.T, ev models.Event) pubsub.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return pubsub.Message{Channel: "events", Payload: string(b)}
}

func TestListener_DispatchesOwnEvents(t *testing.T) {
	bus := pubsub.NewMemory()
	target := &fakeTarget{}
	l, err := NewListener(bus, target, Config{Channel: "events", UserID: "u1", Burst: 100}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	first := payload(t, models.Event{Type: models.EventMatchFound, UserID: "u1", MatchID: 42})
	// publish until the subscription is live
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, "events", first.Payload)
		return len(target.got()) > 0
	}, time.Second, 10*time.Millisecond)

	before := len(target.got())
	_ = bus.Publish(ctx, "events", payload(t, models.Event{Type: models.EventNewMessage, UserID: "u2", MatchID: 9}).Payload)
	_ = bus.Publish(ctx, "events", "{not json")
	_ = bus.Publish(ctx, "other", first.Payload)
	_ = bus.Publish(ctx, "events", payload(t, models.Event{Type: models.EventNewMessage, UserID: "u1", MatchID: 42}).Payload)

	require.Eventually(t, func() bool { return len(target.got()) == before+1 }, time.Second, 5*time.Millisecond)
	last := target.got()[before]
	assert.Equal(t, models.EventNewMessage, last.Type)
	assert.Equal(t, int64(42), last.MatchID)
	for _, ev := range target.got() {
		assert.Equal(t, "u1", ev.UserID)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_RateLimits(t *testing.T) {
	target := &fakeTarget{}
	l, err := NewListener(pubsub.NewMemory(), target, Config{Channel: "events", UserID: "u1", MinDelay: time.Hour, Burst: 2}, logger.NewNop())
	require.NoError(t, err)

	msg := payload(t, models.Event{Type: models.EventNewMessage, UserID: "u1", MatchID: 1})
	for i := 0; i < 5; i++ {
		l.handle(context.Background(), msg)
	}
	assert.Len(t, target.got(), 2)
}

func TestListener_StopsWhenBusCloses(t *testing.T) {
	bus := pubsub.NewMemory()
	l, err := NewListener(bus, &fakeTarget{}, Config{Channel: "events", UserID: "u1"}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	assert.NoError(t, l.Run(context.Background()))
}

func TestNewListener_RequiresUser(t *testing.T) {
	_, err := NewListener(pubsub.NewMemory(), &fakeTarget{}, Config{Channel: "events"}, logger.NewNop())
	assert.ErrorIs(t, err, ErrNoUser)
}
