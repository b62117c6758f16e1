package pubsub

import (
	"context"
	"sync"
)

// Memory is an in-process PubSub with Redis fan-out semantics: every
// subscriber of a channel receives each message published after it subscribed.
// Slow subscribers drop messages rather than block publishers.
type Memory struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	channels map[string]struct{}
	out      chan Message
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySub]struct{})}
}

func (m *Memory) Publish(ctx context.Context, channel string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.out <- Message{Channel: channel, Payload: message}:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that is closed when ctx is done or m is closed.
func (m *Memory) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	sub := &memorySub{channels: make(map[string]struct{}), out: make(chan Message, 16)}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(sub.out)
		return sub.out, nil
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.remove(sub)
	}()
	return sub.out, nil
}

func (m *Memory) Unsubscribe(ctx context.Context, channels ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs {
		for _, ch := range channels {
			delete(sub.channels, ch)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for sub := range m.subs {
		delete(m.subs, sub)
		close(sub.out)
	}
	return nil
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub]; ok {
		delete(m.subs, sub)
		close(sub.out)
	}
}
