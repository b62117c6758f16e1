package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alwanly/lunch-match-sync/internal/client/repository"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/retry"
	"github.com/Alwanly/lunch-match-sync/pkg/swr"
)

// fakeClient serves scripted responses keyed by call number (1-based).
type fakeClient struct {
	mu           sync.Mutex
	matchCalls   int
	messageCalls int
	match        func(call int) (*models.MatchState, error)
	messages     func(call int) ([]models.Message, error)
}

func (f *fakeClient) GetCurrentMatch(ctx context.Context) (*models.MatchState, error) {
	f.mu.Lock()
	f.matchCalls++
	call := f.matchCalls
	f.mu.Unlock()
	return f.match(call)
}

func (f *fakeClient) GetMessages(ctx context.Context, matchID int64) ([]models.Message, error) {
	f.mu.Lock()
	f.messageCalls++
	call := f.messageCalls
	f.mu.Unlock()
	return f.messages(call)
}

func (f *fakeClient) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matchCalls, f.messageCalls
}

func matched(id int64) *models.MatchState {
	return &models.MatchState{Matched: true, MatchID: &id}
}

func unmatched() *models.MatchState {
	return &models.MatchState{}
}

func threeMessages(int) ([]models.Message, error) {
	return []models.Message{
		{ID: 1, MatchID: 42, Body: "lunch?"},
		{ID: 2, MatchID: 42, Body: "sure"},
		{ID: 3, MatchID: 42, Body: "12:30 at the cafeteria"},
	}, nil
}

func fastPoll() poll.Config {
	return poll.Config{Interval: 10 * time.Millisecond, Immediate: true}
}

var allStrategies = []swr.Kind{swr.KindNone, swr.KindBridge, swr.KindDelegated}

func TestMatchPoller_StopsAfterMatchFound(t *testing.T) {
	for _, kind := range allStrategies {
		t.Run(string(kind), func(t *testing.T) {
			const unmatchedTicks = 3
			client := &fakeClient{match: func(call int) (*models.MatchState, error) {
				if call <= unmatchedTicks {
					return unmatched(), nil
				}
				return matched(42), nil
			}}

			var found []models.MatchState
			var mu sync.Mutex
			store := swr.NewStore[models.MatchState](swr.Options{})
			defer store.Close()

			p, err := NewMatchPoller(client, MatchConfig{
				Poll:        fastPoll(),
				StopOnMatch: true,
				Strategy:    kind,
				Store:       store,
				OnMatchFound: func(s models.MatchState) {
					mu.Lock()
					defer mu.Unlock()
					found = append(found, s)
				},
			})
			require.NoError(t, err)
			defer p.Close()

			require.NoError(t, p.Start())
			require.Eventually(t, func() bool { return !p.IsPolling() }, 2*time.Second, 5*time.Millisecond)

			time.Sleep(50 * time.Millisecond)
			calls, _ := client.calls()
			assert.Equal(t, unmatchedTicks+1, calls, "polling continued past the match")

			id, ok := p.MatchID()
			assert.True(t, ok)
			assert.Equal(t, int64(42), id)

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, found, 1)
			assert.Equal(t, int64(42), *found[0].MatchID)
		})
	}
}

func TestMatchPoller_NotifiesOnlyOnNewMatchID(t *testing.T) {
	ids := []int64{0, 42, 42, 42, 0, 77, 77}
	client := &fakeClient{match: func(call int) (*models.MatchState, error) {
		if call > len(ids) {
			return matched(77), nil
		}
		if ids[call-1] == 0 {
			return unmatched(), nil
		}
		return matched(ids[call-1]), nil
	}}

	var found []int64
	var mu sync.Mutex
	p, err := NewMatchPoller(client, MatchConfig{
		Poll: fastPoll(),
		OnMatchFound: func(s models.MatchState) {
			mu.Lock()
			defer mu.Unlock()
			found = append(found, *s.MatchID)
		},
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		calls, _ := client.calls()
		return calls >= len(ids)+2
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.IsPolling())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{42, 77}, found)
}

func TestMatchPoller_ResetReportsSameMatchAgain(t *testing.T) {
	client := &fakeClient{match: func(int) (*models.MatchState, error) {
		return matched(42), nil
	}}

	var found atomic.Int32
	p, err := NewMatchPoller(client, MatchConfig{
		Poll:         fastPoll(),
		StopOnMatch:  true,
		OnMatchFound: func(models.MatchState) { found.Add(1) },
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return !p.IsPolling() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), found.Load())

	p.Reset()
	_, ok := p.MatchID()
	assert.False(t, ok)

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return found.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	id, ok := p.MatchID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestMatchPoller_NetworkDownKeepsPolling(t *testing.T) {
	client := &fakeClient{match: func(int) (*models.MatchState, error) {
		return nil, errors.New("network down")
	}}

	var errorsSeen atomic.Int32
	p, err := NewMatchPoller(client, MatchConfig{
		Poll:        fastPoll(),
		StopOnMatch: true,
		OnError:     func(error) { errorsSeen.Add(1) },
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return errorsSeen.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, p.IsPolling())
	_, ok := p.Data()
	assert.False(t, ok)
	require.Eventually(t, func() bool {
		err := p.Err()
		return err != nil && err.Error() == "network down"
	}, time.Second, time.Millisecond)
}

func TestMatchPoller_RetriesTransientButNotClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "transient", err: errors.New("connection reset"), wantCalls: 3},
		{name: "unauthorized", err: &repository.APIError{Status: http.StatusUnauthorized, Message: "bad token"}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{match: func(int) (*models.MatchState, error) {
				return nil, tt.err
			}}
			p, err := NewMatchPoller(client, MatchConfig{
				Poll:  poll.Config{Interval: time.Hour},
				Retry: &retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1},
			})
			require.NoError(t, err)
			defer p.Close()

			_, err = p.Execute(context.Background())
			require.Error(t, err)
			calls, _ := client.calls()
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestChatPoller_SameMessagesNotifyOnce(t *testing.T) {
	client := &fakeClient{
		match:    func(int) (*models.MatchState, error) { return matched(42), nil },
		messages: threeMessages,
	}

	var notifications atomic.Int32
	p, err := NewChatPoller(client, ChatConfig{
		Poll:          fastPoll(),
		MatchID:       42,
		OnNewMessages: func([]models.Message) { notifications.Add(1) },
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		_, msgCalls := client.calls()
		return msgCalls >= 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), notifications.Load())
	assert.Len(t, p.Messages(), 3)
	assert.True(t, p.IsPolling())
}

func TestChatPoller_NotifiesWhenCountChanges(t *testing.T) {
	client := &fakeClient{
		match: func(int) (*models.MatchState, error) { return matched(42), nil },
		messages: func(call int) ([]models.Message, error) {
			msgs, _ := threeMessages(call)
			if call < 3 {
				return msgs[:2], nil
			}
			return msgs, nil
		},
	}

	var counts []int
	var mu sync.Mutex
	p, err := NewChatPoller(client, ChatConfig{
		Poll:    fastPoll(),
		MatchID: 42,
		OnNewMessages: func(m []models.Message) {
			mu.Lock()
			defer mu.Unlock()
			counts = append(counts, len(m))
		},
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		_, msgCalls := client.calls()
		return msgCalls >= 5
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3}, counts)
}

func TestChatPoller_MatchReplacedCancelsOnceAndStops(t *testing.T) {
	for _, kind := range allStrategies {
		t.Run(string(kind), func(t *testing.T) {
			client := &fakeClient{
				match: func(call int) (*models.MatchState, error) {
					if call == 1 {
						return matched(42), nil
					}
					return matched(99), nil
				},
				messages: threeMessages,
			}

			var cancels atomic.Int32
			store := swr.NewStore[ChatSnapshot](swr.Options{})
			defer store.Close()

			p, err := NewChatPoller(client, ChatConfig{
				Poll:            fastPoll(),
				MatchID:         42,
				CurrentMatchID:  func() (int64, bool) { return 42, true },
				Strategy:        kind,
				Store:           store,
				OnMatchCanceled: func() { cancels.Add(1) },
			})
			require.NoError(t, err)
			defer p.Close()

			require.NoError(t, p.Start())
			require.Eventually(t, func() bool { return !p.IsPolling() }, 2*time.Second, 5*time.Millisecond)

			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, int32(1), cancels.Load())
			assert.True(t, p.Canceled())

			snap, ok := p.Data()
			require.True(t, ok)
			assert.True(t, snap.Canceled)
			assert.Len(t, snap.Messages, 3, "last seen messages stay visible")

			matchCalls, msgCalls := client.calls()
			assert.Equal(t, 2, matchCalls)
			assert.Equal(t, 1, msgCalls)
		})
	}
}

func TestChatPoller_MatchGoneCancels(t *testing.T) {
	client := &fakeClient{
		match:    func(int) (*models.MatchState, error) { return unmatched(), nil },
		messages: threeMessages,
	}

	var cancels atomic.Int32
	p, err := NewChatPoller(client, ChatConfig{
		Poll:            poll.Config{Interval: time.Hour},
		MatchID:         42,
		OnMatchCanceled: func() { cancels.Add(1) },
	})
	require.NoError(t, err)
	defer p.Close()

	snap, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Canceled)
	assert.Equal(t, int32(1), cancels.Load())
}

func TestChatPoller_NoCurrentMatchSkipsNetwork(t *testing.T) {
	client := &fakeClient{
		match:    func(int) (*models.MatchState, error) { return matched(42), nil },
		messages: threeMessages,
	}

	var current atomic.Int64
	var notifications atomic.Int32
	p, err := NewChatPoller(client, ChatConfig{
		Poll:    fastPoll(),
		MatchID: 42,
		CurrentMatchID: func() (int64, bool) {
			id := current.Load()
			return id, id != 0
		},
		OnNewMessages: func([]models.Message) { notifications.Add(1) },
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	time.Sleep(60 * time.Millisecond)

	matchCalls, msgCalls := client.calls()
	assert.Zero(t, matchCalls)
	assert.Zero(t, msgCalls)
	assert.Zero(t, notifications.Load())
	snap, _ := p.Data()
	assert.True(t, snap.Inactive)

	current.Store(42)
	require.Eventually(t, func() bool { return notifications.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestChatPoller_ZeroMatchIDNeverFetches(t *testing.T) {
	client := &fakeClient{
		match:    func(int) (*models.MatchState, error) { return matched(42), nil },
		messages: threeMessages,
	}

	p, err := NewChatPoller(client, ChatConfig{Poll: poll.Config{Interval: time.Hour}})
	require.NoError(t, err)
	defer p.Close()

	snap, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Inactive)
	matchCalls, _ := client.calls()
	assert.Zero(t, matchCalls)
}

func TestChatPoller_ErrorsDoNotStop(t *testing.T) {
	client := &fakeClient{
		match: func(int) (*models.MatchState, error) { return matched(42), nil },
		messages: func(int) ([]models.Message, error) {
			return nil, errors.New("timeout")
		},
	}

	var errorsSeen atomic.Int32
	p, err := NewChatPoller(client, ChatConfig{
		Poll:    fastPoll(),
		MatchID: 42,
		OnError: func(error) { errorsSeen.Add(1) },
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return errorsSeen.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.IsPolling())
	assert.False(t, p.Canceled())
}
