package poller

import (
	"context"
	"fmt"
	"sync"

	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/retry"
	"github.com/Alwanly/lunch-match-sync/pkg/swr"
)

// MessagesKey is the cache key of a match's message history.
func MessagesKey(matchID int64) string {
	return fmt.Sprintf("/matches/%d/messages", matchID)
}

// ChatSnapshot is the result of one chat tick.
type ChatSnapshot struct {
	MatchID  int64
	Messages []models.Message
	// Canceled marks that the match is no longer the caller's current one; it is terminal
	Canceled bool
	// Inactive marks a tick skipped because no current match id was available
	Inactive bool
}

type ChatConfig struct {
	Poll poll.Config
	// MatchID is the match this chat belongs to; zero means none and every tick is skipped
	MatchID int64
	// CurrentMatchID, when set, gates each tick: no request is made while it reports none
	CurrentMatchID func() (int64, bool)
	Strategy       swr.Kind
	Store          *swr.Store[ChatSnapshot]
	Retry          *retry.Config
	Visibility     poll.VisibilitySource
	Logger         *logger.CanonicalLogger
	// OnNewMessages fires when the message count differs from the last seen count
	OnNewMessages func([]models.Message)
	// OnMatchCanceled fires once, when the match stops being the current one
	OnMatchCanceled func()
	OnError         func(error)
}

// ChatPoller polls the message history of one match and watches for the
// match being canceled or replaced.
type ChatPoller struct {
	poll.Poller[ChatSnapshot]

	client          ChatClient
	matchID         int64
	currentMatchID  func() (int64, bool)
	onNewMessages   func([]models.Message)
	onMatchCanceled func()
	log             *logger.CanonicalLogger

	mu        sync.Mutex
	lastCount int
	messages  []models.Message
	canceled  bool
}

func NewChatPoller(client ChatClient, cfg ChatConfig) (*ChatPoller, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	p := &ChatPoller{
		client:          client,
		matchID:         cfg.MatchID,
		currentMatchID:  cfg.CurrentMatchID,
		onNewMessages:   cfg.OnNewMessages,
		onMatchCanceled: cfg.OnMatchCanceled,
		log:             log.Component("chat_poller").WithMatchID(cfg.MatchID),
		lastCount:       -1,
	}

	inner, err := swr.New(swr.Params[ChatSnapshot]{
		Kind:          cfg.Strategy,
		Name:          "chat",
		Config:        cfg.Poll,
		Fetch:         withRetry[ChatSnapshot](cfg.Retry, p.fetch),
		Store:         cfg.Store,
		Key:           MessagesKey(cfg.MatchID),
		Logger:        p.log,
		Visibility:    cfg.Visibility,
		StopCondition: func(s ChatSnapshot) bool { return s.Canceled },
		OnSuccess:     p.observe,
		OnError:       cfg.OnError,
	})
	if err != nil {
		return nil, err
	}
	p.Poller = inner
	return p, nil
}

func (p *ChatPoller) active() bool {
	if p.matchID == 0 {
		return false
	}
	if p.currentMatchID == nil {
		return true
	}
	_, ok := p.currentMatchID()
	return ok
}

func (p *ChatPoller) fetch(ctx context.Context) (ChatSnapshot, error) {
	if !p.active() {
		return ChatSnapshot{MatchID: p.matchID, Inactive: true}, nil
	}

	state, err := p.client.GetCurrentMatch(ctx)
	if err != nil {
		return ChatSnapshot{}, err
	}
	if id, ok := state.ID(); !ok || id != p.matchID {
		return ChatSnapshot{MatchID: p.matchID, Messages: p.Messages(), Canceled: true}, nil
	}

	msgs, err := p.client.GetMessages(ctx, p.matchID)
	if err != nil {
		return ChatSnapshot{}, err
	}
	return ChatSnapshot{MatchID: p.matchID, Messages: msgs}, nil
}

func (p *ChatPoller) observe(s ChatSnapshot) {
	if s.Inactive {
		return
	}

	if s.Canceled {
		p.mu.Lock()
		already := p.canceled
		p.canceled = true
		p.mu.Unlock()

		if !already {
			p.log.Info("match canceled")
			if p.onMatchCanceled != nil {
				p.onMatchCanceled()
			}
		}
		return
	}

	p.mu.Lock()
	if len(s.Messages) == p.lastCount {
		p.mu.Unlock()
		return
	}
	p.lastCount = len(s.Messages)
	p.messages = s.Messages
	p.mu.Unlock()

	p.log.Debug("new messages", logger.Int(logger.FieldMessageCount, len(s.Messages)))
	if p.onNewMessages != nil {
		p.onNewMessages(s.Messages)
	}
}

// MatchID is the match this poller was activated for.
func (p *ChatPoller) MatchID() int64 { return p.matchID }

// Messages returns the last propagated message list.
func (p *ChatPoller) Messages() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages
}

// Canceled reports whether the match was observed as canceled.
func (p *ChatPoller) Canceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canceled
}
