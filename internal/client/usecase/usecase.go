package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/Alwanly/lunch-match-sync/internal/client/poller"
	"github.com/Alwanly/lunch-match-sync/internal/client/repository"
	"github.com/Alwanly/lunch-match-sync/internal/config"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/retry"
	"github.com/Alwanly/lunch-match-sync/pkg/swr"
)

var ErrAlreadyRunning = errors.New("watch already running")

type transition struct {
	found    bool
	matchID  int64
	canceled bool
}

type UseCase struct {
	client     repository.IClient
	cfg        *config.ClientConfig
	kind       swr.Kind
	retry      *retry.Config
	matchStore *swr.Store[models.MatchState]
	chatStore  *swr.Store[poller.ChatSnapshot]
	visibility poll.VisibilitySource
	listener   Listener
	logger     *logger.CanonicalLogger

	mu          sync.Mutex
	match       *poller.MatchPoller
	chat        *poller.ChatPoller
	phase       Phase
	lastErr     error
	transitions chan transition
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewUseCase(client repository.IClient, cfg *config.ClientConfig, visibility poll.VisibilitySource, listener Listener, log *logger.CanonicalLogger) (*UseCase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := swr.ParseKind(cfg.CacheStrategy)
	if err != nil {
		return nil, err
	}

	uc := &UseCase{
		client:     client,
		cfg:        cfg,
		kind:       kind,
		visibility: visibility,
		listener:   listener,
		logger:     log.Component("watch"),
		phase:      PhaseIdle,
	}
	if cfg.Retry.MaxRetries != 0 {
		rc := cfg.RetryConfig()
		uc.retry = &rc
	}
	if kind != swr.KindNone {
		uc.matchStore = swr.NewStore[models.MatchState](swr.Options{Name: "match", Logger: log})
		uc.chatStore = swr.NewStore[poller.ChatSnapshot](swr.Options{Name: "chat", Capacity: 32, Logger: log})
	}
	return uc, nil
}

func (uc *UseCase) StartPolling(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.done != nil {
		return ErrAlreadyRunning
	}

	if uc.match == nil {
		mp, err := poller.NewMatchPoller(uc.client, poller.MatchConfig{
			Poll:         uc.cfg.MatchPollConfig(),
			StopOnMatch:  uc.cfg.Poll.StopOnMatch,
			Strategy:     uc.kind,
			Store:        uc.matchStore,
			Retry:        uc.retry,
			Visibility:   uc.visibility,
			Logger:       uc.logger,
			OnMatchFound: uc.onMatchFound,
			OnMatchLost: func(id int64) {
				uc.send(transition{canceled: true, matchID: id})
			},
			OnError: func(err error) { uc.onError("match", err) },
		})
		if err != nil {
			return err
		}
		uc.match = mp
	}

	loopCtx, cancel := context.WithCancel(ctx)
	uc.cancel = cancel
	uc.done = make(chan struct{})
	uc.transitions = make(chan transition, 8)
	uc.phase = PhaseMatching
	go uc.loop(loopCtx, uc.transitions, uc.done)

	uc.match.Reset()
	if err := uc.match.Start(); err != nil {
		cancel()
		return err
	}
	uc.logger.Info("watch started", logger.String("strategy", string(uc.kind)))
	return nil
}

func (uc *UseCase) StopPolling() error {
	uc.mu.Lock()
	cancel, done := uc.cancel, uc.done
	uc.cancel, uc.done = nil, nil
	uc.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.chat != nil {
		uc.chat.Close()
		uc.chat = nil
	}
	if uc.match != nil {
		uc.match.Stop()
	}
	uc.phase = PhaseIdle
	uc.logger.Info("watch stopped")
	return nil
}

// Close stops the watch and releases the pollers and caches.
func (uc *UseCase) Close() {
	_ = uc.StopPolling()

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.match != nil {
		uc.match.Close()
		uc.match = nil
	}
	if uc.matchStore != nil {
		uc.matchStore.Close()
	}
	if uc.chatStore != nil {
		uc.chatStore.Close()
	}
}

func (uc *UseCase) GetStatus() Status {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	st := Status{Phase: uc.phase}
	if uc.lastErr != nil {
		st.LastError = uc.lastErr.Error()
	}
	if uc.match != nil {
		st.MatchPolling = uc.match.IsPolling()
		st.LastMatch = uc.match.LastPolled()
		if id, ok := uc.match.MatchID(); ok {
			st.MatchID = id
		}
	}
	if uc.chat != nil {
		st.MatchID = uc.chat.MatchID()
		st.ChatPolling = uc.chat.IsPolling()
		st.LastChat = uc.chat.LastPolled()
		st.MessageCount = len(uc.chat.Messages())
	}
	return st
}

func (uc *UseCase) Nudge(ctx context.Context, ev models.Event) {
	uc.mu.Lock()
	match, chat := uc.match, uc.chat
	uc.mu.Unlock()

	var err error
	switch {
	case chat != nil && ev.MatchID == chat.MatchID() && (ev.Type == models.EventNewMessage || ev.Type == models.EventMatchCanceled):
		_, err = chat.Execute(ctx)
	case match != nil && (ev.Type == models.EventMatchFound || ev.Type == models.EventMatchCanceled):
		_, err = match.Execute(ctx)
	default:
		uc.logger.Debug("nudge ignored", logger.String("type", ev.Type), logger.Int64(logger.FieldMatchID, ev.MatchID))
		return
	}
	if err != nil && !errors.Is(err, poll.ErrSessionClosed) {
		uc.logger.WithError(err).Warn("nudged fetch failed", logger.String("type", ev.Type))
	}
}

func (uc *UseCase) loop(ctx context.Context, transitions <-chan transition, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-transitions:
			if t.found {
				uc.enterChat(t.matchID)
			}
			if t.canceled {
				uc.leaveChat(t.matchID)
			}
		}
	}
}

func (uc *UseCase) send(t transition) {
	uc.mu.Lock()
	ch, done := uc.transitions, uc.done
	uc.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case ch <- t:
	case <-done:
	}
}

func (uc *UseCase) onMatchFound(state models.MatchState) {
	id, ok := state.ID()
	if !ok {
		return
	}
	if uc.listener != nil {
		uc.listener.MatchFound(state)
	}
	uc.send(transition{found: true, matchID: id})
}

func (uc *UseCase) onError(source string, err error) {
	uc.mu.Lock()
	uc.lastErr = err
	uc.mu.Unlock()
	if uc.listener != nil {
		uc.listener.PollError(source, err)
	}
}

func (uc *UseCase) enterChat(matchID int64) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.chat != nil {
		if uc.chat.MatchID() == matchID {
			return
		}
		// replaced by a newer match
		old := uc.chat.MatchID()
		uc.chat.Close()
		uc.chat = nil
		if uc.listener != nil {
			uc.listener.MatchCanceled(old)
		}
	}

	cp, err := poller.NewChatPoller(uc.client, poller.ChatConfig{
		Poll:           uc.cfg.ChatPollConfig(),
		MatchID:        matchID,
		CurrentMatchID: uc.currentMatchID,
		Strategy:       uc.kind,
		Store:          uc.chatStore,
		Retry:          uc.retry,
		Visibility:     uc.visibility,
		Logger:         uc.logger,
		OnNewMessages: func(msgs []models.Message) {
			if uc.listener != nil {
				uc.listener.NewMessages(matchID, msgs)
			}
		},
		OnMatchCanceled: func() {
			uc.send(transition{canceled: true, matchID: matchID})
		},
		OnError: func(err error) { uc.onError("chat", err) },
	})
	if err != nil {
		uc.logger.WithError(err).Error("failed to create chat poller")
		return
	}
	if err := cp.Start(); err != nil {
		uc.logger.WithError(err).Error("failed to start chat poller")
		cp.Close()
		return
	}

	uc.chat = cp
	uc.phase = PhaseChatting
	uc.logger.WithMatchID(matchID).Info("chat watch started")
}

func (uc *UseCase) leaveChat(matchID int64) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.chat == nil || uc.chat.MatchID() != matchID {
		return
	}
	uc.chat.Close()
	uc.chat = nil
	uc.phase = PhaseMatching
	if uc.listener != nil {
		uc.listener.MatchCanceled(matchID)
	}

	if err := uc.match.Start(); err != nil {
		uc.logger.WithError(err).Error("failed to restart match poller")
		return
	}
	uc.logger.WithMatchID(matchID).Info("chat watch ended, waiting for a match")
}

// currentMatchID gates chat ticks on the watch being in a chat.
func (uc *UseCase) currentMatchID() (int64, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.chat == nil {
		return 0, false
	}
	return uc.chat.MatchID(), true
}

var _ IUseCase = (*UseCase)(nil)
