package poller

import (
	"context"
	"sync"

	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/retry"
	"github.com/Alwanly/lunch-match-sync/pkg/swr"
)

// CurrentMatchKey is the cache key of the current-match resource.
const CurrentMatchKey = "/matches/current"

type MatchConfig struct {
	Poll poll.Config
	// StopOnMatch stops polling once a match id is observed
	StopOnMatch bool
	Strategy    swr.Kind
	// Store is required for the bridge and delegated strategies
	Store      *swr.Store[models.MatchState]
	Retry      *retry.Config
	Visibility poll.VisibilitySource
	Logger     *logger.CanonicalLogger
	// OnMatchFound fires when a match id different from the last observed one appears
	OnMatchFound func(models.MatchState)
	// OnMatchLost fires when a previously observed match is no longer reported
	OnMatchLost func(matchID int64)
	OnError     func(error)
}

// MatchPoller polls the caller's current match.
type MatchPoller struct {
	poll.Poller[models.MatchState]

	client       MatchClient
	onMatchFound func(models.MatchState)
	onMatchLost  func(int64)
	log          *logger.CanonicalLogger

	mu     sync.Mutex
	lastID *int64
}

func NewMatchPoller(client MatchClient, cfg MatchConfig) (*MatchPoller, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	p := &MatchPoller{
		client:       client,
		onMatchFound: cfg.OnMatchFound,
		onMatchLost:  cfg.OnMatchLost,
		log:          log.Component("match_poller"),
	}

	var stop poll.StopCondition[models.MatchState]
	if cfg.StopOnMatch {
		stop = func(s models.MatchState) bool {
			_, ok := s.ID()
			return ok
		}
	}

	inner, err := swr.New(swr.Params[models.MatchState]{
		Kind:          cfg.Strategy,
		Name:          "match",
		Config:        cfg.Poll,
		Fetch:         withRetry[models.MatchState](cfg.Retry, p.fetch),
		Store:         cfg.Store,
		Key:           CurrentMatchKey,
		Logger:        p.log,
		Visibility:    cfg.Visibility,
		StopCondition: stop,
		OnSuccess:     p.observe,
		OnError:       cfg.OnError,
	})
	if err != nil {
		return nil, err
	}
	p.Poller = inner
	return p, nil
}

func (p *MatchPoller) fetch(ctx context.Context) (models.MatchState, error) {
	state, err := p.client.GetCurrentMatch(ctx)
	if err != nil {
		return models.MatchState{}, err
	}
	return *state, nil
}

func (p *MatchPoller) observe(state models.MatchState) {
	id, ok := state.ID()

	p.mu.Lock()
	if !ok {
		lost := p.lastID
		p.lastID = nil
		p.mu.Unlock()
		if lost != nil {
			p.log.WithMatchID(*lost).Info("match lost")
			if p.onMatchLost != nil {
				p.onMatchLost(*lost)
			}
		}
		return
	}
	if p.lastID != nil && *p.lastID == id {
		p.mu.Unlock()
		return
	}
	p.lastID = &id
	p.mu.Unlock()

	p.log.WithMatchID(id).Info("match found")
	if p.onMatchFound != nil {
		p.onMatchFound(state)
	}
}

// MatchID returns the last observed match id.
func (p *MatchPoller) MatchID() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastID == nil {
		return 0, false
	}
	return *p.lastID, true
}

// Reset forgets the last observed match so the next tick reports it again.
func (p *MatchPoller) Reset() {
	p.mu.Lock()
	p.lastID = nil
	p.mu.Unlock()
}
