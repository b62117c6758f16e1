// Package nudge turns server push events into immediate fetches. Events are
// hints only: a dropped or malformed event costs at most one polling interval.
package nudge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
)

var ErrNoUser = errors.New("nudge listener requires a user id")

var Events = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lunch_nudge_events_total",
	Help: "Push events received, by outcome",
}, []string{"result"})

// Target fetches the resource an event refers to.
type Target interface {
	Nudge(ctx context.Context, ev models.Event)
}

type Config struct {
	Channel string
	UserID  string
	// MinDelay and Burst bound how often events may trigger fetches
	MinDelay time.Duration
	Burst    int
}

type Listener struct {
	sub     pubsub.Subscriber
	target  Target
	cfg     Config
	limiter *rate.Limiter
	logger  *logger.CanonicalLogger
}

func NewListener(sub pubsub.Subscriber, target Target, cfg Config, log *logger.CanonicalLogger) (*Listener, error) {
	if cfg.UserID == "" {
		return nil, ErrNoUser
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.MinDelay > 0 {
		limit = rate.Every(cfg.MinDelay)
	}
	return &Listener{
		sub:     sub,
		target:  target,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  log.Component("nudge").WithUserID(cfg.UserID),
	}, nil
}

// Run subscribes and dispatches events until ctx is done or the subscription ends.
func (l *Listener) Run(ctx context.Context) error {
	msgs, err := l.sub.Subscribe(ctx, l.cfg.Channel)
	if err != nil {
		return err
	}
	l.logger.Info("listening for push events", logger.String("channel", l.cfg.Channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			l.handle(ctx, msg)
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg pubsub.Message) {
	var ev models.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		Events.WithLabelValues("malformed").Inc()
		l.logger.WithError(err).Debug("dropping malformed event")
		return
	}
	if ev.UserID != l.cfg.UserID {
		Events.WithLabelValues("other_user").Inc()
		return
	}
	if !l.limiter.Allow() {
		Events.WithLabelValues("rate_limited").Inc()
		l.logger.Debug("event rate limited", logger.String("type", ev.Type))
		return
	}

	Events.WithLabelValues("dispatched").Inc()
	l.logger.Debug("dispatching event", logger.String("type", ev.Type), logger.Int64(logger.FieldMatchID, ev.MatchID))
	l.target.Nudge(ctx, ev)
}
