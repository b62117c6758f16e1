package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Alwanly/lunch-match-sync/pkg/logger"
)

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type redisPubSub struct {
	client *redis.Client
	logger *logger.CanonicalLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisPubSub(cfg RedisConfig, log *logger.CanonicalLogger) (PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Try a ping to validate connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}

	log.Info("redis client initialized", logger.String("addr", cfg.Addr()))

	return &redisPubSub{
		client: client,
		logger: log,
	}, nil
}

// Publish publishes a message to a Redis channel
func (r *redisPubSub) Publish(ctx context.Context, channel string, message string) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		r.logger.WithError(err).Error("failed to publish message to redis")
		return err
	}
	return nil
}

// Ping checks if Redis connection is healthy
func (r *redisPubSub) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Subscribe subscribes to Redis channels. The returned channel is closed when
// ctx is done or the connection is closed.
func (r *redisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("subscribe: no channels given")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return nil, fmt.Errorf("subscribe: already subscribed")
	}

	ps := r.client.Subscribe(ctx, channels...)
	// wait for the subscription to be confirmed so callers do not miss early messages
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	out := make(chan Message, 16)
	r.pubsub = ps
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.listen(listenCtx, ps, out, r.done)

	r.logger.Info("subscribed to redis channels", logger.Any("channels", channels))
	return out, nil
}

// Unsubscribe unsubscribes from Redis channels
func (r *redisPubSub) Unsubscribe(ctx context.Context, channels ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Unsubscribe(ctx, channels...)
}

// Close closes the Redis connection
func (r *redisPubSub) Close() error {
	r.mu.Lock()
	cancel, ps, done := r.cancel, r.pubsub, r.done
	r.cancel, r.pubsub, r.done = nil, nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ps != nil {
		_ = ps.Close()
	}
	if done != nil {
		<-done
	}
	if err := r.client.Close(); err != nil {
		r.logger.WithError(err).Error("failed to close redis client")
		return err
	}
	return nil
}

// listen forwards messages until ctx is done; it owns out and closes it on exit
func (r *redisPubSub) listen(ctx context.Context, ps *redis.PubSub, out chan<- Message, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping redis listener")
			return
		case m, ok := <-ch:
			if !ok {
				r.logger.Info("redis pubsub channel closed")
				return
			}
			select {
			case out <- Message{Channel: m.Channel, Payload: m.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}
