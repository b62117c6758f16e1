package pubsub

import "context"

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload string
}

// Publisher fans a payload out to every current subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message string) error
	Close() error
}

// Subscriber delivers channel payloads until ctx is done or it is closed,
// at which point the returned channel is closed. Delivery is at most once.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Unsubscribe(ctx context.Context, channels ...string) error
	Close() error
}

type PubSub interface {
	Publisher
	Subscriber
}
