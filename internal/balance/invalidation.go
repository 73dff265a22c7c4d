package balance

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the broadcast channel for cache invalidation.
const DefaultChannel = "ledger.invalidate"

// Broadcaster publishes affected balance keys after a committed write.
// Delivery is best-effort: a lost message just falls back to TTL expiry.
type Broadcaster struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewBroadcaster constructs a broadcaster on the given channel.
func NewBroadcaster(client *redis.Client, channel string, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{client: client, channel: channel, logger: logger}
}

// Broadcast publishes each key. Failures are logged, never surfaced: the
// write has already committed and must not be failed by a cache signal.
func (b *Broadcaster) Broadcast(ctx context.Context, keys ...string) {
	if b == nil || b.client == nil {
		return
	}
	for _, key := range keys {
		if err := b.client.Publish(ctx, b.channel, key).Err(); err != nil {
			b.logger.Warn("invalidation publish", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// Evictor drops one cached balance by key.
type Evictor interface {
	Evict(ctx context.Context, key string) error
}

// Subscriber evicts cached balances named on the broadcast channel.
type Subscriber struct {
	client  *redis.Client
	channel string
	evictor Evictor
	logger  *slog.Logger
}

// NewSubscriber constructs a subscriber for the given channel.
func NewSubscriber(client *redis.Client, channel string, evictor Evictor, logger *slog.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{client: client, channel: channel, evictor: evictor, logger: logger}
}

// Run subscribes and evicts until context cancellation.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == "" {
				continue
			}
			if err := s.evictor.Evict(ctx, msg.Payload); err != nil {
				s.logger.Warn("invalidation evict", slog.String("key", msg.Payload), slog.Any("error", err))
			}
		}
	}
}
