package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "goauth.sync"

// RedisBroadcaster relays messages over a Redis pub/sub channel.
type RedisBroadcaster struct {
	id      string
	redis   redis.UniversalClient
	channel string
	logger  *slog.Logger

	handlers handlers

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

// NewRedisBroadcaster subscribes to channel and starts the receive loop.
// It returns once Redis has confirmed the subscription.
func NewRedisBroadcaster(ctx context.Context, client redis.UniversalClient, channel string, logger *slog.Logger) (*RedisBroadcaster, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &RedisBroadcaster{
		id:       uuid.NewString(),
		redis:    client,
		channel:  channel,
		logger:   logger,
		handlers: handlers{logger: logger},
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go b.run(pubsub.Channel())
	return b, nil
}

func (b *RedisBroadcaster) ID() string { return b.id }

// Channel returns the pub/sub channel name.
func (b *RedisBroadcaster) Channel() string { return b.channel }

func (b *RedisBroadcaster) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	msg.Origin = b.id
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	if err := b.redis.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(fn Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.handlers.add(fn), nil
}

// Close unsubscribes from Redis and waits for the receive loop. The Redis
// client itself is left open.
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pubsub := b.pubsub
	b.mu.Unlock()

	err := pubsub.Close()
	b.wg.Wait()
	return err
}

func (b *RedisBroadcaster) run(ch <-chan *redis.Message) {
	defer b.wg.Done()
	for m := range ch {
		var msg Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			b.logger.Warn("broadcast_decode_failed", "channel", m.Channel, "error", err)
			continue
		}
		if msg.Origin == b.id {
			continue
		}
		b.handlers.dispatch(msg)
	}
}
