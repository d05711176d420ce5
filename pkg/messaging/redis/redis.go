package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/care-scheduler/pkg/circuitbreaker"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

// RedisBroker publishes over Redis pub/sub. Publishing goes through a circuit
// breaker so an unreachable Redis costs callers one fast error.
type RedisBroker struct {
	client redis.UniversalClient
	cb     *circuitbreaker.CircuitBreaker
	log    *logger.Logger
}

func NewRedisBroker(client redis.UniversalClient, log *logger.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "redis-broker",
			MaxFailures: 3,
			Cooldown:    30 * time.Second,
		}),
		log: log.With("component", "redis_broker"),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

// Subscribe delivers payloads until ctx ends. The channel is closed then.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 100)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the client belongs to whoever created it.
func (b *RedisBroker) Close() error {
	return nil
}
