package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/care-scheduler/pkg/circuitbreaker"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

func TestPublishOpensBreakerWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	b := NewRedisBroker(client, logger.Nop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := b.Publish(ctx, "appointments", map[string]string{"n": "x"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}
	assert.ErrorIs(t, b.Publish(ctx, "appointments", "x"), circuitbreaker.ErrOpen)
}

func TestPublishRejectsUnmarshalableMessages(t *testing.T) {
	b := NewRedisBroker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), logger.Nop())
	err := b.Publish(context.Background(), "appointments", make(chan int))
	assert.ErrorContains(t, err, "marshal")
}
