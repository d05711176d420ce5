package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	minBackoff = 5 * time.Millisecond
	maxBackoff = 100 * time.Millisecond
)

// RedisLocker is a Locker shared by every API instance talking to the same
// Redis. The key expires after ttl so a crashed holder cannot wedge a schedule.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, prefix: "lock:"}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	key = l.prefix + key
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must run even if ctx is already done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	fnCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(fnCtx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	backoff := minBackoff
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
