package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLeaseNotAcquired = errors.New("lease not acquired")
)

// Leaser hands out short-lived exclusive leases keyed by name. The sweeper
// takes one per run so replicated workers do not sweep the same records at
// the same time. It is load shedding only: correctness of the sweep rests on
// the conditional status update, not on this lease.
type Leaser interface {
	WithLease(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type redisLeaser struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLeaser creates a leaser backed by a per-name Redis key.
func NewRedisLeaser(client *redis.Client, ttl time.Duration) Leaser {
	return &redisLeaser{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLeaser) WithLease(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lease:%s", name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return ErrLeaseNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLeaser) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
