// Package redis is a throttle.Limiter shared between processes through Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/userdata/internal/throttle"
)

// Key prefix for all throttle counters
const keyPrefix = "userdata:throttle"

// Limiter counts failures with INCR and lets EXPIRE end the window
type Limiter struct {
	client *redis.Client
	cfg    throttle.Config
}

// Ensure Limiter implements the interface
var _ throttle.Limiter = (*Limiter)(nil)

// New connects to Redis and creates a limiter
func New(cfg Config, tcfg throttle.Config) (*Limiter, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, tcfg), nil
}

// NewWithClient creates a limiter on an existing client (for testing)
func NewWithClient(client *redis.Client, cfg throttle.Config) *Limiter {
	return &Limiter{client: client, cfg: cfg}
}

// Close closes the Redis connection
func (l *Limiter) Close() error {
	return l.client.Close()
}

func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Get(ctx, counterKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n < l.cfg.MaxAttempts, nil
}

func (l *Limiter) Fail(ctx context.Context, key string) error {
	k := counterKey(key)

	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return err
	}

	// A negative TTL means the counter was just created.
	if ttl.Val() < 0 {
		return l.client.PExpire(ctx, k, l.cfg.Window).Err()
	}
	return nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, counterKey(key)).Err()
}

func counterKey(key string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, key)
}
