package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medorders/internal/config"
	"medorders/internal/port"
)

// RedisLocker is a KeyLocker shared by every instance pointed at the same
// Redis. Locks expire after the TTL if a holder dies.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	opts   *redislock.Options
	log    zerolog.Logger
}

var _ port.KeyLocker = (*RedisLocker)(nil)

// NewRedisClient opens a Redis client and verifies it with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// NewRedisLocker creates a locker that retries with linear backoff.
func NewRedisLocker(rdb redis.UniversalClient, cfg config.LockConfig, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    cfg.TTL,
		opts: &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(cfg.RetryBackoff), cfg.RetryCount),
		},
		log: log.With().Str("component", "redis_locker").Logger(),
	}
}

// Lock obtains "lock:<key>". The returned release func never fails; release
// errors are logged since the TTL frees the key regardless.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, l.opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock.Lock: could not obtain lock for %s: %w", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("lock.Lock: %w", err)
	}
	return func() {
		if relErr := lk.Release(context.WithoutCancel(ctx)); relErr != nil && !errors.Is(relErr, redislock.ErrLockNotHeld) {
			l.log.Warn().Err(relErr).Str("key", key).Msg("releasing lock")
		}
	}, nil
}
