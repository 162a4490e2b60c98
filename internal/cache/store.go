package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fixia-backend/internal/config"
)

// KeyValueStore abstracts the caching backend.
// Two variants exist: a Redis-backed store and a no-op store used when the
// backend is disabled or unreachable. The variant is chosen once, at
// construction time, and never re-evaluated mid-process.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	FlushAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// NewStore selects the store variant for this process.
// The no-op store is chosen when caching is explicitly disabled, when the
// environment is test without the opt-in flag, or when the Redis client
// cannot be constructed and pinged. A store that came up healthy never
// silently degrades to the no-op variant later: transport errors on
// individual calls are surfaced to the caller.
func NewStore(cfg config.RedisConfig, env config.Environment, logger *zap.Logger) KeyValueStore {
	if cfg.Disabled {
		logger.Info("cache disabled by configuration, using no-op store")
		return NewNoopStore()
	}
	if env == config.Test && !cfg.TestEnabled {
		logger.Info("test environment without cache opt-in, using no-op store")
		return NewNoopStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, using no-op store",
			zap.String("addr", cfg.Addr()), zap.Error(err))
		client.Close()
		return NewNoopStore()
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	return &redisStore{client: client}
}

// Durable reports whether store is backed by a real broker rather than
// the no-op variant. Consumers that need persistence, like the job
// queues, key their behavior on this.
func Durable(store KeyValueStore) bool {
	_, ok := store.(*redisStore)
	return ok
}

// redisStore is the remote variant, backed by go-redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. Used directly by tests.
func NewRedisStore(client *redis.Client) KeyValueStore {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0 // no expiry
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Del(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.Expire(ctx, key, ttl).Result()
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *redisStore) FlushAll(ctx context.Context) error {
	return s.client.FlushDB(ctx).Err()
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// noopStore is a functioning cache that never actually caches. Every call
// succeeds immediately with the "not found" answer appropriate to the
// operation, so callers see permanent cache misses rather than errors.
type noopStore struct{}

// NewNoopStore returns the no-op store variant.
func NewNoopStore() KeyValueStore {
	return noopStore{}
}

func (noopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (noopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (noopStore) Del(context.Context, string) (bool, error) { return false, nil }

func (noopStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (noopStore) TTL(context.Context, string) (time.Duration, error) { return -1, nil }

func (noopStore) Expire(context.Context, string, time.Duration) (bool, error) { return false, nil }

// Incr reports a fresh counter on every call, so rate limits backed by the
// no-op store always allow the request.
func (noopStore) Incr(context.Context, string) (int64, error) { return 1, nil }

func (noopStore) FlushAll(context.Context) error { return nil }

func (noopStore) Ping(context.Context) error { return nil }

func (noopStore) Close() error { return nil }
