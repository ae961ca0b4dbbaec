package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plainchat/internal/apperr"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the key/value store used for session tokens, presence flags and
// room message lists. Every failure is an *apperr.StoreError with the redis
// backend.
type Cache interface {
	// Get reports ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// LPush prepends values, creating the list when missing.
	LPush(ctx context.Context, key string, values ...string) error
	// LRange returns the whole list, head first.
	LRange(ctx context.Context, key string) ([]string, error)
	// PopulateList pushes values onto key and sets ttl, but only if key does
	// not exist. It reports whether this call did the population.
	PopulateList(ctx context.Context, key string, values []string, ttl time.Duration) (bool, error)
	Close() error
}

func TokenKey(token string) string {
	return "user-token:" + token
}

func PresenceKey(username string) string {
	return "user-presence:" + username
}

func MessagesKey(roomID uuid.UUID) string {
	return "msgs:" + roomID.String()
}

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Connected to redis successfully")
	return &RedisCache{rdb: rdb}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Redis(err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return apperr.Redis(c.rdb.Set(ctx, key, value, ttl).Err())
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return apperr.Redis(c.rdb.Del(ctx, keys...).Err())
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, apperr.Redis(err)
	}
	return n > 0, nil
}

func (c *RedisCache) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return apperr.Redis(c.rdb.LPush(ctx, key, toArgs(values)...).Err())
}

func (c *RedisCache) LRange(ctx context.Context, key string) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, apperr.Redis(err)
	}
	return vals, nil
}

// PopulateList runs the existence check and the pushes under WATCH, so a
// concurrent writer to key aborts this transaction instead of interleaving.
func (c *RedisCache) PopulateList(ctx context.Context, key string, values []string, ttl time.Duration) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}

	populated := false
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, key, toArgs(values)...)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		if err == nil {
			populated = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// someone else touched the key first
		return false, nil
	}
	if err != nil {
		return false, apperr.Redis(err)
	}
	return populated, nil
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
