package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var errStale = errors.New("cache: entry invalidated during load")

// EntityCache is a read-through TTL cache for single documents looked up by id.
// Concurrent misses for the same key share one loader call. Redis failures
// degrade to the loader; they never fail a read.
type EntityCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewEntityCache builds a cache namespaced by prefix. A nil client disables caching.
func NewEntityCache(client *redis.Client, prefix string, ttl time.Duration) *EntityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EntityCache{client: client, prefix: prefix, ttl: ttl, logger: slog.Default()}
}

// WithLogger sets the logger used for degraded cache operations.
func (c *EntityCache) WithLogger(logger *slog.Logger) *EntityCache {
	if c != nil && logger != nil {
		c.logger = logger
	}
	return c
}

// Key composes the cache key for a company scoped entity.
func (c *EntityCache) Key(companyID, id int64) string {
	if c == nil {
		return fmt.Sprintf("%d:%d", companyID, id)
	}
	return fmt.Sprintf("%s:%d:%d", c.prefix, companyID, id)
}

// Fetch loads the entity into dest from Redis, falling back to loader on a miss.
func (c *EntityCache) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return json.Unmarshal(payload, dest)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache get", slog.String("key", key), slog.Any("error", err))
		return load(ctx, dest, loader)
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		version, versionErr := c.client.Get(ctx, versionKey(key)).Int64()
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if versionErr == nil || errors.Is(versionErr, redis.Nil) {
			c.store(ctx, key, version, encoded)
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// store writes payload unless the key was invalidated after version was read.
func (c *EntityCache) store(ctx context.Context, key string, version int64, payload []byte) {
	vkey := versionKey(key)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, vkey)
	if err != nil && !errors.Is(err, errStale) && !errors.Is(err, redis.TxFailedErr) {
		c.logger.Warn("cache set", slog.String("key", key), slog.Any("error", err))
	}
}

// Invalidate drops the cached entries and bumps their versions so loads that
// started earlier do not write them back.
func (c *EntityCache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, versionKey(key))
			pipe.Expire(ctx, versionKey(key), c.ttl+time.Minute)
			pipe.Del(ctx, key)
		}
		return nil
	})
	return err
}

func versionKey(key string) string {
	return key + ":v"
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
