package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Exam-Prep-Assessment-Backend/internal/model"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "qcache:"

// RedisResultCache shares the result cache between processes. Keys carry a Redis
// TTL so expired entries also disappear without EvictExpired.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisResultCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisResultCache{
		client: client,
		ttl:    ttl,
		log:    log.With(zap.String("component", "RedisResultCache")),
		now:    time.Now,
	}
}

func (c *RedisResultCache) Get(ctx context.Context, key string, maxAge time.Duration) (model.CacheEntry, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return model.CacheEntry{}, false
	}
	var e storedEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("corrupt redis cache entry", zap.String("key", key), zap.Error(err))
		return model.CacheEntry{}, false
	}
	entry := model.CacheEntry{Key: key, Payload: []byte(e.Payload), CreatedAt: e.CreatedAt}
	if maxAge > 0 && entry.Age(c.now()) > maxAge {
		return model.CacheEntry{}, false
	}
	return entry, true
}

// Put writes the entry with a single SET, which Redis applies atomically.
func (c *RedisResultCache) Put(ctx context.Context, key string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("cache payload for %s is not valid JSON", key)
	}
	raw, err := json.Marshal(storedEntry{Payload: payload, CreatedAt: c.now()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisResultCache) EvictExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	removed := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var e storedEntry
		if err := json.Unmarshal(raw, &e); err == nil && c.now().Sub(e.CreatedAt) <= maxAge {
			continue
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("redis del %s: %w", key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}
