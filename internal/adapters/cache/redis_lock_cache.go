package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLockCache mirrors active account locks keyed by normalized email.
// Entries expire with the lock, so a stale entry can never outlive the row.
type RedisLockCache struct {
	client *redis.Client
}

func NewRedisLockCache(client *redis.Client) *RedisLockCache {
	return &RedisLockCache{client: client}
}

func (c *RedisLockCache) Get(ctx context.Context, email string, now time.Time) (*time.Time, error) {
	raw, err := c.client.Get(ctx, lockCacheKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	until := parseUnix(raw)
	if until == nil || !until.After(now) {
		return nil, nil
	}
	return until, nil
}

func (c *RedisLockCache) Put(ctx context.Context, email string, lockedUntil time.Time, now time.Time) error {
	ttl := lockedUntil.Sub(now)
	if ttl <= 0 {
		return nil
	}
	// Round up so the cached lock never ends before the stored one.
	return c.client.Set(ctx, lockCacheKey(email), lockedUntil.Add(time.Second-1).Unix(), ttl+time.Second).Err()
}

func (c *RedisLockCache) Clear(ctx context.Context, email string) error {
	return c.client.Del(ctx, lockCacheKey(email)).Err()
}

func lockCacheKey(email string) string {
	return keyPrefix + "lockcache:" + strings.ToLower(strings.TrimSpace(email))
}
