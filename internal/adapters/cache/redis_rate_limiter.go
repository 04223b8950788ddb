package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopfront/auth-service/internal/ports"
)

// RedisRateLimiter counts hits per key in a fixed window stored as a Redis hash.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (l *RedisRateLimiter) Get(ctx context.Context, key string) (ports.RateLimitState, error) {
	data, err := l.client.HGetAll(ctx, rateLimitKey(key)).Result()
	if err != nil {
		return ports.RateLimitState{}, err
	}
	if len(data) == 0 {
		return ports.RateLimitState{}, nil
	}

	state := ports.RateLimitState{}
	if raw, ok := data["count"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			state.Count = n
		}
	}
	state.BlockedUntil = parseUnix(data["blocked_until"])
	return state, nil
}

// Hit increments the window counter. The window starts at the first hit and the
// key expires with it; past threshold the key is blocked until the window closes.
func (l *RedisRateLimiter) Hit(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.RateLimitState, error) {
	redisKey := rateLimitKey(key)

	var countCmd *redis.IntCmd
	var startCmd *redis.StringCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		countCmd = p.HIncrBy(ctx, redisKey, "count", 1)
		p.HSetNX(ctx, redisKey, "window_start", now.Unix())
		startCmd = p.HGet(ctx, redisKey, "window_start")
		return nil
	})
	if err != nil {
		return ports.RateLimitState{}, err
	}

	count := int(countCmd.Val())
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return ports.RateLimitState{}, err
		}
	}

	state := ports.RateLimitState{Count: count}
	if count <= threshold {
		return state, nil
	}

	blockedUntil := now.Add(window).UTC()
	if start := parseUnix(startCmd.Val()); start != nil && start.Add(window).After(now) {
		blockedUntil = start.Add(window)
	}
	if err := l.client.HSet(ctx, redisKey, "blocked_until", blockedUntil.Unix()).Err(); err != nil {
		return ports.RateLimitState{}, err
	}
	state.BlockedUntil = &blockedUntil
	return state, nil
}

func (l *RedisRateLimiter) Clear(ctx context.Context, key string) error {
	return l.client.Del(ctx, rateLimitKey(key)).Err()
}

func rateLimitKey(key string) string {
	return keyPrefix + "ratelimit:" + key
}

func parseUnix(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
