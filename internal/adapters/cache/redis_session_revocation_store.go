package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopfront/auth-service/internal/domain"
)

// RedisSessionRevocationStore lets token validation reject a logged-out session
// without a database read. A marker lives exactly as long as its session could.
type RedisSessionRevocationStore struct {
	client *redis.Client
	nowFn  func() time.Time
}

func NewRedisSessionRevocationStore(client *redis.Client) *RedisSessionRevocationStore {
	return &RedisSessionRevocationStore{client: client, nowFn: time.Now}
}

// MarkRevoked writes all markers in one pipelined round trip.
func (s *RedisSessionRevocationStore) MarkRevoked(ctx context.Context, sessions ...domain.Session) error {
	now := s.nowFn()
	pipe := s.client.Pipeline()
	for _, session := range sessions {
		if ttl := session.ExpiresAt.Sub(now); ttl > 0 {
			pipe.Set(ctx, revocationKey(session.SessionID), now.Unix(), ttl)
		}
	}
	if pipe.Len() == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write revocation markers: %w", err)
	}
	return nil
}

func (s *RedisSessionRevocationStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	err := s.client.Get(ctx, revocationKey(sessionID)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("read revocation marker: %w", err)
	}
}

func revocationKey(sessionID uuid.UUID) string {
	return keyPrefix + "revoked:" + sessionID.String()
}
