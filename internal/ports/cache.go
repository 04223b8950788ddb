package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
)

// RateLimitState is the current counter envelope for a rate-limit key.
type RateLimitState struct {
	Count        int
	BlockedUntil *time.Time
}

// RateLimiter counts hits per key in a fixed window and blocks once threshold is reached.
type RateLimiter interface {
	Get(ctx context.Context, key string) (RateLimitState, error)
	Hit(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (RateLimitState, error)
	Clear(ctx context.Context, key string) error
}

// LockCache mirrors active account locks so locked identities skip the database and bcrypt.
// It is never the source of truth; a miss always falls through to the account row.
type LockCache interface {
	Get(ctx context.Context, email string, now time.Time) (*time.Time, error)
	Put(ctx context.Context, email string, lockedUntil time.Time, now time.Time) error
	Clear(ctx context.Context, email string) error
}

// SessionRevocationStore keeps revocation markers with token-aligned TTL.
type SessionRevocationStore interface {
	// MarkRevoked writes one marker per session; already expired sessions are skipped.
	MarkRevoked(ctx context.Context, sessions ...domain.Session) error
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}
