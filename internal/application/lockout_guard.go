package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

// LockoutGuard enforces the failed-password lockout stored on the account row.
// The lock cache only short-circuits known locks; the row stays authoritative.
type LockoutGuard struct {
	accounts ports.AccountRepository
	cache    ports.LockCache
	cfg      Config
	nowFn    func() time.Time
}

func NewLockoutGuard(accounts ports.AccountRepository, cache ports.LockCache, cfg Config, nowFn func() time.Time) *LockoutGuard {
	return &LockoutGuard{accounts: accounts, cache: cache, cfg: cfg, nowFn: nowFn}
}

// CheckCached consults the lock cache before the account is loaded.
func (g *LockoutGuard) CheckCached(ctx context.Context, email string) error {
	if g.cache == nil {
		return nil
	}
	now := g.nowFn()
	until, err := g.cache.Get(ctx, email, now)
	if err != nil {
		appLogger().WarnContext(ctx, "lock cache unavailable",
			"operation", "lockout_check_cached",
			"outcome", "warning",
			"error", err,
		)
		return nil
	}
	if until != nil && until.After(now) {
		return domain.AccountLocked(until.Sub(now))
	}
	return nil
}

// Check returns AccountLocked while the lock holds. An elapsed lock is
// cleared atomically so the next window starts from zero.
func (g *LockoutGuard) Check(ctx context.Context, account *domain.Account) error {
	now := g.nowFn()
	if remaining := account.LockRemaining(now); remaining > 0 {
		g.cachePut(ctx, account.Email, *account.LockedUntil)
		return domain.AccountLocked(remaining)
	}
	if account.LockedUntil != nil {
		if err := g.accounts.ClearExpiredLock(ctx, account.AccountID, now); err != nil {
			return fmt.Errorf("clear expired lock: %w", err)
		}
		account.LockedUntil = nil
		account.FailedLoginCount = 0
	}
	return nil
}

// RecordFailure increments the counter and locks at the threshold in one statement.
// It returns AccountLocked when this failure engaged the lock, otherwise InvalidCredentials.
func (g *LockoutGuard) RecordFailure(ctx context.Context, account domain.Account) (ports.LockoutState, error) {
	now := g.nowFn()
	state, err := g.accounts.IncrementFailedLogins(ctx, account.AccountID, g.cfg.FailedLoginThreshold, now.Add(g.cfg.LockoutDuration))
	if err != nil {
		return ports.LockoutState{}, fmt.Errorf("record failed login: %w", err)
	}
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		g.cachePut(ctx, account.Email, *state.LockedUntil)
		return state, domain.AccountLocked(state.LockedUntil.Sub(now))
	}
	remaining := g.cfg.FailedLoginThreshold - state.FailedCount
	if remaining < 0 {
		remaining = 0
	}
	return state, domain.InvalidCredentials(remaining)
}

// RecordSuccess resets the counter and lock.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, account domain.Account) error {
	if err := g.accounts.ResetFailedLogins(ctx, account.AccountID); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	if g.cache != nil {
		if err := g.cache.Clear(ctx, account.Email); err != nil {
			appLogger().WarnContext(ctx, "lock cache clear failed",
				"operation", "lockout_record_success",
				"outcome", "warning",
				"error", err,
			)
		}
	}
	return nil
}

func (g *LockoutGuard) cachePut(ctx context.Context, email string, until time.Time) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Put(ctx, email, until, g.nowFn()); err != nil {
		appLogger().WarnContext(ctx, "lock cache write failed",
			"operation", "lockout_cache_put",
			"outcome", "warning",
			"error", err,
		)
	}
}
