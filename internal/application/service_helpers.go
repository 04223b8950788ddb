package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
)

func appLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "application",
		"layer", "application",
	)
}

// normalizeEmail canonicalizes and validates email format before persistence/comparison.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) (string, error) {
	raw := make([]byte, bytesLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// randomDigits returns a zero-padded uniformly random numeric code.
func randomDigits(size int) (string, error) {
	if size <= 0 {
		size = 6
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(size)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate numeric code: %w", err)
	}
	return fmt.Sprintf("%0*d", size, n), nil
}

// recheckPassword verifies the current password of a signed-in account under
// a per-account budget, so a held session cannot be used to guess it.
func (s *Service) recheckPassword(ctx context.Context, account domain.Account, plaintext string) error {
	if err := s.enforceRateLimit(
		ctx,
		"recheck:"+account.AccountID.String(),
		s.cfg.PasswordRecheckRateLimitThreshold,
		s.cfg.PasswordRecheckRateLimitWindow,
	); err != nil {
		return err
	}
	if !s.credentials.Verify(&account, plaintext) {
		return domain.InvalidCredentials(0)
	}
	return nil
}

// enforceRateLimit counts a hit against key and rejects once the window budget is spent.
// Limiter outages are logged and fail open; lockout correctness never depends on Redis.
func (s *Service) enforceRateLimit(ctx context.Context, key string, threshold int, window time.Duration) error {
	if s.limiter == nil || threshold <= 0 || window <= 0 || strings.TrimSpace(key) == "" {
		return nil
	}

	now := s.nowFn()
	state, err := s.limiter.Get(ctx, key)
	if err == nil && state.BlockedUntil != nil && state.BlockedUntil.After(now) {
		return domain.RateLimited(state.BlockedUntil.Sub(now))
	}

	updated, err := s.limiter.Hit(ctx, key, now, threshold, window)
	if err != nil {
		appLogger().WarnContext(ctx, "rate-limit state unavailable",
			"operation", "rate_limit",
			"outcome", "warning",
			"key", key,
			"error", err,
		)
		return nil
	}
	if updated.BlockedUntil != nil && updated.BlockedUntil.After(now) {
		return domain.RateLimited(updated.BlockedUntil.Sub(now))
	}
	return nil
}

// resolveAccount loads an account by identity; unknown or inactive identities yield ok=false.
func (s *Service) resolveAccount(ctx context.Context, email string) (domain.Account, bool, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return account, false, nil
	}
	return account, true, nil
}
