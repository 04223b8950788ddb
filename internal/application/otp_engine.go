package application

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

// OTPEngine manages the emailed numeric code that every login must pass.
type OTPEngine struct {
	accounts ports.AccountRepository
	cfg      Config
	nowFn    func() time.Time
}

func NewOTPEngine(accounts ports.AccountRepository, cfg Config, nowFn func() time.Time) *OTPEngine {
	return &OTPEngine{accounts: accounts, cfg: cfg, nowFn: nowFn}
}

// Issue stores the hash of a fresh code, resets attempts and clears any OTP lock.
// The plaintext is returned once for delivery.
func (e *OTPEngine) Issue(ctx context.Context, account domain.Account) (string, error) {
	code, err := randomDigits(e.cfg.OTPLength)
	if err != nil {
		return "", err
	}
	if err := e.accounts.StoreOTP(ctx, account.AccountID, hashToken(code), e.nowFn().Add(e.cfg.OTPTTL)); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Resend refuses while an unexpired code exists or verification is locked, then issues.
func (e *OTPEngine) Resend(ctx context.Context, account domain.Account) (string, error) {
	now := e.nowFn()
	if remaining := account.OTPLockRemaining(now); remaining > 0 {
		return "", domain.OTPLocked(remaining, false)
	}
	if account.HasActiveOTP(now) {
		return "", domain.OTPTooSoon(account.OTPExpiresAt.Sub(now))
	}
	return e.Issue(ctx, account)
}

// Verify checks presented against the stored code.
// A lock is reported without consuming an attempt; a wrong guess is counted atomically.
func (e *OTPEngine) Verify(ctx context.Context, account domain.Account, presented string) error {
	now := e.nowFn()
	if remaining := account.OTPLockRemaining(now); remaining > 0 {
		return domain.OTPLocked(remaining, false)
	}
	if !account.HasActiveOTP(now) {
		return domain.OTPExpired()
	}

	presentedHash := hashToken(strings.TrimSpace(presented))
	if subtle.ConstantTimeCompare([]byte(presentedHash), []byte(account.OTPHash)) == 1 {
		consumed, err := e.accounts.ConsumeOTP(ctx, account.AccountID, presentedHash, now)
		if err != nil {
			return fmt.Errorf("consume otp: %w", err)
		}
		if !consumed {
			// A concurrent request used or locked the code first.
			return domain.OTPExpired()
		}
		return nil
	}

	state, err := e.accounts.RecordOTPFailure(ctx, account.AccountID, account.OTPHash, e.cfg.OTPMaxAttempts, now.Add(e.cfg.OTPLockDuration))
	if err != nil {
		if isNotFound(err) {
			// The code was replaced or used since it was read; the guess is not counted against the new one.
			return domain.OTPExpired()
		}
		return fmt.Errorf("record otp failure: %w", err)
	}
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		return domain.OTPLocked(state.LockedUntil.Sub(now), state.Attempts == e.cfg.OTPMaxAttempts)
	}
	remaining := e.cfg.OTPMaxAttempts - state.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return domain.OTPInvalid(remaining)
}

// Clear drops an issued code; used when delivery fails.
func (e *OTPEngine) Clear(ctx context.Context, account domain.Account) error {
	return e.accounts.ClearOTP(ctx, account.AccountID)
}
