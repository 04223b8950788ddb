package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the identity or the password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed password attempts.
	ErrAccountLocked = errors.New("account locked")
	ErrOTPExpired    = errors.New("otp expired")
	ErrOTPInvalid    = errors.New("otp invalid")
	// ErrOTPLocked is independent of ErrAccountLocked; it only blocks the code step.
	ErrOTPLocked         = errors.New("otp locked")
	ErrOTPTooSoon        = errors.New("otp resend too soon")
	ErrTwoFactorInvalid  = errors.New("two-factor code invalid")
	ErrTokenInvalid      = errors.New("token expired or invalid")
	ErrDeliveryFailed    = errors.New("notification delivery failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrSessionRevoked    = errors.New("session revoked")
	ErrSessionExpired    = errors.New("session expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrTwoFactorRequired = errors.New("two-factor authentication not enabled")
)

// AuthErrorKind tags an expected authentication rejection.
type AuthErrorKind string

const (
	KindInvalidCredentials AuthErrorKind = "invalid_credentials"
	KindAccountLocked      AuthErrorKind = "account_locked"
	KindOTPExpired         AuthErrorKind = "otp_expired"
	KindOTPInvalid         AuthErrorKind = "otp_invalid"
	KindOTPLocked          AuthErrorKind = "otp_locked"
	KindOTPTooSoon         AuthErrorKind = "otp_too_soon"
	KindTwoFactorInvalid   AuthErrorKind = "two_factor_invalid"
	KindTokenInvalid       AuthErrorKind = "token_invalid"
	KindDeliveryFailed     AuthErrorKind = "delivery_failed"
	KindRateLimited        AuthErrorKind = "rate_limited"
)

var kindSentinels = map[AuthErrorKind]error{
	KindInvalidCredentials: ErrInvalidCredentials,
	KindAccountLocked:      ErrAccountLocked,
	KindOTPExpired:         ErrOTPExpired,
	KindOTPInvalid:         ErrOTPInvalid,
	KindOTPLocked:          ErrOTPLocked,
	KindOTPTooSoon:         ErrOTPTooSoon,
	KindTwoFactorInvalid:   ErrTwoFactorInvalid,
	KindTokenInvalid:       ErrTokenInvalid,
	KindDeliveryFailed:     ErrDeliveryFailed,
	KindRateLimited:        ErrRateLimited,
}

// AuthError is the rejection result of an authentication step.
// Infrastructure faults are never AuthErrors, so callers can tell
// "credentials are wrong" apart from "the system is down".
type AuthError struct {
	Kind              AuthErrorKind
	RetryAfter        time.Duration
	AttemptsRemaining int
	// JustLocked is set when this very attempt triggered the lock.
	JustLocked bool
	Cause      error
}

func (e *AuthError) Error() string {
	msg := string(e.Kind)
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter.Round(time.Second))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the kind sentinel and the cause so errors.Is matches either.
func (e *AuthError) Unwrap() []error {
	out := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		out = append(out, sentinel)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// RetryAfterSeconds rounds the retry window up to whole seconds.
func (e *AuthError) RetryAfterSeconds() int64 {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int64(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

func InvalidCredentials(attemptsRemaining int) *AuthError {
	return &AuthError{Kind: KindInvalidCredentials, AttemptsRemaining: attemptsRemaining}
}

func AccountLocked(retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: KindAccountLocked, RetryAfter: retryAfter}
}

func OTPExpired() *AuthError {
	return &AuthError{Kind: KindOTPExpired}
}

func OTPInvalid(attemptsRemaining int) *AuthError {
	return &AuthError{Kind: KindOTPInvalid, AttemptsRemaining: attemptsRemaining}
}

func OTPLocked(retryAfter time.Duration, justLocked bool) *AuthError {
	return &AuthError{Kind: KindOTPLocked, RetryAfter: retryAfter, JustLocked: justLocked}
}

func OTPTooSoon(retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: KindOTPTooSoon, RetryAfter: retryAfter}
}

func TwoFactorInvalid() *AuthError {
	return &AuthError{Kind: KindTwoFactorInvalid}
}

func TokenInvalid() *AuthError {
	return &AuthError{Kind: KindTokenInvalid}
}

func DeliveryFailed(cause error) *AuthError {
	return &AuthError{Kind: KindDeliveryFailed, Cause: cause}
}

func RateLimited(retryAfter time.Duration) *AuthError {
	return &AuthError{Kind: KindRateLimited, RetryAfter: retryAfter}
}

// AsAuthError extracts the AuthError carried by err, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
