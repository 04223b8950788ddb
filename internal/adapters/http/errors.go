package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopfront/auth-service/internal/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty means the error text is safe to show
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"},
	{domain.ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED", "account temporarily locked"},
	{domain.ErrOTPExpired, http.StatusUnauthorized, "OTP_EXPIRED", "verification code expired; request a new one"},
	{domain.ErrOTPInvalid, http.StatusUnauthorized, "OTP_INVALID", "verification code is incorrect"},
	{domain.ErrOTPLocked, http.StatusLocked, "OTP_LOCKED", "too many incorrect codes"},
	{domain.ErrOTPTooSoon, http.StatusTooManyRequests, "OTP_TOO_SOON", "a code was sent recently"},
	{domain.ErrTwoFactorInvalid, http.StatusUnauthorized, "TWO_FACTOR_INVALID", "two-factor code is incorrect"},
	{domain.ErrTokenInvalid, http.StatusBadRequest, "TOKEN_INVALID", "link is invalid or has expired"},
	{domain.ErrDeliveryFailed, http.StatusBadGateway, "DELIVERY_FAILED", "could not send the message; try again"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"},
	{domain.ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired"},
	{domain.ErrSessionRevoked, http.StatusUnauthorized, "SESSION_REVOKED", "session revoked"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"},
	{domain.ErrTwoFactorRequired, http.StatusBadRequest, "TWO_FACTOR_NOT_ENABLED", "two-factor authentication is not enabled"},
	{domain.ErrConflict, http.StatusConflict, "CONFLICT", ""},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
}

// mapDomainError resolves a rejection to its status; anything unrecognised is an
// infrastructure fault and its text never reaches the client.
func mapDomainError(err error) (int, string, string) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.message == "" {
			return m.status, m.code, err.Error()
		}
		return m.status, m.code, m.message
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
}

func logRejection(ctx context.Context, operation string, status int, code, message string, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", status,
		"error_code", code,
		"message", message,
		"request_id", requestID(ctx),
	}
	if claims, ok := claimsFromContext(ctx); ok {
		attrs = append(attrs, "account_id", claims.AccountID.String())
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	httpLogger().Log(ctx, level, "http operation failed", attrs...)
}

// writeMappedError adds retry and attempt details for authentication rejections.
func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logRejection(ctx, operation, status, code, msg, err)

	body := errorBody{Status: "error", Code: code, Message: msg}
	if authErr, ok := domain.AsAuthError(err); ok {
		if secs := authErr.RetryAfterSeconds(); secs > 0 {
			body.RetryAfterSeconds = secs
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
		if authErr.Kind == domain.KindOTPInvalid {
			remaining := authErr.AttemptsRemaining
			body.AttemptsRemaining = &remaining
		}
	}
	writeJSON(w, status, body)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	logRejection(ctx, operation, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func writeMissingBearerError(ctx context.Context, w http.ResponseWriter, operation string) {
	const msg = "missing bearer token"
	logRejection(ctx, operation, http.StatusUnauthorized, "UNAUTHORIZED", msg, nil)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg)
}
