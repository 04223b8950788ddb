package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
)

// CreateAccountParams captures atomic account-creation inputs.
type CreateAccountParams struct {
	AccountID    uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
	Role         domain.Role
	CreatedAt    time.Time
}

// LockoutState is the result of an atomic failed-login increment.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// OTPAttemptState is the result of an atomic failed-OTP increment.
type OTPAttemptState struct {
	Attempts    int
	LockedUntil *time.Time
}

// AccountRepository owns the account row.
// Every counter mutation is a single conditional UPDATE so concurrent requests never lose an increment.
type AccountRepository interface {
	Create(ctx context.Context, params CreateAccountParams, outboxEvent OutboxEvent) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error)

	UpdatePassword(ctx context.Context, accountID uuid.UUID, passwordHash string, at time.Time) error
	SetEmailVerified(ctx context.Context, accountID uuid.UUID, at time.Time) error

	SetOneShotToken(ctx context.Context, accountID uuid.UUID, purpose domain.TokenPurpose, tokenHash string, expiresAt time.Time) error
	ClearOneShotToken(ctx context.Context, accountID uuid.UUID, purpose domain.TokenPurpose) error
	// ConsumeOneShotToken clears a matching unexpired token and returns its owner, or domain.ErrNotFound.
	ConsumeOneShotToken(ctx context.Context, purpose domain.TokenPurpose, tokenHash string, now time.Time) (uuid.UUID, error)
	// FindByOneShotToken returns the owner of a matching unexpired token without clearing it.
	FindByOneShotToken(ctx context.Context, purpose domain.TokenPurpose, tokenHash string, now time.Time) (domain.Account, error)
	// ResetPasswordWithToken clears a matching unexpired reset token and stores passwordHash in one statement.
	ResetPasswordWithToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error)

	// IncrementFailedLogins sets locked_until in the same statement once threshold is reached.
	IncrementFailedLogins(ctx context.Context, accountID uuid.UUID, threshold int, lockUntil time.Time) (LockoutState, error)
	ResetFailedLogins(ctx context.Context, accountID uuid.UUID) error
	// ClearExpiredLock resets the counter only when the stored lock has elapsed.
	ClearExpiredLock(ctx context.Context, accountID uuid.UUID, now time.Time) error

	// StoreOTP replaces the code, resets attempts and clears any OTP lock.
	StoreOTP(ctx context.Context, accountID uuid.UUID, otpHash string, expiresAt time.Time) error
	ClearOTP(ctx context.Context, accountID uuid.UUID) error
	// ConsumeOTP clears the code only if it still matches, is unexpired and not locked.
	ConsumeOTP(ctx context.Context, accountID uuid.UUID, otpHash string, now time.Time) (bool, error)
	// RecordOTPFailure counts a wrong guess against otpHash, locking and dropping the code once maxAttempts is reached.
	// It returns domain.ErrNotFound when otpHash is no longer the stored code.
	RecordOTPFailure(ctx context.Context, accountID uuid.UUID, otpHash string, maxAttempts int, lockUntil time.Time) (OTPAttemptState, error)

	SetLoginStage(ctx context.Context, accountID uuid.UUID, stage domain.LoginStage, expiresAt *time.Time) error
	// CompleteLogin clears the pending stage and the lockout counters and stamps last_login_at.
	CompleteLogin(ctx context.Context, accountID uuid.UUID, at time.Time) error

	// SetTwoFactorSecret stores an unconfirmed secret; two_factor_enabled stays false.
	SetTwoFactorSecret(ctx context.Context, accountID uuid.UUID, secret string, at time.Time) error
	// EnableTwoFactor flips the flag and replaces backup codes in one transaction.
	EnableTwoFactor(ctx context.Context, accountID uuid.UUID, backupCodeHashes []string, at time.Time) error
	// DisableTwoFactor clears secret, flag and backup codes in one transaction.
	DisableTwoFactor(ctx context.Context, accountID uuid.UUID, at time.Time) error
}

// BackupCodeRepository stores hashed single-use backup codes.
type BackupCodeRepository interface {
	Replace(ctx context.Context, accountID uuid.UUID, codeHashes []string, at time.Time) error
	// Consume deletes the matching code and reports whether one was removed.
	Consume(ctx context.Context, accountID uuid.UUID, codeHash string) (bool, error)
	Count(ctx context.Context, accountID uuid.UUID) (int, error)
}

// SecurityLogRepository appends to the bounded per-account security log.
type SecurityLogRepository interface {
	// Append inserts the entry, prunes beyond keep, and stores outboxEvent when non-nil, all in one transaction.
	Append(ctx context.Context, event domain.SecurityEvent, keep int, outboxEvent *OutboxEvent) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.SecurityEvent, error)
}

// SessionCreateParams captures metadata required to create a session record.
type SessionCreateParams struct {
	AccountID uuid.UUID
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository manages persistent session lifecycle.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error
	// RevokeAllByAccount returns the sessions it revoked so callers can publish revocation markers.
	RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time) ([]domain.Session, error)
	PurgeExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for domain events.
type OutboxRepository interface {
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
