package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID     uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey"`
	Email         string    `gorm:"column:email"`
	DisplayName   string    `gorm:"column:display_name"`
	PasswordHash  string    `gorm:"column:password_hash"`
	Role          string    `gorm:"column:role"`
	EmailVerified bool      `gorm:"column:email_verified"`
	IsActive      bool      `gorm:"column:is_active"`

	EmailVerificationTokenHash *string    `gorm:"column:email_verification_token_hash"`
	EmailVerificationExpiresAt *time.Time `gorm:"column:email_verification_expires_at"`
	ResetTokenHash             *string    `gorm:"column:reset_token_hash"`
	ResetExpiresAt             *time.Time `gorm:"column:reset_expires_at"`

	OTPHash        *string    `gorm:"column:otp_hash"`
	OTPExpiresAt   *time.Time `gorm:"column:otp_expires_at"`
	OTPAttempts    int        `gorm:"column:otp_attempts"`
	OTPLockedUntil *time.Time `gorm:"column:otp_locked_until"`

	TwoFactorEnabled bool    `gorm:"column:two_factor_enabled"`
	TwoFactorSecret  *string `gorm:"column:two_factor_secret"`

	FailedLoginCount int        `gorm:"column:failed_login_count"`
	LockedUntil      *time.Time `gorm:"column:locked_until"`

	LoginStage          string     `gorm:"column:login_stage"`
	LoginStageExpiresAt *time.Time `gorm:"column:login_stage_expires_at"`

	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type backupCodeModel struct {
	AccountID uuid.UUID `gorm:"column:account_id;type:uuid;primaryKey"`
	CodeHash  string    `gorm:"column:code_hash;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (backupCodeModel) TableName() string { return "account_backup_codes" }

type securityEventModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	AccountID  uuid.UUID `gorm:"column:account_id;type:uuid"`
	Action     string    `gorm:"column:action"`
	SourceIP   *string   `gorm:"column:source_ip"`
	UserAgent  string    `gorm:"column:user_agent"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (securityEventModel) TableName() string { return "account_security_events" }

type sessionModel struct {
	SessionID uuid.UUID  `gorm:"column:session_id;type:uuid;primaryKey"`
	AccountID uuid.UUID  `gorm:"column:account_id;type:uuid"`
	IPAddress *string    `gorm:"column:ip_address"`
	UserAgent string     `gorm:"column:user_agent"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	ExpiresAt time.Time  `gorm:"column:expires_at"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type authOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (authOutboxModel) TableName() string { return "auth_outbox" }
