package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole falls back to RoleUser for anything it does not recognise.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// LoginStage marks the pending step of a multi-factor login.
type LoginStage string

const (
	LoginStageNone      LoginStage = ""
	LoginStageOTP       LoginStage = "otp"
	LoginStageTwoFactor LoginStage = "two_factor"
)

// TokenPurpose selects which one-shot token slot on the account is addressed.
type TokenPurpose string

const (
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
)

// Account is the durable per-identity security record.
// Counters live here rather than in process memory so every instance sees the same lockout state.
type Account struct {
	AccountID     uuid.UUID
	Email         string
	DisplayName   string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	IsActive      bool

	OTPHash        string
	OTPExpiresAt   *time.Time
	OTPAttempts    int
	OTPLockedUntil *time.Time

	TwoFactorEnabled bool
	TwoFactorSecret  string

	FailedLoginCount int
	LockedUntil      *time.Time

	LoginStage          LoginStage
	LoginStageExpiresAt *time.Time

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LockRemaining reports how long the password lockout still holds at now.
func (a Account) LockRemaining(now time.Time) time.Duration {
	return remaining(a.LockedUntil, now)
}

// OTPLockRemaining reports how long OTP verification stays locked at now.
func (a Account) OTPLockRemaining(now time.Time) time.Duration {
	return remaining(a.OTPLockedUntil, now)
}

// HasActiveOTP is true while an unexpired code is stored.
func (a Account) HasActiveOTP(now time.Time) bool {
	return a.OTPHash != "" && a.OTPExpiresAt != nil && a.OTPExpiresAt.After(now)
}

// PendingStage returns the login stage if it has not expired.
func (a Account) PendingStage(now time.Time) LoginStage {
	if a.LoginStage == LoginStageNone || a.LoginStageExpiresAt == nil || !a.LoginStageExpiresAt.After(now) {
		return LoginStageNone
	}
	return a.LoginStage
}

func remaining(until *time.Time, now time.Time) time.Duration {
	if until == nil || !until.After(now) {
		return 0
	}
	return until.Sub(now)
}

// Session models an issued login session.
// It is persisted separately so logout and password reset can revoke tokens before they expire.
type Session struct {
	SessionID uuid.UUID
	AccountID uuid.UUID
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SecurityEvent is one entry of an account's bounded security log.
type SecurityEvent struct {
	ID         int64
	AccountID  uuid.UUID
	Action     SecurityAction
	SourceIP   string
	UserAgent  string
	OccurredAt time.Time
}

type SecurityAction string

const (
	ActionRegistered             SecurityAction = "registered"
	ActionLoginFailed            SecurityAction = "login_failed"
	ActionAccountLocked          SecurityAction = "account_locked"
	ActionOTPSent                SecurityAction = "otp_sent"
	ActionOTPResent              SecurityAction = "otp_resent"
	ActionOTPVerified            SecurityAction = "otp_verified"
	ActionOTPFailed              SecurityAction = "otp_failed"
	ActionOTPLocked              SecurityAction = "otp_locked"
	ActionLoginSuccess           SecurityAction = "login_success"
	ActionLoginTwoFactorTOTP     SecurityAction = "login_2fa_totp"
	ActionLoginTwoFactorBackup   SecurityAction = "login_2fa_backup_code"
	ActionTwoFactorFailed        SecurityAction = "2fa_failed"
	ActionTwoFactorSetupStarted  SecurityAction = "2fa_setup_started"
	ActionTwoFactorEnabled       SecurityAction = "2fa_enabled"
	ActionTwoFactorDisabled      SecurityAction = "2fa_disabled"
	ActionBackupCodesRegenerated SecurityAction = "backup_codes_regenerated"
	ActionPasswordResetRequested SecurityAction = "password_reset_requested"
	ActionPasswordReset          SecurityAction = "password_reset"
	ActionPasswordChanged        SecurityAction = "password_changed"
	ActionEmailVerified          SecurityAction = "email_verified"
	ActionLogout                 SecurityAction = "logout"
)
