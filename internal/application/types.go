package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
)

type Config struct {
	FailedLoginThreshold int
	LockoutDuration      time.Duration

	OTPLength       int
	OTPTTL          time.Duration
	OTPMaxAttempts  int
	OTPLockDuration time.Duration

	OTPStageTTL       time.Duration
	TwoFactorStageTTL time.Duration

	TwoFactorRateLimitThreshold int
	TwoFactorRateLimitWindow    time.Duration
	BackupCodeCount             int
	BackupCodeLength            int

	SessionTTL           time.Duration
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
	SecurityLogLimit     int

	RegisterRateLimitIPThreshold         int
	RegisterRateLimitIdentifierThreshold int
	RegisterRateLimitWindow              time.Duration
	ForgotPasswordRateLimitThreshold     int
	ForgotPasswordRateLimitWindow        time.Duration
	// PasswordRecheck limits cap how often a signed-in account may re-enter its password.
	PasswordRecheckRateLimitThreshold int
	PasswordRecheckRateLimitWindow    time.Duration

	// PublicBaseURL prefixes links placed in verification and reset emails.
	PublicBaseURL string
	StoreName     string
}

func (c Config) withDefaults() Config {
	setInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	setDur := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	setInt(&c.FailedLoginThreshold, 5)
	setDur(&c.LockoutDuration, 15*time.Minute)
	setInt(&c.OTPLength, 6)
	setDur(&c.OTPTTL, 10*time.Minute)
	setInt(&c.OTPMaxAttempts, 5)
	setDur(&c.OTPLockDuration, 30*time.Minute)
	setDur(&c.OTPStageTTL, 15*time.Minute)
	setDur(&c.TwoFactorStageTTL, 10*time.Minute)
	setInt(&c.TwoFactorRateLimitThreshold, 5)
	setDur(&c.TwoFactorRateLimitWindow, 15*time.Minute)
	setInt(&c.BackupCodeCount, 10)
	setInt(&c.BackupCodeLength, 10)
	setDur(&c.SessionTTL, 30*24*time.Hour)
	setDur(&c.ResetTokenTTL, time.Hour)
	setDur(&c.VerificationTokenTTL, 24*time.Hour)
	setInt(&c.SecurityLogLimit, 50)
	setInt(&c.RegisterRateLimitIPThreshold, 20)
	setInt(&c.RegisterRateLimitIdentifierThreshold, 6)
	setDur(&c.RegisterRateLimitWindow, time.Minute)
	setInt(&c.ForgotPasswordRateLimitThreshold, 3)
	setDur(&c.ForgotPasswordRateLimitWindow, 15*time.Minute)
	setInt(&c.PasswordRecheckRateLimitThreshold, 5)
	setDur(&c.PasswordRecheckRateLimitWindow, 15*time.Minute)
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:3000"
	}
	if c.StoreName == "" {
		c.StoreName = "Shopfront"
	}
	return c
}

// RequestMeta is the network context recorded in the security log.
// It is never decoded from request bodies.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type RegisterRequest struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	DisplayName string      `json:"display_name"`
	Meta        RequestMeta `json:"-"`
}

type RegisterResponse struct {
	AccountID             uuid.UUID `json:"account_id"`
	VerificationEmailSent bool      `json:"verification_email_sent"`
}

type LoginRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Meta     RequestMeta `json:"-"`
}

// AuthStepResponse is the next-state payload shared by every login step.
type AuthStepResponse struct {
	RequiresOTP   bool   `json:"requires_otp,omitempty"`
	Requires2FA   bool   `json:"requires_2fa,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
	Token         string `json:"token,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	ExpiresIn     int64  `json:"expires_in,omitempty"`
}

type OTPVerifyRequest struct {
	Email string      `json:"email"`
	Code  string      `json:"code"`
	Meta  RequestMeta `json:"-"`
}

type OTPResendRequest struct {
	Email string      `json:"email"`
	Meta  RequestMeta `json:"-"`
}

type OTPResendResponse struct {
	Sent              bool  `json:"sent"`
	TooSoon           bool  `json:"too_soon,omitempty"`
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}

type TwoFAVerifyRequest struct {
	Email         string      `json:"email"`
	Code          string      `json:"code"`
	UseBackupCode bool        `json:"use_backup_code"`
	Meta          RequestMeta `json:"-"`
}

type TwoFAEnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

type TwoFAConfirmRequest struct {
	Code string      `json:"code"`
	Meta RequestMeta `json:"-"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type TwoFADisableRequest struct {
	Password string      `json:"password"`
	Code     string      `json:"code"`
	Meta     RequestMeta `json:"-"`
}

type RegenerateBackupCodesRequest struct {
	Password string      `json:"password"`
	Meta     RequestMeta `json:"-"`
}

type ForgotPasswordRequest struct {
	Email string      `json:"email"`
	Meta  RequestMeta `json:"-"`
}

type ResetPasswordRequest struct {
	Token       string      `json:"-"`
	NewPassword string      `json:"new_password"`
	Meta        RequestMeta `json:"-"`
}

type ChangePasswordRequest struct {
	CurrentPassword string      `json:"current_password"`
	NewPassword     string      `json:"new_password"`
	Meta            RequestMeta `json:"-"`
}

type VerifyEmailRequest struct {
	Token string      `json:"token"`
	Meta  RequestMeta `json:"-"`
}

// TokenValidation is the projection of a valid session token handed to sibling services.
type TokenValidation struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SecurityLogItem struct {
	Action    domain.SecurityAction `json:"action"`
	SourceIP  string                `json:"source_ip,omitempty"`
	UserAgent string                `json:"user_agent,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

func toSecurityLogItem(e domain.SecurityEvent) SecurityLogItem {
	return SecurityLogItem{
		Action:    e.Action,
		SourceIP:  e.SourceIP,
		UserAgent: e.UserAgent,
		Timestamp: e.OccurredAt,
	}
}
