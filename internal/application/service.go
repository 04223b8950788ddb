package application

import (
	"time"

	"github.com/shopfront/auth-service/internal/ports"
)

const serviceName = "shopfront-auth-service"

// Service is the authentication orchestrator.
// It sequences the credential store, lockout guard, OTP engine and 2FA engine and records every step.
type Service struct {
	cfg         Config
	accounts    ports.AccountRepository
	sessions    ports.SessionRepository
	securityLog ports.SecurityLogRepository
	limiter     ports.RateLimiter
	revocations ports.SessionRevocationStore
	notifier    ports.Notifier
	tokenSigner ports.TokenSigner

	credentials *CredentialStore
	lockout     *LockoutGuard
	otp         *OTPEngine
	twoFactor   *TwoFactorEngine
	templates   *notificationTemplates

	nowFn func() time.Time
}

type Dependencies struct {
	Config      Config
	Accounts    ports.AccountRepository
	BackupCodes ports.BackupCodeRepository
	Sessions    ports.SessionRepository
	SecurityLog ports.SecurityLogRepository
	RateLimiter ports.RateLimiter
	LockCache   ports.LockCache
	Revocations ports.SessionRevocationStore
	Notifier    ports.Notifier
	Hasher      ports.PasswordHasher
	TokenSigner ports.TokenSigner
	TOTP        ports.TOTPProvider
	// Now overrides the clock; tests use it to step through lockout windows.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config.withDefaults()
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		cfg:         cfg,
		accounts:    deps.Accounts,
		sessions:    deps.Sessions,
		securityLog: deps.SecurityLog,
		limiter:     deps.RateLimiter,
		revocations: deps.Revocations,
		notifier:    deps.Notifier,
		tokenSigner: deps.TokenSigner,
		credentials: NewCredentialStore(deps.Accounts, deps.Hasher, cfg, nowFn),
		lockout:     NewLockoutGuard(deps.Accounts, deps.LockCache, cfg, nowFn),
		otp:         NewOTPEngine(deps.Accounts, cfg, nowFn),
		twoFactor:   NewTwoFactorEngine(deps.Accounts, deps.BackupCodes, deps.TOTP, cfg, nowFn),
		templates:   mustParseNotificationTemplates(),
		nowFn:       nowFn,
	}
}
