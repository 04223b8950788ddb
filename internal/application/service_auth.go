package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

// Login runs the password step. A valid password never yields a session here:
// it issues an emailed OTP and moves the account to the otp stage.
func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthStepResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthStepResponse{}, err
	}
	if req.Password == "" {
		return AuthStepResponse{}, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	if err := s.lockout.CheckCached(ctx, email); err != nil {
		s.logStep(ctx, "login", "blocked", err)
		return AuthStepResponse{}, err
	}

	account, ok, err := s.resolveAccount(ctx, email)
	if err != nil {
		return AuthStepResponse{}, err
	}
	if !ok {
		s.credentials.Verify(nil, req.Password)
		return AuthStepResponse{}, domain.InvalidCredentials(0)
	}

	if err := s.lockout.Check(ctx, &account); err != nil {
		s.logStep(ctx, "login", "blocked", err)
		return AuthStepResponse{}, err
	}

	if !s.credentials.Verify(&account, req.Password) {
		state, failErr := s.lockout.RecordFailure(ctx, account)
		if errors.Is(failErr, domain.ErrAccountLocked) {
			event := s.newOutboxEvent(EventTypeAccountLocked, account.AccountID, map[string]any{
				"locked_until": state.LockedUntil,
			})
			s.recordEvent(ctx, account.AccountID, domain.ActionLoginFailed, req.Meta, nil)
			s.recordEvent(ctx, account.AccountID, domain.ActionAccountLocked, req.Meta, &event)
		} else if _, isAuth := domain.AsAuthError(failErr); isAuth {
			s.recordEvent(ctx, account.AccountID, domain.ActionLoginFailed, req.Meta, nil)
		}
		s.logStep(ctx, "login", "rejected", failErr)
		return AuthStepResponse{}, failErr
	}
	if err := s.credentials.UpgradeHash(ctx, account, req.Password); err != nil {
		appLogger().WarnContext(ctx, "password rehash skipped",
			"operation", "login",
			"outcome", "degraded",
			"account_id", account.AccountID.String(),
			"error", err,
		)
	}

	now := s.nowFn()
	if remaining := account.OTPLockRemaining(now); remaining > 0 {
		return AuthStepResponse{}, domain.OTPLocked(remaining, false)
	}
	if err := s.startOTPStage(ctx, account, req.Meta, s.otp.Issue, domain.ActionOTPSent); err != nil {
		return AuthStepResponse{}, err
	}
	return AuthStepResponse{RequiresOTP: true}, nil
}

// VerifyOTP runs the mandatory code step. Success resets the password lockout
// because the password was verified by the Login call that issued the code.
func (s *Service) VerifyOTP(ctx context.Context, req OTPVerifyRequest) (AuthStepResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthStepResponse{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return AuthStepResponse{}, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}

	account, ok, err := s.resolveAccount(ctx, email)
	if err != nil {
		return AuthStepResponse{}, err
	}
	if !ok || account.PendingStage(s.nowFn()) != domain.LoginStageOTP {
		return AuthStepResponse{}, domain.InvalidCredentials(0)
	}

	if err := s.otp.Verify(ctx, account, req.Code); err != nil {
		if authErr, isAuth := domain.AsAuthError(err); isAuth {
			action := domain.ActionOTPFailed
			if authErr.Kind == domain.KindOTPLocked {
				action = domain.ActionOTPLocked
			}
			if authErr.Kind != domain.KindOTPLocked || authErr.JustLocked {
				s.recordEvent(ctx, account.AccountID, action, req.Meta, nil)
			}
		}
		s.logStep(ctx, "verify_otp", "rejected", err)
		return AuthStepResponse{}, err
	}

	if err := s.lockout.RecordSuccess(ctx, account); err != nil {
		return AuthStepResponse{}, err
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionOTPVerified, req.Meta, nil)

	if account.TwoFactorEnabled {
		expiresAt := s.nowFn().Add(s.cfg.TwoFactorStageTTL)
		if err := s.accounts.SetLoginStage(ctx, account.AccountID, domain.LoginStageTwoFactor, &expiresAt); err != nil {
			return AuthStepResponse{}, fmt.Errorf("set login stage: %w", err)
		}
		return AuthStepResponse{Requires2FA: true}, nil
	}
	return s.completeLogin(ctx, account, req.Meta)
}

// ResendOTP replaces the login code only once the previous one expired.
// Unknown identities and accounts without a pending otp stage get the same {sent} answer.
func (s *Service) ResendOTP(ctx context.Context, req OTPResendRequest) (OTPResendResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return OTPResendResponse{}, err
	}
	account, ok, err := s.resolveAccount(ctx, email)
	if err != nil {
		return OTPResendResponse{}, err
	}
	if !ok || account.PendingStage(s.nowFn()) != domain.LoginStageOTP {
		return OTPResendResponse{Sent: true}, nil
	}

	if err := s.startOTPStage(ctx, account, req.Meta, s.otp.Resend, domain.ActionOTPResent); err != nil {
		if errors.Is(err, domain.ErrOTPTooSoon) {
			authErr, _ := domain.AsAuthError(err)
			return OTPResendResponse{TooSoon: true, RetryAfterSeconds: authErr.RetryAfterSeconds()}, nil
		}
		return OTPResendResponse{}, err
	}
	return OTPResendResponse{Sent: true}, nil
}

// Verify2FA runs the optional third step with either a TOTP code or a backup code.
func (s *Service) Verify2FA(ctx context.Context, req TwoFAVerifyRequest) (AuthStepResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthStepResponse{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return AuthStepResponse{}, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}
	if err := s.enforceRateLimit(ctx, "2fa:"+email, s.cfg.TwoFactorRateLimitThreshold, s.cfg.TwoFactorRateLimitWindow); err != nil {
		return AuthStepResponse{}, err
	}

	account, ok, err := s.resolveAccount(ctx, email)
	if err != nil {
		return AuthStepResponse{}, err
	}
	if !ok || !account.TwoFactorEnabled || account.PendingStage(s.nowFn()) != domain.LoginStageTwoFactor {
		return AuthStepResponse{}, domain.InvalidCredentials(0)
	}

	var (
		valid  bool
		action domain.SecurityAction
	)
	if req.UseBackupCode {
		valid, err = s.twoFactor.VerifyBackupCode(ctx, account, req.Code)
		action = domain.ActionLoginTwoFactorBackup
	} else {
		valid, err = s.twoFactor.VerifyCode(account, req.Code)
		action = domain.ActionLoginTwoFactorTOTP
	}
	if err != nil {
		return AuthStepResponse{}, err
	}
	if !valid {
		s.recordEvent(ctx, account.AccountID, domain.ActionTwoFactorFailed, req.Meta, nil)
		s.logStep(ctx, "verify_2fa", "rejected", domain.TwoFactorInvalid())
		return AuthStepResponse{}, domain.TwoFactorInvalid()
	}

	s.recordEvent(ctx, account.AccountID, action, req.Meta, nil)
	return s.completeLogin(ctx, account, req.Meta)
}

// startOTPStage issues a code, marks the otp stage and delivers the code.
// A failed delivery drops the code again so no undeliverable OTP stays pending.
func (s *Service) startOTPStage(
	ctx context.Context,
	account domain.Account,
	meta RequestMeta,
	issue func(context.Context, domain.Account) (string, error),
	action domain.SecurityAction,
) error {
	code, err := issue(ctx, account)
	if err != nil {
		return err
	}
	expiresAt := s.nowFn().Add(s.cfg.OTPStageTTL)
	if err := s.accounts.SetLoginStage(ctx, account.AccountID, domain.LoginStageOTP, &expiresAt); err != nil {
		return fmt.Errorf("set login stage: %w", err)
	}
	if err := s.deliver(ctx, notifyLoginCode, account, notificationData{
		Code:     code,
		ValidFor: humanDuration(s.cfg.OTPTTL),
	}); err != nil {
		if clearErr := s.otp.Clear(ctx, account); clearErr != nil {
			appLogger().ErrorContext(ctx, "otp rollback failed",
				"operation", "otp_rollback",
				"outcome", "failure",
				"error", clearErr,
			)
		}
		return err
	}
	s.recordEvent(ctx, account.AccountID, action, meta, nil)
	return nil
}

// completeLogin is the Authenticated transition: session row, signed token and bookkeeping.
func (s *Service) completeLogin(ctx context.Context, account domain.Account, meta RequestMeta) (AuthStepResponse, error) {
	now := s.nowFn()
	if err := s.accounts.CompleteLogin(ctx, account.AccountID, now); err != nil {
		return AuthStepResponse{}, fmt.Errorf("complete login: %w", err)
	}

	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		AccountID: account.AccountID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	})
	if err != nil {
		return AuthStepResponse{}, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		AccountID: account.AccountID,
		Email:     account.Email,
		Role:      string(account.Role),
		SessionID: session.SessionID,
		IssuedAt:  now,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return AuthStepResponse{}, fmt.Errorf("sign token: %w", err)
	}

	event := s.newOutboxEvent(EventTypeLoginSucceeded, account.AccountID, map[string]any{
		"session_id": session.SessionID.String(),
		"two_factor": account.TwoFactorEnabled,
	})
	s.recordEvent(ctx, account.AccountID, domain.ActionLoginSuccess, meta, &event)

	return AuthStepResponse{
		Authenticated: true,
		Token:         token,
		SessionID:     session.SessionID.String(),
		ExpiresIn:     int64(s.cfg.SessionTTL / time.Second),
	}, nil
}

func (s *Service) logStep(ctx context.Context, operation, outcome string, err error) {
	attrs := []any{
		"operation", operation,
		"outcome", outcome,
	}
	if authErr, ok := domain.AsAuthError(err); ok {
		attrs = append(attrs, "reason", string(authErr.Kind))
		if authErr.AttemptsRemaining > 0 {
			attrs = append(attrs, "attempts_remaining", authErr.AttemptsRemaining)
		}
		if authErr.RetryAfter > 0 {
			attrs = append(attrs, "retry_after_seconds", authErr.RetryAfterSeconds())
		}
	} else if err != nil {
		attrs = append(attrs, "error", err)
	}
	appLogger().InfoContext(ctx, "authentication step rejected", attrs...)
}
