package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

const maxDisplayNameLength = 100

// Register creates an account and its registration outbox event in one transaction,
// then emails a verification link. A failed email leaves the account in place but
// drops the undeliverable token; the user can request a new one after logging in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return RegisterResponse{}, err
	}
	if ip := strings.TrimSpace(req.Meta.IPAddress); ip != "" {
		if err := s.enforceRateLimit(
			ctx,
			"register:ip:"+ip,
			s.cfg.RegisterRateLimitIPThreshold,
			s.cfg.RegisterRateLimitWindow,
		); err != nil {
			return RegisterResponse{}, err
		}
	}
	if err := s.enforceRateLimit(
		ctx,
		"register:identifier:"+email,
		s.cfg.RegisterRateLimitIdentifierThreshold,
		s.cfg.RegisterRateLimitWindow,
	); err != nil {
		return RegisterResponse{}, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return RegisterResponse{}, fmt.Errorf("%w: display name must be <= %d characters", domain.ErrInvalidInput, maxDisplayNameLength)
	}
	passwordHash, err := s.credentials.HashCredential(req.Password, email)
	if err != nil {
		return RegisterResponse{}, err
	}

	accountID := uuid.New()
	event := s.newOutboxEvent(EventTypeAccountRegistered, accountID, map[string]any{
		"email": email,
	})
	account, err := s.accounts.Create(ctx, ports.CreateAccountParams{
		AccountID:    accountID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		CreatedAt:    s.nowFn(),
	}, event)
	if err != nil {
		return RegisterResponse{}, err
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionRegistered, req.Meta, nil)

	sent := true
	if err := s.sendVerificationEmail(ctx, account); err != nil {
		appLogger().WarnContext(ctx, "verification email not sent at registration",
			"operation", "register",
			"outcome", "partial",
			"account_id", account.AccountID.String(),
			"error", err,
		)
		sent = false
	}
	return RegisterResponse{AccountID: account.AccountID, VerificationEmailSent: sent}, nil
}

// RequestEmailVerification issues a fresh verification link for the authenticated account.
func (s *Service) RequestEmailVerification(ctx context.Context, token string) error {
	_, account, err := s.authenticate(ctx, token)
	if err != nil {
		return err
	}
	if account.EmailVerified {
		return fmt.Errorf("%w: email already verified", domain.ErrConflict)
	}
	return s.sendVerificationEmail(ctx, account)
}

// VerifyEmail consumes a verification token and marks the email verified.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) error {
	account, err := s.credentials.ConsumeOneShotToken(ctx, domain.TokenPurposeEmailVerification, req.Token)
	if err != nil {
		return err
	}
	if err := s.accounts.SetEmailVerified(ctx, account.AccountID, s.nowFn()); err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionEmailVerified, req.Meta, nil)
	return nil
}

// ForgotPassword emails a reset link when the identity exists.
// Unknown identities get the same nil result to avoid account enumeration.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if err := s.enforceRateLimit(
		ctx,
		"forgot:"+email,
		s.cfg.ForgotPasswordRateLimitThreshold,
		s.cfg.ForgotPasswordRateLimitWindow,
	); err != nil {
		return err
	}

	account, ok, err := s.resolveAccount(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	token, err := s.credentials.IssueOneShotToken(ctx, account.AccountID, domain.TokenPurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, notifyPasswordReset, account, notificationData{
		Link:     s.publicLink("/password/reset/", token),
		ValidFor: humanDuration(s.cfg.ResetTokenTTL),
	}); err != nil {
		// The caller sees the same result as for an unknown identity.
		s.revokeToken(ctx, account, domain.TokenPurposePasswordReset)
		appLogger().ErrorContext(ctx, "password reset email not sent",
			"operation", "forgot_password",
			"outcome", "failure",
			"account_id", account.AccountID.String(),
			"error", err,
		)
		return nil
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionPasswordResetRequested, req.Meta, nil)
	return nil
}

// ResetPassword consumes a reset token, replaces the password and revokes every session.
// A password rejected by policy leaves the token usable for another attempt.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	account, err := s.credentials.ResetWithToken(ctx, req.Token, req.NewPassword)
	if err != nil {
		return err
	}

	now := s.nowFn()
	revoked, err := s.sessions.RevokeAllByAccount(ctx, account.AccountID, now)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.markRevoked(ctx, revoked...)

	event := s.newOutboxEvent(EventTypePasswordReset, account.AccountID, map[string]any{
		"revoked_sessions": len(revoked),
	})
	s.recordEvent(ctx, account.AccountID, domain.ActionPasswordReset, req.Meta, &event)
	s.notifySecurityChange(ctx, account, "Your password was reset")
	return nil
}

// ChangePassword replaces the password of the authenticated account after re-checking the current one.
func (s *Service) ChangePassword(ctx context.Context, token string, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fmt.Errorf("%w: current and new password are required", domain.ErrInvalidInput)
	}
	_, account, err := s.authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.recheckPassword(ctx, account, req.CurrentPassword); err != nil {
		return err
	}
	if req.CurrentPassword == req.NewPassword {
		return fmt.Errorf("%w: new password must differ from the current one", domain.ErrInvalidInput)
	}
	if err := s.credentials.SetCredential(ctx, account, req.NewPassword); err != nil {
		return err
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionPasswordChanged, req.Meta, nil)
	s.notifySecurityChange(ctx, account, "Your password was changed")
	return nil
}

func (s *Service) sendVerificationEmail(ctx context.Context, account domain.Account) error {
	token, err := s.credentials.IssueOneShotToken(ctx, account.AccountID, domain.TokenPurposeEmailVerification)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, notifyEmailVerification, account, notificationData{
		Link:     s.publicLink("/verify-email/", token),
		ValidFor: humanDuration(s.cfg.VerificationTokenTTL),
	}); err != nil {
		s.revokeToken(ctx, account, domain.TokenPurposeEmailVerification)
		return err
	}
	return nil
}

func (s *Service) revokeToken(ctx context.Context, account domain.Account, purpose domain.TokenPurpose) {
	if err := s.credentials.RevokeOneShotToken(ctx, account.AccountID, purpose); err != nil && !errors.Is(err, domain.ErrNotFound) {
		appLogger().ErrorContext(ctx, "one-shot token rollback failed",
			"operation", "revoke_one_shot_token",
			"outcome", "failure",
			"purpose", string(purpose),
			"error", err,
		)
	}
}
