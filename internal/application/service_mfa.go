package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopfront/auth-service/internal/domain"
)

// Begin2FAEnrollment creates an unconfirmed TOTP secret for the authenticated account.
func (s *Service) Begin2FAEnrollment(ctx context.Context, token string, meta RequestMeta) (TwoFAEnrollmentResponse, error) {
	_, account, err := s.authenticate(ctx, token)
	if err != nil {
		return TwoFAEnrollmentResponse{}, err
	}
	key, err := s.twoFactor.BeginEnrollment(ctx, account)
	if err != nil {
		return TwoFAEnrollmentResponse{}, err
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionTwoFactorSetupStarted, meta, nil)
	return TwoFAEnrollmentResponse{Secret: key.Secret, ProvisioningURI: key.ProvisioningURI}, nil
}

// Confirm2FAEnrollment enables 2FA and returns the backup codes; they are never shown again.
func (s *Service) Confirm2FAEnrollment(ctx context.Context, token string, req TwoFAConfirmRequest) (BackupCodesResponse, error) {
	if strings.TrimSpace(req.Code) == "" {
		return BackupCodesResponse{}, fmt.Errorf("%w: code is required", domain.ErrInvalidInput)
	}
	_, account, err := s.authenticate(ctx, token)
	if err != nil {
		return BackupCodesResponse{}, err
	}
	codes, err := s.twoFactor.ConfirmEnrollment(ctx, account, req.Code)
	if err != nil {
		return BackupCodesResponse{}, err
	}
	event := s.newOutboxEvent(EventTypeTwoFactorEnabled, account.AccountID, nil)
	s.recordEvent(ctx, account.AccountID, domain.ActionTwoFactorEnabled, req.Meta, &event)
	s.notifySecurityChange(ctx, account, "Two-factor authentication was enabled")
	return BackupCodesResponse{BackupCodes: codes}, nil
}

// Disable2FA requires the current password and a valid TOTP code.
func (s *Service) Disable2FA(ctx context.Context, token string, req TwoFADisableRequest) error {
	if req.Password == "" || strings.TrimSpace(req.Code) == "" {
		return fmt.Errorf("%w: password and code are required", domain.ErrInvalidInput)
	}
	_, account, err := s.authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.recheckPassword(ctx, account, req.Password); err != nil {
		return err
	}
	if err := s.twoFactor.Disable(ctx, account, req.Code); err != nil {
		if _, isAuth := domain.AsAuthError(err); isAuth {
			s.recordEvent(ctx, account.AccountID, domain.ActionTwoFactorFailed, req.Meta, nil)
		}
		return err
	}
	event := s.newOutboxEvent(EventTypeTwoFactorDisabled, account.AccountID, nil)
	s.recordEvent(ctx, account.AccountID, domain.ActionTwoFactorDisabled, req.Meta, &event)
	s.notifySecurityChange(ctx, account, "Two-factor authentication was disabled")
	return nil
}

// RegenerateBackupCodes replaces every stored backup code after a password re-check.
func (s *Service) RegenerateBackupCodes(ctx context.Context, token string, req RegenerateBackupCodesRequest) (BackupCodesResponse, error) {
	if req.Password == "" {
		return BackupCodesResponse{}, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	_, account, err := s.authenticate(ctx, token)
	if err != nil {
		return BackupCodesResponse{}, err
	}
	if err := s.recheckPassword(ctx, account, req.Password); err != nil {
		return BackupCodesResponse{}, err
	}
	codes, err := s.twoFactor.RegenerateBackupCodes(ctx, account)
	if err != nil {
		return BackupCodesResponse{}, err
	}
	s.recordEvent(ctx, account.AccountID, domain.ActionBackupCodesRegenerated, req.Meta, nil)
	return BackupCodesResponse{BackupCodes: codes}, nil
}

// notifySecurityChange sends a best-effort confirmation; the change itself already happened.
func (s *Service) notifySecurityChange(ctx context.Context, account domain.Account, action string) {
	_ = s.deliver(ctx, notifySecurityAlert, account, notificationData{
		Action:     action,
		OccurredAt: s.nowFn().Format("2006-01-02 15:04 MST"),
	})
}
