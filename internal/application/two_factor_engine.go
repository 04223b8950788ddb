package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

// TwoFactorEngine manages TOTP enrollment, verification and backup codes.
type TwoFactorEngine struct {
	accounts    ports.AccountRepository
	backupCodes ports.BackupCodeRepository
	totp        ports.TOTPProvider
	cfg         Config
	nowFn       func() time.Time
}

func NewTwoFactorEngine(
	accounts ports.AccountRepository,
	backupCodes ports.BackupCodeRepository,
	totp ports.TOTPProvider,
	cfg Config,
	nowFn func() time.Time,
) *TwoFactorEngine {
	return &TwoFactorEngine{accounts: accounts, backupCodes: backupCodes, totp: totp, cfg: cfg, nowFn: nowFn}
}

// BeginEnrollment stores a new unconfirmed secret. 2FA is not enforced until confirmed.
func (e *TwoFactorEngine) BeginEnrollment(ctx context.Context, account domain.Account) (ports.TOTPKey, error) {
	if account.TwoFactorEnabled {
		return ports.TOTPKey{}, fmt.Errorf("%w: two-factor authentication already enabled", domain.ErrConflict)
	}
	key, err := e.totp.GenerateKey(account.Email)
	if err != nil {
		return ports.TOTPKey{}, fmt.Errorf("generate totp key: %w", err)
	}
	if err := e.accounts.SetTwoFactorSecret(ctx, account.AccountID, key.Secret, e.nowFn()); err != nil {
		return ports.TOTPKey{}, fmt.Errorf("store totp secret: %w", err)
	}
	return key, nil
}

// ConfirmEnrollment verifies the first code, enables 2FA and returns the backup codes once.
func (e *TwoFactorEngine) ConfirmEnrollment(ctx context.Context, account domain.Account, code string) ([]string, error) {
	if account.TwoFactorEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication already enabled", domain.ErrConflict)
	}
	if account.TwoFactorSecret == "" {
		return nil, fmt.Errorf("%w: enrollment has not been started", domain.ErrInvalidInput)
	}
	ok, err := e.VerifyCode(account, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.TwoFactorInvalid()
	}

	codes, hashes, err := generateBackupCodes(account.AccountID, e.cfg.BackupCodeCount, e.cfg.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.accounts.EnableTwoFactor(ctx, account.AccountID, hashes, e.nowFn()); err != nil {
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}
	return codes, nil
}

// VerifyCode checks a TOTP code against the stored secret with the configured step window.
func (e *TwoFactorEngine) VerifyCode(account domain.Account, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if account.TwoFactorSecret == "" || code == "" {
		return false, nil
	}
	ok, err := e.totp.Validate(account.TwoFactorSecret, code, e.nowFn())
	if err != nil {
		return false, fmt.Errorf("validate totp: %w", err)
	}
	return ok, nil
}

// VerifyBackupCode deletes the matching code; a code verifies at most once.
func (e *TwoFactorEngine) VerifyBackupCode(ctx context.Context, account domain.Account, code string) (bool, error) {
	canonical := canonicalizeBackupCode(code)
	if canonical == "" {
		return false, nil
	}
	ok, err := e.backupCodes.Consume(ctx, account.AccountID, backupCodeHash(account.AccountID, canonical))
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return ok, nil
}

// Disable requires a valid TOTP code; the caller has already re-checked the password.
func (e *TwoFactorEngine) Disable(ctx context.Context, account domain.Account, code string) error {
	if !account.TwoFactorEnabled {
		return domain.ErrTwoFactorRequired
	}
	ok, err := e.VerifyCode(account, code)
	if err != nil {
		return err
	}
	if !ok {
		return domain.TwoFactorInvalid()
	}
	if err := e.accounts.DisableTwoFactor(ctx, account.AccountID, e.nowFn()); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	return nil
}

// RegenerateBackupCodes replaces the whole set; the caller has already re-checked the password.
func (e *TwoFactorEngine) RegenerateBackupCodes(ctx context.Context, account domain.Account) ([]string, error) {
	if !account.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorRequired
	}
	codes, hashes, err := generateBackupCodes(account.AccountID, e.cfg.BackupCodeCount, e.cfg.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.backupCodes.Replace(ctx, account.AccountID, hashes, e.nowFn()); err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}
	return codes, nil
}
