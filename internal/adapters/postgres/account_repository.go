package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) Create(ctx context.Context, params ports.CreateAccountParams, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	rec := accountModel{
		AccountID:    params.AccountID,
		Email:        params.Email,
		DisplayName:  params.DisplayName,
		PasswordHash: params.PasswordHash,
		Role:         string(params.Role),
		IsActive:     true,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	if rec.AccountID == uuid.Nil {
		rec.AccountID = uuid.New()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		outbox := toOutboxModel(outboxEvent)
		if outbox.PartitionKey == "" {
			outbox.PartitionKey = rec.AccountID.String()
		}
		return tx.Create(&outbox).Error
	})
	if err != nil {
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).Take(&rec).Error; err != nil {
		return domain.Account{}, notFound(err)
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		return domain.Account{}, notFound(err)
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, accountID uuid.UUID, passwordHash string, at time.Time) error {
	return r.update(ctx, accountID, map[string]any{
		"password_hash": passwordHash,
		"updated_at":    at,
	})
}

func (r *accountRepository) SetEmailVerified(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	return r.update(ctx, accountID, map[string]any{
		"email_verified":                true,
		"email_verification_token_hash": nil,
		"email_verification_expires_at": nil,
		"updated_at":                    at,
	})
}

func (r *accountRepository) SetOneShotToken(ctx context.Context, accountID uuid.UUID, purpose domain.TokenPurpose, tokenHash string, expiresAt time.Time) error {
	hashColumn, expiresColumn, err := tokenColumns(purpose)
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, map[string]any{
		hashColumn:    tokenHash,
		expiresColumn: expiresAt,
	})
}

func (r *accountRepository) ClearOneShotToken(ctx context.Context, accountID uuid.UUID, purpose domain.TokenPurpose) error {
	hashColumn, expiresColumn, err := tokenColumns(purpose)
	if err != nil {
		return err
	}
	return r.update(ctx, accountID, map[string]any{
		hashColumn:    nil,
		expiresColumn: nil,
	})
}

func (r *accountRepository) ConsumeOneShotToken(ctx context.Context, purpose domain.TokenPurpose, tokenHash string, now time.Time) (uuid.UUID, error) {
	hashColumn, expiresColumn, err := tokenColumns(purpose)
	if err != nil {
		return uuid.Nil, err
	}
	var rec accountModel
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "account_id"}}}).
		Where(hashColumn+" = ?", tokenHash).
		Where(expiresColumn+" > ?", now).
		Updates(map[string]any{
			hashColumn:    nil,
			expiresColumn: nil,
		})
	if res.Error != nil {
		return uuid.Nil, res.Error
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, domain.ErrNotFound
	}
	return rec.AccountID, nil
}

func (r *accountRepository) FindByOneShotToken(ctx context.Context, purpose domain.TokenPurpose, tokenHash string, now time.Time) (domain.Account, error) {
	hashColumn, expiresColumn, err := tokenColumns(purpose)
	if err != nil {
		return domain.Account{}, err
	}
	var rec accountModel
	err = r.db.WithContext(ctx).
		Where(hashColumn+" = ?", tokenHash).
		Where(expiresColumn+" > ?", now).
		Take(&rec).Error
	if err != nil {
		return domain.Account{}, notFound(err)
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) ResetPasswordWithToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	hashColumn, expiresColumn, err := tokenColumns(domain.TokenPurposePasswordReset)
	if err != nil {
		return uuid.Nil, err
	}
	var rec accountModel
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "account_id"}}}).
		Where(hashColumn+" = ?", tokenHash).
		Where(expiresColumn+" > ?", now).
		Updates(map[string]any{
			"password_hash": passwordHash,
			hashColumn:      nil,
			expiresColumn:   nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return uuid.Nil, res.Error
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, domain.ErrNotFound
	}
	return rec.AccountID, nil
}

func (r *accountRepository) IncrementFailedLogins(ctx context.Context, accountID uuid.UUID, threshold int, lockUntil time.Time) (ports.LockoutState, error) {
	var rec accountModel
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "failed_login_count"}, {Name: "locked_until"}}}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"failed_login_count": gorm.Expr("failed_login_count + 1"),
			"locked_until": gorm.Expr(
				"CASE WHEN failed_login_count + 1 >= ? THEN CAST(? AS timestamptz) ELSE locked_until END",
				threshold, lockUntil,
			),
		})
	if res.Error != nil {
		return ports.LockoutState{}, res.Error
	}
	if res.RowsAffected == 0 {
		return ports.LockoutState{}, domain.ErrNotFound
	}
	return ports.LockoutState{FailedCount: rec.FailedLoginCount, LockedUntil: rec.LockedUntil}, nil
}

func (r *accountRepository) ResetFailedLogins(ctx context.Context, accountID uuid.UUID) error {
	return r.update(ctx, accountID, map[string]any{
		"failed_login_count": 0,
		"locked_until":       nil,
	})
}

func (r *accountRepository) ClearExpiredLock(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Where("locked_until IS NOT NULL").
		Where("locked_until <= ?", now).
		Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
		}).Error
}

func (r *accountRepository) StoreOTP(ctx context.Context, accountID uuid.UUID, otpHash string, expiresAt time.Time) error {
	return r.update(ctx, accountID, map[string]any{
		"otp_hash":         otpHash,
		"otp_expires_at":   expiresAt,
		"otp_attempts":     0,
		"otp_locked_until": nil,
	})
}

func (r *accountRepository) ClearOTP(ctx context.Context, accountID uuid.UUID) error {
	return r.update(ctx, accountID, map[string]any{
		"otp_hash":       nil,
		"otp_expires_at": nil,
		"otp_attempts":   0,
	})
}

func (r *accountRepository) ConsumeOTP(ctx context.Context, accountID uuid.UUID, otpHash string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Where("otp_hash = ?", otpHash).
		Where("otp_expires_at > ?", now).
		Where("(otp_locked_until IS NULL OR otp_locked_until <= ?)", now).
		Updates(map[string]any{
			"otp_hash":         nil,
			"otp_expires_at":   nil,
			"otp_attempts":     0,
			"otp_locked_until": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *accountRepository) RecordOTPFailure(ctx context.Context, accountID uuid.UUID, otpHash string, maxAttempts int, lockUntil time.Time) (ports.OTPAttemptState, error) {
	var rec accountModel
	res := r.db.WithContext(ctx).
		Model(&rec).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "otp_attempts"}, {Name: "otp_locked_until"}}}).
		Where("account_id = ?", accountID).
		Where("otp_hash = ?", otpHash).
		Updates(map[string]any{
			"otp_attempts": gorm.Expr("otp_attempts + 1"),
			"otp_locked_until": gorm.Expr(
				"CASE WHEN otp_attempts + 1 >= ? THEN CAST(? AS timestamptz) ELSE otp_locked_until END",
				maxAttempts, lockUntil,
			),
			"otp_hash":       gorm.Expr("CASE WHEN otp_attempts + 1 >= ? THEN NULL ELSE otp_hash END", maxAttempts),
			"otp_expires_at": gorm.Expr("CASE WHEN otp_attempts + 1 >= ? THEN NULL ELSE otp_expires_at END", maxAttempts),
		})
	if res.Error != nil {
		return ports.OTPAttemptState{}, res.Error
	}
	if res.RowsAffected == 0 {
		return ports.OTPAttemptState{}, domain.ErrNotFound
	}
	return ports.OTPAttemptState{Attempts: rec.OTPAttempts, LockedUntil: rec.OTPLockedUntil}, nil
}

func (r *accountRepository) SetLoginStage(ctx context.Context, accountID uuid.UUID, stage domain.LoginStage, expiresAt *time.Time) error {
	return r.update(ctx, accountID, map[string]any{
		"login_stage":            string(stage),
		"login_stage_expires_at": expiresAt,
	})
}

func (r *accountRepository) CompleteLogin(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	return r.update(ctx, accountID, map[string]any{
		"login_stage":            string(domain.LoginStageNone),
		"login_stage_expires_at": nil,
		"failed_login_count":     0,
		"locked_until":           nil,
		"last_login_at":          at,
		"updated_at":             at,
	})
}

func (r *accountRepository) SetTwoFactorSecret(ctx context.Context, accountID uuid.UUID, secret string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Where("two_factor_enabled = FALSE").
		Updates(map[string]any{
			"two_factor_secret": secret,
			"updated_at":        at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missingOr(ctx, r.db, accountID, domain.ErrConflict)
	}
	return nil
}

func (r *accountRepository) EnableTwoFactor(ctx context.Context, accountID uuid.UUID, backupCodeHashes []string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", accountID).
			Where("two_factor_enabled = FALSE").
			Where("two_factor_secret IS NOT NULL").
			Updates(map[string]any{
				"two_factor_enabled": true,
				"updated_at":         at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.missingOr(ctx, tx, accountID, domain.ErrConflict)
		}
		return replaceBackupCodes(tx, accountID, backupCodeHashes, at)
	})
}

func (r *accountRepository) DisableTwoFactor(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&accountModel{}).
			Where("account_id = ?", accountID).
			Updates(map[string]any{
				"two_factor_enabled": false,
				"two_factor_secret":  nil,
				"updated_at":         at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return replaceBackupCodes(tx, accountID, nil, at)
	})
}

func (r *accountRepository) update(ctx context.Context, accountID uuid.UUID, values map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// missingOr distinguishes a missing account from a row whose guard condition did not hold.
func (r *accountRepository) missingOr(ctx context.Context, db *gorm.DB, accountID uuid.UUID, guardErr error) error {
	var exists int64
	if err := db.WithContext(ctx).Model(&accountModel{}).Where("account_id = ?", accountID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	return guardErr
}
