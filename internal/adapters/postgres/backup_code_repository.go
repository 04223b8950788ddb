package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type backupCodeRepository struct {
	db *gorm.DB
}

func (r *backupCodeRepository) Replace(ctx context.Context, accountID uuid.UUID, codeHashes []string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceBackupCodes(tx, accountID, codeHashes, at)
	})
}

// Consume deletes the row; a used code no longer exists anywhere.
func (r *backupCodeRepository) Consume(ctx context.Context, accountID uuid.UUID, codeHash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("code_hash = ?", codeHash).
		Delete(&backupCodeModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *backupCodeRepository) Count(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&backupCodeModel{}).Where("account_id = ?", accountID).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func replaceBackupCodes(tx *gorm.DB, accountID uuid.UUID, codeHashes []string, at time.Time) error {
	if err := tx.Where("account_id = ?", accountID).Delete(&backupCodeModel{}).Error; err != nil {
		return err
	}
	if len(codeHashes) == 0 {
		return nil
	}
	rows := make([]backupCodeModel, 0, len(codeHashes))
	for _, hash := range codeHashes {
		rows = append(rows, backupCodeModel{AccountID: accountID, CodeHash: hash, CreatedAt: at})
	}
	return tx.Create(&rows).Error
}
