package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	row := sessionModel{
		SessionID: uuid.New(),
		AccountID: params.AccountID,
		IPAddress: nullableString(params.IPAddress),
		UserAgent: params.UserAgent,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return toDomainSession(row), nil
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error) {
	var row sessionModel
	err := r.db.WithContext(ctx).Take(&row, "session_id = ?", sessionID).Error
	if err != nil {
		return domain.Session{}, notFound(err)
	}
	return toDomainSession(row), nil
}

// RevokeByID is idempotent: revoking an already revoked session succeeds, an
// unknown id is ErrNotFound.
func (r *sessionRepository) RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	var row sessionModel
	err := r.db.WithContext(ctx).
		Model(&row).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "session_id"}}}).
		Where("session_id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", revokedAt).Error
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if row.SessionID != uuid.Nil {
		return nil
	}
	_, err = r.GetByID(ctx, sessionID)
	return err
}

func (r *sessionRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time) ([]domain.Session, error) {
	var rows []sessionModel
	err := r.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Update("revoked_at", revokedAt).Error
	if err != nil {
		return nil, fmt.Errorf("revoke account sessions: %w", err)
	}
	revoked := make([]domain.Session, len(rows))
	for i, row := range rows {
		revoked[i] = toDomainSession(row)
	}
	return revoked, nil
}

// PurgeExpired deletes up to limit sessions whose expiry is before the cutoff.
func (r *sessionRepository) PurgeExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	expired := r.db.Model(&sessionModel{}).
		Select("session_id").
		Where("expires_at < ?", before).
		Order("expires_at").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Where("session_id IN (?)", expired).
		Delete(&sessionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
