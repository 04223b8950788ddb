package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
	"gorm.io/gorm"
)

type securityLogRepository struct {
	db *gorm.DB
}

// Append writes the entry and trims the account's log to keep rows in the same transaction.
func (r *securityLogRepository) Append(ctx context.Context, event domain.SecurityEvent, keep int, outboxEvent *ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := securityEventModel{
			AccountID:  event.AccountID,
			Action:     string(event.Action),
			SourceIP:   nullableString(event.SourceIP),
			UserAgent:  event.UserAgent,
			OccurredAt: event.OccurredAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if keep > 0 {
			newest := tx.Model(&securityEventModel{}).
				Select("id").
				Where("account_id = ?", event.AccountID).
				Order("occurred_at DESC, id DESC").
				Limit(keep)
			if err := tx.Where("account_id = ?", event.AccountID).
				Where("id NOT IN (?)", newest).
				Delete(&securityEventModel{}).Error; err != nil {
				return err
			}
		}
		if outboxEvent == nil {
			return nil
		}
		outbox := toOutboxModel(*outboxEvent)
		return tx.Create(&outbox).Error
	})
}

func (r *securityLogRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.SecurityEvent, error) {
	var rows []securityEventModel
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("occurred_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.SecurityEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSecurityEvent(row))
	}
	return result, nil
}
