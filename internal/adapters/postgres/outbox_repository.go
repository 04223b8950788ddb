package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepository struct {
	db *gorm.DB
}

// ClaimUnpublished leases up to limit pending events in one statement.
// Rows locked by another worker are skipped rather than waited on.
func (r *outboxRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, errors.New("outbox claim token is required")
	}

	leasable := r.db.WithContext(ctx).
		Model(&authOutboxModel{}).
		Select("outbox_id").
		Where("published_at IS NULL AND dead_lettered_at IS NULL").
		Where("(claim_until IS NULL OR claim_until < NOW())").
		Order("created_at ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

	var leased []authOutboxModel
	err := r.db.WithContext(ctx).
		Model(&leased).
		Clauses(clause.Returning{}).
		Where("outbox_id IN (?)", leasable).
		Updates(map[string]any{
			"claim_token": claimToken,
			"claim_until": claimUntil,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("lease outbox events: %w", err)
	}

	// RETURNING order is unspecified; publish oldest first.
	sort.Slice(leased, func(i, j int) bool {
		return leased[i].CreatedAt.Before(leased[j].CreatedAt)
	})
	records := make([]ports.OutboxRecord, len(leased))
	for i, row := range leased {
		records[i] = toOutboxRecord(row)
	}
	return records, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.release(ctx, outboxID, claimToken, map[string]any{
		"published_at": at,
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.release(ctx, outboxID, claimToken, map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	})
}

func (r *outboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.release(ctx, outboxID, claimToken, map[string]any{
		"retry_count":      gorm.Expr("retry_count + 1"),
		"last_error":       errMsg,
		"last_error_at":    at,
		"dead_lettered_at": at,
	})
}

// release applies values and drops the lease, but only while claimToken still
// holds it; an expired lease may already belong to another worker.
func (r *outboxRepository) release(ctx context.Context, outboxID uuid.UUID, claimToken string, values map[string]any) error {
	values["claim_token"] = nil
	values["claim_until"] = nil
	res := r.db.WithContext(ctx).
		Model(&authOutboxModel{}).
		Where("outbox_id = ? AND claim_token = ?", outboxID, claimToken).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update outbox event %s: %w", outboxID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("outbox event %s is no longer leased by this worker", outboxID)
	}
	return nil
}
