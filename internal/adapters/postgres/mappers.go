package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
	"gorm.io/gorm"
)

func toDomainAccount(row accountModel) domain.Account {
	return domain.Account{
		AccountID:           row.AccountID,
		Email:               row.Email,
		DisplayName:         row.DisplayName,
		PasswordHash:        row.PasswordHash,
		Role:                domain.ParseRole(row.Role),
		EmailVerified:       row.EmailVerified,
		IsActive:            row.IsActive,
		OTPHash:             derefString(row.OTPHash),
		OTPExpiresAt:        row.OTPExpiresAt,
		OTPAttempts:         row.OTPAttempts,
		OTPLockedUntil:      row.OTPLockedUntil,
		TwoFactorEnabled:    row.TwoFactorEnabled,
		TwoFactorSecret:     derefString(row.TwoFactorSecret),
		FailedLoginCount:    row.FailedLoginCount,
		LockedUntil:         row.LockedUntil,
		LoginStage:          domain.LoginStage(row.LoginStage),
		LoginStageExpiresAt: row.LoginStageExpiresAt,
		LastLoginAt:         row.LastLoginAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	return domain.Session{
		SessionID: row.SessionID,
		AccountID: row.AccountID,
		IPAddress: derefString(row.IPAddress),
		UserAgent: row.UserAgent,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
		RevokedAt: row.RevokedAt,
	}
}

func toDomainSecurityEvent(row securityEventModel) domain.SecurityEvent {
	return domain.SecurityEvent{
		ID:         row.ID,
		AccountID:  row.AccountID,
		Action:     domain.SecurityAction(row.Action),
		SourceIP:   derefString(row.SourceIP),
		UserAgent:  row.UserAgent,
		OccurredAt: row.OccurredAt,
	}
}

func toOutboxRecord(row authOutboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

func toOutboxModel(event ports.OutboxEvent) authOutboxModel {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	return authOutboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(payload),
		CreatedAt:    event.OccurredAt,
		FirstSeenAt:  event.OccurredAt,
	}
}

// tokenColumns maps a one-shot token purpose to its hash and expiry columns.
func tokenColumns(purpose domain.TokenPurpose) (hashColumn, expiresColumn string, err error) {
	switch purpose {
	case domain.TokenPurposeEmailVerification:
		return "email_verification_token_hash", "email_verification_expires_at", nil
	case domain.TokenPurposePasswordReset:
		return "reset_token_hash", "reset_expires_at", nil
	default:
		return "", "", fmt.Errorf("%w: unknown token purpose %q", domain.ErrInvalidInput, purpose)
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
