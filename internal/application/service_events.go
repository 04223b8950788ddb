package application

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

const (
	// EventTypeAccountRegistered is emitted when an account is created.
	EventTypeAccountRegistered = "auth.account.registered"
	// EventTypeAccountLocked is emitted when a failed password engages the lockout.
	EventTypeAccountLocked = "auth.account.locked"
	// EventTypeLoginSucceeded is emitted when a session is issued.
	EventTypeLoginSucceeded = "auth.login.succeeded"
	// EventTypePasswordReset is emitted after a reset token was consumed.
	EventTypePasswordReset = "auth.password.reset"
	// 2FA lifecycle.
	EventTypeTwoFactorEnabled  = "auth.2fa.enabled"
	EventTypeTwoFactorDisabled = "auth.2fa.disabled"
)

// newOutboxEvent builds an outbox record partitioned by account so consumers see per-account order.
func (s *Service) newOutboxEvent(eventType string, accountID uuid.UUID, fields map[string]any) ports.OutboxEvent {
	now := s.nowFn()
	body := map[string]any{
		"event_type":  eventType,
		"occurred_at": now,
	}
	if accountID != uuid.Nil {
		body["account_id"] = accountID.String()
	}
	for k, v := range fields {
		body[k] = v
	}
	payload, _ := json.Marshal(body)
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: accountID.String(),
		Payload:      payload,
		OccurredAt:   now,
	}
}

// recordEvent appends to the account's security log and, when event is non-nil,
// stores the outbox record in the same transaction.
// Audit failures are logged; they never change the outcome of the step being audited.
func (s *Service) recordEvent(ctx context.Context, accountID uuid.UUID, action domain.SecurityAction, meta RequestMeta, event *ports.OutboxEvent) {
	if s.securityLog == nil || accountID == uuid.Nil {
		return
	}
	entry := domain.SecurityEvent{
		AccountID:  accountID,
		Action:     action,
		SourceIP:   meta.IPAddress,
		UserAgent:  meta.UserAgent,
		OccurredAt: s.nowFn(),
	}
	if err := s.securityLog.Append(ctx, entry, s.cfg.SecurityLogLimit, event); err != nil {
		appLogger().ErrorContext(ctx, "security log append failed",
			"operation", "record_security_event",
			"outcome", "failure",
			"action", string(action),
			"account_id", accountID.String(),
			"error", err,
		)
	}
}
