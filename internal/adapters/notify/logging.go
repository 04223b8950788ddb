package notify

import (
	"context"
	"log/slog"

	"github.com/shopfront/auth-service/internal/ports"
)

// LoggingNotifier records that a message would have been sent. Bodies carry
// codes and links, so only the envelope is logged.
type LoggingNotifier struct {
	logger *slog.Logger
}

func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Deliver(ctx context.Context, msg ports.Notification) error {
	if err := validateEnvelope(msg); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "notification delivered",
		"module", "notify.logging",
		"layer", "adapter",
		"operation", "deliver_notification",
		"outcome", "success",
		"recipient", maskRecipient(msg.Recipient),
		"subject", msg.Subject,
	)
	return nil
}
