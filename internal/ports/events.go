package ports

import "context"

// EventPublisher is the outbound domain-event publish port.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}

// Notification is a rendered out-of-band message for one recipient.
type Notification struct {
	Recipient string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// Notifier delivers notifications (OTP codes, links, security confirmations).
type Notifier interface {
	Deliver(ctx context.Context, n Notification) error
}
