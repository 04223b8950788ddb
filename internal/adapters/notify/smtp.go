package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/ports"
	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 10 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier delivers notifications over SMTP, upgrading to TLS when the
// server offers STARTTLS.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	cfg.From = strings.TrimSpace(cfg.From)
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("parse smtp sender address: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

func (n *SMTPNotifier) Deliver(ctx context.Context, msg ports.Notification) error {
	if err := validateEnvelope(msg); err != nil {
		return err
	}
	m, err := buildMessage(n.cfg.From, msg)
	if err != nil {
		return err
	}
	client, err := n.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail to %s: %w", maskRecipient(msg.Recipient), err)
	}
	return nil
}

func (n *SMTPNotifier) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(n.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

// buildMessage renders a multipart/alternative message; plain text only when
// no HTML body is present.
func buildMessage(from string, msg ports.Notification) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(msg.Recipient); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageIDWithValue(uuid.NewString() + "@" + senderDomain(from))
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}
	return m, nil
}

func validateEnvelope(msg ports.Notification) error {
	if strings.TrimSpace(msg.Recipient) == "" {
		return errors.New("notification recipient is required")
	}
	if strings.ContainsAny(msg.Recipient, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return errors.New("notification header contains line breaks")
	}
	return nil
}

func senderDomain(from string) string {
	from = strings.TrimSuffix(strings.TrimSpace(from), ">")
	if idx := strings.LastIndex(from, "@"); idx >= 0 && idx < len(from)-1 {
		return from[idx+1:]
	}
	return "localhost"
}

func maskRecipient(recipient string) string {
	local, domain, ok := strings.Cut(recipient, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
