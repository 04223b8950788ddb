package application

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

type notificationKind string

const (
	notifyLoginCode         notificationKind = "login_code"
	notifyEmailVerification notificationKind = "email_verification"
	notifyPasswordReset     notificationKind = "password_reset"
	notifySecurityAlert     notificationKind = "security_alert"
)

// notificationData is the single view model shared by every template.
type notificationData struct {
	StoreName   string
	DisplayName string
	Code        string
	Link        string
	ValidFor    string
	Action      string
	OccurredAt  string
}

type notificationTemplate struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

type notificationTemplates struct {
	byKind map[notificationKind]notificationTemplate
}

const layoutHTML = `<!DOCTYPE html><html><body style="font-family:sans-serif;max-width:560px;margin:auto">
<h2>{{.StoreName}}</h2>
<p>Hi {{if .DisplayName}}{{.DisplayName}}{{else}}there{{end}},</p>
{{template "content" .}}
<p style="color:#888;font-size:12px">If you did not request this, you can ignore this email or contact support.</p>
</body></html>`

var notificationSources = map[notificationKind]struct {
	subject string
	html    string
	text    string
}{
	notifyLoginCode: {
		subject: "Your {{.StoreName}} login code",
		html:    `{{define "content"}}<p>Your login code is</p><p style="font-size:28px;letter-spacing:6px"><b>{{.Code}}</b></p><p>It expires in {{.ValidFor}}.</p>{{end}}`,
		text:    "Your {{.StoreName}} login code is {{.Code}}. It expires in {{.ValidFor}}.",
	},
	notifyEmailVerification: {
		subject: "Verify your {{.StoreName}} email address",
		html:    `{{define "content"}}<p>Confirm your email address by opening the link below.</p><p><a href="{{.Link}}">Verify email</a></p><p>The link is valid for {{.ValidFor}}.</p>{{end}}`,
		text:    "Confirm your email address: {{.Link}} (valid for {{.ValidFor}})",
	},
	notifyPasswordReset: {
		subject: "Reset your {{.StoreName}} password",
		html:    `{{define "content"}}<p>We received a request to reset your password.</p><p><a href="{{.Link}}">Choose a new password</a></p><p>The link is valid for {{.ValidFor}}.</p>{{end}}`,
		text:    "Reset your password: {{.Link}} (valid for {{.ValidFor}})",
	},
	notifySecurityAlert: {
		subject: "{{.StoreName}} security notice",
		html:    `{{define "content"}}<p>{{.Action}} on {{.OccurredAt}}.</p><p>If this was not you, reset your password immediately.</p>{{end}}`,
		text:    "{{.Action}} on {{.OccurredAt}}. If this was not you, reset your password immediately.",
	},
}

func parseNotificationTemplates() (*notificationTemplates, error) {
	out := &notificationTemplates{byKind: make(map[notificationKind]notificationTemplate, len(notificationSources))}
	for kind, src := range notificationSources {
		html, err := htmltemplate.New(string(kind)).Parse(layoutHTML)
		if err != nil {
			return nil, fmt.Errorf("parse layout for %s: %w", kind, err)
		}
		if _, err := html.Parse(src.html); err != nil {
			return nil, fmt.Errorf("parse html for %s: %w", kind, err)
		}
		text, err := texttemplate.New(string(kind)).Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("parse text for %s: %w", kind, err)
		}
		subject, err := texttemplate.New(string(kind) + "_subject").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject for %s: %w", kind, err)
		}
		out.byKind[kind] = notificationTemplate{subject: subject, html: html, text: text}
	}
	return out, nil
}

func mustParseNotificationTemplates() *notificationTemplates {
	t, err := parseNotificationTemplates()
	if err != nil {
		panic(err)
	}
	return t
}

func (t *notificationTemplates) render(kind notificationKind, recipient string, data notificationData) (ports.Notification, error) {
	tmpl, ok := t.byKind[kind]
	if !ok {
		return ports.Notification{}, fmt.Errorf("unknown notification %q", kind)
	}
	var subj, html, text bytes.Buffer
	if err := tmpl.subject.Execute(&subj, data); err != nil {
		return ports.Notification{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return ports.Notification{}, fmt.Errorf("render html: %w", err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return ports.Notification{}, fmt.Errorf("render text: %w", err)
	}
	return ports.Notification{
		Recipient: recipient,
		Subject:   subj.String(),
		HTMLBody:  html.String(),
		TextBody:  text.String(),
	}, nil
}

// deliver renders and sends one notification. Any failure, rendering included,
// is reported as DeliveryFailed so callers roll back what they just issued.
func (s *Service) deliver(ctx context.Context, kind notificationKind, account domain.Account, data notificationData) error {
	data.StoreName = s.cfg.StoreName
	data.DisplayName = account.DisplayName
	n, err := s.templates.render(kind, account.Email, data)
	if err != nil {
		return domain.DeliveryFailed(err)
	}
	if s.notifier == nil {
		return domain.DeliveryFailed(fmt.Errorf("no notifier configured"))
	}
	if err := s.notifier.Deliver(ctx, n); err != nil {
		appLogger().WarnContext(ctx, "notification delivery failed",
			"operation", "deliver_notification",
			"outcome", "failure",
			"notification", string(kind),
			"error", err,
		)
		return domain.DeliveryFailed(err)
	}
	return nil
}

// publicLink builds a storefront link carrying a one-shot token.
func (s *Service) publicLink(path, token string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + path + url.PathEscape(token)
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
}
