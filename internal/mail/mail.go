// Package mail delivers transactional notifications. Delivery is advisory:
// callers log failures and carry on, a mail outage must never block an auth
// flow.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"auth-service/internal/observability"
)

// Template names the message kinds the service sends.
type Template string

const (
	TemplateVerifyEmail     Template = "verify_email"
	TemplatePasswordReset   Template = "password_reset"
	TemplatePasswordChanged Template = "password_changed"
)

// Params carries template substitutions, typically the action link.
type Params struct {
	ActionURL string
	FirstName string
}

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, to string, template Template, params Params) error
}

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers through an authenticated SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to string, template Template, params Params) error {
	subject, body := render(template, params)

	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send %s mail: %w", template, err)
	}
	return nil
}

func render(template Template, params Params) (subject, body string) {
	greeting := "Hello"
	if params.FirstName != "" {
		greeting = "Hello " + params.FirstName
	}

	switch template {
	case TemplateVerifyEmail:
		return "Verify your email address",
			fmt.Sprintf("%s,\n\nConfirm your email address by opening the link below. The link expires in 24 hours.\n\n%s\n\nIf you did not create an account, ignore this message.\n", greeting, params.ActionURL)
	case TemplatePasswordReset:
		return "Reset your password",
			fmt.Sprintf("%s,\n\nUse the link below to choose a new password. The link expires in 1 hour.\n\n%s\n\nIf you did not request a reset, ignore this message.\n", greeting, params.ActionURL)
	case TemplatePasswordChanged:
		return "Your password was changed",
			fmt.Sprintf("%s,\n\nThe password on your account was just changed. If this was not you, reset your password immediately.\n", greeting)
	default:
		return string(template), params.ActionURL
	}
}

// NopSender drops messages, logging what would have been sent. Used when
// EMAIL_ENABLED is off.
type NopSender struct {
	logger *observability.Logger
}

func NewNopSender(logger *observability.Logger) *NopSender {
	return &NopSender{logger: logger}
}

func (s *NopSender) Send(_ context.Context, to string, template Template, _ Params) error {
	s.logger.Info("mail_skipped", map[string]any{"to": to, "template": string(template)})
	return nil
}
