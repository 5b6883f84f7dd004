package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Email delivers alert messages over SMTP.
type Email struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

// EmailConfig holds the configuration for the Email adapter.
type EmailConfig struct {
	Logger   *slog.Logger
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// NewEmail creates a new Email adapter.
func NewEmail(cfg *EmailConfig) (*Email, error) {
	if cfg == nil {
		return nil, errors.New("email config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Host == "" {
		return nil, errors.New("smtp host cannot be empty")
	}

	if cfg.Port <= 0 {
		return nil, errors.New("smtp port must be positive")
	}

	from := cfg.From
	if from == "" {
		from = cfg.User
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Email{
		client: client,
		from:   from,
		logger: cfg.Logger,
	}, nil
}

// Send delivers one plain-text email.
func (e *Email) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", e.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}

	e.logger.Debug("email sent", "to", to)
	return nil
}

// Ensure Email implements EmailSender.
var _ EmailSender = (*Email)(nil)
