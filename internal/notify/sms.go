package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMS delivers alert messages as text messages through the Twilio REST API.
type SMS struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// SMSConfig holds the configuration for the SMS adapter.
type SMSConfig struct {
	Logger     *slog.Logger
	AccountSID string
	AuthToken  string
	From       string
}

// NewSMS creates a new SMS adapter.
func NewSMS(cfg *SMSConfig) (*SMS, error) {
	if cfg == nil {
		return nil, errors.New("sms config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.AccountSID == "" {
		return nil, errors.New("twilio account sid cannot be empty")
	}

	if cfg.AuthToken == "" {
		return nil, errors.New("twilio auth token cannot be empty")
	}

	if cfg.From == "" {
		return nil, errors.New("twilio sender number cannot be empty")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &SMS{
		client: client,
		from:   cfg.From,
		logger: cfg.Logger,
	}, nil
}

// Send delivers one text message.
func (s *SMS) Send(ctx context.Context, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("sms send failed: %w", err)
	}

	s.logger.Debug("sms sent", "to", to)
	return nil
}

// Ensure SMS implements SMSSender.
var _ SMSSender = (*SMS)(nil)
