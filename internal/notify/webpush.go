package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"procodus.dev/silowatch/internal/silo"
)

// defaultTTL is how long the push service may retain an undelivered
// notification, in seconds.
const defaultTTL = 3600

// WebPush delivers alert notifications to browser push endpoints using
// VAPID-authenticated web push.
type WebPush struct {
	subscriber string
	publicKey  string
	privateKey string
	logger     *slog.Logger
}

// WebPushConfig holds the configuration for the WebPush adapter.
type WebPushConfig struct {
	Logger *slog.Logger
	// Subscriber is the contact address sent in the VAPID claims,
	// e.g. "mailto:ops@example.com".
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// NewWebPush creates a new WebPush adapter.
func NewWebPush(cfg *WebPushConfig) (*WebPush, error) {
	if cfg == nil {
		return nil, errors.New("webpush config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, errors.New("vapid keys cannot be empty")
	}

	subscriber := cfg.Subscriber
	if subscriber == "" {
		subscriber = "mailto:no-reply@example.com"
	}

	return &WebPush{
		subscriber: subscriber,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		logger:     cfg.Logger,
	}, nil
}

// Send delivers one push notification. HTTP 404 and 410 from the push
// service mean the endpoint is permanently gone and map to
// ErrSubscriptionGone so the dispatcher can delete the subscription.
func (w *WebPush) Send(ctx context.Context, sub *silo.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      w.subscriber,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		TTL:             defaultTTL,
	})
	if err != nil {
		return fmt.Errorf("webpush send failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.Error("failed to close push response body", "error", closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: endpoint returned status %d", ErrSubscriptionGone, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("webpush endpoint returned status %d", resp.StatusCode)
	}

	w.logger.Debug("webpush sent", "endpoint", sub.Endpoint)
	return nil
}

// Ensure WebPush implements PushSender.
var _ PushSender = (*WebPush)(nil)
