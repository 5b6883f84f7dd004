// Package notify fans a persisted alert out across the configured
// notification channels: telegram, email, SMS, web push and the live
// websocket broadcast. Channel attempts are independent; one provider
// failing never affects the others.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/pkg/metrics"
)

// DefaultChannelTimeout bounds each channel attempt so one unreachable
// provider cannot delay the rest of the fan-out indefinitely.
const DefaultChannelTimeout = 15 * time.Second

// ErrSubscriptionGone reports that a push endpoint is permanently invalid
// and its subscription should be deleted.
var ErrSubscriptionGone = errors.New("push subscription gone")

// TelegramSender delivers one chat message.
type TelegramSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one text message.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// PushSender delivers one web-push notification. It returns
// ErrSubscriptionGone (possibly wrapped) when the provider reports the
// endpoint no longer exists.
type PushSender interface {
	Send(ctx context.Context, sub *silo.PushSubscription, payload []byte) error
}

// Broadcaster publishes a serialized event to every live listener.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Store is the subset of persistence the dispatcher needs: resolving the
// alert's silo, enumerating push subscriptions and deleting invalid ones.
type Store interface {
	GetSilo(ctx context.Context, id uuid.UUID) (*silo.Silo, error)
	SubscriptionsForSilo(ctx context.Context, siloID uuid.UUID) ([]silo.PushSubscription, error)
	GlobalSubscriptions(ctx context.Context) ([]silo.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Dispatcher resolves an alert's recipients and attempts each configured
// channel exactly once. Nil adapters mean the channel is unconfigured and
// silently skipped.
type Dispatcher struct {
	logger   *slog.Logger
	store    Store
	telegram TelegramSender
	email    EmailSender
	sms      SMSSender
	push     PushSender
	live     Broadcaster
	timeout  time.Duration
	metrics  *metrics.MonitorMetrics // Optional metrics
}

// DispatcherConfig holds the configuration for the Dispatcher.
type DispatcherConfig struct {
	Logger *slog.Logger
	Store  Store

	// Channel adapters; nil disables the channel.
	Telegram TelegramSender
	Email    EmailSender
	SMS      SMSSender
	Push     PushSender
	Live     Broadcaster

	// ChannelTimeout bounds each channel attempt (default 15s).
	ChannelTimeout time.Duration

	// Metrics is the optional Prometheus metrics collector.
	Metrics *metrics.MonitorMetrics
}

// NewDispatcher creates a new Dispatcher instance.
func NewDispatcher(cfg *DispatcherConfig) (*Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("dispatcher config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	timeout := cfg.ChannelTimeout
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}

	return &Dispatcher{
		logger:   cfg.Logger,
		store:    cfg.Store,
		telegram: cfg.Telegram,
		email:    cfg.Email,
		sms:      cfg.SMS,
		push:     cfg.Push,
		live:     cfg.Live,
		timeout:  timeout,
		metrics:  cfg.Metrics,
	}, nil
}

// liveEvent is the compact alert event published to live listeners.
type liveEvent struct {
	Type      string    `json:"type"`
	SiloID    uuid.UUID `json:"silo_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatch attempts every configured channel for the alert. It is
// fire-and-forget relative to the ingestion path: per-channel failures are
// logged and counted, never escalated, and there is no cross-channel retry
// or ordering. Dispatch returns once all channel attempts have finished
// and the live broadcast happened.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *silo.Alert) {
	var timer *prometheus.Timer
	if d.metrics != nil {
		timer = prometheus.NewTimer(d.metrics.DispatchDuration)
		defer timer.ObserveDuration()
	}

	sl, err := d.store.GetSilo(ctx, alert.SiloID)
	if err != nil {
		// Person-channels need the silo's contact configuration; without it
		// the fan-out degrades to global push subscriptions plus the live
		// broadcast instead of aborting.
		d.logger.Error("failed to resolve alert silo, degrading dispatch",
			"silo_id", alert.SiloID,
			"alert_id", alert.ID,
			"error", err,
		)
		d.dispatchDegraded(ctx, alert)
		return
	}

	tmplCtx := silo.TemplateContext{
		SiloName:  sl.Name,
		Level:     alert.Level,
		Message:   alert.Message,
		Value:     valueText(alert.Value),
		Timestamp: alert.Timestamp,
	}

	var wg sync.WaitGroup

	if d.telegram != nil && sl.NotifyTelegram && sl.TelegramChatID != nil {
		wg.Add(1)
		go d.attempt(ctx, &wg, "telegram", func(ctx context.Context) error {
			return d.telegram.SendText(ctx, *sl.TelegramChatID, sl.TelegramText(tmplCtx))
		})
	}

	if d.email != nil && sl.NotifyEmail && sl.Email != nil {
		wg.Add(1)
		go d.attempt(ctx, &wg, "email", func(ctx context.Context) error {
			return d.email.Send(ctx, *sl.Email, sl.EmailSubject(tmplCtx), sl.EmailBody(tmplCtx))
		})
	}

	if d.sms != nil && sl.NotifySMS && sl.Phone != nil {
		wg.Add(1)
		go d.attempt(ctx, &wg, "sms", func(ctx context.Context) error {
			return d.sms.Send(ctx, *sl.Phone, sl.SMSText(tmplCtx))
		})
	}

	if d.push != nil {
		subs, err := d.store.SubscriptionsForSilo(ctx, alert.SiloID)
		if err != nil {
			d.logger.Error("failed to list push subscriptions",
				"silo_id", alert.SiloID,
				"error", err,
			)
		} else {
			d.fanOutPush(ctx, &wg, alert, sl.Name, subs)
		}
	}

	wg.Wait()

	d.broadcastLive(alert)
}

// dispatchDegraded runs the fan-out paths that do not need silo
// configuration: globally scoped push subscriptions and the live broadcast.
func (d *Dispatcher) dispatchDegraded(ctx context.Context, alert *silo.Alert) {
	var wg sync.WaitGroup

	if d.push != nil {
		subs, err := d.store.GlobalSubscriptions(ctx)
		if err != nil {
			d.logger.Error("failed to list global push subscriptions", "error", err)
		} else {
			d.fanOutPush(ctx, &wg, alert, "Silo", subs)
		}
	}

	wg.Wait()

	d.broadcastLive(alert)
}

// fanOutPush attempts delivery to each subscription independently. A
// permanently gone endpoint has its subscription deleted; transient
// failures leave it intact with no retry this cycle.
func (d *Dispatcher) fanOutPush(ctx context.Context, wg *sync.WaitGroup, alert *silo.Alert, siloName string, subs []silo.PushSubscription) {
	payload, err := json.Marshal(map[string]string{
		"title": "Silo Monitor",
		"body": silo.RenderTemplate(silo.DefaultMessageTemplate, silo.TemplateContext{
			SiloName:  siloName,
			Level:     alert.Level,
			Message:   alert.Message,
			Value:     valueText(alert.Value),
			Timestamp: alert.Timestamp,
		}),
	})
	if err != nil {
		d.logger.Error("failed to marshal push payload", "error", err)
		return
	}

	for i := range subs {
		sub := subs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			err := d.push.Send(sendCtx, &sub, payload)
			switch {
			case err == nil:
				if d.metrics != nil {
					d.metrics.NotificationsSent.WithLabelValues("push").Inc()
				}
			case errors.Is(err, ErrSubscriptionGone):
				d.logger.Info("push endpoint gone, deleting subscription",
					"endpoint", sub.Endpoint,
				)
				if delErr := d.store.DeletePushSubscription(ctx, sub.Endpoint); delErr != nil {
					d.logger.Error("failed to delete push subscription",
						"endpoint", sub.Endpoint,
						"error", delErr,
					)
				} else if d.metrics != nil {
					d.metrics.SubscriptionsDeleted.Inc()
				}
				if d.metrics != nil {
					d.metrics.NotificationFailures.WithLabelValues("push", "gone").Inc()
				}
			default:
				d.logger.Error("push delivery failed",
					"endpoint", sub.Endpoint,
					"error", err,
				)
				if d.metrics != nil {
					d.metrics.NotificationFailures.WithLabelValues("push", "send_error").Inc()
				}
			}
		}()
	}
}

// attempt runs one channel delivery under the per-channel timeout,
// recovering panics so a misbehaving adapter cannot take down the process.
func (d *Dispatcher) attempt(ctx context.Context, wg *sync.WaitGroup, channel string, send func(ctx context.Context) error) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("channel adapter panicked", "channel", channel, "panic", r)
			if d.metrics != nil {
				d.metrics.NotificationFailures.WithLabelValues(channel, "panic").Inc()
			}
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := send(sendCtx); err != nil {
		d.logger.Error("channel delivery failed", "channel", channel, "error", err)
		if d.metrics != nil {
			d.metrics.NotificationFailures.WithLabelValues(channel, "send_error").Inc()
		}
		return
	}

	d.logger.Debug("channel delivery succeeded", "channel", channel)
	if d.metrics != nil {
		d.metrics.NotificationsSent.WithLabelValues(channel).Inc()
	}
}

// broadcastLive publishes the compact alert event to the live listeners,
// independent of channel outcomes.
func (d *Dispatcher) broadcastLive(alert *silo.Alert) {
	if d.live == nil {
		return
	}

	event, err := json.Marshal(liveEvent{
		Type:      "alert",
		SiloID:    alert.SiloID,
		Level:     string(alert.Level),
		Message:   alert.Message,
		Timestamp: alert.Timestamp,
	})
	if err != nil {
		d.logger.Error("failed to marshal live event", "error", err)
		return
	}

	d.live.Broadcast(event)
	if d.metrics != nil {
		d.metrics.LiveBroadcasts.Inc()
	}
}

// valueText renders an alert's stored JSON value for message templates.
func valueText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return silo.FormatValue(value)
}
