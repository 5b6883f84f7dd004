package notify_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/silowatch/internal/notify"
	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/pkg/logger"
)

// fakeDispatchStore is a hand-rolled notify.Store for dispatcher tests.
type fakeDispatchStore struct {
	mu sync.Mutex

	Silo     *silo.Silo
	SiloErr  error
	Subs     []silo.PushSubscription
	SubsErr  error
	Global   []silo.PushSubscription
	Deleted  []string
	DelError error
}

func (f *fakeDispatchStore) GetSilo(context.Context, uuid.UUID) (*silo.Silo, error) {
	return f.Silo, f.SiloErr
}

func (f *fakeDispatchStore) SubscriptionsForSilo(context.Context, uuid.UUID) ([]silo.PushSubscription, error) {
	return f.Subs, f.SubsErr
}

func (f *fakeDispatchStore) GlobalSubscriptions(context.Context) ([]silo.PushSubscription, error) {
	return f.Global, nil
}

func (f *fakeDispatchStore) DeletePushSubscription(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DelError != nil {
		return f.DelError
	}
	f.Deleted = append(f.Deleted, endpoint)
	return nil
}

// fakeTelegram records SendText calls.
type fakeTelegram struct {
	mu sync.Mutex

	SendTextError error
	Calls         []telegramCall
}

type telegramCall struct {
	ChatID string
	Text   string
}

func (f *fakeTelegram) SendText(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, telegramCall{ChatID: chatID, Text: text})
	return f.SendTextError
}

// fakeEmail records Send calls and can panic on demand.
type fakeEmail struct {
	mu sync.Mutex

	SendError error
	Panic     bool
	Calls     []emailCall
}

type emailCall struct {
	To      string
	Subject string
	Body    string
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string) error {
	if f.Panic {
		panic("smtp adapter exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, emailCall{To: to, Subject: subject, Body: body})
	return f.SendError
}

// fakeSMS records Send calls.
type fakeSMS struct {
	mu sync.Mutex

	SendError error
	Calls     []smsCall
}

type smsCall struct {
	To   string
	Body string
}

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, smsCall{To: to, Body: body})
	return f.SendError
}

// fakePush returns a per-endpoint error.
type fakePush struct {
	mu sync.Mutex

	Errors    map[string]error
	Delivered []string
}

func (f *fakePush) Send(_ context.Context, sub *silo.PushSubscription, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Errors[sub.Endpoint]; ok {
		return err
	}
	f.Delivered = append(f.Delivered, sub.Endpoint)
	return nil
}

// fakeBroadcaster records broadcast payloads.
type fakeBroadcaster struct {
	mu       sync.Mutex
	Payloads [][]byte
}

func (f *fakeBroadcaster) Broadcast(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Payloads = append(f.Payloads, payload)
}

var _ = Describe("Dispatcher", func() {
	var (
		st       *fakeDispatchStore
		telegram *fakeTelegram
		email    *fakeEmail
		sms      *fakeSMS
		push     *fakePush
		live     *fakeBroadcaster
		alert    *silo.Alert
		ctx      context.Context
	)

	str := func(s string) *string { return &s }

	newDispatcher := func() *notify.Dispatcher {
		d, err := notify.NewDispatcher(&notify.DispatcherConfig{
			Logger:   logger.NewWithLevel(slog.LevelError),
			Store:    st,
			Telegram: telegram,
			Email:    email,
			SMS:      sms,
			Push:     push,
			Live:     live,
		})
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	BeforeEach(func() {
		ctx = context.Background()
		telegram = &fakeTelegram{}
		email = &fakeEmail{}
		sms = &fakeSMS{}
		push = &fakePush{Errors: map[string]error{}}
		live = &fakeBroadcaster{}

		st = &fakeDispatchStore{
			Silo: &silo.Silo{
				ID:             uuid.New(),
				Name:           "North Silo",
				NotifyTelegram: true,
				NotifyEmail:    true,
				NotifySMS:      true,
				TelegramChatID: str("12345"),
				Email:          str("ops@example.com"),
				Phone:          str("+15550001111"),
			},
		}

		alert = &silo.Alert{
			ID:        uuid.New(),
			SiloID:    st.Silo.ID,
			Level:     silo.SeverityCritical,
			Message:   "temperature 42 exceeds configured limit 35",
			Value:     []byte(`{"temperature":42,"limit":35}`),
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}
	})

	Describe("NewDispatcher", func() {
		It("should require a logger", func() {
			_, err := notify.NewDispatcher(&notify.DispatcherConfig{Store: st})
			Expect(err).To(MatchError("logger cannot be nil"))
		})

		It("should require a store", func() {
			_, err := notify.NewDispatcher(&notify.DispatcherConfig{Logger: logger.NewDefault()})
			Expect(err).To(MatchError("store cannot be nil"))
		})
	})

	Context("with all channels configured and enabled", func() {
		It("should deliver to every channel and broadcast live", func() {
			newDispatcher().Dispatch(ctx, alert)

			Expect(telegram.Calls).To(HaveLen(1))
			Expect(telegram.Calls[0].ChatID).To(Equal("12345"))
			Expect(telegram.Calls[0].Text).To(Equal("[CRITICAL] North Silo: temperature 42 exceeds configured limit 35 (value=limit=35 temperature=42)"))

			Expect(email.Calls).To(HaveLen(1))
			Expect(email.Calls[0].To).To(Equal("ops@example.com"))
			Expect(email.Calls[0].Subject).To(Equal("Silo alert: North Silo"))

			Expect(sms.Calls).To(HaveLen(1))
			Expect(sms.Calls[0].To).To(Equal("+15550001111"))

			Expect(live.Payloads).To(HaveLen(1))
			Expect(string(live.Payloads[0])).To(ContainSubstring(`"type":"alert"`))
			Expect(string(live.Payloads[0])).To(ContainSubstring(`"level":"critical"`))
		})
	})

	Context("channel gating", func() {
		It("should skip a channel disabled on the silo", func() {
			st.Silo.NotifyTelegram = false
			newDispatcher().Dispatch(ctx, alert)
			Expect(telegram.Calls).To(BeEmpty())
			Expect(email.Calls).To(HaveLen(1))
		})

		It("should skip a channel with no recipient configured", func() {
			st.Silo.Phone = nil
			newDispatcher().Dispatch(ctx, alert)
			Expect(sms.Calls).To(BeEmpty())
		})

		It("should skip channels with no adapter", func() {
			telegram = nil
			d, err := notify.NewDispatcher(&notify.DispatcherConfig{
				Logger: logger.NewWithLevel(slog.LevelError),
				Store:  st,
				Email:  email,
				Live:   live,
			})
			Expect(err).NotTo(HaveOccurred())

			d.Dispatch(ctx, alert)
			Expect(email.Calls).To(HaveLen(1))
			Expect(live.Payloads).To(HaveLen(1))
		})
	})

	Context("channel isolation", func() {
		It("should deliver remaining channels when one fails", func() {
			telegram.SendTextError = errors.New("bot token revoked")

			newDispatcher().Dispatch(ctx, alert)

			Expect(email.Calls).To(HaveLen(1))
			Expect(sms.Calls).To(HaveLen(1))
			Expect(live.Payloads).To(HaveLen(1))
		})

		It("should survive a panicking adapter", func() {
			email.Panic = true

			newDispatcher().Dispatch(ctx, alert)

			Expect(telegram.Calls).To(HaveLen(1))
			Expect(sms.Calls).To(HaveLen(1))
			Expect(live.Payloads).To(HaveLen(1))
		})
	})

	Context("web push", func() {
		BeforeEach(func() {
			st.Subs = []silo.PushSubscription{
				{Endpoint: "https://push.example.com/a"},
				{Endpoint: "https://push.example.com/b"},
				{Endpoint: "https://push.example.com/c"},
			}
		})

		It("should deliver to every subscription", func() {
			newDispatcher().Dispatch(ctx, alert)
			Expect(push.Delivered).To(ConsistOf(
				"https://push.example.com/a",
				"https://push.example.com/b",
				"https://push.example.com/c",
			))
		})

		It("should delete a permanently gone subscription", func() {
			push.Errors["https://push.example.com/b"] = fmt.Errorf("endpoint returned 410: %w", notify.ErrSubscriptionGone)

			newDispatcher().Dispatch(ctx, alert)

			Expect(st.Deleted).To(ConsistOf("https://push.example.com/b"))
			Expect(push.Delivered).To(HaveLen(2))
		})

		It("should keep a subscription after a transient failure", func() {
			push.Errors["https://push.example.com/b"] = errors.New("503 service unavailable")

			newDispatcher().Dispatch(ctx, alert)

			Expect(st.Deleted).To(BeEmpty())
			Expect(push.Delivered).To(HaveLen(2))
		})
	})

	Context("when the silo cannot be resolved", func() {
		BeforeEach(func() {
			st.SiloErr = errors.New("connection refused")
			st.Global = []silo.PushSubscription{{Endpoint: "https://push.example.com/global"}}
		})

		It("should degrade to global push and live broadcast", func() {
			newDispatcher().Dispatch(ctx, alert)

			Expect(telegram.Calls).To(BeEmpty())
			Expect(email.Calls).To(BeEmpty())
			Expect(sms.Calls).To(BeEmpty())
			Expect(push.Delivered).To(ConsistOf("https://push.example.com/global"))
			Expect(live.Payloads).To(HaveLen(1))
		})
	})

	Context("template overrides", func() {
		It("should use the silo's telegram template", func() {
			st.Silo.TelegramTemplate = str("ALERT {silo} {level}")

			newDispatcher().Dispatch(ctx, alert)

			Expect(telegram.Calls).To(HaveLen(1))
			Expect(telegram.Calls[0].Text).To(Equal("ALERT North Silo CRITICAL"))
		})
	})
})
