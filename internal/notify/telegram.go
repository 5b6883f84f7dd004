package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// Bot API broadcast bound: 30 messages/second across all chats. Stay under it.
const (
	telegramRate  = 25
	telegramBurst = 25
)

// Telegram delivers alert messages through a Telegram bot. Sends are rate
// limited so alert storms cannot trip the Bot API flood control.
type Telegram struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	logger  *slog.Logger
}

// TelegramConfig holds the configuration for the Telegram adapter.
type TelegramConfig struct {
	Logger *slog.Logger
	Token  string
	// Offline skips the Bot API handshake; used by tests.
	Offline bool
}

// NewTelegram creates a new Telegram adapter.
func NewTelegram(cfg *TelegramConfig) (*Telegram, error) {
	if cfg == nil {
		return nil, errors.New("telegram config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Token == "" {
		return nil, errors.New("telegram token cannot be empty")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(telegramRate), telegramBurst),
		logger:  cfg.Logger,
	}, nil
}

// SendText delivers one text message to the given chat.
func (t *Telegram) SendText(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	if _, err := t.bot.Send(tele.ChatID(id), text); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}

	t.logger.Debug("telegram message sent", "chat_id", chatID)
	return nil
}

// Ensure Telegram implements TelegramSender.
var _ TelegramSender = (*Telegram)(nil)
