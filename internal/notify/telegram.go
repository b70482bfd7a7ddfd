// Package notify delivers operator notifications about completed passes.
package notify

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends pass reports to a single operator chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

type TelegramNotifierConfig struct {
	Token  string
	ChatID string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramNotifierConfig) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	cfg.Logger.Info("telegram notifier connected", "username", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: cfg.Logger}, nil
}

// PassReport pushes a one-line pass summary. Best-effort: a delivery failure
// is logged, the pass itself already completed.
func (t *TelegramNotifier) PassReport(summary string) {
	msg := tgbotapi.NewMessage(t.chatID, "checkinbot pass complete: "+summary)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("pass report delivery failed", "err", err)
	}
}
