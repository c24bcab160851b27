// Package telegram builds the Bot API client used for forwarding.
package telegram

import (
	"log/slog"

	"github.com/go-telegram/bot"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/logger"
)

// NewTelegramBot creates a Bot API client. The identity check is left to
// the forwarder so that a bad token surfaces as a connectivity failure
// during initialization instead of here.
func NewTelegramBot(token string, log *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, apperrors.NewConfigurationError("telegram bot token cannot be empty", nil)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telegram_bot")

	opts = append(append([]bot.Option{bot.WithSkipGetMe()}, logger.BotOptions(log)...), opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, apperrors.NewConfigurationError("failed to create telegram bot", err)
	}

	log.Info("Telegram bot instance created", "token_prefix", tokenPrefix(token))
	return b, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
