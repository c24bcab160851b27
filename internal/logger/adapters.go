package logger

import (
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-telegram/bot"
)

// gocronLogger implements gocron.Logger on top of slog.
type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger returns a gocron.Logger that writes through log.
//
//nolint:ireturn // Interface return is required by gocron's API contract
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	return &gocronLogger{log: log.With("component", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.log.Debug(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, args...) }

// BotOptions routes the Bot API client's internal errors and debug output
// into log.
func BotOptions(log *slog.Logger) []bot.Option {
	log = log.With("component", "bot_api")
	return []bot.Option{
		bot.WithErrorsHandler(func(err error) {
			log.Error("Bot API client error", "error", err)
		}),
		bot.WithDebugHandler(func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		}),
	}
}
