// Package forwarder delivers matched posts to the target chat through the
// Telegram Bot API.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/model"
	"github.com/edgard/channelrelay/internal/resilience"
)

var (
	// ErrNotInitialized is returned when the forwarder is used before
	// Initialize succeeded or after Stop.
	ErrNotInitialized = errors.New("forwarder is not initialized")

	numericID = regexp.MustCompile(`^-?\d+$`)
)

const (
	// Consecutive transient send failures that pause delivery, and for how long.
	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second

	hintNotFound  = "check target.chat and make sure the bot has been added to the destination chat"
	hintForbidden = "add the bot to the destination and grant it permission to post messages"
	hintSelf      = "target.chat must point to a chat or channel, not to the bot itself"
	hintTooLong   = "the post exceeds the Bot API message length limit and cannot be relayed"
)

// BotAPI is the subset of the Bot API the forwarder needs. *bot.Bot
// satisfies it.
type BotAPI interface {
	GetMe(ctx context.Context) (*models.User, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Forwarder re-posts formatted source messages as the bot.
type Forwarder struct {
	api           BotAPI
	sourceChannel string
	logger        *slog.Logger
	breaker       *resilience.CircuitBreaker

	mu    sync.Mutex
	ready bool
	self  *models.User
}

// New creates a forwarder. sourceChannel is used in the message header and
// the link back to the original post.
func New(api BotAPI, sourceChannel string, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "forwarder")
	return &Forwarder{
		api:           api,
		sourceChannel: sourceChannel,
		logger:        logger,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "bot_api_send",
			MaxFailures: breakerMaxFailures,
			OpenTimeout: breakerOpenTimeout,
			IsFailure:   apperrors.IsTransientDelivery,
			Logger:      logger,
		}),
	}
}

// Initialize verifies the bot identity and marks the forwarder ready.
func (f *Forwarder) Initialize(ctx context.Context) error {
	me, err := f.api.GetMe(ctx)
	if err != nil {
		return apperrors.NewConnectivityError("failed to verify bot identity", err)
	}

	f.mu.Lock()
	f.self = me
	f.ready = true
	f.mu.Unlock()

	f.logger.Info("Forwarder initialized", "bot_id", me.ID, "bot_username", me.Username)
	return nil
}

// Self returns the bot identity, or nil before Initialize.
func (f *Forwarder) Self() *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self
}

// ValidateDestination resolves id to the chat identifier used for sending.
// Numeric IDs are returned unchanged. Usernames are looked up; a lookup
// failure falls back to the "@username" form.
func (f *Forwarder) ValidateDestination(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperrors.NewDestinationError("destination is empty", hintNotFound, nil)
	}
	if numericID.MatchString(id) {
		return id, nil
	}

	self := f.Self()
	if self == nil {
		return "", ErrNotInitialized
	}

	username := "@" + strings.TrimPrefix(id, "@")
	if strings.EqualFold(username, "@"+self.Username) {
		return "", apperrors.NewDestinationError("destination is the forwarding bot itself", hintSelf, nil)
	}

	chat, err := f.api.GetChat(ctx, &bot.GetChatParams{ChatID: username})
	if err != nil {
		f.logger.Warn("Could not resolve destination, using username as given",
			"destination", username, "error", err)
		return username, nil
	}
	if chat.ID == self.ID {
		return "", apperrors.NewDestinationError("destination resolves to the forwarding bot itself", hintSelf, nil)
	}

	resolved := strconv.FormatInt(chat.ID, 10)
	f.logger.Info("Destination resolved", "destination", username, "chat_id", resolved, "title", chat.Title)
	return resolved, nil
}

// Forward sends msg to destination as a new formatted HTML message.
func (f *Forwarder) Forward(ctx context.Context, msg *model.Message, destination string) (*models.Message, error) {
	f.mu.Lock()
	ready := f.ready
	f.mu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	var sent *models.Message
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		sent, err = f.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:             chatID(destination),
			Text:               FormatMessage(f.sourceChannel, msg),
			ParseMode:          models.ParseModeHTML,
			LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
		})
		if err != nil {
			return classify(err, destination)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, apperrors.NewTransientDeliveryError("delivery paused after repeated Bot API failures", err)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("Message forwarded", "message_id", msg.ID, "destination", destination, "sent_message_id", sent.ID)
	return sent, nil
}

// Stop marks the forwarder stopped. Stopping twice is not an error.
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ready {
		f.logger.Debug("Forwarder already stopped")
		return nil
	}
	f.ready = false
	f.logger.Info("Forwarder stopped")
	return nil
}

func chatID(destination string) any {
	if numericID.MatchString(destination) {
		if id, err := strconv.ParseInt(destination, 10, 64); err == nil {
			return id
		}
	}
	return destination
}

func classify(err error, destination string) error {
	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, bot.ErrorNotFound) || strings.Contains(lower, "chat not found"):
		return apperrors.NewDestinationError(fmt.Sprintf("destination %s not found", destination), hintNotFound, err)
	case errors.Is(err, bot.ErrorForbidden) ||
		strings.Contains(lower, "not enough rights") ||
		strings.Contains(lower, "have no rights") ||
		strings.Contains(lower, "bot is not a member"):
		return apperrors.NewDestinationError(fmt.Sprintf("not allowed to post to %s", destination), hintForbidden, err)
	case strings.Contains(lower, "message is too long"):
		return apperrors.NewDestinationError(fmt.Sprintf("message rejected by %s as too long", destination), hintTooLong, err)
	default:
		return apperrors.NewTransientDeliveryError(fmt.Sprintf("failed to send message to %s", destination), err)
	}
}
