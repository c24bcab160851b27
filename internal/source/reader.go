// Package source reads posts from the source channel through an injected
// transport client and keeps the fetch cursor.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/model"
)

// Query bounds a history fetch. MinID excludes messages with ID <= MinID;
// zero means no lower bound.
type Query struct {
	Limit int
	MinID int
}

// Client is the inbound transport capability the reader depends on.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetMessages(ctx context.Context, channel string, q Query) ([]model.Message, error)
}

// Reader fetches recent and new posts from a single channel.
type Reader struct {
	client  Client
	channel string
	cursor  atomic.Int64
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewReader creates a reader for channel. A leading "@" is stripped.
func NewReader(client Client, channel string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	channel = NormalizeChannel(channel)
	return &Reader{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "source_reader", "channel", channel),
		sleep:   sleepContext,
	}
}

// Channel returns the normalized channel name.
func (r *Reader) Channel() string { return r.channel }

// Cursor returns the highest message ID observed so far.
func (r *Reader) Cursor() int { return int(r.cursor.Load()) }

// Connect establishes the transport session.
func (r *Reader) Connect(ctx context.Context) error {
	r.logger.Info("Connecting to source transport")
	if err := r.client.Connect(ctx); err != nil {
		return apperrors.NewConnectivityError("failed to connect to source", err)
	}
	r.logger.Info("Connected to source transport")
	return nil
}

// Disconnect tears the transport session down.
func (r *Reader) Disconnect(ctx context.Context) error {
	if err := r.client.Disconnect(ctx); err != nil {
		return apperrors.NewConnectivityError("failed to disconnect from source", err)
	}
	r.logger.Info("Disconnected from source transport")
	return nil
}

// GetRecent fetches the most recent limit messages, oldest first, and
// moves the cursor to the highest ID returned.
func (r *Reader) GetRecent(ctx context.Context, limit int) ([]model.Message, error) {
	msgs, err := r.client.GetMessages(ctx, r.channel, Query{Limit: limit})
	if err != nil {
		return nil, apperrors.NewConnectivityError("failed to fetch recent messages", err)
	}

	sortByID(msgs)
	if n := len(msgs); n > 0 {
		r.cursor.Store(int64(msgs[n-1].ID))
	}
	r.logger.Debug("Fetched recent messages", "count", len(msgs), "cursor", r.Cursor())
	return msgs, nil
}

// GetNew fetches up to limit messages newer than the cursor, oldest first.
// The cursor advances to the highest ID returned and is left unchanged when
// nothing new arrived.
func (r *Reader) GetNew(ctx context.Context, limit int) ([]model.Message, error) {
	cursor := r.Cursor()
	msgs, err := r.client.GetMessages(ctx, r.channel, Query{Limit: limit, MinID: cursor})
	if err != nil {
		return nil, apperrors.NewConnectivityError("failed to fetch new messages", err)
	}

	fresh := msgs[:0]
	for _, m := range msgs {
		if m.ID > cursor {
			fresh = append(fresh, m)
		}
	}
	sortByID(fresh)
	if n := len(fresh); n > 0 {
		r.cursor.Store(int64(fresh[n-1].ID))
	}
	r.logger.Debug("Fetched new messages", "count", len(fresh), "cursor", r.Cursor())
	return fresh, nil
}

// Reconnect disconnects and connects again, up to maxRetries times with a
// fixed delay between attempts.
func (r *Reader) Reconnect(ctx context.Context, maxRetries int, delay time.Duration) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		r.logger.Info("Reconnecting to source transport", "attempt", attempt, "max_retries", maxRetries)

		if err := r.client.Disconnect(ctx); err != nil {
			r.logger.Debug("Disconnect before reconnect failed", "error", err)
		}
		err := r.client.Connect(ctx)
		if err == nil {
			r.logger.Info("Reconnected to source transport", "attempt", attempt)
			return nil
		}
		lastErr = err
		r.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)

		if attempt < maxRetries {
			if err := r.sleep(ctx, delay); err != nil {
				return apperrors.NewConnectivityError("reconnect abandoned", err)
			}
		}
	}

	return apperrors.NewConnectivityError(fmt.Sprintf("failed to reconnect after %d attempts", maxRetries), lastErr)
}

// NormalizeChannel strips surrounding whitespace and a leading "@".
func NormalizeChannel(channel string) string {
	return strings.TrimPrefix(strings.TrimSpace(channel), "@")
}

func sortByID(msgs []model.Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
