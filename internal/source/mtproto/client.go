// Package mtproto implements the source transport as a Telegram user
// session over MTProto.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/model"
	"github.com/edgard/channelrelay/internal/source"
)

var errNotConnected = errors.New("mtproto client is not connected")

// Options configures the MTProto client.
type Options struct {
	AppID   int
	AppHash string
	// Session is a token produced by a previous login. Empty forces the
	// login flow.
	Session string
	// Authenticator answers the login flow. Nil makes an expired session
	// fatal.
	Authenticator source.Authenticator
	// OnSession receives the new token after a successful login.
	OnSession func(token string)
	Logger    *slog.Logger
	ZapLogger *zap.Logger
}

// Client is a source.Client backed by gotd. The underlying connection runs
// in its own goroutine between Connect and Disconnect.
type Client struct {
	opts    Options
	storage *TokenStorage
	logger  *slog.Logger

	mu     sync.Mutex
	api    *tg.Client
	cancel context.CancelFunc
	done   chan struct{}
	peers  map[string]tg.InputPeerClass
}

// New validates opts and creates a disconnected client.
func New(opts Options) (*Client, error) {
	if opts.AppID <= 0 || opts.AppHash == "" {
		return nil, apperrors.NewConfigurationError("api id and api hash are required", nil)
	}
	storage, err := NewTokenStorage(opts.Session)
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid session token", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ZapLogger == nil {
		opts.ZapLogger = zap.NewNop()
	}
	return &Client{
		opts:    opts,
		storage: storage,
		logger:  opts.Logger.With("component", "mtproto"),
		peers:   make(map[string]tg.InputPeerClass),
	}, nil
}

// Connect starts the client and returns once the session is authorized.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil
	}

	client := telegram.NewClient(c.opts.AppID, c.opts.AppHash, telegram.Options{
		SessionStorage: c.storage,
		Logger:         c.opts.ZapLogger,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			if err := c.authorize(ctx, client); err != nil {
				return err
			}
			ready <- nil
			<-ctx.Done()
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("MTProto client stopped", "error", err)
		}
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return err
		}
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	c.api = client.API()
	c.cancel = cancel
	c.done = done
	return nil
}

func (c *Client) authorize(ctx context.Context, client *telegram.Client) error {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth status: %w", err)
	}
	if status.Authorized {
		if status.User != nil {
			c.logger.Info("Session resumed", "user_id", status.User.ID, "username", status.User.Username)
		}
		return nil
	}

	if c.opts.Authenticator == nil {
		return apperrors.NewConfigurationError("session is not authorized and no authenticator is configured", nil)
	}

	c.logger.Info("No authorized session, starting login flow")
	flow := auth.NewFlow(userAuthenticator{c.opts.Authenticator}, auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.logger.Info("Login succeeded")
	if c.opts.OnSession != nil {
		c.opts.OnSession(c.storage.Token())
	}
	return nil
}

// Disconnect stops the client and waits for its goroutine to exit.
// Calling it on a disconnected client is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.api, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetMessages fetches channel history, newest first as returned by Telegram.
func (c *Client) GetMessages(ctx context.Context, channel string, q source.Query) ([]model.Message, error) {
	api, err := c.currentAPI()
	if err != nil {
		return nil, err
	}

	inputPeer, err := c.resolve(ctx, api, channel)
	if err != nil {
		return nil, err
	}

	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  inputPeer,
		Limit: q.Limit,
		MinID: q.MinID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get history of %s: %w", channel, err)
	}

	switch r := res.(type) {
	case *tg.MessagesChannelMessages:
		return convertMessages(r.Messages), nil
	case *tg.MessagesMessagesSlice:
		return convertMessages(r.Messages), nil
	case *tg.MessagesMessages:
		return convertMessages(r.Messages), nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected history response %T", res)
	}
}

func (c *Client) currentAPI() (*tg.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api == nil {
		return nil, errNotConnected
	}
	select {
	case <-c.done:
		return nil, errNotConnected
	default:
		return c.api, nil
	}
}

func (c *Client) resolve(ctx context.Context, api *tg.Client, channel string) (tg.InputPeerClass, error) {
	c.mu.Lock()
	cached, ok := c.peers[channel]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	resolved, err := peer.DefaultResolver(api).ResolveDomain(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %s: %w", channel, err)
	}

	c.mu.Lock()
	c.peers[channel] = resolved
	c.mu.Unlock()

	c.logger.Info("Resolved source channel", "channel", channel)
	return resolved, nil
}

// userAuthenticator adapts source.Authenticator to the gotd login flow.
type userAuthenticator struct {
	answers source.Authenticator
}

func (a userAuthenticator) Phone(ctx context.Context) (string, error) {
	return a.answers.Phone(ctx)
}

func (a userAuthenticator) Password(ctx context.Context) (string, error) {
	return a.answers.Password(ctx)
}

func (a userAuthenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.answers.Code(ctx)
}

func (a userAuthenticator) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return errors.New("accepting terms of service is not supported, log in with an official client first")
}

func (a userAuthenticator) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported, use an existing account")
}
