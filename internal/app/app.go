// Package app owns the relay components. It builds them in dependency order,
// runs the orchestrator next to the scheduler and tears everything down in
// reverse.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/channelrelay/internal/config"
	"github.com/edgard/channelrelay/internal/filter"
	"github.com/edgard/channelrelay/internal/forwarder"
	"github.com/edgard/channelrelay/internal/journal"
	"github.com/edgard/channelrelay/internal/ledger"
	"github.com/edgard/channelrelay/internal/relay"
	"github.com/edgard/channelrelay/internal/relay/tasks"
	"github.com/edgard/channelrelay/internal/source"
	"github.com/edgard/channelrelay/internal/source/mtproto"
	"github.com/edgard/channelrelay/internal/telegram"
)

// Options carries the pieces that depend on how the process was started.
type Options struct {
	// Loader, when set, is used to watch the config file for keyword changes.
	Loader *config.Loader
	// Authenticator answers the MTProto login flow.
	Authenticator source.Authenticator
	// OnSession receives the session token after an interactive login.
	OnSession func(token string)
	// ZapLogger is handed to the MTProto client.
	ZapLogger *zap.Logger
	// BotOptions are appended to the Bot API client options.
	BotOptions []tgbot.Option
}

// App is the application context. Components are exported for status
// reporting and tests; their lifecycle belongs to App.
type App struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	Ledger       *ledger.Ledger
	Filter       *filter.Filter
	Reader       *source.Reader
	Forwarder    *forwarder.Forwarder
	Journal      journal.Store
	Orchestrator *relay.Orchestrator
	Scheduler    *relay.Scheduler

	db        *sqlx.DB
	closeOnce sync.Once
}

// New constructs every component. Nothing touches the network until Run.
func New(cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, opts: opts, logger: log.With("component", "app")}

	a.Ledger = ledger.Open(cfg.Ledger.Path, log)
	a.Filter = filter.New(cfg.Relay.Keywords, log)

	client, err := mtproto.New(mtproto.Options{
		AppID:         cfg.Source.APIID,
		AppHash:       cfg.Source.APIHash,
		Session:       cfg.Source.Session,
		Authenticator: opts.Authenticator,
		OnSession:     opts.OnSession,
		Logger:        log,
		ZapLogger:     opts.ZapLogger,
	})
	if err != nil {
		return nil, err
	}
	a.Reader = source.NewReader(client, cfg.Source.Channel, log)

	bot, err := telegram.NewTelegramBot(cfg.Target.BotToken, log, opts.BotOptions...)
	if err != nil {
		return nil, err
	}
	a.Forwarder = forwarder.New(bot, cfg.Source.Channel, log)

	a.db, err = journal.NewDB(cfg.Journal.Path, log)
	if err != nil {
		return nil, err
	}
	a.Journal = journal.NewStore(a.db, log)

	a.Orchestrator = relay.New(relay.Deps{
		Source:  a.Reader,
		Sender:  a.Forwarder,
		Filter:  a.Filter,
		Ledger:  a.Ledger,
		Journal: a.Journal,
	}, relay.SettingsFromConfig(cfg), log)

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:  log,
		Journal: a.Journal,
		Status:  a.Orchestrator,
		Ledger:  a.Ledger,
		Config:  cfg,
	})
	a.Scheduler, err = relay.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.logger.Info("Application constructed",
		"channel", cfg.Source.Channel,
		"destination", cfg.Target.Chat,
		"keywords", len(a.Filter.Keywords()),
		"ledger_size", a.Ledger.Len())
	return a, nil
}

// Run starts the orchestrator and the scheduler and blocks until ctx is
// canceled or the orchestrator gives up. It returns nil on cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.opts.Loader != nil {
		a.opts.Loader.WatchKeywords(a.logger, a.Filter.UpdateKeywords)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Orchestrator.Run(gCtx); err != nil {
			return fmt.Errorf("relay stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := a.Scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases every component in reverse construction order. It is
// safe to call more than once and after a partial New.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.Scheduler != nil {
			if err := a.Scheduler.Stop(); err != nil {
				a.logger.Warn("Error stopping scheduler", "error", err)
			}
		}
		if a.Orchestrator != nil {
			a.Orchestrator.Stop()
		}
		journal.CloseDB(a.db, a.logger)
		a.logger.Info("Application closed")
	})
}
