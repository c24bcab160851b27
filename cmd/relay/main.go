// Package main is the entrypoint for the channel relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgard/channelrelay/internal/app"
	"github.com/edgard/channelrelay/internal/config"
	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/logger"
	"github.com/edgard/channelrelay/internal/relay"
	"github.com/edgard/channelrelay/internal/source"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires the application and returns the process exit code: 0 after a
// graceful stop, 1 on startup failure or when the relay gives up.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	interactive := flag.Bool("interactive", false, "Prompt for a login code even when a session token is configured")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "code", apperrors.Code(err), "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "config_file", loader.FileInUse())

	zapLog, err := logger.NewZap(cfg.Logger.Level, cfg.Logger.JSON)
	if err != nil {
		log.Error("Failed to build transport logger", "error", err)
		return 1
	}
	defer zapLog.Sync() //nolint: errcheck

	var auth source.Authenticator = source.StaticAuthenticator{PhoneNumber: cfg.Source.Phone}
	if cfg.Source.Session == "" || *interactive {
		auth = source.NewPromptAuthenticator(cfg.Source.Phone, os.Stdin, os.Stderr)
	}

	application, err := app.New(cfg, log, app.Options{
		Loader:        loader,
		Authenticator: auth,
		OnSession:     printSession,
		ZapLogger:     zapLog,
	})
	if err != nil {
		log.Error("Failed to build application", "code", apperrors.Code(err), "error", err)
		return 1
	}
	defer application.Close()

	log.Info("Starting relay...", "channel", cfg.Source.Channel, "destination", cfg.Target.Chat)
	runErr := application.Run(ctx)

	if runErr != nil {
		if errors.Is(runErr, relay.ErrReconnectExhausted) {
			log.Error("Relay gave up reconnecting to the source", "error", runErr)
		} else {
			log.Error("Relay stopped due to error", "code", apperrors.Code(runErr), "error", runErr)
		}
		return 1
	}

	log.Info("Relay stopped gracefully.")
	return 0
}

// printSession shows a freshly created session token once so the operator
// can store it in RELAY_SOURCE_SESSION.
func printSession(token string) {
	fmt.Fprintf(os.Stderr, "\nLogin succeeded. Set this value as RELAY_SOURCE_SESSION to skip the login next time:\n\n%s\n\n", token)
}
