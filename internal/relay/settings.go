package relay

import (
	"time"

	"github.com/edgard/channelrelay/internal/config"
)

// Settings tunes the orchestrator. Zero values fall back to the config
// package defaults.
type Settings struct {
	Destination string

	BackfillLimit int
	BackfillDelay time.Duration

	PollInterval time.Duration
	PollLimit    int
	PollDelay    time.Duration

	// CleanupEvery runs a ledger cleanup down to LedgerCeiling every N polls.
	CleanupEvery  int
	LedgerCeiling int

	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	ReconnectBackoffMax  time.Duration
	// ReconnectRetries and ReconnectDelay are handed to the source for each
	// reconnect attempt.
	ReconnectRetries int
	ReconnectDelay   time.Duration

	MaxForwardAttempts int
	SendTimeout        time.Duration
}

// SettingsFromConfig maps the loaded configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Destination:          cfg.Target.Chat,
		BackfillLimit:        cfg.Relay.BackfillLimit,
		BackfillDelay:        cfg.Relay.BackfillDelay,
		PollInterval:         cfg.Relay.PollInterval,
		PollLimit:            cfg.Relay.PollLimit,
		PollDelay:            cfg.Relay.PollDelay,
		CleanupEvery:         cfg.Relay.CleanupEvery,
		LedgerCeiling:        cfg.Ledger.MaxSize,
		MaxReconnectAttempts: cfg.Relay.MaxReconnectAttempts,
		ReconnectBackoff:     cfg.Relay.ReconnectBackoff,
		ReconnectBackoffMax:  cfg.Relay.ReconnectBackoffMax,
		ReconnectRetries:     cfg.Source.ReconnectRetries,
		ReconnectDelay:       cfg.Source.ReconnectDelay,
		MaxForwardAttempts:   cfg.Relay.MaxForwardAttempts,
		SendTimeout:          cfg.Target.SendTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	if s.BackfillLimit < 0 {
		s.BackfillLimit = 0
	}
	if s.PollInterval <= 0 {
		s.PollInterval = config.DefaultPollInterval
	}
	if s.PollLimit <= 0 {
		s.PollLimit = config.DefaultPollLimit
	}
	if s.CleanupEvery <= 0 {
		s.CleanupEvery = config.DefaultCleanupEvery
	}
	if s.LedgerCeiling <= 0 {
		s.LedgerCeiling = config.DefaultLedgerMaxSize
	}
	if s.MaxReconnectAttempts <= 0 {
		s.MaxReconnectAttempts = config.DefaultMaxReconnectAttempts
	}
	if s.ReconnectBackoffMax < s.ReconnectBackoff {
		s.ReconnectBackoffMax = s.ReconnectBackoff
	}
	if s.ReconnectRetries <= 0 {
		s.ReconnectRetries = config.DefaultReconnectRetries
	}
	if s.MaxForwardAttempts <= 0 {
		s.MaxForwardAttempts = config.DefaultMaxForwardAttempts
	}
	if s.SendTimeout <= 0 {
		s.SendTimeout = config.DefaultSendTimeout
	}
	return s
}

// backoff returns the wait after the given failed reconnect attempt:
// base doubled per attempt, capped at max.
func (s Settings) backoff(attempt int) time.Duration {
	d := s.ReconnectBackoff
	for i := 1; i < attempt && d < s.ReconnectBackoffMax; i++ {
		d *= 2
	}
	return min(d, s.ReconnectBackoffMax)
}
