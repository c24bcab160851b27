// Package config loads, normalizes and validates the relay configuration
// from defaults, an optional YAML file and RELAY_* environment variables.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Target    TargetConfig    `mapstructure:"target"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// SourceConfig describes the user session that reads the source channel.
type SourceConfig struct {
	APIID            int           `mapstructure:"api_id"            validate:"required,gt=0"`
	APIHash          string        `mapstructure:"api_hash"          validate:"required"`
	Session          string        `mapstructure:"session"`
	Phone            string        `mapstructure:"phone"`
	Channel          string        `mapstructure:"channel"           validate:"required"`
	ReconnectRetries int           `mapstructure:"reconnect_retries" validate:"min=1,max=20"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"   validate:"min=0s"`
}

// TargetConfig describes the bot that posts to the destination chat.
type TargetConfig struct {
	BotToken    string        `mapstructure:"bot_token"    validate:"required"`
	Chat        string        `mapstructure:"chat"         validate:"required"`
	SendTimeout time.Duration `mapstructure:"send_timeout" validate:"min=1s,max=5m"`
}

// RelayConfig tunes the poll loop.
type RelayConfig struct {
	Keywords             []string      `mapstructure:"keywords"`
	PollInterval         time.Duration `mapstructure:"poll_interval"          validate:"min=1s"`
	PollLimit            int           `mapstructure:"poll_limit"             validate:"min=1,max=100"`
	PollDelay            time.Duration `mapstructure:"poll_delay"             validate:"min=0s"`
	BackfillLimit        int           `mapstructure:"backfill_limit"         validate:"min=0,max=100"`
	BackfillDelay        time.Duration `mapstructure:"backfill_delay"         validate:"min=0s"`
	CleanupEvery         int           `mapstructure:"cleanup_every"          validate:"min=1"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" validate:"min=1"`
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"      validate:"min=0s"`
	ReconnectBackoffMax  time.Duration `mapstructure:"reconnect_backoff_max"  validate:"gtefield=ReconnectBackoff"`
	MaxForwardAttempts   int           `mapstructure:"max_forward_attempts"   validate:"min=1"`
}

// LedgerConfig locates the processed-message ledger.
type LedgerConfig struct {
	Path    string `mapstructure:"path"     validate:"required"`
	MaxSize int    `mapstructure:"max_size" validate:"min=1"`
}

// JournalConfig locates the forward journal database.
type JournalConfig struct {
	Path      string        `mapstructure:"path"      validate:"required"`
	Retention time.Duration `mapstructure:"retention" validate:"min=1h"`
}

// LoggerConfig selects log verbosity and format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// SchedulerConfig lists housekeeping tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a task and sets its cron schedule (with seconds).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
