package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	apperrors "github.com/edgard/channelrelay/internal/errors"
)

// EnvPrefix prefixes every environment variable, e.g. RELAY_SOURCE_API_ID.
const EnvPrefix = "RELAY"

// requiredKeys have no default, so they are bound to the environment
// explicitly for Unmarshal to see them.
var requiredKeys = []string{
	"source.api_id",
	"source.api_hash",
	"source.session",
	"source.phone",
	"source.channel",
	"target.bot_token",
	"target.chat",
}

// Loader reads configuration and keeps the viper instance for watching.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader. path may be empty or point to a missing
// file; environment variables and defaults are used then.
func NewLoader(path string) *Loader {
	return &Loader{v: viper.New(), path: path}
}

// Load loads and validates configuration from:
// 1. Default values
// 2. the YAML config file, when present
// 3. RELAY_* environment variables
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v)

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := l.v.BindEnv(key); err != nil {
			return nil, apperrors.NewConfigurationError("failed to bind environment", err)
		}
	}

	if err := l.readFile(); err != nil {
		return nil, apperrors.NewConfigurationError("failed to read config file", err)
	}

	cfg := &Config{}
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(cfg, hooks); err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse config", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid configuration", err)
	}
	return cfg, nil
}

// FileInUse reports whether a config file was read.
func (l *Loader) FileInUse() bool {
	return l.v.ConfigFileUsed() != ""
}

// WatchKeywords calls onChange with the normalized keyword list whenever
// the config file changes. It does nothing without a config file.
func (l *Loader) WatchKeywords(logger *slog.Logger, onChange func([]string)) {
	if !l.FileInUse() {
		return
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "config_watcher")

	l.v.OnConfigChange(func(e fsnotify.Event) {
		keywords, err := l.Keywords()
		if err != nil {
			log.Warn("Config file changed but keywords could not be decoded", "file", e.Name, "error", err)
			return
		}
		log.Info("Config file changed, reloading keywords", "file", e.Name, "count", len(keywords))
		onChange(keywords)
	})
	l.v.WatchConfig()
}

// Keywords decodes relay.keywords from the current sources the same way
// Load does: strings are split on commas only, so multi-word keywords
// survive. An empty result falls back to DefaultKeywords.
func (l *Loader) Keywords() ([]string, error) {
	var raw []string
	hook := viper.DecodeHook(mapstructure.StringToSliceHookFunc(","))
	if err := l.v.UnmarshalKey("relay.keywords", &raw, hook); err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse relay.keywords", err)
	}
	keywords := NormalizeKeywords(raw)
	if len(keywords) == 0 {
		return DefaultKeywords, nil
	}
	return keywords, nil
}

func (l *Loader) readFile() error {
	if l.path == "" {
		return nil
	}
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		// Config file not found is okay, we'll use defaults and env
		return nil
	}
	l.v.SetConfigFile(l.path)
	l.v.SetConfigType("yaml")
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", l.path, err)
	}
	return nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func (c *Config) normalize() {
	c.Source.Channel = strings.TrimPrefix(strings.TrimSpace(c.Source.Channel), "@")
	c.Target.Chat = strings.TrimSpace(c.Target.Chat)
	c.Logger.Level = strings.ToLower(strings.TrimSpace(c.Logger.Level))

	c.Relay.Keywords = NormalizeKeywords(c.Relay.Keywords)
	if len(c.Relay.Keywords) == 0 {
		c.Relay.Keywords = DefaultKeywords
	}
	if len(c.Scheduler.Tasks) == 0 {
		c.Scheduler.Tasks = DefaultTasks
	}
}

// NormalizeKeywords splits comma separated entries, trims and lowercases
// them and drops empties.
func NormalizeKeywords(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, kw := range strings.Split(entry, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

// setDefaults sets default values for optional configuration parameters
func setDefaults(v *viper.Viper) {
	v.SetDefault("source.reconnect_retries", DefaultReconnectRetries)
	v.SetDefault("source.reconnect_delay", DefaultReconnectDelay)

	v.SetDefault("target.send_timeout", DefaultSendTimeout)

	v.SetDefault("relay.keywords", DefaultKeywords)
	v.SetDefault("relay.poll_interval", DefaultPollInterval)
	v.SetDefault("relay.poll_limit", DefaultPollLimit)
	v.SetDefault("relay.poll_delay", DefaultPollDelay)
	v.SetDefault("relay.backfill_limit", DefaultBackfillLimit)
	v.SetDefault("relay.backfill_delay", DefaultBackfillDelay)
	v.SetDefault("relay.cleanup_every", DefaultCleanupEvery)
	v.SetDefault("relay.max_reconnect_attempts", DefaultMaxReconnectAttempts)
	v.SetDefault("relay.reconnect_backoff", DefaultReconnectBackoff)
	v.SetDefault("relay.reconnect_backoff_max", DefaultReconnectBackoffMax)
	v.SetDefault("relay.max_forward_attempts", DefaultMaxForwardAttempts)

	v.SetDefault("ledger.path", DefaultLedgerPath)
	v.SetDefault("ledger.max_size", DefaultLedgerMaxSize)

	v.SetDefault("journal.path", DefaultJournalPath)
	v.SetDefault("journal.retention", DefaultJournalRetention)

	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook accepts bare integers for durations and reads them
// as seconds, so RELAY_RELAY_POLL_INTERVAL=30 means 30s.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s, _ := data.(string)
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return time.Duration(n) * time.Second, nil
			}
		case reflect.Int, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		}
		return data, nil
	}
}
