package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultReconnectRetries = 3
	DefaultReconnectDelay   = 5 * time.Second
	DefaultSendTimeout      = 30 * time.Second

	DefaultPollInterval         = 30 * time.Second
	DefaultPollLimit            = 10
	DefaultPollDelay            = time.Second
	DefaultBackfillLimit        = 50
	DefaultBackfillDelay        = 500 * time.Millisecond
	DefaultCleanupEvery         = 10 // polls between ledger cleanups
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBackoff     = 5 * time.Second
	DefaultReconnectBackoffMax  = time.Minute
	DefaultMaxForwardAttempts   = 3

	DefaultLedgerPath    = "processed_messages.json"
	DefaultLedgerMaxSize = 10000

	DefaultJournalPath      = "relay.db"
	DefaultJournalRetention = 30 * 24 * time.Hour
)

// DefaultKeywords is the built-in developer job keyword set.
var DefaultKeywords = []string{
	"developer", "engineer", "programmer", "hiring", "vacancy",
	"golang", "go", "python", "javascript", "typescript", "react",
	"backend", "frontend", "fullstack", "devops", "remote",
}

// DefaultTasks are the housekeeping tasks scheduled when the configuration
// does not list any.
var DefaultTasks = map[string]TaskConfig{
	"journal_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
	"status_report":       {Enabled: true, Schedule: "0 */15 * * * *"},
}
