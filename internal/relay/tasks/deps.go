// Package tasks implements the relay's scheduled housekeeping tasks.
package tasks

import (
	"log/slog"
	"time"

	"github.com/edgard/channelrelay/internal/config"
	"github.com/edgard/channelrelay/internal/journal"
	"github.com/edgard/channelrelay/internal/relay"
)

// StatusProvider reports the orchestrator state. *relay.Orchestrator
// satisfies it.
type StatusProvider interface {
	Status() relay.Status
}

// LedgerInfo exposes the ledger metadata reported by status_report.
type LedgerInfo interface {
	Len() int
	LastUpdated() time.Time
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Journal journal.Store
	Status  StatusProvider
	Ledger  LedgerInfo
	Config  *config.Config
	Now     func() time.Time
}
