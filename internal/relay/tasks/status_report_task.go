package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/channelrelay/internal/journal"
	"github.com/edgard/channelrelay/internal/relay"
)

// recentWindow bounds how far back the report looks for a failed delivery.
const recentWindow = 50

// newStatusReportTask logs the relay position, counters and journal totals.
func newStatusReportTask(deps TaskDeps) relay.ScheduledTaskFunc {
	log := deps.Logger.With("task", "status_report")

	return func(ctx context.Context) error {
		attrs := []any{"relay", deps.Status.Status()}

		if deps.Ledger != nil {
			attrs = append(attrs, slog.Group("ledger",
				"size", deps.Ledger.Len(),
				"last_updated", deps.Ledger.LastUpdated(),
			))
		}

		if deps.Journal != nil {
			counts, err := deps.Journal.CountByStatus(ctx)
			if err != nil {
				log.WarnContext(ctx, "Could not read journal totals", "error", err)
			} else {
				attrs = append(attrs, slog.Group("journal",
					journal.StatusForwarded, counts[journal.StatusForwarded],
					journal.StatusFailed, counts[journal.StatusFailed],
					journal.StatusAbandoned, counts[journal.StatusAbandoned],
				))
			}
		}

		if deps.Journal != nil {
			if last, ok := lastFailure(ctx, deps.Journal, log); ok {
				attrs = append(attrs, slog.Group("last_failure",
					"message_id", last.SourceMessageID,
					"status", last.Status,
					"error", last.Error,
					"at", last.CreatedAt,
				))
			}
		}

		log.InfoContext(ctx, "Relay status", attrs...)
		return nil
	}
}

func lastFailure(ctx context.Context, j journal.Store, log *slog.Logger) (journal.Entry, bool) {
	entries, err := j.Recent(ctx, recentWindow)
	if err != nil {
		log.WarnContext(ctx, "Could not read recent journal entries", "error", err)
		return journal.Entry{}, false
	}
	for _, e := range entries {
		if e.Status == journal.StatusFailed || e.Status == journal.StatusAbandoned {
			return e, true
		}
	}
	return journal.Entry{}, false
}
