package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/channelrelay/internal/relay"
)

// newJournalMaintenanceTask prunes journal entries past the retention window
// and compacts the database.
func newJournalMaintenanceTask(deps TaskDeps) relay.ScheduledTaskFunc {
	log := deps.Logger.With("task", "journal_maintenance")

	return func(ctx context.Context) error {
		if deps.Journal == nil {
			log.DebugContext(ctx, "Journal disabled, nothing to maintain")
			return nil
		}

		startTime := time.Now()
		cutoff := deps.Now().Add(-deps.Config.Journal.Retention)

		pruned, err := deps.Journal.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("journal prune failed: %w", err)
		}
		if err := deps.Journal.RunMaintenance(ctx); err != nil {
			return fmt.Errorf("journal maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Journal maintenance completed",
			"pruned", pruned, "cutoff", cutoff, "duration", time.Since(startTime))
		return nil
	}
}
