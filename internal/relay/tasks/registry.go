package tasks

import (
	"time"

	"github.com/edgard/channelrelay/internal/relay"
)

// RegisterAllTasks returns every task keyed by the name used in the
// scheduler.tasks configuration section.
func RegisterAllTasks(deps TaskDeps) map[string]relay.ScheduledTaskFunc {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	tasks := map[string]relay.ScheduledTaskFunc{
		"journal_maintenance": newJournalMaintenanceTask(deps),
		"status_report":       newStatusReportTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
