package relay

import (
	"context"
	"testing"

	"github.com/edgard/channelrelay/internal/config"
)

func TestScheduler_StartRegistersEnabledTasks(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"status_report":       {Enabled: true, Schedule: "0 */15 * * * *"},
		"journal_maintenance": {Enabled: false, Schedule: "0 0 4 * * *"},
		"unknown_task":        {Enabled: true, Schedule: "0 0 * * * *"},
		"no_schedule":         {Enabled: true},
		"bad_schedule":        {Enabled: true, Schedule: "not a cron line"},
	}}
	taskMap := map[string]ScheduledTaskFunc{
		"status_report":       noop,
		"journal_maintenance": noop,
		"no_schedule":         noop,
		"bad_schedule":        noop,
	}

	s, err := NewScheduler(nil, cfg, taskMap)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := s.Scheduled(); got != 1 {
		t.Errorf("Scheduled() = %d, want 1", got)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start succeeded")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestScheduler_NoTasks(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(nil, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
