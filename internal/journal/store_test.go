package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/channelrelay/internal/journal"
)

func newStore(t *testing.T) (journal.Store, *sqlx.DB) {
	t.Helper()

	db, err := journal.NewDB(filepath.Join(t.TempDir(), "data", "relay.db"), nil)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { journal.CloseDB(db, nil) })

	return journal.NewStore(db, nil), db
}

func TestNewDB_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relay.db")
	for i := 0; i < 2; i++ {
		db, err := journal.NewDB(path, nil)
		if err != nil {
			t.Fatalf("NewDB (open %d) failed: %v", i+1, err)
		}
		journal.CloseDB(db, nil)
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	entries := []*journal.Entry{
		{SourceMessageID: 10, Destination: "-100123", Status: journal.StatusForwarded, SentMessageID: 501},
		{SourceMessageID: 11, Destination: "-100123", Status: journal.StatusFailed, Error: "timeout"},
		{SourceMessageID: 12, Destination: "@jobs", Status: journal.StatusAbandoned, Error: "chat not found"},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record(%d) failed: %v", e.SourceMessageID, err)
		}
		if e.ID == 0 {
			t.Errorf("Record(%d) left ID unset", e.SourceMessageID)
		}
		if e.CreatedAt.IsZero() {
			t.Errorf("Record(%d) left CreatedAt unset", e.SourceMessageID)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(recent))
	}
	if recent[0].SourceMessageID != 12 || recent[1].SourceMessageID != 11 {
		t.Errorf("Recent order = %d,%d, want 12,11", recent[0].SourceMessageID, recent[1].SourceMessageID)
	}
	if recent[0].Error != "chat not found" || recent[0].Destination != "@jobs" {
		t.Errorf("Recent[0] = %+v", recent[0])
	}
}

func TestStore_RecordRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	store, _ := newStore(t)

	if err := store.Record(context.Background(), &journal.Entry{SourceMessageID: 1, Status: "lost"}); err == nil {
		t.Fatal("Record accepted an unknown status")
	}
	if err := store.Record(context.Background(), nil); err == nil {
		t.Fatal("Record accepted a nil entry")
	}
}

func TestStore_CountByStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	statuses := []string{
		journal.StatusForwarded, journal.StatusForwarded, journal.StatusForwarded,
		journal.StatusFailed, journal.StatusAbandoned,
	}
	for i, status := range statuses {
		if err := store.Record(ctx, &journal.Entry{SourceMessageID: i + 1, Destination: "-1", Status: status}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	want := map[string]int{journal.StatusForwarded: 3, journal.StatusFailed: 1, journal.StatusAbandoned: 1}
	for status, n := range want {
		if counts[status] != n {
			t.Errorf("counts[%s] = %d, want %d", status, counts[status], n)
		}
	}
}

func TestStore_PruneAndMaintenance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	now := time.Now()
	ages := []time.Duration{48 * time.Hour, 47 * time.Hour, time.Hour, 0}
	for i, age := range ages {
		e := &journal.Entry{SourceMessageID: i + 1, Destination: "-1", Status: journal.StatusForwarded, CreatedAt: now.Add(-age)}
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	pruned, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 2 {
		t.Errorf("Prune removed %d entries, want 2", pruned)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("%d entries left after prune, want 2", len(recent))
	}

	if err := store.RunMaintenance(ctx); err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}
}
