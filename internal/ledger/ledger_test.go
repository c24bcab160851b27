package ledger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/edgard/channelrelay/internal/errors"
	"github.com/edgard/channelrelay/internal/ledger"
)

func TestOpen_MissingFile(t *testing.T) {
	t.Parallel()

	l := ledger.Open(filepath.Join(t.TempDir(), "processed.json"), nil)
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestOpen_MalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.json")
	if err := os.WriteFile(path, []byte(`{"messageIds": [1, 2,`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l := ledger.Open(path, nil)
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for malformed file", l.Len())
	}

	// The ledger must stay usable and overwrite the corrupt file.
	if err := l.MarkProcessed(9); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !ledger.Open(path, nil).IsProcessed(9) {
		t.Errorf("expected id 9 after rewriting corrupt file")
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "processed.json")
	l := ledger.Open(path, nil)

	const n = 250
	for i := 1; i <= n; i++ {
		if err := l.MarkProcessed(i * 3); err != nil {
			t.Fatalf("MarkProcessed(%d) failed: %v", i*3, err)
		}
	}

	reloaded := ledger.Open(path, nil)
	if reloaded.Len() != n {
		t.Fatalf("reloaded Len() = %d, want %d", reloaded.Len(), n)
	}
	for i := 1; i <= n; i++ {
		if !reloaded.IsProcessed(i * 3) {
			t.Fatalf("reloaded ledger is missing id %d", i*3)
		}
	}
	if reloaded.IsProcessed(4) {
		t.Errorf("reloaded ledger reports unknown id 4 as processed")
	}
	if reloaded.LastUpdated().IsZero() {
		t.Errorf("expected lastUpdated to be persisted")
	}
}

func TestFileFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.json")
	l := ledger.Open(path, nil)
	for _, id := range []int{5, 3, 8} {
		if err := l.MarkProcessed(id); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var raw struct {
		MessageIDs  []int  `json:"messageIds"`
		LastUpdated string `json:"lastUpdated"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("ledger file is not valid JSON: %v", err)
	}
	if len(raw.MessageIDs) != 3 || raw.MessageIDs[0] != 5 || raw.MessageIDs[2] != 8 {
		t.Errorf("messageIds = %v, want [5 3 8]", raw.MessageIDs)
	}
	if raw.LastUpdated == "" {
		t.Errorf("lastUpdated is empty")
	}
}

func TestMarkProcessed_Duplicate(t *testing.T) {
	t.Parallel()

	l := ledger.Open(filepath.Join(t.TempDir(), "processed.json"), nil)
	for i := 0; i < 3; i++ {
		if err := l.MarkProcessed(42); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestMarkProcessed_WriteFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l := ledger.Open(filepath.Join(blocker, "processed.json"), nil)
	err := l.MarkProcessed(1)
	if !apperrors.IsStorage(err) {
		t.Fatalf("MarkProcessed error = %v, want StorageError", err)
	}
	if !l.IsProcessed(1) {
		t.Errorf("id must stay recorded in memory after a write failure")
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.json")

	const total = 10050
	ids := make([]int, total)
	for i := range ids {
		ids[i] = i + 1
	}
	data, err := json.Marshal(map[string]any{"messageIds": ids, "lastUpdated": "2026-01-02T03:04:05Z"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l := ledger.Open(path, nil)
	if l.Len() != total {
		t.Fatalf("Len() = %d, want %d", l.Len(), total)
	}

	evicted, err := l.Cleanup(ledger.DefaultMaxSize)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if evicted != 50 {
		t.Errorf("evicted = %d, want 50", evicted)
	}

	reloaded := ledger.Open(path, nil)
	if reloaded.Len() != ledger.DefaultMaxSize {
		t.Fatalf("Len() = %d, want %d", reloaded.Len(), ledger.DefaultMaxSize)
	}
	for i := 1; i <= 50; i++ {
		if reloaded.IsProcessed(i) {
			t.Fatalf("oldest id %d survived cleanup", i)
		}
	}
	for i := 51; i <= total; i++ {
		if !reloaded.IsProcessed(i) {
			t.Fatalf("recent id %d was evicted", i)
		}
	}
}

func TestCleanup_InsertionOrder(t *testing.T) {
	t.Parallel()

	l := ledger.Open(filepath.Join(t.TempDir(), "processed.json"), nil)
	// Insertion order differs from numeric order.
	for _, id := range []int{900, 10, 500, 20} {
		if err := l.MarkProcessed(id); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
	}

	if _, err := l.Cleanup(2); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	got := l.IDs()
	if len(got) != 2 || got[0] != 500 || got[1] != 20 {
		t.Errorf("IDs() = %v, want [500 20]", got)
	}
}

func TestCleanup_UnderCeiling(t *testing.T) {
	t.Parallel()

	l := ledger.Open(filepath.Join(t.TempDir(), "processed.json"), nil)
	_ = l.MarkProcessed(1)

	evicted, err := l.Cleanup(10)
	if err != nil || evicted != 0 {
		t.Errorf("Cleanup() = %d, %v; want 0, nil", evicted, err)
	}
}
