// Package ledger persists the set of source message IDs the relay has
// already handled, so restarts never forward the same post twice.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/edgard/channelrelay/internal/errors"
)

// DefaultMaxSize is the retention ceiling applied by Cleanup when the
// configuration does not override it.
const DefaultMaxSize = 10000

// snapshot is the on-disk representation.
type snapshot struct {
	MessageIDs  []int     `json:"messageIds"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Ledger is an insertion-ordered set of processed message IDs backed by a
// JSON file. Every mutation is written through synchronously.
type Ledger struct {
	mu          sync.Mutex
	path        string
	ids         []int // insertion order, oldest first
	set         map[int]struct{}
	lastUpdated time.Time
	logger      *slog.Logger
}

// Open loads the ledger stored at path. A missing file yields an empty
// ledger; an unreadable or malformed file is logged and also yields an
// empty ledger.
func Open(path string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Ledger{
		path:   path,
		set:    make(map[int]struct{}),
		logger: logger.With("component", "ledger"),
	}
	l.load()
	return l
}

func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Info("No ledger file found, starting empty", "path", l.path)
		return
	}
	if err != nil {
		l.logger.Error("Failed to read ledger, starting empty", "path", l.path, "error", err)
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		l.logger.Error("Ledger file is malformed, starting empty", "path", l.path, "error", err)
		return
	}

	for _, id := range snap.MessageIDs {
		if _, dup := l.set[id]; dup {
			continue
		}
		l.set[id] = struct{}{}
		l.ids = append(l.ids, id)
	}
	l.lastUpdated = snap.LastUpdated
	l.logger.Info("Ledger loaded", "path", l.path, "count", len(l.ids), "last_updated", l.lastUpdated)
}

// IsProcessed reports whether id is in the ledger.
func (l *Ledger) IsProcessed(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.set[id]
	return ok
}

// MarkProcessed adds id and persists the ledger. Marking an ID that is
// already present does nothing. On a write failure the ID stays recorded in
// memory and a StorageError is returned.
func (l *Ledger) MarkProcessed(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.set[id]; ok {
		return nil
	}
	l.set[id] = struct{}{}
	l.ids = append(l.ids, id)
	return l.persist()
}

// Cleanup evicts the oldest inserted IDs until at most ceiling remain and
// persists the result. It returns the number of evicted IDs.
func (l *Ledger) Cleanup(ceiling int) (int, error) {
	if ceiling < 0 {
		ceiling = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	excess := len(l.ids) - ceiling
	if excess <= 0 {
		return 0, nil
	}

	for _, id := range l.ids[:excess] {
		delete(l.set, id)
	}
	kept := make([]int, ceiling)
	copy(kept, l.ids[excess:])
	l.ids = kept

	l.logger.Info("Ledger cleaned up", "evicted", excess, "remaining", len(l.ids))
	return excess, l.persist()
}

// Len returns the number of IDs in the ledger.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// IDs returns the IDs in insertion order.
func (l *Ledger) IDs() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int, len(l.ids))
	copy(out, l.ids)
	return out
}

// LastUpdated returns the time of the last successful write.
func (l *Ledger) LastUpdated() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUpdated
}

// persist writes the snapshot through a temporary file in the target
// directory. Caller must hold l.mu.
func (l *Ledger) persist() error {
	now := time.Now().UTC()
	data, err := json.MarshalIndent(snapshot{MessageIDs: l.ids, LastUpdated: now}, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("failed to encode ledger", err)
	}

	if err := writeFile(l.path, data); err != nil {
		l.logger.Error("Failed to persist ledger, continuing in memory", "path", l.path, "error", err)
		return apperrors.NewStorageError(fmt.Sprintf("failed to write ledger %s", l.path), err)
	}

	l.lastUpdated = now
	return nil
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
