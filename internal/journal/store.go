package journal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/edgard/channelrelay/internal/errors"
)

// Store defines the journal operations.
type Store interface {
	// Record appends an entry. CreatedAt is set when zero.
	Record(ctx context.Context, entry *Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// CountByStatus returns the number of entries per status.
	CountByStatus(ctx context.Context) (map[string]int, error)

	// Prune deletes entries created before olderThan and returns how many went.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "journal"),
	}
}

func (s *sqlxStore) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot record nil journal entry")
	}
	switch entry.Status {
	case StatusForwarded, StatusFailed, StatusAbandoned:
	default:
		return fmt.Errorf("unknown journal status %q", entry.Status)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	query := `INSERT INTO forward_journal
		(source_message_id, destination, status, sent_message_id, error, created_at)
		VALUES (:source_message_id, :destination, :status, :sent_message_id, :error, :created_at)`

	result, err := s.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record journal entry",
			"message_id", entry.SourceMessageID, "status", entry.Status, "error", err)
		return apperrors.NewStorageError("failed to record journal entry", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *sqlxStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []Entry
	query := `SELECT id, source_message_id, destination, status, sent_message_id, error, created_at
		FROM forward_journal ORDER BY id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, apperrors.NewStorageError("failed to query journal", err)
	}
	return entries, nil
}

func (s *sqlxStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM forward_journal GROUP BY status`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, apperrors.NewStorageError("failed to count journal entries", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *sqlxStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM forward_journal WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, apperrors.NewStorageError("failed to prune journal", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStorageError("failed to read pruned row count", err)
	}
	s.logger.DebugContext(ctx, "Pruned journal entries", "count", n, "older_than", olderThan)
	return n, nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running journal maintenance (VACUUM)")
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return apperrors.NewStorageError("failed to vacuum journal", err)
	}
	s.logger.InfoContext(ctx, "Journal maintenance completed", "duration", time.Since(start))
	return nil
}
