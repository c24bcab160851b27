package journal

import "time"

// Status values recorded for a forward attempt.
const (
	StatusForwarded = "forwarded"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Entry is one forward outcome.
type Entry struct {
	ID              int64     `db:"id"`
	SourceMessageID int       `db:"source_message_id"`
	Destination     string    `db:"destination"`
	Status          string    `db:"status"`
	SentMessageID   int       `db:"sent_message_id"`
	Error           string    `db:"error"`
	CreatedAt       time.Time `db:"created_at"`
}
