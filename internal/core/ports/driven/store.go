package driven

import (
	"context"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

// PresenceStore persists presence observations, OOO notes and directory records.
// Implementations must be safe for concurrent use. Errors wrapping
// domain.ErrStoreUnavailable are expected and never abort enumeration.
type PresenceStore interface {
	// LogPresence appends one presence row. It never deduplicates.
	LogPresence(ctx context.Context, rec *domain.PresenceRecord, guid, session string) error

	// LogOOO stores an OOO note unless the same content hash is already stored
	// for the target. Returns false when the row already existed.
	LogOOO(ctx context.Context, guid string, msg domain.OOOMessage) (bool, error)

	// LogUserInfo stores the directory records found in a search payload.
	// Returns the number of rows newly inserted.
	LogUserInfo(ctx context.Context, payload string) (int, error)

	Close() error
}

// ResultWriter receives one record per processed target.
type ResultWriter interface {
	Write(rec domain.ResultRecord) error
}

// Reporter prints the human readable summary for each target.
type Reporter interface {
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Info(format string, args ...any)
}
