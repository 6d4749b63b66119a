package reports

import (
	"context"

	"github.com/savegress/recordvault/pkg/models"
)

// Store owns canonical report entities, keyed by owner and id. Reports are
// write-once: there is no update path.
type Store interface {
	// Put inserts a report. Fails with ErrConflict if the id already exists.
	Put(ctx context.Context, report *models.Report) error

	// ListByOwner returns all reports for an owner in timeline order:
	// captured-at descending, ties broken by ingested-at descending.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Report, error)

	// GetByIDs returns exactly the subset of ids that exist and belong to the
	// owner, in timeline order. Callers compare the returned count against the
	// requested set to detect ownership mismatches.
	GetByIDs(ctx context.Context, ownerID string, ids []string) ([]*models.Report, error)

	// Count returns the number of stored reports.
	Count(ctx context.Context) (int, error)

	Close() error
}

// ErrConflict is returned when a report id already exists.
var ErrConflict = &Error{Code: "REPORT_CONFLICT", Message: "Report id already exists"}

// Error represents a report store error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
