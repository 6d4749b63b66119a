package grants

import (
	"context"

	"github.com/savegress/recordvault/pkg/models"
)

// Store persists access grants. Insert must be atomic with the token
// uniqueness check: two concurrent writers can never commit the same token.
type Store interface {
	// Insert stores a new grant. Returns ErrDuplicateToken if another grant
	// already holds the same token, ErrDuplicateID on an id collision.
	Insert(ctx context.Context, grant *models.AccessGrant) error

	// Get returns the grant with the given id under the given owner.
	Get(ctx context.Context, ownerID, grantID string) (*models.AccessGrant, error)

	// GetByToken resolves a grant by its bearer token via a direct index,
	// never a scan over owners.
	GetByToken(ctx context.Context, token string) (*models.AccessGrant, error)

	// Revoke flips the grant inactive. Idempotent: revoking an already
	// inactive grant succeeds. Returns ErrNotFound for an unknown id.
	Revoke(ctx context.Context, ownerID, grantID string) error

	// ListByOwner returns all grants for an owner, issued-at descending.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.AccessGrant, error)

	Close() error
}

// Errors
var (
	ErrInvalidScope   = &Error{Code: "INVALID_SCOPE", Message: "Grant scope must name at least one report"}
	ErrForbidden      = &Error{Code: "FORBIDDEN", Message: "One or more reports are not owned by the caller"}
	ErrNotFound       = &Error{Code: "GRANT_NOT_FOUND", Message: "Grant not found"}
	ErrInvalidToken   = &Error{Code: "INVALID_TOKEN", Message: "No grant matches the presented token"}
	ErrDuplicateToken = &Error{Code: "DUPLICATE_TOKEN", Message: "Token already in use"}
	ErrDuplicateID    = &Error{Code: "DUPLICATE_GRANT_ID", Message: "Grant id already exists"}
)

// Error represents a grant error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
