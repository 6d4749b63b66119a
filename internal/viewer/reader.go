package viewer

import (
	"context"
	"time"

	"github.com/savegress/recordvault/internal/grants"
	"github.com/savegress/recordvault/internal/reports"
	"github.com/savegress/recordvault/pkg/models"
)

// ErrGrantExpiredOrRevoked is the single opaque failure for both a revoked
// and a naturally expired grant. Viewers never learn which, so the error is
// not an oracle for revocation timing.
var ErrGrantExpiredOrRevoked = &Error{Code: "GRANT_EXPIRED_OR_REVOKED", Message: "Grant is no longer valid"}

// Error represents a scoped read error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// DeniedError attributes a denial to the grant it hit, for the owner's audit
// trail. It matches ErrGrantExpiredOrRevoked under errors.Is and shares its
// message, so nothing viewer-facing distinguishes the two.
type DeniedError struct {
	OwnerID string
	GrantID string
}

func (e *DeniedError) Error() string {
	return ErrGrantExpiredOrRevoked.Message
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrGrantExpiredOrRevoked
}

// Reader is the single authorization boundary a viewer's token must cross.
// It performs no mutation.
type Reader struct {
	grants  *grants.Registry
	reports reports.Store
	now     func() time.Time
}

// NewReader creates a new scoped reader
func NewReader(registry *grants.Registry, reportStore reports.Store) *Reader {
	return &Reader{
		grants:  registry,
		reports: reportStore,
		now:     time.Now,
	}
}

// WithClock overrides the reader clock, for tests.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// ReadTimeline resolves a token to exactly the reports its grant authorizes,
// in timeline order. grants.ErrInvalidToken is returned for unknown tokens;
// revoked or expired grants fail with a *DeniedError matching
// ErrGrantExpiredOrRevoked.
func (r *Reader) ReadTimeline(ctx context.Context, token string) ([]*models.Report, error) {
	grant, err := r.grants.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if !grant.Valid(r.now()) {
		return nil, &DeniedError{OwnerID: grant.OwnerID, GrantID: grant.ID}
	}

	results, err := r.reports.GetByIDs(ctx, grant.OwnerID, grant.Scope)
	if err != nil {
		return nil, err
	}
	models.SortTimeline(results)
	return results, nil
}
