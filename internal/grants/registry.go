package grants

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/recordvault/internal/config"
	"github.com/savegress/recordvault/internal/reports"
	"github.com/savegress/recordvault/pkg/models"
)

// tokenBytes gives 256 bits of entropy, well past the unguessability floor.
const tokenBytes = 32

// Registry owns the access grant lifecycle. It is the sole point where the
// "who may see what" invariant is enforced: every id in a grant's scope must
// belong to the issuing owner at issuance time.
type Registry struct {
	config  *config.GrantsConfig
	store   Store
	reports reports.Store
	now     func() time.Time
}

// NewRegistry creates a new grant registry
func NewRegistry(cfg *config.GrantsConfig, store Store, reportStore reports.Store) *Registry {
	return &Registry{
		config:  cfg,
		store:   store,
		reports: reportStore,
		now:     time.Now,
	}
}

// WithClock overrides the registry clock, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Issue creates a grant scoped to the given report ids. The scope is all or
// nothing: if any id does not exist or belongs to another owner, no grant is
// issued. A zero ttl falls back to the configured default; ttl is capped at
// the configured maximum.
func (r *Registry) Issue(ctx context.Context, ownerID string, reportIDs []string, ttl time.Duration) (*models.AccessGrant, error) {
	if len(reportIDs) == 0 {
		return nil, ErrInvalidScope
	}

	requested := dedupe(reportIDs)

	owned, err := r.reports.GetByIDs(ctx, ownerID, requested)
	if err != nil {
		return nil, fmt.Errorf("scope validation failed: %w", err)
	}
	if len(owned) != len(requested) {
		return nil, ErrForbidden
	}

	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if r.config.MaxTTL > 0 && ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	now := r.now().UTC()
	grant := &models.AccessGrant{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Scope:     requested,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Active:    true,
	}

	// Token collision is vanishingly unlikely at 256 bits, but insertion is
	// atomic with the uniqueness check, so regenerate and retry if it happens.
	for {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("token generation failed: %w", err)
		}
		grant.Token = token

		err = r.store.Insert(ctx, grant)
		if err == ErrDuplicateToken {
			continue
		}
		if err != nil {
			return nil, err
		}
		return grant.Clone(), nil
	}
}

// Revoke flips a grant inactive. Revoking an already revoked grant succeeds
// silently; revocation is never undone.
func (r *Registry) Revoke(ctx context.Context, ownerID, grantID string) error {
	return r.store.Revoke(ctx, ownerID, grantID)
}

// Resolve looks up a grant by bearer token. Temporal validity is the
// caller's check; Resolve only answers "which grant is this".
func (r *Registry) Resolve(ctx context.Context, token string) (*models.AccessGrant, error) {
	return r.store.GetByToken(ctx, token)
}

// ListActive returns the owner's active grants, issued-at descending.
// Expired-but-unrevoked grants are included so the owner can see and revoke
// them; expiry filtering belongs to the read path.
func (r *Registry) ListActive(ctx context.Context, ownerID string) ([]*models.AccessGrant, error) {
	all, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	results := make([]*models.AccessGrant, 0, len(all))
	for _, g := range all {
		if g.Active {
			results = append(results, g)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].IssuedAt.After(results[j].IssuedAt)
	})
	return results, nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
