package grants

import (
	"context"
	"sort"
	"sync"

	"github.com/savegress/recordvault/pkg/models"
)

// MemoryStore is an in-process grant store. The token index and the grant map
// are updated under one lock, so the token uniqueness check is atomic with
// insertion.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.AccessGrant
	byToken map[string]string // token -> grant id
	byOwner map[string][]string
}

// NewMemoryStore creates a new in-memory grant store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*models.AccessGrant),
		byToken: make(map[string]string),
		byOwner: make(map[string][]string),
	}
}

// Insert stores a new grant
func (s *MemoryStore) Insert(ctx context.Context, grant *models.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[grant.ID]; exists {
		return ErrDuplicateID
	}
	if _, exists := s.byToken[grant.Token]; exists {
		return ErrDuplicateToken
	}

	stored := grant.Clone()
	s.byID[grant.ID] = stored
	s.byToken[grant.Token] = grant.ID
	s.byOwner[grant.OwnerID] = append(s.byOwner[grant.OwnerID], grant.ID)
	return nil
}

// Get returns a grant by owner and id
func (s *MemoryStore) Get(ctx context.Context, ownerID, grantID string) (*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.byID[grantID]
	if !ok || grant.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return grant.Clone(), nil
}

// GetByToken resolves a grant through the token index
func (s *MemoryStore) GetByToken(ctx context.Context, token string) (*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return s.byID[id].Clone(), nil
}

// Revoke flips a grant inactive, idempotently
func (s *MemoryStore) Revoke(ctx context.Context, ownerID, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.byID[grantID]
	if !ok || grant.OwnerID != ownerID {
		return ErrNotFound
	}
	grant.Active = false
	return nil
}

// ListByOwner returns all grants for an owner, issued-at descending
func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[ownerID]
	results := make([]*models.AccessGrant, 0, len(ids))
	for _, id := range ids {
		results = append(results, s.byID[id].Clone())
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].IssuedAt.After(results[j].IssuedAt)
	})
	return results, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
