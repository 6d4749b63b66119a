package reports

import (
	"context"
	"sync"

	"github.com/savegress/recordvault/pkg/models"
)

// MemoryStore is an in-process report store, used in tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.Report
	byOwner map[string][]string
}

// NewMemoryStore creates a new in-memory report store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*models.Report),
		byOwner: make(map[string][]string),
	}
}

// Put inserts a report
func (s *MemoryStore) Put(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[report.ID]; exists {
		return ErrConflict
	}

	stored := cloneReport(report)
	s.byID[report.ID] = stored
	s.byOwner[report.OwnerID] = append(s.byOwner[report.OwnerID], report.ID)
	return nil
}

// ListByOwner returns all reports for an owner in timeline order
func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[ownerID]
	results := make([]*models.Report, 0, len(ids))
	for _, id := range ids {
		results = append(results, cloneReport(s.byID[id]))
	}
	models.SortTimeline(results)
	return results, nil
}

// GetByIDs returns the owned-and-existing subset of ids in timeline order
func (s *MemoryStore) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.Report, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		report, ok := s.byID[id]
		if !ok || report.OwnerID != ownerID {
			continue
		}
		results = append(results, cloneReport(report))
	}
	models.SortTimeline(results)
	return results, nil
}

// Count returns the number of stored reports
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

func cloneReport(r *models.Report) *models.Report {
	c := *r
	c.Values = make(map[string]models.Measurement, len(r.Values))
	for k, v := range r.Values {
		c.Values[k] = v
	}
	c.Findings = append([]string{}, r.Findings...)
	c.Medications = append([]string{}, r.Medications...)
	c.Diagnoses = append([]string{}, r.Diagnoses...)
	return &c
}
