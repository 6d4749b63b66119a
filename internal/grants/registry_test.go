package grants

import (
	"context"
	"testing"
	"time"

	"github.com/savegress/recordvault/internal/config"
	"github.com/savegress/recordvault/internal/reports"
	"github.com/savegress/recordvault/pkg/models"
)

func testConfig() *config.GrantsConfig {
	return &config.GrantsConfig{
		DefaultTTL: 24 * time.Hour,
		MaxTTL:     30 * 24 * time.Hour,
	}
}

func seedReports(t *testing.T, store reports.Store, ownerID string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for i, id := range ids {
		err := store.Put(ctx, &models.Report{
			ID:          id,
			OwnerID:     ownerID,
			CapturedAt:  "2024-01-10",
			IngestedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
			Values:      map[string]models.Measurement{},
			Findings:    []string{},
			Medications: []string{},
			Diagnoses:   []string{},
		})
		if err != nil {
			t.Fatalf("seeding report %s failed: %v", id, err)
		}
	}
}

func newTestRegistry(t *testing.T) (*Registry, reports.Store) {
	t.Helper()
	reportStore := reports.NewMemoryStore()
	registry := NewRegistry(testConfig(), NewMemoryStore(), reportStore)
	return registry, reportStore
}

func TestRegistry_Issue_AndResolve(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1", "r2")

	grant, err := registry.Issue(ctx, "patient-1", []string{"r1", "r2"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if grant.ID == "" {
		t.Error("grant id should be assigned")
	}
	if grant.Token == "" || grant.Token == grant.ID {
		t.Error("token must be set and distinct from id")
	}
	if len(grant.Scope) != 2 {
		t.Errorf("scope = %v", grant.Scope)
	}
	if !grant.Active {
		t.Error("new grants must be active")
	}
	if want := grant.IssuedAt.Add(time.Hour); !grant.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", grant.ExpiresAt, want)
	}

	resolved, err := registry.Resolve(ctx, grant.Token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ID != grant.ID || resolved.OwnerID != "patient-1" {
		t.Errorf("resolved wrong grant: %+v", resolved)
	}
}

func TestRegistry_Issue_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	grant, err := registry.Issue(ctx, "patient-1", []string{"r1"}, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if got := grant.ExpiresAt.Sub(grant.IssuedAt); got != 24*time.Hour {
		t.Errorf("default ttl = %v, want 24h", got)
	}
}

func TestRegistry_Issue_TTLCapped(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	grant, err := registry.Issue(ctx, "patient-1", []string{"r1"}, 365*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if got := grant.ExpiresAt.Sub(grant.IssuedAt); got != 30*24*time.Hour {
		t.Errorf("ttl = %v, want capped at 720h", got)
	}
}

func TestRegistry_Issue_EmptyScope(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, err := registry.Issue(ctx, "patient-1", nil, time.Hour)
	if err != ErrInvalidScope {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
}

func TestRegistry_Issue_Forbidden_NoPartialGrant(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "mine")
	seedReports(t, reportStore, "patient-2", "theirs")

	_, err := registry.Issue(ctx, "patient-1", []string{"mine", "theirs"}, time.Hour)
	if err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// No partial grant may exist.
	active, err := registry.ListActive(ctx, "patient-1")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no grants after forbidden issuance, got %d", len(active))
	}
}

func TestRegistry_Issue_UnknownReport(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	_, err := registry.Issue(ctx, "patient-1", []string{"r1", "ghost"}, time.Hour)
	if err != ErrForbidden {
		t.Errorf("expected ErrForbidden for unknown report, got %v", err)
	}
}

func TestRegistry_Issue_DedupesScope(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	grant, err := registry.Issue(ctx, "patient-1", []string{"r1", "r1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(grant.Scope) != 1 {
		t.Errorf("scope = %v, want deduplicated", grant.Scope)
	}
}

func TestRegistry_Issue_TokensUnique(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		grant, err := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)
		if err != nil {
			t.Fatalf("Issue %d failed: %v", i, err)
		}
		if seen[grant.Token] {
			t.Fatalf("token reused at iteration %d", i)
		}
		seen[grant.Token] = true
	}
}

func TestRegistry_Revoke_Idempotent(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	grant, _ := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)

	if err := registry.Revoke(ctx, "patient-1", grant.ID); err != nil {
		t.Fatalf("first Revoke failed: %v", err)
	}
	if err := registry.Revoke(ctx, "patient-1", grant.ID); err != nil {
		t.Fatalf("second Revoke must succeed silently: %v", err)
	}

	resolved, err := registry.Resolve(ctx, grant.Token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Active {
		t.Error("grant should be inactive after revocation")
	}
}

func TestRegistry_Revoke_NotFound(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	if err := registry.Revoke(ctx, "patient-1", "ghost"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_Revoke_WrongOwner(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1")

	grant, _ := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)

	if err := registry.Revoke(ctx, "patient-2", grant.ID); err != ErrNotFound {
		t.Errorf("another owner must not revoke the grant, got %v", err)
	}

	resolved, _ := registry.Resolve(ctx, grant.Token)
	if !resolved.Active {
		t.Error("grant should still be active")
	}
}

func TestRegistry_Resolve_InvalidToken(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	if _, err := registry.Resolve(ctx, "no-such-token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRegistry_ListActive(t *testing.T) {
	ctx := context.Background()
	reportStore := reports.NewMemoryStore()
	registry := NewRegistry(testConfig(), NewMemoryStore(), reportStore)
	seedReports(t, reportStore, "patient-1", "r1")

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	registry.WithClock(func() time.Time { return clock })

	first, _ := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)
	clock = clock.Add(time.Minute)
	second, _ := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)
	clock = clock.Add(time.Minute)
	revoked, _ := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)

	registry.Revoke(ctx, "patient-1", revoked.ID)

	active, err := registry.ListActive(ctx, "patient-1")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active grants, got %d", len(active))
	}
	if active[0].ID != second.ID || active[1].ID != first.ID {
		t.Errorf("expected issued-at descending order, got [%s %s]", active[0].ID, active[1].ID)
	}
}

func TestRegistry_ListActive_IncludesExpired(t *testing.T) {
	ctx := context.Background()
	reportStore := reports.NewMemoryStore()
	registry := NewRegistry(testConfig(), NewMemoryStore(), reportStore)
	seedReports(t, reportStore, "patient-1", "r1")

	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	registry.WithClock(func() time.Time { return past })

	grant, err := registry.Issue(ctx, "patient-1", []string{"r1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Expired long ago, but never revoked: the owner still sees it.
	active, _ := registry.ListActive(ctx, "patient-1")
	if len(active) != 1 || active[0].ID != grant.ID {
		t.Errorf("expired-but-active grant must appear in listing, got %v", active)
	}
}

func TestRegistry_Issue_ScopeImmutable(t *testing.T) {
	ctx := context.Background()
	registry, reportStore := newTestRegistry(t)
	seedReports(t, reportStore, "patient-1", "r1", "r2")

	ids := []string{"r1", "r2"}
	grant, _ := registry.Issue(ctx, "patient-1", ids, time.Hour)

	// Mutating either the request slice or the returned grant must not change
	// the stored scope.
	ids[0] = "tampered"
	grant.Scope[1] = "tampered"

	resolved, _ := registry.Resolve(ctx, grant.Token)
	if resolved.Scope[0] != "r1" || resolved.Scope[1] != "r2" {
		t.Errorf("stored scope changed: %v", resolved.Scope)
	}
}
