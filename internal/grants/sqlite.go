package grants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/savegress/recordvault/pkg/models"
)

// SQLiteStore is an embedded durable grant store. The unique index on the
// token column doubles as the O(1) resolution path and the atomic collision
// check.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the grant database under dataPath.
func NewSQLiteStore(dataPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "grants.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		issued_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_grants_owner ON grants(owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Insert stores a new grant
func (s *SQLiteStore) Insert(ctx context.Context, grant *models.AccessGrant) error {
	scope, err := json.Marshal(grant.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grants (id, token, owner_id, scope, issued_at, expires_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, grant.ID, grant.Token, grant.OwnerID, string(scope),
		grant.IssuedAt.UnixNano(), grant.ExpiresAt.UnixNano(), boolToInt(grant.Active))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: grants.token") {
			return ErrDuplicateToken
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: grants.id") {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

// Get returns a grant by owner and id
func (s *SQLiteStore) Get(ctx context.Context, ownerID, grantID string) (*models.AccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, owner_id, scope, issued_at, expires_at, active
		FROM grants WHERE id = ? AND owner_id = ?
	`, grantID, ownerID)

	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return grant, err
}

// GetByToken resolves a grant through the token index
func (s *SQLiteStore) GetByToken(ctx context.Context, token string) (*models.AccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, owner_id, scope, issued_at, expires_at, active
		FROM grants WHERE token = ?
	`, token)

	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	return grant, err
}

// Revoke flips a grant inactive, idempotently
func (s *SQLiteStore) Revoke(ctx context.Context, ownerID, grantID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE grants SET active = 0 WHERE id = ? AND owner_id = ?
	`, grantID, ownerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns all grants for an owner
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.AccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, owner_id, scope, issued_at, expires_at, active
		FROM grants WHERE owner_id = ? ORDER BY issued_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*models.AccessGrant{}
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, grant)
	}
	return results, rows.Err()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row rowScanner) (*models.AccessGrant, error) {
	var (
		grant     models.AccessGrant
		scope     string
		issuedAt  int64
		expiresAt int64
		active    int
	)
	err := row.Scan(&grant.ID, &grant.Token, &grant.OwnerID, &scope, &issuedAt, &expiresAt, &active)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scope), &grant.Scope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope: %w", err)
	}
	grant.IssuedAt = time.Unix(0, issuedAt).UTC()
	grant.ExpiresAt = time.Unix(0, expiresAt).UTC()
	grant.Active = active != 0
	return &grant, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
