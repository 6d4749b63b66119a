package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/savegress/recordvault/pkg/models"
)

// SQLiteStore is an embedded durable report store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the report database under dataPath.
func NewSQLiteStore(dataPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "reports.db")
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
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		ingested_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_owner ON reports(owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Put inserts a report
func (s *SQLiteStore) Put(ctx context.Context, report *models.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, owner_id, captured_at, ingested_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`, report.ID, report.OwnerID, report.CapturedAt, report.IngestedAt.UnixNano(), string(payload))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: reports.id") {
			return ErrConflict
		}
		return err
	}
	return nil
}

// ListByOwner returns all reports for an owner in timeline order
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM reports WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	models.SortTimeline(results)
	return results, nil
}

// GetByIDs returns the owned-and-existing subset of ids in timeline order
func (s *SQLiteStore) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]*models.Report, error) {
	if len(ids) == 0 {
		return []*models.Report{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT payload FROM reports WHERE owner_id = ? AND id IN (%s)`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	models.SortTimeline(results)
	return results, nil
}

// Count returns the number of stored reports
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&count)
	return count, err
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanReports(rows *sql.Rows) ([]*models.Report, error) {
	results := []*models.Report{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report models.Report
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, err
		}
		results = append(results, &report)
	}
	return results, rows.Err()
}
