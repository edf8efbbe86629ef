package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/reperto-cdss-server/internal/domain"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clinical_phrase_map (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	doctor_text TEXT NOT NULL,
	normalized_tokens TEXT NOT NULL,
	rubric TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clinical_phrase_map_created_at ON clinical_phrase_map(created_at);
`

// SQLiteStore keeps phrase mappings in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the database file and its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Append inserts the records in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, records []domain.PhraseMappingRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clinical_phrase_map (doctor_text, normalized_tokens, rubric, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.DoctorText, r.NormalizedTokens, r.RubricPath, r.Confidence, r.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert: %w", err)
		}
	}
	return tx.Commit()
}

// List returns records newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]domain.PhraseMappingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doctor_text, normalized_tokens, rubric, confidence, created_at
		FROM clinical_phrase_map
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PhraseMappingRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clinical_phrase_map").Scan(&n)
	return n, err
}

// ExportJSON writes every record to w.
func (s *SQLiteStore) ExportJSON(ctx context.Context, w io.Writer) error {
	return exportJSON(ctx, s, w)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
