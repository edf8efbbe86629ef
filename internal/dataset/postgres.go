package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/reperto-cdss-server/internal/domain"
)

// PostgresStore appends phrase mappings to the clinical_phrase_map table,
// which is created by the database migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection and verifies it.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a small dedicated pool for dataset writes.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Append inserts the records in a single transaction.
func (s *PostgresStore) Append(ctx context.Context, records []domain.PhraseMappingRecord) error {
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
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.DoctorText, r.NormalizedTokens, r.RubricPath, r.Confidence, r.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// List returns records newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]domain.PhraseMappingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doctor_text, normalized_tokens, rubric, confidence, created_at
		FROM clinical_phrase_map
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clinical_phrase_map").Scan(&n)
	return n, err
}

// ExportJSON writes every record to w.
func (s *PostgresStore) ExportJSON(ctx context.Context, w io.Writer) error {
	return exportJSON(ctx, s, w)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
