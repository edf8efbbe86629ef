package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/reperto-cdss-server/internal/domain"
)

// SQLiteStore is the curated repertory in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) a SQLite repertory file.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, log: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rubric (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chapter TEXT NOT NULL,
		text TEXT NOT NULL,
		text_en TEXT,
		full_path TEXT NOT NULL UNIQUE,
		full_path_en TEXT,
		parent_id INTEGER REFERENCES rubric(id),
		depth INTEGER NOT NULL DEFAULT 0 CHECK (depth >= 0),
		source_id INTEGER NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_rubric_chapter ON rubric(chapter);

	CREATE TABLE IF NOT EXISTS remedy (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		short_name TEXT NOT NULL,
		long_name TEXT NOT NULL DEFAULT '',
		source_id INTEGER NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS rubric_remedy (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rubric_id INTEGER NOT NULL REFERENCES rubric(id),
		remedy_id INTEGER NOT NULL REFERENCES remedy(id),
		grade INTEGER NOT NULL CHECK (grade > 0),
		UNIQUE(rubric_id, remedy_id)
	);

	CREATE INDEX IF NOT EXISTS idx_rubric_remedy_rubric ON rubric_remedy(rubric_id);
	`

	_, err := db.Exec(schema)
	return err
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteStore) queryRubrics(ctx context.Context, op, query string, args ...interface{}) ([]domain.RubricNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	rubrics := make([]domain.RubricNode, 0)
	for rows.Next() {
		r, err := scanRubric(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scanning rubric: %w", op, err)
		}
		rubrics = append(rubrics, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating rubrics: %w", op, err)
	}
	return rubrics, nil
}

// MatchRubrics returns rubrics whose lower-cased full path contains any term,
// ordered by id. SQLite lower() folds ASCII only; search terms are ASCII.
func (s *SQLiteStore) MatchRubrics(ctx context.Context, terms []string, limit int) ([]domain.RubricNode, error) {
	if len(terms) == 0 || limit <= 0 {
		return []domain.RubricNode{}, nil
	}

	clauses := make([]string, len(terms))
	args := make([]interface{}, 0, len(terms)+1)
	for i, term := range terms {
		clauses[i] = `lower(full_path) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(term))
	}
	args = append(args, limit)

	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE ` +
		strings.Join(clauses, " OR ") + ` ORDER BY id LIMIT ?`
	return s.queryRubrics(ctx, "matching rubrics", query, args...)
}

// EdgesForRubrics returns graded edges of the selected rubrics ordered by edge id.
func (s *SQLiteStore) EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]domain.GradedEdge, error) {
	if len(rubricIDs) == 0 {
		return []domain.GradedEdge{}, nil
	}
	args := make([]interface{}, len(rubricIDs))
	for i, id := range rubricIDs {
		args[i] = id
	}

	query := `
		SELECT rr.rubric_id, rr.remedy_id, rr.grade, r.short_name, r.long_name
		FROM rubric_remedy rr
		JOIN remedy r ON r.id = rr.remedy_id
		WHERE rr.rubric_id IN (` + placeholders(len(rubricIDs)) + `)
		ORDER BY rr.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading rubric edges: %w", err)
	}
	defer rows.Close()

	edges := make([]domain.GradedEdge, 0)
	for rows.Next() {
		var e domain.GradedEdge
		if err := rows.Scan(&e.RubricID, &e.RemedyID, &e.Grade, &e.ShortName, &e.LongName); err != nil {
			return nil, fmt.Errorf("scanning rubric edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// RubricsByIDs returns the rubrics with the given ids, ordered by id.
func (s *SQLiteStore) RubricsByIDs(ctx context.Context, ids []int64) ([]domain.RubricNode, error) {
	if len(ids) == 0 {
		return []domain.RubricNode{}, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	return s.queryRubrics(ctx, "getting rubrics by id", query, args...)
}

// RubricsByPaths returns the rubrics with the given exact full paths, ordered by id.
func (s *SQLiteStore) RubricsByPaths(ctx context.Context, paths []string) ([]domain.RubricNode, error) {
	if len(paths) == 0 {
		return []domain.RubricNode{}, nil
	}
	args := make([]interface{}, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE full_path IN (` + placeholders(len(paths)) + `) ORDER BY id`
	return s.queryRubrics(ctx, "getting rubrics by path", query, args...)
}

// Chapters returns the distinct chapter names.
func (s *SQLiteStore) Chapters(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chapter FROM rubric ORDER BY chapter`)
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}
	defer rows.Close()

	chapters := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// RubricsByChapter returns a chapter's rubrics ordered by depth then full path.
func (s *SQLiteStore) RubricsByChapter(ctx context.Context, chapter string) ([]domain.RubricNode, error) {
	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE chapter = ? ORDER BY depth, full_path`
	return s.queryRubrics(ctx, "listing chapter rubrics", query, chapter)
}

// RubricIDBySourceID looks up a curated rubric by its source id.
func (s *SQLiteStore) RubricIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error) {
	return s.idBySourceID(ctx, `SELECT id FROM rubric WHERE source_id = ?`, sourceID)
}

// RemedyIDBySourceID looks up a curated remedy by its source id.
func (s *SQLiteStore) RemedyIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error) {
	return s.idBySourceID(ctx, `SELECT id FROM remedy WHERE source_id = ?`, sourceID)
}

func (s *SQLiteStore) idBySourceID(ctx context.Context, query string, sourceID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, sourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up source id %d: %w", sourceID, err)
	}
	return id, true, nil
}

// InsertRubric stores a rubric and returns its new id.
func (s *SQLiteStore) InsertRubric(ctx context.Context, rubric domain.RubricNode) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rubric (chapter, text, text_en, full_path, full_path_en, parent_id, depth, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rubric.Chapter,
		rubric.Text,
		nullString(rubric.TextEN),
		rubric.FullPath,
		nullString(rubric.FullPathEN),
		nullInt64(rubric.ParentID),
		rubric.Depth,
		rubric.SourceID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting rubric %q: %w", rubric.FullPath, err)
	}
	return result.LastInsertId()
}

// InsertRemedy stores a remedy and returns its new id.
func (s *SQLiteStore) InsertRemedy(ctx context.Context, remedy domain.RemedyNode) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO remedy (short_name, long_name, source_id) VALUES (?, ?, ?)`,
		remedy.ShortName, remedy.LongName, remedy.SourceID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting remedy %q: %w", remedy.ShortName, err)
	}
	return result.LastInsertId()
}

// EdgeExists reports whether the (rubric, remedy) pair is already linked.
func (s *SQLiteStore) EdgeExists(ctx context.Context, rubricID, remedyID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rubric_remedy WHERE rubric_id = ? AND remedy_id = ?`,
		rubricID, remedyID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking edge %d/%d: %w", rubricID, remedyID, err)
	}
	return n > 0, nil
}

// InsertEdge stores a rubric-remedy edge.
func (s *SQLiteStore) InsertEdge(ctx context.Context, edge domain.RubricRemedyEdge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rubric_remedy (rubric_id, remedy_id, grade) VALUES (?, ?, ?)`,
		edge.RubricID, edge.RemedyID, edge.Grade,
	)
	if err != nil {
		return fmt.Errorf("inserting edge %d/%d: %w", edge.RubricID, edge.RemedyID, err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
