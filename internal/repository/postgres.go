package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
)

// PostgresStore is the curated repertory on PostgreSQL.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a store over an open pool. The schema is owned by
// the database migrations.
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: logger,
	}
}

func (s *PostgresStore) queryRubrics(ctx context.Context, op, query string, args ...interface{}) ([]domain.RubricNode, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"op":    op,
			"error": err,
		}).Error("Rubric query failed")
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

// MatchRubrics returns rubrics whose full path contains any term, ordered by id.
func (s *PostgresStore) MatchRubrics(ctx context.Context, terms []string, limit int) ([]domain.RubricNode, error) {
	if len(terms) == 0 || limit <= 0 {
		return []domain.RubricNode{}, nil
	}
	patterns := make([]string, len(terms))
	for i, term := range terms {
		patterns[i] = likePattern(term)
	}

	query := `
		SELECT ` + rubricColumns + `
		FROM rubric
		WHERE full_path ILIKE ANY($1)
		ORDER BY id
		LIMIT $2`
	return s.queryRubrics(ctx, "matching rubrics", query, patterns, limit)
}

// EdgesForRubrics returns graded edges of the selected rubrics ordered by edge id.
func (s *PostgresStore) EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]domain.GradedEdge, error) {
	if len(rubricIDs) == 0 {
		return []domain.GradedEdge{}, nil
	}

	query := `
		SELECT rr.rubric_id, rr.remedy_id, rr.grade, r.short_name, r.long_name
		FROM rubric_remedy rr
		JOIN remedy r ON r.id = rr.remedy_id
		WHERE rr.rubric_id = ANY($1)
		ORDER BY rr.id`

	rows, err := s.db.Query(ctx, query, rubricIDs)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"rubrics": len(rubricIDs),
			"error":   err,
		}).Error("Failed to load rubric edges")
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rubric edges: %w", err)
	}
	return edges, nil
}

// RubricsByIDs returns the rubrics with the given ids, ordered by id.
func (s *PostgresStore) RubricsByIDs(ctx context.Context, ids []int64) ([]domain.RubricNode, error) {
	if len(ids) == 0 {
		return []domain.RubricNode{}, nil
	}
	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE id = ANY($1) ORDER BY id`
	return s.queryRubrics(ctx, "getting rubrics by id", query, ids)
}

// RubricsByPaths returns the rubrics with the given exact full paths, ordered by id.
func (s *PostgresStore) RubricsByPaths(ctx context.Context, paths []string) ([]domain.RubricNode, error) {
	if len(paths) == 0 {
		return []domain.RubricNode{}, nil
	}
	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE full_path = ANY($1) ORDER BY id`
	return s.queryRubrics(ctx, "getting rubrics by path", query, paths)
}

// Chapters returns the distinct chapter names.
func (s *PostgresStore) Chapters(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT chapter FROM rubric ORDER BY chapter`)
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
func (s *PostgresStore) RubricsByChapter(ctx context.Context, chapter string) ([]domain.RubricNode, error) {
	query := `SELECT ` + rubricColumns + ` FROM rubric WHERE chapter = $1 ORDER BY depth, full_path`
	return s.queryRubrics(ctx, "listing chapter rubrics", query, chapter)
}

// RubricIDBySourceID looks up a curated rubric by its source id.
func (s *PostgresStore) RubricIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error) {
	return s.idBySourceID(ctx, `SELECT id FROM rubric WHERE source_id = $1`, sourceID)
}

// RemedyIDBySourceID looks up a curated remedy by its source id.
func (s *PostgresStore) RemedyIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error) {
	return s.idBySourceID(ctx, `SELECT id FROM remedy WHERE source_id = $1`, sourceID)
}

func (s *PostgresStore) idBySourceID(ctx context.Context, query string, sourceID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, query, sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("looking up source id %d: %w", sourceID, err)
	}
	return id, true, nil
}

// InsertRubric stores a rubric and returns its new id.
func (s *PostgresStore) InsertRubric(ctx context.Context, rubric domain.RubricNode) (int64, error) {
	query := `
		INSERT INTO rubric (chapter, text, text_en, full_path, full_path_en, parent_id, depth, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.db.QueryRow(ctx, query,
		rubric.Chapter,
		rubric.Text,
		nullString(rubric.TextEN),
		rubric.FullPath,
		nullString(rubric.FullPathEN),
		nullInt64(rubric.ParentID),
		rubric.Depth,
		rubric.SourceID,
	).Scan(&id)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"full_path": rubric.FullPath,
			"source_id": rubric.SourceID,
			"error":     err,
		}).Error("Failed to insert rubric")
		return 0, fmt.Errorf("inserting rubric %q: %w", rubric.FullPath, err)
	}
	return id, nil
}

// InsertRemedy stores a remedy and returns its new id.
func (s *PostgresStore) InsertRemedy(ctx context.Context, remedy domain.RemedyNode) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO remedy (short_name, long_name, source_id) VALUES ($1, $2, $3) RETURNING id`,
		remedy.ShortName, remedy.LongName, remedy.SourceID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting remedy %q: %w", remedy.ShortName, err)
	}
	return id, nil
}

// EdgeExists reports whether the (rubric, remedy) pair is already linked.
func (s *PostgresStore) EdgeExists(ctx context.Context, rubricID, remedyID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rubric_remedy WHERE rubric_id = $1 AND remedy_id = $2)`,
		rubricID, remedyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking edge %d/%d: %w", rubricID, remedyID, err)
	}
	return exists, nil
}

// InsertEdge stores a rubric-remedy edge.
func (s *PostgresStore) InsertEdge(ctx context.Context, edge domain.RubricRemedyEdge) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO rubric_remedy (rubric_id, remedy_id, grade) VALUES ($1, $2, $3)`,
		edge.RubricID, edge.RemedyID, edge.Grade,
	)
	if err != nil {
		return fmt.Errorf("inserting edge %d/%d: %w", edge.RubricID, edge.RemedyID, err)
	}
	return nil
}
