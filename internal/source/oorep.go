// Package source reads the OOREP repertory the golden builder curates from.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
)

// OOREPGraph is a read-only view of an OOREP database. Parent references live
// in rubric.mother; zero and NULL both mean a chapter root.
type OOREPGraph struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewOOREPGraph wraps an open pool to the source database.
func NewOOREPGraph(db *pgxpool.Pool, logger *logrus.Logger) *OOREPGraph {
	return &OOREPGraph{db: db, log: logger}
}

func (g *OOREPGraph) queryRubric(ctx context.Context, query string, arg interface{}) (*domain.SourceRubric, error) {
	var (
		r      domain.SourceRubric
		mother *int64
	)
	err := g.db.QueryRow(ctx, query, arg).Scan(&r.ID, &r.FullPath, &mother)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if mother != nil && *mother != 0 {
		r.ParentID = mother
	}
	return &r, nil
}

// RubricByPath returns the rubric with exactly this full path. When the
// source holds duplicates the lowest id wins.
func (g *OOREPGraph) RubricByPath(ctx context.Context, fullPath string) (*domain.SourceRubric, error) {
	r, err := g.queryRubric(ctx, `
		SELECT id, fullpath, mother
		FROM rubric
		WHERE fullpath = $1
		ORDER BY id
		LIMIT 1`, fullPath)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("source rubric by path: %w", err)
	}
	return r, err
}

// RubricByID returns one rubric with its parent reference.
func (g *OOREPGraph) RubricByID(ctx context.Context, id int64) (*domain.SourceRubric, error) {
	r, err := g.queryRubric(ctx, `
		SELECT id, fullpath, mother
		FROM rubric
		WHERE id = $1
		ORDER BY id
		LIMIT 1`, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("source rubric %d: %w", id, err)
	}
	return r, err
}

// RemedyIDsForRubrics returns the distinct remedies linked to any rubric.
func (g *OOREPGraph) RemedyIDsForRubrics(ctx context.Context, rubricIDs []int64) ([]int64, error) {
	if len(rubricIDs) == 0 {
		return []int64{}, nil
	}
	rows, err := g.db.Query(ctx, `
		SELECT DISTINCT remedyid
		FROM rubricremedy
		WHERE rubricid = ANY($1)
		ORDER BY remedyid`, rubricIDs)
	if err != nil {
		return nil, fmt.Errorf("source remedy ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("source remedy ids: %w", err)
	}
	return ids, nil
}

// RemediesByIDs returns display names for the given remedy ids.
func (g *OOREPGraph) RemediesByIDs(ctx context.Context, ids []int64) ([]domain.SourceRemedy, error) {
	if len(ids) == 0 {
		return []domain.SourceRemedy{}, nil
	}
	rows, err := g.db.Query(ctx, `
		SELECT id, nameabbrev, COALESCE(namelong, '')
		FROM remedy
		WHERE id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("source remedies: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SourceRemedy, 0, len(ids))
	for rows.Next() {
		var r domain.SourceRemedy
		if err := rows.Scan(&r.ID, &r.ShortName, &r.LongName); err != nil {
			return nil, fmt.Errorf("scanning source remedy: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EdgesForRubrics returns weighted rubric-remedy links in a stable order.
func (g *OOREPGraph) EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]domain.SourceEdge, error) {
	if len(rubricIDs) == 0 {
		return []domain.SourceEdge{}, nil
	}
	rows, err := g.db.Query(ctx, `
		SELECT rubricid, remedyid, weight
		FROM rubricremedy
		WHERE rubricid = ANY($1)
		ORDER BY rubricid, remedyid, weight DESC`, rubricIDs)
	if err != nil {
		g.log.WithFields(logrus.Fields{
			"rubrics": len(rubricIDs),
			"error":   err,
		}).Error("Source edge query failed")
		return nil, fmt.Errorf("source edges: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SourceEdge, 0)
	for rows.Next() {
		var e domain.SourceEdge
		if err := rows.Scan(&e.RubricID, &e.RemedyID, &e.Weight); err != nil {
			return nil, fmt.Errorf("scanning source edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
