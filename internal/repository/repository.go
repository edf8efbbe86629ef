// Package repository provides the curated repertory stores: PostgreSQL,
// SQLite, in-memory, and a caching decorator.
package repository

import (
	"database/sql"
	"strings"

	"github.com/reperto-cdss-server/internal/domain"
)

// Store is what every curated repertory backend provides.
type Store interface {
	domain.RubricRepository
	domain.GoldenWriter
}

const rubricColumns = "id, chapter, text, text_en, full_path, full_path_en, parent_id, depth, source_id"

// scanner is an interface for sql.Row, sql.Rows, pgx.Row and pgx.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRubric scans rubricColumns into a RubricNode.
func scanRubric(s scanner) (domain.RubricNode, error) {
	var r domain.RubricNode
	var textEN, fullPathEN sql.NullString
	var parentID sql.NullInt64

	err := s.Scan(
		&r.ID, &r.Chapter, &r.Text, &textEN, &r.FullPath, &fullPathEN,
		&parentID, &r.Depth, &r.SourceID,
	)
	if err != nil {
		return r, err
	}

	r.TextEN = textEN.String
	r.FullPathEN = fullPathEN.String
	if parentID.Valid {
		id := parentID.Int64
		r.ParentID = &id
	}
	return r, nil
}

// likePattern wraps term for a substring LIKE match with backslash escapes.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
