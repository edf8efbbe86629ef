// Package dataset captures phrase-to-rubric mappings produced at inference
// time. Rows are append-only and are exported for offline curation.
package dataset

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/reperto-cdss-server/internal/domain"
)

// ExportVersion is the version tag of the JSON export format.
const ExportVersion = "1.0"

// maxExportLimit bounds a single export.
const maxExportLimit = 1000000

// Store is the append-only sink for phrase mappings.
type Store interface {
	// Append writes all records in one transaction.
	Append(ctx context.Context, records []domain.PhraseMappingRecord) error

	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]domain.PhraseMappingRecord, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes every record to w.
	ExportJSON(ctx context.Context, w io.Writer) error

	// Close releases the underlying connection.
	Close() error
}

// Export is the JSON export document.
type Export struct {
	Version    string                       `json:"version"`
	ExportedAt time.Time                    `json:"exported_at"`
	Count      int                          `json:"count"`
	Records    []domain.PhraseMappingRecord `json:"records"`
}

func exportJSON(ctx context.Context, s Store, w io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Records:    all,
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (domain.PhraseMappingRecord, error) {
	var r domain.PhraseMappingRecord
	err := s.Scan(&r.ID, &r.DoctorText, &r.NormalizedTokens, &r.RubricPath, &r.Confidence, &r.CreatedAt)
	return r, err
}
