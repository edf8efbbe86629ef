package domain

import (
	"context"
)

// RubricSearcher returns candidate rubrics for a token set.
type RubricSearcher interface {
	SearchRubrics(ctx context.Context, tokens []string, limit int) ([]RubricNode, error)
}

// RubricMatcher returns up to limit rubrics whose full path contains any of
// the terms, case-insensitively, in a stable store order.
type RubricMatcher interface {
	MatchRubrics(ctx context.Context, terms []string, limit int) ([]RubricNode, error)
}

// EdgeReader returns graded edges for a rubric selection in retrieval order.
type EdgeReader interface {
	EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]GradedEdge, error)
}

// RubricReader exposes lookups over the curated rubric tree.
type RubricReader interface {
	RubricsByIDs(ctx context.Context, ids []int64) ([]RubricNode, error)
	RubricsByPaths(ctx context.Context, paths []string) ([]RubricNode, error)
	Chapters(ctx context.Context) ([]string, error)
	RubricsByChapter(ctx context.Context, chapter string) ([]RubricNode, error)
}

// RubricRepository is the read side used by the runtime pipeline.
type RubricRepository interface {
	RubricMatcher
	EdgeReader
	RubricReader
}

// GoldenWriter is the write side used by the golden builder.
type GoldenWriter interface {
	RubricIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error)
	InsertRubric(ctx context.Context, rubric RubricNode) (int64, error)
	RemedyIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error)
	InsertRemedy(ctx context.Context, remedy RemedyNode) (int64, error)
	EdgeExists(ctx context.Context, rubricID, remedyID int64) (bool, error)
	InsertEdge(ctx context.Context, edge RubricRemedyEdge) error
}

// SourceGraph is the read-only source repertory the builder curates from.
type SourceGraph interface {
	RubricByPath(ctx context.Context, fullPath string) (*SourceRubric, error)
	RubricByID(ctx context.Context, id int64) (*SourceRubric, error)
	RemedyIDsForRubrics(ctx context.Context, rubricIDs []int64) ([]int64, error)
	RemediesByIDs(ctx context.Context, ids []int64) ([]SourceRemedy, error)
	EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]SourceEdge, error)
}

// PhraseRecorder captures phrase mappings without blocking the caller.
type PhraseRecorder interface {
	Record(records ...PhraseMappingRecord)
}

// InsightGenerator produces narrative text for an analysis.
type InsightGenerator interface {
	Generate(ctx context.Context, req InsightRequest) InsightResult
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetSourceConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetPipelineConfig() *PipelineConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
