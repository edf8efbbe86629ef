package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
)

const maxTextLength = 10000

// AnalyzeCaseInput is the input of analyze_case.
type AnalyzeCaseInput struct {
	Text string `json:"text" jsonschema:"free-text case description in English or transliterated Hindi"`
}

// MapRubricsInput is the input of map_rubrics.
type MapRubricsInput struct {
	Text  string `json:"text" jsonschema:"free-text case description"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of candidates to return"`
}

// MapRubricsOutput lists ranked candidate rubrics.
type MapRubricsOutput struct {
	Tokens     []string                 `json:"normalized_tokens"`
	Candidates []domain.CandidateRubric `json:"candidates"`
}

// ScoreRubricsInput is the input of score_rubrics.
type ScoreRubricsInput struct {
	Rubrics []string `json:"rubrics" jsonschema:"exact rubric full paths confirmed by the practitioner"`
}

// ScoreRubricsOutput lists explained remedies.
type ScoreRubricsOutput struct {
	Remedies []domain.RemedyExplanation `json:"remedies"`
}

// ListChaptersInput is the empty input of list_chapters.
type ListChaptersInput struct{}

// ListChaptersOutput lists chapter names.
type ListChaptersOutput struct {
	Chapters []string `json:"chapters"`
}

// ChapterRubricsInput is the input of list_chapter_rubrics.
type ChapterRubricsInput struct {
	Chapter string `json:"chapter" jsonschema:"chapter name as returned by list_chapters"`
}

// ChapterRubricsOutput lists the rubrics of one chapter.
type ChapterRubricsOutput struct {
	Chapter string              `json:"chapter"`
	Rubrics []domain.RubricNode `json:"rubrics"`
}

// DatasetStatsInput is the empty input of dataset_stats.
type DatasetStatsInput struct{}

// CapturedPhrase is one captured mapping as shown to the client.
type CapturedPhrase struct {
	DoctorText string  `json:"doctor_text"`
	Rubric     string  `json:"rubric"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
}

// DatasetStatsOutput reports captured phrase mappings.
type DatasetStatsOutput struct {
	Count  int64            `json:"count"`
	Recent []CapturedPhrase `json:"recent"`
}

// ExportDatasetInput is the empty input of export_dataset.
type ExportDatasetInput struct{}

// ExportDatasetOutput reports where the export was written.
type ExportDatasetOutput struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_case",
		Description: "Map a free-text case to repertory rubrics, rank remedies by cumulative grade and explain each ranking.",
	}, s.analyzeCase)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "map_rubrics",
		Description: "Normalize case text and return candidate rubrics ranked by confidence, without scoring remedies.",
	}, s.mapRubrics)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "score_rubrics",
		Description: "Score remedies for a confirmed list of rubric full paths and explain each score.",
	}, s.scoreRubrics)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_chapters",
		Description: "List the chapters of the curated repertory.",
	}, s.listChapters)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_chapter_rubrics",
		Description: "List the rubrics of one chapter in tree order.",
	}, s.chapterRubrics)
	s.tools = append(s.tools, "analyze_case", "map_rubrics", "score_rubrics", "list_chapters", "list_chapter_rubrics")

	if s.deps.Dataset == nil {
		return
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "dataset_stats",
		Description: "Report how many phrase mappings were captured and show the most recent ones.",
	}, s.datasetStats)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_dataset",
		Description: "Export every captured phrase mapping to a JSON file in the data directory.",
	}, s.exportDataset)
	s.tools = append(s.tools, "dataset_stats", "export_dataset")
}

func validateText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.NewValidationError("text", "must not be empty", nil)
	}
	if len(text) > maxTextLength {
		return domain.NewValidationError("text", fmt.Sprintf("must be at most %d characters", maxTextLength), len(text))
	}
	return nil
}

func (s *Server) analyzeCase(ctx context.Context, req *mcp.CallToolRequest, in AnalyzeCaseInput) (*mcp.CallToolResult, domain.CaseAnalysis, error) {
	if err := validateText(in.Text); err != nil {
		return nil, domain.CaseAnalysis{}, err
	}
	analysis, err := s.deps.Analyzer.Analyze(ctx, in.Text)
	if err != nil {
		s.logger.WithError(err).WithField("tool", "analyze_case").Error("Tool failed")
		return nil, domain.CaseAnalysis{}, fmt.Errorf("case analysis failed: %w", err)
	}
	return nil, *analysis, nil
}

func (s *Server) mapRubrics(ctx context.Context, req *mcp.CallToolRequest, in MapRubricsInput) (*mcp.CallToolResult, MapRubricsOutput, error) {
	if err := validateText(in.Text); err != nil {
		return nil, MapRubricsOutput{}, err
	}
	mapping, err := s.deps.Analyzer.Map(ctx, in.Text)
	if err != nil {
		return nil, MapRubricsOutput{}, fmt.Errorf("rubric mapping failed: %w", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = s.deps.Analyzer.Options().TopRubrics
	}
	return nil, MapRubricsOutput{
		Tokens:     mapping.Tokens.Strings(),
		Candidates: mapping.Top(limit),
	}, nil
}

func (s *Server) scoreRubrics(ctx context.Context, req *mcp.CallToolRequest, in ScoreRubricsInput) (*mcp.CallToolResult, ScoreRubricsOutput, error) {
	if len(in.Rubrics) == 0 {
		return nil, ScoreRubricsOutput{}, domain.NewValidationError("rubrics", "at least one rubric path is required", nil)
	}
	remedies, err := s.deps.Analyzer.ScoreRubrics(ctx, in.Rubrics)
	if err != nil {
		return nil, ScoreRubricsOutput{}, fmt.Errorf("scoring failed: %w", err)
	}
	return nil, ScoreRubricsOutput{Remedies: remedies}, nil
}

func (s *Server) listChapters(ctx context.Context, req *mcp.CallToolRequest, in ListChaptersInput) (*mcp.CallToolResult, ListChaptersOutput, error) {
	chapters, err := s.deps.Rubrics.Chapters(ctx)
	if err != nil {
		return nil, ListChaptersOutput{}, fmt.Errorf("listing chapters failed: %w", err)
	}
	return nil, ListChaptersOutput{Chapters: chapters}, nil
}

func (s *Server) chapterRubrics(ctx context.Context, req *mcp.CallToolRequest, in ChapterRubricsInput) (*mcp.CallToolResult, ChapterRubricsOutput, error) {
	if strings.TrimSpace(in.Chapter) == "" {
		return nil, ChapterRubricsOutput{}, domain.NewValidationError("chapter", "must not be empty", nil)
	}
	rubrics, err := s.deps.Rubrics.RubricsByChapter(ctx, in.Chapter)
	if err != nil {
		return nil, ChapterRubricsOutput{}, fmt.Errorf("listing rubrics failed: %w", err)
	}
	if len(rubrics) == 0 {
		return nil, ChapterRubricsOutput{}, fmt.Errorf("chapter %q: %w", in.Chapter, domain.ErrNotFound)
	}
	return nil, ChapterRubricsOutput{Chapter: in.Chapter, Rubrics: rubrics}, nil
}

func (s *Server) datasetStats(ctx context.Context, req *mcp.CallToolRequest, in DatasetStatsInput) (*mcp.CallToolResult, DatasetStatsOutput, error) {
	count, err := s.deps.Dataset.Count(ctx)
	if err != nil {
		return nil, DatasetStatsOutput{}, fmt.Errorf("counting phrase mappings failed: %w", err)
	}
	recent, err := s.deps.Dataset.List(ctx, 10, 0)
	if err != nil {
		return nil, DatasetStatsOutput{}, fmt.Errorf("listing phrase mappings failed: %w", err)
	}
	out := DatasetStatsOutput{Count: count, Recent: make([]CapturedPhrase, len(recent))}
	for i, r := range recent {
		out.Recent[i] = CapturedPhrase{
			DoctorText: r.DoctorText,
			Rubric:     r.RubricPath,
			Confidence: r.Confidence,
			CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) exportDataset(ctx context.Context, req *mcp.CallToolRequest, in ExportDatasetInput) (*mcp.CallToolResult, ExportDatasetOutput, error) {
	if err := os.MkdirAll(s.deps.ExportDir, 0755); err != nil {
		return nil, ExportDatasetOutput{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	filename := fmt.Sprintf("phrase_map_export_%s.json", time.Now().Format("20060102_150405"))
	filePath := filepath.Join(s.deps.ExportDir, filename)
	file, err := os.Create(filePath)
	if err != nil {
		return nil, ExportDatasetOutput{}, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := s.deps.Dataset.ExportJSON(ctx, file); err != nil {
		s.logger.WithError(err).Error("Failed to export phrase mappings")
		return nil, ExportDatasetOutput{}, fmt.Errorf("export failed: %w", err)
	}

	count, _ := s.deps.Dataset.Count(ctx)
	s.logger.WithFields(logrus.Fields{
		"file":  filePath,
		"count": count,
	}).Info("Exported phrase mappings")
	return nil, ExportDatasetOutput{
		FilePath: filePath,
		Count:    count,
		Message:  fmt.Sprintf("Exported %d phrase mappings to %s", count, filePath),
	}, nil
}
