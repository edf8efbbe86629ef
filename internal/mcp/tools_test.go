package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reperto-cdss-server/internal/cdss"
	"github.com/reperto-cdss-server/internal/dataset"
	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/nlp"
	"github.com/reperto-cdss-server/internal/repertory"
	"github.com/reperto-cdss-server/internal/repository"
)

type testEnv struct {
	server  *Server
	dataset *dataset.SQLiteStore
	export  string
}

func newTestEnv(t *testing.T, withDataset bool) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	store := repository.NewMemoryStore()
	mind, err := store.InsertRubric(ctx, domain.RubricNode{
		Chapter: "Mind", Text: "Angst", FullPath: "Gemüt, Angst", FullPathEN: "Mind, anxiety", Depth: 1, SourceID: 1,
	})
	require.NoError(t, err)
	sleep, err := store.InsertRubric(ctx, domain.RubricNode{
		Chapter: "Sleep", Text: "Schlaflosigkeit", FullPath: "Schlaf, Schlaflosigkeit", Depth: 1, SourceID: 2,
	})
	require.NoError(t, err)
	ars, err := store.InsertRemedy(ctx, domain.RemedyNode{ShortName: "Ars.", LongName: "Arsenicum album", SourceID: 10})
	require.NoError(t, err)
	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: mind, RemedyID: ars, Grade: 2}))
	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: sleep, RemedyID: ars, Grade: 1}))

	env := &testEnv{export: filepath.Join(t.TempDir(), "exports")}
	var recorder domain.PhraseRecorder
	deps := Dependencies{Rubrics: store, ExportDir: env.export, Logger: logger}
	if withDataset {
		env.dataset, err = dataset.NewSQLiteStore(filepath.Join(t.TempDir(), "phrases.db"))
		require.NoError(t, err)
		t.Cleanup(func() { env.dataset.Close() })
		deps.Dataset = env.dataset
		recorder = syncRecorder{store: env.dataset}
	}

	mapper := nlp.NewMapper(nil, repertory.NewSearcher(store, logger), 30, logger)
	deps.Analyzer = cdss.NewAnalyzer(mapper, repertory.NewScorer(store, logger), store, nil, recorder, cdss.Options{}, logger)

	env.server, err = NewServer(domain.MCPConfig{}, deps)
	require.NoError(t, err)
	return env
}

// syncRecorder writes through so tests can read captures immediately.
type syncRecorder struct{ store dataset.Store }

func (r syncRecorder) Record(records ...domain.PhraseMappingRecord) {
	_ = r.store.Append(context.Background(), records)
}

func TestNewServerRegistersTools(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Equal(t, []string{"analyze_case", "map_rubrics", "score_rubrics", "list_chapters", "list_chapter_rubrics"}, env.server.Tools())

	env = newTestEnv(t, true)
	assert.Contains(t, env.server.Tools(), "export_dataset")
	assert.Contains(t, env.server.Tools(), "dataset_stats")

	_, err := NewServer(domain.MCPConfig{}, Dependencies{})
	assert.Error(t, err)
}

func TestAnalyzeCaseTool(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, out, err := env.server.analyzeCase(ctx, nil, AnalyzeCaseInput{Text: "anxiety and insomnia"})
	require.NoError(t, err)
	require.Len(t, out.Remedies, 1)
	assert.Equal(t, "Arsenicum album", out.Remedies[0].Name)
	assert.Equal(t, 3, out.Remedies[0].Score)
	assert.Len(t, out.Rubrics, 2)

	_, _, err = env.server.analyzeCase(ctx, nil, AnalyzeCaseInput{Text: "   "})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, stats, err := env.server.datasetStats(ctx, nil, DatasetStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
	require.NotEmpty(t, stats.Recent)
	assert.Equal(t, "anxiety and insomnia", stats.Recent[0].DoctorText)
}

func TestMapAndScoreTools(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, mapped, err := env.server.mapRubrics(ctx, nil, MapRubricsInput{Text: "anxiety and insomnia", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"and", "angst", "schlaflosigkeit"}, mapped.Tokens)
	assert.Len(t, mapped.Candidates, 1)

	_, scored, err := env.server.scoreRubrics(ctx, nil, ScoreRubricsInput{Rubrics: []string{"Schlaf, Schlaflosigkeit"}})
	require.NoError(t, err)
	require.Len(t, scored.Remedies, 1)
	assert.Equal(t, 1, scored.Remedies[0].Score)
	assert.Equal(t, "Schlaf, Schlaflosigkeit", scored.Remedies[0].Rubrics[0].Label)

	_, _, err = env.server.scoreRubrics(ctx, nil, ScoreRubricsInput{})
	assert.Error(t, err)
}

func TestChapterTools(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, chapters, err := env.server.listChapters(ctx, nil, ListChaptersInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mind", "Sleep"}, chapters.Chapters)

	_, rubrics, err := env.server.chapterRubrics(ctx, nil, ChapterRubricsInput{Chapter: "Sleep"})
	require.NoError(t, err)
	require.Len(t, rubrics.Rubrics, 1)
	assert.Equal(t, "Schlaf, Schlaflosigkeit", rubrics.Rubrics[0].FullPath)

	_, _, err = env.server.chapterRubrics(ctx, nil, ChapterRubricsInput{Chapter: "Nowhere"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExportDatasetTool(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	require.NoError(t, env.dataset.Append(ctx, []domain.PhraseMappingRecord{{
		DoctorText: "fear", NormalizedTokens: `["angst"]`, RubricPath: "Gemüt, Angst", Confidence: 0.5, CreatedAt: time.Now(),
	}}))

	_, out, err := env.server.exportDataset(ctx, nil, ExportDatasetInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Count)
	assert.Equal(t, env.export, filepath.Dir(out.FilePath))

	data, err := os.ReadFile(out.FilePath)
	require.NoError(t, err)
	var export dataset.Export
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, 1, export.Count)
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	env := newTestEnv(t, false)
	env.server.cfg.TransportType = "carrier-pigeon"
	assert.Error(t, env.server.Run(context.Background()))
}
