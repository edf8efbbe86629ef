package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reperto-cdss-server/internal/cdss"
	"github.com/reperto-cdss-server/internal/config"
	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/nlp"
	"github.com/reperto-cdss-server/internal/repertory"
	"github.com/reperto-cdss-server/internal/repository"
)

func seedStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	mind, err := store.InsertRubric(ctx, domain.RubricNode{
		Chapter: "Mind", Text: "Angst", FullPath: "Gemüt, Angst", FullPathEN: "Mind, anxiety", Depth: 1, SourceID: 1,
	})
	require.NoError(t, err)
	stomach, err := store.InsertRubric(ctx, domain.RubricNode{
		Chapter: "Stomach", Text: "brennender", FullPath: "Magen, Schmerz, brennender", FullPathEN: "Stomach, pain, burning", Depth: 2, SourceID: 2,
	})
	require.NoError(t, err)

	ars, err := store.InsertRemedy(ctx, domain.RemedyNode{ShortName: "Ars.", LongName: "Arsenicum album", SourceID: 10})
	require.NoError(t, err)
	acon, err := store.InsertRemedy(ctx, domain.RemedyNode{ShortName: "Acon.", LongName: "Aconitum napellus", SourceID: 11})
	require.NoError(t, err)

	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: mind, RemedyID: acon, Grade: 3}))
	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: mind, RemedyID: ars, Grade: 2}))
	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: stomach, RemedyID: ars, Grade: 3}))
	return store
}

func newTestServer(t *testing.T, rubrics domain.RubricReader, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	store := seedStore(t)
	if rubrics == nil {
		rubrics = store
	}
	mapper := nlp.NewMapper(nil, repertory.NewSearcher(store, logger), 30, logger)
	analyzer := cdss.NewAnalyzer(mapper, repertory.NewScorer(store, logger), store, nil, nil, cdss.Options{}, logger)

	manager, err := config.NewManager()
	require.NoError(t, err)

	return NewServer(manager, Dependencies{
		Analyzer: analyzer,
		Rubrics:  rubrics,
		Checks:   checks,
		Logger:   logger,
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestAnalyzeEndpoint(t *testing.T) {
	h := newTestServer(t, nil, nil)

	w := do(t, h, http.MethodPost, "/api/v1/cdss/analyze", `{"text":"anxiety with burning stomach"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got domain.CaseAnalysis
	decode(t, w, &got)
	require.Len(t, got.Rubrics, 2)
	require.NotEmpty(t, got.Remedies)
	assert.Equal(t, "Arsenicum album", got.Remedies[0].Name)
	assert.Equal(t, 5, got.Remedies[0].Score)
	assert.Equal(t, "fallback", got.InsightSource)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestAnalyzeEndpointNoMatch(t *testing.T) {
	h := newTestServer(t, nil, nil)

	w := do(t, h, http.MethodPost, "/api/v1/cdss/analyze", `{"text":"zebra"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.CaseAnalysis
	decode(t, w, &got)
	assert.Equal(t, cdss.NoRubricsMessage, got.Message)
	assert.Empty(t, got.Remedies)
}

func TestAnalyzeEndpointRejectsBadInput(t *testing.T) {
	h := newTestServer(t, nil, nil)

	for _, body := range []string{`{}`, `{"text":""}`, `not json`} {
		w := do(t, h, http.MethodPost, "/api/v1/cdss/analyze", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)

		var e domain.ReperError
		decode(t, w, &e)
		assert.Equal(t, domain.ErrInvalidInput, e.Code)
		assert.NotEmpty(t, e.RequestID)
	}
}

func TestScoreEndpoint(t *testing.T) {
	h := newTestServer(t, nil, nil)

	w := do(t, h, http.MethodPost, "/api/v1/cdss/score", `{"rubrics":["Gemüt, Angst","Unknown, path"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got ScoreResponse
	decode(t, w, &got)
	require.Len(t, got.Remedies, 2)
	assert.Equal(t, "Aconitum napellus", got.Remedies[0].RemedyName)
	assert.Equal(t, 3, got.Remedies[0].Score)
	require.Len(t, got.Remedies[0].Rubrics, 1)
	assert.Equal(t, "Mind, anxiety", got.Remedies[0].Rubrics[0].Label)

	w = do(t, h, http.MethodPost, "/api/v1/cdss/score", `{"rubrics":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapEndpoint(t *testing.T) {
	h := newTestServer(t, nil, nil)

	w := do(t, h, http.MethodPost, "/api/v1/rubrics/map", `{"text":"anxiety with burning stomach","limit":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got MapResponse
	decode(t, w, &got)
	assert.Contains(t, got.Tokens, "angst")
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "Magen, Schmerz, brennender", got.Candidates[0].Rubric.FullPath)
}

func TestChapterEndpoints(t *testing.T) {
	h := newTestServer(t, nil, nil)

	w := do(t, h, http.MethodGet, "/api/v1/chapters", "")
	require.Equal(t, http.StatusOK, w.Code)
	var chapters struct {
		Chapters []string `json:"chapters"`
	}
	decode(t, w, &chapters)
	assert.Equal(t, []string{"Mind", "Stomach"}, chapters.Chapters)

	w = do(t, h, http.MethodGet, "/api/v1/chapters/Mind/rubrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Chapter string              `json:"chapter"`
		Rubrics []domain.RubricNode `json:"rubrics"`
	}
	decode(t, w, &listing)
	require.Len(t, listing.Rubrics, 1)
	assert.Equal(t, "Gemüt, Angst", listing.Rubrics[0].FullPath)

	w = do(t, h, http.MethodGet, "/api/v1/chapters/Nowhere/rubrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type failingReader struct{ domain.RubricReader }

func (failingReader) Chapters(ctx context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	h := newTestServer(t, failingReader{}, nil)

	w := do(t, h, http.MethodGet, "/api/v1/chapters", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var e domain.ReperError
	decode(t, w, &e)
	assert.Equal(t, domain.ErrDatabaseError, e.Code)
	assert.Empty(t, e.Details)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, nil, map[string]HealthCheck{
		"store": func(ctx context.Context) error { return nil },
	})
	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	h = newTestServer(t, nil, map[string]HealthCheck{
		"store": func(ctx context.Context) error { return errors.New("down") },
	})
	w = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil, nil)
	do(t, h, http.MethodPost, "/api/v1/cdss/analyze", `{"text":"anxiety"}`)

	w := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reperto_")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil, nil)
	w := do(t, h, http.MethodOptions, "/api/v1/cdss/analyze", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
