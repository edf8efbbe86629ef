package repertory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/repository"
)

type staticEdges struct {
	edges []domain.GradedEdge
	err   error
	calls int
}

func (s *staticEdges) EdgesForRubrics(ctx context.Context, ids []int64) ([]domain.GradedEdge, error) {
	s.calls++
	return s.edges, s.err
}

func TestScoreEmptySelection(t *testing.T) {
	edges := &staticEdges{}
	scorer := NewScorer(edges, quietLogger())

	got, err := scorer.Score(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, edges.calls)
}

func TestScoreSumsGrades(t *testing.T) {
	edges := &staticEdges{edges: []domain.GradedEdge{
		{RubricID: 1, RemedyID: 10, Grade: 3, ShortName: "Acon.", LongName: "Aconitum napellus"},
		{RubricID: 1, RemedyID: 20, Grade: 1, ShortName: "Bell."},
		{RubricID: 2, RemedyID: 10, Grade: 2, ShortName: "Acon.", LongName: "Aconitum napellus"},
		{RubricID: 2, RemedyID: 30, Grade: 4},
		{RubricID: 3, RemedyID: 20, Grade: 4, ShortName: "Bell."},
	}}
	scorer := NewScorer(edges, quietLogger())

	got, err := scorer.Score(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// 10 and 20 tie at 5; 10 was seen first
	assert.Equal(t, int64(10), got[0].RemedyID)
	assert.Equal(t, 5, got[0].Score)
	assert.Equal(t, "Aconitum napellus", got[0].RemedyName)
	assert.Equal(t, []domain.Contribution{{RubricID: 1, Grade: 3}, {RubricID: 2, Grade: 2}}, got[0].Contributions)

	assert.Equal(t, int64(20), got[1].RemedyID)
	assert.Equal(t, 5, got[1].Score)
	assert.Equal(t, "Bell.", got[1].RemedyName)

	assert.Equal(t, int64(30), got[2].RemedyID)
	assert.Equal(t, "Remedy 30", got[2].RemedyName)

	for _, r := range got {
		total := 0
		for _, c := range r.Contributions {
			total += c.Grade
		}
		assert.Equal(t, r.Score, total)
	}
}

func TestScoreDoesNotMergeRepeatedRubric(t *testing.T) {
	edges := &staticEdges{edges: []domain.GradedEdge{
		{RubricID: 7, RemedyID: 1, Grade: 2},
		{RubricID: 7, RemedyID: 1, Grade: 1},
	}}
	got, err := NewScorer(edges, quietLogger()).Score(context.Background(), []int64{7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Contributions, 2)
	assert.Equal(t, 3, got[0].Score)
}

func TestScoreNoEdges(t *testing.T) {
	got, err := NewScorer(&staticEdges{}, quietLogger()).Score(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScoreStoreError(t *testing.T) {
	_, err := NewScorer(&staticEdges{err: errors.New("timeout")}, quietLogger()).Score(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestScoreAgainstMemoryStore(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	r1, err := store.InsertRubric(ctx, domain.RubricNode{Chapter: "Mind", Text: "Angst", FullPath: "Gemüt, Angst", SourceID: 1})
	require.NoError(t, err)
	r2, err := store.InsertRubric(ctx, domain.RubricNode{Chapter: "Sleep", Text: "Schlaf", FullPath: "Schlaf", SourceID: 2})
	require.NoError(t, err)
	acon, err := store.InsertRemedy(ctx, domain.RemedyNode{ShortName: "Acon.", LongName: "Aconitum napellus", SourceID: 1})
	require.NoError(t, err)

	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: r1, RemedyID: acon, Grade: 3}))
	require.NoError(t, store.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: r2, RemedyID: acon, Grade: 2}))

	got, err := NewScorer(store, quietLogger()).Score(ctx, []int64{r1, r2, r1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Score)
	assert.Len(t, got[0].Contributions, 2)
}
