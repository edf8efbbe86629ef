package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reperto-cdss-server/internal/domain"
)

// seedStore loads a small Mind/Stomach tree and returns the rubric ids by path.
func seedStore(t *testing.T, s Store) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]int64)

	insert := func(chapter, text, textEN, path, pathEN, parent string, depth int, source int64) {
		var parentID *int64
		if parent != "" {
			p := ids[parent]
			parentID = &p
		}
		id, err := s.InsertRubric(ctx, domain.RubricNode{
			Chapter: chapter, Text: text, TextEN: textEN,
			FullPath: path, FullPathEN: pathEN,
			ParentID: parentID, Depth: depth, SourceID: source,
		})
		require.NoError(t, err)
		ids[path] = id
	}

	insert("Mind", "Gemüt", "Mind", "Gemüt", "Mind", "", 0, 100)
	insert("Mind", "Angst", "anxiety", "Gemüt, Angst", "Mind, anxiety", "Gemüt", 1, 101)
	insert("Stomach", "Magen", "Stomach", "Magen", "Stomach", "", 0, 200)
	insert("Stomach", "Schmerz", "pain", "Magen, Schmerz", "Stomach, pain", "Magen", 1, 201)
	insert("Stomach", "brennender", "burning", "Magen, Schmerz, brennender", "Stomach, pain, burning", "Magen, Schmerz", 2, 202)
	insert("Sleep", "100%_match", "", "Schlaf, 100%_match", "", "", 0, 300)

	acon, err := s.InsertRemedy(ctx, domain.RemedyNode{ShortName: "Acon.", LongName: "Aconitum napellus", SourceID: 1})
	require.NoError(t, err)
	ars, err := s.InsertRemedy(ctx, domain.RemedyNode{ShortName: "Ars.", LongName: "Arsenicum album", SourceID: 2})
	require.NoError(t, err)

	require.NoError(t, s.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: ids["Gemüt, Angst"], RemedyID: acon, Grade: 3}))
	require.NoError(t, s.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: ids["Gemüt, Angst"], RemedyID: ars, Grade: 2}))
	require.NoError(t, s.InsertEdge(ctx, domain.RubricRemedyEdge{RubricID: ids["Magen, Schmerz, brennender"], RemedyID: ars, Grade: 3}))

	return ids
}

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	ids := seedStore(t, s)

	t.Run("match any term case insensitive", func(t *testing.T) {
		got, err := s.MatchRubrics(ctx, []string{"angst", "brennender"}, 30)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Gemüt, Angst", got[0].FullPath)
		assert.Equal(t, "Magen, Schmerz, brennender", got[1].FullPath)
		assert.Equal(t, "Mind, anxiety", got[0].FullPathEN)
		require.NotNil(t, got[1].ParentID)
		assert.Equal(t, ids["Magen, Schmerz"], *got[1].ParentID)
		assert.Equal(t, 2, got[1].Depth)
	})

	t.Run("match respects limit and id order", func(t *testing.T) {
		got, err := s.MatchRubrics(ctx, []string{"magen"}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Magen", got[0].FullPath)
		assert.Equal(t, "Magen, Schmerz", got[1].FullPath)
	})

	t.Run("match escapes wildcards", func(t *testing.T) {
		got, err := s.MatchRubrics(ctx, []string{"0%_m"}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].ParentID)
		assert.Empty(t, got[0].FullPathEN)

		got, err = s.MatchRubrics(ctx, []string{"a_g"}, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("edges in insertion order with names", func(t *testing.T) {
		edges, err := s.EdgesForRubrics(ctx, []int64{ids["Magen, Schmerz, brennender"], ids["Gemüt, Angst"]})
		require.NoError(t, err)
		require.Len(t, edges, 3)
		assert.Equal(t, "Aconitum napellus", edges[0].LongName)
		assert.Equal(t, 3, edges[0].Grade)
		assert.Equal(t, "Ars.", edges[1].ShortName)
		assert.Equal(t, ids["Magen, Schmerz, brennender"], edges[2].RubricID)

		edges, err = s.EdgesForRubrics(ctx, []int64{ids["Magen"]})
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("lookups", func(t *testing.T) {
		got, err := s.RubricsByPaths(ctx, []string{"Magen, Schmerz", "Gemüt, Angst", "Unknown"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Gemüt, Angst", got[0].FullPath)

		got, err = s.RubricsByIDs(ctx, []int64{ids["Magen"]})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Stomach", got[0].Chapter)
	})

	t.Run("chapters and chapter listing", func(t *testing.T) {
		chapters, err := s.Chapters(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Mind", "Sleep", "Stomach"}, chapters)

		rubrics, err := s.RubricsByChapter(ctx, "Stomach")
		require.NoError(t, err)
		paths := make([]string, len(rubrics))
		for i, r := range rubrics {
			paths[i] = r.FullPath
		}
		assert.Equal(t, []string{"Magen", "Magen, Schmerz", "Magen, Schmerz, brennender"}, paths)
	})

	t.Run("writer lookups", func(t *testing.T) {
		id, ok, err := s.RubricIDBySourceID(ctx, 202)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ids["Magen, Schmerz, brennender"], id)

		_, ok, err = s.RubricIDBySourceID(ctx, 999)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = s.RemedyIDBySourceID(ctx, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		exists, err := s.EdgeExists(ctx, ids["Gemüt, Angst"], id)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("duplicate source id rejected", func(t *testing.T) {
		_, err := s.InsertRubric(ctx, domain.RubricNode{Chapter: "Mind", Text: "x", FullPath: "Gemüt, x", SourceID: 100})
		assert.Error(t, err)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	s := NewMemoryStore()
	runStoreContract(t, s)

	rubrics, remedies, edges := s.Counts()
	assert.Equal(t, 6, rubrics)
	assert.Equal(t, 2, remedies)
	assert.Equal(t, 3, edges)
}
