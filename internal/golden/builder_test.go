package golden

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/repository"
	"github.com/reperto-cdss-server/internal/source"
)

const testAllowList = `
version: test
chapters:
  Gemüt: Mind
  Kopf: Head
rubrics:
  - path: Gemüt, Angst, nachts
    en: Mind, anxiety, night
  - path: Kopf, Hitze
    en: Head, heat
`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func fixtureSource() *source.MemoryGraph {
	return source.NewMemoryGraph().
		AddRubric(10, "Gemüt", 0).
		AddRubric(11, "Gemüt, Angst", 10).
		AddRubric(12, "Gemüt, Angst, nachts", 11).
		AddRubric(20, "Kopf", 0).
		AddRubric(21, "Kopf, Hitze", 20).
		AddRubric(30, "Magen, Übelkeit", 0).
		AddRemedy(100, "Acon.", "Aconitum napellus").
		AddRemedy(101, "Ars.", "Arsenicum album").
		AddRemedy(102, "Nux-v.", "Nux vomica").
		AddEdge(11, 100, 3).
		AddEdge(12, 101, 2).
		AddEdge(12, 100, 1).
		AddEdge(12, 101, 3).
		AddEdge(21, 100, 0).
		AddEdge(30, 102, 1)
}

func mustAllowList(t *testing.T, data string) *AllowList {
	t.Helper()
	a, err := ParseAllowList([]byte(data))
	require.NoError(t, err)
	return a
}

func rubricByPath(t *testing.T, store *repository.MemoryStore, path string) domain.RubricNode {
	t.Helper()
	rubrics, err := store.RubricsByPaths(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, rubrics, 1, path)
	return rubrics[0]
}

func TestBuilderRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	b := NewBuilder(fixtureSource(), store, mustAllowList(t, testAllowList), Options{}, testLogger())

	report, err := b.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StageDone, report.Stage)
	assert.Equal(t, 2, report.Verified)
	assert.Equal(t, 5, report.ResolvedNodes)
	assert.Equal(t, 5, report.RubricsInserted)
	assert.Equal(t, 2, report.RemediesInserted)
	assert.Equal(t, 3, report.RelationsInserted)
	assert.Equal(t, 2, report.RelationsSkipped)
	assert.Empty(t, report.Warnings)
	assert.Contains(t, report.Durations, StageInsertRelations)

	rubrics, remedies, edges := store.Counts()
	assert.Equal(t, 5, rubrics)
	assert.Equal(t, 2, remedies)
	assert.Equal(t, 3, edges)

	t.Run("hierarchy and translations", func(t *testing.T) {
		root := rubricByPath(t, store, "Gemüt")
		mid := rubricByPath(t, store, "Gemüt, Angst")
		leaf := rubricByPath(t, store, "Gemüt, Angst, nachts")

		assert.Nil(t, root.ParentID)
		assert.Equal(t, 0, root.Depth)
		assert.Equal(t, "Mind", root.Chapter)
		assert.Equal(t, "Mind", root.FullPathEN)

		require.NotNil(t, mid.ParentID)
		assert.Equal(t, root.ID, *mid.ParentID)
		assert.Equal(t, 1, mid.Depth)
		assert.Equal(t, "Angst", mid.Text)
		assert.Empty(t, mid.FullPathEN)

		require.NotNil(t, leaf.ParentID)
		assert.Equal(t, mid.ID, *leaf.ParentID)
		assert.Equal(t, 2, leaf.Depth)
		assert.Equal(t, int64(12), leaf.SourceID)
		assert.Equal(t, "nachts", leaf.Text)
		assert.Equal(t, "night", leaf.TextEN)
		assert.Equal(t, "Mind, anxiety, night", leaf.Label())
	})

	t.Run("edges keep first grade", func(t *testing.T) {
		leaf := rubricByPath(t, store, "Gemüt, Angst, nachts")
		graded, err := store.EdgesForRubrics(ctx, []int64{leaf.ID})
		require.NoError(t, err)
		require.Len(t, graded, 2)
		assert.Equal(t, "Ars.", graded[0].ShortName)
		assert.Equal(t, 2, graded[0].Grade)
		assert.Equal(t, "Acon.", graded[1].ShortName)
		assert.Equal(t, 1, graded[1].Grade)
	})

	t.Run("second run is idempotent", func(t *testing.T) {
		again, err := NewBuilder(fixtureSource(), store, mustAllowList(t, testAllowList), Options{}, testLogger()).Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, 0, again.RubricsInserted)
		assert.Equal(t, 5, again.RubricsReused)
		assert.Equal(t, 0, again.RemediesInserted)
		assert.Equal(t, 2, again.RemediesReused)
		assert.Equal(t, 0, again.RelationsInserted)
		assert.Equal(t, 5, again.RelationsSkipped)

		r, m, e := store.Counts()
		assert.Equal(t, []int{5, 2, 3}, []int{r, m, e})
	})
}

func TestBuilderVerifyFailsBeforeWriting(t *testing.T) {
	store := repository.NewMemoryStore()
	allow := mustAllowList(t, testAllowList+"  - path: Schlaf, Träume\n")

	report, err := NewBuilder(fixtureSource(), store, allow, Options{}, testLogger()).Run(context.Background())
	require.Error(t, err)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, StageVerify, buildErr.Stage)

	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Schlaf, Träume"}, verr.Missing)
	assert.Equal(t, StageVerify, report.Stage)

	r, m, e := store.Counts()
	assert.Zero(t, r+m+e)
}

func TestBuilderMissingParent(t *testing.T) {
	g := fixtureSource().AddRubric(40, "Schlaf, Träume", 39)
	allow := mustAllowList(t, "rubrics:\n  - path: Schlaf, Träume\n")

	t.Run("lenient", func(t *testing.T) {
		store := repository.NewMemoryStore()
		report, err := NewBuilder(g, store, allow, Options{}, testLogger()).Run(context.Background())
		require.NoError(t, err)

		require.Len(t, report.Warnings, 1)
		assert.Equal(t, WarningMissingParent, report.Warnings[0].Kind)

		node := rubricByPath(t, store, "Schlaf, Träume")
		assert.Nil(t, node.ParentID)
		assert.Equal(t, 0, node.Depth)
		assert.Equal(t, "Schlaf", node.Chapter)
	})

	t.Run("strict", func(t *testing.T) {
		store := repository.NewMemoryStore()
		_, err := NewBuilder(g, store, allow, Options{StrictHierarchy: true}, testLogger()).Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHierarchy)

		var buildErr *BuildError
		require.True(t, errors.As(err, &buildErr))
		assert.Equal(t, StageResolveHierarchy, buildErr.Stage)

		r, _, _ := store.Counts()
		assert.Zero(t, r)
	})
}

func TestBuilderDryRun(t *testing.T) {
	store := repository.NewMemoryStore()
	report, err := NewBuilder(fixtureSource(), store, mustAllowList(t, testAllowList), Options{DryRun: true}, testLogger()).
		Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, StageDone, report.Stage)
	assert.Equal(t, 5, report.ResolvedNodes)
	assert.Zero(t, report.RubricsInserted)
	assert.NotContains(t, report.Durations, StageInsertRubrics)

	r, m, e := store.Counts()
	assert.Zero(t, r+m+e)
}

func TestBuilderDefaultAllowListAgainstEmptySource(t *testing.T) {
	allow, err := LoadAllowList("")
	require.NoError(t, err)

	_, err = NewBuilder(source.NewMemoryGraph(), repository.NewMemoryStore(), allow, Options{}, testLogger()).
		Run(context.Background())

	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Missing, len(allow.Rubrics))
}
