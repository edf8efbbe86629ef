package cdss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reperto-cdss-server/internal/domain"
)

func TestExplainMergesSameRubric(t *testing.T) {
	scored := []domain.ScoredRemedy{{
		RemedyID:   1,
		RemedyName: "Arsenicum album",
		Score:      6,
		Contributions: []domain.Contribution{
			{RubricID: 5, Grade: 2},
			{RubricID: 9, Grade: 3},
			{RubricID: 5, Grade: 1},
		},
	}}

	got := Explain(scored, map[int64]string{5: "Mind, anxiety", 9: "Stomach, pain, burning"})
	require.Len(t, got, 1)
	require.Len(t, got[0].Rubrics, 2)

	assert.Equal(t, "Arsenicum album", got[0].RemedyName)
	assert.Equal(t, 6, got[0].Score)
	assert.Equal(t, domain.RubricGroup{RubricID: 5, Label: "Mind, anxiety", Grades: []int{2, 1}, Total: 3}, got[0].Rubrics[0])
	assert.Equal(t, domain.RubricGroup{RubricID: 9, Label: "Stomach, pain, burning", Grades: []int{3}, Total: 3}, got[0].Rubrics[1])
}

func TestExplainPlaceholderLabel(t *testing.T) {
	scored := []domain.ScoredRemedy{{
		RemedyID:      2,
		RemedyName:    "Nux vomica",
		Score:         2,
		Contributions: []domain.Contribution{{RubricID: 42, Grade: 2}},
	}}

	got := Explain(scored, nil)
	assert.Equal(t, "Rubric 42", got[0].Rubrics[0].Label)

	got = Explain(scored, map[int64]string{42: ""})
	assert.Equal(t, "Rubric 42", got[0].Rubrics[0].Label)
}

func TestExplainGroupsByIDNotLabel(t *testing.T) {
	// Two rubrics sharing a display label stay separate groups.
	scored := []domain.ScoredRemedy{{
		RemedyID:      3,
		RemedyName:    "Sulphur",
		Score:         4,
		Contributions: []domain.Contribution{{RubricID: 1, Grade: 2}, {RubricID: 2, Grade: 2}},
	}}

	got := Explain(scored, map[int64]string{1: "Mind, fear", 2: "Mind, fear"})
	assert.Len(t, got[0].Rubrics, 2)
}

func TestExplainPreservesRemedyOrderAndTotals(t *testing.T) {
	scored := []domain.ScoredRemedy{
		{RemedyID: 1, RemedyName: "A", Score: 5, Contributions: []domain.Contribution{{RubricID: 1, Grade: 3}, {RubricID: 2, Grade: 2}}},
		{RemedyID: 2, RemedyName: "B", Score: 1, Contributions: []domain.Contribution{{RubricID: 2, Grade: 1}}},
	}

	got := Explain(scored, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].RemedyName)
	assert.Equal(t, "B", got[1].RemedyName)
	for _, e := range got {
		sum := 0
		for _, g := range e.Rubrics {
			sum += g.Total
		}
		assert.Equal(t, e.Score, sum)
	}

	assert.Empty(t, Explain(nil, nil))
}

func TestLabelsFor(t *testing.T) {
	labels := LabelsFor([]domain.RubricNode{
		{ID: 1, FullPath: "Gemüt, Angst", FullPathEN: "Mind, anxiety"},
		{ID: 2, FullPath: "Kopf, Hitze"},
	})
	assert.Equal(t, map[int64]string{1: "Mind, anxiety", 2: "Kopf, Hitze"}, labels)
}
