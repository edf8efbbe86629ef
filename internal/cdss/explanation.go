// Package cdss composes the reasoning stages into case analysis.
package cdss

import (
	"fmt"

	"github.com/reperto-cdss-server/internal/domain"
)

// Explain groups each remedy's contributions by rubric id. Groups keep the
// order in which a rubric first contributed; grades keep retrieval order.
// Rubrics without a label get the "Rubric {id}" placeholder.
func Explain(scored []domain.ScoredRemedy, labels map[int64]string) []domain.RemedyExplanation {
	out := make([]domain.RemedyExplanation, 0, len(scored))
	for _, rem := range scored {
		groups := make([]domain.RubricGroup, 0, len(rem.Contributions))
		index := make(map[int64]int, len(rem.Contributions))

		for _, c := range rem.Contributions {
			i, ok := index[c.RubricID]
			if !ok {
				i = len(groups)
				index[c.RubricID] = i
				groups = append(groups, domain.RubricGroup{
					RubricID: c.RubricID,
					Label:    RubricLabel(labels, c.RubricID),
					Grades:   []int{},
				})
			}
			groups[i].Grades = append(groups[i].Grades, c.Grade)
			groups[i].Total += c.Grade
		}

		out = append(out, domain.RemedyExplanation{
			RemedyID:   rem.RemedyID,
			RemedyName: rem.RemedyName,
			Score:      rem.Score,
			Rubrics:    groups,
		})
	}
	return out
}

// RubricLabel returns the label for id or the placeholder.
func RubricLabel(labels map[int64]string, id int64) string {
	if l, ok := labels[id]; ok && l != "" {
		return l
	}
	return fmt.Sprintf("Rubric %d", id)
}

// LabelsFor maps rubric ids to their display labels.
func LabelsFor(rubrics []domain.RubricNode) map[int64]string {
	labels := make(map[int64]string, len(rubrics))
	for _, r := range rubrics {
		labels[r.ID] = r.Label()
	}
	return labels
}
