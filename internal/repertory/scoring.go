package repertory

import (
	"context"
	"fmt"
	"sort"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// Scorer ranks remedies by the summed grades of their edges to a rubric selection.
type Scorer struct {
	edges  domain.EdgeReader
	logger *logrus.Logger
}

// NewScorer creates a scorer over an edge reader.
func NewScorer(edges domain.EdgeReader, logger *logrus.Logger) *Scorer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scorer{edges: edges, logger: logger}
}

// Score sums grades per remedy over the selected rubrics. Contributions keep
// edge retrieval order and are not merged. Remedies are ordered by score
// descending; ties keep first-appearance order. An empty selection yields an
// empty result without touching the store.
func (s *Scorer) Score(ctx context.Context, rubricIDs []int64) ([]domain.ScoredRemedy, error) {
	ids := uniqueIDs(rubricIDs)
	if len(ids) == 0 {
		return []domain.ScoredRemedy{}, nil
	}

	edges, err := s.edges.EdgesForRubrics(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load rubric edges: %w", err)
	}

	index := make(map[int64]int)
	scored := make([]domain.ScoredRemedy, 0)
	for _, e := range edges {
		i, ok := index[e.RemedyID]
		if !ok {
			i = len(scored)
			index[e.RemedyID] = i
			scored = append(scored, domain.ScoredRemedy{
				RemedyID:      e.RemedyID,
				RemedyName:    RemedyName(e.RemedyID, e.LongName, e.ShortName),
				ShortName:     e.ShortName,
				Contributions: []domain.Contribution{},
			})
		}
		scored[i].Score += e.Grade
		scored[i].Contributions = append(scored[i].Contributions, domain.Contribution{
			RubricID: e.RubricID,
			Grade:    e.Grade,
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	s.logger.WithFields(logrus.Fields{
		"rubrics":  len(ids),
		"edges":    len(edges),
		"remedies": len(scored),
	}).Debug("Scored remedies")

	return scored, nil
}

// RemedyName prefers the long name, then the short name, then a placeholder.
func RemedyName(id int64, longName, shortName string) string {
	if longName != "" {
		return longName
	}
	if shortName != "" {
		return shortName
	}
	return fmt.Sprintf("Remedy %d", id)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
