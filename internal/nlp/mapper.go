package nlp

import (
	"context"
	"fmt"
	"sort"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// DefaultSearchLimit bounds the candidate pool when none is configured.
const DefaultSearchLimit = 30

// MappingResult is the output of a mapping call.
type MappingResult struct {
	Tokens     domain.TokenSet          `json:"normalized_tokens"`
	Candidates []domain.CandidateRubric `json:"candidates"`
}

// Top returns at most n leading candidates.
func (r MappingResult) Top(n int) []domain.CandidateRubric {
	if n < 0 || n >= len(r.Candidates) {
		return r.Candidates
	}
	return r.Candidates[:n]
}

// Mapper runs Normalize, Search and Confidence and ranks the result.
type Mapper struct {
	normalizer *Normalizer
	searcher   domain.RubricSearcher
	limit      int
	logger     *logrus.Logger
}

// NewMapper creates a mapper over a rubric searcher.
func NewMapper(normalizer *Normalizer, searcher domain.RubricSearcher, limit int, logger *logrus.Logger) *Mapper {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Mapper{normalizer: normalizer, searcher: searcher, limit: limit, logger: logger}
}

// Normalizer returns the normalizer used by the mapper.
func (m *Mapper) Normalizer() *Normalizer { return m.normalizer }

// Map proposes rubrics for the text, ranked by confidence descending. Ties
// keep the order the searcher returned them in.
func (m *Mapper) Map(ctx context.Context, text string) (MappingResult, error) {
	tokens := m.normalizer.Normalize(text)
	result := MappingResult{Tokens: tokens, Candidates: []domain.CandidateRubric{}}
	if tokens.Empty() {
		return result, nil
	}

	rubrics, err := m.searcher.SearchRubrics(ctx, tokens.Strings(), m.limit)
	if err != nil {
		return result, fmt.Errorf("failed to search rubrics: %w", err)
	}

	for _, rubric := range rubrics {
		conf, matched := Confidence(tokens, rubric)
		if conf <= 0 {
			continue
		}
		result.Candidates = append(result.Candidates, domain.CandidateRubric{
			Rubric:        rubric,
			Confidence:    conf,
			MatchedTokens: matched,
		})
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].Confidence > result.Candidates[j].Confidence
	})

	m.logger.WithFields(logrus.Fields{
		"tokens":     tokens.Len(),
		"searched":   len(rubrics),
		"candidates": len(result.Candidates),
	}).Debug("Mapped case text to rubrics")

	return result, nil
}
