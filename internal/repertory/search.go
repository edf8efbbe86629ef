// Package repertory holds the rubric search and remedy scoring stages.
package repertory

import (
	"context"
	"fmt"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// minSearchTokenLen is the shortest token allowed to drive a substring query.
const minSearchTokenLen = 3

// Searcher finds rubrics whose full path contains any usable token.
type Searcher struct {
	store  domain.RubricMatcher
	logger *logrus.Logger
}

// NewSearcher creates a searcher over a rubric store.
func NewSearcher(store domain.RubricMatcher, logger *logrus.Logger) *Searcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Searcher{store: store, logger: logger}
}

// SearchRubrics drops tokens shorter than three characters and returns up to
// limit rubrics matching any remaining token. Results are not ranked.
func (s *Searcher) SearchRubrics(ctx context.Context, tokens []string, limit int) ([]domain.RubricNode, error) {
	terms := SearchTerms(tokens)
	if len(terms) == 0 || limit <= 0 {
		return []domain.RubricNode{}, nil
	}

	rubrics, err := s.store.MatchRubrics(ctx, terms, limit)
	if err != nil {
		return nil, fmt.Errorf("rubric search failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"terms":   len(terms),
		"limit":   limit,
		"results": len(rubrics),
	}).Debug("Rubric search completed")

	return rubrics, nil
}

// SearchTerms returns the tokens long enough to be searched, in input order.
func SearchTerms(tokens []string) []string {
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) >= minSearchTokenLen {
			terms = append(terms, tok)
		}
	}
	return terms
}
