package cdss

import (
	"fmt"
	"strings"

	"github.com/reperto-cdss-server/internal/domain"
)

const (
	defaultRubricRationale = "Matched based on clinical tokens."
	defaultRemedyInsight   = "Indicated based on cumulative rubric scores."
)

// narrative is the insight text actually attached to an analysis.
type narrative struct {
	summary string
	rubrics map[string]string
	remedy  map[string]string
	source  string
}

// composeNarrative fills every rubric and remedy from the generated insight
// and falls back to deterministic text for anything missing or failed.
func composeNarrative(result domain.InsightResult, labels []string, remedies []domain.RemedyExplanation) narrative {
	n := narrative{
		rubrics: make(map[string]string, len(labels)),
		remedy:  make(map[string]string, len(remedies)),
		source:  "fallback",
	}

	var generated *domain.Insight
	if result.OK() {
		generated = result.Insight
		n.source = "model"
	}

	for _, label := range labels {
		n.rubrics[label] = defaultRubricRationale
		if generated != nil {
			if text := strings.TrimSpace(generated.RubricRationales[label]); text != "" {
				n.rubrics[label] = text
			}
		}
	}
	for _, rem := range remedies {
		n.remedy[rem.RemedyName] = defaultRemedyInsight
		if generated != nil {
			if text := strings.TrimSpace(generated.RemedyInsights[rem.RemedyName]); text != "" {
				n.remedy[rem.RemedyName] = text
			}
		}
	}

	if generated != nil && strings.TrimSpace(generated.Summary) != "" {
		n.summary = strings.TrimSpace(generated.Summary)
	} else {
		n.summary = fallbackSummary(labels, remedies)
	}
	return n
}

func fallbackSummary(labels []string, remedies []domain.RemedyExplanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case matched %d rubric(s): %s.", len(labels), strings.Join(labels, "; "))
	if len(remedies) > 0 {
		fmt.Fprintf(&b, " Highest cumulative score: %s (%d).", remedies[0].RemedyName, remedies[0].Score)
	}
	return b.String()
}
