package insights

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reperto-cdss-server/internal/domain"
)

const systemPrompt = `You are a clinical homeopathy assistant supporting a practitioner.
You receive a case description, the repertory rubrics that matched it and the
remedies ranked by cumulative rubric grade. Do not change the ranking and do
not introduce new rubrics or remedies.
Return ONLY valid JSON with this exact structure:
{
  "summary": string,
  "rubric_rationales": { "<rubric label>": string },
  "remedy_insights": { "<remedy name>": string }
}
Use the rubric labels and remedy names exactly as given as keys.`

func userPrompt(req domain.InsightRequest) string {
	var b strings.Builder
	b.WriteString("Case:\n")
	b.WriteString(strings.TrimSpace(req.CaseText))
	b.WriteString("\n\nRubrics:\n")
	for _, l := range req.RubricLabels {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	b.WriteString("\nRemedies (ranked):\n")
	for i, n := range req.RemedyNames {
		fmt.Fprintf(&b, "%d. %s\n", i+1, n)
	}
	return b.String()
}

// errMalformed marks a reply that is not the expected JSON document.
type errMalformed struct {
	reason string
}

func (e *errMalformed) Error() string {
	return "malformed completion: " + e.reason
}

func parseInsight(content string) (*domain.Insight, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &errMalformed{reason: "empty content"}
	}

	var in domain.Insight
	if err := json.Unmarshal([]byte(content), &in); err != nil {
		return nil, &errMalformed{reason: err.Error()}
	}
	if in.Summary == "" && len(in.RubricRationales) == 0 && len(in.RemedyInsights) == 0 {
		return nil, &errMalformed{reason: "no recognised fields"}
	}
	if in.RubricRationales == nil {
		in.RubricRationales = map[string]string{}
	}
	if in.RemedyInsights == nil {
		in.RemedyInsights = map[string]string{}
	}
	return &in, nil
}
