package domain

import (
	"sort"
	"time"
)

// RubricNode is one curated symptom descriptor in the repertory tree.
type RubricNode struct {
	ID         int64  `json:"id"`
	Chapter    string `json:"chapter"`
	Text       string `json:"text"`
	TextEN     string `json:"text_en,omitempty"`
	FullPath   string `json:"full_path"`
	FullPathEN string `json:"full_path_en,omitempty"`
	ParentID   *int64 `json:"parent_id,omitempty"`
	Depth      int    `json:"depth"`
	SourceID   int64  `json:"source_id"`
}

// Label returns the English path when present, the native path otherwise.
func (r RubricNode) Label() string {
	if r.FullPathEN != "" {
		return r.FullPathEN
	}
	return r.FullPath
}

// RemedyNode is a curated remedy.
type RemedyNode struct {
	ID        int64  `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	SourceID  int64  `json:"source_id"`
}

// RubricRemedyEdge associates a rubric with a remedy at an integer grade.
type RubricRemedyEdge struct {
	ID       int64 `json:"id"`
	RubricID int64 `json:"rubric_id"`
	RemedyID int64 `json:"remedy_id"`
	Grade    int   `json:"grade"`
}

// GradedEdge is an edge joined with the remedy display names, as read by scoring.
type GradedEdge struct {
	RubricID  int64
	RemedyID  int64
	Grade     int
	ShortName string
	LongName  string
}

// TokenSet is the sorted, duplicate-free output of normalization.
type TokenSet []string

// NewTokenSet builds a TokenSet from arbitrary tokens.
func NewTokenSet(tokens ...string) TokenSet {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return TokenSet(out)
}

// Contains reports whether tok is in the set.
func (ts TokenSet) Contains(tok string) bool {
	i := sort.SearchStrings(ts, tok)
	return i < len(ts) && ts[i] == tok
}

// Len returns the number of tokens.
func (ts TokenSet) Len() int { return len(ts) }

// Empty reports whether the set has no tokens.
func (ts TokenSet) Empty() bool { return len(ts) == 0 }

// Strings returns a copy of the tokens.
func (ts TokenSet) Strings() []string {
	out := make([]string, len(ts))
	copy(out, ts)
	return out
}

// CandidateRubric is a rubric proposed by the mapper with its confidence.
type CandidateRubric struct {
	Rubric        RubricNode `json:"rubric"`
	Confidence    float64    `json:"confidence"`
	MatchedTokens []string   `json:"matched_tokens"`
}

// Contribution records one rubric's grade toward a remedy score.
type Contribution struct {
	RubricID int64 `json:"rubric_id"`
	Grade    int   `json:"grade"`
}

// ScoredRemedy is a remedy with its cumulative score over the selected rubrics.
type ScoredRemedy struct {
	RemedyID      int64          `json:"remedy_id"`
	RemedyName    string         `json:"remedy_name"`
	ShortName     string         `json:"short_name"`
	Score         int            `json:"score"`
	Contributions []Contribution `json:"contributions"`
}

// RubricGroup is a rubric's merged contribution inside an explanation.
type RubricGroup struct {
	RubricID int64  `json:"rubric_id"`
	Label    string `json:"rubric"`
	Grades   []int  `json:"grades"`
	Total    int    `json:"total"`
}

// RemedyExplanation is the per-rubric breakdown of a scored remedy.
type RemedyExplanation struct {
	RemedyID   int64         `json:"remedy_id"`
	RemedyName string        `json:"remedy"`
	Score      int           `json:"score"`
	Rubrics    []RubricGroup `json:"explanation"`
}

// PhraseMappingRecord is one captured (input, candidate) pair.
type PhraseMappingRecord struct {
	ID               int64     `json:"id"`
	DoctorText       string    `json:"doctor_text"`
	NormalizedTokens string    `json:"normalized_tokens"`
	RubricPath       string    `json:"rubric"`
	Confidence       float64   `json:"confidence"`
	CreatedAt        time.Time `json:"created_at"`
}

// SourceRubric is a rubric row of the source graph.
type SourceRubric struct {
	ID       int64
	FullPath string
	ParentID *int64
}

// SourceRemedy is a remedy row of the source graph.
type SourceRemedy struct {
	ID        int64
	ShortName string
	LongName  string
}

// SourceEdge is a rubric-remedy association of the source graph.
type SourceEdge struct {
	RubricID int64
	RemedyID int64
	Weight   int
}

// InsightRequest is the input handed to the text generator.
type InsightRequest struct {
	CaseText     string   `json:"case_text"`
	RubricLabels []string `json:"rubrics"`
	RemedyNames  []string `json:"remedies"`
}

// Insight is the narrative produced by the text generator.
type Insight struct {
	Summary          string            `json:"summary"`
	RubricRationales map[string]string `json:"rubric_rationales"`
	RemedyInsights   map[string]string `json:"remedy_insights"`
}

// InsightFailureKind classifies why generation failed.
type InsightFailureKind string

const (
	InsightTimeout     InsightFailureKind = "timeout"
	InsightMalformed   InsightFailureKind = "malformed"
	InsightUpstream    InsightFailureKind = "upstream"
	InsightCircuitOpen InsightFailureKind = "circuit_open"
	InsightRateLimited InsightFailureKind = "rate_limited"
	InsightDisabled    InsightFailureKind = "disabled"
)

// InsightFailure is the typed failure side of an InsightResult.
type InsightFailure struct {
	Kind InsightFailureKind
	Err  error
}

func (f *InsightFailure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *InsightFailure) Unwrap() error { return f.Err }

// InsightResult holds either an Insight or a failure, never both.
type InsightResult struct {
	Insight *Insight
	Failure *InsightFailure
}

// InsightOK wraps a successful generation.
func InsightOK(in *Insight) InsightResult { return InsightResult{Insight: in} }

// InsightFailed wraps a failed generation.
func InsightFailed(kind InsightFailureKind, err error) InsightResult {
	return InsightResult{Failure: &InsightFailure{Kind: kind, Err: err}}
}

// OK reports whether the generation succeeded.
func (r InsightResult) OK() bool { return r.Failure == nil && r.Insight != nil }

// AnalyzedRubric is a confirmed rubric in a case analysis.
type AnalyzedRubric struct {
	ID            int64    `json:"id"`
	Label         string   `json:"rubric"`
	FullPath      string   `json:"full_path"`
	Confidence    float64  `json:"confidence"`
	MatchedTokens []string `json:"matched_tokens"`
	Rationale     string   `json:"rationale"`
}

// AnalyzedRemedy is a ranked remedy in a case analysis.
type AnalyzedRemedy struct {
	Name        string        `json:"remedy"`
	Score       int           `json:"score"`
	Explanation []RubricGroup `json:"explanation"`
	Insight     string        `json:"insight"`
}

// CaseAnalysis is the full result of the case pipeline.
type CaseAnalysis struct {
	Tokens        []string         `json:"normalized_tokens"`
	Message       string           `json:"message,omitempty"`
	Summary       string           `json:"clinical_summary,omitempty"`
	Rubrics       []AnalyzedRubric `json:"rubrics"`
	Remedies      []AnalyzedRemedy `json:"remedies"`
	InsightSource string           `json:"insight_source,omitempty"`
}
