package cdss

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/metrics"
	"github.com/reperto-cdss-server/internal/nlp"
	"github.com/reperto-cdss-server/internal/repertory"
)

// NoRubricsMessage is returned when nothing in the text maps to a rubric.
const NoRubricsMessage = "No confident rubrics found"

// Options tunes the analyzer.
type Options struct {
	TopRubrics   int
	TopRemedies  int
	StoreTimeout time.Duration
}

// DefaultOptions returns the standard pipeline settings.
func DefaultOptions() Options {
	return Options{
		TopRubrics:   5,
		TopRemedies:  10,
		StoreTimeout: 5 * time.Second,
	}
}

// Analyzer runs Normalize, Map, Score, Explain and attaches narrative text.
// It only reads the curated store and is safe for concurrent use.
type Analyzer struct {
	mapper   *nlp.Mapper
	scorer   *repertory.Scorer
	rubrics  domain.RubricReader
	insights domain.InsightGenerator
	recorder domain.PhraseRecorder
	opts     Options
	logger   *logrus.Logger
	now      func() time.Time
}

// NewAnalyzer wires the pipeline. insights and recorder may be nil.
func NewAnalyzer(
	mapper *nlp.Mapper,
	scorer *repertory.Scorer,
	rubrics domain.RubricReader,
	insights domain.InsightGenerator,
	recorder domain.PhraseRecorder,
	opts Options,
	logger *logrus.Logger,
) *Analyzer {
	defaults := DefaultOptions()
	if opts.TopRubrics <= 0 {
		opts.TopRubrics = defaults.TopRubrics
	}
	if opts.TopRemedies <= 0 {
		opts.TopRemedies = defaults.TopRemedies
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaults.StoreTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{
		mapper:   mapper,
		scorer:   scorer,
		rubrics:  rubrics,
		insights: insights,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Options returns the effective settings.
func (a *Analyzer) Options() Options { return a.opts }

// Map runs only the mapping stage.
func (a *Analyzer) Map(ctx context.Context, text string) (nlp.MappingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.mapper.Map(ctx, text)
	metrics.ObserveStage("map", start, err)
	return result, err
}

// Analyze maps the text to rubrics, takes the top candidates as confirmed,
// scores and explains remedies and attaches narrative text.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*domain.CaseAnalysis, error) {
	mapping, err := a.Map(ctx, text)
	if err != nil {
		metrics.CountAnalysis("error")
		return nil, err
	}

	a.capture(text, mapping)

	analysis := &domain.CaseAnalysis{
		Tokens:   mapping.Tokens.Strings(),
		Rubrics:  []domain.AnalyzedRubric{},
		Remedies: []domain.AnalyzedRemedy{},
	}
	if len(mapping.Candidates) == 0 {
		analysis.Message = NoRubricsMessage
		metrics.CountAnalysis("no_rubrics")
		return analysis, nil
	}

	selected := mapping.Top(a.opts.TopRubrics)
	nodes := make([]domain.RubricNode, len(selected))
	ids := make([]int64, len(selected))
	for i, c := range selected {
		nodes[i] = c.Rubric
		ids[i] = c.Rubric.ID
		metrics.ObserveConfidence(c.Confidence)
	}

	explained, err := a.scoreAndExplain(ctx, ids, LabelsFor(nodes))
	if err != nil {
		metrics.CountAnalysis("error")
		return nil, err
	}

	labels := make([]string, len(nodes))
	for i, n := range nodes {
		labels[i] = n.Label()
	}
	story := composeNarrative(a.generate(ctx, text, labels, explained), labels, explained)

	for _, c := range selected {
		label := c.Rubric.Label()
		analysis.Rubrics = append(analysis.Rubrics, domain.AnalyzedRubric{
			ID:            c.Rubric.ID,
			Label:         label,
			FullPath:      c.Rubric.FullPath,
			Confidence:    c.Confidence,
			MatchedTokens: c.MatchedTokens,
			Rationale:     story.rubrics[label],
		})
	}
	analysis.Remedies = toAnalyzedRemedies(explained, story.remedy)
	analysis.Summary = story.summary
	analysis.InsightSource = story.source

	a.logger.WithFields(logrus.Fields{
		"tokens":         len(analysis.Tokens),
		"candidates":     len(mapping.Candidates),
		"rubrics":        len(analysis.Rubrics),
		"remedies":       len(analysis.Remedies),
		"insight_source": story.source,
	}).Info("Case analysis completed")

	metrics.CountAnalysis("ranked")
	return analysis, nil
}

// ScoreRubrics scores a confirmed selection given by exact full paths.
// Unknown paths are skipped; no known path yields an empty result.
func (a *Analyzer) ScoreRubrics(ctx context.Context, paths []string) ([]domain.RemedyExplanation, error) {
	if len(paths) == 0 {
		return []domain.RemedyExplanation{}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	found, err := a.rubrics.RubricsByPaths(lookupCtx, paths)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rubric paths: %w", err)
	}

	// Selection order follows the request, not the store.
	byPath := make(map[string]domain.RubricNode, len(found))
	for _, r := range found {
		byPath[r.FullPath] = r
	}
	nodes := make([]domain.RubricNode, 0, len(found))
	for _, p := range paths {
		if r, ok := byPath[p]; ok {
			nodes = append(nodes, r)
			delete(byPath, p)
		}
	}
	if len(nodes) == 0 {
		return []domain.RemedyExplanation{}, nil
	}

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return a.scoreAndExplain(ctx, ids, LabelsFor(nodes))
}

func (a *Analyzer) scoreAndExplain(ctx context.Context, ids []int64, labels map[int64]string) ([]domain.RemedyExplanation, error) {
	scoreCtx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	defer cancel()

	start := time.Now()
	scored, err := a.scorer.Score(scoreCtx, ids)
	metrics.ObserveStage("score", start, err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	explained := Explain(scored, labels)
	metrics.ObserveStage("explain", start, nil)

	if len(explained) > a.opts.TopRemedies {
		explained = explained[:a.opts.TopRemedies]
	}
	return explained, nil
}

func (a *Analyzer) generate(ctx context.Context, text string, labels []string, remedies []domain.RemedyExplanation) domain.InsightResult {
	if a.insights == nil {
		return domain.InsightFailed(domain.InsightDisabled, nil)
	}

	names := make([]string, len(remedies))
	for i, r := range remedies {
		names[i] = r.RemedyName
	}

	start := time.Now()
	result := a.insights.Generate(ctx, domain.InsightRequest{
		CaseText:     text,
		RubricLabels: labels,
		RemedyNames:  names,
	})
	if result.OK() {
		metrics.ObserveStage("insights", start, nil)
		metrics.CountInsight("ok")
	} else {
		metrics.ObserveStage("insights", start, result.Failure)
		metrics.CountInsight(string(result.Failure.Kind))
		a.logger.WithFields(logrus.Fields{
			"kind":  result.Failure.Kind,
			"error": result.Failure.Err,
		}).Warn("Narrative generation failed, using fallback text")
	}
	return result
}

// capture hands one record per ranked candidate to the recorder.
func (a *Analyzer) capture(text string, mapping nlp.MappingResult) {
	if a.recorder == nil || len(mapping.Candidates) == 0 {
		return
	}

	tokens, err := json.Marshal(mapping.Tokens.Strings())
	if err != nil {
		return
	}
	now := a.now().UTC()
	records := make([]domain.PhraseMappingRecord, len(mapping.Candidates))
	for i, c := range mapping.Candidates {
		records[i] = domain.PhraseMappingRecord{
			DoctorText:       text,
			NormalizedTokens: string(tokens),
			RubricPath:       c.Rubric.FullPath,
			Confidence:       c.Confidence,
			CreatedAt:        now,
		}
	}
	a.recorder.Record(records...)
}

func toAnalyzedRemedies(explained []domain.RemedyExplanation, insights map[string]string) []domain.AnalyzedRemedy {
	out := make([]domain.AnalyzedRemedy, 0, len(explained))
	for _, e := range explained {
		out = append(out, domain.AnalyzedRemedy{
			Name:        e.RemedyName,
			Score:       e.Score,
			Explanation: e.Rubrics,
			Insight:     insights[e.RemedyName],
		})
	}
	return out
}
