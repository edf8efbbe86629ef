package golden

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/domain"
	"github.com/reperto-cdss-server/internal/metrics"
)

// Stage is a step of the build state machine.
type Stage string

const (
	StageVerify           Stage = "verify"
	StageResolveHierarchy Stage = "resolve_hierarchy"
	StageInsertRubrics    Stage = "insert_rubrics"
	StageInsertRemedies   Stage = "insert_remedies"
	StageInsertRelations  Stage = "insert_relations"
	StageDone             Stage = "done"
)

// BuildError wraps the failure of a single stage.
type BuildError struct {
	Stage Stage
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("golden build failed at %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// VerificationError lists allow-list paths absent from the source graph.
type VerificationError struct {
	Missing []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%d allow-list path(s) not found in source: %s", len(e.Missing), strings.Join(e.Missing, "; "))
}

// ErrHierarchy is returned in strict mode when the hierarchy had to be truncated.
var ErrHierarchy = errors.New("source hierarchy is incomplete")

// Options control a build run.
type Options struct {
	// StrictHierarchy turns missing parents and cycles into build failures.
	StrictHierarchy bool
	// DryRun stops after ResolveHierarchy without writing anything.
	DryRun bool
}

// Report summarizes a build run.
type Report struct {
	Stage             Stage                   `json:"stage"`
	DryRun            bool                    `json:"dry_run"`
	Verified          int                     `json:"verified"`
	ResolvedNodes     int                     `json:"resolved_nodes"`
	RubricsInserted   int                     `json:"rubrics_inserted"`
	RubricsReused     int                     `json:"rubrics_reused"`
	RemediesInserted  int                     `json:"remedies_inserted"`
	RemediesReused    int                     `json:"remedies_reused"`
	RelationsInserted int                     `json:"relations_inserted"`
	RelationsSkipped  int                     `json:"relations_skipped"`
	Warnings          []HierarchyWarning      `json:"warnings,omitempty"`
	Durations         map[Stage]time.Duration `json:"durations"`
}

// Builder materializes the curated subgraph of a source graph into a target store.
// It is not safe to run two builders against the same target at once.
type Builder struct {
	source    domain.SourceGraph
	target    domain.GoldenWriter
	allowList *AllowList
	opts      Options
	logger    *logrus.Logger

	// per-run state
	verified  []domain.SourceRubric
	tree      *hierarchy
	rubricIDs map[int64]int64
	remedyIDs map[int64]int64
	report    *Report
}

// NewBuilder creates a builder for one allow-list.
func NewBuilder(source domain.SourceGraph, target domain.GoldenWriter, allowList *AllowList, opts Options, logger *logrus.Logger) *Builder {
	return &Builder{
		source:    source,
		target:    target,
		allowList: allowList,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes every stage in order. The returned report is never nil and
// reflects the work done up to the failing stage.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	b.verified = nil
	b.tree = nil
	b.rubricIDs = make(map[int64]int64)
	b.remedyIDs = make(map[int64]int64)
	b.report = &Report{DryRun: b.opts.DryRun, Durations: make(map[Stage]time.Duration)}

	stages := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageVerify, b.verify},
		{StageResolveHierarchy, b.resolve},
		{StageInsertRubrics, b.insertRubrics},
		{StageInsertRemedies, b.insertRemedies},
		{StageInsertRelations, b.insertRelations},
	}

	for _, s := range stages {
		if b.opts.DryRun && s.stage == StageInsertRubrics {
			break
		}
		b.report.Stage = s.stage
		b.logger.WithField("stage", s.stage).Info("Golden build stage started")

		start := time.Now()
		err := s.run(ctx)
		elapsed := time.Since(start)
		b.report.Durations[s.stage] = elapsed
		metrics.ObserveBuilderStage(string(s.stage), elapsed)

		if err != nil {
			b.logger.WithError(err).WithField("stage", s.stage).Error("Golden build stage failed")
			return b.report, &BuildError{Stage: s.stage, Err: err}
		}
	}

	b.report.Stage = StageDone
	b.logger.WithFields(logrus.Fields{
		"dry_run":            b.opts.DryRun,
		"rubrics_inserted":   b.report.RubricsInserted,
		"remedies_inserted":  b.report.RemediesInserted,
		"relations_inserted": b.report.RelationsInserted,
		"relations_skipped":  b.report.RelationsSkipped,
		"warnings":           len(b.report.Warnings),
	}).Info("Golden build completed")
	return b.report, nil
}

// verify looks up every allow-list path. No write happens before it passes.
func (b *Builder) verify(ctx context.Context) error {
	var missing []string
	for _, path := range b.allowList.Paths() {
		r, err := b.source.RubricByPath(ctx, path)
		if errors.Is(err, domain.ErrNotFound) {
			missing = append(missing, path)
			continue
		}
		if err != nil {
			return fmt.Errorf("looking up %q: %w", path, err)
		}
		b.verified = append(b.verified, *r)
	}
	if len(missing) > 0 {
		return &VerificationError{Missing: missing}
	}
	b.report.Verified = len(b.verified)
	return nil
}

func (b *Builder) resolve(ctx context.Context) error {
	tree, err := resolveHierarchy(ctx, b.source, b.verified)
	if err != nil {
		return err
	}
	b.tree = tree
	b.report.ResolvedNodes = len(tree.nodes)
	b.report.Warnings = tree.warnings

	for _, w := range tree.warnings {
		b.logger.WithFields(logrus.Fields{
			"kind":      w.Kind,
			"source_id": w.SourceID,
			"parent_id": w.ParentID,
			"full_path": w.FullPath,
		}).Warn("Hierarchy truncated")
	}
	if b.opts.StrictHierarchy && len(tree.warnings) > 0 {
		return fmt.Errorf("%w: %d warning(s), first: %s", ErrHierarchy, len(tree.warnings), tree.warnings[0])
	}
	return nil
}

// insertRubrics writes nodes parents first so every parent id is known.
func (b *Builder) insertRubrics(ctx context.Context) error {
	for _, n := range b.tree.inInsertOrder() {
		if id, found, err := b.target.RubricIDBySourceID(ctx, n.sourceID); err != nil {
			return err
		} else if found {
			b.rubricIDs[n.sourceID] = id
			b.report.RubricsReused++
			continue
		}

		node := domain.RubricNode{
			Chapter:  b.allowList.Chapter(n.fullPath),
			Text:     lastSegment(n.fullPath),
			FullPath: n.fullPath,
			Depth:    n.depth,
			SourceID: n.sourceID,
		}
		if en := b.allowList.Translate(n.fullPath); en != "" {
			node.FullPathEN = en
			node.TextEN = lastSegment(en)
		}
		if n.parentID != nil {
			parent, ok := b.rubricIDs[*n.parentID]
			if !ok {
				return fmt.Errorf("parent %d of rubric %d has no target id", *n.parentID, n.sourceID)
			}
			node.ParentID = &parent
		}

		id, err := b.target.InsertRubric(ctx, node)
		if err != nil {
			return fmt.Errorf("inserting rubric %q: %w", n.fullPath, err)
		}
		b.rubricIDs[n.sourceID] = id
		b.report.RubricsInserted++
	}
	return nil
}

func (b *Builder) insertRemedies(ctx context.Context) error {
	remedyIDs, err := b.source.RemedyIDsForRubrics(ctx, b.mappedRubricSourceIDs())
	if err != nil {
		return err
	}
	if len(remedyIDs) == 0 {
		return nil
	}
	remedies, err := b.source.RemediesByIDs(ctx, remedyIDs)
	if err != nil {
		return err
	}
	sort.Slice(remedies, func(i, j int) bool { return remedies[i].ID < remedies[j].ID })

	for _, r := range remedies {
		if _, done := b.remedyIDs[r.ID]; done {
			continue
		}
		if id, found, err := b.target.RemedyIDBySourceID(ctx, r.ID); err != nil {
			return err
		} else if found {
			b.remedyIDs[r.ID] = id
			b.report.RemediesReused++
			continue
		}
		id, err := b.target.InsertRemedy(ctx, domain.RemedyNode{
			ShortName: r.ShortName,
			LongName:  r.LongName,
			SourceID:  r.ID,
		})
		if err != nil {
			return fmt.Errorf("inserting remedy %d: %w", r.ID, err)
		}
		b.remedyIDs[r.ID] = id
		b.report.RemediesInserted++
	}
	return nil
}

// insertRelations copies edges whose endpoints are both mapped. Parallel
// source edges collapse to the first one seen.
func (b *Builder) insertRelations(ctx context.Context) error {
	edges, err := b.source.EdgesForRubrics(ctx, b.mappedRubricSourceIDs())
	if err != nil {
		return err
	}

	type pair struct{ rubric, remedy int64 }
	seen := make(map[pair]struct{}, len(edges))

	for _, e := range edges {
		rubricID, okR := b.rubricIDs[e.RubricID]
		remedyID, okM := b.remedyIDs[e.RemedyID]
		if !okR || !okM || e.Weight <= 0 {
			b.report.RelationsSkipped++
			continue
		}
		key := pair{rubricID, remedyID}
		if _, dup := seen[key]; dup {
			b.report.RelationsSkipped++
			continue
		}
		seen[key] = struct{}{}

		exists, err := b.target.EdgeExists(ctx, rubricID, remedyID)
		if err != nil {
			return err
		}
		if exists {
			b.report.RelationsSkipped++
			continue
		}
		if err := b.target.InsertEdge(ctx, domain.RubricRemedyEdge{
			RubricID: rubricID,
			RemedyID: remedyID,
			Grade:    e.Weight,
		}); err != nil {
			return fmt.Errorf("inserting edge %d->%d: %w", e.RubricID, e.RemedyID, err)
		}
		b.report.RelationsInserted++
	}
	return nil
}

func (b *Builder) mappedRubricSourceIDs() []int64 {
	ids := make([]int64, 0, len(b.rubricIDs))
	for src := range b.rubricIDs {
		ids = append(ids, src)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
