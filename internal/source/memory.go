package source

import (
	"context"
	"sort"

	"github.com/reperto-cdss-server/internal/domain"
)

// MemoryGraph is an in-process SourceGraph for tests and fixtures.
type MemoryGraph struct {
	rubrics  map[int64]domain.SourceRubric
	remedies map[int64]domain.SourceRemedy
	edges    []domain.SourceEdge
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		rubrics:  make(map[int64]domain.SourceRubric),
		remedies: make(map[int64]domain.SourceRemedy),
	}
}

// AddRubric adds a rubric; parent 0 means root.
func (g *MemoryGraph) AddRubric(id int64, fullPath string, parent int64) *MemoryGraph {
	r := domain.SourceRubric{ID: id, FullPath: fullPath}
	if parent != 0 {
		p := parent
		r.ParentID = &p
	}
	g.rubrics[id] = r
	return g
}

// AddRemedy adds a remedy.
func (g *MemoryGraph) AddRemedy(id int64, short, long string) *MemoryGraph {
	g.remedies[id] = domain.SourceRemedy{ID: id, ShortName: short, LongName: long}
	return g
}

// AddEdge links a rubric to a remedy. Duplicates are kept.
func (g *MemoryGraph) AddEdge(rubricID, remedyID int64, weight int) *MemoryGraph {
	g.edges = append(g.edges, domain.SourceEdge{RubricID: rubricID, RemedyID: remedyID, Weight: weight})
	return g
}

func (g *MemoryGraph) RubricByPath(ctx context.Context, fullPath string) (*domain.SourceRubric, error) {
	var best *domain.SourceRubric
	for _, r := range g.rubrics {
		if r.FullPath != fullPath {
			continue
		}
		if best == nil || r.ID < best.ID {
			r := r
			best = &r
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (g *MemoryGraph) RubricByID(ctx context.Context, id int64) (*domain.SourceRubric, error) {
	r, ok := g.rubrics[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (g *MemoryGraph) RemedyIDsForRubrics(ctx context.Context, rubricIDs []int64) ([]int64, error) {
	selected := idSet(rubricIDs)
	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for _, e := range g.edges {
		if _, ok := selected[e.RubricID]; !ok {
			continue
		}
		if _, dup := seen[e.RemedyID]; dup {
			continue
		}
		seen[e.RemedyID] = struct{}{}
		out = append(out, e.RemedyID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (g *MemoryGraph) RemediesByIDs(ctx context.Context, ids []int64) ([]domain.SourceRemedy, error) {
	out := make([]domain.SourceRemedy, 0, len(ids))
	for id := range idSet(ids) {
		if r, ok := g.remedies[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *MemoryGraph) EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]domain.SourceEdge, error) {
	selected := idSet(rubricIDs)
	out := make([]domain.SourceEdge, 0)
	for _, e := range g.edges {
		if _, ok := selected[e.RubricID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
