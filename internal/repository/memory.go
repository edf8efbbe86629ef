package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/reperto-cdss-server/internal/domain"
)

// MemoryStore is an in-process Store. Rows keep insertion order, which plays
// the role of the primary key order of the SQL stores.
type MemoryStore struct {
	mu       sync.RWMutex
	rubrics  []domain.RubricNode
	remedies []domain.RemedyNode
	edges    []domain.RubricRemedyEdge
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) allocID() int64 {
	m.nextID++
	return m.nextID
}

// MatchRubrics returns rubrics whose lower-cased full path contains any term.
func (m *MemoryStore) MatchRubrics(ctx context.Context, terms []string, limit int) ([]domain.RubricNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.RubricNode, 0)
	for _, r := range m.rubrics {
		if len(out) >= limit {
			break
		}
		path := strings.ToLower(r.FullPath)
		for _, term := range terms {
			if strings.Contains(path, strings.ToLower(term)) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

// EdgesForRubrics returns graded edges in insertion order.
func (m *MemoryStore) EdgesForRubrics(ctx context.Context, rubricIDs []int64) ([]domain.GradedEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	selected := make(map[int64]struct{}, len(rubricIDs))
	for _, id := range rubricIDs {
		selected[id] = struct{}{}
	}
	remedies := make(map[int64]domain.RemedyNode, len(m.remedies))
	for _, r := range m.remedies {
		remedies[r.ID] = r
	}

	out := make([]domain.GradedEdge, 0)
	for _, e := range m.edges {
		if _, ok := selected[e.RubricID]; !ok {
			continue
		}
		rem := remedies[e.RemedyID]
		out = append(out, domain.GradedEdge{
			RubricID:  e.RubricID,
			RemedyID:  e.RemedyID,
			Grade:     e.Grade,
			ShortName: rem.ShortName,
			LongName:  rem.LongName,
		})
	}
	return out, nil
}

// RubricsByIDs returns the rubrics with the given ids.
func (m *MemoryStore) RubricsByIDs(ctx context.Context, ids []int64) ([]domain.RubricNode, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return m.filter(func(r domain.RubricNode) bool {
		_, ok := want[r.ID]
		return ok
	}), nil
}

// RubricsByPaths returns the rubrics with the given exact full paths.
func (m *MemoryStore) RubricsByPaths(ctx context.Context, paths []string) ([]domain.RubricNode, error) {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	return m.filter(func(r domain.RubricNode) bool {
		_, ok := want[r.FullPath]
		return ok
	}), nil
}

// Chapters returns the distinct chapters, sorted.
func (m *MemoryStore) Chapters(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range m.rubrics {
		if _, ok := seen[r.Chapter]; ok {
			continue
		}
		seen[r.Chapter] = struct{}{}
		out = append(out, r.Chapter)
	}
	sort.Strings(out)
	return out, nil
}

// RubricsByChapter returns a chapter's rubrics ordered by depth then full path.
func (m *MemoryStore) RubricsByChapter(ctx context.Context, chapter string) ([]domain.RubricNode, error) {
	out := m.filter(func(r domain.RubricNode) bool { return r.Chapter == chapter })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].FullPath < out[j].FullPath
	})
	return out, nil
}

func (m *MemoryStore) filter(keep func(domain.RubricNode) bool) []domain.RubricNode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.RubricNode, 0)
	for _, r := range m.rubrics {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// RubricIDBySourceID looks up a curated rubric by its source id.
func (m *MemoryStore) RubricIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rubrics {
		if r.SourceID == sourceID {
			return r.ID, true, nil
		}
	}
	return 0, false, nil
}

// InsertRubric stores a rubric and returns its new id.
func (m *MemoryStore) InsertRubric(ctx context.Context, rubric domain.RubricNode) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rubrics {
		if r.SourceID == rubric.SourceID || r.FullPath == rubric.FullPath {
			return 0, domain.NewValidationError("rubric", "duplicate source id or full path", rubric.FullPath)
		}
	}
	rubric.ID = m.allocID()
	m.rubrics = append(m.rubrics, rubric)
	return rubric.ID, nil
}

// RemedyIDBySourceID looks up a curated remedy by its source id.
func (m *MemoryStore) RemedyIDBySourceID(ctx context.Context, sourceID int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.remedies {
		if r.SourceID == sourceID {
			return r.ID, true, nil
		}
	}
	return 0, false, nil
}

// InsertRemedy stores a remedy and returns its new id.
func (m *MemoryStore) InsertRemedy(ctx context.Context, remedy domain.RemedyNode) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.remedies {
		if r.SourceID == remedy.SourceID {
			return 0, domain.NewValidationError("remedy", "duplicate source id", remedy.SourceID)
		}
	}
	remedy.ID = m.allocID()
	m.remedies = append(m.remedies, remedy)
	return remedy.ID, nil
}

// EdgeExists reports whether the (rubric, remedy) pair is already linked.
func (m *MemoryStore) EdgeExists(ctx context.Context, rubricID, remedyID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.edges {
		if e.RubricID == rubricID && e.RemedyID == remedyID {
			return true, nil
		}
	}
	return false, nil
}

// InsertEdge stores a rubric-remedy edge.
func (m *MemoryStore) InsertEdge(ctx context.Context, edge domain.RubricRemedyEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.edges {
		if e.RubricID == edge.RubricID && e.RemedyID == edge.RemedyID {
			return domain.NewValidationError("edge", "duplicate rubric/remedy pair", edge)
		}
	}
	if edge.Grade <= 0 {
		return domain.NewValidationError("grade", "must be positive", edge.Grade)
	}
	edge.ID = m.allocID()
	m.edges = append(m.edges, edge)
	return nil
}

// Counts returns the number of rubrics, remedies and edges.
func (m *MemoryStore) Counts() (rubrics, remedies, edges int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rubrics), len(m.remedies), len(m.edges)
}
