package golden

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/reperto-cdss-server/internal/domain"
)

// WarningKind names a hierarchy defect found while resolving ancestors.
type WarningKind string

const (
	WarningMissingParent WarningKind = "missing_parent"
	WarningCycle         WarningKind = "cycle"
)

// HierarchyWarning records a branch that was truncated during resolution.
type HierarchyWarning struct {
	Kind     WarningKind `json:"kind"`
	SourceID int64       `json:"source_id"`
	ParentID int64       `json:"parent_id"`
	FullPath string      `json:"full_path"`
}

func (w HierarchyWarning) String() string {
	return fmt.Sprintf("%s: rubric %d (%s) -> parent %d", w.Kind, w.SourceID, w.FullPath, w.ParentID)
}

// resolvedNode is a source rubric placed in the curated tree.
type resolvedNode struct {
	sourceID int64
	fullPath string
	parentID *int64 // nil for roots and truncated branches
	depth    int
}

// hierarchy is the arena of resolved nodes keyed by source id.
type hierarchy struct {
	nodes    map[int64]*resolvedNode
	warnings []HierarchyWarning
}

// resolveHierarchy walks up the parent chain from every start rubric with an
// explicit worklist. Each source rubric is fetched at most once. Depths are
// computed afterwards so they do not depend on traversal order.
func resolveHierarchy(ctx context.Context, src domain.SourceGraph, starts []domain.SourceRubric) (*hierarchy, error) {
	h := &hierarchy{nodes: make(map[int64]*resolvedNode)}
	visited := make(map[int64]struct{})

	worklist := make([]domain.SourceRubric, len(starts))
	copy(worklist, starts)

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if _, seen := visited[cur.ID]; seen {
			continue
		}
		visited[cur.ID] = struct{}{}

		node := &resolvedNode{sourceID: cur.ID, fullPath: cur.FullPath}
		h.nodes[cur.ID] = node

		if cur.ParentID == nil {
			continue
		}
		parentID := *cur.ParentID
		node.parentID = &parentID
		if _, seen := visited[parentID]; seen {
			continue
		}

		parent, err := src.RubricByID(ctx, parentID)
		if errors.Is(err, domain.ErrNotFound) {
			h.warnings = append(h.warnings, HierarchyWarning{
				Kind:     WarningMissingParent,
				SourceID: cur.ID,
				ParentID: parentID,
				FullPath: cur.FullPath,
			})
			node.parentID = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching parent %d of rubric %d: %w", parentID, cur.ID, err)
		}
		worklist = append(worklist, *parent)
	}

	h.computeDepths()
	return h, nil
}

// computeDepths assigns depth = parent depth + 1 without recursion. A cycle
// is broken at the node where it is detected, which becomes a root.
func (h *hierarchy) computeDepths() {
	const unknown = -1
	depth := make(map[int64]int, len(h.nodes))
	for id := range h.nodes {
		depth[id] = unknown
	}

	for _, id := range h.sortedIDs() {
		if depth[id] != unknown {
			continue
		}

		// Climb until a root or a node with a known depth.
		var chain []int64
		onChain := make(map[int64]struct{})
		base := 0
		cur := id
		for {
			if d := depth[cur]; d != unknown {
				base = d + 1
				break
			}
			if _, loop := onChain[cur]; loop {
				last := chain[len(chain)-1]
				n := h.nodes[last]
				h.warnings = append(h.warnings, HierarchyWarning{
					Kind:     WarningCycle,
					SourceID: n.sourceID,
					ParentID: *n.parentID,
					FullPath: n.fullPath,
				})
				n.parentID = nil
				chain = chain[:len(chain)-1]
				depth[last] = 0
				base = 1
				break
			}
			chain = append(chain, cur)
			onChain[cur] = struct{}{}

			n := h.nodes[cur]
			if n.parentID == nil {
				base = 0
				break
			}
			if _, ok := h.nodes[*n.parentID]; !ok {
				n.parentID = nil
				base = 0
				break
			}
			cur = *n.parentID
		}

		// chain runs child to ancestor; assign from the top down.
		for i := len(chain) - 1; i >= 0; i-- {
			depth[chain[i]] = base
			base++
		}
	}

	for id, n := range h.nodes {
		n.depth = depth[id]
	}
}

func (h *hierarchy) sortedIDs() []int64 {
	ids := make([]int64, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// inInsertOrder returns nodes by ascending depth, then source id.
func (h *hierarchy) inInsertOrder() []*resolvedNode {
	out := make([]*resolvedNode, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		return out[i].sourceID < out[j].sourceID
	})
	return out
}
