package vamana

import (
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/engineerr"
	"github.com/svsgo/engine/pkg/graph"
	"github.com/svsgo/engine/pkg/logging"
	"github.com/svsgo/engine/pkg/storage"
)

// Compact reclaims physical slots by renumbering internal indices to
// remove holes left by consolidated (now Empty) slots, per spec.md §3
// "compaction then renumbers internal indices to remove holes" and
// §4.9. Builds a fresh storage/graph pair at the new size, copies
// renumbered adjacency lists in, and updates the translator via
// RemapInternal for every surviving slot — compaction is the one
// operation that changes what an internal index means, so per spec.md
// §5 no search may be in flight concurrently with it; writeMu alone
// cannot guarantee that (it only excludes other writers), so callers
// coordinating compaction are expected to quiesce search themselves,
// the same caller responsibility the translator's single-writer
// discipline already assumes.
func (idx *Index) Compact() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	idx.stateMu.RLock()
	oldToNew := make(map[core.InternalIndex]core.InternalIndex)
	var newN int
	for i, st := range idx.status {
		if st == statusValid {
			oldToNew[core.InternalIndex(i)] = core.InternalIndex(newN)
			newN++
		}
	}
	oldLen := len(idx.status)
	idx.stateMu.RUnlock()

	newGraph := graph.New(idx.build.MaxDegree)
	newGraph.Grow(newN)
	newStatus := make([]slotStatus, newN)

	// A naive in-place copy would alias: reading old slot k after slot
	// k's data has already been overwritten by an earlier, lower new
	// index. Buffer every surviving vector first, then write once.
	if err := idx.compactBuffered(oldToNew, newN, newGraph, newStatus); err != nil {
		return err
	}

	logging.Info("vamana compact", "old_slots", oldLen, "new_slots", newN)
	return nil
}

// compactBuffered performs the actual renumbering via a fully buffered
// vector copy, so that overlapping old/new slot ranges never alias
// during the rewrite.
func (idx *Index) compactBuffered(oldToNew map[core.InternalIndex]core.InternalIndex, newN int, newGraph *graph.Graph, newStatus []slotStatus) error {
	buffered := make([][]float32, newN)
	for oldIdx, newIdx := range oldToNew {
		v := idx.store.Get(int(oldIdx))
		cp := make([]float32, len(v))
		copy(cp, v)
		buffered[newIdx] = cp
	}

	newStore := storage.NewBlockStore(idx.dim, 0)
	newStore.Resize(newN)
	for newIdx, vec := range buffered {
		if err := newStore.Set(newIdx, vec); err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "writing compacted slot", err)
		}
	}

	entryReplaced := core.InternalIndex(0)
	entryStillValid := false
	hasEntry, oldEntry := idx.entrySnapshot()

	// Surviving slots are visited in ascending old order: every new index
	// is at most its old one, so each RemapInternal target has already
	// been vacated by the slot that held it before.
	for o := 0; o < idx.graph.NNodes(); o++ {
		oldIdx := core.InternalIndex(o)
		newIdx, ok := oldToNew[oldIdx]
		if !ok {
			continue
		}
		oldNeighbors := idx.graph.Neighbors(oldIdx)
		remapped := make([]core.InternalIndex, 0, len(oldNeighbors))
		for _, n := range oldNeighbors {
			if nn, ok := oldToNew[n]; ok {
				remapped = append(remapped, nn)
			}
		}
		newGraph.Replace(newIdx, remapped)
		newStatus[newIdx] = statusValid

		if err := idx.trans.RemapInternal(oldIdx, newIdx); err != nil {
			// Only reachable if oldIdx was already stale, which the
			// Valid-slot scan above precludes.
			continue
		}
		if hasEntry && oldEntry == oldIdx {
			entryReplaced, entryStillValid = newIdx, true
		}
	}

	idx.stateMu.Lock()
	idx.store = newStore
	idx.graph = newGraph
	idx.status = newStatus
	if entryStillValid {
		idx.entry = entryReplaced
	}
	idx.stateMu.Unlock()
	return nil
}
