package vamana

import (
	"context"
	"math/rand"
	"sync"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engineerr"
	"github.com/svsgo/engine/pkg/graph"
	"github.com/svsgo/engine/pkg/logging"
	"github.com/svsgo/engine/pkg/parallel"
	"github.com/svsgo/engine/pkg/search"
	"github.com/svsgo/engine/pkg/storage"
	"github.com/svsgo/engine/pkg/translator"
)

// slotStatus mirrors spec.md §3's Vamana slot states: Valid, Deleted
// (soft-deleted, still reachable during traversal), Empty (reclaimed or
// never populated).
type slotStatus = search.SlotStatus

const (
	statusEmpty   = search.StatusEmpty
	statusValid   = search.StatusValid
	statusDeleted = search.StatusDeleted
)

// Index is the dynamic Vamana graph index of spec.md §4.7–§4.9: a
// storage backend, adjacency graph, id translator, and per-slot status
// array, following the teacher's HNSWIndex composition (pkg/index/hnsw.go)
// but with real α-pruned insertion, consolidation, and compaction
// instead of stubs.
//
// Locking follows spec.md §5's model rather than one coarse lock around
// every method: writeMu serializes Add/Remove/RemoveSelected/Consolidate/
// Compact against each other (the translator's single-writer discipline
// the spec describes), while stateMu is a narrow RWMutex guarding only
// the status slice and entry point — the small pieces of mutable state a
// search snapshots before running. graph, store, and trans are each
// internally synchronized, so a Search's traversal runs fully
// concurrently with an in-flight Add/Remove/Consolidate/Compact; the
// engine never holds a lock across the traversal itself.
type Index struct {
	writeMu sync.Mutex
	stateMu sync.RWMutex

	dim    int
	metric distance.Metric
	ad     distance.Adapted

	build  config.VamanaBuildParameters
	store  storage.Backend
	graph  *graph.Graph
	trans  *translator.Translator
	status []slotStatus

	entry    core.InternalIndex
	hasEntry bool

	pool *parallel.Pool
	rng  *rand.Rand
}

// New builds an empty dynamic Vamana index over dim-dimensional vectors
// under metric, with build parameters bp, backed by a block-allocated
// store (spec.md §4.3 — required for any index supporting insertion).
func New(dim int, metric distance.Metric, bp config.VamanaBuildParameters, workers int) (*Index, error) {
	if err := (config.BuildParameters{Vamana: &bp}).Validate(); err != nil {
		return nil, engineerr.Invalid("%v", err)
	}
	return &Index{
		dim:    dim,
		metric: metric,
		ad:     distance.Plain{Metric: metric},
		build:  bp,
		store:  storage.NewBlockStore(dim, 0),
		graph:  graph.New(bp.MaxDegree),
		trans:  translator.New(),
		pool:   parallel.New(workers),
		rng:    rand.New(rand.NewSource(1)),
	}, nil
}

// Len returns the number of registered slots.
func (idx *Index) Len() int { return idx.trans.Len() }

// HasID reports whether id is currently present (Valid).
func (idx *Index) HasID(id core.ExternalID) bool { return idx.trans.ContainsExternal(id) }

// GraphStats reports the total slot count (including holes) and the
// number still awaiting Consolidate, for the svs_graph_nodes_total /
// svs_graph_deleted_total gauges.
func (idx *Index) GraphStats() (nodes, deleted int) {
	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()
	for _, st := range idx.status {
		if st == statusDeleted {
			deleted++
		}
	}
	return len(idx.status), deleted
}

// statusOf reads a slot's status under stateMu, safe to call
// concurrently with a writer growing or mutating idx.status.
func (idx *Index) statusOf(i core.InternalIndex) slotStatus {
	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()
	return idx.status[i]
}

func (idx *Index) setStatus(i core.InternalIndex, st slotStatus) {
	idx.stateMu.Lock()
	idx.status[i] = st
	idx.stateMu.Unlock()
}

func (idx *Index) growStatus(st slotStatus) {
	idx.stateMu.Lock()
	idx.status = append(idx.status, st)
	idx.stateMu.Unlock()
}

// entrySnapshot returns the current entry point, safe to call
// concurrently with a writer replacing it.
func (idx *Index) entrySnapshot() (bool, core.InternalIndex) {
	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()
	return idx.hasEntry, idx.entry
}

func (idx *Index) setEntry(slot core.InternalIndex) {
	idx.stateMu.Lock()
	idx.entry, idx.hasEntry = slot, true
	idx.stateMu.Unlock()
}

func (idx *Index) clearEntry() {
	idx.stateMu.Lock()
	idx.hasEntry = false
	idx.stateMu.Unlock()
}

// accessor adapts the index's storage+status to search.Accessor and
// vamana.Accessor. Only used by callers holding writeMu (Add, Remove,
// Consolidate, Compact), where idx.store/idx.graph cannot change out
// from under it.
type accessor struct{ idx *Index }

func (a accessor) Vector(i core.InternalIndex) []float32 { return a.idx.store.Get(int(i)) }
func (a accessor) Status(i core.InternalIndex) slotStatus { return a.idx.statusOf(i) }

// storageSnapshot returns the index's current store and graph pointers
// under stateMu, so that a lock-free reader (Search, RangeSearch) never
// observes a torn read of those fields while Compact swaps them in.
func (idx *Index) storageSnapshot() (storage.Backend, *graph.Graph) {
	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()
	return idx.store, idx.graph
}

// snapshotAccessor is accessor's lock-free-search counterpart: it binds
// to a store pointer captured once via storageSnapshot instead of
// re-reading idx.store on every call.
type snapshotAccessor struct {
	idx   *Index
	store storage.Backend
}

func (a snapshotAccessor) Vector(i core.InternalIndex) []float32 { return a.store.Get(int(i)) }
func (a snapshotAccessor) Status(i core.InternalIndex) slotStatus { return a.idx.statusOf(i) }

func (idx *Index) greedyParams(sp config.VamanaSearchParameters) search.GreedyParams {
	sp = config.DefaultVamanaSearchParameters(sp)
	return search.GreedyParams{
		SearchWindowSize:     sp.SearchWindowSize,
		SearchBufferCapacity: sp.SearchBufferCapacity,
	}
}

// validateBatch checks dimensions and rejects duplicate or
// already-registered external ids before any mutation begins, so a
// batch either fully validates or nothing in it becomes visible —
// spec.md §5's "a batch insertion is atomic with respect to identifier
// registration: either all external ids in the batch are visible
// afterwards, or none are." Checking ContainsExternal here is a cheap
// fast-fail; Add re-checks it once more after acquiring writeMu, since
// a concurrent writer could register one of these ids between this call
// and the lock being taken.
func (idx *Index) validateBatch(vecs []core.Vector) error {
	seen := make(map[core.ExternalID]struct{}, len(vecs))
	for _, v := range vecs {
		if err := v.Validate(idx.dim); err != nil {
			return engineerr.Invalid("%v", err)
		}
		if _, dup := seen[v.ID]; dup {
			return engineerr.Invalid("duplicate id within batch: %d", v.ID)
		}
		seen[v.ID] = struct{}{}
		if idx.trans.ContainsExternal(v.ID) {
			return engineerr.Invalid("duplicate id on insert: %d", v.ID)
		}
	}
	return nil
}

// Add inserts a batch of vectors with caller-supplied external ids,
// per spec.md §4.8: greedy search from the entry point to collect
// candidates, α-prune to the adjacency list, then rewire back-edges
// into each chosen neighbor (re-pruning a neighbor whose list overflows
// max_degree — "the only source of back-edges", spec.md §4.8 step 3).
//
// The batch is split into a read-only search phase, fanned out across
// idx.pool via parallel.Pool.RunBatch (spec.md §5: "a batch of new
// vertices is parallelized across workers; each worker performs step
// 1–3 for its assigned vertices"), and a sequential commit phase that
// allocates slots, registers ids, and rewires edges one vector at a
// time. Phase one searches the graph as it stood before the batch, not
// as earlier batch members land, which is what makes it safe to run
// concurrently.
func (idx *Index) Add(vecs []core.Vector) error {
	if err := idx.validateBatch(vecs); err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	for _, v := range vecs {
		if idx.trans.ContainsExternal(v.ID) {
			return engineerr.Invalid("duplicate id on insert: %d", v.ID)
		}
	}
	if len(vecs) == 0 {
		return nil
	}

	acc := accessor{idx}
	hasEntry, entryPoint := idx.entrySnapshot()

	start := 0
	if !hasEntry {
		slot, err := idx.commitFirstVector(vecs[0])
		if err != nil {
			return err
		}
		logging.Trace("vamana insert", "external_id", vecs[0].ID, "internal", slot, "neighbors", 0)
		entryPoint = slot
		start = 1
	}
	rest := vecs[start:]
	if len(rest) == 0 {
		return nil
	}

	gp := idx.greedyParams(config.VamanaSearchParameters{SearchWindowSize: idx.build.ConstructionWindowSize})
	gp.SearchBufferCapacity = idx.build.MaxCandidatePoolSize

	cands := make([][]candidate, len(rest))
	err := idx.pool.RunBatch(context.Background(), len(rest), func(i int) error {
		resultBuf, visitedBuf := search.Greedy(entryPoint, rest[i].Embedding, idx.graph, acc, idx.ad, gp)
		pool := resultBuf
		if idx.build.UseFullSearchHistory {
			pool = visitedBuf
		}
		cands[i] = bufferToCandidates(pool, idx.dim)
		return nil
	})
	if err != nil {
		return err
	}

	for i, v := range rest {
		slot, err := idx.allocateSlot(v.Embedding)
		if err != nil {
			return err
		}
		if err := idx.trans.Insert([]core.ExternalID{v.ID}, []core.InternalIndex{slot}); err != nil {
			return err
		}
		idx.setStatus(slot, statusValid)

		chosen := RobustPrune(slot, cands[i], float32(idx.build.Alpha), idx.build.PruneTo, acc, idx.ad.Polarity(), idx.metric)
		idx.graph.Replace(slot, chosen)
		for _, u := range chosen {
			idx.addBackEdge(u, slot, acc)
		}
		logging.Trace("vamana insert", "external_id", v.ID, "internal", slot, "neighbors", len(chosen))
	}
	return nil
}

// commitFirstVector handles the one case Add's batched search can't
// cover: bootstrapping the entry point when the index is empty. There
// is nothing to search from yet, so this runs sequentially regardless
// of batch size.
func (idx *Index) commitFirstVector(v core.Vector) (core.InternalIndex, error) {
	slot, err := idx.allocateSlot(v.Embedding)
	if err != nil {
		return 0, err
	}
	if err := idx.trans.Insert([]core.ExternalID{v.ID}, []core.InternalIndex{slot}); err != nil {
		return 0, err
	}
	idx.setStatus(slot, statusValid)
	idx.setEntry(slot)
	return slot, nil
}

// addBackEdge appends slot as a neighbor of u, re-pruning u's adjacency
// list if it would exceed max_degree (spec.md §4.8 step 3).
func (idx *Index) addBackEdge(u, slot core.InternalIndex, acc accessor) {
	if idx.graph.Append(u, slot) {
		return
	}
	existing := idx.graph.Neighbors(u)
	cands := make([]candidate, 0, len(existing)+1)
	uVec := acc.Vector(u)
	for _, n := range existing {
		cands = append(cands, candidate{idx: n, dist: distance.Compute(idx.metric, uVec, acc.Vector(n))})
	}
	cands = append(cands, candidate{idx: slot, dist: distance.Compute(idx.metric, uVec, acc.Vector(slot))})
	pruned := RobustPrune(u, cands, float32(idx.build.Alpha), idx.build.PruneTo, acc, idx.ad.Polarity(), idx.metric)
	idx.graph.Replace(u, pruned)
}

// allocateSlot writes vec into a fresh slot, reusing an Empty slot if
// one exists (spec.md §3 "Lifecycle": "allocated, reusing an Empty slot
// if possible, else growing"). Only ever called while writeMu is held,
// so there is no writer-vs-writer race on the reuse scan; stateMu still
// guards the status slice against a concurrent reader.
func (idx *Index) allocateSlot(vec []float32) (core.InternalIndex, error) {
	idx.stateMu.RLock()
	reuse := -1
	for i, st := range idx.status {
		if st == statusEmpty {
			reuse = i
			break
		}
	}
	idx.stateMu.RUnlock()

	if reuse >= 0 {
		if err := idx.store.Set(reuse, vec); err != nil {
			return 0, engineerr.Wrap(engineerr.RuntimeError, "writing reused slot", err)
		}
		return core.InternalIndex(reuse), nil
	}

	slot, err := idx.store.Append(vec)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.RuntimeError, "appending slot", err)
	}
	idx.graph.Grow(slot + 1)
	idx.growStatus(statusEmpty)
	return core.InternalIndex(slot), nil
}

func bufferToCandidates(b *search.Buffer, dim int) []candidate {
	res := b.AllInternal()
	out := make([]candidate, len(res))
	for i, r := range res {
		out[i] = candidate{idx: r.Internal, dist: r.Distance}
	}
	return out
}

// Search performs k-NN search for each query in batch, per spec.md
// §4.6/§4.7. No lock is held across the traversal: it only takes a
// brief stateMu.RLock to snapshot the entry point up front and to
// resolve each result's status/external id, matching spec.md §5's "the
// engine does not hold a lock across search."
func (idx *Index) Search(queries [][]float32, k int, sp config.VamanaSearchParameters, predicate func(core.ExternalID) bool) ([][]core.Neighbor, error) {
	if k == 0 {
		return nil, engineerr.Invalid("k must be positive, got 0")
	}
	hasEntry, entryPoint := idx.entrySnapshot()
	if !hasEntry {
		return nil, engineerr.NotInit("search called before any vectors were added")
	}
	for _, q := range queries {
		if len(q) != idx.dim {
			return nil, engineerr.Invalid("dimension mismatch: got %d, want %d", len(q), idx.dim)
		}
	}

	store, g := idx.storageSnapshot()
	acc := snapshotAccessor{idx: idx, store: store}
	gp := idx.greedyParams(sp)
	out := make([][]core.Neighbor, len(queries))

	idx.pool.RunStatic(len(queries), func(start, end int) {
		for qi := start; qi < end; qi++ {
			resultBuf, _ := search.Greedy(entryPoint, queries[qi], g, acc, idx.ad, gp)
			res := resultBuf.ResultsInternal(k * 4)
			out[qi] = idx.resolveAndFilter(res, k, predicate)
		}
	})
	return out, nil
}

func (idx *Index) resolveAndFilter(res []search.InternalResult, k int, predicate func(core.ExternalID) bool) []core.Neighbor {
	neighbors := make([]core.Neighbor, 0, k)
	for _, r := range res {
		if idx.statusOf(r.Internal) != statusValid {
			continue
		}
		ext, ok := idx.trans.GetExternal(r.Internal)
		if !ok {
			continue
		}
		if predicate != nil && !predicate(ext) {
			continue
		}
		neighbors = append(neighbors, core.Neighbor{ID: ext, Distance: r.Distance})
		if len(neighbors) == k {
			break
		}
	}
	return neighbors
}

func (idx *Index) resolveAll(res []search.InternalResult, predicate func(core.ExternalID) bool) []core.Neighbor {
	var neighbors []core.Neighbor
	for _, r := range res {
		if idx.statusOf(r.Internal) != statusValid {
			continue
		}
		ext, ok := idx.trans.GetExternal(r.Internal)
		if !ok {
			continue
		}
		if predicate != nil && !predicate(ext) {
			continue
		}
		neighbors = append(neighbors, core.Neighbor{ID: ext, Distance: r.Distance})
	}
	return neighbors
}

// RangeSearch returns every id within radius of each query, per spec.md
// §1's range-search query shape. Uses search.GreedyRange, which keeps
// expanding the frontier until the closest unexpanded candidate exceeds
// radius, rather than reusing the fixed-size beam Greedy maintains for
// k-NN search — see spec.md §9's explicit completeness requirement.
func (idx *Index) RangeSearch(queries [][]float32, radius float32, sp config.VamanaSearchParameters, predicate func(core.ExternalID) bool) ([][]core.Neighbor, error) {
	if radius < 0 {
		return nil, engineerr.Invalid("radius must be non-negative, got %f", radius)
	}
	hasEntry, entryPoint := idx.entrySnapshot()
	if !hasEntry {
		return nil, engineerr.NotInit("range_search called before any vectors were added")
	}

	store, g := idx.storageSnapshot()
	acc := snapshotAccessor{idx: idx, store: store}
	out := make([][]core.Neighbor, len(queries))

	idx.pool.RunStatic(len(queries), func(start, end int) {
		for qi := start; qi < end; qi++ {
			visitedBuf := search.GreedyRange(entryPoint, queries[qi], radius, g, acc, idx.ad)
			out[qi] = idx.resolveAll(visitedBuf.AllInternal(), predicate)
		}
	})
	return out, nil
}

// Remove soft-deletes a single external id: the slot transitions to
// Deleted (still reachable during traversal) and the external id is
// unregistered immediately (spec.md §3 "Lifecycle").
func (idx *Index) Remove(id core.ExternalID) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	return idx.removeLocked(id)
}

func (idx *Index) removeLocked(id core.ExternalID) error {
	slot, ok := idx.trans.GetInternal(id)
	if !ok {
		return engineerr.Invalid("delete: absent id %d", id)
	}
	if err := idx.trans.DeleteExternal([]core.ExternalID{id}); err != nil {
		return err
	}
	idx.setStatus(slot, statusDeleted)
	hasEntry, entry := idx.entrySnapshot()
	if hasEntry && entry == slot {
		idx.replaceEntryPoint()
	}
	return nil
}

// RemoveSelected soft-deletes every currently-Valid id for which
// predicate returns true.
func (idx *Index) RemoveSelected(predicate func(core.ExternalID) bool) (int, error) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	var removed int
	for _, ext := range idx.trans.Externals() {
		if predicate(ext) {
			if err := idx.removeLocked(ext); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// replaceEntryPoint re-selects the entry point via approximate medoid
// sampling when the current one is deleted, per SPEC_FULL's
// supplemented "approximate medoid entry-point selection" feature,
// grounded on original_source's dynamic_index.h compute_entry_point.
// Only ever called while writeMu is held (from removeLocked), so the
// live-slot scan and the final entry/hasEntry write only need to
// exclude a concurrent reader, not another writer.
func (idx *Index) replaceEntryPoint() {
	idx.stateMu.RLock()
	var live []core.InternalIndex
	for i, st := range idx.status {
		if st == statusValid {
			live = append(live, core.InternalIndex(i))
		}
	}
	idx.stateMu.RUnlock()

	if len(live) == 0 {
		idx.clearEntry()
		return
	}
	sampleN := len(live)
	if sampleN > 100 {
		sampleN = 100
	}
	idx.rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	sample := live[:sampleN]

	mean := make([]float32, idx.dim)
	for _, s := range sample {
		v := idx.store.Get(int(s))
		for d := 0; d < idx.dim; d++ {
			mean[d] += v[d]
		}
	}
	for d := range mean {
		mean[d] /= float32(sampleN)
	}

	best := sample[0]
	bestDist := distance.Compute(idx.metric, mean, idx.store.Get(int(best)))
	for _, s := range sample[1:] {
		d := distance.Compute(idx.metric, mean, idx.store.Get(int(s)))
		if distance.Closer(idx.ad.Polarity(), d, bestDist) {
			best, bestDist = s, d
		}
	}
	idx.setEntry(best)
}

// Externals returns every currently present (Valid) external id, in
// no particular order.
func (idx *Index) Externals() []core.ExternalID { return idx.trans.Externals() }

// VectorOf returns the stored embedding for id, or nil if absent.
func (idx *Index) VectorOf(id core.ExternalID) []float32 {
	slot, ok := idx.trans.GetInternal(id)
	if !ok {
		return nil
	}
	store, _ := idx.storageSnapshot()
	v := store.Get(int(slot))
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
