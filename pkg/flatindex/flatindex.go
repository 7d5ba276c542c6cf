// Package flatindex implements the brute-force exhaustive index of
// spec.md §4.11: a scan over every valid slot, used as ground truth and
// for small corpora. Grounded on the teacher's MemoryStorage
// (pkg/storage/memory.go) for the RWMutex-guarded slot-map shape, with
// the scan itself tiled across a worker pool the way
// pkg/parallel.Pool.RunStatic partitions any other batch operation in
// this module.
package flatindex

import (
	"sort"
	"sync"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engineerr"
	"github.com/svsgo/engine/pkg/parallel"
	"github.com/svsgo/engine/pkg/storage"
	"github.com/svsgo/engine/pkg/translator"
)

// Index is the exhaustive flat index.
type Index struct {
	mu sync.RWMutex

	dim    int
	metric distance.Metric

	store  storage.Backend
	trans  *translator.Translator
	status []bool // true = Valid, false = Empty

	pool *parallel.Pool
}

// New builds an empty flat index over dim-dimensional vectors.
func New(dim int, metric distance.Metric, workers int) *Index {
	return &Index{
		dim:    dim,
		metric: metric,
		store:  storage.NewBlockStore(dim, 0),
		trans:  translator.New(),
		pool:   parallel.New(workers),
	}
}

// Len returns the number of Valid slots.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.trans.Len()
}

// HasID reports whether id is currently present.
func (idx *Index) HasID(id core.ExternalID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.trans.ContainsExternal(id)
}

// Add appends vecs, all-or-nothing on duplicate external ids.
func (idx *Index) Add(vecs []core.Vector) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

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
	for _, v := range vecs {
		var slot int
		reused := false
		for i, ok := range idx.status {
			if !ok {
				slot = i
				reused = true
				break
			}
		}
		if reused {
			if err := idx.store.Set(slot, v.Embedding); err != nil {
				return engineerr.Wrap(engineerr.RuntimeError, "writing reused slot", err)
			}
			idx.status[slot] = true
		} else {
			s, err := idx.store.Append(v.Embedding)
			if err != nil {
				return engineerr.Wrap(engineerr.RuntimeError, "appending slot", err)
			}
			slot = s
			idx.status = append(idx.status, true)
		}
		if err := idx.trans.Insert([]core.ExternalID{v.ID}, []core.InternalIndex{core.InternalIndex(slot)}); err != nil {
			return err
		}
	}
	return nil
}

// Search performs exhaustive k-NN search, tiling the query batch across
// the worker pool (spec.md §4.11: "brute-force scan over all valid
// slots"); each worker owns a contiguous range of queries and scans the
// full corpus for each.
func (idx *Index) Search(queries [][]float32, k int, predicate func(core.ExternalID) bool) ([][]core.Neighbor, error) {
	if k == 0 {
		return nil, engineerr.Invalid("k must be positive, got 0")
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, q := range queries {
		if len(q) != idx.dim {
			return nil, engineerr.Invalid("dimension mismatch: got %d, want %d", len(q), idx.dim)
		}
	}
	pol := distance.PolarityOf(idx.metric)
	out := make([][]core.Neighbor, len(queries))

	idx.pool.RunStatic(len(queries), func(start, end int) {
		for qi := start; qi < end; qi++ {
			type hit struct {
				slot core.InternalIndex
				dist float32
			}
			var hits []hit
			for s, valid := range idx.status {
				if !valid {
					continue
				}
				d := distance.Compute(idx.metric, queries[qi], idx.store.Get(s))
				hits = append(hits, hit{slot: core.InternalIndex(s), dist: d})
			}
			sort.Slice(hits, func(i, j int) bool { return distance.Closer(pol, hits[i].dist, hits[j].dist) })

			neighbors := make([]core.Neighbor, 0, k)
			for _, h := range hits {
				ext, ok := idx.trans.GetExternal(h.slot)
				if !ok {
					continue
				}
				if predicate != nil && !predicate(ext) {
					continue
				}
				neighbors = append(neighbors, core.Neighbor{ID: ext, Distance: h.dist})
				if len(neighbors) == k {
					break
				}
			}
			out[qi] = neighbors
		}
	})
	return out, nil
}

// RangeSearch returns every valid id within radius of each query.
func (idx *Index) RangeSearch(queries [][]float32, radius float32, predicate func(core.ExternalID) bool) ([][]core.Neighbor, error) {
	if radius < 0 {
		return nil, engineerr.Invalid("radius must be non-negative, got %f", radius)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pol := distance.PolarityOf(idx.metric)
	out := make([][]core.Neighbor, len(queries))

	idx.pool.RunStatic(len(queries), func(start, end int) {
		for qi := start; qi < end; qi++ {
			var neighbors []core.Neighbor
			for s, valid := range idx.status {
				if !valid {
					continue
				}
				d := distance.Compute(idx.metric, queries[qi], idx.store.Get(s))
				if !(distance.Closer(pol, d, radius) || d == radius) {
					continue
				}
				ext, ok := idx.trans.GetExternal(core.InternalIndex(s))
				if !ok {
					continue
				}
				if predicate != nil && !predicate(ext) {
					continue
				}
				neighbors = append(neighbors, core.Neighbor{ID: ext, Distance: d})
			}
			out[qi] = neighbors
		}
	})
	return out, nil
}

// Remove deletes a single external id.
func (idx *Index) Remove(id core.ExternalID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
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
	idx.status[slot] = false
	return nil
}

// RemoveSelected deletes every currently-present id for which predicate
// returns true.
func (idx *Index) RemoveSelected(predicate func(core.ExternalID) bool) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
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

// Compact renumbers internal indices to remove holes left by deletion.
func (idx *Index) Compact() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	newStore := storage.NewBlockStore(idx.dim, 0)
	newStatus := make([]bool, 0, len(idx.status))
	for i, valid := range idx.status {
		if !valid {
			continue
		}
		newIdx, err := newStore.Append(idx.store.Get(i))
		if err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "compacting flat index", err)
		}
		if err := idx.trans.RemapInternal(core.InternalIndex(i), core.InternalIndex(newIdx)); err != nil {
			return err
		}
		newStatus = append(newStatus, true)
	}
	idx.store = newStore
	idx.status = newStatus
	return nil
}

// Externals returns every currently present external id, in no
// particular order.
func (idx *Index) Externals() []core.ExternalID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.trans.Externals()
}

// VectorOf returns the stored embedding for id, or nil if absent.
func (idx *Index) VectorOf(id core.ExternalID) []float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	slot, ok := idx.trans.GetInternal(id)
	if !ok {
		return nil
	}
	v := idx.store.Get(int(slot))
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
