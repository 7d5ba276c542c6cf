package ivfindex

import (
	"math"
	"sort"
	"sync"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engineerr"
	"github.com/svsgo/engine/pkg/logging"
	"github.com/svsgo/engine/pkg/parallel"
	"github.com/svsgo/engine/pkg/storage"
	"github.com/svsgo/engine/pkg/translator"
)

// cluster is spec.md §3's "Cluster (IVF)": a centroid vector plus
// contents, where contents is a parallel pair of arrays — a
// block-allocated data store and a vector of internal indices naming
// members. member slots are IDs into the cluster's own local storage,
// distinct from the index-wide internal index space the translator
// exposes; globalID records the index-wide internal index each member
// corresponds to, mirroring spec.md's "union of cluster contents
// equals the valid internal indices" invariant. centroid is fixed at
// construction and never mutated afterward, so reading it needs no
// lock; mu guards store/globalID/empty, letting Search's scan run
// concurrently with every *other* cluster's Add/Remove/Compact.
type cluster struct {
	mu       sync.RWMutex
	centroid []float32
	store    *storage.BlockStore
	globalID []core.InternalIndex
	empty    []int // reclaimed local slots, reused on next insert
}

// Index is the dynamic IVF index of spec.md §4.10: a centroid
// collection, per-cluster blocked storage, and a translator shared
// across clusters mapping external ids to a single global internal
// index space.
//
// writeMu serializes Add/Remove/RemoveSelected/Compact against each
// other (spec.md §5's single-writer discipline); locMu guards the
// location map and the nextGlobal counter, the only top-level state a
// concurrent Search never touches but VectorOf/Add/Remove/Compact do.
// clusters itself is a fixed-size slice set once in New and never
// grown or reallocated, so Search needs no lock to range over it.
type Index struct {
	writeMu sync.Mutex
	locMu   sync.RWMutex

	dim    int
	metric distance.Metric
	build  config.IVFBuildParameters

	clusters []*cluster
	trans    *translator.Translator
	// location maps a global internal index to (cluster, local slot).
	location map[core.InternalIndex]memberLoc

	nextGlobal core.InternalIndex

	outer *parallel.Pool
	inner *parallel.Pool
}

type memberLoc struct {
	cluster int
	local   int
}

// New builds an IVF index by training centroids over samples (typically
// a TrainingFraction-sized prefix of the first build batch, per
// spec.md §6) and allocating one empty cluster per centroid.
func New(dim int, metric distance.Metric, samples [][]float32, bp config.IVFBuildParameters, outerWorkers, innerWorkers int) (*Index, error) {
	if err := (config.BuildParameters{IVF: &bp}).Validate(); err != nil {
		return nil, engineerr.Invalid("%v", err)
	}
	trainN := int(float64(len(samples)) * bp.TrainingFraction)
	if trainN <= 0 || trainN > len(samples) {
		trainN = len(samples)
	}
	centroids := TrainCentroids(samples[:trainN], dim, bp, metric)
	if len(centroids) == 0 {
		return nil, engineerr.Invalid("not enough training samples to form any centroid")
	}

	clusters := make([]*cluster, len(centroids))
	for i, c := range centroids {
		clusters[i] = &cluster{centroid: c, store: storage.NewBlockStore(dim, 0)}
	}

	return &Index{
		dim:      dim,
		metric:   metric,
		build:    bp,
		clusters: clusters,
		trans:    translator.New(),
		location: make(map[core.InternalIndex]memberLoc),
		outer:    parallel.New(outerWorkers),
		inner:    parallel.New(innerWorkers),
	}, nil
}

// Len returns the number of Valid (member) slots across all clusters.
func (idx *Index) Len() int { return idx.trans.Len() }

// HasID reports whether id is currently present.
func (idx *Index) HasID(id core.ExternalID) bool { return idx.trans.ContainsExternal(id) }

// ClusterStats reports the cluster count and the average member count
// across clusters, for the svs_ivf_clusters_total /
// svs_ivf_cluster_size_avg gauges.
func (idx *Index) ClusterStats() (clusters int, avgSize float64) {
	total := 0
	for _, cl := range idx.clusters {
		cl.mu.RLock()
		total += cl.store.Len() - len(cl.empty)
		cl.mu.RUnlock()
	}
	clusters = len(idx.clusters)
	if clusters == 0 {
		return 0, 0
	}
	return clusters, float64(total) / float64(clusters)
}

func (idx *Index) nearestClusters(v []float32, n int) []int {
	pol := distance.PolarityOf(idx.metric)
	type scored struct {
		c int
		d float32
	}
	scores := make([]scored, len(idx.clusters))
	for i, cl := range idx.clusters {
		scores[i] = scored{i, distance.Compute(idx.metric, v, cl.centroid)}
	}
	sort.Slice(scores, func(i, j int) bool { return distance.Closer(pol, scores[i].d, scores[j].d) })
	if n > len(scores) {
		n = len(scores)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = scores[i].c
	}
	return out
}

// Add inserts vecs, each assigned to its nearest centroid (spec.md
// §4.10's "insert assigns to nearest cluster"), all-or-nothing on
// duplicate external ids.
//
// Centroid assignment (read-only against the fixed centroid set) is
// fanned out across idx.outer before any mutation; the actual
// cluster/translator writes commit sequentially under writeMu, each
// briefly taking the target cluster's own lock so a concurrent Search
// scanning an *untouched* cluster is never blocked.
func (idx *Index) Add(vecs []core.Vector) error {
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

	targets := make([]int, len(vecs))
	idx.outer.RunStatic(len(vecs), func(start, end int) {
		for i := start; i < end; i++ {
			targets[i] = idx.nearestClusters(vecs[i].Embedding, 1)[0]
		}
	})

	for i, v := range vecs {
		cidx := targets[i]
		cl := idx.clusters[cidx]

		cl.mu.Lock()
		var local int
		if n := len(cl.empty); n > 0 {
			local = cl.empty[n-1]
			cl.empty = cl.empty[:n-1]
			if err := cl.store.Set(local, v.Embedding); err != nil {
				cl.mu.Unlock()
				return engineerr.Wrap(engineerr.RuntimeError, "writing reused cluster slot", err)
			}
		} else {
			l, err := cl.store.Append(v.Embedding)
			if err != nil {
				cl.mu.Unlock()
				return engineerr.Wrap(engineerr.RuntimeError, "appending cluster slot", err)
			}
			local = l
			cl.globalID = append(cl.globalID, 0)
		}

		idx.locMu.Lock()
		global := idx.nextGlobal
		idx.nextGlobal++
		idx.locMu.Unlock()

		cl.globalID[local] = global
		cl.mu.Unlock()

		if err := idx.trans.Insert([]core.ExternalID{v.ID}, []core.InternalIndex{global}); err != nil {
			return err
		}
		idx.locMu.Lock()
		idx.location[global] = memberLoc{cluster: cidx, local: local}
		idx.locMu.Unlock()
	}
	return nil
}

// Search performs k-NN search, per spec.md §4.10: per query, probe the
// n_probes nearest centroids (outer pool over queries, inner pool over
// probed clusters), scan each probed cluster skipping reclaimed slots,
// maintain a size-(k*k_reorder) buffer, then trim to k. Holds no
// top-level lock: each probed cluster's own RLock is enough to make
// the scan safe alongside a concurrent Add/Remove/Compact touching a
// different cluster.
func (idx *Index) Search(queries [][]float32, k int, sp config.IVFSearchParameters, predicate func(core.ExternalID) bool) ([][]core.Neighbor, error) {
	if k == 0 {
		return nil, engineerr.Invalid("k must be positive, got 0")
	}
	for _, q := range queries {
		if len(q) != idx.dim {
			return nil, engineerr.Invalid("dimension mismatch: got %d, want %d", len(q), idx.dim)
		}
	}
	sp = config.DefaultIVFSearchParameters(sp)
	pol := distance.PolarityOf(idx.metric)
	overshoot := int(math.Ceil(float64(k) * sp.KReorder))
	if overshoot < k {
		overshoot = k
	}

	out := make([][]core.Neighbor, len(queries))
	idx.outer.RunStatic(len(queries), func(start, end int) {
		for qi := start; qi < end; qi++ {
			probe := idx.nearestClusters(queries[qi], sp.NProbes)
			type hit struct {
				global core.InternalIndex
				dist   float32
			}
			var mu sync.Mutex
			var hits []hit

			idx.inner.RunStatic(len(probe), func(ps, pe int) {
				var local []hit
				for pi := ps; pi < pe; pi++ {
					cl := idx.clusters[probe[pi]]
					cl.mu.RLock()
					for localIdx := 0; localIdx < cl.store.Len(); localIdx++ {
						if isReclaimed(cl, localIdx) {
							continue
						}
						d := distance.Compute(idx.metric, queries[qi], cl.store.Get(localIdx))
						local = append(local, hit{global: cl.globalID[localIdx], dist: d})
					}
					cl.mu.RUnlock()
				}
				mu.Lock()
				hits = append(hits, local...)
				mu.Unlock()
			})

			sort.Slice(hits, func(i, j int) bool { return distance.Closer(pol, hits[i].dist, hits[j].dist) })
			if len(hits) > overshoot {
				hits = hits[:overshoot]
			}

			neighbors := make([]core.Neighbor, 0, k)
			for _, h := range hits {
				ext, ok := idx.trans.GetExternal(h.global)
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

func isReclaimed(cl *cluster, local int) bool {
	for _, e := range cl.empty {
		if e == local {
			return true
		}
	}
	return false
}

// Remove deletes a single external id: its cluster slot is reclaimed
// (marked Empty) and the external id is unregistered immediately
// (spec.md §3 "Lifecycle"; IVF has no Deleted intermediate state).
func (idx *Index) Remove(id core.ExternalID) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	return idx.removeLocked(id)
}

func (idx *Index) removeLocked(id core.ExternalID) error {
	global, ok := idx.trans.GetInternal(id)
	if !ok {
		return engineerr.Invalid("delete: absent id %d", id)
	}
	idx.locMu.RLock()
	loc, ok := idx.location[global]
	idx.locMu.RUnlock()
	if !ok {
		return engineerr.Invalid("delete: no cluster location for internal index %d", global)
	}
	if err := idx.trans.DeleteExternal([]core.ExternalID{id}); err != nil {
		return err
	}
	cl := idx.clusters[loc.cluster]
	cl.mu.Lock()
	cl.empty = append(cl.empty, loc.local)
	cl.mu.Unlock()
	idx.locMu.Lock()
	delete(idx.location, global)
	idx.locMu.Unlock()
	return nil
}

// RemoveSelected deletes every currently-present id for which predicate
// returns true.
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

// Compact reclaims space in every cluster's block store by
// renumbering its local slots to remove reclaimed holes, per spec.md
// §3/§4.10. Global internal indices and external ids are unaffected:
// only the (cluster, local) mapping changes.
func (idx *Index) Compact() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	for ci, cl := range idx.clusters {
		cl.mu.Lock()
		newStore := storage.NewBlockStore(idx.dim, 0)
		var newGlobalIDs []core.InternalIndex
		for local := 0; local < cl.store.Len(); local++ {
			if isReclaimed(cl, local) {
				continue
			}
			newLocal, err := newStore.Append(cl.store.Get(local))
			if err != nil {
				cl.mu.Unlock()
				return engineerr.Wrap(engineerr.RuntimeError, "compacting cluster", err)
			}
			newGlobalIDs = append(newGlobalIDs, cl.globalID[local])
			idx.locMu.Lock()
			idx.location[cl.globalID[local]] = memberLoc{cluster: ci, local: newLocal}
			idx.locMu.Unlock()
		}
		cl.store = newStore
		cl.globalID = newGlobalIDs
		cl.empty = nil
		cl.mu.Unlock()
	}

	logging.Info("ivf compact", "clusters", len(idx.clusters))
	return nil
}

// Externals returns every currently present external id, in no
// particular order.
func (idx *Index) Externals() []core.ExternalID { return idx.trans.Externals() }

// VectorOf returns the stored embedding for id, or nil if absent.
func (idx *Index) VectorOf(id core.ExternalID) []float32 {
	global, ok := idx.trans.GetInternal(id)
	if !ok {
		return nil
	}
	idx.locMu.RLock()
	loc, ok := idx.location[global]
	idx.locMu.RUnlock()
	if !ok {
		return nil
	}
	cl := idx.clusters[loc.cluster]
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	v := cl.store.Get(loc.local)
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
