// Package engine is the top-level facade of spec.md §6: a stable,
// handle-based surface in front of the Flat, Vamana, and IVF index
// kinds, with save/load, metrics, and structured logging wired through
// every call. Grounded on the teacher's VJVectorNode
// (pkg/node/vjvector_node.go) for its lifecycle and health-reporting
// shape, trimmed of the embedding/RAG/auth/clustering concerns that
// have no home in a pure ANN engine — those surface instead through
// pkg/cluster for shard coordination only.
package engine

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/engineerr"
	"github.com/svsgo/engine/pkg/flatindex"
	"github.com/svsgo/engine/pkg/ivfindex"
	"github.com/svsgo/engine/pkg/logging"
	"github.com/svsgo/engine/pkg/metrics"
	"github.com/svsgo/engine/pkg/storage"
	"github.com/svsgo/engine/pkg/vamana"
)

// Kind identifies which index implementation a handle wraps.
type Kind int

const (
	KindFlat Kind = iota
	KindVamanaDynamic
	KindIVFDynamic
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindVamanaDynamic:
		return "vamana_dynamic"
	case KindIVFDynamic:
		return "ivf_dynamic"
	default:
		return "unknown"
	}
}

// Index is a handle over one backing ANN index. It is the Go
// equivalent of spec.md §6's opaque index handle: every method maps
// 1:1 onto a facade operation, recording metrics and log lines around
// the call the way VJVectorNode records service health around its
// calls.
//
// writeMu serializes the mutating facade operations (Add, Remove,
// RemoveSelected, Consolidate, Compact) against each other, the same
// single-writer discipline pkg/vamana and pkg/ivfindex enforce one
// layer down with their own writeMu. Search and RangeSearch take no
// lock here at all: the backing index kinds already guard their own
// internal state for concurrent readers (pkg/vamana and pkg/ivfindex's
// stateMu/locMu, pkg/translator's own mutex), and re-serializing reads
// against writes at the facade would silently undo that work, which is
// exactly what spec.md §5's "the engine does not hold a lock across
// search" rules out.
type Index struct {
	writeMu sync.Mutex

	kind    Kind
	dim     int
	metric  distance.Metric
	storage storage.Kind

	flat   *flatindex.Index
	vamana *vamana.Index
	ivf    *ivfindex.Index

	vamanaSearch config.VamanaSearchParameters
	ivfSearch    config.IVFSearchParameters

	metrics *metrics.Metrics
	workers config.WorkerConfig
}

// BuildOptions configures Build. Seeds is required for IVF (training
// requires an initial sample); it may be nil for Flat and Vamana.
type BuildOptions struct {
	Dim          int
	Metric       distance.Metric
	StorageKind  storage.Kind
	Workers      config.WorkerConfig
	VamanaBuild  config.VamanaBuildParameters
	VamanaSearch config.VamanaSearchParameters
	IVFBuild     config.IVFBuildParameters
	IVFSearch    config.IVFSearchParameters
	Seeds        []core.Vector
	Metrics      *metrics.Metrics
}

// Build creates an index handle of the requested kind, per spec.md §6's
// `build(out_handle, dim, metric, storage_kind, build_params,
// default_search_params)`, and inserts opts.Seeds into it (for IVF,
// after training the centroids on them); with no seeds, Flat and Vamana
// start empty.
func Build(kind Kind, opts BuildOptions) (*Index, error) {
	if opts.Dim <= 0 {
		return nil, engineerr.Invalid("dimension must be positive, got %d", opts.Dim)
	}
	opts.Workers = applyWorkerDefaults(opts.Workers)

	idx := &Index{
		kind:         kind,
		dim:          opts.Dim,
		metric:       opts.Metric,
		storage:      opts.StorageKind,
		vamanaSearch: config.DefaultVamanaSearchParameters(opts.VamanaSearch),
		ivfSearch:    config.DefaultIVFSearchParameters(opts.IVFSearch),
		metrics:      opts.Metrics,
		workers:      opts.Workers,
	}

	switch kind {
	case KindFlat:
		idx.flat = flatindex.New(opts.Dim, opts.Metric, opts.Workers.OuterPoolSize)
		if len(opts.Seeds) > 0 {
			if err := idx.flat.Add(opts.Seeds); err != nil {
				return nil, err
			}
		}

	case KindVamanaDynamic:
		bp := config.DefaultVamanaBuildParameters(opts.VamanaBuild)
		v, err := vamana.New(opts.Dim, opts.Metric, bp, opts.Workers.OuterPoolSize)
		if err != nil {
			return nil, err
		}
		idx.vamana = v
		if len(opts.Seeds) > 0 {
			if err := v.Add(opts.Seeds); err != nil {
				return nil, err
			}
		}

	case KindIVFDynamic:
		bp := config.DefaultIVFBuildParameters(opts.IVFBuild)
		samples := make([][]float32, len(opts.Seeds))
		for i, v := range opts.Seeds {
			samples[i] = v.Embedding
		}
		iv, err := ivfindex.New(opts.Dim, opts.Metric, samples, bp, opts.Workers.OuterPoolSize, opts.Workers.InnerPoolSize)
		if err != nil {
			return nil, err
		}
		idx.ivf = iv
		if len(opts.Seeds) > 0 {
			if err := iv.Add(opts.Seeds); err != nil {
				return nil, err
			}
		}

	default:
		return nil, engineerr.New(engineerr.NotImplemented, fmt.Sprintf("unknown index kind %d", kind))
	}

	logging.Info("engine build", "kind", kind.String(), "dim", opts.Dim)
	return idx, nil
}

func applyWorkerDefaults(wc config.WorkerConfig) config.WorkerConfig {
	if wc.OuterPoolSize <= 0 {
		wc.OuterPoolSize = 4
	}
	if wc.InnerPoolSize <= 0 {
		wc.InnerPoolSize = 4
	}
	return wc
}

// snapshotVectors reads every currently valid (id, embedding) pair.
// Callers must hold at least a read lock.
func (idx *Index) snapshotVectors() []core.Vector {
	var ids []core.ExternalID
	switch idx.kind {
	case KindFlat:
		ids = idx.flat.Externals()
	case KindVamanaDynamic:
		ids = idx.vamana.Externals()
	case KindIVFDynamic:
		ids = idx.ivf.Externals()
	}
	vecs := make([]core.Vector, 0, len(ids))
	for _, id := range ids {
		var embedding []float32
		switch idx.kind {
		case KindFlat:
			embedding = idx.flat.VectorOf(id)
		case KindVamanaDynamic:
			embedding = idx.vamana.VectorOf(id)
		case KindIVFDynamic:
			embedding = idx.ivf.VectorOf(id)
		}
		vecs = append(vecs, core.Vector{ID: id, Embedding: embedding})
	}
	return vecs
}

// Destroy releases a handle's resources. Index kinds in this engine
// hold no off-heap state beyond what the garbage collector already
// reclaims, so Destroy is a no-op retained for facade symmetry with
// spec.md §6's `destroy(handle)`.
func (idx *Index) Destroy() {}

func (idx *Index) observe(op string, start time.Time, err error) {
	if idx.metrics == nil {
		return
	}
	idx.metrics.ObserveOperation(op, idx.kind.String(), time.Since(start), err)
	switch op {
	case "add", "remove", "remove_selected", "consolidate", "compact":
		idx.updateSizeGauges()
	}
}

// updateSizeGauges refreshes the size gauges a mutating operation may
// have changed. Runs after writeMu has already been released (defers
// execute LIFO, and writeMu's unlock is deferred after this one), so it
// reads via the backing index's own internal locks rather than relying
// on any facade-level exclusion.
func (idx *Index) updateSizeGauges() {
	switch idx.kind {
	case KindVamanaDynamic:
		nodes, deleted := idx.vamana.GraphStats()
		idx.metrics.SetGraphSize(nodes, deleted)
	case KindIVFDynamic:
		clusters, avgSize := idx.ivf.ClusterStats()
		idx.metrics.SetClusterStats(clusters, avgSize)
	}
}

// Kind reports which index implementation this handle wraps. Set once
// at Build and never mutated afterward, so no lock is needed.
func (idx *Index) Kind() Kind {
	return idx.kind
}

// Len returns the number of currently valid entries.
func (idx *Index) Len() int {
	switch idx.kind {
	case KindFlat:
		return idx.flat.Len()
	case KindVamanaDynamic:
		return idx.vamana.Len()
	case KindIVFDynamic:
		return idx.ivf.Len()
	}
	return 0
}

// HasID reports whether id is currently present, per spec.md §6's
// `has_id(handle, out_bool, id)`.
func (idx *Index) HasID(id core.ExternalID) bool {
	switch idx.kind {
	case KindFlat:
		return idx.flat.HasID(id)
	case KindVamanaDynamic:
		return idx.vamana.HasID(id)
	case KindIVFDynamic:
		return idx.ivf.HasID(id)
	}
	return false
}

// Add inserts vecs, per spec.md §6's `add(handle, n, labels, vectors_row_major)`.
func (idx *Index) Add(vecs []core.Vector) (err error) {
	start := time.Now()
	defer func() { idx.observe("add", start, err) }()

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	switch idx.kind {
	case KindFlat:
		err = idx.flat.Add(vecs)
	case KindVamanaDynamic:
		err = idx.vamana.Add(vecs)
	case KindIVFDynamic:
		err = idx.ivf.Add(vecs)
	default:
		err = engineerr.New(engineerr.NotImplemented, "add unsupported on this index kind")
	}
	return err
}

// Search performs k-NN search, per spec.md §6's `search(handle,
// n_queries, queries_row_major, k, out_distances, out_labels,
// search_params, optional_id_filter)`.
func (idx *Index) Search(queries [][]float32, k int, predicate func(core.ExternalID) bool) (result [][]core.Neighbor, err error) {
	start := time.Now()
	defer func() { idx.observe("search", start, err) }()

	if k == 0 {
		return nil, engineerr.Invalid("k must be positive, got 0")
	}
	switch idx.kind {
	case KindFlat:
		result, err = idx.flat.Search(queries, k, predicate)
	case KindVamanaDynamic:
		result, err = idx.vamana.Search(queries, k, idx.vamanaSearch, predicate)
	case KindIVFDynamic:
		result, err = idx.ivf.Search(queries, k, idx.ivfSearch, predicate)
	default:
		err = engineerr.New(engineerr.NotImplemented, "search unsupported on this index kind")
	}
	return result, err
}

// RangeSearch returns every id within radius of each query, per
// spec.md §6's `range_search(...)`. Only the Vamana-dynamic and Flat
// kinds implement it; IVF's posting-list layout makes an accuracy
// guarantee for range queries impractical without a full scan, so it
// returns NotImplemented, matching spec.md §7.3's "feature combination
// unsupported on this build".
func (idx *Index) RangeSearch(queries [][]float32, radius float32, predicate func(core.ExternalID) bool) (result [][]core.Neighbor, err error) {
	start := time.Now()
	defer func() { idx.observe("range_search", start, err) }()

	switch idx.kind {
	case KindFlat:
		result, err = idx.flat.RangeSearch(queries, radius, predicate)
	case KindVamanaDynamic:
		result, err = idx.vamana.RangeSearch(queries, radius, idx.vamanaSearch, predicate)
	default:
		err = engineerr.New(engineerr.NotImplemented, "range_search unsupported on this index kind")
	}
	return result, err
}

// Remove deletes a single id, per spec.md §6's `remove(handle, n, labels)`.
func (idx *Index) Remove(id core.ExternalID) (err error) {
	start := time.Now()
	defer func() { idx.observe("remove", start, err) }()

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	switch idx.kind {
	case KindFlat:
		err = idx.flat.Remove(id)
	case KindVamanaDynamic:
		err = idx.vamana.Remove(id)
	case KindIVFDynamic:
		err = idx.ivf.Remove(id)
	default:
		err = engineerr.New(engineerr.NotImplemented, "remove unsupported on this index kind")
	}
	return err
}

// RemoveSelected deletes every id for which predicate returns true,
// per spec.md §6's `remove_selected(handle, out_num_removed, id_predicate)`.
func (idx *Index) RemoveSelected(predicate func(core.ExternalID) bool) (n int, err error) {
	start := time.Now()
	defer func() { idx.observe("remove_selected", start, err) }()

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	switch idx.kind {
	case KindFlat:
		n, err = idx.flat.RemoveSelected(predicate)
	case KindVamanaDynamic:
		n, err = idx.vamana.RemoveSelected(predicate)
	case KindIVFDynamic:
		n, err = idx.ivf.RemoveSelected(predicate)
	default:
		err = engineerr.New(engineerr.NotImplemented, "remove_selected unsupported on this index kind")
	}
	return n, err
}

// Consolidate runs two-phase back-edge repair over soft-deleted
// Vamana nodes, per spec.md §6's `consolidate(handle)`. NotImplemented
// on Flat and IVF, which have no Deleted intermediate state.
func (idx *Index) Consolidate(bp config.VamanaBuildParameters) (err error) {
	start := time.Now()
	defer func() { idx.observe("consolidate", start, err) }()

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if idx.kind != KindVamanaDynamic {
		return engineerr.New(engineerr.NotImplemented, "consolidate only supported on vamana_dynamic")
	}
	return idx.vamana.Consolidate(bp)
}

// Compact renumbers internal indices to remove deletion holes, per
// spec.md §6's `compact(handle, batch_size)`.
func (idx *Index) Compact() (err error) {
	start := time.Now()
	defer func() { idx.observe("compact", start, err) }()

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	switch idx.kind {
	case KindFlat:
		err = idx.flat.Compact()
	case KindVamanaDynamic:
		err = idx.vamana.Compact()
	case KindIVFDynamic:
		err = idx.ivf.Compact()
	default:
		err = engineerr.New(engineerr.NotImplemented, "compact unsupported on this index kind")
	}
	return err
}

// Save writes a self-describing archive to w, per spec.md §6's
// `save(handle, writable_stream)`. The archive is a goleveldb database
// directory streamed as a tar envelope (pkg/storage.Archive): a
// "config/manifest" component plus one "data/<label>" component per live
// vector.
// Save requires the index to be non-empty, per spec.md §7's "not
// initialized" error on an empty dynamic index.
func (idx *Index) Save(w io.Writer) (err error) {
	start := time.Now()
	defer func() { idx.observe("save", start, err) }()

	idx.writeMu.Lock()
	vecs := idx.snapshotVectors()
	idx.writeMu.Unlock()

	if len(vecs) == 0 {
		return engineerr.New(engineerr.NotInitialized, "save: index is empty")
	}

	dir, err := storage.TempArchiveDir("svs-save-")
	if err != nil {
		return err
	}
	defer storage.RemoveStaging(dir)

	archive, err := storage.OpenArchive(dir)
	if err != nil {
		return err
	}
	if err := writeManifest(archive, idx, vecs); err != nil {
		archive.Close()
		return err
	}
	if err := archive.Close(); err != nil {
		return engineerr.Wrap(engineerr.RuntimeError, "closing archive", err)
	}

	_, err = archive.WriteTo(w)
	return err
}

// Load rebuilds an index handle from an archive stream previously
// produced by Save, per spec.md §6's `load(out_handle,
// readable_stream, metric, storage_kind)`: metric and storage kind
// must match what the archive was saved with, or the call fails with
// RuntimeError (schema/version mismatch, per spec.md §6's "version
// negotiation rejects mismatched schemas").
//
// Vectors are replayed through Add in their saved order, which for
// Vamana means the graph is regrown rather than restored edge-for-edge
// — the same entry-point/build-parameter determinism that produced the
// original graph reproduces an equivalent one, and this keeps the
// on-disk format a flat vector list instead of a second adjacency
// encoding to keep in sync.
func Load(r io.Reader, kind Kind, metric distance.Metric, storageKind storage.Kind, opts BuildOptions) (*Index, error) {
	dir, err := storage.TempArchiveDir("svs-load-")
	if err != nil {
		return nil, err
	}
	defer storage.RemoveStaging(dir)

	if err := storage.ReadFrom(r, dir); err != nil {
		return nil, err
	}
	archive, err := storage.OpenArchive(dir)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	savedKind, savedMetric, savedStorage, savedDim, err := readManifest(archive)
	if err != nil {
		return nil, err
	}
	if savedKind != kind || savedMetric != metric || savedStorage != storageKind {
		return nil, engineerr.New(engineerr.RuntimeError, fmt.Sprintf(
			"archive schema mismatch: saved as kind=%s metric=%s storage=%s", savedKind, savedMetric, savedStorage))
	}

	vecs, err := readVectors(archive, savedDim)
	if err != nil {
		return nil, err
	}

	opts.Dim = savedDim
	opts.Metric = metric
	opts.StorageKind = storageKind
	if kind == KindIVFDynamic {
		opts.Seeds = vecs
		return Build(kind, opts)
	}

	idx, err := Build(kind, opts)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(vecs); err != nil {
		return nil, err
	}
	return idx, nil
}
