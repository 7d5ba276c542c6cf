package search

import (
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/graph"
)

// SlotStatus reports whether an internal slot currently holds live
// data, matching spec.md §3's Vamana slot-status enumeration (IVF only
// ever uses Valid/Empty, a subset).
type SlotStatus int

const (
	StatusEmpty SlotStatus = iota
	StatusValid
	StatusDeleted
)

// Accessor is the minimal read surface greedy search needs from an
// index: decode a slot's vector and report its status.
type Accessor interface {
	Vector(i core.InternalIndex) []float32
	Status(i core.InternalIndex) SlotStatus
}

// GreedyParams bundles the knobs named in spec.md §6's Vamana search
// parameters that greedy search uses; the config document's
// PrefetchLookahead/PrefetchStep are not carried here, as a pure-Go
// implementation has no manual prefetch instruction.
type GreedyParams struct {
	SearchWindowSize     int
	SearchBufferCapacity int
}

// Greedy runs greedy beam search from entry over g/acc using the
// adapted distance ad, per spec.md §4.6: "given an entry point, a query
// vector, and a beam width, traverse the graph to produce k approximate
// nearest neighbors." Returns the final candidate buffer (callers read
// results via (*Buffer).ResultsInternal/AllInternal) and, separately,
// the closest SearchWindowSize*2+1 nodes expanded during the traversal
// (a bounded buffer, so farther expanded nodes are evicted) — the
// visited set the
// supplemented use_full_search_history build flag needs during
// insertion (spec.md SPEC_FULL "Supplemented features").
func Greedy(entry core.InternalIndex, query []float32, g *graph.Graph, acc Accessor, ad distance.Adapted, p GreedyParams) (result *Buffer, visited *Buffer) {
	pol := ad.Polarity()
	state := ad.FixArgument(query)

	capacity := p.SearchBufferCapacity
	if capacity < p.SearchWindowSize {
		capacity = p.SearchWindowSize
	}
	searchSet := NewBuffer(capacity, pol)
	visitedSet := NewBuffer(p.SearchWindowSize*2+1, pol)

	entryDist := ad.Compute(state, acc.Vector(entry))
	searchSet.Add(entry, entryDist, acc.Status(entry) != StatusValid)

	for {
		idx, dist, ok := searchSet.nextUnvisitedWithinWindow(p.SearchWindowSize)
		if !ok {
			break
		}
		visitedSet.Add(idx, dist, acc.Status(idx) != StatusValid)

		for _, nb := range g.Neighbors(idx) {
			if acc.Status(nb) == StatusEmpty {
				continue
			}
			d := ad.Compute(state, acc.Vector(nb))
			searchSet.Add(nb, d, acc.Status(nb) != StatusValid)
		}
	}

	return searchSet, visitedSet
}

// GreedyRange runs a greedy traversal from entry that keeps expanding
// the frontier until the closest not-yet-visited candidate is farther
// than radius, per spec.md §9: range search must "continue producing
// matches until the metric's comparator proves no more candidates
// within the radius can appear" rather than stopping once a k-NN-sized
// beam fills up. Unlike Greedy, the frontier and visited buffers are
// sized to the whole graph so neither ever evicts a candidate still
// within radius.
func GreedyRange(entry core.InternalIndex, query []float32, radius float32, g *graph.Graph, acc Accessor, ad distance.Adapted) *Buffer {
	pol := ad.Polarity()
	state := ad.FixArgument(query)

	capacity := g.NNodes() + 1
	frontier := NewBuffer(capacity, pol)
	visited := NewBuffer(capacity, pol)

	entryDist := ad.Compute(state, acc.Vector(entry))
	frontier.Add(entry, entryDist, acc.Status(entry) != StatusValid)

	for {
		idx, dist, ok := frontier.NextUnvisited()
		if !ok {
			break
		}
		if !(distance.Closer(pol, dist, radius) || dist == radius) {
			break
		}
		visited.Add(idx, dist, acc.Status(idx) != StatusValid)

		for _, nb := range g.Neighbors(idx) {
			if acc.Status(nb) == StatusEmpty {
				continue
			}
			d := ad.Compute(state, acc.Vector(nb))
			frontier.Add(nb, d, acc.Status(nb) != StatusValid)
		}
	}

	return visited
}

// nextUnvisitedWithinWindow mirrors the Semafind reference's `for i :=
// 0; i < min(len(items), searchSize)` loop: only the first
// searchWindowSize sorted entries are eligible to be expanded, even if
// the buffer's capacity (SearchBufferCapacity) is larger.
func (b *Buffer) nextUnvisitedWithinWindow(searchWindowSize int) (core.InternalIndex, float32, bool) {
	limit := searchWindowSize
	if limit > len(b.items) {
		limit = len(b.items)
	}
	for i := 0; i < limit; i++ {
		if !b.items[i].visited {
			b.items[i].visited = true
			return b.items[i].idx, b.items[i].dist, true
		}
	}
	return 0, 0, false
}
