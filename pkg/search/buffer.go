// Package search implements the bounded best-k priority structure of
// spec.md §4.13 ("Search buffer": bounded best-k, visited tracking,
// deletion-aware skipping) and the greedy beam search of spec.md §4.6,
// generalized from the Semafind Vamana reference's DistSet/greedySearch
// (other_examples/7a0d03fb_Semafind-semadb__shard-index-vamana-search.go.go)
// into a metric-polarity-agnostic form used by the Vamana index.
package search

import (
	"sort"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
)

// item is one candidate in a Buffer: an internal slot, its distance
// from the fixed query, and whether it has already been expanded
// (visited) during beam search.
type item struct {
	idx      core.InternalIndex
	dist     float32
	visited  bool
	excluded bool // deletion-aware skip: Deleted/Empty slots are kept out of results but may still be traversed
}

// Buffer is a capacity-bounded, polarity-aware sorted candidate list.
// Matches the Semafind DistSet's role: Add maintains sorted order at
// insertion, and the visited flag drives greedy search's termination.
type Buffer struct {
	pol      distance.Polarity
	capacity int
	items    []item
	seen     map[core.InternalIndex]bool
}

// NewBuffer creates an empty buffer with the given capacity and
// comparator polarity.
func NewBuffer(capacity int, pol distance.Polarity) *Buffer {
	return &Buffer{
		pol:      pol,
		capacity: capacity,
		items:    make([]item, 0, capacity),
		seen:     make(map[core.InternalIndex]bool, capacity),
	}
}

// Len returns the current number of candidates held.
func (b *Buffer) Len() int { return len(b.items) }

// Add inserts idx at dist if it is new and either the buffer has room
// or idx is closer than the current worst entry, maintaining sorted
// order at insertion. Duplicate idx values are ignored (Semafind's
// "search nodes we haven't yet visited" dedup).
func (b *Buffer) Add(idx core.InternalIndex, dist float32, excluded bool) {
	if b.seen[idx] {
		return
	}
	if len(b.items) >= b.capacity {
		worst := b.items[len(b.items)-1]
		if !distance.Closer(b.pol, dist, worst.dist) {
			return
		}
	}
	b.seen[idx] = true
	pos := sort.Search(len(b.items), func(i int) bool {
		return distance.Closer(b.pol, dist, b.items[i].dist) || dist == b.items[i].dist
	})
	b.items = append(b.items, item{})
	copy(b.items[pos+1:], b.items[pos:])
	b.items[pos] = item{idx: idx, dist: dist, excluded: excluded}
	if len(b.items) > b.capacity {
		evicted := b.items[len(b.items)-1]
		delete(b.seen, evicted.idx)
		b.items = b.items[:b.capacity]
	}
}

// NextUnvisited returns the closest not-yet-visited entry and marks it
// visited, or ok=false if every held entry has been visited — the
// termination condition of greedy search.
func (b *Buffer) NextUnvisited() (idx core.InternalIndex, dist float32, ok bool) {
	for i := range b.items {
		if !b.items[i].visited {
			b.items[i].visited = true
			return b.items[i].idx, b.items[i].dist, true
		}
	}
	return 0, 0, false
}

// InternalResult pairs an internal slot with its distance, the shape
// callers resolve against the translator to produce core.Neighbor.
type InternalResult struct {
	Internal core.InternalIndex
	Distance float32
}

// ResultsInternal returns up to k non-excluded entries in closest-first
// order as internal slots, leaving external-id resolution to the
// caller.
func (b *Buffer) ResultsInternal(k int) []InternalResult {
	out := make([]InternalResult, 0, k)
	for _, it := range b.items {
		if it.excluded {
			continue
		}
		out = append(out, InternalResult{Internal: it.idx, Distance: it.dist})
		if len(out) == k {
			break
		}
	}
	return out
}

// AllInternal returns every held non-excluded entry regardless of
// visited state, in sorted order — used by range search, which wants
// every candidate within a radius rather than a fixed top-k.
func (b *Buffer) AllInternal() []InternalResult {
	out := make([]InternalResult, 0, len(b.items))
	for _, it := range b.items {
		if it.excluded {
			continue
		}
		out = append(out, InternalResult{Internal: it.idx, Distance: it.dist})
	}
	return out
}
