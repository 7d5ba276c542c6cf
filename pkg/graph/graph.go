// Package graph implements the adjacency structure of spec.md §4.5: a
// vector of bounded-capacity adjacency lists of internal indices. The
// representation follows the design note in spec.md §9 exactly: "a
// single large flat buffer of n_nodes · max_degree integers plus a
// parallel length array", generalized from the teacher's per-node
// Friends [][]int slices (pkg/index/hnsw.go) into one contiguous buffer
// so replace(i, new_list) is a bounded copy with no per-node
// allocation, and the whole graph serializes as two flat arrays.
package graph

import (
	"sync"

	"github.com/svsgo/engine/pkg/core"
)

// Graph is a flat-buffer adjacency list collection. spec.md §5 expects
// the graph to "tolerate concurrent reads from searches alongside
// concurrent writes from insertion batches": Grow replaces the two
// backing slices wholesale (copying old contents into fresh, larger
// ones rather than mutating them in place), so a reader that captured
// the old slice headers before a Grow keeps reading a never-mutated
// array. mu only needs to guard the header fields themselves — the
// slice/length pair a Grow swaps in one step — plus the in-place writes
// Replace/Append make to an existing node's region.
type Graph struct {
	mu        sync.RWMutex
	maxDegree int
	neighbors []core.InternalIndex // len == n_nodes * maxDegree
	lengths   []int32              // len == n_nodes
}

// New creates an empty graph with the given max-degree bound.
func New(maxDegree int) *Graph {
	return &Graph{maxDegree: maxDegree}
}

// MaxDegree returns the adjacency-list capacity. Fixed at construction,
// so it needs no lock.
func (g *Graph) MaxDegree() int { return g.maxDegree }

// NNodes returns the number of node slots currently allocated.
func (g *Graph) NNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.lengths)
}

// Grow extends the graph to hold exactly n node slots, each starting
// with an empty adjacency list. Never shrinks; compaction instead
// builds a fresh graph at the new size and copies renumbered lists in
// (see (*Graph).Replace usage in pkg/vamana's compactor).
func (g *Graph) Grow(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= len(g.lengths) {
		return
	}
	newNeighbors := make([]core.InternalIndex, n*g.maxDegree)
	copy(newNeighbors, g.neighbors)
	newLengths := make([]int32, n)
	copy(newLengths, g.lengths)
	g.neighbors = newNeighbors
	g.lengths = newLengths
}

// Neighbors returns a snapshot of i's current neighbor list, ordered
// best-first (spec.md §3, "earlier neighbors are better"). The result
// is a copy rather than a view into the flat buffer: a concurrent
// Replace or Append on the same node could otherwise tear the slice a
// caller is still reading.
func (g *Graph) Neighbors(i core.InternalIndex) []core.InternalIndex {
	g.mu.RLock()
	defer g.mu.RUnlock()
	start := int(i) * g.maxDegree
	n := int(g.lengths[i])
	out := make([]core.InternalIndex, n)
	copy(out, g.neighbors[start:start+n])
	return out
}

// Replace overwrites i's adjacency list with newList, truncated to its
// first MaxDegree entries if it is longer. This is the graph's only bulk
// write path: a bounded copy into the flat buffer, no allocation.
func (g *Graph) Replace(i core.InternalIndex, newList []core.InternalIndex) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(newList) > g.maxDegree {
		newList = newList[:g.maxDegree]
	}
	start := int(i) * g.maxDegree
	n := copy(g.neighbors[start:start+g.maxDegree], newList)
	g.lengths[i] = int32(n)
}

// Append adds a single neighbor to i's list if there is room, returning
// whether it was added (false means the list is already at MaxDegree
// and the caller must prune before appending — the only source of
// back-edges exceeding the degree bound, per spec.md §4.8 step 3).
func (g *Graph) Append(i, neighbor core.InternalIndex) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := int(g.lengths[i])
	if n >= g.maxDegree {
		return false
	}
	start := int(i) * g.maxDegree
	g.neighbors[start+n] = neighbor
	g.lengths[i] = int32(n + 1)
	return true
}

// Degree returns the current adjacency-list length of i.
func (g *Graph) Degree(i core.InternalIndex) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return int(g.lengths[i])
}
