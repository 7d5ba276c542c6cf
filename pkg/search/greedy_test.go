package search

import (
	"testing"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/graph"
)

// fixtureAccessor is a minimal in-memory Accessor over a fixed set of
// 1-dimensional vectors, keyed by internal index.
type fixtureAccessor struct {
	vectors [][]float32
	status  []SlotStatus
}

func (f *fixtureAccessor) Vector(i core.InternalIndex) []float32 { return f.vectors[i] }
func (f *fixtureAccessor) Status(i core.InternalIndex) SlotStatus { return f.status[i] }

// line builds a 5-node path graph 0-1-2-3-4 with 1-dimensional values
// equal to the node index, so the query value itself names the closest
// node's expected id.
func line(t *testing.T) (*graph.Graph, *fixtureAccessor) {
	t.Helper()
	g := graph.New(2)
	g.Grow(5)
	edges := [][2]core.InternalIndex{{0, 1}, {1, 2}, {2, 3}, {3, 4}}
	for _, e := range edges {
		g.Replace(e[0], append(g.Neighbors(e[0]), e[1]))
		g.Replace(e[1], append(g.Neighbors(e[1]), e[0]))
	}
	acc := &fixtureAccessor{
		vectors: [][]float32{{0}, {1}, {2}, {3}, {4}},
		status:  []SlotStatus{StatusValid, StatusValid, StatusValid, StatusValid, StatusValid},
	}
	return g, acc
}

func TestGreedyFindsExactMatch(t *testing.T) {
	g, acc := line(t)
	ad := distance.Plain{Metric: distance.L2}
	params := GreedyParams{SearchWindowSize: 10, SearchBufferCapacity: 10}

	result, _ := Greedy(0, []float32{3}, g, acc, ad, params)
	top := result.ResultsInternal(1)
	if len(top) != 1 || top[0].Internal != 3 {
		t.Fatalf("ResultsInternal(1) = %v, want node 3", top)
	}
	if top[0].Distance != 0 {
		t.Errorf("distance to exact match = %v, want 0", top[0].Distance)
	}
}

func TestGreedySkipsDeletedSlotsInResults(t *testing.T) {
	g, acc := line(t)
	acc.status[3] = StatusDeleted
	ad := distance.Plain{Metric: distance.L2}
	params := GreedyParams{SearchWindowSize: 10, SearchBufferCapacity: 10}

	result, _ := Greedy(0, []float32{3}, g, acc, ad, params)
	for _, r := range result.ResultsInternal(5) {
		if r.Internal == 3 {
			t.Error("deleted node 3 should not appear in ResultsInternal")
		}
	}
}

func TestGreedyVisitedSetGrows(t *testing.T) {
	g, acc := line(t)
	ad := distance.Plain{Metric: distance.L2}
	params := GreedyParams{SearchWindowSize: 10, SearchBufferCapacity: 10}

	_, visited := Greedy(0, []float32{4}, g, acc, ad, params)
	if visited.Len() == 0 {
		t.Error("visited set should contain at least the entry point")
	}
}
