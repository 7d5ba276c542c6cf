package ivfindex

import (
	"math/rand"
	"testing"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
)

func gridSamples(n int) [][]float32 {
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = []float32{float32(i), 0}
	}
	return out
}

func gridIndexVectors(n int) []core.Vector {
	vecs := make([]core.Vector, n)
	for i := 0; i < n; i++ {
		vecs[i] = core.Vector{ID: core.ExternalID(i), Embedding: []float32{float32(i), 0}}
	}
	return vecs
}

func newTestIVF(t *testing.T, n int) *Index {
	t.Helper()
	bp := config.IVFBuildParameters{
		NumCentroids:     4,
		NumIterations:    5,
		TrainingFraction: 1.0,
	}
	idx, err := New(2, distance.L2, gridSamples(n), bp, 2, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx
}

func TestTrainCentroidsCount(t *testing.T) {
	bp := config.IVFBuildParameters{NumCentroids: 3, NumIterations: 4}
	centroids := TrainCentroids(gridSamples(50), 2, bp, distance.L2)
	if len(centroids) != 3 {
		t.Fatalf("TrainCentroids returned %d centroids, want 3", len(centroids))
	}
}

func TestTrainCentroidsCapsAtSampleCount(t *testing.T) {
	bp := config.IVFBuildParameters{NumCentroids: 100, NumIterations: 2}
	centroids := TrainCentroids(gridSamples(5), 2, bp, distance.L2)
	if len(centroids) != 5 {
		t.Fatalf("TrainCentroids with NumCentroids > samples returned %d, want 5", len(centroids))
	}
}

func TestTrainCentroidsHierarchical(t *testing.T) {
	bp := config.IVFBuildParameters{
		NumCentroids:               12,
		NumIterations:              3,
		IsHierarchical:             true,
		HierarchicalLevel1Clusters: 3,
	}
	centroids := TrainCentroids(gridSamples(200), 2, bp, distance.L2)
	if len(centroids) == 0 {
		t.Fatal("hierarchical TrainCentroids returned no centroids")
	}
}

func TestNewRejectsInvalidBuildParameters(t *testing.T) {
	bp := config.IVFBuildParameters{NumCentroids: 0}
	if _, err := New(2, distance.L2, gridSamples(10), bp, 1, 1); err == nil {
		t.Fatal("New with num_centroids=0: expected error, got nil")
	}
}

func TestAddAndSearchSelfMatch(t *testing.T) {
	idx := newTestIVF(t, 40)
	if err := idx.Add(gridIndexVectors(40)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 40 {
		t.Fatalf("Len() = %d, want 40", idx.Len())
	}

	sp := config.IVFSearchParameters{NProbes: 4, KReorder: 1.0}
	results, err := idx.Search([][]float32{{10, 0}}, 1, sp, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results[0]) != 1 || results[0][0].ID != 10 || results[0][0].Distance != 0 {
		t.Errorf("Search({10,0}) = %v, want top-1 id=10 dist=0", results[0])
	}
}

func TestAddRejectsDuplicateID(t *testing.T) {
	idx := newTestIVF(t, 10)
	if err := idx.Add(gridIndexVectors(10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add([]core.Vector{{ID: 3, Embedding: []float32{99, 99}}}); err == nil {
		t.Fatal("Add with duplicate id: expected error, got nil")
	}
}

func TestSearchRejectsZeroK(t *testing.T) {
	idx := newTestIVF(t, 10)
	if err := idx.Add(gridIndexVectors(10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sp := config.IVFSearchParameters{NProbes: 4}
	if _, err := idx.Search([][]float32{{0, 0}}, 0, sp, nil); err == nil {
		t.Fatal("Search with k=0: expected error, got nil")
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	idx := newTestIVF(t, 10)
	if err := idx.Add(gridIndexVectors(10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sp := config.IVFSearchParameters{NProbes: 4}
	if _, err := idx.Search([][]float32{{0, 0, 0}}, 1, sp, nil); err == nil {
		t.Fatal("Search with wrong dimension: expected error, got nil")
	}
}

func TestRemoveThenSearchExcludesDeleted(t *testing.T) {
	idx := newTestIVF(t, 40)
	if err := idx.Add(gridIndexVectors(40)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(10); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if idx.HasID(10) {
		t.Error("HasID(10) after Remove: want false")
	}

	sp := config.IVFSearchParameters{NProbes: 4, KReorder: 2.0}
	results, err := idx.Search([][]float32{{10, 0}}, 5, sp, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, n := range results[0] {
		if n.ID == 10 {
			t.Error("deleted id 10 should not appear in search results")
		}
	}
}

func TestRemoveAbsentID(t *testing.T) {
	idx := newTestIVF(t, 10)
	if err := idx.Add(gridIndexVectors(10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(999); err == nil {
		t.Fatal("Remove of absent id: expected error, got nil")
	}
}

func TestRemoveSelected(t *testing.T) {
	idx := newTestIVF(t, 40)
	if err := idx.Add(gridIndexVectors(40)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := idx.RemoveSelected(func(id core.ExternalID) bool { return id%2 == 0 })
	if err != nil {
		t.Fatalf("RemoveSelected: %v", err)
	}
	if n != 20 {
		t.Errorf("RemoveSelected removed %d, want 20", n)
	}
	if idx.Len() != 20 {
		t.Errorf("Len() after RemoveSelected = %d, want 20", idx.Len())
	}
}

func TestCompactPreservesIdentity(t *testing.T) {
	idx := newTestIVF(t, 40)
	if err := idx.Add(gridIndexVectors(40)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	removed := make(map[core.ExternalID]bool)
	for len(removed) < 8 {
		id := core.ExternalID(rng.Intn(40))
		if removed[id] {
			continue
		}
		removed[id] = true
		if err := idx.Remove(id); err != nil {
			t.Fatalf("Remove(%d): %v", id, err)
		}
	}
	if err := idx.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if idx.Len() != 32 {
		t.Fatalf("Len() after compact = %d, want 32", idx.Len())
	}
	for id := core.ExternalID(0); id < 40; id++ {
		if removed[id] {
			if idx.HasID(id) {
				t.Errorf("HasID(%d) after compact: want false", id)
			}
			continue
		}
		got := idx.VectorOf(id)
		if got == nil || got[0] != float32(id) {
			t.Errorf("VectorOf(%d) after compact = %v, want [%v 0]", id, got, id)
		}
	}
}

func TestExternals(t *testing.T) {
	idx := newTestIVF(t, 10)
	if err := idx.Add(gridIndexVectors(10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	seen := make(map[core.ExternalID]bool)
	for _, id := range idx.Externals() {
		seen[id] = true
	}
	for id := core.ExternalID(0); id < 10; id++ {
		if !seen[id] {
			t.Errorf("Externals() missing id %d", id)
		}
	}
}
