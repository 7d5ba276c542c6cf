package engine

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
	"github.com/svsgo/engine/pkg/storage"
)

// corpus generates n deterministic uniform[0,1] vectors of dimension
// dim from seed, matching the row-major deterministic corpus described
// for every concrete scenario.
func corpus(seed int64, n, dim int) []core.Vector {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([]core.Vector, n)
	for i := range vecs {
		emb := make([]float32, dim)
		for j := range emb {
			emb[j] = rng.Float32()
		}
		vecs[i] = core.Vector{ID: core.ExternalID(i), Embedding: emb}
	}
	return vecs
}

func buildVamana(t *testing.T, vecs []core.Vector, dim int) *Index {
	t.Helper()
	idx, err := Build(KindVamanaDynamic, BuildOptions{
		Dim:         dim,
		Metric:      distance.L2,
		StorageKind: storage.KindBlocked,
		Workers:     config.WorkerConfig{OuterPoolSize: 2, InnerPoolSize: 2},
		VamanaBuild: config.VamanaBuildParameters{MaxDegree: 64},
		Seeds:       vecs,
	})
	if err != nil {
		t.Fatalf("build vamana: %v", err)
	}
	return idx
}

// Scenario 1: L2 k-NN self-match.
func TestVamanaSelfMatch(t *testing.T) {
	vecs := corpus(123, 100, 64)
	idx := buildVamana(t, vecs, 64)

	queries := make([][]float32, 5)
	for i := range queries {
		queries[i] = vecs[i].Embedding
	}

	results, err := idx.Search(queries, 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, row := range results {
		if len(row) == 0 {
			t.Fatalf("query %d: no results", i)
		}
		if row[0].ID != core.ExternalID(i) {
			t.Errorf("query %d: top-1 id = %d, want %d", i, row[0].ID, i)
		}
		if row[0].Distance != 0 {
			t.Errorf("query %d: top-1 distance = %v, want 0", i, row[0].Distance)
		}
	}
}

// Scenario 2: save/load round trip.
func TestSaveLoadRoundTrip(t *testing.T) {
	vecs := corpus(123, 100, 64)
	idx := buildVamana(t, vecs, 64)

	queries := make([][]float32, 5)
	for i := range queries {
		queries[i] = vecs[i].Embedding
	}
	before, err := idx.Search(queries, 10, nil)
	if err != nil {
		t.Fatalf("search before save: %v", err)
	}

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load(&buf, KindVamanaDynamic, distance.L2, storage.KindBlocked, BuildOptions{
		Workers:     config.WorkerConfig{OuterPoolSize: 2, InnerPoolSize: 2},
		VamanaBuild: config.VamanaBuildParameters{MaxDegree: 64},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	after, err := reloaded.Search(queries, 10, nil)
	if err != nil {
		t.Fatalf("search after load: %v", err)
	}

	for i := range before {
		if len(before[i]) != len(after[i]) {
			t.Fatalf("query %d: result count %d before, %d after", i, len(before[i]), len(after[i]))
		}
		for j := range before[i] {
			if before[i][j].ID != after[i][j].ID || before[i][j].Distance != after[i][j].Distance {
				t.Errorf("query %d rank %d: before=%+v after=%+v", i, j, before[i][j], after[i][j])
			}
		}
	}
}

// Scenario 3: delete then search.
func TestDeleteThenSearch(t *testing.T) {
	vecs := corpus(123, 100, 64)
	idx := buildVamana(t, vecs, 64)

	queries := make([][]float32, 5)
	for i := range queries {
		queries[i] = vecs[i].Embedding
	}
	groundTruth := flatGroundTruth(t, vecs, queries, 64, 10)

	deleted := map[core.ExternalID]bool{0: true, 5: true, 10: true, 15: true, 20: true}
	for id := range deleted {
		if err := idx.Remove(core.ExternalID(id)); err != nil {
			t.Fatalf("remove %d: %v", id, err)
		}
	}

	results, err := idx.Search(queries, 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	for i, row := range results {
		for _, n := range row {
			if deleted[n.ID] {
				t.Errorf("query %d: returned deleted id %d", i, n.ID)
			}
		}
	}
	if results[0][0].ID == 0 {
		t.Errorf("query 0: top-1 is the deleted id itself")
	}

	recall := recallAt(results, groundTruth, deleted)
	if recall < 0.9 {
		t.Errorf("recall after deletion = %.3f, want >= 0.9", recall)
	}
}

// Scenario 4: IVF insert + delete + compact cycle.
func TestIVFInsertDeleteCompact(t *testing.T) {
	const n, dim = 10000, 128
	vecs := corpus(7, n, dim)
	half := n / 2

	idx, err := Build(KindIVFDynamic, BuildOptions{
		Dim:         dim,
		Metric:      distance.L2,
		StorageKind: storage.KindBlocked,
		Workers:     config.WorkerConfig{OuterPoolSize: 4, InnerPoolSize: 4},
		IVFBuild:    config.IVFBuildParameters{NumCentroids: 10},
		IVFSearch:   config.IVFSearchParameters{NProbes: 10},
		Seeds:       vecs[:half],
	})
	if err != nil {
		t.Fatalf("build ivf: %v", err)
	}
	if err := idx.Add(vecs[half:]); err != nil {
		t.Fatalf("add remaining half: %v", err)
	}

	rng := rand.New(rand.NewSource(99))
	toDelete := make(map[core.ExternalID]bool)
	for len(toDelete) < n/10 {
		toDelete[core.ExternalID(rng.Intn(n))] = true
	}
	for id := range toDelete {
		if err := idx.Remove(id); err != nil {
			t.Fatalf("remove %d: %v", id, err)
		}
	}
	if err := idx.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}

	if got, want := idx.Len(), n-n/10; got != want {
		t.Fatalf("len = %d, want %d", got, want)
	}

	queries := make([][]float32, 1000)
	for i := range queries {
		emb := make([]float32, dim)
		for j := range emb {
			emb[j] = rng.Float32()
		}
		queries[i] = emb
	}

	got, err := idx.Search(queries, 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, row := range got {
		for _, nb := range row {
			if toDelete[nb.ID] {
				t.Errorf("query %d: returned deleted id %d", i, nb.ID)
			}
		}
	}

	remaining := make([]core.Vector, 0, n-n/10)
	for _, v := range vecs {
		if !toDelete[v.ID] {
			remaining = append(remaining, v)
		}
	}
	flat := flatGroundTruth(t, remaining, queries, dim, 10)
	recall := recallAt(got, flat, nil)
	if recall < 0.98 {
		t.Errorf("recall against flat ground truth = %.3f, want >= 0.98", recall)
	}
}

// Scenario 5: filtered search.
func TestFilteredSearch(t *testing.T) {
	vecs := corpus(123, 100, 64)
	idx := buildVamana(t, vecs, 64)

	queries := make([][]float32, 5)
	for i := range queries {
		queries[i] = vecs[i].Embedding
	}

	inRange := func(id core.ExternalID) bool { return id >= 20 && id < 80 }
	results, err := idx.Search(queries, 10, inRange)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, row := range results {
		if len(row) != 10 {
			t.Errorf("query %d: got %d results, want 10", i, len(row))
		}
		for _, n := range row {
			if !inRange(n.ID) {
				t.Errorf("query %d: id %d outside filter range", i, n.ID)
			}
		}
	}
}

// Scenario 6: range search contract — per-query match counts and the
// within-radius predicate on every returned distance.
func TestRangeSearchContract(t *testing.T) {
	vecs := corpus(123, 100, 64)
	idx := buildVamana(t, vecs, 64)

	queries := make([][]float32, 5)
	for i := range queries {
		queries[i] = vecs[i].Embedding
	}

	for _, radius := range []float32{0.05, 5.0} {
		results, err := idx.RangeSearch(queries, radius, nil)
		if err != nil {
			t.Fatalf("range_search radius=%v: %v", radius, err)
		}
		if len(results) != len(queries) {
			t.Fatalf("radius=%v: got %d rows, want %d", radius, len(results), len(queries))
		}
		for i, row := range results {
			for _, n := range row {
				if n.Distance > radius {
					t.Errorf("radius=%v query=%d: distance %v exceeds radius", radius, i, n.Distance)
				}
			}
		}
	}
}

// flatGroundTruth computes exact k-NN over vecs for every query, used as
// a recall baseline independent of the index under test.
func flatGroundTruth(t *testing.T, vecs []core.Vector, queries [][]float32, dim, k int) [][]core.Neighbor {
	t.Helper()
	flat, err := Build(KindFlat, BuildOptions{
		Dim:         dim,
		Metric:      distance.L2,
		StorageKind: storage.KindBlocked,
		Workers:     config.WorkerConfig{OuterPoolSize: 4, InnerPoolSize: 1},
	})
	if err != nil {
		t.Fatalf("build flat ground truth: %v", err)
	}
	if err := flat.Add(vecs); err != nil {
		t.Fatalf("seed flat ground truth: %v", err)
	}
	results, err := flat.Search(queries, k, nil)
	if err != nil {
		t.Fatalf("flat search: %v", err)
	}
	return results
}

// recallAt computes mean recall@k of got against groundTruth, skipping
// any ground-truth id present in excluded.
func recallAt(got, groundTruth [][]core.Neighbor, excluded map[core.ExternalID]bool) float64 {
	var total, hit float64
	for i := range groundTruth {
		gotSet := make(map[core.ExternalID]bool, len(got[i]))
		for _, n := range got[i] {
			gotSet[n.ID] = true
		}
		for _, n := range groundTruth[i] {
			if excluded != nil && excluded[n.ID] {
				continue
			}
			total++
			if gotSet[n.ID] {
				hit++
			}
		}
	}
	if total == 0 {
		return 1
	}
	return hit / total
}
