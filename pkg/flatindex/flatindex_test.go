package flatindex

import (
	"testing"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
)

func vecs3() []core.Vector {
	return []core.Vector{
		{ID: 1, Embedding: []float32{0, 0}},
		{ID: 2, Embedding: []float32{1, 0}},
		{ID: 3, Embedding: []float32{0, 1}},
	}
}

func TestAddAndSearch(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}

	results, err := idx.Search([][]float32{{0, 0}}, 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results[0]) != 1 || results[0][0].ID != 1 || results[0][0].Distance != 0 {
		t.Errorf("Search({0,0}, k=1) = %v, want top-1 id=1 dist=0", results[0])
	}
}

func TestAddRejectsDuplicateID(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := idx.Add([]core.Vector{{ID: 1, Embedding: []float32{9, 9}}})
	if err == nil {
		t.Fatal("Add with duplicate id: expected error, got nil")
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	idx := New(2, distance.L2, 2)
	err := idx.Add([]core.Vector{{ID: 1, Embedding: []float32{1, 2, 3}}})
	if err == nil {
		t.Fatal("Add with wrong dimension: expected error, got nil")
	}
}

func TestSearchRejectsZeroK(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := idx.Search([][]float32{{0, 0}}, 0, nil); err == nil {
		t.Fatal("Search with k=0: expected error, got nil")
	}
}

func TestSearchWithPredicate(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := idx.Search([][]float32{{0, 0}}, 3, func(id core.ExternalID) bool { return id != 1 })
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, n := range results[0] {
		if n.ID == 1 {
			t.Error("id 1 should have been excluded by the predicate")
		}
	}
	if len(results[0]) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results[0]))
	}
}

func TestRangeSearch(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := idx.RangeSearch([][]float32{{0, 0}}, 1.0, nil)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(results[0]) != 3 {
		t.Fatalf("RangeSearch(radius=1.0) matched %d, want 3 (all within squared-L2 <= 1)", len(results[0]))
	}
	for _, n := range results[0] {
		if n.Distance > 1.0 {
			t.Errorf("result distance %v exceeds radius 1.0", n.Distance)
		}
	}
}

func TestRemoveThenSearchExcludesID(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if idx.HasID(1) {
		t.Error("HasID(1) after Remove: want false")
	}
	results, err := idx.Search([][]float32{{0, 0}}, 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, n := range results[0] {
		if n.ID == 1 {
			t.Error("removed id 1 should not appear in search results")
		}
	}
}

func TestRemoveAbsentID(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Remove(42); err == nil {
		t.Fatal("Remove of an absent id: expected error, got nil")
	}
}

func TestRemoveSelected(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := idx.RemoveSelected(func(id core.ExternalID) bool { return id >= 2 })
	if err != nil {
		t.Fatalf("RemoveSelected: %v", err)
	}
	if n != 2 {
		t.Errorf("RemoveSelected removed %d, want 2", n)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() after RemoveSelected = %d, want 1", idx.Len())
	}
}

func TestCompactReclaimsHoles(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := idx.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len() after Compact = %d, want 2", idx.Len())
	}
	if idx.HasID(2) {
		t.Error("HasID(2) after removal+compact: want false")
	}
	if got := idx.VectorOf(1); got[0] != 0 || got[1] != 0 {
		t.Errorf("VectorOf(1) after compact = %v, want [0 0] (identity preserved)", got)
	}
	if got := idx.VectorOf(3); got[0] != 0 || got[1] != 1 {
		t.Errorf("VectorOf(3) after compact = %v, want [0 1] (identity preserved)", got)
	}
}

func TestExternals(t *testing.T) {
	idx := New(2, distance.L2, 2)
	if err := idx.Add(vecs3()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	seen := make(map[core.ExternalID]bool)
	for _, id := range idx.Externals() {
		seen[id] = true
	}
	for _, id := range []core.ExternalID{1, 2, 3} {
		if !seen[id] {
			t.Errorf("Externals() missing id %d", id)
		}
	}
}
