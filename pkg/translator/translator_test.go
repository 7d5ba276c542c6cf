package translator

import (
	"testing"

	"github.com/svsgo/engine/pkg/core"
)

func TestInsertAndLookup(t *testing.T) {
	tr := New()
	err := tr.Insert(
		[]core.ExternalID{10, 20, 30},
		[]core.InternalIndex{0, 1, 2},
	)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if tr.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tr.Len())
	}

	intl, ok := tr.GetInternal(20)
	if !ok || intl != 1 {
		t.Errorf("GetInternal(20) = (%d, %v), want (1, true)", intl, ok)
	}
	ext, ok := tr.GetExternal(2)
	if !ok || ext != 30 {
		t.Errorf("GetExternal(2) = (%d, %v), want (30, true)", ext, ok)
	}
	if !tr.ContainsExternal(10) || !tr.ContainsInternal(0) {
		t.Errorf("expected id 10 / slot 0 to be present")
	}
}

func TestInsertRejectsDuplicateExternal(t *testing.T) {
	tr := New()
	if err := tr.Insert([]core.ExternalID{1}, []core.InternalIndex{0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := tr.Insert([]core.ExternalID{1}, []core.InternalIndex{1})
	if err == nil {
		t.Fatal("Insert with duplicate external id: expected error, got nil")
	}
	if tr.Len() != 1 {
		t.Errorf("Len() after rejected insert = %d, want 1 (unchanged)", tr.Len())
	}
}

func TestInsertRejectsDuplicateInternal(t *testing.T) {
	tr := New()
	if err := tr.Insert([]core.ExternalID{1}, []core.InternalIndex{0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Insert([]core.ExternalID{2}, []core.InternalIndex{0}); err == nil {
		t.Fatal("Insert with duplicate internal index: expected error, got nil")
	}
}

func TestInsertAllOrNothingOnBatchDuplicate(t *testing.T) {
	tr := New()
	err := tr.Insert(
		[]core.ExternalID{1, 1},
		[]core.InternalIndex{0, 1},
	)
	if err == nil {
		t.Fatal("Insert with in-batch duplicate external id: expected error, got nil")
	}
	if tr.Len() != 0 {
		t.Errorf("Len() after rejected batch insert = %d, want 0", tr.Len())
	}
}

func TestInsertLengthMismatch(t *testing.T) {
	tr := New()
	if err := tr.Insert([]core.ExternalID{1, 2}, []core.InternalIndex{0}); err == nil {
		t.Fatal("Insert with mismatched lengths: expected error, got nil")
	}
}

func TestDeleteExternal(t *testing.T) {
	tr := New()
	if err := tr.Insert(
		[]core.ExternalID{1, 2, 3},
		[]core.InternalIndex{0, 1, 2},
	); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.DeleteExternal([]core.ExternalID{2}); err != nil {
		t.Fatalf("DeleteExternal: %v", err)
	}
	if tr.ContainsExternal(2) || tr.ContainsInternal(1) {
		t.Errorf("expected id 2 / slot 1 to be gone after delete")
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
}

func TestDeleteExternalAllOrNothing(t *testing.T) {
	tr := New()
	if err := tr.Insert([]core.ExternalID{1}, []core.InternalIndex{0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.DeleteExternal([]core.ExternalID{1, 99}); err == nil {
		t.Fatal("DeleteExternal with an absent id: expected error, got nil")
	}
	if !tr.ContainsExternal(1) {
		t.Errorf("expected id 1 to survive a rejected batch delete")
	}
}

func TestRemapInternal(t *testing.T) {
	tr := New()
	if err := tr.Insert([]core.ExternalID{7}, []core.InternalIndex{3}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.RemapInternal(3, 0); err != nil {
		t.Fatalf("RemapInternal: %v", err)
	}
	if tr.ContainsInternal(3) {
		t.Errorf("old slot 3 should no longer be claimed")
	}
	intl, ok := tr.GetInternal(7)
	if !ok || intl != 0 {
		t.Errorf("GetInternal(7) = (%d, %v), want (0, true)", intl, ok)
	}
}

func TestRemapInternalAbsent(t *testing.T) {
	tr := New()
	if err := tr.RemapInternal(5, 6); err == nil {
		t.Fatal("RemapInternal on absent slot: expected error, got nil")
	}
}

func TestExternals(t *testing.T) {
	tr := New()
	if err := tr.Insert(
		[]core.ExternalID{1, 2, 3},
		[]core.InternalIndex{0, 1, 2},
	); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got := make(map[core.ExternalID]bool)
	for _, ext := range tr.Externals() {
		got[ext] = true
	}
	for _, want := range []core.ExternalID{1, 2, 3} {
		if !got[want] {
			t.Errorf("Externals() missing id %d", want)
		}
	}
}
