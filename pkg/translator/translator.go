// Package translator implements the identifier bijection of spec.md
// §4.4: external 64-bit ids on one side, dense internal slot indices on
// the other. mu makes every method here safe to call concurrently —
// readers never see a torn map — but spec.md §5 still describes a
// single-writer discipline at the level of the whole engine: insertion,
// deletion, and remap are not expected to run concurrently with *each
// other*, and coordinating that (e.g. pausing inserts during a search
// epoch that must observe one fixed id set) remains the caller's
// responsibility, not something this type's lock enforces on its own.
package translator

import (
	"sync"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/engineerr"
)

// Translator is a bidirectional map between core.ExternalID and
// core.InternalIndex.
type Translator struct {
	mu         sync.RWMutex
	toInternal map[core.ExternalID]core.InternalIndex
	toExternal map[core.InternalIndex]core.ExternalID
}

// New returns an empty Translator.
func New() *Translator {
	return &Translator{
		toInternal: make(map[core.ExternalID]core.InternalIndex),
		toExternal: make(map[core.InternalIndex]core.ExternalID),
	}
}

// Len returns the number of registered (external, internal) pairs.
func (t *Translator) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.toInternal)
}

// ContainsExternal reports whether id is currently registered.
func (t *Translator) ContainsExternal(id core.ExternalID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.toInternal[id]
	return ok
}

// ContainsInternal reports whether idx is currently claimed.
func (t *Translator) ContainsInternal(idx core.InternalIndex) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.toExternal[idx]
	return ok
}

// GetInternal looks up the internal index for an external id.
func (t *Translator) GetInternal(id core.ExternalID) (core.InternalIndex, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.toInternal[id]
	return idx, ok
}

// GetExternal looks up the external id for an internal index.
func (t *Translator) GetExternal(idx core.InternalIndex) (core.ExternalID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.toExternal[idx]
	return id, ok
}

// Insert registers pairs (externals[i], internals[i]) for all i,
// all-or-nothing: if any external is already present or any internal is
// already claimed, the map is left unchanged and an InvalidArgument
// error names the first offending entry (spec.md §4.4).
func (t *Translator) Insert(externals []core.ExternalID, internals []core.InternalIndex) error {
	if len(externals) != len(internals) {
		return engineerr.Invalid("insert: externals and internals length mismatch (%d vs %d)", len(externals), len(internals))
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	seenExt := make(map[core.ExternalID]struct{}, len(externals))
	seenInt := make(map[core.InternalIndex]struct{}, len(internals))
	for i := range externals {
		ext, intl := externals[i], internals[i]
		if _, ok := t.toInternal[ext]; ok {
			return engineerr.Invalid("insert: external id %d already present", ext)
		}
		if _, ok := t.toExternal[intl]; ok {
			return engineerr.Invalid("insert: internal index %d already claimed", intl)
		}
		if _, dup := seenExt[ext]; dup {
			return engineerr.Invalid("insert: external id %d duplicated within batch", ext)
		}
		if _, dup := seenInt[intl]; dup {
			return engineerr.Invalid("insert: internal index %d duplicated within batch", intl)
		}
		seenExt[ext] = struct{}{}
		seenInt[intl] = struct{}{}
	}
	for i := range externals {
		t.toInternal[externals[i]] = internals[i]
		t.toExternal[internals[i]] = externals[i]
	}
	return nil
}

// DeleteExternal unregisters every id in externals, all-or-nothing: if
// any is absent, the map is left unchanged.
func (t *Translator) DeleteExternal(externals []core.ExternalID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ext := range externals {
		if _, ok := t.toInternal[ext]; !ok {
			return engineerr.Invalid("delete: external id %d not present", ext)
		}
	}
	for _, ext := range externals {
		intl := t.toInternal[ext]
		delete(t.toInternal, ext)
		delete(t.toExternal, intl)
	}
	return nil
}

// RemapInternal reassigns the slot currently known as oldInternal to
// newInternal, preserving its external id. Used by compaction to
// renumber slots after holes are removed (spec.md §3 "Lifecycle").
func (t *Translator) RemapInternal(oldInternal, newInternal core.InternalIndex) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ext, ok := t.toExternal[oldInternal]
	if !ok {
		return engineerr.Invalid("remap: internal index %d not present", oldInternal)
	}
	delete(t.toExternal, oldInternal)
	t.toExternal[newInternal] = ext
	t.toInternal[ext] = newInternal
	return nil
}

// Externals returns every registered external id, in no particular
// order — used by consolidate/compact to snapshot the live id set.
func (t *Translator) Externals() []core.ExternalID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.ExternalID, 0, len(t.toInternal))
	for ext := range t.toInternal {
		out = append(out, ext)
	}
	return out
}
