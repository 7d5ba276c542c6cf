package storage

import (
	"sync"

	"github.com/svsgo/engine/pkg/engineerr"
)

// contiguousStore is the contiguous memory backend: a single flat
// slice, grown by reallocation on Append/Resize rather than by block.
// Adapted from the teacher's MemoryStorage (pkg/storage/memory.go),
// which kept a map[string]*core.Vector guarded by a mutex; here the map
// is replaced by dense float32 slots addressed by internal index, since
// identifier lookup is the translator's job (pkg/translator), not
// storage's. mu guards c.data's slice header: Resize can reallocate it
// entirely, which a concurrent Get must not observe half-written.
type contiguousStore struct {
	mu   sync.RWMutex
	dim  int
	data []float32 // len == n*dim
	n    int
}

func newContiguousStore(dim int) *contiguousStore {
	return &contiguousStore{dim: dim}
}

func (c *contiguousStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.n
}

func (c *contiguousStore) Dim() int { return c.dim }

func (c *contiguousStore) Get(i int) []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[i*c.dim : (i+1)*c.dim]
}

func (c *contiguousStore) Set(i int, src []float32) error {
	if len(src) != c.dim {
		return engineerr.Invalid("dimension mismatch: got %d, want %d", len(src), c.dim)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.data[i*c.dim:(i+1)*c.dim], src)
	return nil
}

func (c *contiguousStore) Append(src []float32) (int, error) {
	if len(src) != c.dim {
		return 0, engineerr.Invalid("dimension mismatch: got %d, want %d", len(src), c.dim)
	}
	c.mu.Lock()
	i := c.n
	need := (i + 1) * c.dim
	if need > cap(c.data) {
		grown := make([]float32, need, need*2+c.dim)
		copy(grown, c.data)
		c.data = grown
	} else {
		c.data = c.data[:need]
	}
	copy(c.data[i*c.dim:(i+1)*c.dim], src)
	c.n = i + 1
	c.mu.Unlock()
	return i, nil
}

func (c *contiguousStore) Resize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	need := n * c.dim
	if need > cap(c.data) {
		grown := make([]float32, need, need*2+c.dim)
		copy(grown, c.data)
		c.data = grown
	} else {
		c.data = c.data[:need]
	}
	c.n = n
}
