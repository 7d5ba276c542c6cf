// Package storage provides the float32 vector storage backends of
// spec.md §4.2: a contiguous variant and a block-allocated variant
// (pkg/storage.BlockStore) required by any index that supports
// insertion.
package storage

import (
	"context"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/engineerr"
)

// Kind names a storage backend implementation.
type Kind string

const (
	KindMemory  Kind = "memory"  // contiguous, grown by reallocation
	KindBlocked Kind = "blocked" // block-allocated, append-only growth
	KindMMap    Kind = "mmap"
	KindLevelDB Kind = "leveldb" // archive-only, see archive.go
)

// Backend is the storage contract of spec.md §4.2: own the raw vector
// data, offer random-access read, mutable-slot overwrite, append/grow,
// and (for blocked variants) resize.
type Backend interface {
	// Len returns the number of addressable slots.
	Len() int
	// Dim returns the fixed dimension of every slot.
	Dim() int
	// Get returns a read-only view of slot i.
	Get(i int) []float32
	// Set overwrites slot i from src.
	Set(i int, src []float32) error
	// Append grows the backend by one slot holding src, returning its
	// new index. Blocked backends append in O(1) amortized; contiguous
	// backends may need to reallocate.
	Append(src []float32) (int, error)
	// Resize grows or shrinks to exactly n slots.
	Resize(n int)
}

// Stats mirrors the teacher's StorageStats shape, trimmed to the
// dimensions this engine actually tracks.
type Stats struct {
	Slots        int64
	MemoryBytes  int64
	AvgWriteUs   float64
	AvgReadUs    float64
}

// Config selects and parameterizes a Backend.
type Config struct {
	Kind      Kind
	Dimension int
	BlockSize int // bytes; 0 selects the package default (blocked only)
}

// New builds a Backend per config.Kind.
func New(cfg Config) (Backend, error) {
	if cfg.Dimension <= 0 {
		return nil, engineerr.Invalid("storage dimension must be positive, got %d", cfg.Dimension)
	}
	switch cfg.Kind {
	case "", KindBlocked:
		return NewBlockStore(cfg.Dimension, cfg.BlockSize), nil
	case KindMemory:
		return newContiguousStore(cfg.Dimension), nil
	default:
		return nil, engineerr.New(engineerr.InvalidArgument, "unknown storage kind: "+string(cfg.Kind))
	}
}

// Accessor is what the distance adapter uses to fetch decoded vectors
// out of a Backend without caring which concrete implementation it is.
type Accessor interface {
	Get(i int) []float32
}

// vectorStream is a minimal context-aware bulk-write shape, kept for
// parity with the teacher's Write/WriteWithContext pairing; nothing in
// this module implements or calls it.
type vectorStream interface {
	WriteWithContext(ctx context.Context, vectors []core.Vector) error
}
