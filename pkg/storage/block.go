package storage

import (
	"sync"

	"github.com/svsgo/engine/pkg/engineerr"
)

// defaultBlockSize is the block size in bytes spec.md §4.3 names as the
// default (~1 MB).
const defaultBlockSize = 1 << 20

// BlockStore is the block-allocated dense store of spec.md §4.3: a
// growable vector store built from fixed-size blocks of element slots,
// addressed by a dense 0-based index. Growth is strictly by-block
// append — existing blocks are never moved or rewritten — so a view
// returned by Get remains valid until the slot is overwritten or the
// store is destroyed, matching spec.md §5's "search threads holding
// indices into the store cannot race against an ongoing insertion that
// only appends." mu guards the one thing that actually moves during
// growth: the outer []block slice header itself, which Resize/Append
// can reallocate independently of the block contents it points at.
type BlockStore struct {
	mu            sync.RWMutex
	dim           int
	slotsPerBlock int
	blockSize     int // bytes
	blocks        [][]float32
	length        int // number of valid slots (len())
}

// NewBlockStore creates a store for dim-dimensional float32 vectors
// using blockSize-byte blocks (0 selects the spec default).
func NewBlockStore(dim int, blockSize int) *BlockStore {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	slotsPerBlock := blockSize / (dim * 4)
	if slotsPerBlock < 1 {
		slotsPerBlock = 1
	}
	return &BlockStore{
		dim:           dim,
		slotsPerBlock: slotsPerBlock,
		blockSize:     blockSize,
	}
}

// Dim returns the store's fixed dimension.
func (b *BlockStore) Dim() int { return b.dim }

// Len returns the number of slots currently addressable.
func (b *BlockStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.length
}

// Resize grows or shrinks the store to exactly n slots. Shrinking is
// only safe when no live view extends past n, which the engine
// guarantees by only shrinking during compaction after readers have
// drained (spec.md §4.3).
func (b *BlockStore) Resize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wantBlocks := (n + b.slotsPerBlock - 1) / b.slotsPerBlock
	for len(b.blocks) < wantBlocks {
		b.blocks = append(b.blocks, make([]float32, b.slotsPerBlock*b.dim))
	}
	if wantBlocks < len(b.blocks) {
		b.blocks = b.blocks[:wantBlocks]
	}
	b.length = n
}

// Get returns a non-owning view of slot i. The view aliases the
// backing block directly: callers must not retain it past the slot
// being overwritten by a future Set.
func (b *BlockStore) Get(i int) []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	block, offset := b.locate(i)
	return b.blocks[block][offset : offset+b.dim]
}

// Set bulk-copies src into slot i. len(src) must equal Dim().
func (b *BlockStore) Set(i int, src []float32) error {
	if len(src) != b.dim {
		return engineerr.Invalid("dimension mismatch: got %d, want %d", len(src), b.dim)
	}
	b.mu.RLock()
	block, offset := b.locate(i)
	dst := b.blocks[block][offset : offset+b.dim]
	b.mu.RUnlock()
	copy(dst, src)
	return nil
}

func (b *BlockStore) locate(i int) (block, offset int) {
	block = i / b.slotsPerBlock
	offset = (i % b.slotsPerBlock) * b.dim
	return
}

// Append grows the store by one slot holding src and returns its index.
func (b *BlockStore) Append(src []float32) (int, error) {
	b.mu.Lock()
	i := b.length
	wantBlocks := (i + 1 + b.slotsPerBlock - 1) / b.slotsPerBlock
	for len(b.blocks) < wantBlocks {
		b.blocks = append(b.blocks, make([]float32, b.slotsPerBlock*b.dim))
	}
	b.length = i + 1
	b.mu.Unlock()

	if err := b.Set(i, src); err != nil {
		b.mu.Lock()
		b.length = i
		b.mu.Unlock()
		return 0, err
	}
	return i, nil
}
