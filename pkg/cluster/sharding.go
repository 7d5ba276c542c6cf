package cluster

import (
	"crypto/md5"
	"encoding/binary"
	"sort"
	"sync"
)

// HashSharding maps an arbitrary key (typically a shard-routing key
// chosen by the caller, e.g. an external id's string form) to one of
// shardCount shards, and maps each shard to the node currently
// responsible for it.
type HashSharding struct {
	mu         sync.RWMutex
	shardCount int
	assignment map[int]string // shard -> node ID
}

// NewHashSharding creates a hash-sharding strategy over shardCount shards.
func NewHashSharding(shardCount int) *HashSharding {
	return &HashSharding{
		shardCount: shardCount,
		assignment: make(map[int]string),
	}
}

// ShardFor returns the shard a key hashes to.
func (h *HashSharding) ShardFor(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sum := md5.Sum([]byte(key))
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(h.shardCount))
}

// ShardCount returns the total number of shards.
func (h *HashSharding) ShardCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shardCount
}

// Owner returns the node ID assigned to shardID, if known.
func (h *HashSharding) Owner(shardID int) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.assignment[shardID]
	return id, ok
}

// Rebalance recomputes shard ownership by distributing shards in
// round-robin order across the given node IDs, sorted for determinism
// so that every node in the set computes the same assignment
// independently from the same membership view.
func (h *HashSharding) Rebalance(nodeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.assignment = make(map[int]string, h.shardCount)
	if len(nodeIDs) == 0 {
		return
	}
	sorted := append([]string(nil), nodeIDs...)
	sort.Strings(sorted)
	for shard := 0; shard < h.shardCount; shard++ {
		h.assignment[shard] = sorted[shard%len(sorted)]
	}
}
