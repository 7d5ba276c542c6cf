// Package vamana implements the dynamic Vamana graph index of spec.md
// §4.7–§4.9: α-pruned candidate selection, incremental insertion with
// back-edge rewiring, soft deletion, two-phase consolidation, and
// compaction. The pruning algorithm is grounded directly on the
// Semafind reference's robustPrune
// (other_examples/7a0d03fb_Semafind-semadb__shard-index-vamana-search.go.go),
// the one concrete real-Go Vamana implementation in the retrieval pack.
package vamana

import (
	"sort"

	"github.com/svsgo/engine/pkg/core"
	"github.com/svsgo/engine/pkg/distance"
)

// candidate is one entry considered during robust pruning: an internal
// slot, its distance from the node being pruned, and whether a later
// pass has eliminated it from consideration (the Semafind reference's
// pruneRemoved flag).
type candidate struct {
	idx     core.InternalIndex
	dist    float32
	removed bool
}

// RobustPrune implements the α-pruning rule of spec.md §4.7 step 2–3:
// sort candidates by distance from self, accept each in turn unless
// some already-accepted neighbor n satisfies α·distance(c, n) ≤
// distance(c, v) (i.e. n is already a sufficiently good proxy for c),
// stop at pruneTo entries.
//
// baseMetric is the metric used to score candidate-to-candidate
// distances during the second inner loop (robustPrune's "distFn" over
// the closest element), not candidate-to-self distances, which the
// caller supplies pre-computed in cands[i].dist.
func RobustPrune(self core.InternalIndex, cands []candidate, alpha float32, pruneTo int, acc Accessor, pol distance.Polarity, baseMetric distance.Metric) []core.InternalIndex {
	sort.Slice(cands, func(i, j int) bool {
		return distance.Closer(pol, cands[i].dist, cands[j].dist)
	})

	out := make([]core.InternalIndex, 0, pruneTo)
	for i := range cands {
		c := cands[i]
		if c.removed || c.idx == self {
			continue
		}
		out = append(out, c.idx)
		if len(out) >= pruneTo {
			break
		}

		selfVec := acc.Vector(c.idx)
		for j := i + 1; j < len(cands); j++ {
			if cands[j].removed {
				continue
			}
			d := distance.Compute(baseMetric, selfVec, acc.Vector(cands[j].idx))
			// α·distance(c, next) ≤ distance-from-self(next) is the
			// reference's elimination test, adapted so "closer" holds
			// under either metric's polarity: for L2 the threshold is
			// d·α (α>1 grows it, making elimination harder), for inner
			// product, where larger is closer, it is d/α, and the
			// comparison runs in the metric's own polarity via Closer,
			// with a tie also eliminating.
			threshold := d
			if pol == distance.GreaterIsCloser {
				threshold = d / alpha
			} else {
				threshold = d * alpha
			}
			if distance.Closer(pol, threshold, cands[j].dist) || threshold == cands[j].dist {
				cands[j].removed = true
			}
		}
	}
	return out
}

// Accessor is the read surface RobustPrune needs: decode a slot's
// stored vector to compute candidate-to-candidate distances.
type Accessor interface {
	Vector(i core.InternalIndex) []float32
}
