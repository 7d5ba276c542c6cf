// Package ivfindex implements the dynamic IVF (inverted-file) index of
// spec.md §4.10: centroid-rooted posting lists over block-allocated
// arenas, with two-level parallel search (outer over queries, inner
// over probed clusters). Centroids stay fixed after training; the
// insert path that assigns each vector to its nearest centroid is
// grounded on the teacher's insertIVF (pkg/index/ivf.go); k-means
// training itself has no teacher implementation (the teacher's
// centroids are seeded lazily from the first inserted vector per
// cluster), so clustering here follows spec.md §4.10's own description
// of Lloyd's-algorithm training directly.
package ivfindex

import (
	"math/rand"

	"github.com/svsgo/engine/pkg/config"
	"github.com/svsgo/engine/pkg/distance"
)

// TrainCentroids runs flat k-means (Lloyd's algorithm) over a training
// sample to produce numCentroids centroid vectors, per spec.md §4.10's
// clustering build step. When bp.IsHierarchical is set, training
// proceeds in two levels: HierarchicalLevel1Clusters coarse centroids
// first, then NumCentroids/level1 fine centroids trained within each
// coarse partition — SPEC_FULL's "hierarchical two-level" supplement.
func TrainCentroids(samples [][]float32, dim int, bp config.IVFBuildParameters, metric distance.Metric) [][]float32 {
	if bp.IsHierarchical && bp.HierarchicalLevel1Clusters > 0 && bp.HierarchicalLevel1Clusters < bp.NumCentroids {
		return trainHierarchical(samples, dim, bp, metric)
	}
	return lloyd(samples, dim, bp.NumCentroids, bp.NumIterations, bp.MinibatchSize, bp.Seed, metric)
}

func trainHierarchical(samples [][]float32, dim int, bp config.IVFBuildParameters, metric distance.Metric) [][]float32 {
	level1 := lloyd(samples, dim, bp.HierarchicalLevel1Clusters, bp.NumIterations, bp.MinibatchSize, bp.Seed, metric)
	perLevel1 := bp.NumCentroids / bp.HierarchicalLevel1Clusters
	if perLevel1 < 1 {
		perLevel1 = 1
	}

	buckets := make([][][]float32, len(level1))
	for _, s := range samples {
		c := nearestCentroid(s, level1, metric)
		buckets[c] = append(buckets[c], s)
	}

	var out [][]float32
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		out = append(out, lloyd(bucket, dim, perLevel1, bp.NumIterations, bp.MinibatchSize, bp.Seed, metric)...)
	}
	return out
}

// lloyd is plain flat k-means: random initial centroids (seeded for
// reproducibility), alternating assign/update for numIterations
// rounds. minibatchSize bounds how many samples are used per update
// round when the training set is large, per spec.md §6's
// minibatch_size build parameter.
func lloyd(samples [][]float32, dim, k, iterations, minibatchSize int, seed uint64, metric distance.Metric) [][]float32 {
	if k > len(samples) {
		k = len(samples)
	}
	if k == 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(int64(seed)))

	centroids := make([][]float32, k)
	perm := rng.Perm(len(samples))
	for i := 0; i < k; i++ {
		c := make([]float32, dim)
		copy(c, samples[perm[i]])
		centroids[i] = c
	}

	if minibatchSize <= 0 || minibatchSize > len(samples) {
		minibatchSize = len(samples)
	}

	for iter := 0; iter < iterations; iter++ {
		batch := samples
		if minibatchSize < len(samples) {
			idxs := rng.Perm(len(samples))[:minibatchSize]
			batch = make([][]float32, minibatchSize)
			for i, si := range idxs {
				batch[i] = samples[si]
			}
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for _, s := range batch {
			c := nearestCentroid(s, centroids, metric)
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += s[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32, metric distance.Metric) int {
	pol := distance.PolarityOf(metric)
	best := 0
	bestDist := distance.Compute(metric, v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		d := distance.Compute(metric, v, centroids[i])
		if distance.Closer(pol, d, bestDist) {
			best, bestDist = i, d
		}
	}
	return best
}
