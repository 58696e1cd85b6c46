// Package cluster provides the initial-partition capability used to seed the
// centroid half of the joint optimizer. The optimizer only needs "given an
// embedding and k, hand me centroids and a hard assignment", so any
// clustering algorithm can stand behind the Partitioner interface.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Partitioner produces an initial hard clustering of an embedding.
type Partitioner interface {
	Partition(points [][]float64, k int, seed int64) (centroids [][]float64, labels []int, err error)
}

// KMeans is a seeded Lloyd's-algorithm partitioner with k-means++
// initialization and a cluster-stability stopping rule.
type KMeans struct {
	// MaxIterations caps Lloyd iterations. Zero means the default of 100.
	MaxIterations int
	// DeltaThreshold stops iterating once the fraction of points changing
	// clusters drops to or below it. Zero stops only on full stability.
	DeltaThreshold float64
}

// Partition implements Partitioner.
func (km KMeans) Partition(points [][]float64, k int, seed int64) ([][]float64, []int, error) {
	n := len(points)
	if n == 0 {
		return nil, nil, errors.New("cluster: no points to partition")
	}
	if k < 1 {
		return nil, nil, fmt.Errorf("cluster: k must be positive, got %d", k)
	}
	if k > n {
		return nil, nil, fmt.Errorf("cluster: k=%d exceeds point count %d", k, n)
	}
	dim := len(points[0])

	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := plusPlusInit(points, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changes := 0
		for i, p := range points {
			best := nearestCentroid(p, centroids)
			if best != labels[i] {
				labels[i] = best
				changes++
			}
		}

		if iter > 0 && float64(changes)/float64(n) <= km.DeltaThreshold {
			break
		}

		// Recompute centroids; an emptied cluster keeps its previous
		// position rather than collapsing to the origin.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d := range p {
				sums[c][d] += p[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	return centroids, labels, nil
}

// plusPlusInit spreads the initial centroids: each next center is drawn with
// probability proportional to squared distance from the nearest existing one.
func plusPlusInit(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), points[rng.Intn(n)]...))

	dists := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			d := math.Inf(1)
			for _, c := range centroids {
				if dd := squaredDistance(p, c); dd < d {
					d = dd
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			// All remaining points coincide with existing centers.
			centroids = append(centroids, append([]float64(nil), points[rng.Intn(n)]...))
			continue
		}

		target := rng.Float64() * total
		var acc float64
		chosen := n - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), points[chosen]...))
	}
	return centroids
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
