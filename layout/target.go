package layout

import (
	"math"

	"github.com/manifoldlab/clustermap/internal/parallel"
)

// SoftAssign computes the soft cluster-assignment matrix: q[i][k] is the
// Student-t-like kernel 1/(1 + a·d²ᵇ) between point i and centroid k, the
// same kernel shape the manifold attraction uses.
func SoftAssign(embedding, centroids [][]float64, a, b float64, workers int) [][]float64 {
	n := len(embedding)
	q := make([][]float64, n)
	parallel.For(n, workers, func(i int) {
		row := make([]float64, len(centroids))
		for k := range centroids {
			d2 := squaredDist(embedding[i], centroids[k])
			row[k] = 1.0 / (1.0 + a*math.Pow(d2, b))
		}
		q[i] = row
	})
	return q
}

// TargetDistribution sharpens soft assignments into a self-training target:
// each weight is squared and divided by its cluster's total mass, then rows
// are renormalized to sum to one. Confident assignments are reinforced,
// ambiguous ones pulled toward their nearest cluster.
func TargetDistribution(q [][]float64) [][]float64 {
	if len(q) == 0 {
		return nil
	}
	nClusters := len(q[0])

	colSum := make([]float64, nClusters)
	for i := range q {
		for k, v := range q[i] {
			colSum[k] += v
		}
	}

	target := make([][]float64, len(q))
	for i := range q {
		row := make([]float64, nClusters)
		var rowSum float64
		for k, v := range q[i] {
			if colSum[k] > 0 {
				row[k] = v * v / colSum[k]
			}
			rowSum += row[k]
		}
		if rowSum > 0 {
			for k := range row {
				row[k] /= rowSum
			}
		}
		target[i] = row
	}
	return target
}

// HardLabels returns the argmax cluster per row of a soft-assignment matrix.
func HardLabels(q [][]float64) []int {
	labels := make([]int, len(q))
	for i, row := range q {
		best := 0
		for k, v := range row {
			if v > row[best] {
				best = k
			}
		}
		labels[i] = best
	}
	return labels
}

// labelDelta is the fraction of points whose label differs between two
// assignments. Used by the opt-in stability stopping rule.
func labelDelta(prev, next []int) float64 {
	if len(prev) == 0 {
		return 1.0
	}
	changed := 0
	for i := range prev {
		if prev[i] != next[i] {
			changed++
		}
	}
	return float64(changed) / float64(len(prev))
}

func squaredDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
