// Package neighbors defines the nearest-neighbor graph contract consumed by
// the fuzzy simplicial set builder, plus an exact brute-force provider used
// for in-process search. An approximate provider (NN-descent, rp-forest)
// can be plugged in behind the same contract for large datasets.
package neighbors

import (
	"errors"
	"fmt"
	"sort"

	"github.com/manifoldlab/clustermap/internal/parallel"
	"github.com/manifoldlab/clustermap/metric"
)

// Missing marks a neighbor slot that could not be filled. Rows are padded
// with it when a point has fewer than k valid neighbors.
const Missing = -1

// Graph holds, for each point, the indices and distances of its k nearest
// neighbors. Distances within a row are non-decreasing. A point never lists
// itself as a neighbor.
type Graph struct {
	Indices [][]int
	Dists   [][]float64
	K       int
}

// Provider produces a k-nearest-neighbor graph for a dataset.
type Provider interface {
	Search(data [][]float64, k int) (Graph, error)
}

// BruteForce is an exact O(n²) provider.
type BruteForce struct {
	Metric  metric.Metric
	Workers int
}

type distIdx struct {
	dist float64
	idx  int
}

// Search implements Provider.
func (b BruteForce) Search(data [][]float64, k int) (Graph, error) {
	n := len(data)
	if n == 0 {
		return Graph{}, errors.New("neighbors: empty dataset")
	}
	if k < 1 || k > n-1 {
		return Graph{}, fmt.Errorf("neighbors: k=%d out of range for %d points", k, n)
	}
	m := b.Metric
	if m == nil {
		m = metric.Euclidean{}
	}

	g := Graph{
		Indices: make([][]int, n),
		Dists:   make([][]float64, n),
		K:       k,
	}

	parallel.For(n, b.Workers, func(i int) {
		cand := make([]distIdx, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			cand = append(cand, distIdx{dist: m.Distance(data[i], data[j]), idx: j})
		}
		sort.Slice(cand, func(a, c int) bool {
			if cand[a].dist != cand[c].dist {
				return cand[a].dist < cand[c].dist
			}
			return cand[a].idx < cand[c].idx
		})
		g.Indices[i], g.Dists[i] = takeK(cand, k)
	})

	return g, nil
}

// SearchAmong finds, for each query point, its k nearest neighbors among the
// reference points. Used by the out-of-sample transform, where queries are
// new points and references are the fitted data.
func (b BruteForce) SearchAmong(queries, refs [][]float64, k int) (Graph, error) {
	if len(refs) == 0 {
		return Graph{}, errors.New("neighbors: empty reference set")
	}
	if k < 1 || k > len(refs) {
		return Graph{}, fmt.Errorf("neighbors: k=%d out of range for %d references", k, len(refs))
	}
	m := b.Metric
	if m == nil {
		m = metric.Euclidean{}
	}

	n := len(queries)
	g := Graph{
		Indices: make([][]int, n),
		Dists:   make([][]float64, n),
		K:       k,
	}

	parallel.For(n, b.Workers, func(i int) {
		cand := make([]distIdx, len(refs))
		for j := range refs {
			cand[j] = distIdx{dist: m.Distance(queries[i], refs[j]), idx: j}
		}
		sort.Slice(cand, func(a, c int) bool {
			if cand[a].dist != cand[c].dist {
				return cand[a].dist < cand[c].dist
			}
			return cand[a].idx < cand[c].idx
		})
		g.Indices[i], g.Dists[i] = takeK(cand, k)
	})

	return g, nil
}

// FromDistanceMatrix builds a neighbor graph from a precomputed n×n distance
// matrix. The diagonal is skipped, matching the no-self-neighbor invariant.
func FromDistanceMatrix(dmat [][]float64, k int) (Graph, error) {
	n := len(dmat)
	if n == 0 {
		return Graph{}, errors.New("neighbors: empty distance matrix")
	}
	for i, row := range dmat {
		if len(row) != n {
			return Graph{}, fmt.Errorf("neighbors: distance matrix row %d has %d entries, want %d", i, len(row), n)
		}
	}
	if k < 1 || k > n-1 {
		return Graph{}, fmt.Errorf("neighbors: k=%d out of range for %d points", k, n)
	}

	g := Graph{
		Indices: make([][]int, n),
		Dists:   make([][]float64, n),
		K:       k,
	}

	parallel.For(n, 0, func(i int) {
		cand := make([]distIdx, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			cand = append(cand, distIdx{dist: dmat[i][j], idx: j})
		}
		sort.Slice(cand, func(a, c int) bool {
			if cand[a].dist != cand[c].dist {
				return cand[a].dist < cand[c].dist
			}
			return cand[a].idx < cand[c].idx
		})
		g.Indices[i], g.Dists[i] = takeK(cand, k)
	})

	return g, nil
}

func takeK(sorted []distIdx, k int) ([]int, []float64) {
	idx := make([]int, k)
	dist := make([]float64, k)
	for j := 0; j < k; j++ {
		if j < len(sorted) {
			idx[j] = sorted[j].idx
			dist[j] = sorted[j].dist
		} else {
			idx[j] = Missing
			dist[j] = 0
		}
	}
	return idx, dist
}
