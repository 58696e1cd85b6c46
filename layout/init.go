package layout

import (
	"math"
	"math/rand"

	"github.com/manifoldlab/clustermap/fuzzy"
)

// RandomInit places points uniformly in the [-10, 10] box.
func RandomInit(nSamples, nComponents int, rng *rand.Rand) [][]float64 {
	embedding := make([][]float64, nSamples)
	for i := range embedding {
		embedding[i] = make([]float64, nComponents)
		for d := range embedding[i] {
			embedding[i][d] = rng.Float64()*20.0 - 10.0
		}
	}
	return embedding
}

// SpectralInit seeds the embedding from the graph Laplacian's leading
// eigenvectors and adds a small Gaussian jitter to break ties. Falls back to
// RandomInit when the eigendecomposition is unavailable.
func SpectralInit(graph fuzzy.Coo, nSamples, nComponents int, rng *rand.Rand) [][]float64 {
	embedding, ok := spectralLayout(graph, nSamples, nComponents)
	if !ok {
		return RandomInit(nSamples, nComponents, rng)
	}

	// Expand to the same scale random init uses, then jitter.
	var maxAbs float64
	for i := range embedding {
		for _, v := range embedding[i] {
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
	}
	expansion := 1.0
	if maxAbs > 0 {
		expansion = 10.0 / maxAbs
	}
	for i := range embedding {
		for d := range embedding[i] {
			embedding[i][d] = embedding[i][d]*expansion + rng.NormFloat64()*0.0001
		}
	}
	return embedding
}

// FromCoordinates adopts a caller-supplied layout. Duplicated positions gain
// a small jitter proportional to the mean nearest-neighbor spacing so no two
// points start coincident.
func FromCoordinates(init [][]float64, rng *rand.Rand) [][]float64 {
	embedding := make([][]float64, len(init))
	for i := range init {
		embedding[i] = append([]float64(nil), init[i]...)
	}
	if !hasDuplicateRows(embedding) {
		return embedding
	}

	scale := 0.001 * meanNearestNeighborDist(embedding)
	if scale == 0 {
		scale = 0.001
	}
	for i := range embedding {
		for d := range embedding[i] {
			embedding[i][d] += rng.NormFloat64() * scale
		}
	}
	return embedding
}

func hasDuplicateRows(points [][]float64) bool {
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		key := rowKey(p)
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

func rowKey(p []float64) string {
	buf := make([]byte, 0, len(p)*8)
	for _, v := range p {
		bits := math.Float64bits(v)
		for s := 0; s < 64; s += 8 {
			buf = append(buf, byte(bits>>s))
		}
	}
	return string(buf)
}

func meanNearestNeighborDist(points [][]float64) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		best := math.Inf(1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if d := squaredDist(points[i], points[j]); d < best {
				best = d
			}
		}
		total += math.Sqrt(best)
	}
	return total / float64(n)
}
