package layout

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manifoldlab/clustermap/fuzzy"
)

// spectralLayout embeds the graph via the eigenvectors of its symmetric
// normalized Laplacian: the nComponents eigenvectors following the trivial
// one give coordinates that respect the graph's global structure. Dense
// eigendecomposition; intended for the dataset sizes the brute-force
// neighbor provider handles.
func spectralLayout(graph fuzzy.Coo, nSamples, nComponents int) ([][]float64, bool) {
	if nSamples < 2 || nComponents+1 > nSamples {
		return nil, false
	}

	adj := mat.NewSymDense(nSamples, nil)
	for i := range graph.Data {
		r, c := graph.Rows[i], graph.Cols[i]
		if r <= c {
			adj.SetSym(r, c, graph.Data[i])
		}
	}

	degrees := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		for j := 0; j < nSamples; j++ {
			degrees[i] += adj.At(i, j)
		}
	}

	// L = I - D^(-1/2) A D^(-1/2)
	laplacian := mat.NewSymDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		laplacian.SetSym(i, i, 1.0)
		for j := i + 1; j < nSamples; j++ {
			if degrees[i] > 0 && degrees[j] > 0 {
				laplacian.SetSym(i, j, -adj.At(i, j)/math.Sqrt(degrees[i]*degrees[j]))
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(laplacian, true); !ok {
		return nil, false
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// EigenSym orders eigenvalues ascending; skip the trivial first one.
	embedding := make([][]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		embedding[i] = make([]float64, nComponents)
		for d := 0; d < nComponents; d++ {
			embedding[i][d] = vectors.At(i, d+1)
		}
	}
	return embedding, true
}
