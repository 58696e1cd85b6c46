package layout

import "github.com/manifoldlab/clustermap/fuzzy"

// InitTransformEmbedding seeds new points as the weighted average of the
// embedded positions of their fitted neighbors. weights is the L1-normalized
// bipartite membership graph (rows: new points, cols: fitted points).
func InitTransformEmbedding(weights fuzzy.Coo, fitted [][]float64, nComponents int) [][]float64 {
	embedding := make([][]float64, weights.NRow)
	for i := range embedding {
		embedding[i] = make([]float64, nComponents)
	}
	for idx := range weights.Data {
		row := weights.Rows[idx]
		src := fitted[weights.Cols[idx]]
		w := weights.Data[idx]
		for d := 0; d < nComponents; d++ {
			embedding[row][d] += w * src[d]
		}
	}
	return embedding
}

// TransformEpochs derives the reduced epoch budget of the transform pass: a
// third of an explicit budget, or a size-based default.
func TransformEpochs(fitEpochs, nSamples int) int {
	if fitEpochs <= 0 {
		if nSamples <= 10000 {
			return 100
		}
		return 30
	}
	epochs := fitEpochs / 3
	if epochs < 1 {
		epochs = 1
	}
	return epochs
}
