package fuzzy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifoldlab/clustermap/neighbors"
)

func TestSmoothKNNDistSatisfiesCardinality(t *testing.T) {
	distances := [][]float64{
		{1.0, 2.0, 3.0, 4.0, 5.0},
		{0.5, 1.5, 2.5, 3.5, 4.5},
		{2.0, 4.0, 6.0, 8.0, 10.0},
	}
	k := 5.0
	cal := SmoothKNNDist(distances, k, 1.0, 1)

	target := math.Log2(k)
	for i, row := range distances {
		require.Greater(t, cal.Sigma[i], 0.0, "sigma[%d]", i)

		psum := 0.0
		for _, d := range row {
			delta := d - cal.Rho[i]
			if delta > 0 {
				psum += math.Exp(-delta / cal.Sigma[i])
			} else {
				psum += 1.0
			}
		}
		assert.InDelta(t, target, psum, 1e-4, "cardinality equation for row %d", i)
	}
}

func TestSmoothKNNDistRhoIsFirstNonZero(t *testing.T) {
	// local connectivity 1.0 puts rho at the first non-zero distance.
	cal := SmoothKNNDist([][]float64{{0.0, 0.7, 1.4, 2.1}}, 4.0, 1.0, 1)
	assert.InDelta(t, 0.7, cal.Rho[0], 1e-12)
}

func TestSmoothKNNDistFractionalConnectivity(t *testing.T) {
	// 1.5 interpolates halfway between the first and second order statistic.
	cal := SmoothKNNDist([][]float64{{1.0, 2.0, 3.0, 4.0}}, 4.0, 1.5, 1)
	assert.InDelta(t, 1.5, cal.Rho[0], 1e-12)
}

func TestSmoothKNNDistSigmaFloor(t *testing.T) {
	// A row of identical distances pushes the search toward zero bandwidth;
	// the floor keeps sigma at 1e-3 of the row mean.
	distances := [][]float64{{1.0, 1.0, 1.0, 1.0}}
	cal := SmoothKNNDist(distances, 4.0, 1.0, 1)
	assert.GreaterOrEqual(t, cal.Sigma[0], 1e-3*1.0)
}

func TestSmoothKNNDistDeterministic(t *testing.T) {
	distances := [][]float64{
		{0.3, 0.9, 1.1, 2.7},
		{0.1, 0.2, 0.4, 0.8},
	}
	a := SmoothKNNDist(distances, 4.0, 1.0, 1)
	b := SmoothKNNDist(distances, 4.0, 1.0, 8)
	assert.Equal(t, a.Rho, b.Rho)
	assert.Equal(t, a.Sigma, b.Sigma)
}

func neighborLine() neighbors.Graph {
	return neighbors.Graph{
		Indices: [][]int{
			{1, 2},
			{0, 2},
			{1, 0},
		},
		Dists: [][]float64{
			{1.0, 2.0},
			{1.0, 1.0},
			{1.0, 2.0},
		},
		K: 2,
	}
}

func TestMembershipStrengthsRange(t *testing.T) {
	g := neighborLine()
	cal := SmoothKNNDist(g.Dists, 2.0, 1.0, 1)
	m := MembershipStrengths(g, cal)

	require.Greater(t, m.NNZ(), 0)
	for _, v := range m.Data {
		assert.Greater(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestMembershipStrengthsSkipsSentinel(t *testing.T) {
	g := neighbors.Graph{
		Indices: [][]int{{1, neighbors.Missing}, {0, neighbors.Missing}},
		Dists:   [][]float64{{1.0, 0.0}, {1.0, 0.0}},
		K:       2,
	}
	cal := SmoothKNNDist(g.Dists, 2.0, 1.0, 1)
	m := MembershipStrengths(g, cal)
	for _, c := range m.Cols {
		assert.NotEqual(t, neighbors.Missing, c)
	}
}

func TestSymmetrizeProducesSymmetricGraph(t *testing.T) {
	g := neighborLine()
	cal := SmoothKNNDist(g.Dists, 2.0, 1.0, 1)
	m := Symmetrize(MembershipStrengths(g, cal), 1.0)

	for i := range m.Data {
		r, c := m.Rows[i], m.Cols[i]
		assert.InDelta(t, m.Data[i], m.At(c, r), 1e-12, "edge (%d,%d)", r, c)
	}
}

func TestSymmetrizeSelfUnionIdempotence(t *testing.T) {
	// Combining a symmetric graph with itself under pure union maps each
	// weight w to 2w - w² on the same nonzero pattern.
	m := Coo{
		Rows: []int{0, 1, 1, 2},
		Cols: []int{1, 0, 2, 1},
		Data: []float64{0.5, 0.5, 0.25, 0.25},
		NRow: 3, NCol: 3,
	}
	u := Symmetrize(m, 1.0)
	require.Equal(t, m.NNZ(), u.NNZ())
	for i := range m.Data {
		w := m.Data[i]
		assert.InDelta(t, 2*w-w*w, u.At(m.Rows[i], m.Cols[i]), 1e-12)
	}
}

func TestSymmetrizePureIntersection(t *testing.T) {
	// Only reciprocated edges survive a pure intersection.
	m := Coo{
		Rows: []int{0, 1, 0},
		Cols: []int{1, 0, 2},
		Data: []float64{0.8, 0.5, 0.9},
		NRow: 3, NCol: 3,
	}
	inter := Symmetrize(m, 0.0)
	assert.InDelta(t, 0.4, inter.At(0, 1), 1e-12)
	assert.InDelta(t, 0.4, inter.At(1, 0), 1e-12)
	assert.Zero(t, inter.At(0, 2))
}

func TestCategoricalIntersection(t *testing.T) {
	// Two label-0 points, two label-1 points; one cross-label edge pair.
	m := Coo{
		Rows: []int{0, 1, 2, 3, 1, 2},
		Cols: []int{1, 0, 3, 2, 2, 1},
		Data: []float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
		NRow: 4, NCol: 4,
	}
	labels := []int{0, 0, 1, 1}
	out := CategoricalIntersection(m, labels, 1.0, 5.0)

	// Same-label edges keep full strength after renormalization.
	assert.InDelta(t, 1.0, out.At(0, 1), 1e-9)
	assert.InDelta(t, 1.0, out.At(2, 3), 1e-9)
	// The cross-label edge is heavily discounted relative to same-label ones.
	assert.Less(t, out.At(1, 2), 0.1)

	// Every row keeps at least one full-confidence edge.
	rowMax := make([]float64, 4)
	for i := range out.Data {
		if out.Data[i] > rowMax[out.Rows[i]] {
			rowMax[out.Rows[i]] = out.Data[i]
		}
	}
	for i, m := range rowMax {
		assert.InDelta(t, 1.0, m, 1e-9, "row %d", i)
	}
}

func TestCategoricalIntersectionUnknownLabels(t *testing.T) {
	m := Coo{
		Rows: []int{0, 1},
		Cols: []int{1, 0},
		Data: []float64{1.0, 1.0},
		NRow: 2, NCol: 2,
	}
	out := CategoricalIntersection(m, []int{0, UnknownLabel}, 1.0, 5.0)
	// Unknown labels never zero out a row entirely.
	assert.Greater(t, out.At(0, 1), 0.0)
}

func TestGeneralIntersectionMixExtremes(t *testing.T) {
	a := Coo{Rows: []int{0, 1}, Cols: []int{1, 0}, Data: []float64{0.9, 0.9}, NRow: 2, NCol: 2}
	b := Coo{Rows: []int{0, 1}, Cols: []int{1, 0}, Data: []float64{0.2, 0.2}, NRow: 2, NCol: 2}

	// mixWeight 0 ignores the second graph entirely.
	left := GeneralIntersection(a, b, 0.0)
	assert.InDelta(t, 0.9, left.At(0, 1), 1e-12)

	// mixWeight 1 ignores the first.
	right := GeneralIntersection(a, b, 1.0)
	assert.InDelta(t, 0.2, right.At(0, 1), 1e-12)
}

func TestPruneForEpochs(t *testing.T) {
	m := Coo{
		Rows: []int{0, 0, 1},
		Cols: []int{1, 2, 2},
		Data: []float64{1.0, 0.001, 0.5},
		NRow: 3, NCol: 3,
	}
	pruned := PruneForEpochs(m, 100)
	assert.Equal(t, 2, pruned.NNZ())
	assert.Zero(t, pruned.At(0, 2))
}

func TestEpochsPerSample(t *testing.T) {
	eps := EpochsPerSample([]float64{1.0, 0.5, 0.25, 0.0}, 200)
	assert.InDelta(t, 1.0, eps[0], 1e-12)
	assert.InDelta(t, 2.0, eps[1], 1e-12)
	assert.InDelta(t, 4.0, eps[2], 1e-12)
	assert.Equal(t, NeverSample, eps[3])
}

func TestEpochsPerSampleAllZero(t *testing.T) {
	eps := EpochsPerSample([]float64{0, 0, 0}, 200)
	for _, e := range eps {
		assert.Equal(t, NeverSample, e)
	}
}

func TestAutoEpochs(t *testing.T) {
	assert.Equal(t, 500, AutoEpochs(200))
	assert.Equal(t, 500, AutoEpochs(10000))
	assert.Equal(t, 200, AutoEpochs(10001))
}

func TestL1NormalizeRows(t *testing.T) {
	m := Coo{
		Rows: []int{0, 0, 1},
		Cols: []int{0, 1, 1},
		Data: []float64{1.0, 3.0, 2.0},
		NRow: 2, NCol: 2,
	}
	out := L1NormalizeRows(m)
	assert.InDelta(t, 0.25, out.Data[0], 1e-12)
	assert.InDelta(t, 0.75, out.Data[1], 1e-12)
	assert.InDelta(t, 1.0, out.Data[2], 1e-12)
}
