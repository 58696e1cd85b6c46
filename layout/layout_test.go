package layout

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifoldlab/clustermap/fuzzy"
)

func TestFitCurveParams(t *testing.T) {
	a, b := FitCurveParams(1.0, 0.1)
	require.Greater(t, a, 0.0)
	require.Greater(t, b, 0.0)

	// The fitted kernel should be near 1 at min_dist and decay beyond it.
	atMinDist := 1.0 / (1.0 + a*math.Pow(0.1, 2*b))
	assert.Greater(t, atMinDist, 0.8)
	atSpread := 1.0 / (1.0 + a*math.Pow(2.0, 2*b))
	assert.Less(t, atSpread, atMinDist)
}

func TestFitCurveParamsDeterministic(t *testing.T) {
	a1, b1 := FitCurveParams(1.0, 0.25)
	a2, b2 := FitCurveParams(1.0, 0.25)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestRandomInitBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	emb := RandomInit(40, 3, rng)
	require.Len(t, emb, 40)
	for _, row := range emb {
		require.Len(t, row, 3)
		for _, v := range row {
			assert.GreaterOrEqual(t, v, -10.0)
			assert.LessOrEqual(t, v, 10.0)
		}
	}
}

func chainGraph(n int) fuzzy.Coo {
	g := fuzzy.Coo{NRow: n, NCol: n}
	for i := 0; i < n-1; i++ {
		g.Rows = append(g.Rows, i, i+1)
		g.Cols = append(g.Cols, i+1, i)
		g.Data = append(g.Data, 1.0, 1.0)
	}
	return g
}

func TestSpectralInitShapeAndScale(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	emb := SpectralInit(chainGraph(30), 30, 2, rng)
	require.Len(t, emb, 30)

	var maxAbs float64
	for _, row := range emb {
		require.Len(t, row, 2)
		for _, v := range row {
			require.False(t, math.IsNaN(v))
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
	}
	assert.LessOrEqual(t, maxAbs, 10.5)
	assert.Greater(t, maxAbs, 0.0)
}

func TestFromCoordinatesJittersDuplicates(t *testing.T) {
	init := [][]float64{{1, 1}, {1, 1}, {2, 2}}
	rng := rand.New(rand.NewSource(3))
	emb := FromCoordinates(init, rng)
	assert.NotEqual(t, emb[0], emb[1], "coincident points must be separated")
	// Original array must not be mutated.
	assert.Equal(t, []float64{1, 1}, init[0])
}

func TestFromCoordinatesKeepsDistinctPointsExact(t *testing.T) {
	init := [][]float64{{0, 0}, {1, 0}, {2, 0}}
	emb := FromCoordinates(init, rand.New(rand.NewSource(4)))
	assert.Equal(t, init, emb)
}

func TestTargetDistributionRowsSumToOne(t *testing.T) {
	q := [][]float64{
		{0.9, 0.1, 0.3},
		{0.2, 0.8, 0.1},
		{0.5, 0.5, 0.5},
	}
	target := TargetDistribution(q)
	for i, row := range target {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
	}
}

func TestTargetDistributionSharpens(t *testing.T) {
	// A confident assignment should get even more confident.
	q := [][]float64{
		{0.9, 0.1},
		{0.8, 0.2},
		{0.1, 0.9},
	}
	target := TargetDistribution(q)
	assert.Greater(t, target[0][0], q[0][0]/(q[0][0]+q[0][1]))
}

func TestSoftAssignKernelRange(t *testing.T) {
	emb := [][]float64{{0, 0}, {1, 0}, {5, 5}}
	centroids := [][]float64{{0, 0}, {5, 5}}
	q := SoftAssign(emb, centroids, 1.5, 0.9, 1)
	for i, row := range q {
		for k, v := range row {
			assert.Greater(t, v, 0.0, "q[%d][%d]", i, k)
			assert.LessOrEqual(t, v, 1.0, "q[%d][%d]", i, k)
		}
	}
	// Point 0 sits on centroid 0 exactly.
	assert.InDelta(t, 1.0, q[0][0], 1e-12)
}

func TestSoftAssignParallelDeterministic(t *testing.T) {
	emb := RandomInit(100, 2, rand.New(rand.NewSource(5)))
	centroids := [][]float64{{1, 1}, {-1, -1}, {3, 0}}
	q1 := SoftAssign(emb, centroids, 1.6, 0.9, 1)
	q2 := SoftAssign(emb, centroids, 1.6, 0.9, 8)
	assert.Equal(t, q1, q2)
}

func TestHardLabels(t *testing.T) {
	labels := HardLabels([][]float64{{0.1, 0.9}, {0.7, 0.3}})
	assert.Equal(t, []int{1, 0}, labels)
}

func TestClipBounds(t *testing.T) {
	assert.Equal(t, 4.0, clipTo(100, manifoldClip))
	assert.Equal(t, -4.0, clipTo(-100, manifoldClip))
	assert.Equal(t, 1.0, clipTo(2, clusterClip))
	assert.Equal(t, 0.5, clipTo(0.5, clusterClip))
}

// kernelGrad is the magnitude of the attraction gradient at distance d,
// before clipping: 2ab·d^(2b−1)/(a·d^(2b)+1).
func kernelGrad(d, a, b float64) float64 {
	return 2 * a * b * math.Pow(d, 2*b-1) / (a*math.Pow(d, 2*b) + 1)
}

func TestOptimizeLayoutClipsCoordinateUpdates(t *testing.T) {
	// One edge between two 1-D points whose raw attraction gradient exceeds
	// the clip bound: steep kernel (a=10, b=2.5) at distance 0.7.
	p := Params{A: 10, B: 2.5, Gamma: 1, InitialAlpha: 1, NegativeSampleRate: 0, Epochs: 2, Workers: 1}
	require.Greater(t, kernelGrad(0.7, p.A, p.B), manifoldClip)

	emb := [][]float64{{0}, {0.7}}
	heads := []int{0}
	tails := []int{1}
	eps := []float64{1.0}

	OptimizeLayout(emb, emb, heads, tails, eps, true, rand.New(rand.NewSource(10)), p)

	// The edge fires exactly once, at full learning rate. The per-coordinate
	// update must be the clipped gradient, not the raw one and not the
	// clipped coefficient rescaled by the coordinate difference.
	assert.InDelta(t, manifoldClip, emb[0][0], 1e-12)
	assert.InDelta(t, 0.7-manifoldClip, emb[1][0], 1e-12)
}

func TestJointOptimizeClipsClusterForce(t *testing.T) {
	// Zero manifold rate isolates the cluster force: the only point motion
	// comes from the clipped centroid attraction.
	p := Params{
		A: 10, B: 2.5,
		Gamma:              1.0,
		InitialAlpha:       1.0,
		NegativeSampleRate: 0,
		ClusterEpochs:      2,
		UpdateInterval:     1,
		ClusterAlpha:       0,
		ClusterForceScale:  0.5,
		CentroidDamping:    100,
		Workers:            1,
	}

	emb := [][]float64{{0}, {0}}
	centroids := [][]float64{{0.7}}
	heads := []int{0}
	tails := []int{1}
	eps := []float64{1.0}

	// The epoch-0 centroid pass pulls the centroid in by exactly two clipped
	// damped steps; the edge then fires in epoch 1 with the centroid there.
	centroidStep := 1.0 / (2 * p.CentroidDamping)
	dAtFire := 0.7 - 2*manifoldClip*centroidStep
	require.Greater(t, kernelGrad(dAtFire, p.A, p.B), clusterClip)

	JointOptimize(emb, heads, tails, eps, centroids, rand.New(rand.NewSource(11)), p)

	// One cluster update on the edge head, clipped per coordinate at ±1 and
	// scaled by the force scale. The edge tail gets no cluster force.
	assert.InDelta(t, clusterClip*p.ClusterForceScale, emb[0][0], 1e-12)
	assert.Equal(t, 0.0, emb[1][0])

	// Centroid motion stays within its damped clipped budget per epoch.
	assert.Less(t, centroids[0][0], 0.7)
	assert.GreaterOrEqual(t, centroids[0][0], 0.7-2*2*manifoldClip*centroidStep-1e-12)
}

// twoBlobEdges builds a toy symmetric edge list joining points within each
// of two groups.
func twoBlobEdges(nPerBlob int) (heads, tails []int, eps []float64, n int) {
	n = 2 * nPerBlob
	add := func(a, b int) {
		heads = append(heads, a, b)
		tails = append(tails, b, a)
		eps = append(eps, 1.0, 1.0)
	}
	for i := 0; i < nPerBlob; i++ {
		for j := i + 1; j < nPerBlob; j++ {
			add(i, j)
			add(nPerBlob+i, nPerBlob+j)
		}
	}
	return heads, tails, eps, n
}

func testParams() Params {
	return Params{
		A: 1.577, B: 0.895,
		Gamma:              1.0,
		InitialAlpha:       1.0,
		NegativeSampleRate: 5,
		Epochs:             60,
		ClusterEpochs:      10,
		UpdateInterval:     5,
		ClusterAlpha:       1.0,
		ClusterForceScale:  1e-5,
		CentroidDamping:    100,
		Workers:            1,
	}
}

func TestOptimizeLayoutSeparatesBlobs(t *testing.T) {
	heads, tails, eps, n := twoBlobEdges(10)
	rng := rand.New(rand.NewSource(6))
	emb := RandomInit(n, 2, rng)

	emb = OptimizeLayout(emb, emb, heads, tails, eps, true, rng, testParams())

	for i, row := range emb {
		for _, v := range row {
			require.False(t, math.IsNaN(v), "point %d", i)
			require.False(t, math.IsInf(v, 0), "point %d", i)
		}
	}

	// Within-blob spread must end up smaller than the blob separation.
	intra := squaredDist(emb[0], emb[9])
	inter := squaredDist(emb[0], emb[10])
	assert.Less(t, intra, inter)
}

func TestOptimizeLayoutDeterministicForSeed(t *testing.T) {
	heads, tails, eps, n := twoBlobEdges(8)

	run := func() [][]float64 {
		rng := rand.New(rand.NewSource(7))
		emb := RandomInit(n, 2, rng)
		return OptimizeLayout(emb, emb, heads, tails, eps, true, rng, testParams())
	}
	assert.Equal(t, run(), run())
}

func TestOptimizeLayoutHoldsTailFixed(t *testing.T) {
	fitted := [][]float64{{0, 0}, {1, 0}, {0, 1}}
	frozen := make([][]float64, len(fitted))
	for i := range fitted {
		frozen[i] = append([]float64(nil), fitted[i]...)
	}

	queries := [][]float64{{0.5, 0.5}}
	heads := []int{0, 0}
	tails := []int{0, 1}
	eps := []float64{1.0, 1.0}

	p := testParams()
	p.Epochs = 20
	OptimizeLayout(queries, fitted, heads, tails, eps, false, rand.New(rand.NewSource(8)), p)

	assert.Equal(t, frozen, fitted, "fitted points must not move during transform")
}

func TestJointOptimizeConvergesAndReturnsSoft(t *testing.T) {
	heads, tails, eps, n := twoBlobEdges(10)
	rng := rand.New(rand.NewSource(9))
	emb := RandomInit(n, 2, rng)

	p := testParams()
	emb = OptimizeLayout(emb, emb, heads, tails, eps, true, rng, p)

	// Seed centroids at the two blob mean positions.
	centroids := [][]float64{
		meanOf(emb[:10]),
		meanOf(emb[10:]),
	}

	soft := JointOptimize(emb, heads, tails, eps, centroids, rng, p)
	require.Len(t, soft, n)

	labels := HardLabels(soft)
	for i := 1; i < 10; i++ {
		assert.Equal(t, labels[0], labels[i], "first blob point %d", i)
	}
	for i := 11; i < 20; i++ {
		assert.Equal(t, labels[10], labels[i], "second blob point %d", i)
	}
	assert.NotEqual(t, labels[0], labels[10])

	for i, row := range emb {
		for _, v := range row {
			require.False(t, math.IsNaN(v), "point %d", i)
		}
	}
	for c, row := range centroids {
		for _, v := range row {
			require.False(t, math.IsNaN(v), "centroid %d", c)
		}
	}
}

func TestJointOptimizeStabilityStop(t *testing.T) {
	heads, tails, eps, n := twoBlobEdges(6)
	rng := rand.New(rand.NewSource(10))
	emb := RandomInit(n, 2, rng)

	p := testParams()
	p.ClusterEpochs = 1000
	p.UpdateInterval = 2
	p.StabilityTolerance = 1.1 // any delta passes; must stop at the second refresh

	centroids := [][]float64{meanOf(emb[:6]), meanOf(emb[6:])}
	soft := JointOptimize(emb, heads, tails, eps, centroids, rng, p)
	require.Len(t, soft, n)
}

func TestRefineClustersTightensAssignments(t *testing.T) {
	emb := [][]float64{{0, 0}, {0.2, 0}, {5, 5}, {5.2, 5}}
	centroids := [][]float64{{0.1, 0}, {5.1, 5}}

	p := testParams()
	before := HardLabels(SoftAssign(emb, centroids, p.A, p.B, 1))
	RefineClusters(emb, centroids, 30, 20, 1e-3, p)
	after := HardLabels(SoftAssign(emb, centroids, p.A, p.B, 1))

	assert.Equal(t, before, after, "refinement must not scramble a clean assignment")
	for _, row := range append(emb, centroids...) {
		for _, v := range row {
			require.False(t, math.IsNaN(v))
		}
	}
}

func TestInitTransformEmbedding(t *testing.T) {
	fitted := [][]float64{{0, 0}, {2, 0}, {0, 2}}
	weights := fuzzy.Coo{
		Rows: []int{0, 0},
		Cols: []int{0, 1},
		Data: []float64{0.5, 0.5},
		NRow: 1, NCol: 3,
	}
	emb := InitTransformEmbedding(weights, fitted, 2)
	require.Len(t, emb, 1)
	assert.InDelta(t, 1.0, emb[0][0], 1e-12)
	assert.InDelta(t, 0.0, emb[0][1], 1e-12)
}

func TestTransformEpochs(t *testing.T) {
	assert.Equal(t, 100, TransformEpochs(0, 500))
	assert.Equal(t, 30, TransformEpochs(0, 20000))
	assert.Equal(t, 100, TransformEpochs(300, 500))
	assert.Equal(t, 1, TransformEpochs(2, 500))
}

func meanOf(points [][]float64) []float64 {
	mean := make([]float64, len(points[0]))
	for _, p := range points {
		for d := range p {
			mean[d] += p[d]
		}
	}
	for d := range mean {
		mean[d] /= float64(len(points))
	}
	return mean
}
