package clustermap

import (
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/manifoldlab/clustermap/fuzzy"
	"github.com/manifoldlab/clustermap/internal/parallel"
	"github.com/manifoldlab/clustermap/layout"
	"github.com/manifoldlab/clustermap/metric"
	"github.com/manifoldlab/clustermap/neighbors"
)

// Below this many points the neighbor graph comes from an exact pairwise
// distance matrix; approximate search only pays for itself past it.
const smallDataThreshold = 4096

// Fit embeds data and discovers NClusters clusters in the embedding.
func Fit(data [][]float64, cfg Config) (*Model, error) {
	return fit(data, nil, cfg)
}

// FitWithTarget fits with supervision. When cfg.TargetMetric is
// "categorical" the target values are class labels (use -1 for unlabeled
// points); otherwise the target is a one-dimensional variable whose topology
// is fused with the data topology under cfg.TargetMetric.
func FitWithTarget(data [][]float64, target []float64, cfg Config) (*Model, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", ErrInvalidConfig)
	}
	return fit(data, target, cfg)
}

func fit(data [][]float64, target []float64, cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := checkData(data); err != nil {
		return nil, err
	}
	n := len(data)
	if target != nil && len(target) != n {
		return nil, fmt.Errorf("%w: target has %d values for %d points", ErrInvalidConfig, len(target), n)
	}

	met, precomputed, err := cfg.resolveMetric()
	if err != nil {
		return nil, err
	}
	if precomputed {
		for i, row := range data {
			if len(row) != n {
				return nil, fmt.Errorf("%w: precomputed matrix row %d has %d columns, want %d", ErrInvalidConfig, i, len(row), n)
			}
		}
	}

	log := cfg.logger()
	m := newModel(cfg, log)
	m.metric = met
	m.precomputed = precomputed
	m.rawData = data
	m.inputHash = hashMatrix(data)

	workers := cfg.Workers
	if workers <= 0 {
		workers = parallel.Workers()
	}

	// A single point has no neighborhood structure; it sits at the origin.
	if n == 1 {
		m.nNeighbors = 1
		m.Embedding = [][]float64{make([]float64, cfg.NComponents)}
		m.Labels = []int{0}
		m.Centroids = zeroMatrix(cfg.NClusters, cfg.NComponents)
		return m, nil
	}

	if cfg.NClusters > n {
		return nil, fmt.Errorf("%w: %d clusters requested for %d points", ErrTooFewSamples, cfg.NClusters, n)
	}

	nn := cfg.NNeighbors
	if nn >= n {
		nn = n - 1
		m.warn(fmt.Sprintf("n neighbors is larger than the dataset size; truncating to %d", nn))
	}
	m.nNeighbors = nn

	if cfg.A > 0 && cfg.B > 0 {
		m.a, m.b = cfg.A, cfg.B
	} else {
		m.a, m.b = layout.FitCurveParams(cfg.Spread, cfg.MinDist)
	}

	rng := rand.New(rand.NewSource(cfg.RandomState))

	g, err := neighborGraph(data, met, precomputed, nn, workers, cfg.Neighbors)
	if err != nil {
		return nil, err
	}
	log.Debug("neighbor graph built", zap.Int("samples", n), zap.Int("k", nn))

	graph := fuzzy.Build(g, float64(nn), fuzzy.Config{
		LocalConnectivity: cfg.LocalConnectivity,
		SetOpMixRatio:     cfg.SetOpMixRatio,
		Workers:           workers,
	})

	if target != nil {
		graph, err = fuseTarget(graph, data, target, nn, workers, cfg)
		if err != nil {
			return nil, err
		}
	}

	nEpochs := cfg.NEpochs
	if nEpochs == 0 {
		nEpochs = fuzzy.AutoEpochs(n)
	}
	graph = fuzzy.PruneForEpochs(graph, nEpochs)
	eps := fuzzy.EpochsPerSample(graph.Data, nEpochs)

	emb, err := initEmbedding(graph, n, rng, cfg)
	if err != nil {
		return nil, err
	}

	p := layout.Params{
		A:                  m.a,
		B:                  m.b,
		Gamma:              cfg.RepulsionStrength,
		InitialAlpha:       cfg.LearningRate,
		NegativeSampleRate: float64(cfg.NegativeSampleRate),
		Epochs:             nEpochs,
		ClusterEpochs:      cfg.ClusterEpochs,
		UpdateInterval:     cfg.UpdateInterval,
		ClusterAlpha:       cfg.LearningRate,
		ClusterForceScale:  cfg.ClusterForceScale,
		CentroidDamping:    cfg.CentroidDamping,
		StabilityTolerance: cfg.StabilityTolerance,
		Workers:            workers,
		Logger:             log,
	}

	log.Debug("optimizing layout", zap.Int("epochs", nEpochs), zap.Int("edges", graph.NNZ()))
	emb = layout.OptimizeLayout(emb, emb, graph.Rows, graph.Cols, eps, true, rng, p)

	centroids, _, err := cfg.partitioner().Partition(emb, cfg.NClusters, cfg.RandomState)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	log.Debug("joint clustering phase", zap.Int("epochs", cfg.ClusterEpochs), zap.Int("clusters", cfg.NClusters))
	soft := layout.JointOptimize(emb, graph.Rows, graph.Cols, eps, centroids, rng, p)

	if cfg.RefineEpochs > 0 {
		log.Debug("refining clusters", zap.Int("epochs", cfg.RefineEpochs))
		layout.RefineClusters(emb, centroids, cfg.RefineEpochs, cfg.RefineUpdateInterval, cfg.RefineAlpha, p)
		soft = layout.SoftAssign(emb, centroids, m.a, m.b, workers)
	}

	m.Embedding = emb
	m.Centroids = centroids
	m.Soft = normalizeRows(soft)
	m.Labels = layout.HardLabels(m.Soft)

	log.Info("fit complete",
		zap.String("run_id", m.RunID),
		zap.Int("samples", n),
		zap.Int("components", cfg.NComponents),
		zap.Int("clusters", cfg.NClusters))
	return m, nil
}

// Transform places new points into the fitted embedding without moving the
// fitted points. Passing back the exact data the model was fit on returns
// the stored embedding directly.
func (m *Model) Transform(data [][]float64) ([][]float64, error) {
	if m.precomputed {
		return nil, fmt.Errorf("%w: transform is unavailable with a precomputed distance matrix", ErrUnsupported)
	}
	if len(m.rawData) == 1 {
		return nil, fmt.Errorf("%w: transform is undefined for a model fit on a single sample", ErrUnsupported)
	}
	if err := checkData(data); err != nil {
		return nil, err
	}
	if len(data[0]) != len(m.rawData[0]) {
		return nil, fmt.Errorf("%w: points have %d features, model was fit on %d", ErrInvalidConfig, len(data[0]), len(m.rawData[0]))
	}

	if hashMatrix(data) == m.inputHash {
		m.log.Debug("transform input matches fitted data, returning stored embedding")
		return copyMatrix(m.Embedding), nil
	}

	workers := m.cfg.Workers
	if workers <= 0 {
		workers = parallel.Workers()
	}

	bf := neighbors.BruteForce{Metric: m.metric, Workers: workers}
	g, err := bf.SearchAmong(data, m.rawData, m.nNeighbors)
	if err != nil {
		return nil, err
	}

	// New points already sit inside the fitted manifold, so the assumed
	// local connectivity drops by one.
	adjusted := math.Max(0, m.cfg.LocalConnectivity-1.0)
	cal := fuzzy.SmoothKNNDist(g.Dists, float64(m.nNeighbors), adjusted, workers)
	graph := fuzzy.BipartiteStrengths(g, cal, len(m.rawData))

	emb := layout.InitTransformEmbedding(fuzzy.L1NormalizeRows(graph), m.Embedding, m.cfg.NComponents)

	nEpochs := layout.TransformEpochs(m.cfg.NEpochs, len(data))
	graph = fuzzy.PruneForEpochs(graph, nEpochs)
	eps := fuzzy.EpochsPerSample(graph.Data, nEpochs)

	rng := rand.New(rand.NewSource(m.cfg.TransformSeed))
	p := layout.Params{
		A:                  m.a,
		B:                  m.b,
		Gamma:              m.cfg.RepulsionStrength,
		InitialAlpha:       m.cfg.LearningRate,
		NegativeSampleRate: float64(m.cfg.NegativeSampleRate),
		Epochs:             nEpochs,
		Workers:            workers,
		Logger:             m.log,
	}
	return layout.OptimizeLayout(emb, m.Embedding, graph.Rows, graph.Cols, eps, false, rng, p), nil
}

func neighborGraph(data [][]float64, met metric.Metric, precomputed bool, k, workers int, provider neighbors.Provider) (neighbors.Graph, error) {
	switch {
	case precomputed:
		return neighbors.FromDistanceMatrix(data, k)
	case provider != nil:
		return provider.Search(data, k)
	case len(data) < smallDataThreshold:
		return neighbors.FromDistanceMatrix(pairwiseDistances(data, met, workers), k)
	default:
		return neighbors.BruteForce{Metric: met, Workers: workers}.Search(data, k)
	}
}

func fuseTarget(graph fuzzy.Coo, data [][]float64, target []float64, nn, workers int, cfg Config) (fuzzy.Coo, error) {
	if cfg.TargetMetric == "categorical" {
		// A hard supervised fit (weight 1) pushes mismatched labels to
		// effectively infinite distance.
		farDist := 1e12
		if cfg.TargetWeight < 1.0 {
			farDist = 2.5 / (1.0 - cfg.TargetWeight)
		}
		labels := make([]int, len(target))
		for i, v := range target {
			labels[i] = int(math.Round(v))
		}
		return fuzzy.CategoricalIntersection(graph, labels, 1.0, farDist), nil
	}

	tm, err := metric.ByName(cfg.TargetMetric)
	if err != nil {
		return fuzzy.Coo{}, fmt.Errorf("%w: target metric: %v", ErrInvalidConfig, err)
	}
	tnn := cfg.TargetNNeighbors
	if tnn == 0 {
		tnn = nn
	}
	if tnn >= len(target) {
		tnn = len(target) - 1
	}

	points := make([][]float64, len(target))
	for i, v := range target {
		points[i] = []float64{v}
	}
	tg, err := neighbors.BruteForce{Metric: tm, Workers: workers}.Search(points, tnn)
	if err != nil {
		return fuzzy.Coo{}, err
	}
	tgraph := fuzzy.Build(tg, float64(tnn), fuzzy.Config{
		LocalConnectivity: 1.0,
		SetOpMixRatio:     1.0,
		Workers:           workers,
	})
	fused := fuzzy.GeneralIntersection(graph, tgraph, cfg.TargetWeight)
	return fuzzy.ResetLocalConnectivity(fused), nil
}

func initEmbedding(graph fuzzy.Coo, n int, rng *rand.Rand, cfg Config) ([][]float64, error) {
	switch {
	case cfg.InitCoords != nil:
		if len(cfg.InitCoords) != n {
			return nil, fmt.Errorf("%w: init coordinates have %d rows for %d points", ErrInvalidConfig, len(cfg.InitCoords), n)
		}
		return layout.FromCoordinates(cfg.InitCoords, rng), nil
	case cfg.Init == InitRandom:
		return layout.RandomInit(n, cfg.NComponents, rng), nil
	default:
		return layout.SpectralInit(graph, n, cfg.NComponents, rng), nil
	}
}

func pairwiseDistances(data [][]float64, met metric.Metric, workers int) [][]float64 {
	n := len(data)
	dmat := make([][]float64, n)
	parallel.For(n, workers, func(i int) {
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			if j != i {
				row[j] = met.Distance(data[i], data[j])
			}
		}
		dmat[i] = row
	})
	return dmat
}

func checkData(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty dataset", ErrInvalidConfig)
	}
	width := len(data[0])
	if width == 0 {
		return fmt.Errorf("%w: points have no features", ErrInvalidConfig)
	}
	for i, row := range data {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, row 0 has %d", ErrInvalidConfig, i, len(row), width)
		}
	}
	return nil
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// normalizeRows scales each row to sum to 1, turning raw kernel values into
// a probability distribution over clusters. Positive per-row scaling, so the
// argmax of every row is unchanged. All-zero rows are copied as is.
func normalizeRows(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		norm := make([]float64, len(row))
		if sum > 0 {
			for j, v := range row {
				norm[j] = v / sum
			}
		} else {
			copy(norm, row)
		}
		out[i] = norm
	}
	return out
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
