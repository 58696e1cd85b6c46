// Package clustermap computes a low-dimensional embedding of
// high-dimensional data while simultaneously discovering a clustering of it.
// A single stochastic optimization couples a manifold-preserving layout
// objective (fuzzy-graph attraction with negative-sample repulsion) with a
// self-training soft-clustering objective (centroid attraction driven by a
// periodically sharpened target distribution).
//
// Typical use:
//
//	cfg := clustermap.DefaultConfig()
//	cfg.NClusters = 10
//	model, err := clustermap.Fit(data, cfg)
//	// model.Embedding, model.Labels, model.Centroids
//
// New points are placed into a fitted embedding with model.Transform.
package clustermap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/manifoldlab/clustermap/cluster"
	"github.com/manifoldlab/clustermap/metric"
	"github.com/manifoldlab/clustermap/neighbors"
)

// Sentinel errors. Configuration problems surface before any computation;
// unsupported operations are terminal for the call that triggered them.
var (
	ErrInvalidConfig = errors.New("clustermap: invalid configuration")
	ErrUnsupported   = errors.New("clustermap: unsupported operation")
	ErrTooFewSamples = errors.New("clustermap: not enough samples")
)

// MetricPrecomputed selects the precomputed-distance mode: the input matrix
// is then an n×n distance matrix rather than points, and Transform is
// unavailable on the fitted model.
const MetricPrecomputed = "precomputed"

// Init strategies.
const (
	InitSpectral = "spectral"
	InitRandom   = "random"
)

// Config holds every knob of the fit. Zero values are not defaults; start
// from DefaultConfig and override.
type Config struct {
	// NNeighbors is the local neighborhood size used for manifold
	// approximation. Must be at least 2; clamped (with a recorded warning)
	// when it reaches the dataset size.
	NNeighbors int
	// NComponents is the embedding dimension.
	NComponents int
	// NClusters is the number of clusters to discover. Required.
	NClusters int

	// Metric names the distance used in the original space. MetricFunc, when
	// set, takes precedence over the name.
	Metric     string
	MetricFunc metric.Metric

	// NEpochs is the optimization budget of the manifold phase. Zero selects
	// automatically (500 for small datasets, 200 otherwise); an explicit
	// value must exceed 10.
	NEpochs int
	// LearningRate is the initial manifold learning rate, annealed linearly
	// to zero.
	LearningRate float64

	// Init selects the starting layout: InitSpectral, InitRandom, or set
	// InitCoords to supply explicit coordinates (duplicated rows gain
	// jitter).
	Init       string
	InitCoords [][]float64

	// MinDist and Spread shape the low-dimensional kernel via the fitted
	// (a, b) curve parameters. A and B override the fit when both are
	// positive.
	MinDist float64
	Spread  float64
	A, B    float64

	// SetOpMixRatio blends fuzzy union (1) and intersection (0) during graph
	// symmetrization. LocalConnectivity is the neighbor count assumed fully
	// connected locally (fractional values interpolate).
	SetOpMixRatio     float64
	LocalConnectivity float64

	// RepulsionStrength weights negative samples; NegativeSampleRate is the
	// number of negative samples drawn per positive sample.
	RepulsionStrength  float64
	NegativeSampleRate int

	// RandomState seeds every randomized step of the fit; TransformSeed
	// seeds the stochastic parts of Transform independently.
	RandomState   int64
	TransformSeed int64

	// Supervised fusion. TargetMetric "categorical" treats the target as
	// labels (-1 unknown); any other named metric builds a second fuzzy
	// graph over the target values. TargetWeight balances data topology (0)
	// against target topology (1). TargetNNeighbors of 0 reuses NNeighbors.
	TargetMetric     string
	TargetWeight     float64
	TargetNNeighbors int

	// Joint clustering phase. These were hardwired constants in early
	// versions of the algorithm; they are exposed because the published
	// values look empirically tuned rather than derived.
	ClusterEpochs     int     // epoch budget of the joint phase
	UpdateInterval    int     // target refresh period in the joint phase
	ClusterForceScale float64 // step scale of the per-point cluster force
	CentroidDamping   float64 // centroid step divisor is n·CentroidDamping

	// RefineEpochs enables an optional pure-clustering post-phase (no
	// manifold forces) with its own refresh period and step size. RefineAlpha
	// defaults to the joint phase's cluster-force scale; with no manifold
	// forces to balance against, a manifold-sized rate would let the ±1
	// gradient clip move a point a full unit per centroid per epoch.
	RefineEpochs         int
	RefineUpdateInterval int
	RefineAlpha          float64

	// StabilityTolerance, when positive, stops the joint phase once the
	// fraction of points changing cluster between refreshes falls below it.
	StabilityTolerance float64

	// Partitioner seeds the centroids from the warmed-up embedding. Defaults
	// to seeded k-means.
	Partitioner cluster.Partitioner
	// Neighbors overrides the approximate neighbor-graph provider used for
	// datasets too large for the exact small-data path.
	Neighbors neighbors.Provider

	// Workers bounds data-parallel fan-out; 0 uses all cores.
	Workers int

	// Verbose enables progress logging; Logger overrides the logger used.
	// Neither has any behavioral effect on results.
	Verbose bool
	Logger  *zap.Logger
}

// DefaultConfig returns the standard hyperparameters. NClusters must still
// be set by the caller.
func DefaultConfig() Config {
	return Config{
		NNeighbors:           15,
		NComponents:          2,
		Metric:               "euclidean",
		LearningRate:         1.0,
		Init:                 InitSpectral,
		MinDist:              0.1,
		Spread:               1.0,
		SetOpMixRatio:        1.0,
		LocalConnectivity:    1.0,
		RepulsionStrength:    1.0,
		NegativeSampleRate:   5,
		TransformSeed:        42,
		TargetMetric:         "categorical",
		TargetWeight:         0.5,
		ClusterEpochs:        10,
		UpdateInterval:       5,
		ClusterForceScale:    1e-5,
		CentroidDamping:      100,
		RefineUpdateInterval: 20,
		RefineAlpha:          1e-5,
	}
}

func (c *Config) validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.SetOpMixRatio < 0 || c.SetOpMixRatio > 1 {
		return fail("set-op mix ratio must be between 0.0 and 1.0, got %v", c.SetOpMixRatio)
	}
	if c.RepulsionStrength < 0 {
		return fail("repulsion strength cannot be negative, got %v", c.RepulsionStrength)
	}
	if c.MinDist < 0 {
		return fail("min dist cannot be negative, got %v", c.MinDist)
	}
	if c.Spread <= 0 {
		return fail("spread must be positive, got %v", c.Spread)
	}
	if c.MinDist > c.Spread {
		return fail("min dist (%v) must not exceed spread (%v)", c.MinDist, c.Spread)
	}
	if c.LearningRate <= 0 {
		return fail("learning rate must be positive, got %v", c.LearningRate)
	}
	if c.NegativeSampleRate < 0 {
		return fail("negative sample rate cannot be negative, got %d", c.NegativeSampleRate)
	}
	if c.NNeighbors < 2 {
		return fail("n neighbors must be at least 2, got %d", c.NNeighbors)
	}
	if c.NComponents < 1 {
		return fail("n components must be at least 1, got %d", c.NComponents)
	}
	if c.NClusters < 1 {
		return fail("n clusters must be a positive integer, got %d", c.NClusters)
	}
	if c.NEpochs != 0 && c.NEpochs <= 10 {
		return fail("n epochs must be an integer larger than 10, got %d", c.NEpochs)
	}
	if c.LocalConnectivity < 0 {
		return fail("local connectivity cannot be negative, got %v", c.LocalConnectivity)
	}
	if c.TargetNNeighbors != 0 && c.TargetNNeighbors < 2 {
		return fail("target n neighbors must be at least 2, got %d", c.TargetNNeighbors)
	}
	if c.ClusterEpochs < 0 || c.RefineEpochs < 0 {
		return fail("cluster phase epoch budgets cannot be negative")
	}
	if c.RefineEpochs > 0 && c.RefineAlpha <= 0 {
		return fail("refine alpha must be positive when refine epochs are set, got %v", c.RefineAlpha)
	}

	if c.InitCoords != nil {
		for i, row := range c.InitCoords {
			if len(row) != c.NComponents {
				return fail("init coordinates row %d has %d columns, want n components (%d)", i, len(row), c.NComponents)
			}
		}
	} else if c.Init != InitSpectral && c.Init != InitRandom {
		return fail("init must be %q or %q, got %q", InitSpectral, InitRandom, c.Init)
	}

	if c.MetricFunc == nil && c.Metric != MetricPrecomputed {
		if _, err := metric.ByName(c.Metric); err != nil {
			return fail("%v", err)
		}
	}
	if c.TargetMetric != "categorical" {
		if _, err := metric.ByName(c.TargetMetric); err != nil {
			return fail("target metric: %v", err)
		}
	}

	return nil
}

// resolveMetric returns the distance capability for the original space, or
// nil in precomputed mode.
func (c *Config) resolveMetric() (metric.Metric, bool, error) {
	if c.MetricFunc != nil {
		return c.MetricFunc, false, nil
	}
	if c.Metric == MetricPrecomputed {
		return nil, true, nil
	}
	m, err := metric.ByName(c.Metric)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return m, false, nil
}

func (c *Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.Verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			return log
		}
	}
	return zap.NewNop()
}

func (c *Config) partitioner() cluster.Partitioner {
	if c.Partitioner != nil {
		return c.Partitioner
	}
	return cluster.KMeans{}
}
