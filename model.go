package clustermap

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manifoldlab/clustermap/metric"
)

// Model is the result of a fit: the embedding, the discovered clustering,
// and enough retained state to place new points with Transform.
type Model struct {
	// RunID uniquely identifies this fit.
	RunID string

	// Embedding holds one n-component row per input point.
	Embedding [][]float64
	// Labels holds the hard cluster assignment of each point.
	Labels []int
	// Centroids holds the final cluster centers in embedding space.
	Centroids [][]float64
	// Soft holds the final soft assignment matrix (rows sum to 1).
	Soft [][]float64

	// Warnings records non-fatal adjustments made during the fit, such as a
	// clamped neighbor count.
	Warnings []string

	cfg         Config
	metric      metric.Metric
	precomputed bool
	nNeighbors  int // post-clamp
	a, b        float64

	rawData   [][]float64
	inputHash uint64

	log *zap.Logger
}

// NNeighbors reports the neighbor count actually used, which may be smaller
// than configured for small datasets.
func (m *Model) NNeighbors() int { return m.nNeighbors }

// CurveParams reports the fitted (a, b) parameters of the low-dimensional
// membership kernel.
func (m *Model) CurveParams() (a, b float64) { return m.a, m.b }

func newModel(cfg Config, log *zap.Logger) *Model {
	return &Model{
		RunID: uuid.NewString(),
		cfg:   cfg,
		log:   log,
	}
}

func (m *Model) warn(msg string) {
	m.Warnings = append(m.Warnings, msg)
	m.log.Warn(msg)
}
