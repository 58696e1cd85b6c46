package layout

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/manifoldlab/clustermap/fuzzy"
	"github.com/manifoldlab/clustermap/internal/parallel"
)

// Gradient clip bounds. The manifold terms tolerate larger steps than the
// cluster term, which must stay subordinate to the layout forces.
const (
	manifoldClip = 4.0
	clusterClip  = 1.0
	// coincidentNudge separates exactly coincident points during negative
	// sampling, where the kernel gradient would otherwise vanish.
	coincidentNudge = 4.0
)

// Params configures the stochastic layout optimizer.
type Params struct {
	A, B               float64 // fitted kernel curve parameters
	Gamma              float64 // repulsion strength on negative samples
	InitialAlpha       float64 // manifold learning rate, annealed to zero
	NegativeSampleRate float64 // negative samples per positive sample
	Epochs             int

	// Joint clustering phase.
	ClusterEpochs      int     // epoch budget of the joint phase
	UpdateInterval     int     // target-distribution refresh period
	ClusterAlpha       float64 // clustering-phase manifold rate
	ClusterForceScale  float64 // scale of the per-point cluster force
	CentroidDamping    float64 // centroid step divisor is nSamples·damping
	StabilityTolerance float64 // >0 enables the label-stability stop

	Workers int
	Logger  *zap.Logger
}

func (p Params) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// edgeState carries the deterministic per-edge sampling counters. The
// "epoch of next sample" scheme replaces per-epoch Bernoulli draws: an edge
// with period 2.5 fires on epochs 2, 5, 7, ... for any fixed schedule.
type edgeState struct {
	epochsPerSample     []float64
	epochOfNextSample   []float64
	epochsPerNegative   []float64
	epochOfNextNegative []float64
}

func newEdgeState(epochsPerSample []float64, negativeRate float64) edgeState {
	n := len(epochsPerSample)
	s := edgeState{
		epochsPerSample:     append([]float64(nil), epochsPerSample...),
		epochOfNextSample:   append([]float64(nil), epochsPerSample...),
		epochsPerNegative:   make([]float64, n),
		epochOfNextNegative: make([]float64, n),
	}
	for i := range s.epochsPerNegative {
		if negativeRate > 0 && epochsPerSample[i] != fuzzy.NeverSample {
			s.epochsPerNegative[i] = epochsPerSample[i] / negativeRate
		} else {
			s.epochsPerNegative[i] = math.Inf(1)
		}
		s.epochOfNextNegative[i] = s.epochsPerNegative[i]
	}
	return s
}

// OptimizeLayout runs the attraction/repulsion SGD over the scheduled edges.
// heads/tails index headEmb/tailEmb respectively. When moveOther is true the
// two slices alias the same embedding and tail endpoints receive the mirror
// update; the transform path passes moveOther=false to hold fitted points
// fixed. Mutates headEmb in place and returns it.
func OptimizeLayout(
	headEmb, tailEmb [][]float64,
	heads, tails []int,
	epochsPerSample []float64,
	moveOther bool,
	rng *rand.Rand,
	p Params,
) [][]float64 {
	nVertices := len(tailEmb)
	if len(heads) == 0 || nVertices == 0 || p.Epochs <= 0 {
		return headEmb
	}

	log := p.logger()
	state := newEdgeState(epochsPerSample, p.NegativeSampleRate)
	alpha := p.InitialAlpha

	for epoch := 0; epoch < p.Epochs; epoch++ {
		for i := range heads {
			if state.epochsPerSample[i] == fuzzy.NeverSample || state.epochOfNextSample[i] > float64(epoch) {
				continue
			}

			j, k := heads[i], tails[i]
			current := headEmb[j]
			other := tailEmb[k]

			attract(current, other, moveOther, alpha, p.A, p.B)
			state.epochOfNextSample[i] += state.epochsPerSample[i]

			if math.IsInf(state.epochsPerNegative[i], 1) {
				continue
			}
			nNeg := int((float64(epoch) - state.epochOfNextNegative[i]) / state.epochsPerNegative[i])
			for s := 0; s < nNeg; s++ {
				neg := rng.Intn(nVertices)
				repel(current, tailEmb[neg], alpha, p.A, p.B, p.Gamma, moveOther && j == neg)
			}
			state.epochOfNextNegative[i] += float64(nNeg) * state.epochsPerNegative[i]
		}

		alpha = p.InitialAlpha * (1.0 - float64(epoch)/float64(p.Epochs))

		if ce := p.Epochs / 10; ce > 0 && epoch%ce == 0 {
			log.Debug("layout epoch", zap.Int("epoch", epoch), zap.Int("total", p.Epochs), zap.Float64("alpha", alpha))
		}
	}

	return headEmb
}

// JointOptimize runs the coupled phase: manifold attraction/repulsion plus
// the cluster forces, refreshing the self-training target periodically and
// moving centroids once per epoch. Mutates embedding and centroids in place
// and returns the final soft-assignment matrix.
func JointOptimize(
	embedding [][]float64,
	heads, tails []int,
	epochsPerSample []float64,
	centroids [][]float64,
	rng *rand.Rand,
	p Params,
) [][]float64 {
	n := len(embedding)
	nEpochs := p.ClusterEpochs
	if n == 0 || nEpochs <= 0 {
		return SoftAssign(embedding, centroids, p.A, p.B, p.Workers)
	}

	log := p.logger()
	state := newEdgeState(epochsPerSample, p.NegativeSampleRate)

	updateInterval := p.UpdateInterval
	if updateInterval <= 0 {
		updateInterval = 5
	}
	etaCE := p.ClusterAlpha
	clusterStep := p.ClusterForceScale
	centroidStep := 1.0 / (float64(n) * p.CentroidDamping)

	var target [][]float64
	var lastLabels []int

	for epoch := 0; epoch < nEpochs; epoch++ {
		// Target refresh needs a globally consistent snapshot, so it happens
		// between epochs, never mid-pass.
		if epoch%updateInterval == 0 {
			soft := SoftAssign(embedding, centroids, p.A, p.B, p.Workers)
			target = TargetDistribution(soft)

			if p.StabilityTolerance > 0 {
				labels := HardLabels(soft)
				if lastLabels != nil && labelDelta(lastLabels, labels) < p.StabilityTolerance {
					log.Debug("label assignments stable, stopping",
						zap.Int("epoch", epoch),
						zap.Float64("tolerance", p.StabilityTolerance))
					break
				}
				lastLabels = labels
			}
		}

		for i := range heads {
			if state.epochsPerSample[i] == fuzzy.NeverSample || state.epochOfNextSample[i] > float64(epoch) {
				continue
			}

			j, k := heads[i], tails[i]
			current := embedding[j]

			attract(current, embedding[k], true, etaCE, p.A, p.B)
			state.epochOfNextSample[i] += state.epochsPerSample[i]

			if !math.IsInf(state.epochsPerNegative[i], 1) {
				nNeg := int((float64(epoch) - state.epochOfNextNegative[i]) / state.epochsPerNegative[i])
				for s := 0; s < nNeg; s++ {
					neg := rng.Intn(n)
					if neg == j {
						continue
					}
					repel(current, embedding[neg], etaCE, p.A, p.B, p.Gamma, false)
				}
				state.epochOfNextNegative[i] += float64(nNeg) * state.epochsPerNegative[i]
			}

			// Cluster attraction: pull the visited point toward every
			// centroid in proportion to its sharpened target weight. The
			// tight clip and small step keep this force subordinate to the
			// manifold terms.
			for c := range centroids {
				d2 := squaredDist(current, centroids[c])
				if d2 == 0 {
					continue
				}
				coeff := -2.0 * p.A * p.B * math.Pow(d2, p.B-1.0) * target[j][c]
				coeff /= p.A*math.Pow(d2, p.B) + 1.0
				for d := range current {
					grad := clipTo(coeff*(current[d]-centroids[c][d]), clusterClip)
					current[d] += grad * clusterStep
				}
			}
		}

		// Centroid pass: one averaged, damped update per centroid from every
		// point, after all point updates for the epoch have been applied.
		updateCentroids(embedding, centroids, target, p, centroidStep)

		etaCE = p.ClusterAlpha * (1.0 - float64(epoch)/float64(nEpochs))

		if ce := nEpochs / 10; ce > 0 && epoch%ce == 0 {
			log.Debug("joint epoch", zap.Int("epoch", epoch), zap.Int("total", nEpochs), zap.Float64("eta", etaCE))
		}
	}

	return SoftAssign(embedding, centroids, p.A, p.B, p.Workers)
}

// RefineClusters runs only the cluster and centroid forces for a further
// epoch budget, with a slower refresh period. Opt-in post-phase.
func RefineClusters(
	embedding, centroids [][]float64,
	epochs, updateInterval int,
	alpha float64,
	p Params,
) {
	n := len(embedding)
	if n == 0 || epochs <= 0 {
		return
	}
	if updateInterval <= 0 {
		updateInterval = 20
	}
	centroidStep := 1.0 / (float64(n) * p.CentroidDamping)

	var target [][]float64
	eta := alpha
	for epoch := 0; epoch < epochs; epoch++ {
		if epoch%updateInterval == 0 {
			target = TargetDistribution(SoftAssign(embedding, centroids, p.A, p.B, p.Workers))
		}

		for i := range embedding {
			current := embedding[i]
			for c := range centroids {
				d2 := squaredDist(current, centroids[c])
				if d2 == 0 {
					continue
				}
				coeff := -2.0 * p.A * p.B * math.Pow(d2, p.B-1.0) * target[i][c]
				coeff /= p.A*math.Pow(d2, p.B) + 1.0
				for d := range current {
					grad := clipTo(coeff*(current[d]-centroids[c][d]), clusterClip)
					current[d] += grad * eta
				}
			}
		}

		updateCentroids(embedding, centroids, target, p, centroidStep)
		eta = alpha * (1.0 - float64(epoch)/float64(epochs))
	}
}

// updateCentroids applies the per-epoch centroid motion: each centroid
// accumulates the clipped kernel gradient from every point, damped so the
// step stays bounded regardless of dataset size. Centroids are independent,
// so the pass fans out across them.
func updateCentroids(embedding, centroids, target [][]float64, p Params, step float64) {
	parallel.For(len(centroids), p.Workers, func(c int) {
		centroid := centroids[c]
		for i := range embedding {
			d2 := squaredDist(embedding[i], centroid)
			if d2 == 0 {
				continue
			}
			coeff := -2.0 * p.A * p.B * math.Pow(d2, p.B-1.0) * target[i][c]
			coeff /= p.A*math.Pow(d2, p.B) + 1.0
			for d := range centroid {
				grad := clipTo(coeff*(centroid[d]-embedding[i][d]), manifoldClip)
				centroid[d] += grad * step
			}
		}
	})
}

// attract applies the positive-sample gradient of the kernel cross-entropy
// to the current point, and the mirror update to the other endpoint when
// both live in the same embedding.
func attract(current, other []float64, moveOther bool, alpha, a, b float64) {
	d2 := squaredDist(current, other)
	var coeff float64
	if d2 > 0 {
		coeff = -2.0 * a * b * math.Pow(d2, b-1.0)
		coeff /= a*math.Pow(d2, b) + 1.0
	}
	for d := range current {
		grad := clipTo(coeff*(current[d]-other[d]), manifoldClip)
		current[d] += grad * alpha
		if moveOther {
			other[d] -= grad * alpha
		}
	}
}

// repel applies the negative-sample gradient. Coincident non-identical
// points get a fixed nudge instead of the vanished gradient; identical
// indices are skipped by the caller via selfPair.
func repel(current, other []float64, alpha, a, b, gamma float64, selfPair bool) {
	d2 := squaredDist(current, other)
	var coeff float64
	switch {
	case d2 > 0:
		coeff = 2.0 * gamma * b
		coeff /= (0.001 + d2) * (a*math.Pow(d2, b) + 1.0)
	case selfPair:
		return
	}

	for d := range current {
		var grad float64
		if coeff > 0 {
			grad = clipTo(coeff*(current[d]-other[d]), manifoldClip)
		} else {
			grad = coincidentNudge
		}
		current[d] += grad * alpha
	}
}

func clipTo(val, bound float64) float64 {
	if val > bound {
		return bound
	}
	if val < -bound {
		return -bound
	}
	return val
}
