package fuzzy

import (
	"math"

	"github.com/manifoldlab/clustermap/neighbors"
)

// Config controls fuzzy simplicial set construction.
type Config struct {
	// LocalConnectivity is the number of neighbors assumed fully connected at
	// a local level. Fractional values interpolate.
	LocalConnectivity float64
	// SetOpMixRatio blends fuzzy union (1.0) and fuzzy intersection (0.0)
	// when symmetrizing.
	SetOpMixRatio float64
	// Workers bounds the calibration fan-out; 0 means all cores.
	Workers int
}

// MembershipStrengths converts calibrated neighbor distances into a directed
// sparse graph. Self edges get strength zero, neighbors within rho full
// strength, and the rest an exponential decay. Missing-neighbor slots are
// skipped.
func MembershipStrengths(g neighbors.Graph, cal Calibration) Coo {
	n := len(g.Indices)
	out := Coo{NRow: n, NCol: n}
	if n == 0 {
		return out
	}

	for i := 0; i < n; i++ {
		for j := range g.Indices[i] {
			nb := g.Indices[i][j]
			if nb == neighbors.Missing {
				continue
			}

			var val float64
			switch {
			case nb == i:
				val = 0
			case g.Dists[i][j]-cal.Rho[i] <= 0 || cal.Sigma[i] == 0:
				val = 1.0
			default:
				val = math.Exp(-(g.Dists[i][j] - cal.Rho[i]) / cal.Sigma[i])
			}
			if val > 0 {
				out.Rows = append(out.Rows, i)
				out.Cols = append(out.Cols, nb)
				out.Data = append(out.Data, val)
			}
		}
	}
	return out
}

// BipartiteStrengths is MembershipStrengths for a query-versus-reference
// graph (rows index queries, columns reference points). Self edges cannot
// occur, so every valid slot contributes.
func BipartiteStrengths(g neighbors.Graph, cal Calibration, nRefs int) Coo {
	n := len(g.Indices)
	out := Coo{NRow: n, NCol: nRefs}
	for i := 0; i < n; i++ {
		for j := range g.Indices[i] {
			nb := g.Indices[i][j]
			if nb == neighbors.Missing {
				continue
			}
			var val float64
			if g.Dists[i][j]-cal.Rho[i] <= 0 || cal.Sigma[i] == 0 {
				val = 1.0
			} else {
				val = math.Exp(-(g.Dists[i][j] - cal.Rho[i]) / cal.Sigma[i])
			}
			if val > 0 {
				out.Rows = append(out.Rows, i)
				out.Cols = append(out.Cols, nb)
				out.Data = append(out.Data, val)
			}
		}
	}
	return out
}

// Symmetrize fuses the directed graph with its transpose by a probabilistic
// union, interpolated toward intersection by mixRatio:
//
//	result = ratio·(A + Aᵗ − A∘Aᵗ) + (1−ratio)·(A∘Aᵗ)
//
// Zero entries are pruned and the result is emitted in deterministic order.
func Symmetrize(m Coo, mixRatio float64) Coo {
	em := m.toMap()
	out := make(map[edge]float64, len(em))

	for e, v := range em {
		t := edge{e.c, e.r}
		vt := em[t]
		union := v + vt - v*vt
		inter := v * vt
		val := mixRatio*union + (1.0-mixRatio)*inter
		if val > 0 {
			out[e] = val
			out[t] = val
		}
	}
	return fromMap(out, m.NRow, m.NCol)
}

// Build constructs the symmetrized fuzzy simplicial set from a neighbor
// graph. k is the target fuzzy-set cardinality (the neighbor count as a
// float).
func Build(g neighbors.Graph, k float64, cfg Config) Coo {
	cal := SmoothKNNDist(g.Dists, k, cfg.LocalConnectivity, cfg.Workers)
	directed := MembershipStrengths(g, cal)
	return Symmetrize(directed, cfg.SetOpMixRatio)
}

// UnknownLabel marks an unlabeled point in a categorical target.
const UnknownLabel = -1

// CategoricalIntersection discounts edges whose endpoints carry different
// categorical labels. Edges touching an unknown label are discounted by
// exp(-unknownDist), mismatched labels by exp(-farDist), matching labels are
// untouched. The result is re-normalized so every point keeps a
// full-confidence edge.
func CategoricalIntersection(m Coo, labels []int, unknownDist, farDist float64) Coo {
	out := Coo{
		Rows: append([]int(nil), m.Rows...),
		Cols: append([]int(nil), m.Cols...),
		Data: make([]float64, len(m.Data)),
		NRow: m.NRow,
		NCol: m.NCol,
	}
	unknownScale := math.Exp(-unknownDist)
	farScale := math.Exp(-farDist)
	for i := range m.Data {
		li, lj := labels[m.Rows[i]], labels[m.Cols[i]]
		switch {
		case li == UnknownLabel || lj == UnknownLabel:
			out.Data[i] = m.Data[i] * unknownScale
		case li != lj:
			out.Data[i] = m.Data[i] * farScale
		default:
			out.Data[i] = m.Data[i]
		}
	}
	return ResetLocalConnectivity(out)
}

// GeneralIntersection fuses two independently built fuzzy graphs over the
// same points by a weighted product union. mixWeight 0 keeps only the first
// graph's topology, 1 only the second's; 0.5 balances them. Entries missing
// from one graph are floored at half that graph's minimum weight.
func GeneralIntersection(a, b Coo, mixWeight float64) Coo {
	am := a.toMap()
	bm := b.toMap()

	leftMin := math.Max(minWeight(a)/2.0, 1e-8)
	rightMin := math.Max(minWeight(b)/2.0, 1e-8)

	out := make(map[edge]float64, len(am)+len(bm))
	visit := func(e edge) {
		if _, done := out[e]; done {
			return
		}
		left, ok := am[e]
		if !ok {
			left = leftMin
		}
		right, ok := bm[e]
		if !ok {
			right = rightMin
		}
		var val float64
		if mixWeight < 0.5 {
			val = left * math.Pow(right, mixWeight/(1.0-mixWeight))
		} else {
			val = right * math.Pow(left, (1.0-mixWeight)/mixWeight)
		}
		if val > 0 {
			out[e] = val
		}
	}
	for e := range am {
		visit(e)
	}
	for e := range bm {
		visit(e)
	}
	return fromMap(out, a.NRow, a.NCol)
}

// ResetLocalConnectivity rescales rows by their maximum and re-applies the
// fuzzy union with the transpose, restoring the invariant that every point
// has complete confidence in at least one edge.
func ResetLocalConnectivity(m Coo) Coo {
	return Symmetrize(normalizeRowsByMax(m), 1.0)
}

func minWeight(m Coo) float64 {
	if len(m.Data) == 0 {
		return 0
	}
	min := m.Data[0]
	for _, v := range m.Data[1:] {
		if v < min {
			min = v
		}
	}
	return min
}
