// Package fuzzy builds the weighted nearest-neighbor graph that approximates
// the data manifold: per-point bandwidth calibration, membership strengths,
// fuzzy set operations for symmetrization and supervised fusion, and the
// epoch schedule consumed by the layout optimizer.
package fuzzy

import "sort"

// Coo is a sparse weighted adjacency matrix in coordinate (COO) format.
// Edge weights are membership strengths in (0, 1].
type Coo struct {
	Rows []int
	Cols []int
	Data []float64
	NRow int
	NCol int
}

type edge struct{ r, c int }

// NNZ returns the number of stored entries.
func (m Coo) NNZ() int { return len(m.Data) }

// MaxWeight returns the largest stored weight, or 0 for an empty matrix.
func (m Coo) MaxWeight() float64 {
	var max float64
	for _, v := range m.Data {
		if v > max {
			max = v
		}
	}
	return max
}

// At returns the stored weight at (r, c), or 0. Linear scan; used by tests
// and the symmetry check, not by hot paths.
func (m Coo) At(r, c int) float64 {
	for i := range m.Data {
		if m.Rows[i] == r && m.Cols[i] == c {
			return m.Data[i]
		}
	}
	return 0
}

func (m Coo) toMap() map[edge]float64 {
	em := make(map[edge]float64, len(m.Data))
	for i := range m.Data {
		if m.Data[i] != 0 {
			em[edge{m.Rows[i], m.Cols[i]}] = m.Data[i]
		}
	}
	return em
}

// fromMap rebuilds a Coo in deterministic row-major order, pruning zeros.
func fromMap(em map[edge]float64, nRow, nCol int) Coo {
	edges := make([]edge, 0, len(em))
	for e, v := range em {
		if v > 0 {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].r != edges[j].r {
			return edges[i].r < edges[j].r
		}
		return edges[i].c < edges[j].c
	})

	out := Coo{
		Rows: make([]int, len(edges)),
		Cols: make([]int, len(edges)),
		Data: make([]float64, len(edges)),
		NRow: nRow,
		NCol: nCol,
	}
	for i, e := range edges {
		out.Rows[i] = e.r
		out.Cols[i] = e.c
		out.Data[i] = em[e]
	}
	return out
}

// normalizeRowsByMax divides every stored weight by its row maximum, giving
// each point at least one full-confidence edge.
func normalizeRowsByMax(m Coo) Coo {
	rowMax := make([]float64, m.NRow)
	for i := range m.Data {
		if m.Data[i] > rowMax[m.Rows[i]] {
			rowMax[m.Rows[i]] = m.Data[i]
		}
	}
	out := Coo{
		Rows: append([]int(nil), m.Rows...),
		Cols: append([]int(nil), m.Cols...),
		Data: make([]float64, len(m.Data)),
		NRow: m.NRow,
		NCol: m.NCol,
	}
	for i := range m.Data {
		if rowMax[m.Rows[i]] > 0 {
			out.Data[i] = m.Data[i] / rowMax[m.Rows[i]]
		}
	}
	return out
}

// L1NormalizeRows scales every row to sum to 1. Rows with zero sum are left
// untouched. Used to turn bipartite membership strengths into interpolation
// weights for transform seeding.
func L1NormalizeRows(m Coo) Coo {
	rowSum := make([]float64, m.NRow)
	for i := range m.Data {
		rowSum[m.Rows[i]] += m.Data[i]
	}
	out := Coo{
		Rows: append([]int(nil), m.Rows...),
		Cols: append([]int(nil), m.Cols...),
		Data: make([]float64, len(m.Data)),
		NRow: m.NRow,
		NCol: m.NCol,
	}
	for i := range m.Data {
		if rowSum[m.Rows[i]] > 0 {
			out.Data[i] = m.Data[i] / rowSum[m.Rows[i]]
		} else {
			out.Data[i] = m.Data[i]
		}
	}
	return out
}
