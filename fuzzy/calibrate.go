package fuzzy

import (
	"math"

	"github.com/manifoldlab/clustermap/internal/parallel"
)

const (
	// smoothKTolerance bounds the binary search on the cardinality equation.
	smoothKTolerance = 1e-5
	// minKDistScale floors sigma relative to the mean neighbor distance so no
	// row degenerates to a zero bandwidth.
	minKDistScale = 1e-3
	// maxSmoothKIter caps the bandwidth binary search.
	maxSmoothKIter = 64
)

// Calibration holds the per-point local connectivity radius and bandwidth.
type Calibration struct {
	Rho   []float64 // distance within which neighbors get full membership
	Sigma []float64 // exponential decay bandwidth beyond rho
}

// SmoothKNNDist calibrates a bandwidth for every point such that the induced
// fuzzy set has cardinality k: sum_j exp(-max(0, d_ij - rho_i)/sigma_i)
// equals log2(k) within tolerance. Rows are the sorted neighbor distances of
// each point (self excluded). localConnectivity supports fractional values by
// interpolating between adjacent order statistics.
func SmoothKNNDist(distances [][]float64, k float64, localConnectivity float64, workers int) Calibration {
	n := len(distances)
	cal := Calibration{
		Rho:   make([]float64, n),
		Sigma: make([]float64, n),
	}
	target := math.Log2(k)

	var globalSum float64
	var globalCount int
	for _, row := range distances {
		for _, d := range row {
			globalSum += d
			globalCount++
		}
	}
	globalMean := 0.0
	if globalCount > 0 {
		globalMean = globalSum / float64(globalCount)
	}

	parallel.For(n, workers, func(i int) {
		row := distances[i]

		nonZero := make([]float64, 0, len(row))
		for _, d := range row {
			if d > 0 {
				nonZero = append(nonZero, d)
			}
		}

		if float64(len(nonZero)) >= localConnectivity {
			idx := int(math.Floor(localConnectivity))
			interp := localConnectivity - float64(idx)
			if idx > 0 {
				cal.Rho[i] = nonZero[idx-1]
				if interp > smoothKTolerance {
					cal.Rho[i] += interp * (nonZero[idx] - nonZero[idx-1])
				}
			} else if len(nonZero) > 0 {
				cal.Rho[i] = interp * nonZero[0]
			}
		} else if len(nonZero) > 0 {
			cal.Rho[i] = nonZero[len(nonZero)-1]
		}

		// Binary search on sigma; the upper bound doubles until braced.
		lo, hi, mid := 0.0, math.Inf(1), 1.0
		for iter := 0; iter < maxSmoothKIter; iter++ {
			psum := 0.0
			for _, d := range row {
				delta := d - cal.Rho[i]
				if delta > 0 {
					psum += math.Exp(-delta / mid)
				} else {
					psum += 1.0
				}
			}

			if math.Abs(psum-target) < smoothKTolerance {
				break
			}

			if psum > target {
				hi = mid
				mid = (lo + hi) / 2.0
			} else {
				lo = mid
				if math.IsInf(hi, 1) {
					mid *= 2
				} else {
					mid = (lo + hi) / 2.0
				}
			}
		}
		cal.Sigma[i] = mid

		// Floor against the row mean when the point has a nonzero radius,
		// against the global mean otherwise.
		if cal.Rho[i] > 0 {
			if m := rowMean(row); cal.Sigma[i] < minKDistScale*m {
				cal.Sigma[i] = minKDistScale * m
			}
		} else if cal.Sigma[i] < minKDistScale*globalMean {
			cal.Sigma[i] = minKDistScale * globalMean
		}
	})

	return cal
}

func rowMean(row []float64) float64 {
	if len(row) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range row {
		sum += d
	}
	return sum / float64(len(row))
}
