// Package layout contains the low-dimensional side of the pipeline: curve
// parameter fitting, embedding initialization, and the joint
// embedding–clustering stochastic optimizer.
package layout

import "math"

// FitCurveParams fits the (a, b) parameters of the differentiable kernel
// 1/(1 + a·d^(2b)) to an offset exponential determined by spread and
// minDist. The kernel stands in for the fuzzy membership curve in the
// low-dimensional space; its gradient drives both attraction and repulsion.
//
// The fit is least-squares over 300 samples of the target curve, done as a
// coarse grid scan followed by a local refinement pass.
func FitCurveParams(spread, minDist float64) (a, b float64) {
	const nPoints = 300
	xv := make([]float64, nPoints)
	yv := make([]float64, nPoints)
	for i := 0; i < nPoints; i++ {
		xv[i] = float64(i) / float64(nPoints-1) * spread * 3
		if xv[i] < minDist {
			yv[i] = 1.0
		} else {
			yv[i] = math.Exp(-(xv[i] - minDist) / spread)
		}
	}

	sse := func(a, b float64) float64 {
		var err float64
		for i := 0; i < nPoints; i++ {
			pred := 1.0 / (1.0 + a*math.Pow(xv[i], 2*b))
			diff := pred - yv[i]
			err += diff * diff
		}
		return err
	}

	bestA, bestB := 1.0, 1.0
	bestErr := math.Inf(1)
	for aTest := 0.1; aTest <= 10.0; aTest += 0.1 {
		for bTest := 0.1; bTest <= 2.5; bTest += 0.05 {
			if err := sse(aTest, bTest); err < bestErr {
				bestErr = err
				bestA, bestB = aTest, bTest
			}
		}
	}

	// Refine around the grid winner with shrinking steps.
	stepA, stepB := 0.05, 0.025
	for pass := 0; pass < 6; pass++ {
		improved := false
		for _, da := range []float64{-stepA, 0, stepA} {
			for _, db := range []float64{-stepB, 0, stepB} {
				aTest, bTest := bestA+da, bestB+db
				if aTest <= 0 || bTest <= 0 {
					continue
				}
				if err := sse(aTest, bTest); err < bestErr {
					bestErr = err
					bestA, bestB = aTest, bTest
					improved = true
				}
			}
		}
		if !improved {
			stepA /= 2
			stepB /= 2
		}
	}

	return bestA, bestB
}
