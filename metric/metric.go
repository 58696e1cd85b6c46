// Package metric provides the pluggable distance capability used when
// building the nearest-neighbor graph. A metric must be symmetric and
// return zero for identical inputs.
package metric

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Metric computes a non-negative distance between two equal-length vectors.
type Metric interface {
	Distance(a, b []float64) float64
}

// Func adapts a plain function into a Metric.
type Func func(a, b []float64) float64

// Distance implements Metric.
func (f Func) Distance(a, b []float64) float64 { return f(a, b) }

// Euclidean is the L2 distance.
type Euclidean struct{}

func (Euclidean) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// SquaredEuclidean is the squared L2 distance (no sqrt).
type SquaredEuclidean struct{}

func (SquaredEuclidean) Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Manhattan is the L1 (city-block) distance.
type Manhattan struct{}

func (Manhattan) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// Chebyshev is the L-infinity distance.
type Chebyshev struct{}

func (Chebyshev) Distance(a, b []float64) float64 {
	var max float64
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > max {
			max = d
		}
	}
	return max
}

// Cosine is 1 minus the cosine similarity. Zero vectors are treated as
// maximally distant rather than producing NaN.
type Cosine struct{}

func (Cosine) Distance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/math.Sqrt(na*nb)
}

// Hamming is the fraction of coordinates that differ.
type Hamming struct{}

func (Hamming) Distance(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var diff float64
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff / float64(len(a))
}

// Canberra is the weighted L1 distance sum(|a-b| / (|a|+|b|)).
type Canberra struct{}

func (Canberra) Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		denom := math.Abs(a[i]) + math.Abs(b[i])
		if denom > 0 {
			sum += math.Abs(a[i]-b[i]) / denom
		}
	}
	return sum
}

// BrayCurtis is sum(|a-b|) / sum(|a+b|).
type BrayCurtis struct{}

func (BrayCurtis) Distance(a, b []float64) float64 {
	var num, denom float64
	for i := range a {
		num += math.Abs(a[i] - b[i])
		denom += math.Abs(a[i] + b[i])
	}
	if denom == 0 {
		return 0
	}
	return num / denom
}

var named = map[string]Metric{
	"euclidean":   Euclidean{},
	"l2":          Euclidean{},
	"sqeuclidean": SquaredEuclidean{},
	"manhattan":   Manhattan{},
	"l1":          Manhattan{},
	"cityblock":   Manhattan{},
	"chebyshev":   Chebyshev{},
	"cosine":      Cosine{},
	"hamming":     Hamming{},
	"canberra":    Canberra{},
	"braycurtis":  BrayCurtis{},
}

// ByName resolves a named metric. The name "precomputed" is handled by the
// caller (the input is then a distance matrix, not points) and is not
// resolvable here.
func ByName(name string) (Metric, error) {
	m, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q (known: %v)", name, Names())
	}
	return m, nil
}

// Names lists the recognized metric names in sorted order.
func Names() []string {
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
