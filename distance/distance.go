package distance

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/viterin/vek/vek32"
)

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is the squared Euclidean distance (default).
	MetricL2 Metric = iota
	// MetricL1 is the Manhattan distance.
	MetricL1
	// MetricChebyshev is the maximum coordinate difference.
	MetricChebyshev
	// MetricMinkowski is the Minkowski distance of order P (without the final root).
	MetricMinkowski
	// MetricChiSquare is the chi-square histogram distance.
	MetricChiSquare
	// MetricHellinger is the squared Hellinger distance.
	MetricHellinger
	// MetricHistIntersect is the histogram intersection expressed as a distance.
	MetricHistIntersect
	// MetricHamming is the bit-level Hamming distance over byte vectors.
	MetricHamming
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricL1:
		return "L1"
	case MetricChebyshev:
		return "Chebyshev"
	case MetricMinkowski:
		return "Minkowski"
	case MetricChiSquare:
		return "ChiSquare"
	case MetricHellinger:
		return "Hellinger"
	case MetricHistIntersect:
		return "HistIntersect"
	case MetricHamming:
		return "Hamming"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Func is a function type for distance calculation over float32 vectors.
// Implementations assume len(a) == len(b); the caller checks shape.
type Func func(a, b []float32) float32

// FuncBytes is a function type for distance calculation over byte vectors.
type FuncBytes func(a, b []byte) float32

// SquaredL2 calculates the squared L2 (Euclidean) distance.
func SquaredL2(a, b []float32) float32 {
	d := vek32.Sub(a, b)
	return vek32.Dot(d, d)
}

// L1 calculates the Manhattan distance.
func L1(a, b []float32) float32 {
	d := vek32.Sub(a, b)
	vek32.Abs_Inplace(d)
	return vek32.Sum(d)
}

// Chebyshev calculates the maximum coordinate difference.
func Chebyshev(a, b []float32) float32 {
	d := vek32.Sub(a, b)
	vek32.Abs_Inplace(d)
	return vek32.Max(d)
}

// Minkowski returns a Func computing the Minkowski distance of order p,
// without the final 1/p root. Omitting the root preserves ordering and
// matches SquaredL2 behavior for p=2.
func Minkowski(p float64) Func {
	return func(a, b []float32) float32 {
		var sum float64
		for i := range a {
			d := math.Abs(float64(a[i] - b[i]))
			sum += math.Pow(d, p)
		}
		return float32(sum)
	}
}

// ChiSquare calculates the chi-square distance between histograms.
// Components are expected to be non-negative.
func ChiSquare(a, b []float32) float32 {
	var sum float32
	for i := range a {
		s := a[i] + b[i]
		if s == 0 {
			continue
		}
		d := a[i] - b[i]
		sum += d * d / s
	}
	return sum
}

// Hellinger calculates the squared Hellinger distance between histograms.
// Components are expected to be non-negative.
func Hellinger(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := float32(math.Sqrt(float64(a[i]))) - float32(math.Sqrt(float64(b[i])))
		sum += d * d
	}
	return sum
}

// HistIntersect expresses histogram intersection as a distance: the sum of
// per-component max minus the sum of per-component min. Identical
// histograms yield 0 and less overlap yields larger values, so ordering
// ascends like every other metric here.
func HistIntersect(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if a[i] > b[i] {
			sum += a[i] - b[i]
		} else {
			sum += b[i] - a[i]
		}
	}
	return sum
}

// Hamming calculates the bit-level Hamming distance between byte slices.
func Hamming(a, b []byte) float32 {
	var count int
	for i := range a {
		count += bits.OnesCount8(a[i] ^ b[i])
	}
	return float32(count)
}

// Provider returns the distance function for the given metric over
// float32 vectors. minkowskiP is only consulted for MetricMinkowski.
func Provider(m Metric, minkowskiP float64) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricL1:
		return L1, nil
	case MetricChebyshev:
		return Chebyshev, nil
	case MetricMinkowski:
		if minkowskiP <= 0 {
			return nil, fmt.Errorf("minkowski order must be positive, got %g", minkowskiP)
		}
		return Minkowski(minkowskiP), nil
	case MetricChiSquare:
		return ChiSquare, nil
	case MetricHellinger:
		return Hellinger, nil
	case MetricHistIntersect:
		return HistIntersect, nil
	default:
		return nil, fmt.Errorf("unsupported metric for float32: %v", m)
	}
}

// ProviderBytes returns the distance function for the given metric over
// byte vectors.
func ProviderBytes(m Metric) (FuncBytes, error) {
	switch m {
	case MetricHamming:
		return Hamming, nil
	default:
		return nil, fmt.Errorf("unsupported metric for bytes: %v", m)
	}
}
