// Package distance provides vector distance calculations.
//
// All metrics satisfy non-negativity, d(a, a) == 0, and symmetry. Several
// metrics skip a final root or normalization step when doing so preserves
// ordering (SquaredL2, Minkowski without the 1/p root); nearest-neighbor
// ranking only depends on relative order.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default)
//   - MetricL1: Manhattan distance
//   - MetricChebyshev: maximum coordinate difference
//   - MetricMinkowski: Minkowski distance of configurable order
//   - MetricChiSquare, MetricHellinger, MetricHistIntersect: histogram metrics
//   - MetricHamming: bit-level distance over byte vectors
package distance
