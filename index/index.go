// Package index provides the common contract shared by all index algorithms.
package index

import (
	"context"
	"fmt"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
)

// Kind identifies an index algorithm family. The numeric value doubles as
// the on-disk algorithm tag and must never be reassigned.
type Kind uint8

const (
	KindLinear     Kind = 1
	KindKDTree     Kind = 2
	KindKMeansTree Kind = 3
	KindComposite  Kind = 4
	KindLSH        Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "Linear"
	case KindKDTree:
		return "KDTree"
	case KindKMeansTree:
		return "KMeansTree"
	case KindComposite:
		return "Composite"
	case KindLSH:
		return "LSH"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// ChecksExhaustive forces a full scan equivalent to the Linear algorithm
// regardless of index structure. It is the correctness oracle against
// which approximate configurations are validated.
const ChecksExhaustive = -1

// SearchParams carries query-time knobs. A nil *SearchParams means
// defaults (DefaultChecks budget, no neighbor cap, all cores).
type SearchParams struct {
	// Checks is the traversal budget: the maximum number of leaf visits
	// an approximate search performs before returning best-found
	// candidates. ChecksExhaustive disables the budget.
	Checks int

	// MaxNeighbors caps radius search results. 0 means unlimited.
	// If more points qualify, the closest MaxNeighbors are returned and
	// the rest silently truncated.
	MaxNeighbors int

	// Cores hints the parallelism for batch operations. 0 means all.
	Cores int
}

// DefaultChecks is the traversal budget applied when none is given.
const DefaultChecks = 32

// EffectiveChecks resolves the checks budget from possibly-nil params.
func (sp *SearchParams) EffectiveChecks() int {
	if sp == nil || sp.Checks == 0 {
		return DefaultChecks
	}
	return sp.Checks
}

// EffectiveMaxNeighbors resolves the radius result cap. 0 means unlimited.
func (sp *SearchParams) EffectiveMaxNeighbors() int {
	if sp == nil {
		return 0
	}
	return sp.MaxNeighbors
}

// SearchResult represents one candidate of a search.
type SearchResult struct {
	// ID is the dataset row index of the candidate.
	ID uint32

	// Distance is the distance between the query and the candidate,
	// under the metric the index was built with.
	Distance float32
}

// Algorithm is the contract every index structure implements.
//
// Build is called exactly once; a built Algorithm is immutable and safe
// for concurrent searches. Rebuilding means constructing a new instance.
type Algorithm interface {
	// Kind identifies the algorithm family.
	Kind() Kind

	// Build constructs the index structure over the dataset.
	Build(ctx context.Context, ds *dataset.Dataset) error

	// KNNSearch returns the min(k, N) nearest candidates to q, ascending
	// by distance then by row index on exact ties.
	KNNSearch(ctx context.Context, q []float32, k int, sp *SearchParams) ([]SearchResult, error)

	// RadiusSearch returns all candidates within radius (inclusive),
	// ascending, subject to the MaxNeighbors cap and the checks budget.
	RadiusSearch(ctx context.Context, q []float32, radius float32, sp *SearchParams) ([]SearchResult, error)
}

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = fmt.Errorf("k must be positive")

// ErrDimensionMismatch indicates a query/dataset vector length disagreement.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrNotBuilt is returned by searches on an unbuilt index when the
// lazy-build convenience is disabled at the facade.
var ErrNotBuilt = fmt.Errorf("index not built")

// CheckQuery validates a query vector against the dataset shape.
func CheckQuery(ds *dataset.Dataset, q []float32) error {
	if len(q) != ds.Dim() {
		return &ErrDimensionMismatch{Expected: ds.Dim(), Actual: len(q)}
	}
	return nil
}

// MetricConfig couples a metric with its order parameter so every
// algorithm resolves the same distance function.
type MetricConfig struct {
	Metric     distance.Metric
	MinkowskiP float64
}

// Func resolves the distance function for the configuration.
func (mc MetricConfig) Func() (distance.Func, error) {
	return distance.Provider(mc.Metric, mc.MinkowskiP)
}
