// Package linear provides the exhaustive-scan baseline index.
//
// Linear keeps no structure at all: every search scans the whole dataset
// and is therefore exact. The other index families are validated against
// it during tests and autotuning.
package linear

import (
	"context"
	"io"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
)

// Compile-time check to ensure Linear satisfies the algorithm contract.
var _ index.Algorithm = (*Linear)(nil)
var _ index.BinaryEncoder = (*Linear)(nil)

func init() {
	index.RegisterBinaryDecoder(index.KindLinear, decodeBinary)
}

// Linear is the brute-force index.
type Linear struct {
	mc index.MetricConfig
	fn distance.Func
	ds *dataset.Dataset
}

// New creates a new linear index for the given metric.
func New(mc index.MetricConfig) (*Linear, error) {
	fn, err := mc.Func()
	if err != nil {
		return nil, err
	}
	return &Linear{mc: mc, fn: fn}, nil
}

// Kind identifies the algorithm family.
func (l *Linear) Kind() index.Kind { return index.KindLinear }

// Build binds the dataset. Linear has no structure to construct.
func (l *Linear) Build(ctx context.Context, ds *dataset.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.ds = ds
	return nil
}

// KNNSearch performs an exact k-nearest-neighbor scan.
func (l *Linear) KNNSearch(ctx context.Context, q []float32, k int, _ *index.SearchParams) ([]index.SearchResult, error) {
	if l.ds == nil {
		return nil, index.ErrNotBuilt
	}
	return index.ExhaustiveKNN(ctx, l.ds, l.fn, q, k)
}

// RadiusSearch performs an exact radius scan.
func (l *Linear) RadiusSearch(ctx context.Context, q []float32, radius float32, sp *index.SearchParams) ([]index.SearchResult, error) {
	if l.ds == nil {
		return nil, index.ErrNotBuilt
	}
	return index.ExhaustiveRadius(ctx, l.ds, l.fn, q, radius, sp.EffectiveMaxNeighbors())
}

// EncodeBinary writes the structure block. Linear stores nothing beyond
// the algorithm tag in the file header.
func (l *Linear) EncodeBinary(io.Writer) error { return nil }

func decodeBinary(_ io.Reader, ds *dataset.Dataset, mc index.MetricConfig) (index.Algorithm, error) {
	l, err := New(mc)
	if err != nil {
		return nil, err
	}
	if err := l.Build(context.Background(), ds); err != nil {
		return nil, err
	}
	return l, nil
}
