// Package composite combines a randomized k-d forest with a hierarchical
// k-means tree. The two structures fail on different data shapes, so
// querying both and merging their candidates buys recall that neither
// reaches alone at the same checks budget.
package composite

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/index/kdtree"
	"github.com/hupe1980/flanngo/index/kmeanstree"
)

// Compile-time checks.
var _ index.Algorithm = (*Composite)(nil)
var _ index.BinaryEncoder = (*Composite)(nil)

// Options contains configuration options for the composite index.
type Options struct {
	// KDTree configures the embedded k-d forest.
	KDTree kdtree.Options

	// KMeans configures the embedded k-means tree.
	KMeans kmeanstree.Options

	// Cores limits build parallelism for both sub-indexes.
	Cores int

	// Seed makes both sub-builds deterministic when non-zero.
	Seed int64
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	KDTree: kdtree.DefaultOptions,
	KMeans: kmeanstree.DefaultOptions,
}

// Composite is a combined k-d forest and k-means tree index.
type Composite struct {
	opts Options
	mc   index.MetricConfig
	fn   distance.Func
	ds   *dataset.Dataset
	kd   *kdtree.KDTree
	km   *kmeanstree.KMeansTree
}

// New creates a new composite index.
func New(mc index.MetricConfig, optFns ...func(o *Options)) (*Composite, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Cores > 0 {
		opts.KDTree.Cores = opts.Cores
		opts.KMeans.Cores = opts.Cores
	}
	if opts.Seed != 0 {
		opts.KDTree.Seed = opts.Seed
		opts.KMeans.Seed = opts.Seed + 1
	}

	fn, err := mc.Func()
	if err != nil {
		return nil, err
	}

	kd, err := kdtree.New(mc, func(o *kdtree.Options) { *o = opts.KDTree })
	if err != nil {
		return nil, err
	}
	km, err := kmeanstree.New(mc, func(o *kmeanstree.Options) { *o = opts.KMeans })
	if err != nil {
		return nil, err
	}
	return &Composite{opts: opts, mc: mc, fn: fn, kd: kd, km: km}, nil
}

// Kind identifies the algorithm family.
func (c *Composite) Kind() index.Kind { return index.KindComposite }

// Build constructs both sub-indexes concurrently over the same dataset.
func (c *Composite) Build(ctx context.Context, ds *dataset.Dataset) error {
	c.ds = ds

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.kd.Build(gctx, ds) })
	g.Go(func() error { return c.km.Build(gctx, ds) })
	return g.Wait()
}

// split divides the checks budget between the two sub-indexes.
func split(checks int) (kd, km int) {
	kd = checks / 2
	if kd < 1 {
		kd = 1
	}
	km = checks - kd
	if km < 1 {
		km = 1
	}
	return kd, km
}

// merge deduplicates candidates from both sub-searches and returns them
// ascending, ties broken by point ID.
func merge(a, b []index.SearchResult, limit int) []index.SearchResult {
	seen := roaring.New()
	out := make([]index.SearchResult, 0, len(a)+len(b))
	for _, rs := range [2][]index.SearchResult{a, b} {
		for _, r := range rs {
			if seen.CheckedAdd(r.ID) {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// KNNSearch queries both sub-indexes with a split checks budget and
// merges their candidates.
func (c *Composite) KNNSearch(ctx context.Context, q []float32, k int, sp *index.SearchParams) ([]index.SearchResult, error) {
	if c.ds == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.CheckQuery(c.ds, q); err != nil {
		return nil, err
	}

	checks := sp.EffectiveChecks()
	if checks == index.ChecksExhaustive {
		return index.ExhaustiveKNN(ctx, c.ds, c.fn, q, k)
	}

	kdChecks, kmChecks := split(checks)
	kdSP := &index.SearchParams{Checks: kdChecks, MaxNeighbors: sp.EffectiveMaxNeighbors()}
	kmSP := &index.SearchParams{Checks: kmChecks, MaxNeighbors: sp.EffectiveMaxNeighbors()}

	kdRes, err := c.kd.KNNSearch(ctx, q, k, kdSP)
	if err != nil {
		return nil, err
	}
	kmRes, err := c.km.KNNSearch(ctx, q, k, kmSP)
	if err != nil {
		return nil, err
	}

	n := c.ds.Rows()
	if k > n {
		k = n
	}
	return merge(kdRes, kmRes, k), nil
}

// RadiusSearch queries both sub-indexes and merges points found within
// radius, capped at MaxNeighbors.
func (c *Composite) RadiusSearch(ctx context.Context, q []float32, radius float32, sp *index.SearchParams) ([]index.SearchResult, error) {
	if c.ds == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.CheckQuery(c.ds, q); err != nil {
		return nil, err
	}

	checks := sp.EffectiveChecks()
	if checks == index.ChecksExhaustive {
		return index.ExhaustiveRadius(ctx, c.ds, c.fn, q, radius, sp.EffectiveMaxNeighbors())
	}

	kdChecks, kmChecks := split(checks)
	kdSP := &index.SearchParams{Checks: kdChecks, MaxNeighbors: sp.EffectiveMaxNeighbors()}
	kmSP := &index.SearchParams{Checks: kmChecks, MaxNeighbors: sp.EffectiveMaxNeighbors()}

	kdRes, err := c.kd.RadiusSearch(ctx, q, radius, kdSP)
	if err != nil {
		return nil, err
	}
	kmRes, err := c.km.RadiusSearch(ctx, q, radius, kmSP)
	if err != nil {
		return nil, err
	}
	return merge(kdRes, kmRes, sp.EffectiveMaxNeighbors()), nil
}
