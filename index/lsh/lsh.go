// Package lsh provides locality-sensitive hashing indexes.
//
// LSH hashes float vectors with signed random projections: each table
// keys a vector by the sign pattern of KeyBits hyperplane projections,
// so near vectors tend to collide. Search unions the bucket contents
// across tables, optionally multi-probing neighboring buckets, and
// reranks candidates by the true metric.
package lsh

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/viterin/vek/vek32"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
)

// Compile-time checks.
var _ index.Algorithm = (*LSH)(nil)
var _ index.BinaryEncoder = (*LSH)(nil)

// Options contains configuration options for the LSH index.
type Options struct {
	// Tables is the number of independent hash tables. More tables raise
	// recall and memory proportionally.
	Tables int

	// KeyBits is the number of hyperplanes per table, i.e. the bucket
	// key width. More bits mean smaller, more selective buckets.
	KeyBits int

	// Cores limits build parallelism. 0 means all available.
	Cores int

	// Seed makes hyperplane generation deterministic when non-zero.
	Seed int64
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Tables:  12,
	KeyBits: 18,
}

type table struct {
	// planes holds KeyBits hyperplane normals, row-major, dim each.
	planes  []float32
	buckets map[uint64]*roaring.Bitmap
}

// LSH is a signed-random-projection hash index for float vectors.
type LSH struct {
	opts   Options
	mc     index.MetricConfig
	fn     distance.Func
	ds     *dataset.Dataset
	tables []table
}

// New creates a new LSH index.
func New(mc index.MetricConfig, optFns ...func(o *Options)) (*LSH, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tables < 1 {
		return nil, fmt.Errorf("lsh: tables must be >= 1, got %d", opts.Tables)
	}
	if opts.KeyBits < 1 || opts.KeyBits > 30 {
		return nil, fmt.Errorf("lsh: key bits must be in [1,30], got %d", opts.KeyBits)
	}
	fn, err := mc.Func()
	if err != nil {
		return nil, err
	}
	return &LSH{opts: opts, mc: mc, fn: fn}, nil
}

// Kind identifies the algorithm family.
func (l *LSH) Kind() index.Kind { return index.KindLSH }

// Tables returns the configured table count.
func (l *LSH) Tables() int { return l.opts.Tables }

// Build draws the hyperplanes and hashes every row into each table.
// Tables build in parallel.
func (l *LSH) Build(ctx context.Context, ds *dataset.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.ds = ds

	seed := l.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	dim := ds.Dim()
	l.tables = make([]table, l.opts.Tables)

	g, gctx := errgroup.WithContext(ctx)
	if l.opts.Cores > 0 {
		g.SetLimit(l.opts.Cores)
	}
	for i := range l.tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed + int64(i)))
			t := table{
				planes:  make([]float32, l.opts.KeyBits*dim),
				buckets: make(map[uint64]*roaring.Bitmap),
			}
			for j := range t.planes {
				t.planes[j] = float32(rng.NormFloat64())
			}
			for row := 0; row < ds.Rows(); row++ {
				key := l.key(&t, ds.Row(row))
				bm, ok := t.buckets[key]
				if !ok {
					bm = roaring.New()
					t.buckets[key] = bm
				}
				bm.Add(uint32(row))
			}
			l.tables[i] = t
			return nil
		})
	}
	return g.Wait()
}

// key computes the sign pattern of v against the table's hyperplanes.
func (l *LSH) key(t *table, v []float32) uint64 {
	dim := l.ds.Dim()
	var key uint64
	for b := 0; b < l.opts.KeyBits; b++ {
		if vek32.Dot(t.planes[b*dim:(b+1)*dim], v) >= 0 {
			key |= 1 << uint(b)
		}
	}
	return key
}

// candidates unions bucket contents across all tables. When the primary
// probes yield fewer than want candidates, buckets one bit-flip away are
// probed as well.
func (l *LSH) candidates(q []float32, want int) *roaring.Bitmap {
	keys := make([]uint64, len(l.tables))
	out := roaring.New()
	for i := range l.tables {
		keys[i] = l.key(&l.tables[i], q)
		if bm, ok := l.tables[i].buckets[keys[i]]; ok {
			out.Or(bm)
		}
	}
	if int(out.GetCardinality()) >= want {
		return out
	}
	for b := 0; b < l.opts.KeyBits; b++ {
		for i := range l.tables {
			if bm, ok := l.tables[i].buckets[keys[i]^(1<<uint(b))]; ok {
				out.Or(bm)
			}
		}
		if int(out.GetCardinality()) >= want {
			break
		}
	}
	return out
}

// KNNSearch probes the hash tables and reranks candidates by the true
// metric. If probing yields fewer than k candidates the search degrades
// to a full scan so that min(k, N) results always come back.
func (l *LSH) KNNSearch(ctx context.Context, q []float32, k int, sp *index.SearchParams) ([]index.SearchResult, error) {
	if l.tables == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.CheckQuery(l.ds, q); err != nil {
		return nil, err
	}

	checks := sp.EffectiveChecks()
	if checks == index.ChecksExhaustive {
		return index.ExhaustiveKNN(ctx, l.ds, l.fn, q, k)
	}

	n := l.ds.Rows()
	if k > n {
		k = n
	}
	want := checks
	if want < k {
		want = k
	}
	cands := l.candidates(q, want)
	if int(cands.GetCardinality()) < k {
		return index.ExhaustiveKNN(ctx, l.ds, l.fn, q, k)
	}

	coll := index.NewKNNCollector(k)
	it := cands.Iterator()
	for it.HasNext() {
		id := it.Next()
		coll.Offer(id, l.fn(q, l.ds.Row(int(id))))
	}
	return coll.Results(), nil
}

// RadiusSearch reranks probed candidates and keeps those within radius.
// Points outside every probed bucket are not seen; radius search on LSH
// is approximate like its k-NN counterpart.
func (l *LSH) RadiusSearch(ctx context.Context, q []float32, radius float32, sp *index.SearchParams) ([]index.SearchResult, error) {
	if l.tables == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.CheckQuery(l.ds, q); err != nil {
		return nil, err
	}

	checks := sp.EffectiveChecks()
	if checks == index.ChecksExhaustive {
		return index.ExhaustiveRadius(ctx, l.ds, l.fn, q, radius, sp.EffectiveMaxNeighbors())
	}

	cands := l.candidates(q, checks)
	coll := index.NewRadiusCollector(radius, sp.EffectiveMaxNeighbors(), int(cands.GetCardinality()))
	it := cands.Iterator()
	for it.HasNext() {
		id := it.Next()
		coll.Offer(id, l.fn(q, l.ds.Row(int(id))))
	}
	return coll.Results(), nil
}

// BinaryLSH hashes byte vectors by sampling key bits directly from the
// data, the natural scheme under Hamming distance. It is bucket-for-bucket
// the same table layout as LSH but needs no projections.
type BinaryLSH struct {
	opts Options
	fn   distance.FuncBytes
	ds   *dataset.Binary
	bits [][]int // per table: sampled bit positions
	tabs []map[uint64]*roaring.Bitmap
}

// NewBinary creates an LSH index over byte vectors using Hamming distance.
func NewBinary(optFns ...func(o *Options)) (*BinaryLSH, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tables < 1 {
		return nil, fmt.Errorf("lsh: tables must be >= 1, got %d", opts.Tables)
	}
	if opts.KeyBits < 1 || opts.KeyBits > 30 {
		return nil, fmt.Errorf("lsh: key bits must be in [1,30], got %d", opts.KeyBits)
	}
	fn, err := distance.ProviderBytes(distance.MetricHamming)
	if err != nil {
		return nil, err
	}
	return &BinaryLSH{opts: opts, fn: fn}, nil
}

// Build samples bit positions per table and hashes every row.
func (l *BinaryLSH) Build(ctx context.Context, ds *dataset.Binary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.ds = ds

	seed := l.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	totalBits := ds.Width() * 8
	l.bits = make([][]int, l.opts.Tables)
	l.tabs = make([]map[uint64]*roaring.Bitmap, l.opts.Tables)
	for i := range l.bits {
		l.bits[i] = rng.Perm(totalBits)[:min(l.opts.KeyBits, totalBits)]
		l.tabs[i] = make(map[uint64]*roaring.Bitmap)
		for row := 0; row < ds.Rows(); row++ {
			key := binaryKey(l.bits[i], ds.Row(row))
			bm, ok := l.tabs[i][key]
			if !ok {
				bm = roaring.New()
				l.tabs[i][key] = bm
			}
			bm.Add(uint32(row))
		}
	}
	return nil
}

func binaryKey(bits []int, v []byte) uint64 {
	var key uint64
	for i, b := range bits {
		if v[b/8]&(1<<uint(b%8)) != 0 {
			key |= 1 << uint(i)
		}
	}
	return key
}

// KNNSearch probes every table and reranks the union by Hamming distance,
// degrading to a full scan when probing yields fewer than k candidates.
func (l *BinaryLSH) KNNSearch(ctx context.Context, q []byte, k int) ([]index.SearchResult, error) {
	if l.tabs == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(q) != l.ds.Width() {
		return nil, &index.ErrDimensionMismatch{Expected: l.ds.Width(), Actual: len(q)}
	}

	n := l.ds.Rows()
	if k > n {
		k = n
	}

	cands := roaring.New()
	for i := range l.tabs {
		if bm, ok := l.tabs[i][binaryKey(l.bits[i], q)]; ok {
			cands.Or(bm)
		}
	}

	coll := index.NewKNNCollector(k)
	if int(cands.GetCardinality()) < k {
		for row := 0; row < n; row++ {
			coll.Offer(uint32(row), l.fn(q, l.ds.Row(row)))
		}
		return coll.Results(), nil
	}
	it := cands.Iterator()
	for it.HasNext() {
		id := it.Next()
		coll.Offer(id, l.fn(q, l.ds.Row(int(id))))
	}
	return coll.Results(), nil
}
