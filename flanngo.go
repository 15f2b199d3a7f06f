package flanngo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flanngo/autotune"
	"github.com/hupe1980/flanngo/blobstore"
	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/index/composite"
	"github.com/hupe1980/flanngo/index/kdtree"
	"github.com/hupe1980/flanngo/index/kmeanstree"
	"github.com/hupe1980/flanngo/index/linear"
	"github.com/hupe1980/flanngo/index/lsh"
	"github.com/hupe1980/flanngo/persistence"
)

// Index binds a dataset to an algorithm instance. It holds a non-owning
// reference to the dataset, which must outlive the Index.
//
// Once built, an Index is immutable and safe for concurrent queries.
// Rebuilding means constructing a new Index; in-flight queries against
// the old one stay valid.
type Index struct {
	ds     *dataset.Dataset
	params Params
	opts   options

	buildMu sync.Mutex
	built   atomic.Bool
	closed  atomic.Bool

	alg     index.Algorithm
	speedup float32
}

// New creates an unbuilt Index over the dataset. The first query
// triggers the build unless Build is called explicitly.
func New(ds *dataset.Dataset, params Params, optFns ...Option) (*Index, error) {
	if ds == nil || ds.Rows() == 0 {
		return nil, ErrEmptyDataset
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Index{ds: ds, params: params, opts: opts}, nil
}

// Build constructs the index structure and returns the achieved speedup
// over linear scan. For autotuned builds the speedup is measured during
// trials; for explicit algorithms it is a cost-model estimate. Calling
// Build on a built Index returns the recorded speedup.
func (idx *Index) Build(ctx context.Context) (float32, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}
	if err := idx.ensureBuilt(ctx); err != nil {
		return 0, err
	}
	return idx.speedup, nil
}

func (idx *Index) ensureBuilt(ctx context.Context) error {
	if idx.built.Load() {
		return nil
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()
	if idx.built.Load() {
		return nil
	}

	start := time.Now()
	err := idx.build(ctx)
	idx.opts.metricsCollector.RecordBuild(idx.ds.Rows(), time.Since(start), err)
	idx.opts.logger.WithAlgorithm(idx.params.Algorithm.String()).
		LogBuild(ctx, idx.ds.Rows(), idx.ds.Dim(), idx.speedup, time.Since(start), err)
	if err != nil {
		return translateError(err)
	}

	idx.built.Store(true)
	return nil
}

func (idx *Index) build(ctx context.Context) error {
	mc := index.MetricConfig{Metric: idx.params.Metric, MinkowskiP: idx.params.MinkowskiP}

	if idx.params.Algorithm == AlgorithmAutotuned {
		sel, err := autotune.Tune(ctx, idx.ds, autotune.Config{
			TargetPrecision: idx.params.TargetPrecision,
			SampleFraction:  idx.params.SampleFraction,
			Metric:          mc,
			Controller:      idx.opts.controller,
			Seed:            idx.params.Seed,
		})
		if err != nil {
			return err
		}
		idx.applySelection(sel)
	}

	alg, err := idx.construct(mc)
	if err != nil {
		return err
	}
	if err := alg.Build(ctx, idx.ds); err != nil {
		return err
	}
	idx.alg = alg

	if idx.params.Algorithm != AlgorithmAutotuned || idx.speedup == 0 {
		idx.speedup = autotune.HeuristicSpeedup(alg.Kind(), idx.ds.Rows(), idx.params.Checks)
	}
	return nil
}

// applySelection folds a tuning outcome back into the build parameters.
func (idx *Index) applySelection(sel *autotune.Selection) {
	switch sel.Kind {
	case index.KindKDTree:
		idx.params.Algorithm = AlgorithmKDTree
		idx.params.Trees = sel.KDTree.Trees
		idx.params.LeafMax = sel.KDTree.LeafMax
	case index.KindKMeansTree:
		idx.params.Algorithm = AlgorithmKMeans
		idx.params.Branching = sel.KMeans.Branching
		idx.params.Iterations = sel.KMeans.Iterations
		idx.params.LeafMax = sel.KMeans.LeafMax
	default:
		idx.params.Algorithm = AlgorithmLinear
	}
	if sel.Checks > 0 {
		idx.params.Checks = sel.Checks
	}
	idx.speedup = sel.Speedup
}

func (idx *Index) construct(mc index.MetricConfig) (index.Algorithm, error) {
	p := idx.params
	switch p.Algorithm {
	case AlgorithmLinear:
		return linear.New(mc)
	case AlgorithmKDTree:
		return kdtree.New(mc, func(o *kdtree.Options) {
			o.Trees = p.Trees
			o.LeafMax = p.LeafMax
			o.Cores = p.Cores
			o.Seed = p.Seed
		})
	case AlgorithmKMeans:
		return kmeanstree.New(mc, func(o *kmeanstree.Options) {
			o.Branching = p.Branching
			o.Iterations = p.Iterations
			o.LeafMax = p.LeafMax
			o.Cores = p.Cores
			o.Seed = p.Seed
		})
	case AlgorithmComposite:
		return composite.New(mc, func(o *composite.Options) {
			o.KDTree.Trees = p.Trees
			o.KDTree.LeafMax = p.LeafMax
			o.KMeans.Branching = p.Branching
			o.KMeans.Iterations = p.Iterations
			o.Cores = p.Cores
			o.Seed = p.Seed
		})
	case AlgorithmLSH:
		return lsh.New(mc, func(o *lsh.Options) {
			o.Tables = p.Tables
			o.KeyBits = p.KeyBits
			o.Cores = p.Cores
			o.Seed = p.Seed
		})
	default:
		return nil, &ErrInvalidParameters{Field: "algorithm", Reason: "unknown family"}
	}
}

func (idx *Index) searchParams(optFns []SearchOption) (*index.SearchParams, int) {
	so := searchOptions{checks: idx.params.Checks}
	for _, fn := range optFns {
		fn(&so)
	}
	cores := so.cores
	if cores == 0 {
		cores = idx.params.Cores
	}
	if cores == 0 {
		cores = idx.opts.controller.Workers()
	}
	return &index.SearchParams{
		Checks:       so.checks,
		MaxNeighbors: so.maxNeighbors,
		Cores:        cores,
	}, cores
}

// KNNSearch returns, for each query row, the indices and distances of
// its min(k, N) nearest neighbors, ascending by distance with ties
// broken by row index. Queries fan out across cores.
func (idx *Index) KNNSearch(ctx context.Context, queries *dataset.Dataset, k int, optFns ...SearchOption) ([][]int, [][]float64, error) {
	start := time.Now()
	indices, dists, err := idx.knnSearch(ctx, queries, k, optFns)

	nq := 0
	if queries != nil {
		nq = queries.Rows()
	}
	idx.opts.metricsCollector.RecordKNNSearch(nq, k, time.Since(start), err)
	idx.opts.logger.LogSearch(ctx, nq, k, time.Since(start), err)
	return indices, dists, err
}

func (idx *Index) knnSearch(ctx context.Context, queries *dataset.Dataset, k int, optFns []SearchOption) ([][]int, [][]float64, error) {
	if idx.closed.Load() {
		return nil, nil, ErrIndexClosed
	}
	if queries == nil || queries.Rows() == 0 {
		return nil, nil, ErrEmptyDataset
	}
	if k <= 0 {
		return nil, nil, ErrInvalidK
	}
	if queries.Dim() != idx.ds.Dim() {
		return nil, nil, &ErrDimensionMismatch{Expected: idx.ds.Dim(), Actual: queries.Dim()}
	}
	if err := idx.ensureBuilt(ctx); err != nil {
		return nil, nil, err
	}

	sp, cores := idx.searchParams(optFns)
	indices := make([][]int, queries.Rows())
	dists := make([][]float64, queries.Rows())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cores)
	for i := 0; i < queries.Rows(); i++ {
		g.Go(func() error {
			results, err := idx.alg.KNNSearch(gctx, queries.Row(i), k, sp)
			if err != nil {
				return err
			}
			indices[i], dists[i] = convert(results)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, translateError(err)
	}
	return indices, dists, nil
}

// RadiusSearch returns all points within radius (inclusive) of the
// query point, ascending by distance. When WithMaxNeighbors is set and
// more points qualify, the closest ones are returned and the rest
// silently truncated.
func (idx *Index) RadiusSearch(ctx context.Context, point []float32, radius float32, optFns ...SearchOption) ([]int, []float64, error) {
	start := time.Now()
	indices, dists, err := idx.radiusSearch(ctx, point, radius, optFns)

	idx.opts.metricsCollector.RecordRadiusSearch(len(indices), time.Since(start), err)
	idx.opts.logger.LogRadiusSearch(ctx, radius, len(indices), time.Since(start), err)
	return indices, dists, err
}

func (idx *Index) radiusSearch(ctx context.Context, point []float32, radius float32, optFns []SearchOption) ([]int, []float64, error) {
	if idx.closed.Load() {
		return nil, nil, ErrIndexClosed
	}
	if len(point) != idx.ds.Dim() {
		return nil, nil, &ErrDimensionMismatch{Expected: idx.ds.Dim(), Actual: len(point)}
	}
	if err := idx.ensureBuilt(ctx); err != nil {
		return nil, nil, err
	}

	sp, _ := idx.searchParams(optFns)
	results, err := idx.alg.RadiusSearch(ctx, point, radius, sp)
	if err != nil {
		return nil, nil, translateError(err)
	}
	indices, dists := convert(results)
	return indices, dists, nil
}

func convert(results []index.SearchResult) ([]int, []float64) {
	indices := make([]int, len(results))
	dists := make([]float64, len(results))
	for i, r := range results {
		indices[i] = int(r.ID)
		dists[i] = float64(r.Distance)
	}
	return indices, dists
}

// Speedup returns the speedup recorded at build time, 0 if unbuilt.
func (idx *Index) Speedup() float32 { return idx.speedup }

// Params returns the effective build parameters. After an autotuned
// build these reflect the selected configuration.
func (idx *Index) Params() Params { return idx.params }

// Close marks the index closed. Close is idempotent; operations on a
// closed Index fail with ErrIndexClosed. The index structure is kept
// intact so queries that passed the closed check before Close ran can
// finish; it is reclaimed once the Index becomes unreachable.
func (idx *Index) Close() error {
	idx.closed.Store(true)
	return nil
}

// Save writes the index to a file, atomically via a temp file rename.
// The dataset's raw vectors are not written; Load needs them supplied
// again.
func (idx *Index) Save(ctx context.Context, filename string) error {
	start := time.Now()
	bytesWritten, err := idx.save(ctx, filename)

	idx.opts.metricsCollector.RecordSave(bytesWritten, time.Since(start), err)
	idx.opts.logger.LogSave(ctx, filename, bytesWritten, time.Since(start), err)
	return err
}

func (idx *Index) save(ctx context.Context, filename string) (int64, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}
	if err := idx.ensureBuilt(ctx); err != nil {
		return 0, err
	}

	var n int64
	err := persistence.SaveToFile(ctx, filename, idx.opts.controller, func(w io.Writer) error {
		var err error
		n, err = idx.encode(w)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return n, nil
}

// SaveToStore writes the index to a blob store under the given name.
func (idx *Index) SaveToStore(ctx context.Context, store blobstore.Store, name string) error {
	start := time.Now()
	bytesWritten, err := idx.saveToStore(ctx, store, name)

	idx.opts.metricsCollector.RecordSave(bytesWritten, time.Since(start), err)
	idx.opts.logger.LogSave(ctx, name, bytesWritten, time.Since(start), err)
	return err
}

func (idx *Index) saveToStore(ctx context.Context, store blobstore.Store, name string) (int64, error) {
	if idx.closed.Load() {
		return 0, ErrIndexClosed
	}
	if err := idx.ensureBuilt(ctx); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	n, err := idx.encode(&buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := store.Put(ctx, name, &buf); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return n, nil
}

// encode writes header, params block and compressed structure block.
func (idx *Index) encode(w io.Writer) (int64, error) {
	enc, ok := idx.alg.(index.BinaryEncoder)
	if !ok {
		return 0, fmt.Errorf("algorithm %s is not serializable", idx.alg.Kind())
	}

	var paramsBuf bytes.Buffer
	if err := encodeParams(&paramsBuf, idx.params); err != nil {
		return 0, err
	}

	var structBuf bytes.Buffer
	if err := enc.EncodeBinary(&structBuf); err != nil {
		return 0, err
	}
	structBlock, err := persistence.CompressBlock(structBuf.Bytes(), idx.params.Compression)
	if err != nil {
		return 0, err
	}

	header := &persistence.FileHeader{
		Magic:       persistence.MagicNumber,
		Version:     persistence.Version,
		Algorithm:   uint8(idx.alg.Kind()),
		Compression: uint8(idx.params.Compression),
		Metric:      uint8(idx.params.Metric),
		MinkowskiP:  float32(idx.params.MinkowskiP),
		Rows:        uint64(idx.ds.Rows()),
		Dim:         uint32(idx.ds.Dim()),
		ParamsSize:  uint32(paramsBuf.Len()),
		StructSize:  uint64(len(structBlock)),
	}
	header.Checksum = persistence.Checksum(paramsBuf.Bytes())
	header.Checksum = persistence.ChecksumCont(header.Checksum, structBlock)

	bw := persistence.NewWriter(w)
	if err := bw.WriteHeader(header); err != nil {
		return 0, err
	}
	if err := bw.WriteBytes(paramsBuf.Bytes()); err != nil {
		return 0, err
	}
	if err := bw.WriteBytes(structBlock); err != nil {
		return 0, err
	}
	return persistence.HeaderSize + int64(paramsBuf.Len()) + int64(len(structBlock)), nil
}

// Load reads an index file and binds it to ds, which must have the same
// shape as the dataset the index was built from.
func Load(ctx context.Context, filename string, ds *dataset.Dataset, optFns ...Option) (*Index, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	var idx *Index
	err := persistence.LoadFromFile(ctx, filename, opts.controller, func(r io.Reader) error {
		var err error
		idx, err = decode(r, ds, opts)
		return err
	})
	opts.metricsCollector.RecordLoad(time.Since(start), err)
	opts.logger.LogLoad(ctx, filename, time.Since(start), err)
	if err != nil {
		return nil, wrapReadError(err)
	}
	return idx, nil
}

// LoadFromStore reads an index blob from a store and binds it to ds.
func LoadFromStore(ctx context.Context, store blobstore.Store, name string, ds *dataset.Dataset, optFns ...Option) (*Index, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	idx, err := loadFromStore(ctx, store, name, ds, opts)
	opts.metricsCollector.RecordLoad(time.Since(start), err)
	opts.logger.LogLoad(ctx, name, time.Since(start), err)
	if err != nil {
		return nil, wrapReadError(err)
	}
	return idx, nil
}

func loadFromStore(ctx context.Context, store blobstore.Store, name string, ds *dataset.Dataset, opts options) (*Index, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	return decode(blob, ds, opts)
}

// wrapReadError keeps structured load errors distinguishable while
// tagging plain I/O failures with ErrRead.
func wrapReadError(err error) error {
	err = translateError(err)

	var shape *ErrDatasetShapeMismatch
	var invalid *ErrInvalidParameters
	switch {
	case errors.As(err, &shape),
		errors.As(err, &invalid),
		errors.Is(err, ErrUnsupportedFormatVersion),
		errors.Is(err, persistence.ErrInvalidMagic),
		errors.Is(err, persistence.ErrChecksumMismatch),
		errors.Is(err, ErrEmptyDataset):
		return err
	}
	return fmt.Errorf("%w: %w", ErrRead, err)
}

// maxBlockSize caps header-declared block sizes so a corrupt header
// cannot drive an oversized or negative allocation. Fits in int on
// 32-bit platforms.
const maxBlockSize = 1 << 30

func decode(r io.Reader, ds *dataset.Dataset, opts options) (*Index, error) {
	if ds == nil || ds.Rows() == 0 {
		return nil, ErrEmptyDataset
	}

	br := persistence.NewReader(r)
	header, err := br.ReadHeader()
	if err != nil {
		return nil, err
	}
	if header.Rows != uint64(ds.Rows()) || header.Dim != uint32(ds.Dim()) {
		return nil, &ErrDatasetShapeMismatch{
			WantRows: int(header.Rows), WantDim: int(header.Dim),
			GotRows: ds.Rows(), GotDim: ds.Dim(),
		}
	}

	// Header-declared sizes are untrusted until the checksum verifies;
	// bound them before allocating.
	if header.ParamsSize > maxBlockSize || header.StructSize > maxBlockSize {
		return nil, fmt.Errorf("block size exceeds limit (params=%d, struct=%d)",
			header.ParamsSize, header.StructSize)
	}

	paramsRaw, err := br.ReadBytes(int(header.ParamsSize))
	if err != nil {
		return nil, err
	}
	structBlock, err := br.ReadBytes(int(header.StructSize))
	if err != nil {
		return nil, err
	}

	sum := persistence.Checksum(paramsRaw)
	sum = persistence.ChecksumCont(sum, structBlock)
	if sum != header.Checksum {
		return nil, persistence.ErrChecksumMismatch
	}

	params, err := decodeParams(bytes.NewReader(paramsRaw))
	if err != nil {
		return nil, err
	}
	params.Metric = distance.Metric(header.Metric)
	params.MinkowskiP = float64(header.MinkowskiP)
	params.Compression = persistence.Compression(header.Compression)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	structRaw, err := persistence.DecompressBlock(structBlock, persistence.Compression(header.Compression))
	if err != nil {
		return nil, err
	}

	mc := index.MetricConfig{Metric: params.Metric, MinkowskiP: params.MinkowskiP}
	alg, err := index.DecodeBinary(index.Kind(header.Algorithm), bytes.NewReader(structRaw), ds, mc)
	if err != nil {
		return nil, err
	}

	idx := &Index{ds: ds, params: params, opts: opts, alg: alg}
	idx.speedup = autotune.HeuristicSpeedup(alg.Kind(), ds.Rows(), params.Checks)
	idx.built.Store(true)
	return idx, nil
}
