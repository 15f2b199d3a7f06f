// Package kdtree provides a randomized k-d tree forest index.
//
// The forest builds Trees independent trees over the same dataset; each
// split dimension is chosen randomly among the highest-variance dimensions
// of a bounded sample, so the trees disagree and cover for one another.
// Search walks all trees through one shared best-first branch queue under
// a leaf-visit budget. Accuracy increases with Trees and Checks.
package kdtree

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/internal/queue"
	"github.com/hupe1980/flanngo/internal/visited"
)

// Compile-time checks.
var _ index.Algorithm = (*KDTree)(nil)
var _ index.BinaryEncoder = (*KDTree)(nil)

// Options contains configuration options for the k-d forest.
type Options struct {
	// Trees is the number of randomized trees. More trees improve recall
	// at the cost of build time and memory.
	Trees int

	// LeafMax is the maximum number of points stored in a leaf.
	LeafMax int

	// RandDims is the number of top-variance dimensions the split
	// dimension is drawn from.
	RandDims int

	// SampleSize bounds the number of points used to estimate per-node
	// mean and variance.
	SampleSize int

	// Cores limits build parallelism. 0 means all available.
	Cores int

	// Seed makes tree construction deterministic when non-zero.
	Seed int64
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Trees:      4,
	LeafMax:    16,
	RandDims:   5,
	SampleSize: 128,
}

type node struct {
	// Leaf nodes carry points; internal nodes carry a split plane.
	points   []uint32
	splitDim int32
	splitVal float32
	left     *node
	right    *node
}

func (n *node) leaf() bool { return n.points != nil }

// KDTree is a randomized k-d tree forest.
type KDTree struct {
	opts  Options
	mc    index.MetricConfig
	fn    distance.Func
	ds    *dataset.Dataset
	trees []*node
}

// New creates a new k-d forest index.
func New(mc index.MetricConfig, optFns ...func(o *Options)) (*KDTree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Trees < 1 {
		return nil, fmt.Errorf("kdtree: trees must be >= 1, got %d", opts.Trees)
	}
	if opts.LeafMax < 1 {
		return nil, fmt.Errorf("kdtree: leaf size must be >= 1, got %d", opts.LeafMax)
	}
	fn, err := mc.Func()
	if err != nil {
		return nil, err
	}
	return &KDTree{opts: opts, mc: mc, fn: fn}, nil
}

// Kind identifies the algorithm family.
func (t *KDTree) Kind() index.Kind { return index.KindKDTree }

// Trees returns the number of trees in the forest.
func (t *KDTree) Trees() int { return t.opts.Trees }

// Build constructs the forest. Trees build independently in parallel.
func (t *KDTree) Build(ctx context.Context, ds *dataset.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.ds = ds

	seed := t.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	trees := make([]*node, t.opts.Trees)
	g, gctx := errgroup.WithContext(ctx)
	if t.opts.Cores > 0 {
		g.SetLimit(t.opts.Cores)
	}
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed + int64(i)))
			points := make([]uint32, ds.Rows())
			for j := range points {
				points[j] = uint32(j)
			}
			trees[i] = t.divide(points, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	t.trees = trees
	return nil
}

// divide recursively builds a subtree over the given points. The points
// slice is owned by the subtree and repartitioned in place.
func (t *KDTree) divide(points []uint32, rng *rand.Rand) *node {
	if len(points) <= t.opts.LeafMax {
		return &node{points: points}
	}

	dim, val := t.pickSplit(points, rng)
	mid := partition(points, t.ds, dim, val)
	if mid == 0 || mid == len(points) {
		// Degenerate plane (duplicate or near-constant data): fall back
		// to an even split so the recursion always terminates.
		mid = len(points) / 2
	}

	return &node{
		splitDim: int32(dim),
		splitVal: val,
		left:     t.divide(points[:mid], rng),
		right:    t.divide(points[mid:], rng),
	}
}

// pickSplit estimates per-dimension mean and variance over a bounded
// sample and picks a random dimension among the RandDims most variant,
// splitting at its mean.
func (t *KDTree) pickSplit(points []uint32, rng *rand.Rand) (int, float32) {
	d := t.ds.Dim()
	sampleN := t.opts.SampleSize
	if sampleN > len(points) {
		sampleN = len(points)
	}

	mean := make([]float64, d)
	variance := make([]float64, d)
	for s := 0; s < sampleN; s++ {
		row := t.ds.Row(int(points[s]))
		for j := 0; j < d; j++ {
			mean[j] += float64(row[j])
		}
	}
	for j := 0; j < d; j++ {
		mean[j] /= float64(sampleN)
	}
	for s := 0; s < sampleN; s++ {
		row := t.ds.Row(int(points[s]))
		for j := 0; j < d; j++ {
			diff := float64(row[j]) - mean[j]
			variance[j] += diff * diff
		}
	}

	order := make([]int, d)
	for j := range order {
		order[j] = j
	}
	sort.Slice(order, func(a, b int) bool {
		return variance[order[a]] > variance[order[b]]
	})

	nTop := t.opts.RandDims
	if nTop > d {
		nTop = d
	}
	dim := order[rng.Intn(nTop)]
	return dim, float32(mean[dim])
}

// partition reorders points so rows with value < val on dim come first,
// returning the boundary.
func partition(points []uint32, ds *dataset.Dataset, dim int, val float32) int {
	lo := 0
	hi := len(points)
	for lo < hi {
		if ds.Row(int(points[lo]))[dim] < val {
			lo++
			continue
		}
		hi--
		points[lo], points[hi] = points[hi], points[lo]
	}
	return lo
}

// axialDist returns the metric's contribution of a single-coordinate
// difference, used to accumulate branch lower bounds.
func (t *KDTree) axialDist(diff float32) float32 {
	switch t.mc.Metric {
	case distance.MetricL2:
		return diff * diff
	case distance.MetricMinkowski:
		return float32(math.Pow(math.Abs(float64(diff)), t.mc.MinkowskiP))
	default:
		if diff < 0 {
			return -diff
		}
		return diff
	}
}

type branch struct {
	n *node
}

type traversal struct {
	t        *KDTree
	q        []float32
	coll     *index.Collector
	branches *queue.BranchQueue[branch]
	seen     *visited.Set
	checks   int
	visits   int
}

// descend walks greedily toward the query's leaf, queueing the far side
// of each split with its accumulated lower bound.
func (tr *traversal) descend(n *node, minDist float32) {
	for !n.leaf() {
		diff := tr.q[n.splitDim] - n.splitVal
		near, far := n.left, n.right
		if diff >= 0 {
			near, far = n.right, n.left
		}
		tr.branches.Push(queue.Branch[branch]{
			Ref:     branch{n: far},
			MinDist: minDist + tr.t.axialDist(diff),
		})
		n = near
	}

	tr.visits++
	for _, id := range n.points {
		if !tr.seen.Visit(id) {
			continue
		}
		tr.coll.Offer(id, tr.t.fn(tr.q, tr.t.ds.Row(int(id))))
	}
}

// run executes bounded best-first search across all trees.
func (tr *traversal) run(ctx context.Context, needFull bool) error {
	for _, root := range tr.t.trees {
		tr.descend(root, 0)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tr.visits >= tr.checks && (!needFull || tr.coll.Full()) {
			return nil
		}
		b, ok := tr.branches.Pop()
		if !ok {
			return nil
		}
		if b.MinDist > tr.coll.Bound() {
			continue
		}
		tr.descend(b.Ref.n, b.MinDist)
	}
}

// KNNSearch performs bounded best-first search across all trees sharing
// one branch queue, consuming at most Checks leaf visits before returning
// best-found candidates. The result always holds min(k, N) entries.
func (t *KDTree) KNNSearch(ctx context.Context, q []float32, k int, sp *index.SearchParams) ([]index.SearchResult, error) {
	if t.trees == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.CheckQuery(t.ds, q); err != nil {
		return nil, err
	}

	checks := sp.EffectiveChecks()
	if checks == index.ChecksExhaustive {
		return index.ExhaustiveKNN(ctx, t.ds, t.fn, q, k)
	}

	n := t.ds.Rows()
	if k > n {
		k = n
	}
	tr := &traversal{
		t:        t,
		q:        q,
		coll:     index.NewKNNCollector(k),
		branches: queue.NewBranchQueue[branch](64),
		seen:     visited.NewSet(n),
		checks:   checks,
	}
	if err := tr.run(ctx, true); err != nil {
		return nil, err
	}
	return tr.coll.Results(), nil
}

// RadiusSearch returns all points found within radius under the checks
// budget, capped at MaxNeighbors.
func (t *KDTree) RadiusSearch(ctx context.Context, q []float32, radius float32, sp *index.SearchParams) ([]index.SearchResult, error) {
	if t.trees == nil {
		return nil, index.ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.CheckQuery(t.ds, q); err != nil {
		return nil, err
	}

	checks := sp.EffectiveChecks()
	if checks == index.ChecksExhaustive {
		return index.ExhaustiveRadius(ctx, t.ds, t.fn, q, radius, sp.EffectiveMaxNeighbors())
	}

	n := t.ds.Rows()
	tr := &traversal{
		t:        t,
		q:        q,
		coll:     index.NewRadiusCollector(radius, sp.EffectiveMaxNeighbors(), n),
		branches: queue.NewBranchQueue[branch](64),
		seen:     visited.NewSet(n),
		checks:   checks,
	}
	if err := tr.run(ctx, false); err != nil {
		return nil, err
	}
	return tr.coll.Results(), nil
}
