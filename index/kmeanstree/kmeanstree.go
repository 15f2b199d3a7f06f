// Package kmeanstree provides a hierarchical k-means tree index.
//
// The dataset is recursively partitioned into Branching clusters with
// Lloyd's algorithm (iteration-capped, so convergence is not required for
// termination) down to bounded-size leaves. Search descends toward the
// nearest centroid first and keeps sibling clusters on a global priority
// queue, spending a leaf-visit budget like the k-d forest.
package kmeanstree

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/internal/queue"
	"github.com/hupe1980/flanngo/internal/sample"
)

// Compile-time checks.
var _ index.Algorithm = (*KMeansTree)(nil)
var _ index.BinaryEncoder = (*KMeansTree)(nil)

// Options contains configuration options for the k-means tree.
type Options struct {
	// Branching is the cluster count per internal node. Must be >= 2.
	Branching int

	// Iterations caps Lloyd's refinement per node. The cap guarantees
	// build termination; k-means need not converge.
	Iterations int

	// LeafMax is the maximum number of points stored in a leaf.
	LeafMax int

	// Cores limits build parallelism. 0 means all available.
	Cores int

	// Seed makes clustering deterministic when non-zero.
	Seed int64
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Branching:  32,
	Iterations: 11,
	LeafMax:    32,
}

type knode struct {
	centroid []float32
	children []*knode // nil for leaves
	points   []uint32 // leaves only
}

func (n *knode) leaf() bool { return n.children == nil }

// KMeansTree is a hierarchical k-means tree.
type KMeansTree struct {
	opts Options
	mc   index.MetricConfig
	fn   distance.Func
	ds   *dataset.Dataset
	root *knode
}

// New creates a new k-means tree index.
func New(mc index.MetricConfig, optFns ...func(o *Options)) (*KMeansTree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Branching < 2 {
		return nil, fmt.Errorf("kmeanstree: branching must be >= 2, got %d", opts.Branching)
	}
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("kmeanstree: iterations must be >= 1, got %d", opts.Iterations)
	}
	if opts.LeafMax < 1 {
		return nil, fmt.Errorf("kmeanstree: leaf size must be >= 1, got %d", opts.LeafMax)
	}
	fn, err := mc.Func()
	if err != nil {
		return nil, err
	}
	return &KMeansTree{opts: opts, mc: mc, fn: fn}, nil
}

// Kind identifies the algorithm family.
func (t *KMeansTree) Kind() index.Kind { return index.KindKMeansTree }

// Branching returns the configured branch factor.
func (t *KMeansTree) Branching() int { return t.opts.Branching }

// Build constructs the tree. Build cost is dominated by clustering; the
// first-level subtrees refine in parallel.
func (t *KMeansTree) Build(ctx context.Context, ds *dataset.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.ds = ds

	seed := t.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	points := make([]uint32, ds.Rows())
	for i := range points {
		points[i] = uint32(i)
	}

	root, err := t.buildNode(ctx, points, rng, true)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *KMeansTree) buildNode(ctx context.Context, points []uint32, rng *rand.Rand, parallel bool) (*knode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := &knode{centroid: t.mean(points)}
	if len(points) <= t.opts.LeafMax || len(points) <= t.opts.Branching {
		n.points = points
		return n, nil
	}

	clusters, centroids := t.cluster(points, rng)
	if len(clusters) < 2 {
		// Clustering made no progress (duplicate or near-constant data):
		// fall back to an even split so the recursion always terminates.
		clusters, centroids = t.evenSplit(points)
	}

	n.children = make([]*knode, len(clusters))
	if parallel {
		g, gctx := errgroup.WithContext(ctx)
		if t.opts.Cores > 0 {
			g.SetLimit(t.opts.Cores)
		}
		for i := range clusters {
			childSeed := rng.Int63()
			g.Go(func() error {
				childRng := rand.New(rand.NewSource(childSeed))
				child, err := t.buildNode(gctx, clusters[i], childRng, false)
				if err != nil {
					return err
				}
				child.centroid = centroids[i]
				n.children[i] = child
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range clusters {
			child, err := t.buildNode(ctx, clusters[i], rng, false)
			if err != nil {
				return nil, err
			}
			child.centroid = centroids[i]
			n.children[i] = child
		}
	}
	return n, nil
}

// evenSplit partitions points into near-equal chunks. Past the leaf guard
// len(points) > Branching >= 2 holds, so every chunk is strictly smaller
// than its parent.
func (t *KMeansTree) evenSplit(points []uint32) ([][]uint32, [][]float32) {
	k := t.opts.Branching
	clusters := make([][]uint32, 0, k)
	centroids := make([][]float32, 0, k)
	for i := 0; i < k; i++ {
		lo := i * len(points) / k
		hi := (i + 1) * len(points) / k
		if lo == hi {
			continue
		}
		chunk := points[lo:hi]
		clusters = append(clusters, chunk)
		centroids = append(centroids, t.mean(chunk))
	}
	return clusters, centroids
}

// mean computes the centroid of the given points.
func (t *KMeansTree) mean(points []uint32) []float32 {
	dim := t.ds.Dim()
	sum := make([]float32, dim)
	for _, id := range points {
		vek32.Add_Inplace(sum, t.ds.Row(int(id)))
	}
	vek32.MulNumber_Inplace(sum, 1/float32(len(points)))
	return sum
}

// cluster runs iteration-capped Lloyd's over the points and returns the
// per-cluster point sets along with the final centroids.
func (t *KMeansTree) cluster(points []uint32, rng *rand.Rand) ([][]uint32, [][]float32) {
	k := t.opts.Branching
	if k > len(points) {
		k = len(points)
	}
	dim := t.ds.Dim()

	// Initialize centroids from distinct random points.
	centroids := make([][]float32, k)
	for i, idx := range sample.Rows(rng, len(points), k) {
		centroids[i] = make([]float32, dim)
		copy(centroids[i], t.ds.Row(int(points[idx])))
	}

	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)

	for iter := 0; iter < t.opts.Iterations; iter++ {
		changed := false
		for i := range counts {
			counts[i] = 0
		}

		// Assignment step.
		for i, id := range points {
			row := t.ds.Row(int(id))
			best := 0
			bestDist := float32(math.Inf(1))
			for j, c := range centroids {
				if d := t.fn(row, c); d < bestDist {
					bestDist = d
					best = j
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
			counts[best]++
		}
		if !changed {
			break
		}

		// Update step: recompute means, reseed empty clusters.
		for j := range centroids {
			clear(centroids[j])
		}
		for i, id := range points {
			vek32.Add_Inplace(centroids[assignments[i]], t.ds.Row(int(id)))
		}
		for j := range centroids {
			if counts[j] > 0 {
				vek32.MulNumber_Inplace(centroids[j], 1/float32(counts[j]))
			} else {
				copy(centroids[j], t.ds.Row(int(points[rng.Intn(len(points))])))
			}
		}
	}

	clusters := make([][]uint32, k)
	for j, c := range counts {
		clusters[j] = make([]uint32, 0, c)
	}
	for i, id := range points {
		clusters[assignments[i]] = append(clusters[assignments[i]], id)
	}

	// Drop clusters that ended empty so children always hold points.
	outClusters := clusters[:0]
	outCentroids := centroids[:0]
	for j := range clusters {
		if len(clusters[j]) == 0 {
			continue
		}
		outClusters = append(outClusters, clusters[j])
		outCentroids = append(outCentroids, centroids[j])
	}
	return outClusters, outCentroids
}

type kbranch struct {
	n *knode
}

type traversal struct {
	t        *KMeansTree
	q        []float32
	coll     *index.Collector
	branches *queue.BranchQueue[kbranch]
	checks   int
	visits   int
}

// descend walks toward the nearest centroid, queueing siblings with
// their centroid distances.
func (tr *traversal) descend(n *knode) {
	for !n.leaf() {
		best := 0
		bestDist := float32(math.Inf(1))
		dists := make([]float32, len(n.children))
		for i, child := range n.children {
			dists[i] = tr.t.fn(tr.q, child.centroid)
			if dists[i] < bestDist {
				bestDist = dists[i]
				best = i
			}
		}
		for i, child := range n.children {
			if i == best {
				continue
			}
			tr.branches.Push(queue.Branch[kbranch]{Ref: kbranch{n: child}, MinDist: dists[i]})
		}
		n = n.children[best]
	}

	tr.visits++
	for _, id := range n.points {
		tr.coll.Offer(id, tr.t.fn(tr.q, tr.t.ds.Row(int(id))))
	}
}

func (tr *traversal) run(ctx context.Context, needFull bool) error {
	tr.descend(tr.t.root)
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
		tr.descend(b.Ref.n)
	}
}

// KNNSearch performs bounded best-first search, consuming at most Checks
// leaf visits before returning best-found candidates. The result always
// holds min(k, N) entries.
func (t *KMeansTree) KNNSearch(ctx context.Context, q []float32, k int, sp *index.SearchParams) ([]index.SearchResult, error) {
	if t.root == nil {
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
		branches: queue.NewBranchQueue[kbranch](64),
		checks:   checks,
	}
	if err := tr.run(ctx, true); err != nil {
		return nil, err
	}
	return tr.coll.Results(), nil
}

// RadiusSearch returns all points found within radius under the checks
// budget, capped at MaxNeighbors.
func (t *KMeansTree) RadiusSearch(ctx context.Context, q []float32, radius float32, sp *index.SearchParams) ([]index.SearchResult, error) {
	if t.root == nil {
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

	tr := &traversal{
		t:        t,
		q:        q,
		coll:     index.NewRadiusCollector(radius, sp.EffectiveMaxNeighbors(), t.ds.Rows()),
		branches: queue.NewBranchQueue[kbranch](64),
		checks:   checks,
	}
	if err := tr.run(ctx, false); err != nil {
		return nil, err
	}
	return tr.coll.Results(), nil
}
