// Package autotune selects an index algorithm and its parameters by
// measurement. It samples the dataset, computes exact ground truth with a
// linear scan, evaluates a small grid of k-d forest and k-means tree
// configurations, and picks the cheapest one meeting the precision
// target. When nothing qualifies the selection falls back to linear.
package autotune

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/index/kdtree"
	"github.com/hupe1980/flanngo/index/kmeanstree"
	"github.com/hupe1980/flanngo/internal/sample"
	"github.com/hupe1980/flanngo/resource"
)

// minRows is the dataset size below which tuning is pointless and
// linear wins outright.
const minRows = 64

// groundTruthK is the neighbor count recall is measured against.
const groundTruthK = 10

// checksGrid holds the query-time budgets evaluated per trial, ascending
// so the cheapest qualifying budget is found first.
var checksGrid = []int{16, 32, 64, 128, 256}

// Config controls a tuning run.
type Config struct {
	// TargetPrecision is the required recall against the exact result,
	// in (0, 1].
	TargetPrecision float32

	// SampleFraction is the share of the dataset used for trials.
	// Defaults to 0.1, clamped so at least minRows rows are sampled.
	SampleFraction float32

	// Metric is the distance configuration trials are built with.
	Metric index.MetricConfig

	// Controller gates trial builds. Nil means no gating.
	Controller *resource.Controller

	// Seed makes sampling and trial builds deterministic when non-zero.
	Seed int64
}

// Trial records one evaluated configuration.
type Trial struct {
	Kind      index.Kind
	KDTree    kdtree.Options
	KMeans    kmeanstree.Options
	Checks    int
	Recall    float32
	QueryCost time.Duration
	BuildCost time.Duration
}

// Selection is the tuning outcome.
type Selection struct {
	// Kind is the chosen algorithm family. KindLinear when no trial met
	// the target or the dataset was too small to measure.
	Kind   index.Kind
	KDTree kdtree.Options
	KMeans kmeanstree.Options

	// Checks is the query budget that reached the target during trials.
	Checks int

	// Recall is the measured recall of the winning trial.
	Recall float32

	// Speedup is the measured per-query cost ratio versus linear scan.
	Speedup float32

	// Trials holds every evaluated configuration, for diagnostics.
	Trials []Trial
}

// Tune runs the measurement loop and returns the selected configuration.
func Tune(ctx context.Context, ds *dataset.Dataset, cfg Config) (*Selection, error) {
	if cfg.TargetPrecision <= 0 || cfg.TargetPrecision > 1 {
		return nil, fmt.Errorf("autotune: target precision must be in (0,1], got %v", cfg.TargetPrecision)
	}
	if cfg.SampleFraction <= 0 || cfg.SampleFraction > 1 {
		cfg.SampleFraction = 0.1
	}
	if ds.Rows() < minRows {
		return &Selection{Kind: index.KindLinear, Recall: 1, Speedup: 1}, nil
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	train, queries, err := split(ds, rng, cfg.SampleFraction)
	if err != nil {
		return nil, err
	}

	fn, err := cfg.Metric.Func()
	if err != nil {
		return nil, err
	}

	k := groundTruthK
	if k > train.Rows() {
		k = train.Rows()
	}

	// Exact baseline: ground truth plus the linear per-query cost the
	// speedup is measured against.
	truth := make([][]index.SearchResult, queries.Rows())
	linearStart := time.Now()
	for i := 0; i < queries.Rows(); i++ {
		truth[i], err = index.ExhaustiveKNN(ctx, train, fn, queries.Row(i), k)
		if err != nil {
			return nil, err
		}
	}
	linearCost := time.Since(linearStart) / time.Duration(queries.Rows())

	trials, err := runTrials(ctx, cfg, train, queries, truth, k, rng.Int63())
	if err != nil {
		return nil, err
	}

	sel := &Selection{Kind: index.KindLinear, Recall: 1, Speedup: 1, Trials: trials}
	bestCost := time.Duration(math.MaxInt64)
	for _, tr := range trials {
		if tr.Recall < cfg.TargetPrecision || tr.QueryCost >= bestCost {
			continue
		}
		bestCost = tr.QueryCost
		sel.Kind = tr.Kind
		sel.KDTree = tr.KDTree
		sel.KMeans = tr.KMeans
		sel.Checks = tr.Checks
		sel.Recall = tr.Recall
		if tr.QueryCost > 0 {
			sel.Speedup = float32(linearCost) / float32(tr.QueryCost)
		}
	}
	return sel, nil
}

// split samples the dataset and carves a held-out query set from the
// sample.
func split(ds *dataset.Dataset, rng *rand.Rand, fraction float32) (train, queries *dataset.Dataset, err error) {
	n := int(float32(ds.Rows()) * fraction)
	if n < minRows {
		n = minRows
	}
	if n > ds.Rows() {
		n = ds.Rows()
	}

	// A tenth of the sample serves as queries, at least one row each.
	nq := n / 10
	if nq < 1 {
		nq = 1
	}
	if n-nq < 1 {
		return nil, nil, fmt.Errorf("autotune: sample too small to split")
	}

	test, rest := sample.Split(rng, ds.Rows(), nq)
	queries, err = gather(ds, test)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) > n-nq {
		rest = rest[:n-nq]
	}
	train, err = gather(ds, rest)
	if err != nil {
		return nil, nil, err
	}
	return train, queries, nil
}

// gather copies the given rows into a new dataset.
func gather(ds *dataset.Dataset, rows []int) (*dataset.Dataset, error) {
	dim := ds.Dim()
	data := make([]float32, 0, len(rows)*dim)
	for _, r := range rows {
		data = append(data, ds.Row(r)...)
	}
	return dataset.New(data, len(rows), dim)
}

func runTrials(ctx context.Context, cfg Config, train, queries *dataset.Dataset, truth [][]index.SearchResult, k int, seed int64) ([]Trial, error) {
	type build struct {
		kind   index.Kind
		kd     kdtree.Options
		km     kmeanstree.Options
		newAlg func() (index.Algorithm, error)
	}

	var builds []build
	for _, trees := range []int{1, 4, 8, 16, 32} {
		kd := kdtree.DefaultOptions
		kd.Trees = trees
		kd.Seed = seed
		builds = append(builds, build{
			kind: index.KindKDTree,
			kd:   kd,
			newAlg: func() (index.Algorithm, error) {
				return kdtree.New(cfg.Metric, func(o *kdtree.Options) { *o = kd })
			},
		})
	}
	for _, branching := range []int{16, 32, 64} {
		for _, iters := range []int{5, 11} {
			km := kmeanstree.DefaultOptions
			km.Branching = branching
			km.Iterations = iters
			km.Seed = seed
			builds = append(builds, build{
				kind: index.KindKMeansTree,
				km:   km,
				newAlg: func() (index.Algorithm, error) {
					return kmeanstree.New(cfg.Metric, func(o *kmeanstree.Options) { *o = km })
				},
			})
		}
	}

	var mu sync.Mutex
	var trials []Trial

	g, gctx := errgroup.WithContext(ctx)
	if w := cfg.Controller.Workers(); w > 0 {
		g.SetLimit(w)
	}
	for _, b := range builds {
		g.Go(func() error {
			if err := cfg.Controller.AcquireWorker(gctx); err != nil {
				return err
			}
			defer cfg.Controller.ReleaseWorker()

			alg, err := b.newAlg()
			if err != nil {
				return err
			}
			buildStart := time.Now()
			if err := alg.Build(gctx, train); err != nil {
				return err
			}
			tr := Trial{Kind: b.kind, KDTree: b.kd, KMeans: b.km, BuildCost: time.Since(buildStart)}

			// Walk the checks grid until the target is met; the trial
			// records the first qualifying budget.
			for _, checks := range checksGrid {
				recall, cost, err := evaluate(gctx, alg, queries, truth, k, checks)
				if err != nil {
					return err
				}
				tr.Checks = checks
				tr.Recall = recall
				tr.QueryCost = cost
				if recall >= cfg.TargetPrecision {
					break
				}
			}

			mu.Lock()
			trials = append(trials, tr)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trials, nil
}

// evaluate measures recall against ground truth and per-query cost for
// one checks budget.
func evaluate(ctx context.Context, alg index.Algorithm, queries *dataset.Dataset, truth [][]index.SearchResult, k, checks int) (float32, time.Duration, error) {
	sp := &index.SearchParams{Checks: checks}
	var hits, total int
	start := time.Now()
	for i := 0; i < queries.Rows(); i++ {
		got, err := alg.KNNSearch(ctx, queries.Row(i), k, sp)
		if err != nil {
			return 0, 0, err
		}
		found := make(map[uint32]struct{}, len(got))
		for _, r := range got {
			found[r.ID] = struct{}{}
		}
		for _, r := range truth[i] {
			total++
			if _, ok := found[r.ID]; ok {
				hits++
			}
		}
	}
	cost := time.Since(start) / time.Duration(queries.Rows())
	if total == 0 {
		return 0, cost, nil
	}
	return float32(hits) / float32(total), cost, nil
}

// HeuristicSpeedup estimates the query speedup of an index family over
// linear scan from a simple cost model. Explicit (non-autotuned) builds
// report this estimate because nothing was measured.
func HeuristicSpeedup(kind index.Kind, rows, checks int) float32 {
	if rows < 2 || kind == index.KindLinear {
		return 1
	}
	if checks <= 0 {
		checks = index.DefaultChecks
	}
	// Tree descents cost roughly checks * log2(N) point visits; hashing
	// inspects about checks candidates outright.
	var cost float64
	switch kind {
	case index.KindKDTree, index.KindKMeansTree, index.KindComposite:
		cost = float64(checks) * math.Log2(float64(rows))
	case index.KindLSH:
		cost = float64(checks)
	default:
		return 1
	}
	speedup := float64(rows) / cost
	if speedup < 1 {
		return 1
	}
	return float32(speedup)
}
