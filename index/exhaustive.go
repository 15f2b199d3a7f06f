package index

import (
	"context"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/internal/queue"
)

// scanChunk is the number of rows whose distances are computed per batch
// during exhaustive scans.
const scanChunk = 256

// ExhaustiveKNN scans every row of the dataset and returns the min(k, N)
// nearest candidates. It is the exact baseline all approximate searches
// fall back to under ChecksExhaustive.
func ExhaustiveKNN(ctx context.Context, ds *dataset.Dataset, fn distance.Func, q []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := CheckQuery(ds, q); err != nil {
		return nil, err
	}

	n := ds.Rows()
	if k > n {
		k = n
	}

	top := queue.NewMax(k)
	scanRows(ds, fn, q, func(id uint32, d float32) {
		pushCandidate(top, k, id, d)
	})
	return DrainAscending(top), nil
}

// ExhaustiveRadius scans every row and returns all candidates within
// radius (inclusive), ascending, capped at maxNeighbors (0 = unlimited).
func ExhaustiveRadius(ctx context.Context, ds *dataset.Dataset, fn distance.Func, q []float32, radius float32, maxNeighbors int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckQuery(ds, q); err != nil {
		return nil, err
	}

	n := ds.Rows()
	cap := maxNeighbors
	if cap <= 0 || cap > n {
		cap = n
	}

	top := queue.NewMax(cap)
	scanRows(ds, fn, q, func(id uint32, d float32) {
		if d > radius {
			return
		}
		pushCandidate(top, cap, id, d)
	})
	return DrainAscending(top), nil
}

// scanRows streams batched distances for every dataset row to visit.
func scanRows(ds *dataset.Dataset, fn distance.Func, q []float32, visit func(id uint32, d float32)) {
	n := ds.Rows()
	dim := ds.Dim()
	data := ds.Data()

	dists := make([]float32, scanChunk)
	for base := 0; base < n; base += scanChunk {
		m := scanChunk
		if base+m > n {
			m = n - base
		}
		distance.PairwiseFlatTo(dists[:m], fn, q, data[base*dim:(base+m)*dim], dim)
		for i := 0; i < m; i++ {
			visit(uint32(base+i), dists[i])
		}
	}
}

// pushCandidate keeps the best limit candidates in a max-heap.
func pushCandidate(top *queue.PriorityQueue, limit int, id uint32, d float32) {
	if top.Len() < limit {
		top.Push(queue.Item{ID: id, Distance: d})
		return
	}
	worst, _ := top.Top()
	if d < worst.Distance || (d == worst.Distance && id < worst.ID) {
		top.Pop()
		top.Push(queue.Item{ID: id, Distance: d})
	}
}

// DrainAscending empties a max-heap of candidates into a slice ordered
// ascending by (distance, row index).
func DrainAscending(top *queue.PriorityQueue) []SearchResult {
	results := make([]SearchResult, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := top.Pop()
		results[i] = SearchResult{ID: item.ID, Distance: item.Distance}
	}
	return results
}
