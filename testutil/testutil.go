// Package testutil provides seeded dataset generators and a brute-force
// reference search used by index tests.
package testutil

import (
	"math/rand"
	"sort"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
)

// RandomDataset returns rows uniformly distributed in [0,1)^dim.
func RandomDataset(seed int64, rows, dim int) *dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = rng.Float32()
	}
	ds, err := dataset.New(data, rows, dim)
	if err != nil {
		panic(err)
	}
	return ds
}

// ClusteredDataset returns clusters*perCluster rows grouped in gaussian
// blobs, the shape tree indexes are good at.
func ClusteredDataset(seed int64, clusters, perCluster, dim int, spread float64) *dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	rows := clusters * perCluster
	data := make([]float32, 0, rows*dim)

	center := make([]float64, dim)
	for c := 0; c < clusters; c++ {
		for d := range center {
			center[d] = rng.Float64() * 10
		}
		for p := 0; p < perCluster; p++ {
			for d := 0; d < dim; d++ {
				data = append(data, float32(center[d]+rng.NormFloat64()*spread))
			}
		}
	}
	ds, err := dataset.New(data, rows, dim)
	if err != nil {
		panic(err)
	}
	return ds
}

// BruteForceKNN is the reference result: full scan sorted ascending by
// distance, ties broken by row index.
func BruteForceKNN(ds *dataset.Dataset, fn distance.Func, q []float32, k int) []index.SearchResult {
	results := make([]index.SearchResult, ds.Rows())
	for i := 0; i < ds.Rows(); i++ {
		results[i] = index.SearchResult{ID: uint32(i), Distance: fn(q, ds.Row(i))}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// BruteForceRadius is the reference radius result, inclusive bound.
func BruteForceRadius(ds *dataset.Dataset, fn distance.Func, q []float32, radius float32) []index.SearchResult {
	var results []index.SearchResult
	for i := 0; i < ds.Rows(); i++ {
		if d := fn(q, ds.Row(i)); d <= radius {
			results = append(results, index.SearchResult{ID: uint32(i), Distance: d})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// Recall measures the overlap between got and the reference want.
func Recall(got, want []index.SearchResult) float64 {
	if len(want) == 0 {
		return 1
	}
	found := make(map[uint32]struct{}, len(got))
	for _, r := range got {
		found[r.ID] = struct{}{}
	}
	hits := 0
	for _, r := range want {
		if _, ok := found[r.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
