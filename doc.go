// Package flanngo is an embedded approximate nearest neighbor engine.
//
// A caller wraps vectors in a dataset.Dataset, picks an algorithm family
// and parameters (or asks for autotuning), builds an Index and runs k-NN
// or radius queries against it. Built indexes are immutable and safe for
// concurrent queries; they can be serialized without the dataset and
// restored later against the same data.
//
//	ds, _ := dataset.FromRows(vectors)
//	idx, _ := flanngo.New(ds, flanngo.DefaultParams())
//	indices, dists, _ := idx.KNNSearch(ctx, queries, 10)
package flanngo
