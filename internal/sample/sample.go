// Package sample provides random row sampling for clustering and autotuning.
package sample

import "math/rand"

// Rows returns n distinct row indices drawn uniformly from [0, total).
// If n >= total, all indices are returned in random order.
func Rows(rng *rand.Rand, total, n int) []int {
	if n > total {
		n = total
	}
	perm := rng.Perm(total)
	return perm[:n]
}

// Split partitions total row indices into a test set of n rows and the
// remaining training rows. Used by the autotuner to hold out queries.
func Split(rng *rand.Rand, total, n int) (test, train []int) {
	if n > total {
		n = total
	}
	perm := rng.Perm(total)
	return perm[:n], perm[n:]
}
