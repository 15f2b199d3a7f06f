package distance

// PairwiseFlatTo computes the distance from q to each row of a flat
// row-major matrix (n rows of dim values) and writes the results into dst.
//
// Batching exists for cache locality only; results are bit-identical to
// calling fn on each pair individually.
func PairwiseFlatTo(dst []float32, fn Func, q []float32, flat []float32, dim int) {
	n := len(flat) / dim
	for i := 0; i < n; i++ {
		dst[i] = fn(q, flat[i*dim:(i+1)*dim])
	}
}
