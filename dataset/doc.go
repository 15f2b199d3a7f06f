// Package dataset provides non-owning, shape-checked views over vector data.
//
// A Dataset borrows a caller-provided flat []float32 of rows x dim values
// in row-major order. The engine never copies or mutates the backing data;
// it must remain valid (and unchanged) for the lifetime of every index
// built from it.
package dataset
