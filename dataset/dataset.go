package dataset

import (
	"errors"
	"fmt"
)

// ErrEmpty is returned when a dataset with zero rows is used where at
// least one vector is required.
var ErrEmpty = errors.New("empty dataset")

// ErrBadShape indicates that the backing slice length does not match the
// declared rows x dim shape.
type ErrBadShape struct {
	Rows int
	Dim  int
	Len  int
}

func (e *ErrBadShape) Error() string {
	return fmt.Sprintf("bad dataset shape: %d rows x %d dim requires %d elements, got %d", e.Rows, e.Dim, e.Rows*e.Dim, e.Len)
}

// ErrInvalidDim indicates a non-positive dimensionality.
type ErrInvalidDim struct {
	Dim int
}

func (e *ErrInvalidDim) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dim)
}

// Dataset is a non-owning, shape-checked view over a contiguous array of
// float32 vectors (rows x dim, row-major). The caller retains ownership of
// the backing slice; the engine borrows read-only access during build and
// query. The backing data must outlive every index built from it.
type Dataset struct {
	data []float32
	rows int
	dim  int
}

// New creates a Dataset view over data with the given shape.
// The slice is borrowed, not copied. New rejects empty datasets; every
// valid dataset has rows >= 1 and dim >= 1.
func New(data []float32, rows, dim int) (*Dataset, error) {
	if dim < 1 {
		return nil, &ErrInvalidDim{Dim: dim}
	}
	if rows < 1 {
		return nil, ErrEmpty
	}
	if len(data) != rows*dim {
		return nil, &ErrBadShape{Rows: rows, Dim: dim, Len: len(data)}
	}
	return &Dataset{data: data, rows: rows, dim: dim}, nil
}

// FromRows copies the given row slices into a single contiguous backing
// slice and returns a view over it. Unlike New, the returned Dataset owns
// its backing memory. All rows must share the same length.
func FromRows(rows [][]float32) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	dim := len(rows[0])
	if dim < 1 {
		return nil, &ErrInvalidDim{Dim: dim}
	}
	data := make([]float32, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("row %d: dimension mismatch: expected %d, got %d", i, dim, len(r))
		}
		data = append(data, r...)
	}
	return &Dataset{data: data, rows: len(rows), dim: dim}, nil
}

// FromFloat64 converts float64 data to float32 and returns a view over the
// converted copy. The engine computes in float32; callers holding float64
// data pay one explicit conversion here instead of per query.
func FromFloat64(data []float64, rows, dim int) (*Dataset, error) {
	if dim < 1 {
		return nil, &ErrInvalidDim{Dim: dim}
	}
	if rows < 1 {
		return nil, ErrEmpty
	}
	if len(data) != rows*dim {
		return nil, &ErrBadShape{Rows: rows, Dim: dim, Len: len(data)}
	}
	conv := make([]float32, len(data))
	for i, v := range data {
		conv[i] = float32(v)
	}
	return &Dataset{data: conv, rows: rows, dim: dim}, nil
}

// Rows returns the number of vectors in the dataset.
func (d *Dataset) Rows() int { return d.rows }

// Dim returns the dimensionality of each vector.
func (d *Dataset) Dim() int { return d.dim }

// Row returns the i-th vector. The returned slice aliases the backing
// data and must be treated as read-only.
func (d *Dataset) Row(i int) []float32 {
	return d.data[i*d.dim : (i+1)*d.dim : (i+1)*d.dim]
}

// Data returns the backing slice. Read-only.
func (d *Dataset) Data() []float32 { return d.data }

// SameShape reports whether other has identical rows and dim.
func (d *Dataset) SameShape(other *Dataset) bool {
	return other != nil && d.rows == other.rows && d.dim == other.dim
}
