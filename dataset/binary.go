package dataset

// Binary is a non-owning view over a contiguous array of byte vectors
// (rows x width), used with binary metrics such as Hamming.
type Binary struct {
	data  []byte
	rows  int
	width int
}

// NewBinary creates a Binary view over data with the given shape.
// The slice is borrowed, not copied.
func NewBinary(data []byte, rows, width int) (*Binary, error) {
	if width < 1 {
		return nil, &ErrInvalidDim{Dim: width}
	}
	if rows < 1 {
		return nil, ErrEmpty
	}
	if len(data) != rows*width {
		return nil, &ErrBadShape{Rows: rows, Dim: width, Len: len(data)}
	}
	return &Binary{data: data, rows: rows, width: width}, nil
}

// Rows returns the number of vectors.
func (b *Binary) Rows() int { return b.rows }

// Width returns the byte width of each vector.
func (b *Binary) Width() int { return b.width }

// Row returns the i-th vector. Read-only alias into the backing data.
func (b *Binary) Row(i int) []byte {
	return b.data[i*b.width : (i+1)*b.width : (i+1)*b.width]
}
