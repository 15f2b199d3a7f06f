package flanngo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/persistence"
)

var (
	// ErrEmptyDataset is returned when building over zero rows.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrIndexClosed is returned for any operation after Close.
	ErrIndexClosed = errors.New("index is closed")

	// ErrWrite wraps I/O failures during save.
	ErrWrite = errors.New("write error")

	// ErrRead wraps I/O failures during load.
	ErrRead = errors.New("read error")

	// ErrUnsupportedFormatVersion is returned when loading a file written
	// by an incompatible format revision.
	ErrUnsupportedFormatVersion = errors.New("unsupported format version")
)

// ErrInvalidParameters indicates a parameter validation failure. Values
// are never silently clamped; the offending field is named.
type ErrInvalidParameters struct {
	Field  string
	Reason string
}

func (e *ErrInvalidParameters) Error() string {
	return fmt.Sprintf("invalid parameters: %s %s", e.Field, e.Reason)
}

// ErrDimensionMismatch indicates a query/dataset dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDatasetShapeMismatch indicates that the dataset supplied at load
// time does not match the one the index was built from.
type ErrDatasetShapeMismatch struct {
	WantRows, WantDim int
	GotRows, GotDim   int
}

func (e *ErrDatasetShapeMismatch) Error() string {
	return fmt.Sprintf("dataset shape mismatch: index built over %dx%d, got %dx%d",
		e.WantRows, e.WantDim, e.GotRows, e.GotDim)
}

// translateError maps lower-layer errors onto the public taxonomy so
// callers match against one package.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, dataset.ErrEmpty) {
		return fmt.Errorf("%w: %w", ErrEmptyDataset, err)
	}
	if errors.Is(err, persistence.ErrUnsupportedVersion) {
		return fmt.Errorf("%w: %w", ErrUnsupportedFormatVersion, err)
	}

	return err
}
