package index

import (
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/flanngo/dataset"
)

// BinaryEncoder is implemented by algorithms that can serialize their
// structure. The encoding never includes the dataset's raw vectors; the
// dataset is re-supplied at load time.
type BinaryEncoder interface {
	EncodeBinary(w io.Writer) error
}

// BinaryDecoder reconstructs an algorithm instance from its binary
// structure. r is positioned at the start of the structure stream and the
// decoder must consume it entirely.
type BinaryDecoder func(r io.Reader, ds *dataset.Dataset, mc MetricConfig) (Algorithm, error)

var (
	decoderMu sync.RWMutex
	decoders  = map[Kind]BinaryDecoder{}
)

// RegisterBinaryDecoder registers a decoder for an algorithm family.
// Index implementations call this from an init() function.
func RegisterBinaryDecoder(kind Kind, dec BinaryDecoder) {
	decoderMu.Lock()
	defer decoderMu.Unlock()
	decoders[kind] = dec
}

// DecodeBinary dispatches to the registered decoder for kind.
func DecodeBinary(kind Kind, r io.Reader, ds *dataset.Dataset, mc MetricConfig) (Algorithm, error) {
	decoderMu.RLock()
	dec, ok := decoders[kind]
	decoderMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no binary decoder registered for algorithm %s", kind)
	}
	return dec(r, ds, mc)
}
