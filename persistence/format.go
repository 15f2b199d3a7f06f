package persistence

import "errors"

const (
	// MagicNumber identifies flanngo index files (ASCII: "FLNG").
	MagicNumber = 0x464C4E47
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000
	// HeaderSize is the encoded size of FileHeader in bytes.
	HeaderSize = 64
)

var (
	// ErrInvalidMagic indicates the file is not a flanngo index.
	ErrInvalidMagic = errors.New("invalid magic number")
	// ErrUnsupportedVersion indicates a format version this build cannot parse.
	ErrUnsupportedVersion = errors.New("unsupported format version")
	// ErrChecksumMismatch indicates corruption detected on load.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// FileHeader is the 64-byte header at the start of every index file.
// The structure block and params block follow immediately after it.
type FileHeader struct {
	Magic       uint32  // "FLNG"
	Version     uint32  // Format version
	Algorithm   uint8   // index.Kind tag
	Compression uint8   // Compression tag for the structure block
	Metric      uint8   // distance.Metric tag
	Padding1    [1]byte
	MinkowskiP  float32 // Minkowski order, 0 unless MetricMinkowski
	Rows        uint64  // Dataset row count at build time
	Dim         uint32  // Dataset dimensionality at build time
	ParamsSize  uint32  // Bytes of the params block
	StructSize  uint64  // Bytes of the structure block as stored
	Checksum    uint32  // CRC32 (IEEE) of params block + structure block
	Padding2    [4]byte
	Reserved    [16]byte
}
