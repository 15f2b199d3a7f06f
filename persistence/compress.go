package persistence

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the algorithm applied to the structure block.
type Compression uint8

const (
	// CompressionNone stores the structure block uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// blockHeaderSize prefixes each stored block:
// [UncompressedSize uint32][CompressedSize uint32] where CompressedSize 0
// means the payload is stored uncompressed.
const blockHeaderSize = 8

// CompressBlock encodes data as a stored block using the given algorithm.
// Incompressible data falls back to uncompressed storage transparently.
func CompressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionNone:
		// Stored uncompressed below.
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			compressed = buf[:n]
		}
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression: %d", c)
	}

	// Store uncompressed when compression does not pay off.
	if compressed == nil || len(compressed) >= len(data) {
		out := make([]byte, blockHeaderSize+len(data))
		byteOrder.PutUint32(out[0:], uint32(len(data)))
		byteOrder.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	byteOrder.PutUint32(out[0:], uint32(len(data)))
	byteOrder.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// DecompressBlock decodes a stored block produced by CompressBlock.
func DecompressBlock(block []byte, c Compression) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("block too short: %d bytes", len(block))
	}
	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])
	payload := block[blockHeaderSize:]

	if compressedSize == 0 {
		if uint32(len(payload)) != uncompressedSize {
			return nil, fmt.Errorf("stored block size mismatch: want %d, got %d", uncompressedSize, len(payload))
		}
		return payload, nil
	}
	if uint32(len(payload)) != compressedSize {
		return nil, fmt.Errorf("compressed block size mismatch: want %d, got %d", compressedSize, len(payload))
	}

	switch c {
	case CompressionLZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompressed size mismatch: want %d, got %d", uncompressedSize, n)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompressed size mismatch: want %d, got %d", uncompressedSize, len(out))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compressed block with unknown compression: %d", c)
	}
}
