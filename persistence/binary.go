// Package persistence provides binary serialization for built indexes.
//
// The on-disk encoding captures algorithm structure only; the dataset's
// raw vectors are never written and must be re-supplied at load time.
package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"
)

// byteOrder is little-endian, native on x86 and ARM.
var byteOrder = binary.LittleEndian

// Writer writes index structures in the binary format.
type Writer struct {
	w io.Writer
}

// NewWriter creates a new binary writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the file header, filling in magic and version.
func (bw *Writer) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(bw.w, byteOrder, header)
}

// WriteUint32 writes a single uint32.
func (bw *Writer) WriteUint32(v uint32) error {
	return binary.Write(bw.w, byteOrder, v)
}

// WriteUint64 writes a single uint64.
func (bw *Writer) WriteUint64(v uint64) error {
	return binary.Write(bw.w, byteOrder, v)
}

// WriteFloat32 writes a single float32.
func (bw *Writer) WriteFloat32(v float32) error {
	return binary.Write(bw.w, byteOrder, v)
}

// WriteFloat32Slice writes a float32 slice as raw bytes without copying.
func (bw *Writer) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4)
	_, err := bw.w.Write(byteSlice)
	return err
}

// WriteUint32Slice writes a uint32 slice as raw bytes without copying.
func (bw *Writer) WriteUint32Slice(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4)
	_, err := bw.w.Write(byteSlice)
	return err
}

// WriteUint64Slice writes a uint64 slice as raw bytes without copying.
func (bw *Writer) WriteUint64Slice(slice []uint64) error {
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*8)
	_, err := bw.w.Write(byteSlice)
	return err
}

// WriteBytes writes a raw byte slice.
func (bw *Writer) WriteBytes(b []byte) error {
	_, err := bw.w.Write(b)
	return err
}

// Reader reads index structures from the binary format.
type Reader struct {
	r io.Reader
}

// NewReader creates a new binary reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadHeader reads and validates the file header.
func (br *Reader) ReadHeader() (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(br.r, byteOrder, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrUnsupportedVersion, header.Version)
	}
	return &header, nil
}

// ReadUint32 reads a single uint32.
func (br *Reader) ReadUint32() (uint32, error) {
	var v uint32
	err := binary.Read(br.r, byteOrder, &v)
	return v, err
}

// ReadUint64 reads a single uint64.
func (br *Reader) ReadUint64() (uint64, error) {
	var v uint64
	err := binary.Read(br.r, byteOrder, &v)
	return v, err
}

// ReadFloat32 reads a single float32.
func (br *Reader) ReadFloat32() (float32, error) {
	var v float32
	err := binary.Read(br.r, byteOrder, &v)
	return v, err
}

// ReadFloat32Slice reads count float32 values.
func (br *Reader) ReadFloat32Slice(count int) ([]float32, error) {
	if count == 0 {
		return nil, nil
	}
	vec := make([]float32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), count*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return vec, nil
}

// ReadUint32Slice reads count uint32 values.
func (br *Reader) ReadUint32Slice(count int) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	slice := make([]uint32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return slice, nil
}

// ReadUint64Slice reads count uint64 values.
func (br *Reader) ReadUint64Slice(count int) ([]uint64, error) {
	if count == 0 {
		return nil, nil
	}
	slice := make([]uint64, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*8)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return slice, nil
}

// ReadBytes reads exactly count raw bytes.
func (br *Reader) ReadBytes(count int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	b := make([]byte, count)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return nil, err
	}
	return b, nil
}
