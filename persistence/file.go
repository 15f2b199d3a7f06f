package persistence

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/flanngo/internal/mmap"
	"github.com/hupe1980/flanngo/resource"
)

const fileBufferSize = 256 * 1024

// SaveToFile writes index data to filename atomically: the content is
// written to a temp file in the same directory, synced, then renamed over
// the target. An optional resource controller throttles write throughput.
func SaveToFile(ctx context.Context, filename string, rc *resource.Controller, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	_ = tmp.Chmod(0644)

	var w io.Writer = tmp
	if rc != nil {
		w = &throttledWriter{ctx: ctx, w: tmp, rc: rc}
	}
	buf := bufio.NewWriterSize(w, fileBufferSize)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = "" // keep the final file
	return nil
}

// LoadFromFile reads index data from filename with buffered reads.
// An optional resource controller throttles read throughput.
func LoadFromFile(ctx context.Context, filename string, rc *resource.Controller, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if rc != nil {
		r = &throttledReader{ctx: ctx, r: f, rc: rc}
	}
	return readFunc(bufio.NewReaderSize(r, fileBufferSize))
}

// LoadFromFileMmap memory-maps filename and serves reads from the mapping.
// The mapping lives only for the duration of readFunc; decoders must copy
// what they retain.
func LoadFromFileMmap(filename string, readFunc func(io.Reader) error) error {
	m, err := mmap.Open(filename)
	if err != nil {
		return err
	}
	defer m.Close()
	return readFunc(bytes.NewReader(m.Bytes()))
}

type throttledWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *resource.Controller
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	if err := tw.rc.ThrottleIO(tw.ctx, len(p)); err != nil {
		return 0, err
	}
	return tw.w.Write(p)
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	rc  *resource.Controller
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		if terr := tr.rc.ThrottleIO(tr.ctx, n); terr != nil {
			return n, terr
		}
	}
	return n, err
}
