//go:build windows

package mmap

import (
	"io"
	"os"
)

// Windows falls back to reading the file into memory. Index loads are
// one-shot sequential reads there, so the mapping win is marginal.
func platformMap(f *os.File, size int) ([]byte, bool, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func platformUnmap([]byte) error { return nil }
