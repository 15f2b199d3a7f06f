// Package mmap provides read-only memory-mapped file access for zero-copy
// index loads. On platforms without mmap support the file is read into
// memory instead; callers see the same API either way.
package mmap

import (
	"errors"
	"os"
)

// ErrClosed is returned when accessing a closed mapping.
var ErrClosed = errors.New("mmap: mapping is closed")

// File represents a read-only memory-mapped file.
type File struct {
	data   []byte
	f      *os.File
	mapped bool
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &File{f: f}, nil
	}

	data, mapped, err := platformMap(f, int(size))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{data: data, f: f, mapped: mapped}, nil
}

// Bytes returns the mapped content. The slice is valid until Close.
func (m *File) Bytes() []byte {
	if m == nil {
		return nil
	}
	return m.data
}

// Close unmaps the memory and closes the underlying file.
// Safe to call more than once.
func (m *File) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.data != nil && m.mapped {
		err = platformUnmap(m.data)
	}
	m.data = nil
	if m.f != nil {
		if closeErr := m.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.f = nil
	}
	return err
}
