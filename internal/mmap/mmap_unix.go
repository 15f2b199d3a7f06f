//go:build !windows

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func platformMap(f *os.File, size int) ([]byte, bool, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func platformUnmap(data []byte) error {
	return unix.Munmap(data)
}
