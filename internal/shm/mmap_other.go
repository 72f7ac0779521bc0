//go:build !unix

package shm

import (
	"errors"
	"os"
)

// errNoMmap is returned on platforms without POSIX shared mappings.
var errNoMmap = errors.New("shared memory segments are not supported on this platform")

func mapFile(file *os.File, size int) ([]byte, error) {
	return nil, errNoMmap
}

func unmapFile(data []byte) error {
	return nil
}

func flockExclusive(file *os.File) error {
	return errNoMmap
}

func flockRelease(file *os.File) error {
	return nil
}

func ProcessAlive(pid int) bool {
	return pid > 0
}
