//go:build unix

package arena

import (
	"golang.org/x/sys/unix"
)

// allocChunk maps anonymous memory for a chunk. The GC neither scans nor
// moves it, and Reset hands it straight back to the kernel.
func allocChunk(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeChunk(data []byte) error {
	return unix.Munmap(data)
}
