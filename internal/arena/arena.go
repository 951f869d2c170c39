// Package arena provides a bump allocator whose memory lives until the next
// Reset. It backs the copies a session makes of every key and value written
// into its changeset.
package arena

import (
	"errors"
)

const DefaultChunkSize = 64 * 1024

var ErrFull = errors.New("arena size limit reached")

// Options configures an Arena.
type Options struct {
	ChunkSize int  // bytes per chunk, DefaultChunkSize if zero
	Limit     int  // total bytes handed out before ErrFull, 0 means unbounded
	OffHeap   bool // allocate chunks outside the Go heap where supported
}

// Arena hands out byte slices carved from large chunks. Individual
// allocations are never freed; Reset releases everything at once.
//
// Slices returned by an arena must not be used after Reset.
type Arena struct {
	opts   Options
	chunks []chunk
	cur    []byte // unused tail of the newest chunk
	used   int
}

type chunk struct {
	data    []byte
	offHeap bool
}

func New(opts Options) *Arena {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Arena{opts: opts}
}

// Alloc returns a zeroed slice of length n.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n < 0 {
		panic("arena: negative allocation")
	}
	if a.opts.Limit > 0 && a.used+n > a.opts.Limit {
		return nil, ErrFull
	}
	if n == 0 {
		return []byte{}, nil
	}

	if n > len(a.cur) {
		size := a.opts.ChunkSize
		if n > size {
			// Oversized values get a chunk of their own
			size = n
		}
		c, err := a.grow(size)
		if err != nil {
			return nil, err
		}
		if size == n && len(a.cur) > 0 {
			// Keep bumping from the previous chunk
			a.used += n
			return c.data[:n:n], nil
		}
		a.cur = c.data
	}

	b := a.cur[:n:n]
	a.cur = a.cur[n:]
	a.used += n

	return b, nil
}

// Copy returns a copy of b owned by the arena.
func (a *Arena) Copy(b []byte) ([]byte, error) {
	out, err := a.Alloc(len(b))
	if err != nil {
		return nil, err
	}
	copy(out, b)
	return out, nil
}

// Size returns the number of bytes handed out since the last Reset.
func (a *Arena) Size() int {
	return a.used
}

// Reset releases every chunk.
func (a *Arena) Reset() error {
	var firstErr error
	for _, c := range a.chunks {
		if c.offHeap {
			if err := freeChunk(c.data); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	clear(a.chunks)
	a.chunks = a.chunks[:0]
	a.cur = nil
	a.used = 0

	return firstErr
}

func (a *Arena) grow(size int) (chunk, error) {
	c := chunk{}
	if a.opts.OffHeap {
		data, err := allocChunk(size)
		if err != nil {
			return chunk{}, err
		}
		c.data, c.offHeap = data, data != nil
	}
	if c.data == nil {
		c.data = make([]byte, size)
	}

	a.chunks = append(a.chunks, c)
	return c, nil
}
