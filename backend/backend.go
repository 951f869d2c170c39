// Package backend defines the boundary between objdb and the persistent
// ordered key-value engine underneath it.
//
// A backend needs exactly two things: read-only snapshots offering point
// reads and forward cursors, and write batches that apply a set of puts and
// deletes atomically. Keys must be ordered byte-lexicographically.
package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrClosed         = errors.New("store is closed")
	ErrUnknownBackend = errors.New("unknown backend")
)

// Store is an opened base store.
type Store interface {
	// Snapshot opens a consistent read-only view of the latest committed
	// state. It must be closed.
	Snapshot() (Snapshot, error)
	// Begin opens a write batch. The caller commits or rolls it back.
	Begin() (Batch, error)
	Close() error
}

// Snapshot is an immutable view of the store. Byte slices it returns stay
// valid until Close.
type Snapshot interface {
	// Get returns ErrNotFound when key is absent.
	Get(key []byte) ([]byte, error)
	Cursor() (Cursor, error)
	Close() error
}

// Cursor iterates a snapshot forward.
type Cursor interface {
	// SetRange positions at the first key >= key.
	SetRange(key []byte) bool
	GetCurrent() (key, value []byte, ok bool)
	Next() (key, value []byte, ok bool)
	// Err reports the first error the cursor hit; a failed cursor behaves
	// as exhausted.
	Err() error
	Close() error
}

// Batch is a write transaction.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback() error
}

// Options are the settings shared by every backend.
type Options struct {
	// NoSync skips fsync on commit.
	NoSync bool
}

// Opener opens a store at path.
type Opener func(path string, opts Options) (Store, error)

var (
	mu      sync.RWMutex
	openers = map[string]Opener{}
)

// Register makes a backend available by name. It panics on duplicates.
func Register(name string, open Opener) {
	mu.Lock()
	defer mu.Unlock()

	if _, dup := openers[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	openers[name] = open
}

// Open opens the named backend at path.
func Open(name, path string, opts Options) (Store, error) {
	mu.RLock()
	open, ok := openers[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return open(path, opts)
}

// Names lists registered backends in ascending order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
