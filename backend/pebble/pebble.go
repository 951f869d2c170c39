// Package pebble stores objdb data in a pebble LSM. Snapshots are pebble
// snapshots and commits are pebble batches.
package pebble

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/alexhholmes/objdb/backend"
)

const Name = "pebble"

func init() {
	backend.Register(Name, func(path string, opts backend.Options) (backend.Store, error) {
		return Open(path, opts)
	})
}

type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

var _ backend.Store = (*Store)(nil)

func Open(path string, opts backend.Options) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("could not open pebble store at %s: %w", path, err)
	}

	writeOpts := pebble.Sync
	if opts.NoSync {
		writeOpts = pebble.NoSync
	}

	return &Store{db: db, writeOpts: writeOpts}, nil
}

func (s *Store) Snapshot() (backend.Snapshot, error) {
	return &snapshot{snap: s.db.NewSnapshot()}, nil
}

func (s *Store) Begin() (backend.Batch, error) {
	return &batch{b: s.db.NewBatch(), opts: s.writeOpts}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type snapshot struct {
	snap *pebble.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	if s.snap == nil {
		return nil, backend.ErrClosed
	}

	v, closer, err := s.snap.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// pebble's value is only valid until the closer runs
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *snapshot) Cursor() (backend.Cursor, error) {
	if s.snap == nil {
		return nil, backend.ErrClosed
	}

	iter, err := s.snap.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not open pebble iterator: %w", err)
	}
	return &cursor{iter: iter}, nil
}

func (s *snapshot) Close() error {
	if s.snap == nil {
		return nil
	}
	err := s.snap.Close()
	s.snap = nil
	return err
}

// cursor copies the current entry because pebble invalidates Key and Value
// on every iterator movement.
type cursor struct {
	iter  *pebble.Iterator
	key   []byte
	value []byte
	valid bool
}

func (c *cursor) SetRange(key []byte) bool {
	c.iter.SeekGE(key)
	return c.load()
}

func (c *cursor) GetCurrent() ([]byte, []byte, bool) {
	if !c.valid {
		return nil, nil, false
	}
	return c.key, c.value, true
}

func (c *cursor) Next() ([]byte, []byte, bool) {
	if !c.valid {
		return nil, nil, false
	}
	c.iter.Next()
	c.load()
	return c.GetCurrent()
}

func (c *cursor) load() bool {
	c.valid = c.iter.Valid()
	if !c.valid {
		return false
	}
	c.key = append(c.key[:0:0], c.iter.Key()...)
	c.value = append(c.value[:0:0], c.iter.Value()...)
	return true
}

func (c *cursor) Err() error {
	return c.iter.Error()
}

func (c *cursor) Close() error {
	c.valid = false
	return c.iter.Close()
}

type batch struct {
	b    *pebble.Batch
	opts *pebble.WriteOptions
	done bool
}

func (b *batch) Put(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

func (b *batch) Commit() error {
	if b.done {
		return backend.ErrClosed
	}
	b.done = true

	if err := b.b.Commit(b.opts); err != nil {
		b.b.Close()
		return err
	}
	return b.b.Close()
}

func (b *batch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.b.Close()
}
