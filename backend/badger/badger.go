// Package badger stores objdb data in badger. Snapshots are read-only badger
// transactions; commits are read-write transactions.
package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/alexhholmes/objdb/backend"
)

const Name = "badger"

func init() {
	backend.Register(Name, func(path string, opts backend.Options) (backend.Store, error) {
		return Open(path, opts)
	})
}

type Store struct {
	db *badger.DB
}

var _ backend.Store = (*Store)(nil)

// Open opens a badger directory at path. An empty path opens an in-memory
// badger instance.
func Open(path string, opts backend.Options) (*Store, error) {
	options := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(!opts.NoSync)
	if path == "" {
		options = options.WithInMemory(true)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("could not open badger store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Snapshot() (backend.Snapshot, error) {
	return &snapshot{txn: s.db.NewTransaction(false)}, nil
}

func (s *Store) Begin() (backend.Batch, error) {
	return &batch{txn: s.db.NewTransaction(true)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// snapshot tracks its iterators; badger panics when a transaction is
// discarded with iterators still open.
type snapshot struct {
	txn     *badger.Txn
	cursors map[*cursor]struct{}
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	if s.txn == nil {
		return nil, backend.ErrClosed
	}

	item, err := s.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return valueCopy(item)
}

// valueCopy never returns a nil slice for a present key.
func valueCopy(item *badger.Item) ([]byte, error) {
	v, err := item.ValueCopy(nil)
	if err == nil && v == nil {
		v = []byte{}
	}
	return v, err
}

func (s *snapshot) Cursor() (backend.Cursor, error) {
	if s.txn == nil {
		return nil, backend.ErrClosed
	}

	c := &cursor{snap: s, iter: s.txn.NewIterator(badger.DefaultIteratorOptions)}
	if s.cursors == nil {
		s.cursors = make(map[*cursor]struct{})
	}
	s.cursors[c] = struct{}{}
	return c, nil
}

func (s *snapshot) Close() error {
	if s.txn == nil {
		return nil
	}
	for c := range s.cursors {
		c.close()
	}
	s.txn.Discard()
	s.txn = nil
	return nil
}

type cursor struct {
	snap   *snapshot
	iter   *badger.Iterator
	key    []byte
	value  []byte
	valid  bool
	err    error
	closed bool
}

func (c *cursor) SetRange(key []byte) bool {
	if c.closed {
		return false
	}
	c.iter.Seek(key)
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

	item := c.iter.Item()
	value, err := valueCopy(item)
	if err != nil {
		c.err, c.valid = err, false
		return false
	}
	c.key = item.KeyCopy(nil)
	c.value = value
	return true
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.close()
	delete(c.snap.cursors, c)
	return nil
}

func (c *cursor) close() {
	if c.closed {
		return
	}
	c.closed, c.valid = true, false
	c.iter.Close()
}

type batch struct {
	txn  *badger.Txn
	done bool
}

func (b *batch) Put(key, value []byte) error {
	// badger keeps the slices until commit
	return b.txn.Set(append([]byte(nil), key...), append([]byte(nil), value...))
}

func (b *batch) Delete(key []byte) error {
	return b.txn.Delete(append([]byte(nil), key...))
}

func (b *batch) Commit() error {
	if b.done {
		return backend.ErrClosed
	}
	b.done = true
	return b.txn.Commit()
}

func (b *batch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	b.txn.Discard()
	return nil
}
