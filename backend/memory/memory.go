// Package memory is an in-memory backend. Snapshots are copy-on-write clones
// of a google/btree, so they are cheap and never observe later commits.
package memory

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/alexhholmes/objdb/backend"
)

const Name = "memory"

const degree = 32

func init() {
	backend.Register(Name, func(string, backend.Options) (backend.Store, error) {
		return New(), nil
	})
}

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store keeps every committed key in one btree guarded by a mutex.
type Store struct {
	mu     sync.Mutex
	tree   *btree.BTreeG[item]
	closed bool
}

var _ backend.Store = (*Store)(nil)

func New() *Store {
	return &Store{tree: btree.NewG(degree, less)}
}

func (s *Store) Snapshot() (backend.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, backend.ErrClosed
	}
	return &snapshot{tree: s.tree.Clone()}, nil
}

func (s *Store) Begin() (backend.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, backend.ErrClosed
	}
	return &batch{store: s}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.tree = btree.NewG(degree, less)
	return nil
}

type snapshot struct {
	tree *btree.BTreeG[item]
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	if s.tree == nil {
		return nil, backend.ErrClosed
	}
	it, ok := s.tree.Get(item{key: key})
	if !ok {
		return nil, backend.ErrNotFound
	}
	return it.value, nil
}

func (s *snapshot) Cursor() (backend.Cursor, error) {
	if s.tree == nil {
		return nil, backend.ErrClosed
	}
	return &cursor{tree: s.tree}, nil
}

func (s *snapshot) Close() error {
	s.tree = nil
	return nil
}

// cursor re-descends the tree on every step; btree offers no stateful
// iterator, and snapshots never change underneath it.
type cursor struct {
	tree  *btree.BTreeG[item]
	cur   item
	valid bool
}

func (c *cursor) SetRange(key []byte) bool {
	c.valid = false
	c.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
		c.cur, c.valid = it, true
		return false
	})
	return c.valid
}

func (c *cursor) GetCurrent() ([]byte, []byte, bool) {
	if !c.valid {
		return nil, nil, false
	}
	return c.cur.key, c.cur.value, true
}

func (c *cursor) Next() ([]byte, []byte, bool) {
	if !c.valid {
		return nil, nil, false
	}

	from := c.cur
	c.valid = false
	c.tree.AscendGreaterOrEqual(from, func(it item) bool {
		if bytes.Equal(it.key, from.key) {
			return true
		}
		c.cur, c.valid = it, true
		return false
	})
	return c.GetCurrent()
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Close() error {
	c.valid = false
	return nil
}

type op struct {
	item
	delete bool
}

// batch buffers operations and applies them under the store lock on Commit.
type batch struct {
	store *Store
	ops   []op
	done  bool
}

func (b *batch) Put(key, value []byte) error {
	if b.done {
		return backend.ErrClosed
	}
	b.ops = append(b.ops, op{item: item{
		key:   bytes.Clone(key),
		value: bytes.Clone(value),
	}})
	return nil
}

func (b *batch) Delete(key []byte) error {
	if b.done {
		return backend.ErrClosed
	}
	b.ops = append(b.ops, op{item: item{key: bytes.Clone(key)}, delete: true})
	return nil
}

func (b *batch) Commit() error {
	if b.done {
		return backend.ErrClosed
	}
	b.done = true

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.closed {
		return backend.ErrClosed
	}

	for _, o := range b.ops {
		if o.delete {
			b.store.tree.Delete(o.item)
		} else {
			if o.value == nil {
				o.value = []byte{}
			}
			b.store.tree.ReplaceOrInsert(o.item)
		}
	}
	b.ops = nil

	return nil
}

func (b *batch) Rollback() error {
	b.done = true
	b.ops = nil
	return nil
}
