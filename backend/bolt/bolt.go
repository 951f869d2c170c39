// Package bolt stores objdb data in a single bbolt bucket.
package bolt

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexhholmes/objdb/backend"
)

const Name = "bolt"

// InitialMmapSize is large enough that read snapshots held across commits do
// not block the writer on a remap in the common case.
const InitialMmapSize = 64 << 20

var bucketName = []byte("objdb")

func init() {
	backend.Register(Name, func(path string, opts backend.Options) (backend.Store, error) {
		return Open(path, opts)
	})
}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

var _ backend.Store = (*Store)(nil)

func Open(path string, opts backend.Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:         time.Second,
		NoSync:          opts.NoSync,
		InitialMmapSize: InitialMmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ensure root bucket exists: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Snapshot() (backend.Snapshot, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("could not begin read transaction: %w", err)
	}
	return &snapshot{tx: tx, bucket: tx.Bucket(bucketName)}, nil
}

func (s *Store) Begin() (backend.Batch, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("could not begin write transaction: %w", err)
	}
	return &batch{tx: tx, bucket: tx.Bucket(bucketName)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

type snapshot struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	if s.tx == nil {
		return nil, backend.ErrClosed
	}
	v := s.bucket.Get(key)
	if v == nil {
		return nil, backend.ErrNotFound
	}
	return v, nil
}

func (s *snapshot) Cursor() (backend.Cursor, error) {
	if s.tx == nil {
		return nil, backend.ErrClosed
	}
	return &cursor{cursor: s.bucket.Cursor()}, nil
}

func (s *snapshot) Close() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx, s.bucket = nil, nil
	return err
}

type cursor struct {
	cursor *bolt.Cursor
	key    []byte
	value  []byte
}

func (c *cursor) SetRange(key []byte) bool {
	c.key, c.value = c.cursor.Seek(key)
	return c.key != nil
}

func (c *cursor) GetCurrent() ([]byte, []byte, bool) {
	if c.key == nil {
		return nil, nil, false
	}
	return c.key, c.value, true
}

func (c *cursor) Next() ([]byte, []byte, bool) {
	if c.key == nil {
		return nil, nil, false
	}
	c.key, c.value = c.cursor.Next()
	return c.GetCurrent()
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Close() error {
	c.key, c.value = nil, nil
	return nil
}

type batch struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
}

func (b *batch) Put(key, value []byte) error {
	if value == nil {
		// bbolt treats a nil value as a missing key on read
		value = []byte{}
	}
	return b.bucket.Put(key, value)
}

func (b *batch) Delete(key []byte) error {
	return b.bucket.Delete(key)
}

func (b *batch) Commit() error {
	return b.tx.Commit()
}

func (b *batch) Rollback() error {
	err := b.tx.Rollback()
	if err == bolt.ErrTxClosed {
		return nil
	}
	return err
}
