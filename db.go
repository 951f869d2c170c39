// Package objdb is an embedded transactional key-value database. Every read
// and write goes through a Session, which overlays its uncommitted changes on
// a snapshot of the base store and writes them atomically on Commit.
package objdb

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alexhholmes/objdb/backend"
	_ "github.com/alexhholmes/objdb/backend/badger"
	_ "github.com/alexhholmes/objdb/backend/memory"
	_ "github.com/alexhholmes/objdb/backend/pebble"
	"github.com/alexhholmes/objdb/internal/arena"
	"github.com/alexhholmes/objdb/internal/overlay"
	"github.com/alexhholmes/objdb/internal/readslots"
)

const (
	// MaxKeySize is the maximum length of a key, in bytes.
	MaxKeySize = 32 * 1024

	// MaxValueSize is the maximum length of a value, in bytes.
	// Following bbolt's limit of (1 << 31) - 2.
	MaxValueSize = (1 << 31) - 2
)

type DB struct {
	mu     sync.Mutex
	store  backend.Store
	opts   DBOptions
	log    Logger
	closed bool

	// Session state
	writer   *Session
	sessions map[*Session]struct{}
	readers  *readslots.Table
	nextSeq  uint64

	stats Stats
}

// Stats reports database activity since Open.
type Stats struct {
	Commits    uint64
	Puts       uint64 // keys written by commits
	Deletes    uint64 // keys deleted by commits
	LastDigest uint64 // changeset digest of the most recent commit

	ReadSessions    int
	WriteSession    bool
	OldestReadSeq   uint64 // 0 when no read session is open
	SessionsStarted uint64
}

// Open opens the database at path on the configured backend, creating it if
// needed.
func Open(path string, options ...DBOption) (*DB, error) {
	opts := defaultDBOptions()
	for _, opt := range options {
		opt(&opts)
	}

	store, err := backend.Open(opts.backend, path, backend.Options{
		NoSync: opts.syncMode == SyncOff,
	})
	if err != nil {
		return nil, err
	}

	db := newDB(store, opts)
	db.log.Info("database opened", "backend", opts.backend, "path", path)
	return db, nil
}

// OpenStore wraps an already opened base store. The DB takes ownership and
// closes it on Close.
func OpenStore(store backend.Store, options ...DBOption) (*DB, error) {
	opts := defaultDBOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if store == nil {
		return nil, fmt.Errorf("objdb: nil store")
	}

	db := newDB(store, opts)
	db.log.Info("database opened", "backend", fmt.Sprintf("%T", store))
	return db, nil
}

func newDB(store backend.Store, opts DBOptions) *DB {
	return &DB{
		store:    store,
		opts:     opts,
		log:      opts.logger,
		sessions: make(map[*Session]struct{}),
		readers:  readslots.New(opts.maxReaders),
	}
}

func (d *DB) overlayConfig() overlay.Config {
	return overlay.Config{
		BranchingFactor: d.opts.branchingFactor,
		CacheSize:       d.opts.readCacheEntries,
		Arena: arena.Options{
			Limit:   d.opts.maxChangesetBytes,
			OffHeap: d.opts.offHeapChangeset,
		},
	}
}

// Begin starts a session. Only one writable session may be open at a time;
// read-only sessions are bounded by WithMaxReaders.
func (d *DB) Begin(writable bool) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDatabaseClosed
	}

	// Enforce single writer rule
	if writable && d.writer != nil {
		return nil, ErrTxInProgress
	}

	d.nextSeq++
	s := &Session{
		db:       d,
		id:       uuid.New(),
		seq:      d.nextSeq,
		writable: writable,
		slot:     -1,
	}

	if !writable {
		slot, err := d.readers.Register(s.seq)
		if err != nil {
			return nil, err
		}
		s.slot = slot
	}

	snap, err := d.store.Snapshot()
	if err != nil {
		d.release(s)
		return nil, fmt.Errorf("could not open snapshot: %w", err)
	}

	if writable {
		s.overlay, err = overlay.New(snap, d.overlayConfig())
	} else {
		s.overlay, err = overlay.NewReadOnly(snap, d.overlayConfig())
	}
	if err != nil {
		snap.Close()
		d.release(s)
		return nil, err
	}

	if writable {
		d.writer = s
	}
	d.sessions[s] = struct{}{}
	d.stats.SessionsStarted++

	return s, nil
}

// release drops the session's claim on the writer or a reader slot. Caller
// holds d.mu.
func (d *DB) release(s *Session) {
	if s.writable {
		if d.writer == s {
			d.writer = nil
		}
	} else if s.slot >= 0 {
		d.readers.Unregister(s.slot)
		s.slot = -1
	}
	delete(d.sessions, s)
}

// View executes a function within a read-only session.
// The session is closed when fn returns.
func (d *DB) View(fn func(*Session) error) error {
	s, err := d.Begin(false)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}

// Update executes a function within a writable session.
// If the function returns an error, the changes are discarded.
// If the function returns nil, the session is committed.
func (d *DB) Update(fn func(*Session) error) error {
	s, err := d.Begin(true)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		return err
	}

	return s.Commit()
}

// Get returns a copy of the committed value under key.
func (d *DB) Get(key []byte) ([]byte, error) {
	var result []byte
	err := d.View(func(s *Session) error {
		val, err := s.Get(key)
		if err != nil {
			return err
		}
		result = bytes.Clone(val)
		return nil
	})
	return result, err
}

func (d *DB) Put(key, value []byte) error {
	return d.Update(func(s *Session) error {
		return s.Put(key, value)
	})
}

func (d *DB) Delete(key []byte) error {
	return d.Update(func(s *Session) error {
		return s.Delete(key)
	})
}

// Stats returns a snapshot of the database counters.
func (d *DB) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.ReadSessions = d.readers.Active()
	stats.WriteSession = d.writer != nil
	stats.OldestReadSeq = d.readers.Oldest()
	return stats
}

func (d *DB) recordCommit(st overlay.Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Commits++
	d.stats.Puts += uint64(st.Puts)
	d.stats.Deletes += uint64(st.Deletes)
	d.stats.LastDigest = st.Digest
}

// Close closes every open session, discarding uncommitted changes, then the
// base store. Calling Close again is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	open := make([]*Session, 0, len(d.sessions))
	for s := range d.sessions {
		open = append(open, s)
	}
	d.mu.Unlock()

	for _, s := range open {
		d.log.Warn("closing open session", "session", s.id, "writable", s.writable)
		if err := s.Close(); err != nil {
			d.log.Error("could not close session", "session", s.id, "error", err)
		}
	}

	if err := d.store.Close(); err != nil {
		d.log.Error("could not close base store", "error", err)
		return err
	}

	d.log.Info("database closed")
	return nil
}
