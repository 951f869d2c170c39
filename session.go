package objdb

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/alexhholmes/objdb/internal/overlay"
)

// Session is a view of the database plus, when writable, a private changeset.
//
// CONCURRENCY: Sessions are NOT thread-safe and must only be used by a single
// goroutine at a time. Any number of cursors may be open on a session and
// interleaved with Put and Delete from that goroutine.
//
// A writable session outlives Commit and Rollback: both leave it open on a
// fresh view, ready for more changes. Close ends it.
type Session struct {
	db       *DB
	id       uuid.UUID
	seq      uint64
	writable bool
	done     bool
	slot     int // reader slot, -1 for writers

	overlay *overlay.Overlay
}

// ID returns the session's unique id, which also tags its log lines.
func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Writable() bool {
	return s.writable
}

// Get returns the value visible to this session under key, including its own
// uncommitted writes. Returns ErrKeyNotFound if the key does not exist.
//
// The returned slice is valid until the session commits, rolls back or
// closes; copy it to keep it longer. With WithOffHeapChangeset the value is
// always a copy, since the memory behind the changeset is unmapped on commit.
func (s *Session) Get(key []byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	v, err := s.overlay.Get(key)
	if err != nil {
		return nil, err
	}
	if s.db.opts.offHeapChangeset {
		return bytes.Clone(v), nil
	}
	return v, nil
}

// Put records key=value in the session's changeset. The session keeps its own
// copies of both.
func (s *Session) Put(key, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.writable {
		return ErrTxNotWritable
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueSize {
		return ErrValueTooLarge
	}

	return s.overlay.Put(key, value)
}

// Delete removes key from the session's view.
// Idempotent: returns nil if key doesn't exist.
func (s *Session) Delete(key []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.writable {
		return ErrTxNotWritable
	}
	if err := validateKey(key); err != nil {
		return err
	}

	return s.overlay.Delete(key)
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if len(key) > MaxKeySize {
		return ErrKeyTooLarge
	}
	return nil
}

// Cursor opens a cursor over the session's merged view.
func (s *Session) Cursor() (*Cursor, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	c, err := s.overlay.Cursor()
	if err != nil {
		return nil, err
	}
	return &Cursor{s: s, c: c}, nil
}

// ForEach calls fn for every visible key in order.
func (s *Session) ForEach(fn func(key, value []byte) error) error {
	return s.ForEachPrefix(nil, fn)
}

// ForEachPrefix iterates over all visible key-value pairs that start with the
// given prefix.
func (s *Session) ForEachPrefix(prefix []byte, fn func(key, value []byte) error) error {
	c, err := s.Cursor()
	if err != nil {
		return err
	}
	defer c.Close()

	for ok := c.SetRange(prefix); ok; {
		k, v, _ := c.GetCurrent()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if err := fn(k, v); err != nil {
			return err
		}
		_, _, ok = c.Next()
	}

	return c.Err()
}

// Len returns the number of uncommitted changes, deletes included.
func (s *Session) Len() int {
	return s.overlay.Len()
}

// Commit writes the changeset to the base store atomically and moves the
// session onto a view that includes it. Returns ErrTxNotWritable on read-only
// sessions.
//
// Open cursors are invalidated. If the commit fails the changeset is kept and
// the session continues on a fresh view of the base store.
func (s *Session) Commit() error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.writable {
		return ErrTxNotWritable
	}
	if s.overlay.Len() == 0 {
		return nil
	}

	if hook := s.db.opts.commitHook; hook != nil {
		if err := hook(Changes{s: s}); err != nil {
			return fmt.Errorf("commit hook rejected changes: %w", err)
		}
	}

	// The snapshot goes first: bbolt cannot remap under the writer while
	// this session still holds a read transaction.
	if err := s.overlay.Release(); err != nil {
		s.db.log.Warn("could not release snapshot", "session", s.id, "error", err)
	}

	stats, err := s.write()
	if err != nil {
		if rerr := s.rebase(); rerr != nil {
			return fmt.Errorf("%w (and could not reopen snapshot: %v)", err, rerr)
		}
		return err
	}

	if err := s.overlay.Discard(); err != nil {
		s.db.log.Warn("could not release changeset memory", "session", s.id, "error", err)
	}
	s.db.recordCommit(stats)
	s.db.log.Info("commit",
		"session", s.id,
		"puts", stats.Puts,
		"deletes", stats.Deletes,
		"bytes", stats.Bytes,
		"digest", fmt.Sprintf("%016x", stats.Digest),
	)

	return s.rebase()
}

// write replays the changeset into one base store batch.
func (s *Session) write() (overlay.Stats, error) {
	batch, err := s.db.store.Begin()
	if err != nil {
		return overlay.Stats{}, fmt.Errorf("could not begin base write: %w", err)
	}

	stats, err := s.overlay.Replay(batch)
	if err != nil {
		if rerr := batch.Rollback(); rerr != nil {
			s.db.log.Warn("could not roll back base write", "session", s.id, "error", rerr)
		}
		return overlay.Stats{}, err
	}

	if err := batch.Commit(); err != nil {
		if rerr := batch.Rollback(); rerr != nil {
			s.db.log.Warn("could not roll back base write", "session", s.id, "error", rerr)
		}
		return overlay.Stats{}, fmt.Errorf("could not commit base write: %w", err)
	}

	return stats, nil
}

// rebase opens a fresh snapshot under the overlay. A session that cannot get
// one is closed.
func (s *Session) rebase() error {
	snap, err := s.db.store.Snapshot()
	if err != nil {
		s.db.log.Error("could not reopen snapshot, closing session", "session", s.id, "error", err)
		s.Close()
		return fmt.Errorf("could not reopen snapshot: %w", err)
	}
	s.overlay.Rebase(snap)
	return nil
}

// Rollback discards every uncommitted change. The session stays open.
// A no-op on read-only sessions.
func (s *Session) Rollback() error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.writable {
		return nil
	}

	n := s.overlay.Len()
	if err := s.overlay.Discard(); err != nil {
		return err
	}
	if n > 0 {
		s.db.log.Info("rollback", "session", s.id, "discarded", n)
	}
	return nil
}

// Close ends the session, discarding uncommitted changes.
// Safe to call multiple times (idempotent).
func (s *Session) Close() error {
	if s.done {
		return nil
	}
	s.done = true

	err := s.overlay.Close()

	s.db.mu.Lock()
	s.db.release(s)
	s.db.mu.Unlock()

	return err
}

// check verifies the session is still open.
func (s *Session) check() error {
	if s.done {
		return ErrTxDone
	}
	return nil
}

// Changes is the read-only view of a changeset handed to commit hooks.
type Changes struct {
	s *Session
}

// SessionID returns the id of the committing session.
func (c Changes) SessionID() uuid.UUID {
	return c.s.id
}

// Len returns the number of entries, deletes included.
func (c Changes) Len() int {
	return c.s.overlay.Len()
}

// ForEach calls fn for every entry in key order. value is nil for deletes.
// The slices are only valid during the call.
func (c Changes) ForEach(fn func(key, value []byte, deleted bool) error) error {
	return c.s.overlay.Changes(func(op overlay.Op) error {
		return fn(op.Key, op.Value, op.Deleted)
	})
}
