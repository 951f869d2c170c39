// Package overlay presents a base snapshot plus an in-memory changeset as one
// ordered key-value space.
//
// Reads consult the changeset first. A changeset entry is either a value
// (AddModify) or a tombstone masking a key that still exists in the base.
// Nothing reaches the base store until the changeset is replayed into a write
// batch.
package overlay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/alexhholmes/objdb/backend"
	"github.com/alexhholmes/objdb/internal/arena"
	"github.com/alexhholmes/objdb/internal/cache"
	"github.com/alexhholmes/objdb/internal/omap"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrReadOnly = errors.New("session is read-only")
	ErrReleased = errors.New("overlay has no snapshot")
	ErrFull     = errors.New("changeset size limit reached")
)

// Config tunes an Overlay. The zero value is usable.
type Config struct {
	BranchingFactor int          // changeset fan-out, omap.DefaultBranchingFactor if zero
	Compare         omap.Compare // key order, omap.CompareBytes if nil
	Arena           arena.Options
	CacheSize       int // base read cache entries, 0 disables it
}

// Writer receives a replayed changeset. backend.Batch satisfies it.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Stats summarizes one Replay.
type Stats struct {
	Puts    int
	Deletes int
	Bytes   int    // key and value bytes written
	Digest  uint64 // xxhash64 over every (tag, key, value) replayed
}

// Overlay layers a changeset over a base snapshot. It is single-threaded:
// one logical writer, any number of cursors, no internal locking.
type Overlay struct {
	snap    backend.Snapshot
	changes *omap.Map // nil when read-only
	arena   *arena.Arena
	cache   *cache.Cache
	cmp     omap.Compare

	cursors map[*Cursor]struct{}
}

// New returns a writable overlay over snap.
func New(snap backend.Snapshot, cfg Config) (*Overlay, error) {
	o, err := newOverlay(snap, cfg)
	if err != nil {
		return nil, err
	}

	bf := cfg.BranchingFactor
	if bf == 0 {
		bf = omap.DefaultBranchingFactor
	}
	o.changes, err = omap.New(bf, o.cmp)
	if err != nil {
		return nil, err
	}
	o.arena = arena.New(cfg.Arena)

	return o, nil
}

// NewReadOnly returns an overlay without a changeset. Every mutation fails
// with ErrReadOnly.
func NewReadOnly(snap backend.Snapshot, cfg Config) (*Overlay, error) {
	return newOverlay(snap, cfg)
}

func newOverlay(snap backend.Snapshot, cfg Config) (*Overlay, error) {
	o := &Overlay{
		snap:    snap,
		cmp:     cfg.Compare,
		cursors: make(map[*Cursor]struct{}),
	}
	if o.cmp == nil {
		o.cmp = omap.CompareBytes
	}

	if cfg.CacheSize > 0 {
		c, err := cache.New(cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("could not create read cache: %w", err)
		}
		o.cache = c
	}

	return o, nil
}

// Writable reports whether the overlay has a changeset.
func (o *Overlay) Writable() bool {
	return o.changes != nil
}

// Len returns the number of changeset entries, tombstones included.
func (o *Overlay) Len() int {
	if o.changes == nil {
		return 0
	}
	return o.changes.Len()
}

// Size returns the bytes copied into the changeset since it was last cleared.
func (o *Overlay) Size() int {
	if o.arena == nil {
		return 0
	}
	return o.arena.Size()
}

// CacheStats returns the read cache counters, zero when caching is off.
func (o *Overlay) CacheStats() cache.Stats {
	if o.cache == nil {
		return cache.Stats{}
	}
	return o.cache.Stats()
}

// Get returns the value visible under key. The slice is owned by the overlay
// and stays valid until the changeset is cleared or the snapshot released.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if o.changes != nil {
		if v, ok := o.changes.Get(key); ok {
			if isTombstone(v) {
				return nil, ErrNotFound
			}
			return payload(v), nil
		}
	}

	v, found, err := o.baseGet(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

// baseGet reads through the cache to the snapshot.
func (o *Overlay) baseGet(key []byte) ([]byte, bool, error) {
	if o.snap == nil {
		return nil, false, ErrReleased
	}

	if o.cache != nil {
		if v, found, ok := o.cache.Get(key); ok {
			return v, found, nil
		}
	}

	found := true
	v, err := o.snap.Get(key)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		v, found = nil, false
	case err != nil:
		return nil, false, err
	}

	if o.cache != nil {
		o.cache.Put(key, v, found)
	}
	return v, found, nil
}

// Put stores a copy of key and value in the changeset.
func (o *Overlay) Put(key, value []byte) error {
	if o.changes == nil {
		return ErrReadOnly
	}

	// key, tag and value share one allocation so a rejected Put costs nothing
	buf, err := o.arena.Alloc(len(key) + 1 + len(value))
	if err != nil {
		return o.allocErr(err)
	}
	n := copy(buf, key)
	k, v := buf[:n:n], buf[n:]
	v[0] = tagAddModify
	copy(v[1:], value)

	o.changes.Put(k, v)
	return nil
}

// Delete hides key. A key the base snapshot holds gets a tombstone; any other
// key simply leaves the changeset since there is nothing underneath to mask.
func (o *Overlay) Delete(key []byte) error {
	if o.changes == nil {
		return ErrReadOnly
	}

	_, inBase, err := o.baseGet(key)
	if err != nil {
		return err
	}
	if !inBase {
		o.changes.Delete(key)
		return nil
	}

	k, err := o.arena.Copy(key)
	if err != nil {
		return o.allocErr(err)
	}
	o.changes.Put(k, tombstone)
	return nil
}

func (o *Overlay) allocErr(err error) error {
	if errors.Is(err, arena.ErrFull) {
		return fmt.Errorf("%w: %d bytes in use", ErrFull, o.arena.Size())
	}
	return fmt.Errorf("could not allocate changeset memory: %w", err)
}

// Changes calls fn for every changeset entry in key order. Iteration stops at
// the first error, which is returned.
func (o *Overlay) Changes(fn func(op Op) error) error {
	if o.changes == nil {
		return nil
	}

	c := o.changes.Cursor()
	for k, v, ok := c.Next(); ok; k, v, ok = c.Next() {
		if err := fn(decode(k, v)); err != nil {
			return err
		}
	}
	return nil
}

// Replay writes every changeset entry into w in key order. The changeset is
// left untouched; the caller finalizes w.
func (o *Overlay) Replay(w Writer) (Stats, error) {
	var stats Stats
	if o.changes == nil {
		return stats, ErrReadOnly
	}

	digest := xxhash.New()
	var lenBuf [binary.MaxVarintLen64]byte

	err := o.Changes(func(op Op) error {
		tag := tagAddModify
		if op.Deleted {
			tag = tagDelete
		}
		digest.Write([]byte{tag})
		digest.Write(lenBuf[:binary.PutUvarint(lenBuf[:], uint64(len(op.Key)))])
		digest.Write(op.Key)
		digest.Write(lenBuf[:binary.PutUvarint(lenBuf[:], uint64(len(op.Value)))])
		digest.Write(op.Value)

		stats.Bytes += len(op.Key) + len(op.Value)
		if op.Deleted {
			stats.Deletes++
			if err := w.Delete(op.Key); err != nil {
				return fmt.Errorf("could not replay delete: %w", err)
			}
			return nil
		}
		stats.Puts++
		if err := w.Put(op.Key, op.Value); err != nil {
			return fmt.Errorf("could not replay put: %w", err)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	stats.Digest = digest.Sum64()
	return stats, nil
}

// Commit replays the changeset into w and then clears it. Committing or
// aborting w is up to the caller.
func (o *Overlay) Commit(w Writer) (Stats, error) {
	stats, err := o.Replay(w)
	if err != nil {
		return stats, err
	}
	return stats, o.Discard()
}

// Discard clears the changeset and releases the memory behind it. Values
// previously returned from the changeset become invalid.
func (o *Overlay) Discard() error {
	if o.changes == nil {
		return nil
	}
	o.changes.Clear()
	return o.arena.Reset()
}

// Release closes every live cursor and the base snapshot. The overlay keeps
// its changeset and serves nothing from the base until Rebase.
func (o *Overlay) Release() error {
	var firstErr error
	for c := range o.cursors {
		if err := c.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	clear(o.cursors)

	if o.snap != nil {
		if err := o.snap.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		o.snap = nil
	}
	if o.cache != nil {
		o.cache.Purge()
	}

	return firstErr
}

// Rebase installs snap as the new base. The overlay must be released first.
func (o *Overlay) Rebase(snap backend.Snapshot) {
	if o.snap != nil {
		panic("overlay: Rebase over a live snapshot")
	}
	o.snap = snap
}

// Close releases the snapshot and clears the changeset.
func (o *Overlay) Close() error {
	err := o.Release()
	if derr := o.Discard(); derr != nil && err == nil {
		err = derr
	}
	return err
}
