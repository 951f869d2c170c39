package overlay

import (
	"errors"

	"github.com/alexhholmes/objdb/backend"
	"github.com/alexhholmes/objdb/internal/omap"
)

var ErrCursorReleased = errors.New("cursor was released")

// Cursor merges a base snapshot cursor with a changeset cursor into one
// forward stream. Changeset entries win key ties; tombstones hide the base
// entry they share a key with.
//
// The changeset may be mutated while a cursor is open. The cursor remembers
// the last key it returned and, whenever the changeset version moves,
// re-seeks the changeset side from that key. Keys inserted at or before it
// are therefore never returned, and keys inserted after it always are.
type Cursor struct {
	o     *Overlay
	base  backend.Cursor
	delta *omap.Cursor // nil when read-only

	version uint64 // changeset version delta was last positioned against

	positioned bool
	seek       []byte // SetRange key
	last       []byte // last key returned
	hasLast    bool

	// after Delete the cursor sits on a hole until the next move
	deleted   []byte
	inDeleted bool

	released bool
}

// Cursor opens a merge cursor. It is unpositioned until SetRange or Next.
func (o *Overlay) Cursor() (*Cursor, error) {
	if o.snap == nil {
		return nil, ErrReleased
	}

	base, err := o.snap.Cursor()
	if err != nil {
		return nil, err
	}

	c := &Cursor{o: o, base: base}
	if o.changes != nil {
		c.delta = o.changes.Cursor()
	}
	o.cursors[c] = struct{}{}

	return c, nil
}

// SetRange positions the cursor at the first visible key >= key and reports
// whether one exists.
func (c *Cursor) SetRange(key []byte) bool {
	if c.released {
		return false
	}

	c.inDeleted = false
	c.position(key)
	_, _, ok := c.GetCurrent()
	return ok
}

// GetCurrent returns the visible entry under the cursor. Returned slices are
// valid until the overlay clears its changeset or releases its snapshot.
func (c *Cursor) GetCurrent() ([]byte, []byte, bool) {
	if c.released || !c.positioned || c.inDeleted {
		return nil, nil, false
	}

	c.syncDelta()

	for {
		bk, bv, bok := c.base.GetCurrent()

		var dk, dv []byte
		var dok bool
		if c.delta != nil {
			dk, dv, dok = c.delta.GetCurrent()
		}

		switch {
		case !bok && !dok:
			return nil, nil, false

		case !dok:
			return c.found(bk, bv)

		case !bok || c.o.cmp(dk, bk) < 0:
			if isTombstone(dv) {
				c.delta.Next()
				continue
			}
			return c.found(dk, payload(dv))

		case c.o.cmp(dk, bk) > 0:
			return c.found(bk, bv)

		default:
			// Tie: the changeset entry shadows the base entry
			if isTombstone(dv) {
				c.delta.Next()
				c.base.Next()
				continue
			}
			return c.found(dk, payload(dv))
		}
	}
}

func (c *Cursor) found(k, v []byte) ([]byte, []byte, bool) {
	c.last = append(c.last[:0], k...)
	c.hasLast = true
	return k, v, true
}

// Next moves to the first visible key strictly greater than the last key
// returned. An unpositioned cursor starts at the first key. After Delete, Next
// resumes at the deleted key, so a key reinserted there is returned once.
func (c *Cursor) Next() ([]byte, []byte, bool) {
	if c.released {
		return nil, nil, false
	}

	if !c.positioned {
		c.position(nil)
		return c.GetCurrent()
	}

	if c.inDeleted {
		c.inDeleted = false
		c.position(c.deleted)
		return c.GetCurrent()
	}

	if !c.hasLast {
		// Nothing returned yet; anything at or after the seek key is ahead
		return c.GetCurrent()
	}

	c.syncDelta()

	for k, _, ok := c.base.GetCurrent(); ok && c.o.cmp(k, c.last) <= 0; {
		k, _, ok = c.base.Next()
	}
	if c.delta != nil {
		for k, _, ok := c.delta.GetCurrent(); ok && c.o.cmp(k, c.last) <= 0; {
			k, _, ok = c.delta.Next()
		}
	}

	return c.GetCurrent()
}

// Delete removes the visible entry under the cursor through the overlay. The
// cursor then reads as empty until the next Next or SetRange.
func (c *Cursor) Delete() error {
	if c.released {
		return ErrCursorReleased
	}
	if c.delta == nil {
		return ErrReadOnly
	}

	k, _, ok := c.GetCurrent()
	if !ok {
		return ErrNotFound
	}
	c.deleted = append(c.deleted[:0], k...)

	if err := c.o.Delete(c.deleted); err != nil {
		return err
	}
	c.inDeleted = true
	return nil
}

// Err returns the first error hit by the base cursor.
func (c *Cursor) Err() error {
	if c.released {
		return ErrCursorReleased
	}
	return c.base.Err()
}

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.released {
		return nil
	}
	delete(c.o.cursors, c)
	return c.release()
}

func (c *Cursor) release() error {
	c.released = true
	c.delta = nil
	return c.base.Close()
}

// position seeks both sides to the first entry >= key. Ties and tombstones
// are resolved lazily by GetCurrent.
func (c *Cursor) position(key []byte) {
	c.positioned = true
	c.seek = append(c.seek[:0], key...)
	c.hasLast = false

	c.base.SetRange(c.seek)
	if c.delta != nil {
		c.delta.SetRange(c.seek)
		c.version = c.o.changes.Version()
	}
}

// syncDelta re-seeks the changeset side after a mutation. The omap cursor
// would heal itself from its own anchor, but that anchor may lie ahead of
// the merged position when the base side won the last comparison, and a key
// inserted in between would be skipped.
func (c *Cursor) syncDelta() {
	if c.delta == nil || c.version == c.o.changes.Version() {
		return
	}

	if c.hasLast {
		c.delta.SetRange(c.last)
	} else {
		c.delta.SetRange(c.seek)
	}
	c.version = c.o.changes.Version()
}
