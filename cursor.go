package objdb

import (
	"github.com/alexhholmes/objdb/internal/overlay"
)

// Cursor iterates a session's merged view in key order. It sees the
// session's own uncommitted writes, including ones made while it is open:
// keys written after the cursor's position show up as it advances, keys
// written at or before it never do.
//
// Returned slices are valid until the session commits, rolls back or closes.
// With WithOffHeapChangeset, touching one after that faults the process, as
// the changeset memory is unmapped; copy what must outlive the session state.
type Cursor struct {
	s *Session
	c *overlay.Cursor
}

// First positions the cursor at the smallest visible key.
func (c *Cursor) First() ([]byte, []byte, bool) {
	if !c.SetRange(nil) {
		return nil, nil, false
	}
	return c.GetCurrent()
}

// Seek positions the cursor at the first key >= key and returns it.
func (c *Cursor) Seek(key []byte) ([]byte, []byte, bool) {
	if !c.SetRange(key) {
		return nil, nil, false
	}
	return c.GetCurrent()
}

// SetRange positions the cursor at the first visible key >= key.
func (c *Cursor) SetRange(key []byte) bool {
	if c.s.done {
		return false
	}
	return c.c.SetRange(key)
}

// GetCurrent returns the entry under the cursor.
func (c *Cursor) GetCurrent() ([]byte, []byte, bool) {
	if c.s.done {
		return nil, nil, false
	}
	return c.c.GetCurrent()
}

// Next advances past the last key returned. An unpositioned cursor starts at
// the first key.
func (c *Cursor) Next() ([]byte, []byte, bool) {
	if c.s.done {
		return nil, nil, false
	}
	return c.c.Next()
}

// Delete removes the entry under the cursor from the session. GetCurrent
// reports nothing until the cursor moves again; Next continues with the
// following key.
func (c *Cursor) Delete() error {
	if err := c.s.check(); err != nil {
		return err
	}
	return c.c.Delete()
}

// Err reports why iteration stopped early, if it did.
func (c *Cursor) Err() error {
	if err := c.s.check(); err != nil {
		return err
	}
	return c.c.Err()
}

func (c *Cursor) Close() error {
	return c.c.Close()
}
