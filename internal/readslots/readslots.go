// Package readslots hands out a bounded number of read-session slots.
//
// A slot is identified by its index and holds the sequence number the DB gave
// the session when it began. Sequences grow monotonically, so the smallest
// live one names the longest running reader.
package readslots

import (
	"errors"
	"sync"
)

var ErrTooManyReaders = errors.New("too many concurrent read sessions (increase max readers)")

// Table tracks live read sessions by slot.
type Table struct {
	mu   sync.Mutex
	seqs []uint64 // per slot; 0 while the slot is free
	free []int    // free slot indexes; the last one is handed out next
}

// New returns a table with room for max concurrent sessions.
func New(max int) *Table {
	t := &Table{
		seqs: make([]uint64, max),
		free: make([]int, max),
	}
	for i := range t.free {
		t.free[i] = max - 1 - i
	}
	return t
}

// Register takes a free slot for the session with sequence seq. Sequence 0
// is reserved for free slots and panics.
func (t *Table) Register(seq uint64) (int, error) {
	if seq == 0 {
		panic("readslots: zero sequence")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) == 0 {
		return -1, ErrTooManyReaders
	}
	slot := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.seqs[slot] = seq
	return slot, nil
}

// Unregister returns slot to the table. Freeing a free slot does nothing.
func (t *Table) Unregister(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seqs[slot] == 0 {
		return
	}
	t.seqs[slot] = 0
	t.free = append(t.free, slot)
}

// Active returns the number of registered sessions.
func (t *Table) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.seqs) - len(t.free)
}

// Oldest returns the smallest live sequence, or 0 when no session is
// registered.
func (t *Table) Oldest() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var oldest uint64
	for _, seq := range t.seqs {
		if seq != 0 && (oldest == 0 || seq < oldest) {
			oldest = seq
		}
	}
	return oldest
}
