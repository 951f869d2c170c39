// Package backendtest is a conformance suite every backend runs from its own
// tests.
package backendtest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/objdb/backend"
)

// OpenFunc opens a fresh, empty store for one subtest.
type OpenFunc func(t *testing.T) backend.Store

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open OpenFunc) {
	t.Run("EmptySnapshot", func(t *testing.T) { testEmptySnapshot(t, open(t)) })
	t.Run("CommitVisible", func(t *testing.T) { testCommitVisible(t, open(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("SnapshotIsolation", func(t *testing.T) { testSnapshotIsolation(t, open(t)) })
	t.Run("CursorOrder", func(t *testing.T) { testCursorOrder(t, open(t)) })
	t.Run("CursorSetRange", func(t *testing.T) { testCursorSetRange(t, open(t)) })
	t.Run("EmptyValue", func(t *testing.T) { testEmptyValue(t, open(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, open(t)) })
	t.Run("ClosedSnapshot", func(t *testing.T) { testClosedSnapshot(t, open(t)) })
}

func commit(t *testing.T, s backend.Store, fn func(b backend.Batch)) {
	t.Helper()

	b, err := s.Begin()
	require.NoError(t, err)
	fn(b)
	require.NoError(t, b.Commit())
}

func snapshot(t *testing.T, s backend.Store) backend.Snapshot {
	t.Helper()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	t.Cleanup(func() { snap.Close() })
	return snap
}

func testEmptySnapshot(t *testing.T, s backend.Store) {
	snap := snapshot(t, s)

	_, err := snap.Get([]byte("missing"))
	assert.ErrorIs(t, err, backend.ErrNotFound)

	c, err := snap.Cursor()
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.SetRange(nil))
	_, _, ok := c.GetCurrent()
	assert.False(t, ok)
	_, _, ok = c.Next()
	assert.False(t, ok)
	assert.NoError(t, c.Err())
}

func testCommitVisible(t *testing.T, s backend.Store) {
	commit(t, s, func(b backend.Batch) {
		require.NoError(t, b.Put([]byte("a"), []byte("1")))
		require.NoError(t, b.Put([]byte("b"), []byte("2")))
	})
	commit(t, s, func(b backend.Batch) {
		require.NoError(t, b.Delete([]byte("a")))
	})

	snap := snapshot(t, s)

	_, err := snap.Get([]byte("a"))
	assert.ErrorIs(t, err, backend.ErrNotFound)

	v, err := snap.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func testRollback(t *testing.T, s backend.Store) {
	b, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("k"), []byte("v")))
	require.NoError(t, b.Rollback())

	snap := snapshot(t, s)
	_, err = snap.Get([]byte("k"))
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func testSnapshotIsolation(t *testing.T, s backend.Store) {
	commit(t, s, func(b backend.Batch) {
		require.NoError(t, b.Put([]byte("k"), []byte("old")))
	})

	before, err := s.Snapshot()
	require.NoError(t, err)

	v, err := before.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)

	// bbolt blocks a writer on remap while readers are open; the mmap is
	// sized so a tiny commit never triggers one.
	commit(t, s, func(b backend.Batch) {
		require.NoError(t, b.Put([]byte("k"), []byte("new")))
		require.NoError(t, b.Put([]byte("z"), []byte("added")))
	})

	v, err = before.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)

	_, err = before.Get([]byte("z"))
	assert.ErrorIs(t, err, backend.ErrNotFound)
	require.NoError(t, before.Close())

	after := snapshot(t, s)
	v, err = after.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func testCursorOrder(t *testing.T, s backend.Store) {
	const n = 100

	// insert in reverse to make sure ordering comes from the engine
	commit(t, s, func(b backend.Batch) {
		for i := n - 1; i >= 0; i-- {
			k := fmt.Sprintf("key%03d", i)
			require.NoError(t, b.Put([]byte(k), []byte(k)))
		}
	})

	snap := snapshot(t, s)
	c, err := snap.Cursor()
	require.NoError(t, err)
	defer c.Close()

	var got []string
	for ok := c.SetRange(nil); ok; {
		k, v, _ := c.GetCurrent()
		assert.Equal(t, k, v)
		got = append(got, string(k))
		_, _, ok = c.Next()
	}
	require.NoError(t, c.Err())

	require.Len(t, got, n)
	for i, k := range got {
		assert.Equal(t, fmt.Sprintf("key%03d", i), k)
	}
}

func testCursorSetRange(t *testing.T, s backend.Store) {
	commit(t, s, func(b backend.Batch) {
		for _, k := range []string{"b", "d", "f"} {
			require.NoError(t, b.Put([]byte(k), []byte(k)))
		}
	})

	snap := snapshot(t, s)
	c, err := snap.Cursor()
	require.NoError(t, err)
	defer c.Close()

	tests := []struct {
		seek string
		want string
		ok   bool
	}{
		{"a", "b", true},
		{"b", "b", true},
		{"c", "d", true},
		{"f", "f", true},
		{"g", "", false},
	}
	for _, tt := range tests {
		ok := c.SetRange([]byte(tt.seek))
		require.Equal(t, tt.ok, ok, "seek %q", tt.seek)
		if !ok {
			continue
		}
		k, _, ok := c.GetCurrent()
		require.True(t, ok)
		assert.Equal(t, tt.want, string(k), "seek %q", tt.seek)
	}

	// a cursor can be repositioned after running off the end
	require.True(t, c.SetRange([]byte("e")))
	k, _, ok := c.Next()
	assert.False(t, ok)
	assert.Nil(t, k)
	require.True(t, c.SetRange([]byte("a")))
	k, _, _ = c.GetCurrent()
	assert.Equal(t, "b", string(k))
}

func testEmptyValue(t *testing.T, s backend.Store) {
	commit(t, s, func(b backend.Batch) {
		require.NoError(t, b.Put([]byte("empty"), []byte{}))
	})

	snap := snapshot(t, s)
	v, err := snap.Get([]byte("empty"))
	require.NoError(t, err)
	assert.Empty(t, v)
}

func testOverwrite(t *testing.T, s backend.Store) {
	commit(t, s, func(b backend.Batch) {
		require.NoError(t, b.Put([]byte("k"), []byte("1")))
		require.NoError(t, b.Put([]byte("k"), []byte("2")))
	})

	snap := snapshot(t, s)
	v, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func testClosedSnapshot(t *testing.T, s backend.Store) {
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, snap.Close())
	require.NoError(t, snap.Close())

	_, err = snap.Get([]byte("k"))
	assert.ErrorIs(t, err, backend.ErrClosed)
	_, err = snap.Cursor()
	assert.ErrorIs(t, err, backend.ErrClosed)
}
