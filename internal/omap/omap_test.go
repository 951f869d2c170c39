package omap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMap(t *testing.T, order int) *Map {
	t.Helper()
	m, err := New(order, nil)
	require.NoError(t, err)
	return m
}

func intKey(i int) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(i))
	return k
}

func TestNewRejectsSmallBranchingFactor(t *testing.T) {
	t.Parallel()

	for _, order := range []int{-1, 0, 1, 2} {
		_, err := New(order, nil)
		assert.ErrorIs(t, err, ErrBranchingFactor, "order %d", order)
	}

	m, err := New(3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestPutGetSplits(t *testing.T) {
	t.Parallel()

	// Branching factor 3 forces a split every couple of inserts
	m := newMap(t, 3)
	for i := 1; i <= 200; i++ {
		m.Put(intKey(i), []byte(fmt.Sprintf("value%d", i)))
	}
	checkInvariants(t, m)

	assert.Equal(t, 200, m.Len())
	assert.Greater(t, m.height(), 3, "tree should have grown several levels")

	for i := 1; i <= 200; i++ {
		v, ok := m.Get(intKey(i))
		require.True(t, ok, "key %d", i)
		assert.Equal(t, fmt.Sprintf("value%d", i), string(v))
	}

	_, ok := m.Get(intKey(0))
	assert.False(t, ok)
	_, ok = m.Get(intKey(201))
	assert.False(t, ok)
}

func TestPutDescendingInsertsRepairSeparators(t *testing.T) {
	t.Parallel()

	// Every insert lands at position 0 of the leftmost leaf
	m := newMap(t, 4)
	for i := 300; i > 0; i-- {
		m.Put(intKey(i), intKey(i))
		if i%37 == 0 {
			checkInvariants(t, m)
		}
	}
	checkInvariants(t, m)

	for i := 1; i <= 300; i++ {
		v, ok := m.Get(intKey(i))
		require.True(t, ok)
		assert.Equal(t, intKey(i), v)
	}
}

func TestPutOverwrite(t *testing.T) {
	t.Parallel()

	m := newMap(t, 3)
	for i := 0; i < 20; i++ {
		m.Put(intKey(i), []byte("old"))
	}

	before := m.Version()
	m.Put(intKey(7), []byte("new"))

	assert.Equal(t, 20, m.Len(), "overwrite must not add an entry")
	assert.Greater(t, m.Version(), before, "overwrite bumps the version")

	v, ok := m.Get(intKey(7))
	require.True(t, ok)
	assert.Equal(t, "new", string(v))
	checkInvariants(t, m)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	m := newMap(t, 3)
	for i := 0; i < 100; i++ {
		m.Put(intKey(i), intKey(i))
	}

	assert.False(t, m.Delete(intKey(1000)))

	// Remove every even key
	for i := 0; i < 100; i += 2 {
		require.True(t, m.Delete(intKey(i)), "key %d", i)
		checkInvariants(t, m)
	}
	assert.Equal(t, 50, m.Len())

	for i := 0; i < 100; i++ {
		_, ok := m.Get(intKey(i))
		assert.Equal(t, i%2 == 1, ok, "key %d", i)
	}

	// Remove the rest, the tree collapses back to one leaf
	for i := 1; i < 100; i += 2 {
		require.True(t, m.Delete(intKey(i)))
	}
	checkInvariants(t, m)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 1, m.height())

	// And is usable again
	m.Put([]byte("a"), []byte("b"))
	v, ok := m.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, "b", string(v))
}

func TestDeleteFirstKeysFromTheRight(t *testing.T) {
	t.Parallel()

	// Deleting from the high end empties rightmost leaves, deleting the
	// lowest key of inner leaves exercises separator repair.
	m := newMap(t, 3)
	for i := 0; i < 64; i++ {
		m.Put(intKey(i), nil)
	}
	for i := 63; i >= 32; i-- {
		require.True(t, m.Delete(intKey(i)))
		checkInvariants(t, m)
	}
	for i := 0; i < 32; i += 3 {
		require.True(t, m.Delete(intKey(i)))
		checkInvariants(t, m)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	m := newMap(t, 3)
	for i := 0; i < 50; i++ {
		m.Put(intKey(i), intKey(i))
	}

	before := m.Version()
	m.Clear()

	assert.Equal(t, 0, m.Len())
	assert.Greater(t, m.Version(), before)
	_, ok := m.Get(intKey(3))
	assert.False(t, ok)
	checkInvariants(t, m)

	m.Put(intKey(3), []byte("x"))
	v, ok := m.Get(intKey(3))
	require.True(t, ok)
	assert.Equal(t, "x", string(v))
}

func TestPrefixOrdering(t *testing.T) {
	t.Parallel()

	m := newMap(t, 3)
	for _, k := range []string{"abc", "ab", "a", "b", "", "abcd"} {
		m.Put([]byte(k), []byte(k))
	}

	var got []string
	c := m.Cursor()
	for k, _, ok := c.Next(); ok; k, _, ok = c.Next() {
		got = append(got, string(k))
	}

	assert.Equal(t, []string{"", "a", "ab", "abc", "abcd", "b"}, got)
}

func TestCompareIgnoringLastByte(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, CompareIgnoringLastByte([]byte("key\x01"), []byte("key\x02")))
	assert.Equal(t, -1, CompareIgnoringLastByte([]byte("kex\x09"), []byte("key\x00\x00")))
	assert.Equal(t, 0, CompareIgnoringLastByte(nil, []byte{0xff}))

	m, err := New(3, CompareIgnoringLastByte)
	require.NoError(t, err)

	m.Put([]byte("obj1\x00"), []byte("first"))
	m.Put([]byte("obj1\x01"), []byte("second"))
	m.Put([]byte("obj0\x07"), []byte("zero"))

	assert.Equal(t, 2, m.Len(), "flag byte does not create a new entry")

	v, ok := m.Get([]byte("obj1\xff"))
	require.True(t, ok)
	assert.Equal(t, "second", string(v))

	c := m.Cursor()
	require.True(t, c.SetRange([]byte("obj1\x00")))
	k, _, ok := c.GetCurrent()
	require.True(t, ok)
	assert.Equal(t, []byte("obj1\x01"), k, "overwrite replaces the stored key")
	checkInvariants(t, m)
}

// TestRandomizedAgainstTreeMap applies random Put/Delete sequences and checks
// the map against a gods treemap after every step.
func TestRandomizedAgainstTreeMap(t *testing.T) {
	t.Parallel()

	for _, order := range []int{3, 4, 5, 8, 64} {
		order := order
		t.Run(fmt.Sprintf("order=%d", order), func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewSource(int64(order)))
			m := newMap(t, order)
			model := treemap.NewWith(func(a, b interface{}) int {
				return bytes.Compare(a.([]byte), b.([]byte))
			})

			for step := 0; step < 4000; step++ {
				k := intKey(rng.Intn(500))
				if rng.Intn(3) == 0 {
					_, had := model.Get(k)
					assert.Equal(t, had, m.Delete(k))
					model.Remove(k)
				} else {
					v := intKey(step)
					m.Put(k, v)
					model.Put(k, v)
				}

				if step%250 == 0 {
					checkInvariants(t, m)
				}
			}
			checkInvariants(t, m)

			require.Equal(t, model.Size(), m.Len())

			// In-order traversal matches the model exactly
			it := model.Iterator()
			c := m.Cursor()
			for it.Next() {
				k, v, ok := c.Next()
				require.True(t, ok)
				require.Equal(t, it.Key().([]byte), k)
				require.Equal(t, it.Value().([]byte), v)
			}
			_, _, ok := c.Next()
			assert.False(t, ok)
		})
	}
}
