package arena

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaCopy(t *testing.T) {
	t.Parallel()

	for _, offHeap := range []bool{false, true} {
		a := New(Options{ChunkSize: 16, OffHeap: offHeap})

		src := []byte("hello")
		b, err := a.Copy(src)
		require.NoError(t, err)
		assert.Equal(t, src, b)

		// The copy does not alias the caller's buffer
		src[0] = 'j'
		assert.Equal(t, "hello", string(b))

		// Appending to an arena slice must not clobber its neighbour
		c, err := a.Copy([]byte("world"))
		require.NoError(t, err)
		_ = append(b, '!')
		assert.Equal(t, "world", string(c))

		assert.Equal(t, 10, a.Size())
		require.NoError(t, a.Reset())
		assert.Equal(t, 0, a.Size())
	}
}

func TestArenaChunking(t *testing.T) {
	t.Parallel()

	a := New(Options{ChunkSize: 8})

	var parts [][]byte
	for i := 0; i < 10; i++ {
		b, err := a.Copy(bytes.Repeat([]byte{byte('a' + i)}, 3))
		require.NoError(t, err)
		parts = append(parts, b)
	}

	// Oversized allocation gets its own chunk
	big, err := a.Copy(bytes.Repeat([]byte("z"), 100))
	require.NoError(t, err)
	assert.Len(t, big, 100)

	for i, p := range parts {
		assert.Equal(t, bytes.Repeat([]byte{byte('a' + i)}, 3), p)
	}
	assert.Equal(t, 130, a.Size())
}

func TestArenaLimit(t *testing.T) {
	t.Parallel()

	a := New(Options{ChunkSize: 8, Limit: 10})

	_, err := a.Alloc(6)
	require.NoError(t, err)
	_, err = a.Alloc(4)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, ErrFull)

	require.NoError(t, a.Reset())
	_, err = a.Alloc(10)
	assert.NoError(t, err)
}

func TestArenaZeroLength(t *testing.T) {
	t.Parallel()

	a := New(Options{})
	b, err := a.Copy(nil)
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Len(t, b, 0)
}
