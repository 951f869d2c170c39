package omap

import "bytes"

// Compare orders two keys. It returns -1, 0 or 1.
type Compare func(a, b []byte) int

// CompareBytes is byte-lexicographic ordering; a key sorts before any longer
// key it prefixes.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// CompareIgnoringLastByte compares keys without their final byte, for key
// schemes that pack a one-byte flag into the last position. Keys that differ
// only in that byte are equal.
func CompareIgnoringLastByte(a, b []byte) int {
	return bytes.Compare(trimLast(a), trimLast(b))
}

func trimLast(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	return b[:len(b)-1]
}
