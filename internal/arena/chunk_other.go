//go:build !unix

package arena

// allocChunk returns nil so the arena falls back to heap chunks.
func allocChunk(int) ([]byte, error) {
	return nil, nil
}

func freeChunk([]byte) error {
	return nil
}
