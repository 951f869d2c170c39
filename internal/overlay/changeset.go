package overlay

// Changeset values carry a one-byte tag in front of the payload. The tag is
// part of the value, never the key, so it has no effect on ordering.
const (
	tagAddModify byte = 'A'
	tagDelete    byte = 'D'
)

var tombstone = []byte{tagDelete}

func isTombstone(v []byte) bool {
	return v[0] == tagDelete
}

func payload(v []byte) []byte {
	return v[1:]
}

// Op is a changeset entry as seen by Changes and Replay.
type Op struct {
	Key     []byte
	Value   []byte // nil for deletes
	Deleted bool
}

func decode(key, v []byte) Op {
	if isTombstone(v) {
		return Op{Key: key, Deleted: true}
	}
	return Op{Key: key, Value: payload(v)}
}
