package omap

// nodeID addresses a node in the map's arena. Links between nodes (parent,
// children, leaf chain) are ids rather than pointers so the arena can grow
// and recycle slots without leaving dangling references behind.
type nodeID int32

const nilNode nodeID = -1

type nodeKind uint8

const (
	leafNode nodeKind = iota
	branchNode
)

// node is either a leaf or a branch, selected by kind.
//
// Leaf: keys/values are parallel, prev/next chain every leaf in key order.
// Branch: keys[i] is the first key of children[i+1]'s subtree.
type node struct {
	kind     nodeKind
	keys     [][]byte
	values   [][]byte // leaf only
	children []nodeID // branch only

	parent nodeID
	index  int // position in parent.children

	prev nodeID // leaf only
	next nodeID // leaf only

	free bool
}

func (n *node) isLeaf() bool {
	return n.kind == leafNode
}

// alloc returns the id of a fresh node. Any *node obtained before calling
// alloc must be re-fetched afterwards since the arena may have moved.
func (m *Map) alloc(kind nodeKind) nodeID {
	n := node{
		kind:   kind,
		parent: nilNode,
		prev:   nilNode,
		next:   nilNode,
	}

	if len(m.freeList) > 0 {
		id := m.freeList[len(m.freeList)-1]
		m.freeList = m.freeList[:len(m.freeList)-1]
		m.nodes[id] = n
		return id
	}

	m.nodes = append(m.nodes, n)
	return nodeID(len(m.nodes) - 1)
}

func (m *Map) release(id nodeID) {
	m.nodes[id] = node{free: true, parent: nilNode, prev: nilNode, next: nilNode}
	m.freeList = append(m.freeList, id)
}

func (m *Map) node(id nodeID) *node {
	return &m.nodes[id]
}

// insertAt inserts b into s at position i
func insertAt[T any](s []T, i int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// removeAt removes the element at position i from s
func removeAt[T any](s []T, i int) []T {
	var zero T
	copy(s[i:], s[i+1:])
	s[len(s)-1] = zero
	return s[:len(s)-1]
}

// tail copies s[i:] into a fresh slice with room to grow to capacity c
func tail[T any](s []T, i, c int) []T {
	out := make([]T, len(s)-i, c)
	copy(out, s[i:])
	return out
}
