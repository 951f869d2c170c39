// Package omap implements an in-memory ordered map used as a session's
// changeset: a B+tree whose nodes live in an index-addressed arena, with a
// doubly linked leaf chain and cursors that survive concurrent mutation.
package omap

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultBranchingFactor matches the fan-out of the on-disk trees the
// changeset is replayed into.
const DefaultBranchingFactor = 64

var ErrBranchingFactor = errors.New("branching factor must be at least 3")

// Map is an ordered map from byte keys to byte values.
//
// CONCURRENCY: a Map and its cursors must be used from one goroutine at a
// time. Cursors tolerate Put/Delete calls interleaved with their own use.
type Map struct {
	nodes    []node
	freeList []nodeID
	root     nodeID

	order   int // max keys per node
	cmp     Compare
	version uint64
	count   int
}

// New creates an empty map. cmp may be nil for byte-lexicographic order.
func New(branchingFactor int, cmp Compare) (*Map, error) {
	if branchingFactor < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrBranchingFactor, branchingFactor)
	}
	if cmp == nil {
		cmp = CompareBytes
	}

	m := &Map{
		order: branchingFactor,
		cmp:   cmp,
	}
	m.root = m.alloc(leafNode)

	return m, nil
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return m.count
}

// Version increments on every mutation.
func (m *Map) Version() uint64 {
	return m.version
}

// Compare returns the map's key ordering.
func (m *Map) Compare() Compare {
	return m.cmp
}

// Clear drops every entry and resets the tree to a single empty leaf.
func (m *Map) Clear() {
	clear(m.nodes)
	m.nodes = m.nodes[:0]
	m.freeList = m.freeList[:0]
	m.root = m.alloc(leafNode)
	m.count = 0
	m.version++
}

// Get returns the value stored under key.
func (m *Map) Get(key []byte) ([]byte, bool) {
	n := m.node(m.findLeaf(key))
	i := m.lowerBound(n.keys, key)
	if i < len(n.keys) && m.cmp(n.keys[i], key) == 0 {
		return n.values[i], true
	}
	return nil, false
}

// Put inserts or overwrites key. The map keeps references to key and value;
// callers must not modify them afterwards.
func (m *Map) Put(key, value []byte) {
	id := m.findLeaf(key)
	n := m.node(id)
	i := m.lowerBound(n.keys, key)

	m.version++

	if i < len(n.keys) && m.cmp(n.keys[i], key) == 0 {
		// Overwrite. The stored key is replaced too so comparators that
		// ignore part of the key still see the latest bytes.
		n.keys[i] = key
		n.values[i] = value
		if i == 0 {
			m.fixFirstKey(id, key)
		}
		return
	}

	n.keys = insertAt(n.keys, i, key)
	n.values = insertAt(n.values, i, value)
	m.count++

	if i == 0 {
		m.fixFirstKey(id, key)
	}
	if len(n.keys) > m.order {
		m.splitLeaf(id)
	}
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key []byte) bool {
	id := m.findLeaf(key)
	n := m.node(id)
	i := m.lowerBound(n.keys, key)
	if i == len(n.keys) || m.cmp(n.keys[i], key) != 0 {
		return false
	}

	m.remove(id, i)
	return true
}

// findLeaf descends from the root to the leaf whose range holds key
func (m *Map) findLeaf(key []byte) nodeID {
	id := m.root
	for {
		n := m.node(id)
		if n.isLeaf() {
			return id
		}
		id = n.children[m.childIndex(n, key)]
	}
}

// childIndex returns the index of the child of branch n whose range holds
// key: the number of separators <= key.
func (m *Map) childIndex(n *node, key []byte) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return m.cmp(n.keys[i], key) > 0
	})
}

// lowerBound returns the first position whose key is >= key
func (m *Map) lowerBound(keys [][]byte, key []byte) int {
	return sort.Search(len(keys), func(i int) bool {
		return m.cmp(keys[i], key) >= 0
	})
}

// fixFirstKey propagates a new first key of node id to the one ancestor
// separator that references it. Ancestors reached through child index 0 have
// no separator for this subtree, so the walk continues past them.
func (m *Map) fixFirstKey(id nodeID, first []byte) {
	for {
		n := m.node(id)
		if n.parent == nilNode {
			return
		}
		if n.index > 0 {
			m.node(n.parent).keys[n.index-1] = first
			return
		}
		id = n.parent
	}
}

func (m *Map) splitLeaf(id nodeID) {
	rid := m.alloc(leafNode)
	l, r := m.node(id), m.node(rid)

	mid := len(l.keys) / 2
	r.keys = tail(l.keys, mid, m.order+1)
	r.values = tail(l.values, mid, m.order+1)
	clear(l.keys[mid:])
	clear(l.values[mid:])
	l.keys = l.keys[:mid]
	l.values = l.values[:mid]

	// Link into the leaf chain
	r.prev = id
	r.next = l.next
	if l.next != nilNode {
		m.node(l.next).prev = rid
	}
	l.next = rid

	m.insertChild(id, r.keys[0], rid)
}

func (m *Map) splitBranch(id nodeID) {
	rid := m.alloc(branchNode)
	l, r := m.node(id), m.node(rid)

	// keys[mid] moves up; it is already the first key of children[mid+1]
	mid := len(l.keys) / 2
	sep := l.keys[mid]
	r.keys = tail(l.keys, mid+1, m.order+1)
	r.children = tail(l.children, mid+1, m.order+2)
	clear(l.keys[mid:])
	l.keys = l.keys[:mid]
	l.children = l.children[:mid+1]

	for i, child := range r.children {
		c := m.node(child)
		c.parent = rid
		c.index = i
	}

	m.insertChild(id, sep, rid)
}

// insertChild places right directly after left in left's parent, with sep as
// the separator between them, growing a new root when left is the root.
func (m *Map) insertChild(left nodeID, sep []byte, right nodeID) {
	if m.node(left).parent == nilNode {
		rootID := m.alloc(branchNode)
		root := m.node(rootID)
		root.keys = append(make([][]byte, 0, m.order+1), sep)
		root.children = append(make([]nodeID, 0, m.order+2), left, right)

		l, r := m.node(left), m.node(right)
		l.parent, l.index = rootID, 0
		r.parent, r.index = rootID, 1

		m.root = rootID
		return
	}

	l := m.node(left)
	pid, at := l.parent, l.index+1

	p := m.node(pid)
	p.keys = insertAt(p.keys, at-1, sep)
	p.children = insertAt(p.children, at, right)
	m.node(right).parent = pid
	m.reindex(pid, at)

	if len(p.keys) > m.order {
		m.splitBranch(pid)
	}
}

// reindex refreshes the parent index of children[from:]
func (m *Map) reindex(id nodeID, from int) {
	n := m.node(id)
	for i := from; i < len(n.children); i++ {
		m.node(n.children[i]).index = i
	}
}

// remove deletes entry i of leaf id. An emptied leaf is unlinked from the
// chain and removed from its parent; emptiness propagates upward.
func (m *Map) remove(id nodeID, i int) {
	n := m.node(id)
	n.keys = removeAt(n.keys, i)
	n.values = removeAt(n.values, i)
	m.count--
	m.version++

	if len(n.keys) > 0 {
		if i == 0 {
			m.fixFirstKey(id, n.keys[0])
		}
		return
	}

	if n.parent == nilNode {
		// Empty root leaf
		return
	}

	if n.prev != nilNode {
		m.node(n.prev).next = n.next
	}
	if n.next != nilNode {
		m.node(n.next).prev = n.prev
	}

	pid, idx := n.parent, n.index
	m.release(id)
	m.removeChild(pid, idx)
	m.collapseRoot()
}

// removeChild drops children[idx] of branch pid along with its separator
func (m *Map) removeChild(pid nodeID, idx int) {
	p := m.node(pid)
	p.children = removeAt(p.children, idx)

	var first []byte
	if idx > 0 {
		p.keys = removeAt(p.keys, idx-1)
	} else if len(p.keys) > 0 {
		// The old second child is now first; its first key was keys[0] and
		// is now the first key of this whole subtree.
		first = p.keys[0]
		p.keys = removeAt(p.keys, 0)
	}
	m.reindex(pid, idx)

	if len(p.children) == 0 {
		if p.parent == nilNode {
			m.release(pid)
			m.root = m.alloc(leafNode)
			return
		}
		gp, gi := p.parent, p.index
		m.release(pid)
		m.removeChild(gp, gi)
		return
	}

	if idx == 0 {
		m.fixFirstKey(pid, first)
	}
}

// collapseRoot replaces a branch root that has a single child with the child
func (m *Map) collapseRoot() {
	for {
		root := m.node(m.root)
		if root.isLeaf() || len(root.children) != 1 {
			return
		}

		old := m.root
		m.root = root.children[0]
		child := m.node(m.root)
		child.parent = nilNode
		child.index = 0
		m.release(old)
	}
}
