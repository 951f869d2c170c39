package omap

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkInvariants walks the whole tree and verifies every structural
// invariant the cursor and search rely on.
func checkInvariants(t *testing.T, m *Map) {
	t.Helper()
	require.NoError(t, m.verify())
}

func (m *Map) verify() error {
	root := m.node(m.root)
	if root.parent != nilNode {
		return fmt.Errorf("root %d has parent %d", m.root, root.parent)
	}
	if !root.isLeaf() && len(root.children) < 2 {
		return fmt.Errorf("branch root has %d children", len(root.children))
	}

	var leaves []nodeID
	count, err := m.verifyNode(m.root, &leaves)
	if err != nil {
		return err
	}
	if count != m.count {
		return fmt.Errorf("count %d, tree holds %d", m.count, count)
	}

	// Leaf chain must visit the same leaves, in order, in both directions
	prev := nilNode
	for i, id := range leaves {
		n := m.node(id)
		if n.prev != prev {
			return fmt.Errorf("leaf %d prev=%d, want %d", id, n.prev, prev)
		}
		want := nilNode
		if i+1 < len(leaves) {
			want = leaves[i+1]
		}
		if n.next != want {
			return fmt.Errorf("leaf %d next=%d, want %d", id, n.next, want)
		}
		if len(n.keys) == 0 && id != m.root {
			return fmt.Errorf("empty non-root leaf %d", id)
		}
		prev = id
	}

	// Keys strictly increase across the chain
	var last []byte
	first := true
	for _, id := range leaves {
		for _, k := range m.node(id).keys {
			if !first && m.cmp(last, k) >= 0 {
				return fmt.Errorf("keys out of order: %q then %q", last, k)
			}
			last, first = k, false
		}
	}

	return nil
}

func (m *Map) verifyNode(id nodeID, leaves *[]nodeID) (int, error) {
	n := m.node(id)
	if n.free {
		return 0, fmt.Errorf("reachable node %d is on the free list", id)
	}
	if len(n.keys) > m.order {
		return 0, fmt.Errorf("node %d holds %d keys, order %d", id, len(n.keys), m.order)
	}

	if n.isLeaf() {
		if len(n.keys) != len(n.values) {
			return 0, fmt.Errorf("leaf %d has %d keys, %d values", id, len(n.keys), len(n.values))
		}
		*leaves = append(*leaves, id)
		return len(n.keys), nil
	}

	if len(n.children) != len(n.keys)+1 {
		return 0, fmt.Errorf("branch %d has %d keys, %d children", id, len(n.keys), len(n.children))
	}

	total := 0
	for i, child := range n.children {
		c := m.node(child)
		if c.parent != id || c.index != i {
			return 0, fmt.Errorf("child %d of %d has parent=%d index=%d", child, id, c.parent, c.index)
		}
		if i > 0 {
			if got := m.firstKey(child); !bytes.Equal(n.keys[i-1], got) {
				return 0, fmt.Errorf("branch %d separator %d is %q, child first key %q", id, i-1, n.keys[i-1], got)
			}
		}
		sub, err := m.verifyNode(child, leaves)
		if err != nil {
			return 0, err
		}
		total += sub
	}

	return total, nil
}

func (m *Map) firstKey(id nodeID) []byte {
	for {
		n := m.node(id)
		if n.isLeaf() {
			if len(n.keys) == 0 {
				return nil
			}
			return n.keys[0]
		}
		id = n.children[0]
	}
}

func (m *Map) height() int {
	h := 1
	for id := m.root; !m.node(id).isLeaf(); id = m.node(id).children[0] {
		h++
	}
	return h
}
