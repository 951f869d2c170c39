package omap

// Cursor iterates a Map in key order.
//
// A cursor caches its leaf and index together with the map version it saw
// when it last positioned itself. Any mutation of the map bumps the version;
// a cursor that notices the change re-seeks from its anchor (the last key it
// handed out, or the SetRange key if it has not handed out one yet) instead of
// trusting a leaf that may have been split, emptied or recycled.
type Cursor struct {
	m *Map

	leaf    nodeID
	index   int
	valid   bool
	version uint64

	positioned bool
	anchor     []byte // owned copy
	seen       bool   // anchor is a key returned to the caller
}

// Cursor returns an unpositioned cursor.
func (m *Map) Cursor() *Cursor {
	return &Cursor{m: m, leaf: nilNode}
}

// SetRange positions the cursor at the first key >= key and reports whether
// one exists.
func (c *Cursor) SetRange(key []byte) bool {
	c.positioned = true
	c.anchor = append(c.anchor[:0], key...)
	c.seen = false
	c.seek(key)
	return c.valid
}

// GetCurrent returns the entry under the cursor.
func (c *Cursor) GetCurrent() ([]byte, []byte, bool) {
	if !c.positioned {
		return nil, nil, false
	}

	c.refresh()
	if !c.valid {
		return nil, nil, false
	}

	n := c.m.node(c.leaf)
	k, v := n.keys[c.index], n.values[c.index]
	c.anchor = append(c.anchor[:0], k...)
	c.seen = true

	return k, v, true
}

// Next moves to the first key strictly greater than the last key returned
// and returns it. An unpositioned cursor starts at the first key.
func (c *Cursor) Next() ([]byte, []byte, bool) {
	if !c.positioned {
		c.SetRange(nil)
		return c.GetCurrent()
	}

	if !c.seen {
		// Resolve the SetRange position so there is a key to move past
		if _, _, ok := c.GetCurrent(); !ok {
			return nil, nil, false
		}
	}

	c.refresh()
	for c.valid && c.m.cmp(c.key(), c.anchor) <= 0 {
		c.step()
	}
	if !c.valid {
		return nil, nil, false
	}

	return c.GetCurrent()
}

// Delete removes the entry under the cursor. The cursor moves to the entry
// that followed it, which the next GetCurrent or Next returns.
func (c *Cursor) Delete() bool {
	if !c.positioned {
		return false
	}

	c.refresh()
	if !c.valid {
		return false
	}

	n := c.m.node(c.leaf)
	c.anchor = append(c.anchor[:0], n.keys[c.index]...)
	c.seen = true

	next := n.next
	emptied := len(n.keys) == 1

	c.m.remove(c.leaf, c.index)

	if emptied {
		// The leaf is gone (or is an empty root); continue in the next one
		c.leaf = next
		c.index = 0
	}
	c.settle()
	c.version = c.m.version

	return true
}

func (c *Cursor) key() []byte {
	return c.m.node(c.leaf).keys[c.index]
}

// refresh re-seeks when the map changed since the cursor last positioned
func (c *Cursor) refresh() {
	if c.version != c.m.version {
		c.seek(c.anchor)
	}
}

func (c *Cursor) seek(key []byte) {
	id := c.m.findLeaf(key)
	n := c.m.node(id)
	c.leaf = id
	c.index = c.m.lowerBound(n.keys, key)
	c.version = c.m.version
	c.settle()
}

func (c *Cursor) step() {
	c.index++
	c.settle()
}

// settle moves past the end of exhausted leaves along the chain
func (c *Cursor) settle() {
	for c.leaf != nilNode {
		n := c.m.node(c.leaf)
		if c.index < len(n.keys) {
			c.valid = true
			return
		}
		c.leaf = n.next
		c.index = 0
	}
	c.valid = false
}
