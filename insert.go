package pbtree

import "github.com/scigolib/pbtree/internal/node"

// Insert adds the key k with value v. Duplicate keys are not
// rejected: an equal key is stored as a further entry, and which of
// the equal entries Search returns is not defined. A failed insert leaves the in-memory tree at its
// last-known-good state, but the on-disk files may hold a partial
// write (crash safety is a non-goal).
func (t *Tree[K, V]) Insert(k K, v V) error {
	if t.closed {
		return ErrClosed
	}

	if t.root.Len == node.MaxKeys {
		// The root is full: grow the tree upward. The new root s
		// starts as an internal node whose only child is the old
		// root, then immediately splits it.
		s := node.New()
		s.Leaf = false
		s.Children[0] = t.rootLoc

		sLoc, err := t.writeNode(&s)
		if err != nil {
			return err
		}
		if err := t.setRootLoc(sLoc); err != nil {
			return err
		}
		if err := t.splitChild(&s, 0); err != nil {
			return err
		}
		if err := t.insertNonfull(&s, k, v); err != nil {
			return err
		}
		t.root = s
		return t.updateNode(&s)
	}

	root := t.root
	if err := t.insertNonfull(&root, k, v); err != nil {
		return err
	}
	t.root = root
	return nil
}

// insertNonfull inserts k/v into the subtree rooted at x, which must
// not be full. Children are split on the way down so the recursion
// never needs to back up.
func (t *Tree[K, V]) insertNonfull(x *node.Node, k K, v V) error {
	if x.Leaf {
		// Shift greater entries one slot right to open a hole for k.
		i := int(x.Len)
		for i > 0 {
			ki, err := t.readKey(x.Keys[i-1])
			if err != nil {
				return err
			}
			if t.keyCodec.Compare(k, ki) >= 0 {
				break
			}
			x.Keys[i] = x.Keys[i-1]
			x.Values[i] = x.Values[i-1]
			i--
		}

		keyLoc, valLoc, err := t.writeEntry(k, v)
		if err != nil {
			return err
		}
		x.Keys[i] = keyLoc
		x.Values[i] = valLoc
		x.Len++
		return t.updateNode(x)
	}

	// Find the child slot: the first i with keys[i-1] <= k, scanning
	// from the right.
	i := int(x.Len)
	for i > 0 {
		ki, err := t.readKey(x.Keys[i-1])
		if err != nil {
			return err
		}
		if t.keyCodec.Compare(k, ki) >= 0 {
			break
		}
		i--
	}

	c, err := t.cachedNode(x.Children[i])
	if err != nil {
		return err
	}
	if c.Len == node.MaxKeys {
		if err := t.splitChild(x, i); err != nil {
			return err
		}
		// The median key moved up into slot i; reload it to decide
		// which side of the split to descend into.
		ki, err := t.readKey(x.Keys[i])
		if err != nil {
			return err
		}
		if t.keyCodec.Compare(k, ki) > 0 {
			i++
		}
		c, err = t.cachedNode(x.Children[i])
		if err != nil {
			return err
		}
	}
	return t.insertNonfull(&c, k, v)
}

// splitChild splits the full child at slot i of x into two nodes of
// T-1 keys each, moving the median entry up into x. The new right
// node is appended to the tree file; x and the shrunken child are
// rewritten in place. Persist order is z, then x, then y.
func (t *Tree[K, V]) splitChild(x *node.Node, i int) error {
	y, err := t.readNode(x.Children[i])
	if err != nil {
		return err
	}
	y.Parent = x.Loc

	z := node.New()
	z.Leaf = y.Leaf
	z.Len = node.T - 1
	z.Parent = x.Loc

	// Upper T-1 entries move to z.
	for j := 0; j < node.T-1; j++ {
		z.Keys[j] = y.Keys[j+node.T]
		z.Values[j] = y.Values[j+node.T]
	}
	if !y.Leaf {
		for j := 0; j < node.T; j++ {
			z.Children[j] = y.Children[j+node.T]
		}
	}

	// The median entry moves up into x; vacated slots in y return to
	// the sentinel so on-disk nodes never carry stale offsets.
	medianKey, medianVal := y.Keys[node.T-1], y.Values[node.T-1]
	for j := node.T - 1; j < node.MaxKeys; j++ {
		y.Keys[j] = node.None
		y.Values[j] = node.None
	}
	if !y.Leaf {
		for j := node.T; j < node.MaxChildren; j++ {
			y.Children[j] = node.None
		}
	}
	y.Len = node.T - 1

	zLoc, err := t.writeNode(&z)
	if err != nil {
		return err
	}

	for j := int(x.Len); j >= i+1; j-- {
		x.Children[j+1] = x.Children[j]
	}
	x.Children[i+1] = zLoc

	for j := int(x.Len) - 1; j >= i; j-- {
		x.Keys[j+1] = x.Keys[j]
		x.Values[j+1] = x.Values[j]
	}
	x.Keys[i] = medianKey
	x.Values[i] = medianVal
	x.Len++

	if err := t.updateNode(x); err != nil {
		return err
	}
	return t.updateNode(&y)
}
