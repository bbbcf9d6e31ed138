package pbtree

import "github.com/scigolib/pbtree/internal/node"

// Search returns the value stored under k. The second return is
// false if the key is absent.
func (t *Tree[K, V]) Search(k K) (V, bool, error) {
	var zero V
	if t.closed {
		return zero, false, ErrClosed
	}
	return t.searchNode(t.root, k)
}

func (t *Tree[K, V]) searchNode(n node.Node, k K) (V, bool, error) {
	var zero V
	if n.Len == 0 {
		return zero, false, nil
	}

	i := 0
	cmp := 0
	for ; i < int(n.Len); i++ {
		ki, err := t.readKey(n.Keys[i])
		if err != nil {
			return zero, false, err
		}
		cmp = t.keyCodec.Compare(k, ki)
		if cmp <= 0 {
			break
		}
	}

	if i < int(n.Len) && cmp == 0 {
		v, err := t.readValue(n.Values[i])
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	}
	if n.Leaf {
		return zero, false, nil
	}
	child, err := t.cachedNode(n.Children[i])
	if err != nil {
		return zero, false, err
	}
	return t.searchNode(child, k)
}

// ContainsKey reports whether k is present. It descends by node
// offset through the cache, so it agrees with Search by construction
// while exercising the cached read path for every node including the
// root.
func (t *Tree[K, V]) ContainsKey(k K) (bool, error) {
	if t.closed {
		return false, ErrClosed
	}
	return t.containsAt(t.rootLoc, k)
}

func (t *Tree[K, V]) containsAt(loc uint64, k K) (bool, error) {
	n, err := t.cachedNode(loc)
	if err != nil {
		return false, err
	}
	if n.Len == 0 {
		return false, nil
	}

	i := 0
	cmp := 0
	for ; i < int(n.Len); i++ {
		ki, err := t.readKey(n.Keys[i])
		if err != nil {
			return false, err
		}
		cmp = t.keyCodec.Compare(k, ki)
		if cmp <= 0 {
			break
		}
	}

	if i < int(n.Len) && cmp == 0 {
		return true, nil
	}
	if n.Leaf {
		return false, nil
	}
	return t.containsAt(n.Children[i], k)
}
