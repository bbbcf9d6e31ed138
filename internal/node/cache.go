package node

import (
	"io"

	"github.com/scigolib/pbtree/internal/pqueue"
	"github.com/scigolib/pbtree/internal/utils"
)

// freq is a node access counter. The queue orders by count, so the
// least-frequently-used node polls first; identity is the node offset
// alone.
type freq struct {
	loc   uint64
	count uint64
}

// Cache is an LFU cache of node records keyed by tree-file offset.
// Get returns copies; callers mutate the copy and call Update to
// write the new state back. Not safe for concurrent use, and not safe
// to share between trees.
type Cache struct {
	capacity int
	freqs    *pqueue.Queue[freq]
	nodes    map[uint64]Node
}

// NewCache creates a cache holding at most capacity nodes.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		freqs: pqueue.New(
			func(a, b freq) bool { return a.count < b.count },
			func(a, b freq) bool { return a.loc == b.loc },
		),
		nodes: make(map[uint64]Node, capacity),
	}
}

// SetCapacity changes the cache budget. Nothing is evicted at once:
// from the next miss on, a miss while the cache holds at least n
// entries evicts one entry before admitting the new one, so a cache
// already larger than n keeps its size rather than shrinking to n.
func (c *Cache) SetCapacity(n int) { c.capacity = n }

// Len returns the number of cached nodes.
func (c *Cache) Len() int { return len(c.nodes) }

// Get returns the node stored at off, reading it from r on a miss.
// A hit bumps the node's access frequency. The returned node is a
// copy; mutations do not reach the cache until Update.
func (c *Cache) Get(off uint64, r io.ReaderAt) (Node, error) {
	if n, ok := c.nodes[off]; ok {
		if err := c.freqs.UpdateKey(freq{loc: off}, func(f *freq) { f.count++ }); err != nil {
			// A cached node always has a frequency record.
			return Node{}, utils.WrapError("node cache inconsistent", err)
		}
		return n, nil
	}

	n, err := ReadAt(r, off)
	if err != nil {
		return Node{}, err
	}
	if len(c.nodes) >= c.capacity {
		if lfu, ok := c.freqs.Poll(); ok {
			delete(c.nodes, lfu.loc)
		}
	}
	c.nodes[off] = n
	c.freqs.Push(freq{loc: off, count: 1})
	return n, nil
}

// Update overwrites the cached copy at n.Loc, if one exists. The
// access frequency is not touched. Callers must have persisted the
// node already; an entry evicted before Update would otherwise be
// reread stale.
func (c *Cache) Update(n *Node) {
	if _, ok := c.nodes[n.Loc]; ok {
		c.nodes[n.Loc] = *n
	}
}
