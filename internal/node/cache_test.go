package node

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nodeFile builds an in-memory tree file holding the given nodes at
// their Loc offsets.
func nodeFile(t *testing.T, nodes ...Node) *bytes.Reader {
	t.Helper()
	var max uint64
	for _, n := range nodes {
		if n.Loc+RecordSize > max {
			max = n.Loc + RecordSize
		}
	}
	data := make([]byte, max)
	for _, n := range nodes {
		n.EncodeTo(data[n.Loc:])
	}
	return bytes.NewReader(data)
}

func nodeAt(loc uint64, length uint64) Node {
	n := New()
	n.Loc = loc
	n.Len = length
	return n
}

func TestCacheMissReadsThrough(t *testing.T) {
	r := nodeFile(t, nodeAt(8, 2))
	c := NewCache(4)

	n, err := c.Get(8, r)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n.Loc)
	assert.Equal(t, uint64(2), n.Len)
	assert.Equal(t, 1, c.Len())
}

func TestCacheHitReturnsCopy(t *testing.T) {
	r := nodeFile(t, nodeAt(8, 1))
	c := NewCache(4)

	first, err := c.Get(8, r)
	require.NoError(t, err)

	// Mutating the returned copy must not affect the cache.
	first.Len = 99

	second, err := c.Get(8, r)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.Len)
}

func TestCacheHitDoesNotTouchDisk(t *testing.T) {
	r := nodeFile(t, nodeAt(8, 1))
	c := NewCache(4)

	_, err := c.Get(8, r)
	require.NoError(t, err)

	// A nil reader would panic on any disk access.
	n, err := c.Get(8, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n.Loc)
}

func TestCacheEvictsLeastFrequent(t *testing.T) {
	a := nodeAt(8, 1)
	b := nodeAt(8+RecordSize, 2)
	extra := nodeAt(8+2*RecordSize, 3)
	r := nodeFile(t, a, b, extra)

	c := NewCache(2)
	_, err := c.Get(a.Loc, r)
	require.NoError(t, err)
	_, err = c.Get(b.Loc, r)
	require.NoError(t, err)

	// Touch a twice more so b is the LFU entry.
	_, err = c.Get(a.Loc, r)
	require.NoError(t, err)
	_, err = c.Get(a.Loc, r)
	require.NoError(t, err)

	_, err = c.Get(extra.Loc, r)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	// a survived; a hit on it cannot touch the (nil) reader.
	_, err = c.Get(a.Loc, nil)
	require.NoError(t, err)
}

func TestCacheUpdateOverwritesInPlace(t *testing.T) {
	n := nodeAt(8, 1)
	r := nodeFile(t, n)
	c := NewCache(4)

	got, err := c.Get(8, r)
	require.NoError(t, err)

	got.Len = 5
	c.Update(&got)

	again, err := c.Get(8, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), again.Len)
}

func TestCacheUpdateMissIsNoop(t *testing.T) {
	c := NewCache(4)
	n := nodeAt(8, 1)
	c.Update(&n)
	assert.Equal(t, 0, c.Len())
}

func TestCacheMissOnBadOffset(t *testing.T) {
	r := nodeFile(t, nodeAt(8, 1))
	c := NewCache(4)

	_, err := c.Get(1<<40, r)
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCacheCapacityOne(t *testing.T) {
	a := nodeAt(8, 1)
	b := nodeAt(8+RecordSize, 2)
	r := nodeFile(t, a, b)

	c := NewCache(1)
	_, err := c.Get(a.Loc, r)
	require.NoError(t, err)
	_, err = c.Get(b.Loc, r)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}
