// Package node defines the fixed-layout B-tree node record and an
// LFU cache of node records keyed by file offset.
package node

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/scigolib/pbtree/internal/utils"
)

// Tree order parameters. T is the minimum degree: every node holds at
// most 2T-1 keys and 2T children, and every non-root node holds at
// least T-1 keys.
const (
	T           = 16
	MaxKeys     = 2*T - 1
	MaxChildren = 2 * T
)

// None marks an unused key, value, child, or parent slot.
const None = ^uint64(0)

// RecordSize is the serialized size of a node record.
//
// Layout (little-endian, packed):
//
//	offset   0: parent   (8 bytes)
//	offset   8: loc      (8 bytes)
//	offset  16: len      (8 bytes)
//	offset  24: keys     (31 x 8 bytes)
//	offset 272: values   (31 x 8 bytes)
//	offset 520: children (32 x 8 bytes)
//	offset 776: leaf     (1 byte, 0 or 1)
const RecordSize = 3*8 + MaxKeys*8 + MaxKeys*8 + MaxChildren*8 + 1

// Node is one B-tree node. Keys and Values hold offsets into the key
// and value files; Children holds offsets into the tree file. Loc is
// the node's own offset in the tree file and serves as its identity.
type Node struct {
	Parent   uint64
	Loc      uint64
	Len      uint64
	Keys     [MaxKeys]uint64
	Values   [MaxKeys]uint64
	Children [MaxChildren]uint64
	Leaf     bool
}

// New returns an empty leaf node with every slot set to None.
func New() Node {
	n := Node{
		Parent: None,
		Leaf:   true,
	}
	for i := range n.Keys {
		n.Keys[i] = None
		n.Values[i] = None
	}
	for i := range n.Children {
		n.Children[i] = None
	}
	return n
}

// EncodeTo serializes the node into buf, which must be at least
// RecordSize bytes.
func (n *Node) EncodeTo(buf []byte) {
	le := binary.LittleEndian
	le.PutUint64(buf[0:8], n.Parent)
	le.PutUint64(buf[8:16], n.Loc)
	le.PutUint64(buf[16:24], n.Len)

	pos := 24
	for i := 0; i < MaxKeys; i++ {
		le.PutUint64(buf[pos:pos+8], n.Keys[i])
		pos += 8
	}
	for i := 0; i < MaxKeys; i++ {
		le.PutUint64(buf[pos:pos+8], n.Values[i])
		pos += 8
	}
	for i := 0; i < MaxChildren; i++ {
		le.PutUint64(buf[pos:pos+8], n.Children[i])
		pos += 8
	}
	if n.Leaf {
		buf[pos] = 1
	} else {
		buf[pos] = 0
	}
}

// DecodeFrom deserializes a node from buf.
func (n *Node) DecodeFrom(buf []byte) error {
	if len(buf) < RecordSize {
		return fmt.Errorf("node record too short: %d bytes", len(buf))
	}
	le := binary.LittleEndian
	n.Parent = le.Uint64(buf[0:8])
	n.Loc = le.Uint64(buf[8:16])
	n.Len = le.Uint64(buf[16:24])

	pos := 24
	for i := 0; i < MaxKeys; i++ {
		n.Keys[i] = le.Uint64(buf[pos : pos+8])
		pos += 8
	}
	for i := 0; i < MaxKeys; i++ {
		n.Values[i] = le.Uint64(buf[pos : pos+8])
		pos += 8
	}
	for i := 0; i < MaxChildren; i++ {
		n.Children[i] = le.Uint64(buf[pos : pos+8])
		pos += 8
	}

	switch buf[pos] {
	case 0:
		n.Leaf = false
	case 1:
		n.Leaf = true
	default:
		return fmt.Errorf("invalid leaf flag: %d", buf[pos])
	}
	if n.Len > MaxKeys {
		return fmt.Errorf("node length %d exceeds maximum %d", n.Len, MaxKeys)
	}
	return nil
}

// ReadAt reads the node record stored at off.
func ReadAt(r io.ReaderAt, off uint64) (Node, error) {
	buf := utils.GetBuffer(RecordSize)
	defer utils.ReleaseBuffer(buf)

	//nolint:gosec // G115: node offsets fit in int64
	read, err := r.ReadAt(buf, int64(off))
	if read < RecordSize {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return Node{}, utils.WrapError("node read failed", err)
	}

	var n Node
	if err := n.DecodeFrom(buf); err != nil {
		return Node{}, utils.WrapError("node decode failed", err)
	}
	return n, nil
}

// WriteAt writes the node record at its own Loc.
func WriteAt(w io.WriterAt, n *Node) error {
	buf := utils.GetBuffer(RecordSize)
	defer utils.ReleaseBuffer(buf)

	n.EncodeTo(buf)
	//nolint:gosec // G115: node offsets fit in int64
	if _, err := w.WriteAt(buf, int64(n.Loc)); err != nil {
		return utils.WrapError("node write failed", err)
	}
	return nil
}
