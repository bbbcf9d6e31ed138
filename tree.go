// Package pbtree provides a persistent on-disk B-tree mapping typed
// keys to typed values. A tree is backed by three files sharing a
// path prefix: <path>.tree holds fixed-size node records, <path>.key
// and <path>.val hold the serialized keys and values as append-only
// streams. Node slots store file offsets into those streams.
//
// The tree supports insertion and point lookup for a single-writer,
// single-reader process. Deletion, range scans, and crash consistency
// are out of scope.
package pbtree

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/scigolib/pbtree/internal/buffile"
	"github.com/scigolib/pbtree/internal/node"
	"github.com/scigolib/pbtree/internal/utils"
)

// File name suffixes for the three backing files.
const (
	treeSuffix = ".tree"
	keySuffix  = ".key"
	valSuffix  = ".val"
)

// headerSize is the tree file header: a little-endian uint64 at
// offset 0 holding the current root node offset.
const headerSize = 8

// defaultCacheSize is the node cache budget used unless overridden
// with WithCacheSize or SetCacheSize.
const defaultCacheSize = 128

// ErrClosed is returned by operations on a closed tree.
var ErrClosed = errors.New("pbtree: tree is closed")

// Tree is a persistent B-tree of minimum degree 16. It is exclusively
// owned by one caller; no method is safe for concurrent use.
type Tree[K, V any] struct {
	treeFile *os.File
	keys     entryFile
	vals     entryFile
	keyCodec KeyCodec[K]
	valCodec Codec[V]
	rootLoc  uint64
	root     node.Node
	cache    *node.Cache
	closed   bool
}

// entryFile is the surface the tree needs from a key or value file:
// seekable stream I/O plus explicit flush.
type entryFile interface {
	io.ReadWriteSeeker
	io.Closer
	Flush() error
}

// rawFile adapts an unbuffered *os.File to entryFile.
type rawFile struct {
	*os.File
}

// Flush is a no-op: os.File writes are not buffered in user space.
func (rawFile) Flush() error { return nil }

type config struct {
	cacheSize  int
	entrySlabs int
}

// Option configures Create and Open.
type Option func(*config)

// WithCacheSize sets the node cache capacity.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithBufferedEntries routes the key and value files through slab
// buffers holding at most slabCount pages each. Keys and values land
// at the same offsets as without buffering; pages are written back
// whole, so each file is zero-padded to a page boundary. Flush must be
// called for writes to reach disk before the tree is closed.
func WithBufferedEntries(slabCount int) Option {
	return func(c *config) { c.entrySlabs = slabCount }
}

// Create creates a new tree at path, truncating any existing backing
// files. The tree file is initialized with its root-offset header and
// an empty leaf root at offset 8.
func Create[K, V any](path string, keys KeyCodec[K], values Codec[V], opts ...Option) (*Tree[K, V], error) {
	cfg := config{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	treeFile, keyFile, valFile, err := openFiles(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, err
	}

	cleanupOnError := true
	defer func() {
		if cleanupOnError {
			_ = treeFile.Close()
			_ = keyFile.Close()
			_ = valFile.Close()
		}
	}()

	root := node.New()
	root.Loc = headerSize
	if err := utils.WriteUint64(treeFile, 0, headerSize, binary.LittleEndian); err != nil {
		return nil, utils.WrapError("header write failed", err)
	}
	if err := node.WriteAt(treeFile, &root); err != nil {
		return nil, err
	}

	t, err := newTree[K, V](cfg, treeFile, keyFile, valFile, keys, values, headerSize, root)
	if err != nil {
		return nil, err
	}
	cleanupOnError = false
	return t, nil
}

// Open opens an existing tree at path. The backing files must exist;
// they are never truncated.
func Open[K, V any](path string, keys KeyCodec[K], values Codec[V], opts ...Option) (*Tree[K, V], error) {
	cfg := config{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	treeFile, keyFile, valFile, err := openFiles(path, os.O_RDWR)
	if err != nil {
		return nil, err
	}

	cleanupOnError := true
	defer func() {
		if cleanupOnError {
			_ = treeFile.Close()
			_ = keyFile.Close()
			_ = valFile.Close()
		}
	}()

	rootLoc, err := utils.ReadUint64(treeFile, 0, binary.LittleEndian)
	if err != nil {
		return nil, utils.WrapError("header read failed", err)
	}
	root, err := node.ReadAt(treeFile, rootLoc)
	if err != nil {
		return nil, utils.WrapError("root node read failed", err)
	}

	t, err := newTree[K, V](cfg, treeFile, keyFile, valFile, keys, values, rootLoc, root)
	if err != nil {
		return nil, err
	}
	cleanupOnError = false
	return t, nil
}

func openFiles(path string, flag int) (treeFile, keyFile, valFile *os.File, err error) {
	//nolint:gosec // G304: user-provided paths are the point of an embedded store
	treeFile, err = os.OpenFile(path+treeSuffix, flag, 0o644)
	if err != nil {
		return nil, nil, nil, utils.WrapError("tree file open failed", err)
	}
	//nolint:gosec // G304: see above
	keyFile, err = os.OpenFile(path+keySuffix, flag, 0o644)
	if err != nil {
		_ = treeFile.Close()
		return nil, nil, nil, utils.WrapError("key file open failed", err)
	}
	//nolint:gosec // G304: see above
	valFile, err = os.OpenFile(path+valSuffix, flag, 0o644)
	if err != nil {
		_ = treeFile.Close()
		_ = keyFile.Close()
		return nil, nil, nil, utils.WrapError("value file open failed", err)
	}
	return treeFile, keyFile, valFile, nil
}

func newTree[K, V any](cfg config, treeFile, keyFile, valFile *os.File,
	keys KeyCodec[K], values Codec[V], rootLoc uint64, root node.Node,
) (*Tree[K, V], error) {
	var keyIO, valIO entryFile
	if cfg.entrySlabs > 0 {
		kb, err := buffile.WithCapacity(cfg.entrySlabs, keyFile)
		if err != nil {
			return nil, err
		}
		vb, err := buffile.WithCapacity(cfg.entrySlabs, valFile)
		if err != nil {
			return nil, err
		}
		keyIO, valIO = kb, vb
	} else {
		keyIO, valIO = rawFile{keyFile}, rawFile{valFile}
	}

	return &Tree[K, V]{
		treeFile: treeFile,
		keys:     keyIO,
		vals:     valIO,
		keyCodec: keys,
		valCodec: values,
		rootLoc:  rootLoc,
		root:     root,
		cache:    node.NewCache(cfg.cacheSize),
	}, nil
}

// SetCacheSize changes the node cache capacity for subsequent
// admissions.
func (t *Tree[K, V]) SetCacheSize(n int) {
	t.cache.SetCapacity(n)
}

// Flush writes any buffered key and value bytes to disk. Node records
// are written through unbuffered, so the tree file needs no flushing.
// No durability beyond the OS page cache is implied.
func (t *Tree[K, V]) Flush() error {
	if t.closed {
		return ErrClosed
	}
	if err := t.keys.Flush(); err != nil {
		return err
	}
	return t.vals.Flush()
}

// Close flushes buffered state and closes the three backing files.
// It is safe to call Close multiple times; the first error wins.
func (t *Tree[K, V]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	err := t.keys.Close()
	if e := t.vals.Close(); err == nil {
		err = e
	}
	if e := t.treeFile.Close(); err == nil {
		err = e
	}
	return err
}

// writeNode appends n to the tree file, stamping its Loc with the
// end-of-file offset it landed on.
func (t *Tree[K, V]) writeNode(n *node.Node) (uint64, error) {
	pos, err := t.treeFile.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, utils.WrapError("tree file seek failed", err)
	}
	//nolint:gosec // G115: file sizes are non-negative
	n.Loc = uint64(pos)
	if err := node.WriteAt(t.treeFile, n); err != nil {
		return 0, err
	}
	return n.Loc, nil
}

// updateNode rewrites n at its Loc and refreshes the cached copy.
// Mutated nodes must pass through here before going out of scope, or
// a cache eviction would silently revive the stale on-disk state.
func (t *Tree[K, V]) updateNode(n *node.Node) error {
	if err := node.WriteAt(t.treeFile, n); err != nil {
		return err
	}
	t.cache.Update(n)
	return nil
}

// cachedNode reads the node at loc through the node cache.
func (t *Tree[K, V]) cachedNode(loc uint64) (node.Node, error) {
	return t.cache.Get(loc, t.treeFile)
}

// readNode reads the node at loc directly, bypassing the cache.
func (t *Tree[K, V]) readNode(loc uint64) (node.Node, error) {
	return node.ReadAt(t.treeFile, loc)
}

// setRootLoc repoints the stored root offset in the header.
func (t *Tree[K, V]) setRootLoc(loc uint64) error {
	if err := utils.WriteUint64(t.treeFile, 0, loc, binary.LittleEndian); err != nil {
		return utils.WrapError("header write failed", err)
	}
	t.rootLoc = loc
	return nil
}

// writeKey appends k to the key file and returns its start offset.
func (t *Tree[K, V]) writeKey(k K) (uint64, error) {
	pos, err := t.keys.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, utils.WrapError("key file seek failed", err)
	}
	if err := t.keyCodec.Encode(t.keys, k); err != nil {
		return 0, utils.WrapError("key encode failed", err)
	}
	//nolint:gosec // G115: file sizes are non-negative
	return uint64(pos), nil
}

// writeValue appends v to the value file and returns its start offset.
func (t *Tree[K, V]) writeValue(v V) (uint64, error) {
	pos, err := t.vals.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, utils.WrapError("value file seek failed", err)
	}
	if err := t.valCodec.Encode(t.vals, v); err != nil {
		return 0, utils.WrapError("value encode failed", err)
	}
	//nolint:gosec // G115: file sizes are non-negative
	return uint64(pos), nil
}

// writeEntry appends a key and value pair and returns both offsets.
func (t *Tree[K, V]) writeEntry(k K, v V) (keyLoc, valLoc uint64, err error) {
	keyLoc, err = t.writeKey(k)
	if err != nil {
		return 0, 0, err
	}
	valLoc, err = t.writeValue(v)
	if err != nil {
		return 0, 0, err
	}
	return keyLoc, valLoc, nil
}

// readKey decodes the key stored at off. The file cursor is re-seeked
// on every call: eviction writebacks and interleaved appends move it.
func (t *Tree[K, V]) readKey(off uint64) (K, error) {
	//nolint:gosec // G115: entry offsets fit in int64
	if _, err := t.keys.Seek(int64(off), io.SeekStart); err != nil {
		var zero K
		return zero, utils.WrapError("key file seek failed", err)
	}
	k, err := t.keyCodec.Decode(t.keys)
	if err != nil {
		var zero K
		return zero, utils.WrapError("key decode failed", err)
	}
	return k, nil
}

// readValue decodes the value stored at off.
func (t *Tree[K, V]) readValue(off uint64) (V, error) {
	//nolint:gosec // G115: entry offsets fit in int64
	if _, err := t.vals.Seek(int64(off), io.SeekStart); err != nil {
		var zero V
		return zero, utils.WrapError("value file seek failed", err)
	}
	v, err := t.valCodec.Decode(t.vals)
	if err != nil {
		var zero V
		return zero, utils.WrapError("value decode failed", err)
	}
	return v, nil
}
