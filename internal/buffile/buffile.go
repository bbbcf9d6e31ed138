// Package buffile provides a paged read/write cache over a file.
//
// A BufFile holds at most a fixed number of 1 MiB slabs in memory and
// evicts the least-frequently-used slab when a new page is needed.
// All traffic through Read/Write lands in slabs; slabs are written
// back on eviction, on Flush, and on Close.
package buffile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/scigolib/pbtree/internal/utils"
)

const (
	// SlabSize is the page size. Must be a power of two: page starts
	// are computed by masking the low bits of an offset.
	SlabSize = 1 << 20

	slabMask = SlabSize - 1

	// DefaultSlabCount is the slab budget used by New.
	DefaultSlabCount = 16
)

// slab is one resident page of the backing file.
type slab struct {
	data  []byte // always SlabSize long
	start uint64 // file offset of data[0], a multiple of SlabSize
	uses  uint64 // access counter for LFU eviction
}

// BufFile presents a random-access stream over a file while keeping
// at most a fixed number of pages in memory.
//
// The cursor is virtual: the OS file position is never used. All disk
// traffic goes through positional ReadAt/WriteAt, so eviction-time
// writebacks cannot disturb in-flight cursor state.
//
// Not safe for concurrent use.
type BufFile struct {
	capacity int            // maximum number of resident slabs
	index    map[uint64]int // page start -> position in slabs
	slabs    []slab
	file     *os.File
	cursor   uint64 // next byte to read or write
	end      uint64 // logical end of file
}

// New creates a BufFile with the default slab budget.
func New(f *os.File) (*BufFile, error) {
	return WithCapacity(DefaultSlabCount, f)
}

// WithCapacity creates a BufFile holding at most slabs pages.
func WithCapacity(slabs int, f *os.File) (*BufFile, error) {
	if slabs < 1 {
		return nil, fmt.Errorf("buffile: slab count must be at least 1, got %d", slabs)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, utils.WrapError("buffile stat failed", err)
	}
	return &BufFile{
		capacity: slabs,
		index:    make(map[uint64]int, slabs),
		slabs:    make([]slab, 0, slabs),
		file:     f,
		//nolint:gosec // G115: file sizes are non-negative
		end: uint64(fi.Size()),
	}, nil
}

// End returns the logical end-of-file offset.
func (b *BufFile) End() uint64 { return b.end }

// Resident returns the number of slabs currently in memory.
func (b *BufFile) Resident() int { return len(b.slabs) }

// pageStart returns the start offset of the page containing off.
func pageStart(off uint64) uint64 { return off &^ slabMask }

// loadPage reads the full page starting at start from disk. A short
// read leaves trailing zeros.
func (b *BufFile) loadPage(start uint64) ([]byte, error) {
	data := make([]byte, SlabSize)
	//nolint:gosec // G115: page starts fit in int64
	if _, err := b.file.ReadAt(data, int64(start)); err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("slab read failed", err)
	}
	return data, nil
}

// writeback persists a slab's full page to disk.
func (b *BufFile) writeback(s *slab) error {
	//nolint:gosec // G115: page starts fit in int64
	if _, err := b.file.WriteAt(s.data, int64(s.start)); err != nil {
		return utils.WrapError("slab writeback failed", err)
	}
	return nil
}

// addSlab makes the page containing off resident and returns its slab
// index. If the slab budget is exhausted, the least-frequently-used
// slab is written back and replaced.
func (b *BufFile) addSlab(off uint64) (int, error) {
	start := pageStart(off)
	if i, ok := b.index[start]; ok {
		return i, nil
	}

	// If the target lies past the end of the file, extend with zeros
	// up to the end of its page so the page read below is defined.
	if b.end < start+SlabSize && b.end < off {
		if err := extend(b.file, b.end, start+SlabSize); err != nil {
			return 0, utils.WrapError("file extension failed", err)
		}
		b.end = start + SlabSize
	}

	if len(b.slabs) < b.capacity {
		data, err := b.loadPage(start)
		if err != nil {
			return 0, err
		}
		i := len(b.slabs)
		b.slabs = append(b.slabs, slab{data: data, start: start})
		b.index[start] = i
		return i, nil
	}

	// Choose the LFU victim. The scan stops at the first slab with a
	// use count of 1; a slab made resident by Seek alone has 0 uses,
	// and one of those later in slot order is not preferred.
	victim := 0
	for i := range b.slabs {
		if b.slabs[i].uses == 1 {
			victim = i
			break
		}
		if b.slabs[i].uses < b.slabs[victim].uses {
			victim = i
		}
	}

	data, err := b.loadPage(start)
	if err != nil {
		return 0, err
	}
	if err := b.writeback(&b.slabs[victim]); err != nil {
		return 0, err
	}
	delete(b.index, b.slabs[victim].start)
	b.slabs[victim] = slab{data: data, start: start}
	b.index[start] = victim
	return victim, nil
}

// Read copies len(p) bytes at the cursor into p, faulting pages in as
// needed. Reads past the logical end observe zeros. It always returns
// len(p) unless an I/O error occurs.
func (b *BufFile) Read(p []byte) (int, error) {
	done := 0
	for done < len(p) {
		i, err := b.addSlab(b.cursor)
		if err != nil {
			return done, err
		}
		b.slabs[i].uses++

		in := b.cursor & slabMask
		n := copy(p[done:], b.slabs[i].data[in:])
		b.cursor += uint64(n)
		done += n
	}
	return done, nil
}

// Write copies p into the resident pages at the cursor, faulting
// pages in as needed. Dirtiness is not tracked; eviction and Flush
// write pages back unconditionally.
func (b *BufFile) Write(p []byte) (int, error) {
	done := 0
	for done < len(p) {
		i, err := b.addSlab(b.cursor)
		if err != nil {
			return done, err
		}
		b.slabs[i].uses++

		in := b.cursor & slabMask
		n := copy(b.slabs[i].data[in:], p[done:])
		b.cursor += uint64(n)
		done += n
		if b.cursor > b.end {
			b.end = b.cursor
		}
	}
	return done, nil
}

// Seek moves the cursor per the usual io.Seeker conventions and makes
// the destination page resident. Seeking past the logical end is
// permitted; a later write there extends the file.
func (b *BufFile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		//nolint:gosec // G115: cursor fits in int64
		target = int64(b.cursor) + offset
	case io.SeekEnd:
		//nolint:gosec // G115: end fits in int64
		target = int64(b.end) + offset
	default:
		return 0, fmt.Errorf("buffile: invalid seek whence: %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("buffile: negative seek position: %d", target)
	}
	if _, err := b.addSlab(uint64(target)); err != nil {
		return 0, err
	}
	b.cursor = uint64(target)
	return target, nil
}

// Flush writes every resident slab back to disk in slot order.
func (b *BufFile) Flush() error {
	for i := range b.slabs {
		if err := b.writeback(&b.slabs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes all resident slabs and closes the underlying file.
// The flush error, if any, is surfaced; the file is closed either way.
func (b *BufFile) Close() error {
	flushErr := b.Flush()
	closeErr := b.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
