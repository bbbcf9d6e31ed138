package utils

import "encoding/binary"

// ReadUint64 reads a 64-bit value at specified offset.
func ReadUint64(r ReaderAt, offset int64, order binary.ByteOrder) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return order.Uint64(buf), nil
}

// WriteUint64 writes a 64-bit value at specified offset.
func WriteUint64(w WriterAt, offset int64, v uint64, order binary.ByteOrder) error {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	order.PutUint64(buf, v)
	_, err := w.WriteAt(buf, offset)
	return err
}

// ReaderAt is a simplified interface for io.ReaderAt.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// WriterAt is a simplified interface for io.WriterAt.
type WriterAt interface {
	WriteAt(p []byte, off int64) (n int, err error)
}
