package pbtree

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// Codec serializes values of type V to a byte sink and reads them
// back from a byte source. Encodings must be self-delimiting: Decode
// recovers the record length from the stream itself.
type Codec[V any] interface {
	Encode(w io.Writer, v V) error
	Decode(r io.Reader) (V, error)
}

// KeyCodec is a Codec that additionally defines a total order over
// the key type. Compare returns a negative number, zero, or a
// positive number when a sorts before, equal to, or after b.
type KeyCodec[K any] interface {
	Codec[K]
	Compare(a, b K) int
}

// Built-in codecs. Strings and byte slices are encoded as a
// little-endian uint32 length prefix followed by the raw bytes;
// uint64 is a fixed 8-byte little-endian word.
var (
	StringKey   KeyCodec[string] = stringCodec{}
	StringValue Codec[string]    = stringCodec{}
	BytesValue  Codec[[]byte]    = bytesCodec{}
	Uint64Key   KeyCodec[uint64] = uint64Codec{}
	Uint64Value Codec[uint64]    = uint64Codec{}
)

type stringCodec struct{}

func (stringCodec) Encode(w io.Writer, s string) error {
	if err := writeLength(w, len(s)); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func (stringCodec) Decode(r io.Reader) (string, error) {
	buf, err := readLengthPrefixed(r)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (stringCodec) Compare(a, b string) int { return strings.Compare(a, b) }

type bytesCodec struct{}

func (bytesCodec) Encode(w io.Writer, p []byte) error {
	if err := writeLength(w, len(p)); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

func (bytesCodec) Decode(r io.Reader) ([]byte, error) {
	return readLengthPrefixed(r)
}

type uint64Codec struct{}

func (uint64Codec) Encode(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func (uint64Codec) Decode(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (uint64Codec) Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func writeLength(w io.Writer, n int) error {
	if uint64(n) > math.MaxUint32 {
		return fmt.Errorf("record too large: %d bytes", n)
	}
	var buf [4]byte
	//nolint:gosec // G115: bounds checked above
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	_, err := w.Write(buf[:])
	return err
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
