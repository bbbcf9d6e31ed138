package buffile

import "os"

// writeZeros extends the file by writing zero bytes over [from, to),
// at most one page at a time.
func writeZeros(f *os.File, from, to uint64) error {
	zeros := make([]byte, SlabSize)
	for from < to {
		n := to - from
		if n > SlabSize {
			n = SlabSize
		}
		//nolint:gosec // G115: file offsets fit in int64
		if _, err := f.WriteAt(zeros[:n], int64(from)); err != nil {
			return err
		}
		from += n
	}
	return nil
}
