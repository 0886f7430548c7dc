package io

import (
	"encoding/binary"
	"io"
)

// BinReader is a convenient wrapper around an io.Reader and err object.
// Used to simplify error handling when reading several fields in a row,
// the first error is sticky and all subsequent reads are no-ops.
type BinReader struct {
	r   io.Reader
	uv  [4]byte
	Err error
}

// NewBinReaderFromIO makes a BinReader from io.Reader.
func NewBinReaderFromIO(ior io.Reader) *BinReader {
	return &BinReader{r: ior}
}

// ReadU32BE reads a big-endian encoded uint32 value from the underlying
// io.Reader.
func (r *BinReader) ReadU32BE() uint32 {
	r.ReadBytes(r.uv[:4])
	if r.Err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(r.uv[:4])
}

// ReadBytes copies exactly len(buf) bytes from the underlying io.Reader into
// buf. A stream ending in the middle of buf is reported as
// io.ErrUnexpectedEOF, a stream ending before the first byte as io.EOF.
func (r *BinReader) ReadBytes(buf []byte) {
	if r.Err != nil {
		return
	}
	_, r.Err = io.ReadFull(r.r, buf)
}

// Reset clears the sticky error allowing to continue reading after it was
// handled by the caller.
func (r *BinReader) Reset() {
	r.Err = nil
}
