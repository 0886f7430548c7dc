package io

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteU32BE(t *testing.T) {
	var (
		val uint32 = 0xbadc0de
		bin        = []byte{0x0b, 0xad, 0xc0, 0xde}
	)
	bw := NewBufBinWriter(4)
	bw.WriteU32BE(val)
	require.NoError(t, bw.Err)
	require.Equal(t, bin, bw.Bytes())

	br := NewBinReaderFromIO(bytes.NewReader(bin))
	require.Equal(t, val, br.ReadU32BE())
	require.NoError(t, br.Err)
}

func TestBufBinWriterDrained(t *testing.T) {
	bw := NewBufBinWriter(0)
	bw.WriteBytes([]byte{1, 2, 3})
	require.Equal(t, 3, bw.Len())
	require.Equal(t, []byte{1, 2, 3}, bw.Bytes())
	require.Nil(t, bw.Bytes())
	bw.WriteBytes([]byte{4})
	require.Error(t, bw.Err)

	bw.Reset()
	bw.WriteBytes([]byte{4})
	require.NoError(t, bw.Err)
	require.Equal(t, []byte{4}, bw.Bytes())
}

func TestReaderStickyError(t *testing.T) {
	br := NewBinReaderFromIO(bytes.NewReader([]byte{1, 2}))
	require.Equal(t, uint32(0), br.ReadU32BE())
	require.ErrorIs(t, br.Err, io.ErrUnexpectedEOF)

	buf := make([]byte, 1)
	br.ReadBytes(buf)
	require.ErrorIs(t, br.Err, io.ErrUnexpectedEOF)

	br = NewBinReaderFromIO(bytes.NewReader(nil))
	br.ReadBytes(buf)
	require.ErrorIs(t, br.Err, io.EOF)
	br.Reset()
	require.NoError(t, br.Err)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriterStickyError(t *testing.T) {
	bw := NewBinWriterFromIO(failWriter{})
	bw.WriteU32BE(1)
	require.ErrorIs(t, bw.Err, io.ErrClosedPipe)
	bw.WriteBytes([]byte{1})
	require.ErrorIs(t, bw.Err, io.ErrClosedPipe)
}
