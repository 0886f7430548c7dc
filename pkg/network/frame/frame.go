/*
Package frame implements the wire framing of the socket engine. Every message
is put on the wire as a 4-byte big-endian length followed by exactly that many
body bytes. The body is opaque to the engine.
*/
package frame

import (
	"errors"
	"fmt"
	"io"
	"math"

	dio "github.com/nspcc-dev/dsocket/pkg/io"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// DefaultMaxFrameSize is the body size limit used when the codec is
	// not configured explicitly.
	DefaultMaxFrameSize = 4 * 1024 * 1024
)

var (
	// ErrFraming is the base error for all malformed frames.
	ErrFraming = errors.New("framing error")
	// ErrFrameTooLarge is returned when the length prefix (or the body to
	// be encoded) exceeds the maximum frame size.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrFraming)
	// ErrTruncated is returned when the stream ends in the middle of a frame.
	ErrTruncated = fmt.Errorf("%w: truncated frame", ErrFraming)
	// ErrEncoding is returned when the message body can't be obtained.
	ErrEncoding = errors.New("encoding error")
)

// Codec encodes and decodes length-prefixed frames.
type Codec struct {
	// MaxFrameSize is the maximum body size, 0 means DefaultMaxFrameSize.
	MaxFrameSize uint32
}

// Packet is a single decoded frame.
type Packet struct {
	// Length is the value of the length prefix, it always equals len(Body).
	Length uint32
	Body   []byte
}

// NewCodec returns a codec with the given body size limit.
func NewCodec(maxFrameSize uint32) Codec {
	return Codec{MaxFrameSize: maxFrameSize}
}

// Max returns the effective maximum body size.
func (c Codec) Max() uint32 {
	if c.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// Encode serializes the message into a frame.
func (c Codec) Encode(s Sendable) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncoding)
	}
	if p, ok := s.(*Prepared); ok {
		if n := len(p.wire) - HeaderSize; uint64(n) > uint64(c.Max()) {
			return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrFrameTooLarge, n, c.Max())
		}
		return p.wire, nil
	}
	body, err := s.Body()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if uint64(len(body)) > uint64(c.Max()) || uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrFrameTooLarge, len(body), c.Max())
	}
	w := dio.NewBufBinWriter(HeaderSize + len(body))
	w.WriteU32BE(uint32(len(body)))
	w.WriteBytes(body)
	if w.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, w.Err)
	}
	return w.Bytes(), nil
}

// Prepare encodes the message once so that it can be written to many
// connections without being serialized again.
func (c Codec) Prepare(s Sendable) (*Prepared, error) {
	if p, ok := s.(*Prepared); ok {
		if _, err := c.Encode(p); err != nil {
			return nil, err
		}
		return p, nil
	}
	wire, err := c.Encode(s)
	if err != nil {
		return nil, err
	}
	return &Prepared{orig: s, wire: wire}, nil
}

// Decode reads exactly one frame from r. It blocks until the whole frame is
// received. io.EOF is returned as is if the stream ends cleanly before the
// frame starts, any other premature end is ErrTruncated.
func (c Codec) Decode(r io.Reader) (*Packet, error) {
	return c.decode(dio.NewBinReaderFromIO(r))
}

// DecodeFrom is the same as Decode, but reuses the given reader.
func (c Codec) DecodeFrom(br *dio.BinReader) (*Packet, error) {
	return c.decode(br)
}

func (c Codec) decode(br *dio.BinReader) (*Packet, error) {
	l := br.ReadU32BE()
	if br.Err != nil {
		return nil, wrapReadErr(br.Err)
	}
	if l > c.Max() {
		return nil, fmt.Errorf("%w: length %d, limit is %d", ErrFrameTooLarge, l, c.Max())
	}
	body := make([]byte, l)
	br.ReadBytes(body)
	if br.Err != nil {
		if errors.Is(br.Err, io.EOF) {
			return nil, fmt.Errorf("%w: body of %d bytes missing", ErrTruncated, l)
		}
		return nil, wrapReadErr(br.Err)
	}
	return &Packet{Length: l, Body: body}, nil
}

func wrapReadErr(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return err
}
