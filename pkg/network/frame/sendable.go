package frame

// Sendable is anything that can be put on the wire as a frame body.
type Sendable interface {
	// Body returns the message body, an empty body is valid.
	Body() ([]byte, error)
}

// Raw is a Sendable wrapping a byte slice.
type Raw []byte

// Body implements the Sendable interface.
func (r Raw) Body() ([]byte, error) { return r, nil }

// Text is a Sendable wrapping a string, the body is its bytes.
type Text string

// Body implements the Sendable interface.
func (t Text) Body() ([]byte, error) { return []byte(t), nil }

// Prepared is an already encoded frame, it's produced by Codec.Prepare and is
// written to the wire without additional processing.
type Prepared struct {
	orig Sendable
	wire []byte
}

// Body implements the Sendable interface, it returns the body of the
// original message.
func (p *Prepared) Body() ([]byte, error) {
	return p.wire[HeaderSize:], nil
}

// Original returns the message the frame was prepared from.
func (p *Prepared) Original() Sendable {
	return p.orig
}

// Wire returns the encoded frame including the length prefix.
func (p *Prepared) Wire() []byte {
	return p.wire
}
