/*
Package endpoint contains the identity of a logical connection.
*/
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Info identifies a logical connection. It's a comparable value and is used
// as a map key, two Info values are the same connection iff they are equal.
// Tag is an optional discriminator allowing several logical connections to
// the same host and port.
type Info struct {
	Host string
	Port uint16
	Tag  string
}

// ErrInvalidAddress is returned from Parse for malformed addresses.
var ErrInvalidAddress = errors.New("invalid endpoint address")

// New creates an Info for the given host and port.
func New(host string, port uint16) Info {
	return Info{Host: host, Port: port}
}

// Parse creates an Info from the "host:port" string.
func Parse(addr string) (Info, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	port, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return Info{}, fmt.Errorf("%w: bad port %q", ErrInvalidAddress, p)
	}
	return Info{Host: host, Port: uint16(port)}, nil
}

// WithTag returns a copy of the Info with the given discriminator.
func (i Info) WithTag(tag string) Info {
	i.Tag = tag
	return i
}

// IsZero checks whether the Info is not set.
func (i Info) IsZero() bool {
	return i == Info{}
}

// Address returns the "host:port" string suitable for dialing.
func (i Info) Address() string {
	return net.JoinHostPort(i.Host, strconv.FormatUint(uint64(i.Port), 10))
}

// String implements the fmt.Stringer interface.
func (i Info) String() string {
	if i.Tag == "" {
		return i.Address()
	}
	return i.Address() + "#" + i.Tag
}
