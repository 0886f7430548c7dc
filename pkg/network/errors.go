package network

import "errors"

var (
	// ErrNotConnected is returned when sending through a manager that has
	// no established connection.
	ErrNotConnected = errors.New("not connected")
	// ErrPulseLost is the disconnection cause when the remote side stops
	// responding to pulses.
	ErrPulseLost = errors.New("pulse lost")
	// ErrNoServerImplementation is returned from Registry.GetServer when the
	// registry can't build a server.
	ErrNoServerImplementation = errors.New("no server implementation")
	// ErrServerLimit is the cause of rejected inbound connections when the
	// server is full.
	ErrServerLimit = errors.New("server client limit reached")
)
