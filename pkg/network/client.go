package network

import (
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
)

// Client is a connection accepted by a server.
type Client struct {
	*Manager

	tag    string
	server *TCPServer
}

// UniqueTag implements the Peer interface.
func (c *Client) UniqueTag() string {
	return c.tag
}

// Server returns the server that accepted the client.
func (c *Client) Server() ServerManager {
	return c.server
}

// clientWatcher removes disconnected clients from the server.
type clientWatcher struct {
	action.Adapter
	c *Client
}

func (w *clientWatcher) OnDisconnection(_ endpoint.Info, err error) {
	w.c.server.clientGone(w.c, err)
}
