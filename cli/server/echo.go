package server

import (
	"github.com/nspcc-dev/dsocket/pkg/network"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"go.uber.org/zap"
)

// echo sends every frame received by a client back to it.
type echo struct {
	network.ServerAdapter
	log *zap.Logger
}

type echoClient struct {
	action.Adapter
	c   *network.Client
	log *zap.Logger
}

func newEcho(log *zap.Logger) *echo {
	return &echo{log: log}
}

func (e *echo) OnServerListening(port uint16) {
	e.log.Info("echo server is ready", zap.Uint16("port", port))
}

func (e *echo) OnClientConnected(c *network.Client) {
	c.Register(&echoClient{c: c, log: e.log.With(zap.String("client", c.UniqueTag()))})
}

func (e *echo) OnClientDisconnected(c *network.Client, err error) {
	e.log.Info("client gone", zap.String("client", c.UniqueTag()), zap.Error(err))
}

func (e *echo) OnServerWillBeShutdown(port uint16, pool *network.ClientPool[*network.Client]) {
	e.log.Info("shutting down echo server", zap.Uint16("port", port), zap.Int("clients", pool.Size()))
}

func (e *echoClient) OnConnectionSuccess(info endpoint.Info) {
	e.log.Info("new client", zap.Stringer("endpoint", info))
}

func (e *echoClient) OnReadComplete(_ endpoint.Info, p *frame.Packet) {
	if err := e.c.Send(frame.Raw(p.Body)); err != nil {
		e.log.Debug("failed to echo", zap.Error(err))
	}
}
