package network

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type (
	// ServerManager is a listening server.
	ServerManager interface {
		// Listen starts accepting connections, it returns when the server
		// is bound.
		Listen() error
		// Port returns the port the server is bound to (or the requested
		// one if it's not listening).
		Port() uint16
		IsLive() bool
		// Shutdown stops accepting connections and disconnects all clients.
		Shutdown()
		ClientPool() *ClientPool[*Client]
		// Register adds the listener, listeners which dynamic type can't
		// be compared are rejected with action.ErrUncomparableListener.
		Register(ServerListener) error
		Unregister(ServerListener)
	}

	// ServerListener receives server events.
	ServerListener interface {
		OnServerListening(port uint16)
		OnClientConnected(c *Client)
		OnClientDisconnected(c *Client, err error)
		OnClientSendFailed(c *Client, err error)
		OnServerWillBeShutdown(port uint16, pool *ClientPool[*Client])
		OnServerAlreadyShutdown(port uint16)
	}

	// ServerOptions is the configuration of a TCPServer.
	ServerOptions struct {
		BindAddress string
		// MaxClients limits the number of connected clients, 0 means no
		// limit.
		MaxClients int
		// Client is used for all accepted connections.
		Client Options
	}
)

// ServerAdapter is a no-op ServerListener to embed.
type ServerAdapter struct{}

// OnServerListening implements the ServerListener interface.
func (ServerAdapter) OnServerListening(uint16) {}

// OnClientConnected implements the ServerListener interface.
func (ServerAdapter) OnClientConnected(*Client) {}

// OnClientDisconnected implements the ServerListener interface.
func (ServerAdapter) OnClientDisconnected(*Client, error) {}

// OnClientSendFailed implements the ServerListener interface.
func (ServerAdapter) OnClientSendFailed(*Client, error) {}

// OnServerWillBeShutdown implements the ServerListener interface.
func (ServerAdapter) OnServerWillBeShutdown(uint16, *ClientPool[*Client]) {}

// OnServerAlreadyShutdown implements the ServerListener interface.
func (ServerAdapter) OnServerAlreadyShutdown(uint16) {}

// DefaultServerOptions returns server options with the default client
// options but without reconnections.
func DefaultServerOptions() ServerOptions {
	o := DefaultOptions()
	o.Reconnect.Enabled = false
	return ServerOptions{Client: o}
}

// NewServerOptions converts the server configuration into server options.
func NewServerOptions(cfg config.Server) ServerOptions {
	o := DefaultServerOptions()
	o.BindAddress = cfg.BindAddress
	o.MaxClients = cfg.MaxClients
	o.Client.MaxFrameSize = cfg.MaxFrameSize
	o.Client.WriteTimeout = cfg.WriteTimeout
	o.Client.PulseInterval = cfg.Pulse.Interval
	o.Client.PulseLoseLimit = cfg.Pulse.LoseLimit
	o.Client.Pulse = pulseFromConfig(cfg.Pulse)
	return o
}

// NewTCPServerFactory returns a ServerFactory creating TCPServers.
func NewTCPServerFactory(opts ServerOptions) ServerFactory {
	return func(port uint16, log *zap.Logger, delivery *action.Delivery) (ServerManager, error) {
		return NewTCPServer(port, opts, log, delivery), nil
	}
}

// TCPServer accepts TCP connections and keeps them in its ClientPool.
type TCPServer struct {
	log      *zap.Logger
	opts     ServerOptions
	delivery *action.Delivery
	pool     *ClientPool[*Client]
	live     atomic.Bool

	lock      sync.RWMutex
	port      uint16
	listener  net.Listener
	acceptWg  sync.WaitGroup
	listeners []ServerListener
}

// NewTCPServer creates a server for the given port, it's not listening. Port
// 0 means any free port.
func NewTCPServer(port uint16, opts ServerOptions, log *zap.Logger, delivery *action.Delivery) *TCPServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &TCPServer{
		log:      log,
		opts:     opts,
		delivery: delivery,
		port:     port,
	}
	s.pool = NewClientPool[*Client](frame.NewCodec(opts.Client.MaxFrameSize), s.sendFailed)
	return s
}

// Listen implements the ServerManager interface.
func (s *TCPServer) Listen() error {
	s.lock.Lock()
	if s.listener != nil {
		s.lock.Unlock()
		return nil
	}
	addr := net.JoinHostPort(s.opts.BindAddress, strconv.FormatUint(uint64(s.port), 10))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		s.lock.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tcp, ok := l.Addr().(*net.TCPAddr); ok {
		s.port = uint16(tcp.Port)
	}
	s.listener = l
	port := s.port
	s.live.Store(true)
	s.acceptWg.Add(1)
	s.lock.Unlock()

	s.log.Info("listening", zap.Stringer("address", l.Addr()))
	s.notify(func(sl ServerListener) { sl.OnServerListening(port) })
	go s.accept(l)
	return nil
}

func (s *TCPServer) accept(l net.Listener) {
	defer s.acceptWg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("TCP accept error", zap.Error(err))
			continue
		}
		s.handleConn(conn)
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	if limit := s.opts.MaxClients; limit > 0 && s.pool.Size() >= limit {
		s.log.Warn("rejecting connection",
			zap.Stringer("remote", conn.RemoteAddr()),
			zap.Error(ErrServerLimit))
		_ = conn.Close()
		return
	}
	c := &Client{
		tag:    conn.RemoteAddr().String(),
		server: s,
	}
	c.Manager = newInboundManager(conn, c.tag, s.opts.Client, s.log, s.delivery)
	c.Register(&clientWatcher{c: c})
	s.pool.Cache(c)
	s.updateMetric()
	s.log.Debug("client connected", zap.String("tag", c.tag))
	s.notify(func(sl ServerListener) { sl.OnClientConnected(c) })
	c.start(conn)
}

func (s *TCPServer) clientGone(c *Client, err error) {
	if !s.pool.remove(c) {
		return
	}
	s.updateMetric()
	s.log.Debug("client disconnected", zap.String("tag", c.tag), zap.Error(err))
	s.notify(func(sl ServerListener) { sl.OnClientDisconnected(c, err) })
}

func (s *TCPServer) sendFailed(c *Client, err error) {
	s.log.Debug("failed to send to client", zap.String("tag", c.tag), zap.Error(err))
	s.notify(func(sl ServerListener) { sl.OnClientSendFailed(c, err) })
}

// Port implements the ServerManager interface.
func (s *TCPServer) Port() uint16 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.port
}

// IsLive implements the ServerManager interface.
func (s *TCPServer) IsLive() bool {
	return s.live.Load()
}

// ClientPool implements the ServerManager interface.
func (s *TCPServer) ClientPool() *ClientPool[*Client] {
	return s.pool
}

// Shutdown implements the ServerManager interface.
func (s *TCPServer) Shutdown() {
	s.lock.Lock()
	l := s.listener
	s.listener = nil
	port := s.port
	s.lock.Unlock()
	if l == nil {
		return
	}

	s.notify(func(sl ServerListener) { sl.OnServerWillBeShutdown(port, s.pool) })
	s.live.Store(false)
	if err := l.Close(); err != nil {
		s.log.Warn("failed to close listener", zap.Error(err))
	}
	s.acceptWg.Wait()

	clients := s.pool.Peers()
	for _, c := range clients {
		c.Close()
	}
	for _, c := range clients {
		c.Wait()
	}
	s.log.Info("server shut down", zap.Uint16("port", port))
	s.notify(func(sl ServerListener) { sl.OnServerAlreadyShutdown(port) })
}

// Register implements the ServerManager interface.
func (s *TCPServer) Register(l ServerListener) error {
	if l == nil {
		return nil
	}
	if !action.IsComparable(l) {
		s.log.Warn("server listener rejected", zap.String("type", fmt.Sprintf("%T", l)),
			zap.Error(action.ErrUncomparableListener))
		return action.ErrUncomparableListener
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, have := range s.listeners {
		if have == l {
			return nil
		}
	}
	s.listeners = append(s.listeners, l)
	return nil
}

// Unregister implements the ServerManager interface.
func (s *TCPServer) Unregister(l ServerListener) {
	if !action.IsComparable(l) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for i, have := range s.listeners {
		if have == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *TCPServer) notify(f func(ServerListener)) {
	s.lock.RLock()
	listeners := make([]ServerListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.lock.RUnlock()
	for _, l := range listeners {
		s.notifyOne(l, f)
	}
}

func (s *TCPServer) notifyOne(l ServerListener, f func(ServerListener)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("server listener panicked", zap.Any("panic", r))
		}
	}()
	f(l)
}

func (s *TCPServer) updateMetric() {
	updateServerClientsMetric(strconv.FormatUint(uint64(s.Port()), 10), s.pool.Size())
}
