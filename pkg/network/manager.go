package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/nspcc-dev/dsocket/pkg/network/iothread"
	"go.uber.org/zap"
)

// Dialer establishes outbound connections, *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Rebinder is notified about identity changes of managers it keeps.
type Rebinder interface {
	Rebind(m *Manager, old, new endpoint.Info)
}

// Manager is a single logical connection. It owns the socket, the I/O loops
// and the pulse of the connection and reports everything that happens to the
// registered listeners. All methods are safe for concurrent use and can be
// called from listener callbacks.
type Manager struct {
	id         string
	baseLog    *zap.Logger
	dialer     Dialer
	dispatcher *action.Dispatcher
	reconnect  *reconnector
	inbound    bool

	optsLock sync.RWMutex
	opts     Options

	// lock protects everything below.
	lock           sync.Mutex
	log            *zap.Logger
	info           endpoint.Info
	state          State
	gen            uint64
	cancelDial     context.CancelFunc
	pendingConnect bool
	conn           net.Conn
	reader         *iothread.Reader
	writer         *iothread.Writer
	pulse          *Pulse
	teardownDone   chan struct{}
	rebinder       Rebinder
}

// NewManager creates an outbound connection manager for the given endpoint.
// It doesn't connect, see Connect. delivery serves the independent callback
// mode (events are delivered inline if it's nil), nil dialer means the
// default net.Dialer.
func NewManager(info endpoint.Info, opts Options, log *zap.Logger, delivery *action.Delivery, dialer Dialer) *Manager {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return newManager(info, opts, log, delivery, dialer, false)
}

func newManager(info endpoint.Info, opts Options, log *zap.Logger, delivery *action.Delivery, dialer Dialer, inbound bool) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		id:      uuid.NewString(),
		dialer:  dialer,
		inbound: inbound,
		opts:    opts,
		info:    info,
	}
	m.baseLog = log.With(zap.String("id", m.id))
	m.log = m.baseLog.With(zap.Stringer("endpoint", info))
	m.dispatcher = action.NewDispatcher(info, func() action.Settings {
		return m.Options().settings()
	}, delivery, m.baseLog)
	m.reconnect = newReconnector(m)
	return m
}

// newInboundManager wraps an accepted connection. Inbound managers never
// dial or reconnect, they're started with start.
func newInboundManager(conn net.Conn, tag string, opts Options, log *zap.Logger, delivery *action.Delivery) *Manager {
	opts.Reconnect.Enabled = false
	m := newManager(remoteInfo(conn).WithTag(tag), opts, log, delivery, nil, true)
	m.lock.Lock()
	m.state = Connecting
	m.lock.Unlock()
	return m
}

func remoteInfo(conn net.Conn) endpoint.Info {
	addr := conn.RemoteAddr()
	if addr == nil {
		return endpoint.Info{}
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return endpoint.New(tcp.IP.String(), uint16(tcp.Port))
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return endpoint.Info{Host: addr.String()}
	}
	p, _ := strconv.ParseUint(port, 10, 16)
	return endpoint.New(host, uint16(p))
}

// ID returns the unique identifier of the manager used in logs.
func (m *Manager) ID() string {
	return m.id
}

// Info returns the current identity of the connection.
func (m *Manager) Info() endpoint.Info {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.info
}

// State returns the current state of the connection.
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// IsConnected checks whether the connection is established.
func (m *Manager) IsConnected() bool {
	return m.State() == Connected
}

// IsInbound checks whether the connection was accepted by a server.
func (m *Manager) IsInbound() bool {
	return m.inbound
}

// Options returns a copy of the current options.
func (m *Manager) Options() Options {
	m.optsLock.RLock()
	defer m.optsLock.RUnlock()
	return m.opts
}

// SetOptions replaces the options. The delivery mode and the pulse settings
// apply immediately, the rest applies to the next connection.
func (m *Manager) SetOptions(opts Options) {
	m.optsLock.Lock()
	if m.inbound {
		opts.Reconnect.Enabled = false
	}
	m.opts = opts
	m.optsLock.Unlock()

	m.lock.Lock()
	p := m.pulse
	m.lock.Unlock()
	if p != nil {
		p.Reset()
	}
}

// Register adds a listener, it returns the manager for chaining. Listeners
// that can't be compared are logged and ignored, see action.IsComparable.
func (m *Manager) Register(l action.Listener) *Manager {
	_ = m.dispatcher.Register(l)
	return m
}

// Unregister removes a listener, it returns the manager for chaining.
func (m *Manager) Unregister(l action.Listener) *Manager {
	m.dispatcher.Unregister(l)
	return m
}

// Pulse returns the pulse of the current connection, nil if there is none.
func (m *Manager) Pulse() *Pulse {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.pulse
}

// Connect starts connecting in background, results are reported via
// ConnectionSuccess or ConnectionFailed events. It does nothing if the
// manager is connecting or connected already. If the manager is
// disconnecting, it connects when the disconnection is complete.
func (m *Manager) Connect() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.connectLocked()
}

func (m *Manager) connectLocked() {
	if m.inbound {
		return
	}
	switch m.state {
	case Connecting, Connected:
		return
	case Disconnecting:
		m.pendingConnect = true
		return
	}
	m.reconnect.cancel()
	m.state = Connecting
	m.gen++
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if t := m.Options().ConnectTimeout; t > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), t)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	m.cancelDial = cancel
	m.log.Debug("connecting")
	go m.dial(ctx, cancel, m.gen, m.info)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, info endpoint.Info) {
	defer cancel()
	conn, err := m.dialer.DialContext(ctx, "tcp", info.Address())

	m.lock.Lock()
	if gen != m.gen || m.state != Connecting {
		// Cancelled by Close or replaced by another attempt.
		m.lock.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDial = nil
	if err == nil {
		m.established(conn, gen)
		return
	}
	m.state = Failed
	log := m.log
	m.lock.Unlock()

	connectFailures.Inc()
	log.Warn("failed to connect", zap.Error(err))
	m.dispatcher.Broadcast(action.ConnectionFailed, err)

	m.lock.Lock()
	if gen != m.gen || m.state != Failed {
		// A listener has already done something about it.
		m.lock.Unlock()
		return
	}
	m.state = Idle
	backup := m.Options().Backup
	useBackup := !backup.IsZero() && backup != m.info
	m.lock.Unlock()

	if useBackup {
		log.Info("switching to backup endpoint", zap.Stringer("backup", backup))
		m.SwitchEndpoint(backup)
	}
	m.reconnect.schedule(err)
}

// established sets the connection up. It's called with the lock held and
// releases it.
func (m *Manager) established(conn net.Conn, gen uint64) {
	var (
		opts  = m.Options()
		codec = frame.NewCodec(opts.MaxFrameSize)
		s     = connSender{m: m}
		r     = iothread.NewReader(conn, codec, s, m.log)
		w     = iothread.NewWriter(conn, codec, m.writeTimeout, s, m.log, nil)
		p     = newPulse(m)
	)
	m.conn = conn
	m.reader = r
	m.writer = w
	m.pulse = p
	m.state = Connected
	log := m.log
	m.lock.Unlock()

	activeConnections.Inc()
	m.reconnect.reset()
	log.Info("connection established")
	m.dispatcher.Broadcast(action.ConnectionSuccess, nil)

	m.lock.Lock()
	if m.gen == gen && m.state == Connected && m.reader == r {
		r.Start()
		w.Start()
		p.start()
	}
	m.lock.Unlock()
}

// start starts an inbound connection.
func (m *Manager) start(conn net.Conn) {
	m.lock.Lock()
	if m.state != Connecting {
		m.lock.Unlock()
		_ = conn.Close()
		return
	}
	m.established(conn, m.gen)
}

func (m *Manager) writeTimeout() time.Duration {
	return m.Options().WriteTimeout
}

// Send puts the message into the outbound queue of the connection. The
// message is written asynchronously, WriteComplete is broadcast after that.
func (m *Manager) Send(s frame.Sendable) error {
	m.lock.Lock()
	w := m.writer
	m.lock.Unlock()
	if w == nil {
		return ErrNotConnected
	}
	if err := w.Offer(s); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// Close disconnects intentionally, Disconnection is broadcast with nil error
// and no reconnection happens. It doesn't wait for the disconnection to
// complete, see Wait. Closing a connecting manager cancels the attempt
// without any events.
func (m *Manager) Close() {
	m.CloseWithError(nil)
}

// CloseWithError is the same as Close, but Disconnection carries the given
// error.
func (m *Manager) CloseWithError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.reconnect.cancel()
	m.pendingConnect = false
	m.disconnectLocked(err, true)
}

// disconnect is used for unexpected disconnections (I/O errors, lost pulse).
func (m *Manager) disconnect(cause error, manual bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.disconnectLocked(cause, manual)
}

func (m *Manager) disconnectLocked(cause error, manual bool) {
	switch m.state {
	case Connecting:
		if !manual {
			return
		}
		m.gen++
		if m.cancelDial != nil {
			m.cancelDial()
			m.cancelDial = nil
		}
		m.state = Idle
		return
	case Failed:
		// Stops the reconnection scheduled after ConnectionFailed.
		if manual {
			m.state = Idle
		}
		return
	case Connected:
	default:
		return
	}
	m.state = Disconnecting
	done := make(chan struct{})
	m.teardownDone = done
	if manual {
		m.log.Info("disconnecting", zap.Error(cause))
	} else {
		m.log.Warn("connection lost", zap.Error(cause))
	}
	go m.teardown(m.conn, m.reader, m.writer, m.pulse, cause, manual, done)
}

func (m *Manager) teardown(conn net.Conn, r *iothread.Reader, w *iothread.Writer, p *Pulse, cause error, manual bool, done chan struct{}) {
	defer close(done)

	p.stop()
	// Loops should see the manual cause before the socket is closed, this
	// way the errors caused by closing it are not reported.
	r.Shutdown(iothread.ErrManualDisconnect)
	w.Shutdown(iothread.ErrManualDisconnect)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		m.baseLog.Debug("failed to close connection", zap.Error(err))
	}
	r.Wait()
	w.Wait()
	p.wait()

	m.lock.Lock()
	m.conn = nil
	m.reader = nil
	m.writer = nil
	m.pulse = nil
	m.state = Idle
	pending := m.pendingConnect
	m.pendingConnect = false
	log := m.log
	m.lock.Unlock()

	activeConnections.Dec()
	log.Info("disconnected", zap.Error(cause))
	m.dispatcher.Broadcast(action.Disconnection, cause)
	m.dispatcher.SetInfo(m.Info())

	switch {
	case pending:
		m.Connect()
	case !manual && !m.inbound:
		m.reconnect.schedule(cause)
	}
}

// Wait blocks until the current disconnection (if any) is complete.
func (m *Manager) Wait() {
	m.lock.Lock()
	done := m.teardownDone
	m.lock.Unlock()
	if done != nil {
		<-done
	}
}

// SwitchEndpoint changes the identity of the connection, the listeners are
// preserved. A connected (or connecting) manager disconnects intentionally
// and connects to the new endpoint.
func (m *Manager) SwitchEndpoint(info endpoint.Info) {
	m.lock.Lock()
	old := m.info
	if old == info {
		m.lock.Unlock()
		return
	}
	m.info = info
	m.log = m.baseLog.With(zap.Stringer("endpoint", info))
	m.log.Info("endpoint switched", zap.Stringer("old", old))
	switch {
	case m.inbound:
		m.dispatcher.SetInfo(info)
	case m.state == Connecting:
		m.dispatcher.SetInfo(info)
		m.disconnectLocked(nil, true)
		m.connectLocked()
	case m.state == Connected:
		// Events of the old connection keep the old identity, the
		// dispatcher is switched by teardown.
		m.disconnectLocked(nil, true)
		m.pendingConnect = true
	case m.state == Disconnecting:
		m.pendingConnect = true
	default:
		m.dispatcher.SetInfo(info)
	}
	rb := m.rebinder
	m.lock.Unlock()

	// Outside of the lock, the registry locks its table and then managers.
	if rb != nil {
		rb.Rebind(m, old, info)
	}
}

func (m *Manager) setRebinder(rb Rebinder) {
	m.lock.Lock()
	m.rebinder = rb
	m.lock.Unlock()
}

// connSender is the Broadcaster of the I/O loops, it handles connection
// level reactions before passing events to the listeners.
type connSender struct {
	m *Manager
}

func (s connSender) Broadcast(a action.Action, arg any) {
	s.m.dispatcher.Broadcast(a, arg)
	switch a {
	case action.ReadComplete:
		if p, ok := arg.(*frame.Packet); ok {
			addFrameRead(len(p.Body))
		}
		if p := s.m.Pulse(); p != nil {
			p.Feed()
		}
	case action.WriteComplete:
		addFrameWritten(sendableLen(arg))
	case action.ReadThreadShutdown, action.WriteThreadShutdown:
		if err, _ := arg.(error); err != nil {
			s.m.disconnect(err, false)
		}
	}
}

func sendableLen(arg any) int {
	switch s := arg.(type) {
	case *frame.Prepared:
		return len(s.Wire()) - frame.HeaderSize
	case frame.Sendable:
		b, err := s.Body()
		if err != nil {
			return 0
		}
		return len(b)
	}
	return 0
}
