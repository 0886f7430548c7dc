package client

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/nspcc-dev/dsocket/pkg/network"
	"github.com/nspcc-dev/dsocket/pkg/network/action"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

// syncBuffer is written by the prompt and by connection events concurrently.
type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

type executor struct {
	in   *io.PipeWriter
	out  *syncBuffer
	cli  *CLI
	exit atomic.Bool
	done chan struct{}
}

func newTestCLI(t *testing.T, cfg config.Client) *executor {
	r, w := io.Pipe()
	e := &executor{
		in:   w,
		out:  new(syncBuffer),
		done: make(chan struct{}),
	}
	var err error
	e.cli, err = NewWithConfig(func(int) { e.exit.Store(true) }, &readline.Config{
		Prompt:         "",
		Stdin:          r,
		Stderr:         e.out,
		Stdout:         e.out,
		FuncIsTerminal: func() bool { return false },
	}, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	go func() {
		_ = e.cli.Run()
		close(e.done)
	}()
	t.Cleanup(func() {
		_ = w.Close()
		select {
		case <-e.done:
		case <-time.After(time.Second):
		}
		e.cli.Close()
	})
	return e
}

func (e *executor) run(t *testing.T, commands ...string) {
	_, err := e.in.Write([]byte(strings.Join(commands, "\n") + "\n"))
	require.NoError(t, err)
}

func (e *executor) waitOutput(t *testing.T, s string) {
	require.Eventually(t, func() bool {
		return strings.Contains(e.out.String(), s)
	}, 5*time.Second, 5*time.Millisecond, "no %q in output:\n%s", s, e.out.String())
}

type echo struct {
	network.ServerAdapter
}

type echoClient struct {
	action.Adapter
	c *network.Client
}

func (e *echo) OnClientConnected(c *network.Client) {
	c.Register(&echoClient{c: c})
}

func (e *echoClient) OnReadComplete(_ endpoint.Info, p *frame.Packet) {
	_ = e.c.Send(frame.Raw(p.Body))
}

func newEchoServer(t *testing.T) uint16 {
	opts := network.DefaultServerOptions()
	opts.BindAddress = "127.0.0.1"
	reg := network.NewRegistry(zaptest.NewLogger(t), network.WithServerFactory(network.NewTCPServerFactory(opts)))
	srv, err := reg.GetServer(0)
	require.NoError(t, err)
	srv.Register(new(echo))
	require.NoError(t, srv.Listen())
	t.Cleanup(reg.Close)
	return srv.Port()
}

func testClientConfig() config.Client {
	cfg := config.Default().Client
	cfg.ConnectTimeout = time.Second
	cfg.Reconnect.Enabled = false
	return cfg
}

func TestNoConnection(t *testing.T) {
	e := newTestCLI(t, testClientConfig())
	e.run(t, "send hello", "pulse", "state", "close")
	require.Eventually(t, func() bool {
		return strings.Count(e.out.String(), ErrNoConnection.Error()) == 4
	}, 5*time.Second, 5*time.Millisecond)
}

func TestConnectSendClose(t *testing.T) {
	port := newEchoServer(t)
	e := newTestCLI(t, testClientConfig())
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	e.run(t,
		"connect "+addr,
		`send "hello world"`,
		"send --hex 0102ff",
		"send --hex zz",
		"pulse",
		"state",
	)
	e.waitOutput(t, fmt.Sprintf("[%s] connected", addr))
	e.waitOutput(t, fmt.Sprintf("[%s] < %q", addr, "hello world"))
	e.waitOutput(t, fmt.Sprintf("[%s] < %q", addr, []byte{1, 2, 0xff}))
	e.waitOutput(t, fmt.Sprintf("[%s] < %q", addr, network.DefaultPulsePayload))
	e.waitOutput(t, ErrInvalidParameter.Error())
	e.waitOutput(t, addr+"\tconnected")

	e.run(t, "close", "list")
	e.waitOutput(t, fmt.Sprintf("[%s] disconnected", addr))
	e.waitOutput(t, addr+": idle")
	e.waitOutput(t, addr+"\tidle")
}

func TestConnectDefault(t *testing.T) {
	port := newEchoServer(t)
	cfg := testClientConfig()
	cfg.Address = fmt.Sprintf("127.0.0.1:%d", port)
	cfg.Tag = "main"
	e := newTestCLI(t, cfg)

	e.run(t, "connect")
	e.waitOutput(t, fmt.Sprintf("[%s] connected", endpoint.Info{Host: "127.0.0.1", Port: port, Tag: "main"}))
}

func TestSwitch(t *testing.T) {
	port1, port2 := newEchoServer(t), newEchoServer(t)
	e := newTestCLI(t, testClientConfig())
	addr1 := fmt.Sprintf("127.0.0.1:%d", port1)
	addr2 := fmt.Sprintf("127.0.0.1:%d", port2)

	e.run(t, "connect "+addr1)
	e.waitOutput(t, fmt.Sprintf("[%s] connected", addr1))

	e.run(t, "switch "+addr2, "switch nonsense")
	e.waitOutput(t, "switched to "+addr2)
	e.waitOutput(t, fmt.Sprintf("[%s] disconnected", addr1))
	e.waitOutput(t, fmt.Sprintf("[%s] connected", addr2))
	e.waitOutput(t, ErrInvalidParameter.Error())
}

func TestExit(t *testing.T) {
	e := newTestCLI(t, testClientConfig())
	e.run(t, "exit")
	e.waitOutput(t, "Bye!")
	require.Eventually(t, e.exit.Load, 5*time.Second, 5*time.Millisecond)
}
