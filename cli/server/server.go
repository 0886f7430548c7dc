package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nspcc-dev/dsocket/cli/cmdargs"
	"github.com/nspcc-dev/dsocket/cli/options"
	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/nspcc-dev/dsocket/pkg/network"
	"github.com/nspcc-dev/dsocket/pkg/services/metrics"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// NewCommands returns 'server' command.
func NewCommands() []cli.Command {
	flags := []cli.Flag{
		options.ConfigFile,
		options.Debug,
		cli.UintFlag{
			Name:  "port, p",
			Usage: "port to listen on (overrides configuration)",
		},
		cli.StringFlag{
			Name:  "bind",
			Usage: "address to bind to (overrides configuration)",
		},
	}
	return []cli.Command{
		{
			Name:      "server",
			Usage:     "Start an echo server",
			UsageText: "dsocket server [--config-file file] [--debug] [--port port] [--bind address]",
			Action:    startServer,
			Flags:     flags,
		},
	}
}

// node is a running echo server with its metrics services.
type node struct {
	log      *zap.Logger
	level    *zap.AtomicLevel
	debug    bool
	reload   func() (config.Config, error)
	registry *network.Registry
	server   network.ServerManager
	services []*metrics.Service
}

func newNode(cfg config.Config, log *zap.Logger, level *zap.AtomicLevel) (*node, error) {
	reg := network.NewRegistry(log,
		network.WithServerFactory(network.NewTCPServerFactory(network.NewServerOptions(cfg.Server))))
	srv, err := reg.GetServer(cfg.Server.Port)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Register(newEcho(log)); err != nil {
		reg.Close()
		return nil, fmt.Errorf("failed to register echo: %w", err)
	}
	prom, err := metrics.NewPrometheusService(cfg.ApplicationConfiguration.Prometheus, log, network.Collectors()...)
	if err != nil {
		reg.Close()
		return nil, err
	}
	n := &node{
		log:      log,
		level:    level,
		registry: reg,
		server:   srv,
	}
	n.services = []*metrics.Service{
		prom,
		metrics.NewPprofService(cfg.ApplicationConfiguration.Pprof, log, func() any { return n.status() }),
	}
	return n, nil
}

// serverStatus is served by the pprof service.
type serverStatus struct {
	Port    uint16         `json:"port"`
	Live    bool           `json:"live"`
	Clients []clientStatus `json:"clients"`
}

type clientStatus struct {
	Tag      string `json:"tag"`
	ID       string `json:"id"`
	State    string `json:"state"`
	Endpoint string `json:"endpoint"`
}

func (n *node) status() serverStatus {
	peers := n.server.ClientPool().Peers()
	st := serverStatus{
		Port:    n.server.Port(),
		Live:    n.server.IsLive(),
		Clients: make([]clientStatus, 0, len(peers)),
	}
	for _, p := range peers {
		st.Clients = append(st.Clients, clientStatus{
			Tag:      p.UniqueTag(),
			ID:       p.ID(),
			State:    p.State().String(),
			Endpoint: p.Info().String(),
		})
	}
	return st
}

func (n *node) start() error {
	for _, s := range n.services {
		if err := s.Start(); err != nil {
			return err
		}
	}
	return n.server.Listen()
}

// handleSignal reacts to the signal and returns true if the node should stop.
func (n *node) handleSignal(sig os.Signal) bool {
	switch sig {
	case sighup:
		if n.debug || n.reload == nil {
			return false
		}
		cfg, err := n.reload()
		if err != nil {
			n.log.Error("failed to reload configuration", zap.Error(err))
			return false
		}
		level, err := options.ParseLogLevel(cfg.ApplicationConfiguration)
		if err != nil {
			n.log.Error("wrong log level in configuration", zap.Error(err))
			return false
		}
		n.log.Info("SIGHUP received, changing log level", zap.Stringer("level", level))
		n.level.SetLevel(level)
	case sigusr1:
		st := n.status()
		tags := make([]string, 0, len(st.Clients))
		for _, c := range st.Clients {
			tags = append(tags, c.Tag)
		}
		n.log.Info("connected clients", zap.Int("count", len(tags)), zap.Strings("clients", tags))
	default:
		n.log.Info("shutting down", zap.Stringer("signal", sig))
		return true
	}
	return false
}

func (n *node) shutdown() {
	n.registry.Close()
	for _, s := range n.services {
		s.ShutDown()
	}
}

func startServer(ctx *cli.Context) error {
	if err := cmdargs.EnsureNone(ctx); err != nil {
		return err
	}
	cfg, err := getConfig(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, logLevel, logCloser, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer func() {
		_ = log.Sync()
		if logCloser != nil {
			_ = logCloser()
		}
	}()

	n, err := newNode(cfg, log, logLevel)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	n.debug = ctx.Bool("debug")
	n.reload = func() (config.Config, error) { return getConfig(ctx) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sighup, sigusr1, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := n.start(); err != nil {
		n.shutdown()
		return cli.NewExitError(fmt.Errorf("failed to start server: %w", err), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "Echo server is listening on port %d\n", n.server.Port())

	for sig := range sigCh {
		if n.handleSignal(sig) {
			break
		}
	}
	n.shutdown()
	return nil
}

func getConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cfg, err
	}
	if ctx.IsSet("port") {
		port := ctx.Uint("port")
		if port > 65535 {
			return cfg, fmt.Errorf("invalid port %d", port)
		}
		cfg.Server.Port = uint16(port)
	}
	if bind := ctx.String("bind"); bind != "" {
		cfg.Server.BindAddress = bind
	}
	return cfg, nil
}
