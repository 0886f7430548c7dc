package client

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/nspcc-dev/dsocket/cli/cmdargs"
	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/nspcc-dev/dsocket/pkg/network"
	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/nspcc-dev/dsocket/pkg/network/frame"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

const (
	registryKey         = "registry"
	managerKey          = "manager"
	clientConfigKey     = "clientConfig"
	printerKey          = "printer"
	exitFuncKey         = "exitFunc"
	readlineInstanceKey = "readlineKey"
)

var commands = []cli.Command{
	{
		Name:        "exit",
		Usage:       "Close all connections and exit the prompt",
		Description: "Close all connections and exit the prompt",
		Action:      handleExit,
	},
	{
		Name:      "connect",
		Usage:     "Connect to the endpoint",
		UsageText: `connect [<host:port> [<tag>]]`,
		Description: `Connect to the given endpoint, the one from the configuration is used
   when no endpoint is given. Connections are kept per endpoint and tag, so
   connecting to the same endpoint twice returns the same connection.

Example:
> connect 127.0.0.1:20333 main`,
		Action: handleConnect,
	},
	{
		Name:      "send",
		Usage:     "Send a message via the current connection",
		UsageText: `send [--hex] <message...>`,
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "hex",
				Usage: "Message is a hex-encoded binary",
			},
		},
		Description: `Send the message, all arguments are joined with a space.

Example:
> send "hello world"
> send --hex 0102ff`,
		Action: handleSend,
	},
	{
		Name:        "pulse",
		Usage:       "Send a pulse right now",
		Description: "Send a pulse via the current connection without waiting for the pulse interval",
		Action:      handlePulse,
	},
	{
		Name:      "switch",
		Usage:     "Switch the current connection to another endpoint",
		UsageText: `switch <host:port> [<tag>]`,
		Description: `Switch the current connection to another endpoint keeping its listeners,
   the connection is reestablished if it was connected.`,
		Action: handleSwitch,
	},
	{
		Name:        "close",
		Usage:       "Close the current connection",
		Description: "Close the current connection and wait for it to be closed",
		Action:      handleClose,
	},
	{
		Name:        "state",
		Usage:       "Show the state of the current connection",
		Description: "Show the endpoint, the state and the number of lost pulses of the current connection",
		Action:      handleState,
	},
	{
		Name:        "list",
		Usage:       "List all kept connections",
		Description: "List all connections kept by the client",
		Action:      handleList,
	},
}

var completer *readline.PrefixCompleter

func init() {
	var pcItems []readline.PrefixCompleterInterface
	for _, c := range commands {
		if !c.Hidden {
			var flagsItems []readline.PrefixCompleterInterface
			for _, f := range c.Flags {
				names := strings.SplitN(f.GetName(), ", ", 2) // only long name will be offered
				flagsItems = append(flagsItems, readline.PcItem("--"+names[0]))
			}
			pcItems = append(pcItems, readline.PcItem(c.Name, flagsItems...))
		}
	}
	completer = readline.NewPrefixCompleter(pcItems...)
}

// Various errors.
var (
	ErrMissingParameter = errors.New("missing argument")
	ErrInvalidParameter = errors.New("can't parse argument")
	ErrNoConnection     = errors.New("no connection, use 'connect' first")
)

// CLI is an interactive client prompt.
type CLI struct {
	shell    *cli.App
	registry *network.Registry
}

// NewWithConfig returns a new CLI instance using the provided readline and
// client configurations.
func NewWithConfig(onExit func(int), c *readline.Config, cfg config.Client, log *zap.Logger) (*CLI, error) {
	if c.AutoComplete == nil {
		// Autocomplete commands/flags on TAB.
		c.AutoComplete = completer
	}
	l, err := readline.NewEx(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}
	ctl := cli.NewApp()
	ctl.Name = "dsocket client"

	// Note: need to set empty `ctl.HelpName` and `ctl.UsageText`, otherwise
	// `filepath.Base(os.Args[0])` will be used which is `dsocket`.
	ctl.HelpName = ""
	ctl.UsageText = ""

	ctl.Writer = l.Stdout()
	ctl.ErrWriter = l.Stderr()
	ctl.Version = config.Version
	ctl.Usage = "Interactive dsocket client"

	// Override default error handler in order not to exit on error.
	ctl.ExitErrHandler = func(context *cli.Context, err error) {}

	ctl.Commands = commands

	reg := network.NewRegistry(log)
	client := &CLI{
		shell:    ctl,
		registry: reg,
	}
	exitF := func(i int) {
		client.Close()
		onExit(i)
	}
	client.shell.Metadata = map[string]any{
		registryKey:         reg,
		clientConfigKey:     cfg,
		printerKey:          &printer{w: l.Stdout()},
		exitFuncKey:         exitF,
		readlineInstanceKey: l,
	}
	changePrompt(client.shell)
	return client, nil
}

func getExitFuncFromContext(app *cli.App) func(int) {
	return app.Metadata[exitFuncKey].(func(int))
}

func getReadlineInstanceFromContext(app *cli.App) *readline.Instance {
	return app.Metadata[readlineInstanceKey].(*readline.Instance)
}

func getRegistryFromContext(app *cli.App) *network.Registry {
	return app.Metadata[registryKey].(*network.Registry)
}

func getClientConfigFromContext(app *cli.App) config.Client {
	return app.Metadata[clientConfigKey].(config.Client)
}

func getPrinterFromContext(app *cli.App) *printer {
	return app.Metadata[printerKey].(*printer)
}

func getManagerFromContext(app *cli.App) *network.Manager {
	m, _ := app.Metadata[managerKey].(*network.Manager)
	return m
}

func setManagerInContext(app *cli.App, m *network.Manager) {
	app.Metadata[managerKey] = m
}

func checkConnection(app *cli.App) (*network.Manager, error) {
	m := getManagerFromContext(app)
	if m == nil {
		return nil, ErrNoConnection
	}
	return m, nil
}

func handleExit(c *cli.Context) error {
	l := getReadlineInstanceFromContext(c.App)
	_ = l.Close()
	exit := getExitFuncFromContext(c.App)
	fmt.Fprintln(c.App.Writer, "Bye!")
	exit(0)
	return nil
}

func handleConnect(c *cli.Context) error {
	cfg := getClientConfigFromContext(c.App)
	var (
		info endpoint.Info
		err  error
	)
	if c.Args().Present() {
		info, err = cmdargs.ParseEndpoint(c.Args())
	} else {
		info, err = network.ClientEndpoint(cfg)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	opts, err := network.NewOptions(cfg)
	if err != nil {
		return err
	}
	m := getRegistryFromContext(c.App).GetOrCreate(info, opts)
	m.Register(getPrinterFromContext(c.App))
	setManagerInContext(c.App, m)
	changePrompt(c.App)

	m.Connect()
	deadline := time.Now().Add(opts.ConnectTimeout + time.Second)
	for m.State() == network.Connecting && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Fprintf(c.App.Writer, "%s: %s\n", m.Info(), m.State())
	return nil
}

func handleSend(c *cli.Context) error {
	m, err := checkConnection(c.App)
	if err != nil {
		return err
	}
	if !c.Args().Present() {
		return fmt.Errorf("%w: <message>", ErrMissingParameter)
	}
	msg := strings.Join(c.Args(), " ")
	var s frame.Sendable = frame.Text(msg)
	if c.Bool("hex") {
		b, err := hex.DecodeString(msg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
		s = frame.Raw(b)
	}
	return m.Send(s)
}

func handlePulse(c *cli.Context) error {
	m, err := checkConnection(c.App)
	if err != nil {
		return err
	}
	p := m.Pulse()
	if p == nil {
		return network.ErrNotConnected
	}
	p.Trigger()
	return nil
}

func handleSwitch(c *cli.Context) error {
	m, err := checkConnection(c.App)
	if err != nil {
		return err
	}
	info, err := cmdargs.ParseEndpoint(c.Args())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	m.SwitchEndpoint(info)
	changePrompt(c.App)
	fmt.Fprintf(c.App.Writer, "switched to %s\n", info)
	return nil
}

func handleClose(c *cli.Context) error {
	m, err := checkConnection(c.App)
	if err != nil {
		return err
	}
	m.Close()
	m.Wait()
	fmt.Fprintf(c.App.Writer, "%s: %s\n", m.Info(), m.State())
	return nil
}

func handleState(c *cli.Context) error {
	m, err := checkConnection(c.App)
	if err != nil {
		return err
	}
	writeState(c.App.Writer, m)
	return nil
}

func handleList(c *cli.Context) error {
	for _, m := range getRegistryFromContext(c.App).ListActive() {
		writeState(c.App.Writer, m)
	}
	return nil
}

func writeState(w io.Writer, m *network.Manager) {
	var lost int
	if p := m.Pulse(); p != nil {
		lost = p.Lost()
	}
	fmt.Fprintf(w, "%s\t%s\tid: %s\tlost pulses: %d\n", m.Info(), m.State(), m.ID(), lost)
}

func changePrompt(app *cli.App) {
	l := getReadlineInstanceFromContext(app)
	if m := getManagerFromContext(app); m != nil {
		l.SetPrompt(fmt.Sprintf("\033[32mDSOCKET %s >\033[0m ", m.Info()))
	} else {
		l.SetPrompt("\033[32mDSOCKET >\033[0m ")
	}
}

// Close closes all connections of the CLI.
func (c *CLI) Close() {
	c.registry.Close()
}

// Run waits for user input from Stdin and executes the passed command.
func (c *CLI) Run() error {
	l := getReadlineInstanceFromContext(c.shell)
	for {
		line, err := l.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil // OK, stop execution.
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err) // Critical error, stop execution.
		}

		args, err := shellquote.Split(line)
		if err != nil {
			writeErr(c.shell.ErrWriter, fmt.Errorf("failed to parse arguments: %w", err))
			continue // Not a critical error, continue execution.
		}

		err = c.shell.Run(append([]string{"dsocket"}, args...))
		if err != nil {
			writeErr(c.shell.ErrWriter, err) // Various command/flags parsing errors and execution errors.
		}
	}
}

func writeErr(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", err)
}
