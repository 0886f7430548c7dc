package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/nspcc-dev/dsocket/cli/client"
	"github.com/nspcc-dev/dsocket/cli/server"
	"github.com/nspcc-dev/dsocket/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "dsocket\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates a dsocket instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "dsocket"
	ctl.Version = config.Version
	ctl.Usage = "Framed TCP socket echo server and interactive client"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, server.NewCommands()...)
	ctl.Commands = append(ctl.Commands, client.NewCommands()...)
	return ctl
}
