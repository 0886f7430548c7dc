package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestCLIVersion(t *testing.T) {
	ctl := New()
	out := bytes.NewBuffer(nil)
	ctl.Writer = out
	require.NoError(t, ctl.Run([]string{"dsocket", "--version"}))
	require.Contains(t, out.String(), "dsocket\nVersion:")
}

func TestCommands(t *testing.T) {
	ctl := New()
	require.NotNil(t, ctl.Command("server"))
	require.NotNil(t, ctl.Command("client"))
}

func TestServerBadArgs(t *testing.T) {
	ctl := New()
	ctl.ErrWriter = bytes.NewBuffer(nil)
	ctl.ExitErrHandler = func(*cli.Context, error) {}
	require.Error(t, ctl.Run([]string{"dsocket", "server", "unexpected"}))
	require.Error(t, ctl.Run([]string{"dsocket", "server", "--config-file", "/nonexistent/dsocket.yml"}))
}
