/*
Package cmdargs contains helpers to parse positional command arguments.
*/
package cmdargs

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/dsocket/pkg/network/endpoint"
	"github.com/urfave/cli"
)

var errNoEndpoint = errors.New("no endpoint given, expected host:port [tag]")

// EnsureNone returns an error if there are any positional arguments present.
// It can be used to check for them in commands that don't accept arguments.
func EnsureNone(ctx *cli.Context) *cli.ExitError {
	if ctx.Args().Present() {
		return cli.NewExitError("additional arguments given while this command expects none", 1)
	}
	return nil
}

// ParseEndpoint parses "host:port [tag]" arguments.
func ParseEndpoint(args []string) (endpoint.Info, error) {
	switch len(args) {
	case 0:
		return endpoint.Info{}, errNoEndpoint
	case 1, 2:
	default:
		return endpoint.Info{}, fmt.Errorf("too many arguments: %d", len(args))
	}
	info, err := endpoint.Parse(args[0])
	if err != nil {
		return endpoint.Info{}, err
	}
	if len(args) == 2 {
		info = info.WithTag(args[1])
	}
	return info, nil
}
