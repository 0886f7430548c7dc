package client

import (
	"os"

	"github.com/chzyer/readline"
	"github.com/nspcc-dev/dsocket/cli/cmdargs"
	"github.com/nspcc-dev/dsocket/cli/options"
	"github.com/urfave/cli"
)

// NewCommands returns 'client' command.
func NewCommands() []cli.Command {
	return []cli.Command{{
		Name:      "client",
		Usage:     "Start an interactive client",
		UsageText: "dsocket client [--config-file file] [--debug] [--address host:port] [--tag tag]",
		Action:    startClientPrompt,
		Flags: []cli.Flag{
			options.ConfigFile,
			options.Debug,
			cli.StringFlag{
				Name:  "address, a",
				Usage: "default endpoint to connect to (overrides configuration)",
			},
			cli.StringFlag{
				Name:  "tag",
				Usage: "discriminator of the default endpoint (overrides configuration)",
			},
			cli.StringFlag{
				Name:  "history",
				Usage: "file to store the prompt history in",
			},
		},
	}}
}

func startClientPrompt(ctx *cli.Context) error {
	if err := cmdargs.EnsureNone(ctx); err != nil {
		return err
	}
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if addr := ctx.String("address"); addr != "" {
		cfg.Client.Address = addr
	}
	if ctx.IsSet("tag") {
		cfg.Client.Tag = ctx.String("tag")
	}
	if err := cfg.Client.Validate(); err != nil {
		return cli.NewExitError(err, 1)
	}
	log, _, logCloser, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer func() {
		_ = log.Sync()
		if logCloser != nil {
			_ = logCloser()
		}
	}()

	p, err := NewWithConfig(os.Exit, &readline.Config{
		HistoryFile: ctx.String("history"),
	}, cfg.Client, log)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer p.Close()
	if err := p.Run(); err != nil {
		return cli.NewExitError(err, 1)
	}
	return nil
}
