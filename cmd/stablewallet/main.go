package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/bitcoindance/stablewallet/checklink"
	"github.com/bitcoindance/stablewallet/stclient"
	"github.com/btcsuite/btclog"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[stablewallet] %v\n", err)
	os.Exit(1)
}

// actionDecorator wraps a command action so failures exit with a uniform
// error rendering.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		if err := f(ctx); err != nil {
			fatal(err)
		}

		return nil
	}
}

// getWallet builds a wallet from the global options of the CLI context.
func getWallet(ctx *cli.Context) (*checklink.Wallet, error) {
	entropy, err := hex.DecodeString(ctx.GlobalString("entropy"))
	if err != nil {
		return nil, fmt.Errorf("entropy must be hex: %w", err)
	}

	client := stclient.New(&stclient.Config{
		Peers:       ctx.GlobalStringSlice("peer"),
		Development: ctx.GlobalBool("dev"),
	})

	return checklink.NewWallet(&checklink.Config{
		Entropy:  entropy,
		Client:   client,
		LinkBase: ctx.GlobalString("linkbase"),
	})
}

// setupLoggers routes the library subsystem loggers to stderr at the
// requested level.
func setupLoggers(level string) error {
	logLevel, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	backend := btclog.NewBackend(os.Stderr)

	for _, subsystem := range []struct {
		tag string
		use func(btclog.Logger)
	}{
		{"STCL", stclient.UseLogger},
		{"CHLK", checklink.UseLogger},
	} {
		logger := backend.Logger(subsystem.tag)
		logger.SetLevel(logLevel)
		subsystem.use(logger)
	}

	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "stablewallet"
	app.Version = "0.1.0"
	app.Usage = "command line wallet for the Stable Network ledger"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "entropy",
			Usage: "The hex encoded root secret of the wallet " +
				"(16 or 32 bytes).",
			EnvVar: "STABLEWALLET_ENTROPY",
		},
		cli.StringSliceFlag{
			Name: "peer",
			Usage: "The host[:port] of a ledger node. May be " +
				"specified multiple times; each request " +
				"picks one at random.",
		},
		cli.BoolFlag{
			Name: "dev",
			Usage: "Talk plain HTTP to a local development " +
				"node instead of HTTPS to mainnet.",
		},
		cli.StringFlag{
			Name:  "linkbase",
			Usage: "The origin rendered into share links.",
			Value: checklink.DefaultLinkBase,
		},
		cli.StringFlag{
			Name: "debuglevel",
			Usage: "Logging level for the wallet subsystems " +
				"{trace, debug, info, warn, error, critical, " +
				"off}.",
			Value: "off",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		return setupLoggers(ctx.GlobalString("debuglevel"))
	}
	app.Commands = []cli.Command{
		newEntropyCommand,
		addressCommand,
		balanceCommand,
		sendCommand,
		withdrawCommand,
		claimCommand,
		issueLinkCommand,
		issueCheckCommand,
		sweepCommand,
		watchCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
