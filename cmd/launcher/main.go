package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ledgersim/launcher/launcher"
)

const interfaceVersionEnv = "LAUNCHER_INTERFACE_VERSION"

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	cfg, outcome, err := parseArgs(argv)
	if err != nil {
		return err
	}
	if cfg == nil {
		// help or version was requested
		return nil
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if len(outcome.Tolerated) > 0 {
		log.Warnf("ignoring unknown launcher arguments: %v", outcome.Tolerated)
	}

	return launcher.New(log, cfg).Run(context.Background())
}

// parseArgs resolves the invocation under the version-gated compatibility
// rules. A nil config with a nil error means help or version output was
// produced instead of a launch.
func parseArgs(argv []string) (*launcher.Config, *launcher.CompatOutcome, error) {
	var cfg *launcher.Config
	app := newApp(&cfg)

	declared := launcher.ScanDeclaredVersion(argv[1:])
	if declared == "" {
		declared = os.Getenv(interfaceVersionEnv)
	}
	outcome, err := launcher.Resolve(declared, argv[1:], func(args []string) error {
		cfg = nil
		return app.Run(append([]string{argv[0]}, args...))
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, outcome, nil
}

func newApp(cfgOut **launcher.Config) *cli.App {
	return &cli.App{
		Name:            "ledger-launcher",
		Usage:           "starts, configures, and supervises a simulated ledger test network",
		Version:         launcher.Version,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "gateway-port",
				Usage: "Port for the instance's HTTP gateway. Defaults to a server-chosen port.",
			},
			&cli.UintFlag{
				Name:  "config-port",
				Usage: "Admin port for the server to listen on. Defaults to a server-chosen port.",
			},
			&cli.StringFlag{
				Name:  "bind",
				Usage: "IP address the server binds to.",
			},
			&cli.PathFlag{
				Name:  "state-dir",
				Usage: "Directory holding persisted network state.",
			},
			&cli.Uint64Flag{
				Name:  "artificial-delay-ms",
				Usage: "Artificial delay applied to each execution round, in milliseconds.",
			},
			&cli.StringSliceFlag{
				Name:  "subnet",
				Usage: fmt.Sprintf("Subnet kind to include in the topology. Repeatable. One of %v.", launcher.SubnetKinds),
			},
			&cli.StringSliceFlag{
				Name:  "bitcoind-addr",
				Usage: "host:port of an external bitcoin node. Repeatable.",
			},
			&cli.StringSliceFlag{
				Name:  "dogecoind-addr",
				Usage: "host:port of an external dogecoin node. Repeatable.",
			},
			&cli.BoolFlag{
				Name:  "ii",
				Usage: "Enable the bundled identity application suite.",
			},
			&cli.BoolFlag{
				Name:  "nns",
				Usage: "Enable the bundled governance application suite.",
			},
			&cli.PathFlag{
				Name:  "server-path",
				Usage: "Path to the " + launcher.ServerBinaryName + " binary. Defaults to the binary next to the launcher.",
			},
			&cli.PathFlag{
				Name:  "stdout-file",
				Usage: "Redirect the server's stdout to this file.",
			},
			&cli.PathFlag{
				Name:  "stderr-file",
				Usage: "Redirect the server's stderr to this file.",
			},
			&cli.PathFlag{
				Name:  "status-dir",
				Usage: "Write status.json into this directory once the network is ready.",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Debug logging for the launcher, full logging for the server.",
			},
			&cli.StringFlag{
				Name:    "interface-version",
				EnvVars: []string{interfaceVersionEnv},
				Usage:   "Interface compatibility version declared by the calling automation.",
			},
		},
		OnUsageError: func(_ *cli.Context, err error, _ bool) error {
			return mapUsageError(err)
		},
		Action: func(ctx *cli.Context) error {
			if ctx.Args().Len() > 0 {
				return &launcher.UnknownArgError{Arg: ctx.Args().First()}
			}
			cfg, err := configFromCLI(ctx)
			if err != nil {
				return err
			}
			*cfgOut = cfg
			return nil
		},
	}
}

// mapUsageError turns the flag package's undefined-flag error into an
// UnknownArgError so the compatibility resolver can act on the token.
func mapUsageError(err error) error {
	const prefix = "flag provided but not defined: "
	msg := err.Error()
	if i := strings.Index(msg, prefix); i >= 0 {
		return &launcher.UnknownArgError{Arg: msg[i+len(prefix):]}
	}
	return err
}

func configFromCLI(ctx *cli.Context) (*launcher.Config, error) {
	for _, name := range []string{"gateway-port", "config-port"} {
		if ctx.Uint(name) > 65535 {
			return nil, fmt.Errorf("%w: --%s out of range: %d", launcher.ErrConfiguration, name, ctx.Uint(name))
		}
	}
	var subnets []launcher.SubnetKind
	for _, s := range ctx.StringSlice("subnet") {
		kind, err := launcher.ParseSubnetKind(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", launcher.ErrConfiguration, err)
		}
		subnets = append(subnets, kind)
	}

	cfg := &launcher.Config{
		GatewayPort:      uint16(ctx.Uint("gateway-port")),
		ConfigPort:       uint16(ctx.Uint("config-port")),
		Bind:             ctx.String("bind"),
		StateDir:         ctx.Path("state-dir"),
		Subnets:          subnets,
		BitcoindAddrs:    ctx.StringSlice("bitcoind-addr"),
		DogecoindAddrs:   ctx.StringSlice("dogecoind-addr"),
		II:               ctx.Bool("ii"),
		NNS:              ctx.Bool("nns"),
		ServerPath:       ctx.Path("server-path"),
		StdoutFile:       ctx.Path("stdout-file"),
		StderrFile:       ctx.Path("stderr-file"),
		StatusDir:        ctx.Path("status-dir"),
		Verbose:          ctx.Bool("verbose"),
		InterfaceVersion: ctx.String("interface-version"),
	}
	if ctx.IsSet("artificial-delay-ms") {
		delay := ctx.Uint64("artificial-delay-ms")
		cfg.ArtificialDelayMS = &delay
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
