package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Versifine/portfwd/internal/config"
	"github.com/Versifine/portfwd/internal/logger"
	"github.com/Versifine/portfwd/internal/proxy"
)

const longHelp = `portfwd forwards connections from a local IPv4 TCP port to another
port on the loopback interface until you terminate it with Ctrl+C.

Ports may also come from a YAML file (--config) or from PORTFWD_*
environment variables, optionally loaded from --envfile.`

const example = `  # forward TCP connections from port 1111 to 127.0.0.1:52527
  portfwd 1111 52527

  # expose a service on another loopback-bound address
  portfwd --target-host 127.0.0.2 8080 80`

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

type options struct {
	configPath  string
	envFile     string
	listenHost  string
	targetHost  string
	backlog     int
	dialTimeout time.Duration
	idleTimeout time.Duration
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(serve)
}

// buildRootCmd wires flags and config resolution to start.
func buildRootCmd(start func(context.Context, *config.Config) error) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "portfwd [flags] <fromPort> <toPort>",
		Short:         "Forward a local IPv4 TCP port to a loopback port",
		Long:          longHelp,
		Example:       example,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return start(cmd.Context(), cfg)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&opts.envFile, "envfile", ".env", "env file with PORTFWD_* overrides, ignored if missing")
	f.StringVar(&opts.listenHost, "listen-host", "", "IPv4 address to bind (default 0.0.0.0)")
	f.StringVar(&opts.targetHost, "target-host", "", "IPv4 address to forward to (default 127.0.0.1)")
	f.IntVar(&opts.backlog, "backlog", proxy.DefaultBacklog, "listen backlog")
	f.DurationVar(&opts.dialTimeout, "dial-timeout", 0, "timeout for connecting to the target (0 = OS default)")
	f.DurationVar(&opts.idleTimeout, "idle-timeout", 0, "close a connection after this long without data (0 = never)")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "", "auto, console, text or json")
	return cmd
}

// resolveConfig layers defaults, config file, environment, flags and
// positional ports, in that order.
func resolveConfig(cmd *cobra.Command, opts *options, args []string) (*config.Config, error) {
	if len(args) != 0 && len(args) != 2 {
		return nil, &usageError{msg: fmt.Sprintf("expected <fromPort> <toPort>, got %d argument(s)", len(args))}
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &usageError{msg: fmt.Sprintf("load %s: %v", opts.envFile, err)}
	}

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, &usageError{msg: fmt.Sprintf("load config: %v", err)}
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, &usageError{msg: err.Error()}
	}

	f := cmd.Flags()
	if f.Changed("listen-host") {
		cfg.Listen.Host = opts.listenHost
	}
	if f.Changed("target-host") {
		cfg.Target.Host = opts.targetHost
	}
	if f.Changed("backlog") {
		cfg.Relay.Backlog = opts.backlog
	}
	if f.Changed("dial-timeout") {
		cfg.Relay.DialTimeout = opts.dialTimeout
	}
	if f.Changed("idle-timeout") {
		cfg.Relay.IdleTimeout = opts.idleTimeout
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}

	if len(args) == 2 {
		from, err := parsePort(args[0])
		if err != nil {
			return nil, err
		}
		to, err := parsePort(args[1])
		if err != nil {
			return nil, err
		}
		cfg.Listen.Port, cfg.Target.Port = from, to
	}

	if err := cfg.Validate(); err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	return cfg, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &usageError{msg: fmt.Sprintf("invalid port %q", s)}
	}
	return n, nil
}

func serve(parent context.Context, cfg *config.Config) (err error) {
	out, closeOut, err := logOutput(cfg.Logging.File)
	if err != nil {
		return err
	}
	logCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
	}
	logger.Init(logCfg)
	defer func() {
		// main reports err on stderr after the file is gone; keep a copy in it.
		if err != nil && cfg.Logging.File != "" {
			logger.New(logCfg).Error("Failed to start forwarder", "error", err)
		}
		closeOut()
	}()

	local, err := cfg.ListenEndpoint()
	if err != nil {
		return err
	}
	target, err := cfg.TargetEndpoint()
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := proxy.NewServer(local, target, cfg.ProxyOptions())
	logEvents(server.Bus())
	return server.Start(ctx)
}

func logOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
