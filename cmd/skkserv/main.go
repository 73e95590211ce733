// Command skkserv serves relative-date conversions over the skkserv protocol.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/Zereker/skkserv"
	"github.com/Zereker/skkserv/config"
	"github.com/Zereker/skkserv/converter"
)

const defaultConfigPath = "/etc/skkserv.toml"

type flags struct {
	configPath  string
	listen      string
	port        int
	verbose     int
	showVersion bool
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "skkserv: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	var f flags

	flagSet := pflag.NewFlagSet(skkserv.Name, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to TOML config file (default "+defaultConfigPath+" if present)")
	flagSet.StringVarP(&f.listen, "listen", "l", "", "address to listen on, overrides the config file")
	flagSet.IntVarP(&f.port, "port", "p", config.DefaultPort, "port to listen on")
	flagSet.CountVarP(&f.verbose, "verbose", "v", "log requests and responses (debug level)")
	flagSet.BoolVar(&f.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, errors.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if !flagSet.Changed("port") {
		f.port = -1
	}

	return &f, nil
}

func loadConfig(f *flags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.LoadIfExists(defaultConfigPath)
	}
	if err != nil {
		return nil, err
	}

	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.port >= 0 {
		if err := cfg.SetPort(f.port); err != nil {
			return nil, err
		}
	}
	if f.verbose > 0 {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}

func run(args []string, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if f.showVersion {
		fmt.Fprintf(stderr, "%s %s\n", skkserv.Name, skkserv.Version)
		return nil
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conv := converter.New(
		converter.WithFormats(cfg.Converter.Formats...),
		converter.WithCache(cfg.Converter.CacheTTL, cfg.Converter.CacheCapacity),
	)
	defer conv.Close()

	server, err := skkserv.Listen(cfg.Listen,
		skkserv.ServerLoggerOption(logger),
		skkserv.ServerShutdownTimeoutOption(cfg.ShutdownTimeout),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	dispatcher := skkserv.NewDispatcher(conv.Lookup)
	sessions := skkserv.NewSessions(
		skkserv.OnRequestOption(dispatcher.Dispatch),
		skkserv.LoggerOption(logger),
		skkserv.IdleTimeoutOption(cfg.IdleTimeout),
		skkserv.MessageMaxSize(cfg.MaxRequestSize),
	)

	logger.Debug("configuration", "listen", cfg.Listen, "formats", cfg.Converter.Formats)

	err = server.Serve(ctx, sessions)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}
