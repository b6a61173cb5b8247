// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// privbridge runs the privilege-separation bridge: it holds the single
// loopback connection to the privileged network peer and routes HTTP
// and WebSocket operations between local callers and that peer.
//
// Daemon mode (default) connects to the peer, serves Prometheus metrics
// if configured, and runs until SIGINT or SIGTERM. A peer that is down
// at startup is not fatal; operations fail individually until it comes
// back.
//
// Fetch mode (--fetch URL) performs one HTTP request through the peer,
// streams the response body to stdout, and exits non-zero if the peer
// reports an error or the timeout expires.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/privbridge/bridge"
	"github.com/bureau-foundation/privbridge/lib/clock"
	"github.com/bureau-foundation/privbridge/lib/config"
	"github.com/bureau-foundation/privbridge/lib/metrics"
	"github.com/bureau-foundation/privbridge/lib/process"
	"github.com/bureau-foundation/privbridge/lib/version"
	"github.com/bureau-foundation/privbridge/provider"
	"github.com/bureau-foundation/privbridge/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// options holds the parsed command line.
type options struct {
	configPath    string
	peer          string
	metricsListen string
	logFormat     string
	verbose       bool
	showVersion   bool

	fetchURL string
	method   string
	headers  []string
	data     string
	timeout  time.Duration
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("privbridge", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.peer, "peer", "", "peer address, overriding peer.address (must be loopback)")
	flagSet.StringVar(&opts.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	flagSet.StringVar(&opts.fetchURL, "fetch", "", "perform one HTTP request through the peer and print the body")
	flagSet.StringVar(&opts.method, "method", "GET", "HTTP method for --fetch")
	flagSet.StringArrayVar(&opts.headers, "header", nil, "request header as Name=Value for --fetch (repeatable)")
	flagSet.StringVar(&opts.data, "data", "", "request body for --fetch")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for --fetch")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := newFlagSet(&opts)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "privbridge %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bridgeMetrics := metrics.New(registry)
	if err := bridgeMetrics.Register(); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	client := &transport.Client{
		Address:        cfg.Peer.Address,
		DialTimeout:    cfg.Peer.DialTimeout,
		MaxFrameLength: cfg.Peer.MaxFrameLength,
		Logger:         logger,
		Metrics:        bridgeMetrics,
		Clock:          clock.Real(),
	}
	if cfg.Peer.Redial.Enabled && opts.fetchURL == "" {
		client.Redial = &transport.RedialPolicy{
			InitialDelay: cfg.Peer.Redial.InitialDelay,
			MaxDelay:     cfg.Peer.Redial.MaxDelay,
		}
	}
	b := bridge.New(client, bridge.Options{
		Logger:    logger,
		Providers: &provider.Registry{Logger: logger},
		Metrics:   bridgeMetrics,
		GenericErrorHandler: func(err *bridge.CallbackError) {
			logger.Warn("caller went away", "id", err.ID, "kind", err.Kind.String(), "error", err.Err)
		},
	})
	client.Delegate = b
	defer func() {
		client.Close()
		b.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.fetchURL != "" {
		return runFetch(ctx, client, b, opts, stdout, logger)
	}
	return runDaemon(ctx, cfg, client, registry, logger)
}

// loadConfig reads --config, else $PRIVBRIDGE_CONFIG, else uses the
// defaults, and then applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.peer != "" {
		cfg.Peer.Address = opts.peer
	}
	if opts.metricsListen != "" {
		cfg.Metrics.ListenAddress = opts.metricsListen
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Per-frame events are at Debug,
// so the default Info level shows only lifecycle and failures.
func newLogger(logConfig config.LogConfig, output io.Writer) *slog.Logger {
	var level slog.Level
	switch logConfig.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOptions := &slog.HandlerOptions{Level: level}
	if logConfig.Format == "json" {
		return slog.New(slog.NewJSONHandler(output, handlerOptions))
	}
	return slog.New(slog.NewTextHandler(output, handlerOptions))
}

// runDaemon connects to the peer and blocks until ctx is canceled.
func runDaemon(ctx context.Context, cfg *config.Config, client *transport.Client, registry *prometheus.Registry, logger *slog.Logger) error {
	var server *http.Server
	if cfg.Metrics.ListenAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server = &http.Server{
			Addr:              cfg.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("serving metrics", "address", cfg.Metrics.ListenAddress)
	}

	if err := client.Connect(ctx); err != nil {
		logger.Warn("peer unavailable; operations will fail until it is reachable", "error", err)
	}
	logger.Info("privbridge running",
		"version", version.Info(),
		"environment", cfg.Environment,
		"peer", cfg.Peer.Address,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if server != nil {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownContext); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(output, `privbridge - bridge unprivileged callers to the privileged network peer

USAGE
    privbridge [flags]
    privbridge --fetch URL [--method M] [--header Name=Value]... [--data BODY]

FLAGS
%s
EXAMPLES
    # Run the bridge against the default peer (127.0.0.1:1720)
    privbridge --config /etc/privbridge.yaml

    # Check that the peer can reach a URL
    privbridge --fetch https://example.com --timeout 10s
`, flagSet.FlagUsages())
}
