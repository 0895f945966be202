package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opd-ai/meshcall/config"
	"github.com/opd-ai/meshcall/internal/sandbox"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds the command-line overrides.
type CLIConfig struct {
	addr            string
	logLevel        string
	logFormat       string
	nodes           string
	shutdownTimeout time.Duration
	help            bool
}

// parseCLIFlags parses args into a CLIConfig. Empty string flags leave the
// environment value in place.
func parseCLIFlags(args []string, output io.Writer) (*CLIConfig, *flag.FlagSet, error) {
	cli := &CLIConfig{}
	fs := flag.NewFlagSet("meshcall", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cli.addr, "addr", "", "HTTP listen address (default: $MESHCALL_HTTP_ADDR or :8080)")
	fs.StringVar(&cli.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&cli.logFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&cli.nodes, "nodes", "", "Comma-separated identities to create at startup")
	fs.DurationVar(&cli.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Grace period for in-flight requests")
	fs.BoolVar(&cli.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return cli, fs, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "meshcall sandbox")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Hosts call controllers on a simulated network behind an HTTP API.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options]\n", fs.Name())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// applyCLIConfig overlays the flags on cfg and validates the result.
func applyCLIConfig(cfg config.Config, cli *CLIConfig) (config.Config, error) {
	if cli.addr != "" {
		cfg.HTTPAddr = cli.addr
	}
	if cli.logLevel != "" {
		cfg.LogLevel = strings.ToLower(cli.logLevel)
	}
	if cli.logFormat != "" {
		cfg.LogFormat = cli.logFormat
	}
	if cli.shutdownTimeout <= 0 {
		return cfg, fmt.Errorf("%w: shutdown timeout must be positive", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// seedNodes splits the -nodes flag.
func seedNodes(list string) []string {
	var out []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// setupSignalHandling cancels ctx on interrupt or termination.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Info("Received signal, shutting down")
		cancel()
	}()
}

func run(ctx context.Context, cfg config.Config, cli *CLIConfig) error {
	sb := sandbox.New(cfg, nil)
	defer func() {
		if err := sb.Close(); err != nil {
			logrus.WithError(err).Warn("Sandbox did not close cleanly")
		}
	}()

	for _, id := range seedNodes(cli.nodes) {
		if _, err := sb.AddNode(ctx, id, ""); err != nil {
			return fmt.Errorf("seed node: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           sandbox.NewHandler(sb).NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"addr":     cfg.HTTPAddr,
		}).Info("Sandbox listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func main() {
	cli, fs, err := parseCLIFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if cli.help {
		printUsage(os.Stdout, fs)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg, err = applyCLIConfig(cfg, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Use -help for usage information.")
		os.Exit(1)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := run(ctx, cfg, cli); err != nil {
		logrus.WithError(err).Error("Sandbox stopped")
		cancel()
		os.Exit(1)
	}
}
