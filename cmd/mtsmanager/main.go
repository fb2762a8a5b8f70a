// Package main implements mtsmanager, which runs one mts process: the
// components, proxies and connections declared in its configuration, plus
// the inspection gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/c360/mtscore/classregister"
	"github.com/c360/mtscore/componentregistry"
	"github.com/c360/mtscore/config"
	"github.com/c360/mtscore/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mtsmanager"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, logger, shouldExit, err := initializeCLI(args, stdout, stderr)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if cli.Validate {
		logger.Info("Configuration is valid",
			"components", len(cfg.Components), "connections", len(cfg.Connections))
		return nil
	}

	proc, err := service.Build(ctx, cfg, service.Dependencies{Logger: logger})
	if err != nil {
		return fmt.Errorf("build process: %w", err)
	}

	if cli.Dot {
		defer func() { _ = proc.Stop(cfg.Manager.ShutdownTimeout.D()) }()
		return proc.Manager().WriteDot(stdout)
	}

	logger.Info("Starting process", "process", cfg.Process.Name, "config", cli.ConfigPaths)
	if err := proc.Run(ctx); err != nil {
		return fmt.Errorf("run process: %w", err)
	}
	logger.Info("Process shutdown complete")
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string, stdout, stderr io.Writer) (*CLIConfig, *slog.Logger, bool, error) {
	cli, err := parseFlags(args)
	if err != nil {
		printDetailedHelp(stderr)
		return nil, nil, true, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return nil, nil, true, fmt.Errorf("invalid flags: %w", err)
	}

	switch {
	case cli.ShowVersion:
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil, nil, true, nil
	case cli.ShowHelp:
		printDetailedHelp(stdout)
		return nil, nil, true, nil
	case cli.ShowClasses:
		return nil, nil, true, printClasses(stdout)
	}

	// DOT goes to stdout, so logs move out of its way.
	logOut := stdout
	if cli.Dot {
		logOut = stderr
	}
	logger := setupLogger(logOut, cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)
	return cli, logger, false, nil
}

// loadConfig layers every config file, then applies the flag overrides.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cli.ConfigPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cli.HTTPAddr != "" {
		cfg.HTTP.Addr = cli.HTTPAddr
	}
	if cli.ShutdownTimeout > 0 {
		cfg.Manager.ShutdownTimeout = config.Duration(cli.ShutdownTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printClasses(w io.Writer) error {
	reg := classregister.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := componentregistry.Register(reg); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CLASS\tTYPE\tDESCRIPTION")
	for _, ci := range reg.Describe() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", ci.Name, ci.Type, ci.Description)
	}
	_, _ = fmt.Fprintln(tw, "\nPROXY PROFILE")
	for _, name := range componentregistry.ProfileNames() {
		_, _ = fmt.Fprintln(tw, name)
	}
	return tw.Flush()
}
