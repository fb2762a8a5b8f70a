package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	Debug           bool
	HTTPAddr        string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	ShowClasses     bool
	Validate        bool
	Dot             bool
}

// pathList collects a repeatable flag.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var paths pathList
	fs.Var(&paths, "config",
		"Configuration file, repeat to layer overrides (env: MTS_CONFIG, comma separated)")
	fs.Var(&paths, "c", "Shorthand for --config")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MTS_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: MTS_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MTS_LOG_FORMAT", "json"),
		"Log format: json, text (env: MTS_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("MTS_DEBUG", false),
		"Enable debug logging (env: MTS_DEBUG)")

	fs.StringVar(&cfg.HTTPAddr, "http-addr", "",
		"Gateway listen address, overrides http.addr")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("MTS_SHUTDOWN_TIMEOUT", 0),
		"Graceful shutdown timeout, overrides manager.shutdown_timeout (env: MTS_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.ShowClasses, "classes", false, "List component classes and proxy profiles and exit")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&cfg.Dot, "dot", false, "Build the process, print its connection graph in DOT and exit")

	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			cfg.ShowHelp = true
			return cfg, nil
		}
		return nil, err
	}

	cfg.ConfigPaths = paths
	if len(cfg.ConfigPaths) == 0 {
		if env := getEnv("MTS_CONFIG", ""); env != "" {
			cfg.ConfigPaths = strings.Split(env, ",")
		} else {
			cfg.ConfigPaths = []string{"configs/mts.yaml"}
		}
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.ShowClasses {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - component process manager

Usage: %s [options]

Options:
  -c, --config PATH          Configuration file (JSON or YAML), repeatable
      --log-level LEVEL      debug, info, warn, error
      --log-format FORMAT    json, text
      --debug                Shorthand for --log-level=debug
      --http-addr ADDR       Gateway listen address
      --shutdown-timeout D   Graceful shutdown timeout
      --classes              List component classes and proxy profiles
      --validate             Validate configuration and exit
      --dot                  Print the connection graph in DOT and exit
  -v, --version              Show version information
  -h, --help                 Show this help

Examples:
  # Run a process
  %s --config=configs/mts.yaml

  # Layer a site override on top of the base file
  %s -c configs/mts.yaml -c /etc/mts/site.yaml

  # Render the component graph
  %s --config=configs/mts.yaml --dot | dot -Tsvg > graph.svg

  # Environment overrides
  export MTS_NATS_ENABLED=true
  export MTS_NATS_URLS=nats://broker:4222
  %s

Version: %s
Build: %s
`, appName, appName, appName, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
