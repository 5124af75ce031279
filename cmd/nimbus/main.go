// X1-Nimbus: host runtime for smart programs.
//
// This is the main entry point. It runs a dev node (gateway plus block
// producer), executes one-shot calls against a data directory or a remote
// gateway, and manages state snapshots.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fortiblox/X1-Nimbus/pkg/config"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Global flags
var (
	configPath string
	dataDir    string
	backend    string
	logLevel   string
	logFormat  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nimbus",
		Short: "X1-Nimbus smart program runtime",
		Long: `X1-Nimbus executes native smart programs against a persistent world
state and serves them over an HTTP and gRPC gateway.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	pf.StringVar(&dataDir, "data-dir", "", "Data directory (overrides the config file)")
	pf.StringVar(&backend, "backend", "", "State backend: memory, badger, leveldb")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "console", "Log format: console, json")

	rootCmd.AddCommand(
		newServeCmd(),
		newCallCmd(),
		newStateCmd(),
		newSnapshotCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global flags.
func newLogger(out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", logLevel)
	}

	switch logFormat {
	case "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", logFormat)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// loadConfig reads the configuration file, if any, and applies the global
// flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("backend") {
		cfg.Backend.Kind = backend
	}
	return cfg, cfg.Validate()
}

// openWorld opens the configured world state without genesis or
// deployments.
func openWorld(cfg *config.Config, logger zerolog.Logger) (*state.World, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	b, err := state.Open(cfg.BackendConfig())
	if err != nil {
		return nil, err
	}
	return state.NewWorld(b, logger), nil
}
