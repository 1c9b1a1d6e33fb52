// Gray Logic Things - device discovery and state mirroring runner.
//
// The runner discovers devices through the bridges named in a binding
// catalog, turns each into a Thing, and mirrors Thing state through the
// configured record stores (memory, SQLite, Redis, MQTT, InfluxDB).
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/things.yaml"
	defaultEnvFile    = ".env"
)

var (
	configPath string
	envFile    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graylogic-things",
		Short:         "Discover devices and mirror their state through record stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithSignals(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config; missing files are skipped")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the runner until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithSignals(cmd.Context())
			},
		},
		newBindingsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "graylogic-things %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)
	return root
}

// runWithSignals runs until SIGINT or SIGTERM.
func runWithSignals(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return run(ctx)
}

// loadEnvFile loads path into the environment. Variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// getConfigPath returns the --config flag, then GRAYLOGIC_CONFIG, then
// the default path.
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
