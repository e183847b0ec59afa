package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crucible-ai/crucible/internal/config"
)

var (
	configFile string
	dataDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Crucible - resilient in-process event bus",
	Long: `Crucible is an event bus daemon that routes events between registered
services with filter-based subscriptions, load balancing, per-service
circuit breaking, and bounded retry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with SIGINT/SIGTERM cancellation.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Daemon data directory (default: ~/.crucible)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDataDir returns the daemon data directory, preferring the flag
// over CRUCIBLE_HOME over ~/.crucible.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("CRUCIBLE_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crucible"
	}
	return filepath.Join(home, ".crucible")
}

// loadConfig loads the effective configuration, falling back to defaults
// when no config file exists.
func loadConfig() (*config.Config, error) {
	dir := resolveDataDir()
	path := configFile
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}

	cfg, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	cfg.Core.DataDir = dir
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
