// Package cmd provides the CLI commands for memsync.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memsync/internal/bulk"
	"github.com/Aman-CERP/memsync/internal/config"
	"github.com/Aman-CERP/memsync/internal/engine"
	"github.com/Aman-CERP/memsync/internal/logging"
	"github.com/Aman-CERP/memsync/internal/source"
	"github.com/Aman-CERP/memsync/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the memsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memsync",
		Short: "Replicate memory records into a searchable index",
		Long: `memsync keeps a search index in sync with the primary memory store.

The primary store stays the source of truth; memsync replicates records
into versioned index generations behind a stable alias, so searches keep
working while an index is rebuilt from scratch.

Common operations:
  memsync sync -i memories          incremental replication
  memsync rebuild -i memories       fresh generation, atomic alias swap
  memsync status                    aliases, generations, document counts`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("memsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default .memsync.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.memsync/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = debugMode

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		// Logging must never make the tool unusable; fall back to stderr.
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// loadConfig resolves configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openEngine opens the search engine rooted at the configured data
// directory, creating it on first use.
func openEngine(cfg *config.Config) (*engine.Engine, error) {
	if err := os.MkdirAll(filepath.Join(cfg.Paths.DataDir, "indices"), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data directory %s: %w", cfg.Paths.DataDir, err)
	}
	return engine.New(cfg.Paths.DataDir)
}

// openSource opens the primary store.
func openSource(cfg *config.Config) (*source.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.SourceDB), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create source directory: %w", err)
	}
	return source.NewStore(cfg.Paths.SourceDB)
}

// bulkConfig maps the configured tuning onto the writer defaults.
func bulkConfig(cfg *config.Config) bulk.Config {
	bc := bulk.DefaultConfig()
	bc.BatchSize = cfg.Bulk.BatchSize
	bc.Workers = cfg.Bulk.Workers
	bc.Retry.MaxRetries = cfg.Bulk.MaxRetries
	return bc
}
