// Package main provides the bibreview CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matsen/bibreview/internal/config"
	"github.com/matsen/bibreview/internal/importer"
	"github.com/matsen/bibreview/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	// verbose enables debug logging
	verbose bool

	logger    = zap.NewNop()
	globalCfg = &config.GlobalConfig{}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bibreview",
	Short: "Reviewed bibliography CLI",
	Long: `bibreview imports BibReview XML bibliographies and queries them.

A base holds a tag tree and references, each with a review history.
Imports are stored in git-versionable JSONL with an ephemeral SQLite
cache for queries. All commands output JSON by default.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}

// setup loads .env and the global config, then builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithError(ExitConfigError, "loading global config: %v", err)
	}
	globalCfg = cfg

	logger, err = newLogger(verbose, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newLogger builds a production logger on stderr. verbose wins over level.
func newLogger(verbose bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// importOptions configures the importer from the global config.
func importOptions() []importer.Option {
	opts := []importer.Option{importer.WithLogger(logger)}
	if globalCfg.MaxDepth > 0 {
		opts = append(opts, importer.WithMaxDepth(globalCfg.MaxDepth))
	}
	return opts
}

// mustFindRepository finds and validates the repository, exits on error.
// Returns the repository root path.
func mustFindRepository() string {
	repoRoot, err := config.LocateRepository()
	if err != nil {
		logger.Debug("repository lookup failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		os.Exit(ExitConfigError)
	}
	return repoRoot
}

// mustOpenDatabase opens the SQLite cache, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(repoRoot string) *storage.DB {
	if err := os.MkdirAll(config.CachePath(repoRoot), 0755); err != nil {
		exitWithError(ExitError, "creating cache directory: %v", err)
	}
	db, err := storage.OpenDB(config.DBPath(repoRoot))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig(repoRoot string) *config.Config {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustReadSnapshot reads the stored base records, exits if nothing has been
// imported yet.
func mustReadSnapshot(repoRoot string) storage.Snapshot {
	if !config.HasBase(repoRoot) {
		exitWithError(ExitNotFound, "no base imported yet\n\nRun 'bibreview import <file.xml>' first.")
	}
	s, err := storage.ReadSnapshot(config.StorageFiles(repoRoot))
	if err != nil {
		exitWithError(ExitDataError, "reading base: %v", err)
	}
	return s
}
