// Package faultgraph implements the CLI: extract runs the pipeline over a
// manual, dedupe runs the post-ingest deduplication pass, export rewrites
// the import files from a checkpoint.
package faultgraph

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/faultgraph/faultgraph/pkg/config"
	"github.com/faultgraph/faultgraph/pkg/logger"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "faultgraph",
	Short: "Build troubleshooting knowledge graphs from technical manuals",
	Long: `Faultgraph extracts a knowledge graph from troubleshooting manuals using an LLM.

The pipeline windows a document into overlapping chunks, extracts entities,
events, and concepts from each chunk, merges them into a growing graph, and
checkpoints progress so interrupted runs resume where they left off. A
separate dedupe pass collapses duplicate nodes with an LLM judge.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and builds the logger, applying the global
// flag overrides.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log := logger.NewWithWriter(os.Stderr, logger.ParseLevel(cfg.Log.Level))
	return cfg, log, nil
}
