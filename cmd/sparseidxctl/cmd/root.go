package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/internal/logging"
)

var (
	indexPath string
	debugMode bool

	loggingCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "sparseidxctl",
	Short: "Operate a sparse-vector inverted-index directory",
	Long: `sparseidxctl creates, fills, commits, and searches a sparse-vector
inverted-index directory from the command line — the same engine
embedded by pkg/sparseindex, driven here as a standalone tool.`,
	SilenceUsage:      true,
	PersistentPreRunE: startLogging,
	PersistentPostRunE: func(c *cobra.Command, args []string) error {
		if loggingCleanup != nil {
			loggingCleanup()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&indexPath, "path", ".", "index directory")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.sparse-index/logs/")
}

// startLogging wires debug-mode structured logging into the rotating file
// writer used across every subcommand, per the --debug flag.
func startLogging(c *cobra.Command, args []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}
