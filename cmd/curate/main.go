// Command curate discovers longitudinal imaging sessions, stages their
// artifacts under canonical names, and drives the per-unit processing
// pipeline over the staged tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mriqsm/curate/internal/config"
)

// version is set by goreleaser at build time.
var version = "dev"

var (
	verbose bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "curate",
	Short: "Stage and process longitudinal imaging datasets",
	Long: `curate walks a study root laid out as subject/session directories,
selects one session per subject, stages its artifacts under canonical
filenames, and runs the external processing pipeline over each staged
unit. Configuration is read from curate.yml in the working directory
when present.`,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Args have validated by now; later errors are real failures, not
		// usage mistakes.
		cmd.SilenceUsage = true

		var err error
		cfg, err = config.Load(".")
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if verbose || cfg.Verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
