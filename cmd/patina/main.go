// Command patina instruments Go source files with runtime contract checks
// declared in //patina:spec directives.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"patina/internal/config"
	"patina/internal/instrument"
)

var (
	// Global flags
	verbose bool
	cfgPath string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "patina",
	Short: "patina - contract annotations for Go",
	Long: `patina rewrites annotated Go functions so their contracts are
checked at run time.

A contract lives in the function's doc comment:

	//patina:spec requires: x >= 0, captures: x, ensures: output == old_x + 1
	func Increment(x int) int {
		return x + 1
	}

Clauses appear in the order requires, maintains, captures, binds, ensures.
The backend decides what a failed check does: panic (default), report to
stderr, or off.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
		} else {
			cfg, err = config.Discover(".")
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: discover .patina.yaml upward)")

	rootCmd.AddCommand(instrumentCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(tryCmd)
}

// resolveBackend maps the flag, or failing that the config, to a backend.
func resolveBackend(flagValue string) (instrument.Backend, error) {
	if flagValue != "" {
		return instrument.ForName(flagValue)
	}
	return instrument.ForName(cfg.Backend)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
