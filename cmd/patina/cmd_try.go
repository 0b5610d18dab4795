package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"patina/internal/rewrite"
	"patina/internal/sandbox"
)

var (
	tryBackend string
	tryTimeout time.Duration
)

var tryCmd = &cobra.Command{
	Use:   "try [file] [expression]",
	Short: "Instrument a file and evaluate an expression against it",
	Long: `Instruments the file in memory and evaluates the expression in an
embedded interpreter, so a contract can be exercised without building
anything. A failed check surfaces as an error.

Example:
  patina try counter.go 'Increment(5)'`,
	Args: cobra.ExactArgs(2),
	RunE: runTry,
}

func init() {
	tryCmd.Flags().StringVar(&tryBackend, "backend", "", "Check backend: panic, report, or off (default: config)")
	tryCmd.Flags().DurationVar(&tryTimeout, "timeout", 5*time.Second, "Evaluation timeout")
}

func runTry(cmd *cobra.Command, args []string) error {
	be, err := resolveBackend(tryBackend)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	res, err := rewrite.File(args[0], src, rewrite.Options{
		Backend:     be,
		AliasPrefix: cfg.AliasPrefix,
		Log:         logger,
	})
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, d)
	}
	if len(res.Diagnostics) > 0 {
		return fmt.Errorf("%d spec error(s)", len(res.Diagnostics))
	}

	ctx := cmd.Context()
	if tryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tryTimeout)
		defer cancel()
	}

	out, err := sandbox.NewRunner().Run(ctx, string(res.Output), args[1])
	if out.Stdout != "" {
		os.Stdout.WriteString(out.Stdout)
	}
	if out.Stderr != "" {
		os.Stderr.WriteString(out.Stderr)
	}
	if err != nil {
		return err
	}
	if out.Value != "" {
		fmt.Println(out.Value)
	}
	return nil
}
