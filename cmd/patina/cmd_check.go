package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"patina/internal/rewrite"
)

var checkBackend string

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Validate spec directives without rewriting anything",
	Long: `Parses and validates every //patina:spec directive, including the
checks the instrumentation step would perform (result arity, capture
aliases), and reports diagnostics. No file is modified.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkBackend, "backend", "", "Check backend to validate against (default: config)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	be, err := resolveBackend(checkBackend)
	if err != nil {
		return err
	}
	opts := rewrite.Options{Backend: be, AliasPrefix: cfg.AliasPrefix, Log: logger}

	files, err := collectGoFiles(args)
	if err != nil {
		return err
	}

	annotated, bad := 0, 0
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		res, err := rewrite.File(path, src, opts)
		if err != nil {
			return err
		}
		annotated += res.Annotated
		bad += len(res.Diagnostics)
		for _, d := range res.Diagnostics {
			fmt.Fprintln(os.Stderr, d)
		}
	}

	logger.Debug("check complete",
		zap.Int("files", len(files)),
		zap.Int("annotated", annotated),
		zap.Int("errors", bad))
	if bad > 0 {
		return fmt.Errorf("%d spec error(s) in %d annotated function(s)", bad, annotated)
	}
	fmt.Printf("%d annotated function(s) ok\n", annotated)
	return nil
}
