package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"patina/internal/rewrite"
	"patina/internal/specfmt"
)

var (
	fmtWrite bool
	fmtCheck bool
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [paths...]",
	Short: "Canonically format spec directives",
	Long: `Reformats every //patina:spec directive: normalized spacing, and a
one-clause-per-line layout when a spec exceeds the width limit. Formatting
is idempotent and never changes what a spec means; the rest of the file is
left untouched.`,
	RunE: runFmt,
}

func init() {
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "Rewrite files in place")
	fmtCmd.Flags().BoolVar(&fmtCheck, "check", false, "List files whose directives need formatting; exit nonzero if any")
}

func runFmt(cmd *cobra.Command, args []string) error {
	fcfg := specfmt.Config{
		MaxWidth:      cfg.Fmt.MaxWidth,
		Indent:        cfg.Fmt.Indent,
		TrailingComma: cfg.Fmt.TrailingComma,
		Reorder:       cfg.Fmt.Reorder,
	}

	files, err := collectGoFiles(args)
	if err != nil {
		return err
	}

	unformatted, bad := 0, 0
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		res, err := rewrite.FormatFile(path, src, fcfg)
		if err != nil {
			return err
		}
		bad += len(res.Diagnostics)
		for _, d := range res.Diagnostics {
			fmt.Fprintln(os.Stderr, d)
		}
		if !res.Changed {
			continue
		}
		unformatted++

		switch {
		case fmtCheck:
			fmt.Println(path)
		case fmtWrite:
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, res.Output, fi.Mode().Perm()); err != nil {
				return err
			}
		default:
			os.Stdout.Write(res.Output)
		}
	}

	if bad > 0 {
		return fmt.Errorf("%d unformattable directive(s)", bad)
	}
	if fmtCheck && unformatted > 0 {
		return fmt.Errorf("%d file(s) need formatting", unformatted)
	}
	return nil
}
