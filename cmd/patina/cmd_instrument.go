package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"patina/internal/rewrite"
	"patina/internal/watch"
)

var (
	instrumentWrite   bool
	instrumentBackend string
	instrumentWatch   bool
)

var instrumentCmd = &cobra.Command{
	Use:   "instrument [paths...]",
	Short: "Rewrite annotated functions with contract checks",
	Long: `Rewrites every function carrying a //patina:spec directive so its
contract is checked at run time. Without --write the instrumented source
goes to stdout; with --write files are updated in place. Instrumenting an
already instrumented file is a no-op.

With --watch, patina keeps running and reinstruments files as they change.`,
	RunE: runInstrument,
}

func init() {
	instrumentCmd.Flags().BoolVarP(&instrumentWrite, "write", "w", false, "Rewrite files in place")
	instrumentCmd.Flags().StringVar(&instrumentBackend, "backend", "", "Check backend: panic, report, or off (default: config)")
	instrumentCmd.Flags().BoolVar(&instrumentWatch, "watch", false, "Watch for changes and reinstrument (implies --write)")
}

func runInstrument(cmd *cobra.Command, args []string) error {
	be, err := resolveBackend(instrumentBackend)
	if err != nil {
		return err
	}
	opts := rewrite.Options{Backend: be, AliasPrefix: cfg.AliasPrefix, Log: logger}

	files, err := collectGoFiles(args)
	if err != nil {
		return err
	}

	write := instrumentWrite || instrumentWatch
	bad, err := instrumentFiles(cmd.Context(), files, opts, write)
	if err != nil {
		return err
	}

	if instrumentWatch {
		return watchAndInstrument(cmd.Context(), args, opts)
	}
	if bad > 0 {
		return fmt.Errorf("%d file(s) with spec errors", bad)
	}
	return nil
}

// instrumentFiles processes the batch, concurrently when writing in place,
// serially when streaming to stdout. It returns how many files had spec
// errors.
func instrumentFiles(ctx context.Context, files []string, opts rewrite.Options, write bool) (int, error) {
	var mu sync.Mutex
	bad := 0

	process := func(path string) error {
		diags, err := instrumentOne(path, opts, write)
		if err != nil {
			return err
		}
		if diags > 0 {
			mu.Lock()
			bad++
			mu.Unlock()
		}
		return nil
	}

	if !write {
		for _, path := range files {
			if err := process(path); err != nil {
				return bad, err
			}
		}
		return bad, nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, path := range files {
		path := path
		g.Go(func() error { return process(path) })
	}
	return bad, g.Wait()
}

// instrumentOne rewrites a single file and returns its diagnostic count.
func instrumentOne(path string, opts rewrite.Options, write bool) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	res, err := rewrite.File(path, src, opts)
	if err != nil {
		return 0, err
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, d)
	}

	if !res.Changed {
		return len(res.Diagnostics), nil
	}
	if write {
		fi, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(path, res.Output, fi.Mode().Perm()); err != nil {
			return 0, err
		}
		logger.Info("instrumented", zap.String("file", path), zap.Int("annotated", res.Annotated))
	} else {
		os.Stdout.Write(res.Output)
	}
	return len(res.Diagnostics), nil
}

// watchAndInstrument reinstruments files as they change until interrupted.
func watchAndInstrument(ctx context.Context, args []string, opts rewrite.Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	roots := args
	if len(roots) == 0 {
		roots = []string{"."}
	}

	var watchers []*watch.Watcher
	for _, root := range roots {
		fi, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			continue
		}
		w, err := watch.New(root, logger, func(paths []string) {
			for _, path := range paths {
				if _, err := instrumentOne(path, opts, true); err != nil {
					logger.Error("reinstrumenting", zap.String("file", path), zap.Error(err))
				}
			}
		})
		if err != nil {
			return err
		}
		w.Start(ctx)
		watchers = append(watchers, w)
	}
	if len(watchers) == 0 {
		return fmt.Errorf("--watch needs at least one directory argument")
	}

	logger.Info("watching for changes", zap.Strings("roots", roots))
	<-ctx.Done()
	for _, w := range watchers {
		w.Stop()
	}
	return nil
}
