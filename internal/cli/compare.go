package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/signet/internal/compare"
	"github.com/mvp-joe/signet/internal/config"
	"github.com/mvp-joe/signet/internal/extract"
	"github.com/mvp-joe/signet/internal/report"
	"github.com/mvp-joe/signet/internal/watcher"
)

const supportedInputs = `Supported inputs:
  DLL, EXE, SYS          executables with an embedded debug signature
  PDB                    portable symbol files
  NuGet (.nupkg/.snupkg) packages, read member by member
  ZIP                    archives, read member by member
  Directory              scanned recursively for all of the above`

type compareOptions struct {
	*rootOptions
	format       string
	color        string
	watch        bool
	quiet        bool
	requireMatch bool
	workers      int
	ignore       []string
	noCache      bool
}

// flagKeys maps compare flags onto configuration keys.
var flagKeys = map[string]string{
	"format":  "output.format",
	"color":   "output.color",
	"workers": "scan.workers",
	"ignore":  "scan.ignore",
}

func newCompareCmd(root *rootOptions) *cobra.Command {
	opts := &compareOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "compare [paths...]",
		Short: "Compare the debug signatures of the given inputs",
		Long: `Read the debug signature of every input and group the inputs by signature.
All readable inputs match when they share exactly one signature.

` + supportedInputs + `

Examples:
  signet compare bin/App.dll bin/App.pdb
  signet compare --format json artifacts/
  signet compare --require-match App.1.0.0.nupkg App.1.0.0.snupkg
  signet compare --watch bin/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", string(report.FormatText), "output format: text, json or yaml")
	f.StringVar(&opts.color, "color", config.ColorAuto, "colorize text output: auto, always or never")
	f.BoolVarP(&opts.watch, "watch", "w", false, "compare again whenever an input changes")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	f.BoolVar(&opts.requireMatch, "require-match", false, "exit with status 1 unless all signatures match")
	f.IntVar(&opts.workers, "workers", runtime.NumCPU(), "number of items read concurrently")
	f.StringSliceVar(&opts.ignore, "ignore", nil, "glob patterns skipped while scanning directories")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the signature cache")

	return cmd
}

func runCompare(cmd *cobra.Command, args []string, opts *compareOptions) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	cfg, err := loadConfig(cmd, opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	color := useColor(strings.ToLower(cfg.Output.Color), out)

	var progress extract.ProgressReporter = &extract.NoOpProgressReporter{}
	if !opts.quiet && !opts.watch && isTerminal(cmd.ErrOrStderr()) {
		progress = NewCLIProgressReporter(cmd.ErrOrStderr())
	}

	engine, err := newEngine(cfg, progress, opts.logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	comparer := compare.New(engine, compare.WithLogger(opts.logger))
	unsubscribe := comparer.Subscribe(func(e compare.ItemError) {
		opts.logger.Info("item could not be read", "source", e.Source, "error", e.Message)
	})
	defer unsubscribe()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	render := func() error {
		return report.Render(out, report.Build(comparer), format, color)
	}

	if opts.watch {
		return watchAndCompare(ctx, cmd, comparer, args, render, opts)
	}

	if _, err := comparer.Add(ctx, args...); err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}
	if err := render(); err != nil {
		return err
	}

	if opts.requireMatch && !comparer.ReadingsMatched() {
		return errMismatch
	}
	return nil
}

// watchAndCompare runs the initial comparison with the watcher paused, then
// re-reads changed inputs and re-renders until ctx is cancelled.
func watchAndCompare(ctx context.Context, cmd *cobra.Command, comparer *compare.Comparer, args []string, render func() error, opts *compareOptions) error {
	w, err := watcher.NewFileWatcher(args, watcher.WithLogger(opts.logger))
	if err != nil {
		return fmt.Errorf("failed to watch inputs: %w", err)
	}
	defer w.Stop()

	w.Pause()
	err = w.Start(ctx, func(paths []string) {
		opts.logger.Debug("inputs changed", "count", len(paths))
		if _, err := comparer.Add(ctx, paths...); err != nil {
			if ctx.Err() == nil {
				opts.logger.Error("comparison failed", "error", err)
			}
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d input(s) changed, compared again:\n\n", len(paths))
		if err := render(); err != nil {
			opts.logger.Error("failed to render report", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	if _, err := comparer.Add(ctx, args...); err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}
	if err := render(); err != nil {
		return err
	}

	if !opts.quiet {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nWatching for changes (press Ctrl+C to stop)...")
	}
	w.Resume()

	<-ctx.Done()
	return nil
}

// loadConfig layers the compare flags over file and environment settings.
func loadConfig(cmd *cobra.Command, configFile string) (*config.Config, error) {
	loader := config.NewLoader(configFile, config.DefaultSearchDirs()...)
	v := loader.Viper()

	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
	}
	if cmd.Flags().Changed("no-cache") {
		v.Set("cache.enabled", false)
	}

	return loader.Load()
}

func newEngine(cfg *config.Config, progress extract.ProgressReporter, logger *slog.Logger) (*extract.Engine, error) {
	engine, err := extract.New(extract.Config{
		Workers:        cfg.Scan.Workers,
		IgnorePatterns: cfg.Scan.Ignore,
		MaxEntrySize:   cfg.MaxEntrySizeBytes(),
		CacheEnabled:   cfg.Cache.Enabled,
		CacheCapacity:  cfg.Cache.Capacity,
	}, extract.WithProgress(progress), extract.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction engine: %w", err)
	}
	return engine, nil
}

// useColor resolves the color mode for w. Auto colors terminals only and
// honors NO_COLOR.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
