// Package cli implements the signet command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// errMismatch is returned by --require-match when the inputs disagree. The
// report has already been printed, so Execute only sets the exit status.
var errMismatch = errors.New("debug signatures do not match")

type rootOptions struct {
	configFile string
	verbose    bool
	logger     *slog.Logger
}

// NewRootCmd builds the signet command tree. Running signet with paths and no
// subcommand is the same as signet compare.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{logger: slog.New(slog.DiscardHandler)}

	cmd := &cobra.Command{
		Use:   "signet [paths...]",
		Short: "Check that executables and symbol files come from the same build",
		Long: `Signet reads the debug signature embedded in executables, portable symbol
files and the packages that carry them, and reports whether they all belong to
the same build.

` + supportedInputs,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is <user config dir>/signet/signet.yml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	compareCmd := newCompareCmd(opts)
	cmd.AddCommand(compareCmd, newMCPCmd(opts), newVersionCmd())

	// Bare "signet a.dll a.pdb" compares, sharing the compare flags
	cmd.Flags().AddFlagSet(compareCmd.Flags())
	cmd.RunE = compareCmd.RunE

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errMismatch) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// newLogger writes text logs to w: warnings by default, everything with
// --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
