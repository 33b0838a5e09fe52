package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/signet/internal/extract"
)

// CLIProgressReporter implements progress reporting with a progress bar.
type CLIProgressReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a reporter that draws on w.
func NewCLIProgressReporter(w io.Writer) *CLIProgressReporter {
	return &CLIProgressReporter{w: w}
}

func (c *CLIProgressReporter) OnDiscoveryStart() {
	fmt.Fprintln(c.w, "Discovering files...")
}

func (c *CLIProgressReporter) OnDiscoveryComplete(items int) {
	c.bar = progressbar.NewOptions(items,
		progressbar.OptionSetWriter(c.w),
		progressbar.OptionSetDescription("Reading signatures"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("items/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.w)
		}),
	)
}

// OnItemProcessed is safe for concurrent use; the bar serializes Add.
func (c *CLIProgressReporter) OnItemProcessed(source string) {
	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}

func (c *CLIProgressReporter) OnComplete(stats *extract.Stats) {
	if c.bar != nil {
		_ = c.bar.Finish()
		c.bar = nil
	}

	fmt.Fprintf(c.w, "✓ Read %d signature(s) from %d item(s) in %.1fs",
		stats.Readings-stats.Failed, stats.Items, stats.Duration.Seconds())
	if stats.CacheHits > 0 {
		fmt.Fprintf(c.w, " (%d cached)", stats.CacheHits)
	}
	if stats.Failed > 0 {
		fmt.Fprintf(c.w, ", %d failed", stats.Failed)
	}
	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w)
}
