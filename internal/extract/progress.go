package extract

import "time"

// Stats summarizes one Read call.
type Stats struct {
	Items     int
	Readings  int
	Failed    int
	CacheHits int
	Duration  time.Duration
}

// ProgressReporter provides callbacks for reporting extraction progress.
// Implementations can display progress bars, log messages, or remain silent.
// OnItemProcessed is called from worker goroutines and must be safe for
// concurrent use.
type ProgressReporter interface {
	// OnDiscoveryStart is called before input paths are expanded.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called with the number of leaf items found.
	OnDiscoveryComplete(items int)

	// OnItemProcessed is called after each leaf item is read.
	OnItemProcessed(source string)

	// OnComplete is called when every item has been processed or skipped.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnDiscoveryStart()             {}
func (n *NoOpProgressReporter) OnDiscoveryComplete(items int) {}
func (n *NoOpProgressReporter) OnItemProcessed(source string) {}
func (n *NoOpProgressReporter) OnComplete(stats *Stats)       {}
