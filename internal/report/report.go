// Package report renders run outcomes for the command line.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/starford/sidestamp/internal/models"
	"github.com/starford/sidestamp/internal/reconcile"
)

// LogListener writes one human-readable line per outcome.
type LogListener struct {
	w io.Writer
}

// NewLogListener creates a LogListener writing to w.
func NewLogListener(w io.Writer) *LogListener {
	return &LogListener{w: w}
}

// Start announces a run over root.
func (l *LogListener) Start(root string, dryRun bool) {
	fmt.Fprintf(l.w, "Selected folder: %s\n", root)
	if dryRun {
		fmt.Fprintln(l.w, "Dry run: no image will be modified.")
	}
	fmt.Fprintln(l.w, "Starting file processing...")
}

// OnOutcome implements reconcile.Listener.
func (l *LogListener) OnOutcome(_ int, o models.Outcome) {
	sidecar := filepath.Base(o.Sidecar)
	switch o.Status {
	case models.StatusUpdated:
		if o.DryRun {
			fmt.Fprintf(l.w, "  - Would update %s to %s.\n", filepath.Base(o.Image), o.DateTime)
			return
		}
		fmt.Fprintf(l.w, "  - Successfully updated %s.\n", filepath.Base(o.Image))
	case models.StatusSkippedNoMatch:
		fmt.Fprintf(l.w, "  - No matching image found for %s. Skipping.\n", sidecar)
	case models.StatusSkippedNoTimestamp:
		fmt.Fprintf(l.w, "  - No timestamp found in %s. Skipping.\n", sidecar)
	default:
		fmt.Fprintf(l.w, "  - ERROR: Could not process %s. Reason: %s\n", sidecar, o.Reason)
	}
}

// OnComplete implements reconcile.Listener.
func (l *LogListener) OnComplete(s models.Summary) {
	fmt.Fprintln(l.w, "All files processed. Task completed.")
	fmt.Fprintf(l.w, "Updated: %d, Skipped: %d, Errored: %d (of %d)\n", s.Updated, s.Skipped, s.Errored, s.Total)
}

// ProgressListener drives a terminal progress bar.
type ProgressListener struct {
	bar *progressbar.ProgressBar
}

// NewProgressListener creates a bar sized for total sidecars.
func NewProgressListener(w io.Writer, total int) *ProgressListener {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Stamping"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &ProgressListener{bar: bar}
}

// OnOutcome implements reconcile.Listener.
func (p *ProgressListener) OnOutcome(n int, _ models.Outcome) {
	_ = p.bar.Set(n)
}

// OnComplete implements reconcile.Listener.
func (p *ProgressListener) OnComplete(models.Summary) {
	_ = p.bar.Finish()
}

// Multi fans every event out to all listeners, in order.
type Multi []reconcile.Listener

// OnOutcome implements reconcile.Listener.
func (m Multi) OnOutcome(n int, o models.Outcome) {
	for _, l := range m {
		l.OnOutcome(n, o)
	}
}

// OnComplete implements reconcile.Listener.
func (m Multi) OnComplete(s models.Summary) {
	for _, l := range m {
		l.OnComplete(s)
	}
}
