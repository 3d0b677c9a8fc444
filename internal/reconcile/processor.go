// Package reconcile drives sidecar discovery, matching and rewriting, and
// turns every per-item failure into an Outcome.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/discovery"
	"github.com/starford/sidestamp/internal/matcher"
	"github.com/starford/sidestamp/internal/models"
	"github.com/starford/sidestamp/internal/rewrite"
	"github.com/starford/sidestamp/internal/sidecar"
)

// Listener receives the outcome of every processed sidecar and a final
// completion signal.
type Listener interface {
	// OnOutcome is called once per sidecar with a 1-based counter.
	OnOutcome(n int, o models.Outcome)
	// OnComplete is called exactly once, after the last outcome.
	OnComplete(s models.Summary)
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithDryRun makes the processor match and parse without writing images.
func WithDryRun(dryRun bool) Option {
	return func(p *Processor) { p.dryRun = dryRun }
}

// WithLocation sets the time zone used to render timestamps.
func WithLocation(loc *time.Location) Option {
	return func(p *Processor) { p.loc = loc }
}

// Processor reconciles sidecars with their images, one at a time.
type Processor struct {
	logger *slog.Logger
	dryRun bool
	loc    *time.Location
}

// New creates a Processor.
func New(opts ...Option) *Processor {
	p := &Processor{
		logger: slog.Default(),
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DryRun reports whether the processor leaves images untouched.
func (p *Processor) DryRun() bool {
	return p.dryRun
}

// Process handles one sidecar and never returns an error: every failure is
// reported through the Outcome.
func (p *Processor) Process(sidecarPath string) models.Outcome {
	out := models.Outcome{Sidecar: sidecarPath, DryRun: p.dryRun}

	image, err := matcher.Match(sidecarPath)
	if err != nil {
		return p.finish(out, err)
	}
	out.Image = image

	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return p.finish(out, err)
	}
	dateTime, err := sidecar.DateTime(data, p.loc)
	if err != nil {
		return p.finish(out, err)
	}
	out.DateTime = dateTime

	if !p.dryRun {
		if err := rewrite.Rewrite(image, dateTime); err != nil {
			return p.finish(out, err)
		}
	}
	return p.finish(out, nil)
}

func (p *Processor) finish(out models.Outcome, err error) models.Outcome {
	switch {
	case err == nil:
		out.Status = models.StatusUpdated
		p.logger.Debug("reconcile: updated",
			slog.String("path", out.Image), slog.String("date_time", out.DateTime), slog.Bool("dry_run", out.DryRun))
	case errors.Is(err, apperr.ErrNoMatch):
		out.Status = models.StatusSkippedNoMatch
		p.logger.Debug("reconcile: no match", slog.String("path", out.Sidecar))
	case errors.Is(err, apperr.ErrMissingTimestamp):
		out.Status = models.StatusSkippedNoTimestamp
		p.logger.Debug("reconcile: no timestamp", slog.String("path", out.Sidecar))
	default:
		out.Status = models.StatusError
		out.Reason = err.Error()
		p.logger.Warn("reconcile: failed", slog.String("path", out.Sidecar), slog.String("error", out.Reason))
	}
	return out
}

// Run processes every sidecar under tree in discovery order. It stops early
// only when ctx is cancelled, and always signals completion to l.
func (p *Processor) Run(ctx context.Context, tree *discovery.Tree, l Listener) (models.Summary, error) {
	var summary models.Summary
	n := 0
	var err error
	for path := range tree.Sidecars() {
		if err = ctx.Err(); err != nil {
			break
		}
		o := p.Process(path)
		n++
		summary.Add(o)
		if l != nil {
			l.OnOutcome(n, o)
		}
	}
	if l != nil {
		l.OnComplete(summary)
	}
	p.logger.Info("reconcile: run finished",
		slog.String("root", tree.Root()),
		slog.Int("total", summary.Total),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errored", summary.Errored))
	return summary, err
}

// RunDir opens root and runs over it. A missing root fails with
// apperr.ErrDirectoryNotFound before any item is processed.
func (p *Processor) RunDir(ctx context.Context, root string, l Listener) (models.Summary, error) {
	tree, err := discovery.Open(root)
	if err != nil {
		return models.Summary{}, err
	}
	return p.Run(ctx, tree, l)
}
