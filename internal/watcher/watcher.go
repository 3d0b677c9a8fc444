// Package watcher processes sidecars as they appear or change under a root.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/sidestamp/internal/checksum"
	"github.com/starford/sidestamp/internal/discovery"
	"github.com/starford/sidestamp/internal/models"
)

// DefaultDebounce is the quiet period after the last event on a sidecar.
const DefaultDebounce = 200 * time.Millisecond

// Processor handles one sidecar.
type Processor interface {
	Process(sidecarPath string) models.Outcome
}

// OutcomeCallback is called after every watcher-driven Process.
type OutcomeCallback func(o models.Outcome)

// Watcher processes sidecar changes under a tree.
type Watcher struct {
	fw       *fsnotify.Watcher
	root     string
	proc     Processor
	debounce time.Duration
	logger   *slog.Logger
	cb       OutcomeCallback
	seen     map[string]string
}

// New installs fsnotify watches on every directory of the tree and
// fingerprints the sidecars already present. Events that arrive between New
// and Run are queued, so a full pass over the tree may run in between: a
// sidecar it misses still produces an event for Run.
func New(tree *discovery.Tree, proc Processor, debounce time.Duration, logger *slog.Logger, cb OutcomeCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	if err := addDirsRecursive(fw, root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	seen := make(map[string]string)
	for p := range tree.Sidecars() {
		if cs, err := checksum.SumFile(p); err == nil {
			seen[p] = cs
		}
	}
	return &Watcher{
		fw:       fw,
		root:     root,
		proc:     proc,
		debounce: debounce,
		logger:   logger,
		cb:       cb,
		seen:     seen,
	}, nil
}

// Close releases the fsnotify watches.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

// Watch is New followed by Run.
func Watch(ctx context.Context, tree *discovery.Tree, proc Processor, debounce time.Duration, logger *slog.Logger, cb OutcomeCallback) error {
	w, err := New(tree, proc, debounce, logger, cb)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}

// Run processes sidecar changes until ctx is cancelled.
//
// Sidecars fingerprinted by New are not processed. A sidecar is processed
// again only when its content changes, except after a no-match skip, which is
// retried on the next event. Image files are ignored, so the watcher never
// reacts to its own writes. New directories are added to the watch list and
// their sidecars processed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, seen, proc, logger, cb, debounce := w.fw, w.seen, w.proc, w.logger, w.cb, w.debounce

	logger.Info("watcher: started", slog.String("root", w.root), slog.Int("sidecars", len(seen)))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(path string) {
		pending[path] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		sort.Strings(paths)

		for _, p := range paths {
			cs, err := checksum.SumFile(p)
			if err != nil {
				logger.Debug("watcher: sidecar vanished", slog.String("path", p))
				delete(seen, p)
				continue
			}
			if seen[p] == cs {
				continue
			}
			o := proc.Process(p)
			if o.Status == models.StatusSkippedNoMatch {
				delete(seen, p)
			} else {
				seen[p] = cs
			}
			logger.Debug("watcher: processed", slog.String("path", p), slog.String("status", string(o.Status)))
			if cb != nil {
				cb(o)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			flush()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					if sub, openErr := discovery.Open(ev.Name); openErr == nil {
						for p := range sub.Sidecars() {
							schedule(p)
						}
					}
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, discovery.SidecarExt) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(seen, ev.Name)
				delete(pending, ev.Name)
				logger.Debug("watcher: sidecar removed", slog.String("path", ev.Name))
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// Unreadable subdirectories are skipped, as in discovery.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return fs.SkipDir
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
