package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/sidestamp/internal/apperr"
	"github.com/starford/sidestamp/internal/discovery"
	"github.com/starford/sidestamp/internal/models"
	"github.com/starford/sidestamp/internal/reconcile"
	"github.com/starford/sidestamp/internal/report"
	"github.com/starford/sidestamp/internal/sse"
)

// Run states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
)

// RunStatus describes the current or last run.
type RunStatus struct {
	ID         string         `json:"id"`
	Root       string         `json:"root"`
	DryRun     bool           `json:"dry_run"`
	State      string         `json:"state"`
	Total      int            `json:"total"`
	Done       int            `json:"done"`
	Summary    models.Summary `json:"summary"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// RunService starts runs over sub-directories of the library, one at a time.
type RunService struct {
	ctx    context.Context
	tree   *discovery.Tree
	broker *sse.Broker
	logger *slog.Logger
	opts   []reconcile.Option

	mu      sync.Mutex
	current *RunStatus
	wg      sync.WaitGroup
}

// NewRunService creates a RunService. Runs stop between items once ctx is
// cancelled. broker may be nil.
func NewRunService(ctx context.Context, tree *discovery.Tree, broker *sse.Broker, logger *slog.Logger, opts ...reconcile.Option) *RunService {
	return &RunService{
		ctx:    ctx,
		tree:   tree,
		broker: broker,
		logger: logger,
		opts:   opts,
	}
}

// Start launches a run over rel (relative to the library root) in the
// background. It fails with apperr.ErrConflict while another run is in
// progress.
func (s *RunService) Start(rel string, dryRun bool) (RunStatus, error) {
	sub, err := s.tree.Sub(rel)
	if err != nil {
		return RunStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.State == StateRunning {
		return RunStatus{}, fmt.Errorf("run %s in progress: %w", s.current.ID, apperr.ErrConflict)
	}

	st := &RunStatus{
		ID:        uuid.NewString(),
		Root:      sub.Root(),
		DryRun:    dryRun,
		State:     StateRunning,
		Total:     sub.Count(),
		StartedAt: time.Now().UTC(),
	}
	s.current = st

	var listener reconcile.Listener = &statusListener{s: s, st: st}
	if s.broker != nil {
		listener = report.Multi{listener, s.broker.RunListener(st.ID, st.Root, st.Total, dryRun)}
	}
	opts := append(append([]reconcile.Option{}, s.opts...),
		reconcile.WithLogger(s.logger.With(slog.String("run_id", st.ID))),
		reconcile.WithDryRun(dryRun))
	proc := reconcile.New(opts...)

	s.logger.Info("api: run started", slog.String("run_id", st.ID), slog.String("root", st.Root), slog.Int("total", st.Total))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := proc.Run(s.ctx, sub, listener); err != nil {
			s.logger.Warn("api: run stopped", slog.String("run_id", st.ID), slog.String("error", err.Error()))
			s.finish(st, StateCancelled)
		}
	}()
	return *st, nil
}

// Current returns the status of the current or last run.
func (s *RunService) Current() (RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return RunStatus{}, apperr.ErrNotFound
	}
	return *s.current, nil
}

// Wait blocks until every started run has returned.
func (s *RunService) Wait() {
	s.wg.Wait()
}

func (s *RunService) finish(st *RunStatus, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	st.State = state
	st.FinishedAt = &now
}

// statusListener keeps a RunStatus up to date.
type statusListener struct {
	s  *RunService
	st *RunStatus
}

func (l *statusListener) OnOutcome(n int, o models.Outcome) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.st.Done = n
	l.st.Summary.Add(o)
}

func (l *statusListener) OnComplete(sum models.Summary) {
	l.s.mu.Lock()
	l.st.Summary = sum
	l.s.mu.Unlock()
	l.s.finish(l.st, StateCompleted)
}
