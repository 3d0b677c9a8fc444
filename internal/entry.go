// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/sidestamp/internal/api"
	"github.com/starford/sidestamp/internal/discovery"
	"github.com/starford/sidestamp/internal/mcpserver"
	"github.com/starford/sidestamp/internal/models"
	"github.com/starford/sidestamp/internal/reconcile"
	"github.com/starford/sidestamp/internal/report"
	"github.com/starford/sidestamp/internal/rewrite"
	"github.com/starford/sidestamp/internal/sse"
	"github.com/starford/sidestamp/internal/watcher"
)

// ErrItemsFailed is returned by RunOnce when at least one sidecar errored.
var ErrItemsFailed = errors.New("some sidecars could not be processed")

type env struct {
	*application
	logger   *slog.Logger
	procOpts []reconcile.Option
}

func newEnv(opts []Option) (*env, error) {
	app := &application{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	loc, err := cfg.Library.Location()
	if err != nil {
		return nil, err
	}

	// Logs always go to stderr; stdout carries the report and MCP stdio.
	logger := cfg.App.NewLogger(app.stderr)
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("library_root", cfg.Library.Root),
		slog.String("timezone", loc.String()),
		slog.Bool("dry_run", cfg.Library.DryRun),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return &env{
		application: app,
		logger:      logger,
		procOpts: []reconcile.Option{
			reconcile.WithLogger(logger),
			reconcile.WithLocation(loc),
			reconcile.WithDryRun(cfg.Library.DryRun),
		},
	}, nil
}

// RunOnce reconciles every sidecar under the library root once, printing one
// line per sidecar and a progress bar. It fails when the root is missing or
// when any sidecar errored.
func RunOnce(ctx context.Context, opts ...Option) (models.Summary, error) {
	e, err := newEnv(opts)
	if err != nil {
		return models.Summary{}, err
	}
	cfg := e.config

	tree, err := discovery.Open(cfg.Library.Root)
	if err != nil {
		return models.Summary{}, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := report.NewLogListener(e.stdout)
	log.Start(tree.Root(), cfg.Library.DryRun)
	progress := report.NewProgressListener(e.stderr, tree.Count())

	summary, err := reconcile.New(e.procOpts...).Run(ctx, tree, report.Multi{progress, log})
	if err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	if summary.Errored > 0 {
		return summary, fmt.Errorf("%d of %d: %w", summary.Errored, summary.Total, ErrItemsFailed)
	}
	return summary, nil
}

// Inspect prints the EXIF date-time tags of one image.
func Inspect(path string, opts ...Option) error {
	e, err := newEnv(opts)
	if err != nil {
		return err
	}

	ts, err := rewrite.Inspect(path)
	if err != nil {
		return err
	}
	for _, row := range []struct{ name, value string }{
		{"DateTime", ts.DateTime},
		{"DateTimeOriginal", ts.DateTimeOriginal},
		{"DateTimeDigitized", ts.DateTimeDigitized},
	} {
		if row.value == "" {
			row.value = "-"
		}
		fmt.Fprintf(e.stdout, "%-18s %s\n", row.name+":", row.value)
	}
	return nil
}

// Watch reconciles the library once and then keeps processing sidecars as
// they are created or changed, until ctx is cancelled or a shutdown signal
// arrives.
func Watch(ctx context.Context, opts ...Option) error {
	e, err := newEnv(opts)
	if err != nil {
		return err
	}
	cfg := e.config

	tree, err := discovery.Open(cfg.Library.Root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc := reconcile.New(e.procOpts...)
	log := report.NewLogListener(e.stdout)
	n := 0
	// Watches go in before the initial pass so sidecars created during it
	// are not lost.
	w, err := watcher.New(tree, proc, cfg.Watch.Debounce, e.logger, func(o models.Outcome) {
		n++
		log.OnOutcome(n, o)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	log.Start(tree.Root(), cfg.Library.DryRun)
	if _, err := proc.Run(ctx, tree, log); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return w.Run(ctx)
}

// Serve starts the HTTP API with the SSE event stream. When watch mode is
// enabled the library is watched as well and its outcomes are streamed.
func Serve(ctx context.Context, opts ...Option) error {
	e, err := newEnv(opts)
	if err != nil {
		return err
	}
	cfg := e.config
	logger := e.logger

	tree, err := discovery.Open(cfg.Library.Root)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	g, gCtx := errgroup.WithContext(ctx)

	runs := api.NewRunService(gCtx, tree, broker, logger, e.procOpts...)
	apiRouter := api.NewRouter(runs, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthHandler)
	r.Get("/health/ready", healthHandler)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_root", tree.Root()),
		slog.Bool("watch", cfg.Watch.Enabled))

	if cfg.Watch.Enabled {
		proc := reconcile.New(e.procOpts...)
		g.Go(func() error {
			n := 0
			return watcher.Watch(gCtx, tree, proc, cfg.Watch.Debounce, logger, func(o models.Outcome) {
				n++
				broker.PublishOutcome("watch", n, 0, o)
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		cancel()

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		runs.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP serves the MCP tools over stdin/stdout.
func ServeMCP(_ context.Context, opts ...Option) error {
	e, err := newEnv(opts)
	if err != nil {
		return err
	}

	tree, err := discovery.Open(e.config.Library.Root)
	if err != nil {
		return err
	}

	e.logger.Info("MCP server starting", slog.String("library_root", tree.Root()))
	return mcpserver.New(tree, e.logger, e.procOpts...).ServeStdio()
}

// waitForShutdown blocks until SIGINT/SIGTERM or ctx is done.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
