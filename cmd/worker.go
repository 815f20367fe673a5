package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/curator/internal/scanner"
	"github.com/desertthunder/curator/internal/server"
	"github.com/desertthunder/curator/internal/shared"
	"github.com/desertthunder/curator/internal/tasks"
)

// Worker runs the task engine until SIGINT or SIGTERM, along with the scheduler and the library watcher when enabled.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.open(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := r.background(ctx, g, !cmd.Bool("no-schedule"), cmd.Bool("watch") || r.config.Scanner.Watch); err != nil {
		return err
	}

	engine := r.engine(cmd.Int("workers"), nil)
	g.Go(func() error { return engine.Run(ctx) })
	return g.Wait()
}

// background starts the scheduler and the library watcher on g.
func (r *Runner) background(ctx context.Context, g *errgroup.Group, schedule, watch bool) error {
	if schedule {
		sched, err := tasks.NewScheduler(r.config.Schedule, r.factory, r.deps.Libraries, shared.WithLogger(r.logger, "component", "scheduler"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			sched.Run(ctx)
			return nil
		})
	}

	if watch {
		w, err := r.watcher(ctx)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}
	return nil
}

// watcher watches every enabled library and queues a scan when one changes.
func (r *Runner) watcher(ctx context.Context) (*scanner.Watcher, error) {
	logger := shared.WithLogger(r.logger, "component", "watcher")

	w, err := scanner.NewWatcher(r.config.Scanner.Debounce.Duration, logger, func(libraryID int64) {
		lib, err := r.deps.Libraries.Get(ctx, libraryID)
		if err != nil {
			logger.Warn("changed library not found", "library_id", libraryID, "error", err)
			return
		}
		task, err := tasks.ScanLibrary(ctx, r.factory, lib)
		if err != nil {
			logger.Error("failed to queue scan", "library_id", libraryID, "error", err)
			return
		}
		logger.Info("library changed, scan queued", "library", lib.Name, "task_id", task.ID)
	})
	if err != nil {
		return nil, err
	}

	libs, err := r.deps.Libraries.List(ctx, map[string]any{"enabled": true})
	if err != nil {
		return nil, err
	}
	for _, lib := range libs {
		if err := w.Add(lib.ID, lib.Path); err != nil {
			logger.Warn("cannot watch library", "library", lib.Name, "path", lib.Path, "error", err)
			continue
		}
		logger.Debug("watching library", "library", lib.Name, "path", lib.Path)
	}
	return w, nil
}

// Serve runs the HTTP API until SIGINT or SIGTERM. With --worker the engine runs alongside it.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := r.config.Server
	if h := cmd.String("host"); h != "" {
		cfg.Host = h
	}
	if p := cmd.Int("port"); p != 0 {
		cfg.Port = p
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d", shared.ErrInvalidFlag, cfg.Port)
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	logger := shared.WithLogger(r.logger, "component", "http")
	api := server.NewAPI(r.db, r.factory, r.deps.Unmatched, logger)
	srv := server.New(cfg, api)

	g, ctx := errgroup.WithContext(ctx)
	if cmd.Bool("worker") {
		if err := r.background(ctx, g, true, r.config.Scanner.Watch); err != nil {
			return err
		}
		engine := r.engine(0, nil)
		g.Go(func() error { return engine.Run(ctx) })
	}

	g.Go(func() error { return server.Serve(ctx, srv, logger) })
	return g.Wait()
}
