package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/repositories"
	"github.com/desertthunder/curator/internal/shared"
)

// Scheduler creates periodic maintenance tasks from cron expressions.
type Scheduler struct {
	cron      *cron.Cron
	factory   *Factory
	libraries *repositories.LibraryRepository
	logger    *log.Logger
}

// cronLogger adapts a charm logger to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}

// NewScheduler registers a job for every non-empty expression in cfg.
func NewScheduler(cfg shared.ScheduleConfig, factory *Factory, libraries *repositories.LibraryRepository, logger *log.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithLogger(cronLogger{logger}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		factory:   factory,
		libraries: libraries,
		logger:    logger,
	}

	jobs := []struct {
		name string
		expr string
		fn   func(context.Context) error
	}{
		{"scan_libraries", cfg.ScanLibraries, s.ScanLibraries},
		{"sync_all", cfg.SyncAll, s.SyncAll},
		{"cleanup", cfg.Cleanup, func(ctx context.Context) error { return s.Cleanup(ctx, cfg.CleanupDays) }},
	}

	for _, j := range jobs {
		if j.expr == "" {
			continue
		}
		fn, name := j.fn, j.name
		if _, err := s.cron.AddFunc(j.expr, func() {
			if err := fn(context.Background()); err != nil {
				s.logger.Error("scheduled job failed", "job", name, "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("%w: schedule.%s %q: %v", shared.ErrInvalidConfig, name, j.expr, err)
		}
		s.logger.Debug("scheduled job", "job", name, "expr", j.expr)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is done. Running jobs are allowed to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// ScanLibraries queues a scan of every enabled library, skipping libraries that already have one pending.
func (s *Scheduler) ScanLibraries(ctx context.Context) error {
	libs, err := s.libraries.List(ctx, map[string]any{"enabled": true})
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if _, err := ScanLibrary(ctx, s.factory, lib); err != nil {
			return err
		}
	}
	return nil
}

// SyncAll queues a sync of every monitored artist.
func (s *Scheduler) SyncAll(ctx context.Context) error {
	_, _, err := s.factory.CreateUnique(ctx, Spec{Type: models.TaskSyncAllArtists, Payload: &models.SyncAllArtistsPayload{}})
	return err
}

// Cleanup deletes finalized tasks older than days, 30 when unset.
func (s *Scheduler) Cleanup(ctx context.Context, days int) error {
	if days <= 0 {
		days = 30
	}
	n, err := s.factory.CleanupOldTasks(ctx, days)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("removed old tasks", "count", n)
	}
	return nil
}

// ScanLibrary queues a scan of lib unless one is already pending or running.
// The watcher and the scheduler both go through here.
func ScanLibrary(ctx context.Context, f *Factory, lib *models.Library) (*models.Task, error) {
	task, _, err := f.CreateUnique(ctx, Spec{
		Type:    models.TaskScanLibrary,
		Entity:  models.EntityRef{ID: models.ID64(lib.ID), Name: lib.Name},
		Payload: &models.ScanLibraryPayload{LibraryID: lib.ID},
	})
	return task, err
}
