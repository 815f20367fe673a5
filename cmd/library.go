package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curator/internal/formatter"
	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
	"github.com/desertthunder/curator/internal/tasks"
)

// LibraryAdd registers a directory as a library root. With no path the user's music directory is used.
func (r *Runner) LibraryAdd(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		path = shared.MusicDir()
	}
	if path == "" {
		return fmt.Errorf("%w: library path", shared.ErrMissingArgument)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrInvalidArgument, path, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", shared.ErrInvalidArgument, abs)
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	name := cmd.String("name")
	if name == "" {
		name = filepath.Base(abs)
	}

	lib := &models.Library{Name: name, Path: abs, Enabled: true}
	if err := r.deps.Libraries.Create(ctx, lib); err != nil {
		return fmt.Errorf("failed to add library: %w", err)
	}
	r.logger.Info("library added", "id", lib.ID, "path", lib.Path)

	if err := r.writePlain("added library #%d %s (%s)\n", lib.ID, lib.Name, lib.Path); err != nil {
		return err
	}

	if cmd.Bool("scan") {
		return r.queueScan(ctx, lib)
	}
	return nil
}

// LibraryList prints registered libraries.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	libs, err := r.deps.Libraries.List(ctx, nil)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if libs == nil {
			libs = []*models.Library{}
		}
		return r.writeJSON(libs, true)
	}
	return r.writeBytes(formatter.LibrariesToText(libs))
}

// LibraryScan queues scan-library tasks. An existing pending or running scan is reused.
func (r *Runner) LibraryScan(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Int64Arg("id")
	all := cmd.Bool("all")
	if id == 0 && !all {
		return fmt.Errorf("%w: library id or --all", shared.ErrMissingArgument)
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	if !all {
		lib, err := r.deps.Libraries.Get(ctx, id)
		if err != nil {
			return err
		}
		return r.queueScan(ctx, lib)
	}

	libs, err := r.deps.Libraries.List(ctx, map[string]any{"enabled": true})
	if err != nil {
		return err
	}
	if len(libs) == 0 {
		return r.writePlain("No enabled libraries.\n")
	}
	for _, lib := range libs {
		if err := r.queueScan(ctx, lib); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) queueScan(ctx context.Context, lib *models.Library) error {
	task, err := tasks.ScanLibrary(ctx, r.factory, lib)
	if err != nil {
		return fmt.Errorf("failed to queue scan: %w", err)
	}
	return r.writePlain("scan of %s queued as %s (%s)\n", lib.Name, task.ID, task.Status)
}
