package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curator/internal/formatter"
	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/server"
	"github.com/desertthunder/curator/internal/shared"
)

// TaskCreate queues a task from a type name and a JSON payload.
func (r *Runner) TaskCreate(ctx context.Context, cmd *cli.Command) error {
	req := server.CreateTaskRequest{
		Type:    cmd.StringArg("type"),
		MBID:    cmd.String("mbid"),
		Name:    cmd.String("name"),
		Payload: json.RawMessage(cmd.String("payload")),
		Unique:  cmd.Bool("unique"),
	}
	if req.Type == "" {
		return fmt.Errorf("%w: task type (one of %s)", shared.ErrMissingArgument, typeNames())
	}
	if p := cmd.Int("priority"); p >= 0 {
		req.Priority = &p
	}
	if id := cmd.Int64("entity-id"); id > 0 {
		req.EntityID = &id
	}

	spec, err := req.Spec()
	if err != nil {
		return err
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	var task *models.Task
	created := true
	if spec.Unique {
		task, created, err = r.factory.CreateUnique(ctx, spec)
	} else {
		task, err = r.factory.CreateTask(ctx, spec)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(task, true)
	}
	if !created {
		return r.writePlain("existing task %s (%s) reused\n", task.ID, task.Status)
	}
	return r.writePlain("queued %s as %s (priority %d)\n", task.Type, task.ID, task.Priority)
}

func typeNames() string {
	names := make([]string, 0, len(models.TaskTypes()))
	for _, t := range models.TaskTypes() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

// TaskList prints tasks matching the filters in the requested format, or exports them to --output.
func (r *Runner) TaskList(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{"limit": cmd.Int("limit")}

	if s := cmd.String("status"); s != "" {
		if !models.TaskStatus(s).Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, s)
		}
		criteria["status"] = s
	}
	if s := cmd.String("type"); s != "" {
		t, err := models.ParseTaskType(s)
		if err != nil {
			return err
		}
		criteria["type"] = string(t)
	}
	if s := cmd.String("mbid"); s != "" {
		criteria["entity_mbid"] = s
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	list, err := r.factory.List(ctx, criteria)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		format, err := formatter.WriteTasksExport(list, path)
		if err != nil {
			return err
		}
		r.logger.Info("exported tasks", "path", path, "format", format, "count", len(list))
		return r.writePlain("wrote %d tasks to %s\n", len(list), path)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	out, err := formatter.RenderTasks(list, format, "Tasks")
	if err != nil {
		return err
	}
	return r.writeBytes(out)
}

// TaskShow prints a single task with its payload and result.
func (r *Runner) TaskShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	task, err := r.factory.Get(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(task, true)
	}
	return r.writeBytes(formatter.TaskDetail(task))
}

// TaskCancel cancels a pending or running task.
func (r *Runner) TaskCancel(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	task, err := r.factory.CancelTask(ctx, id, cmd.String("reason"))
	if err != nil {
		return err
	}
	return r.writePlain("cancelled %s (%s)\n", task.ID, task.Type)
}

// TaskRetry queues a new attempt of a failed task.
func (r *Runner) TaskRetry(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	task, err := r.factory.RetryFailedTask(ctx, id)
	if err != nil {
		return err
	}
	return r.writePlain("retry of %s queued as %s (attempt %d)\n", id, task.ID, task.RetryCount+1)
}

// TaskStats prints task counts by status and type.
func (r *Runner) TaskStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	stats, err := r.factory.GetTaskStatistics(ctx)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var out []byte
	switch format {
	case formatter.FormatJSON:
		if out, err = shared.MarshalJSON(stats, true); err != nil {
			return err
		}
		out = append(out, '\n')
	case formatter.FormatMarkdown:
		out = formatter.StatsToMarkdown(stats)
	case formatter.FormatText:
		out = formatter.StatsToText(stats)
	default:
		return fmt.Errorf("%w: stats do not support %s output", shared.ErrInvalidArgument, format)
	}

	if path := cmd.String("output"); path != "" {
		if err := writeFile(path, out); err != nil {
			return err
		}
		return r.writePlain("wrote statistics to %s\n", path)
	}
	return r.writeBytes(out)
}

// TaskCleanup deletes finished tasks older than --days.
func (r *Runner) TaskCleanup(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	n, err := r.factory.CleanupOldTasks(ctx, cmd.Int("days"))
	if err != nil {
		return err
	}
	return r.writePlain("removed %d tasks\n", n)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
