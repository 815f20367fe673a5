package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/curator/internal/shared"
	"github.com/desertthunder/curator/internal/tasks"
	"github.com/desertthunder/curator/internal/ui"
)

// TUI launches the interactive task dashboard. With --worker the engine runs in-process and streams progress to it.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(shared.StatePath("tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	if err := r.open(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	opts := ui.Options{Refresh: cmd.Duration("refresh")}
	if cmd.Bool("worker") {
		progress := make(chan tasks.ProgressUpdate, 64)
		opts.Progress = progress
		engine := r.engine(0, progress)
		g.Go(func() error { return engine.Run(ctx) })
	}

	p := tea.NewProgram(ui.NewModel(ctx, r.factory, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("error running TUI: %w", runErr)
	}
	return nil
}
