// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func formatFlags(def string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format (text, csv, markdown, json)",
			Value:   def,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write to a file instead of stdout; the extension picks the format",
		},
	}
}

// setupCommand handles first-run setup of the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file if missing, then initialize the database and run migrations",
		Action: r.Setup,
	}
}

// libraryCommand manages library roots.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Manage library roots",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a directory as a library",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name (defaults to the directory name)",
					},
					&cli.BoolFlag{
						Name:  "scan",
						Usage: "Queue a scan after adding",
					},
				},
				Action: r.LibraryAdd,
			},
			{
				Name:  "list",
				Usage: "List libraries",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LibraryList,
			},
			{
				Name:  "scan",
				Usage: "Queue a scan of one library, or all enabled libraries",
				Arguments: []cli.Argument{
					&cli.Int64Arg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Scan every enabled library",
					},
				},
				Action: r.LibraryScan,
			},
		},
	}
}

// taskCommand inspects and manages the task queue.
func taskCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "task",
		Aliases: []string{"tasks"},
		Usage:   "Inspect and manage background tasks",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Queue a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "type"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "payload",
						Aliases: []string{"p"},
						Usage:   "Task payload as a JSON object",
						Value:   "{}",
					},
					&cli.IntFlag{
						Name:  "priority",
						Usage: "Priority 0 (highest) to 5; defaults to the type's priority",
						Value: -1,
					},
					&cli.StringFlag{
						Name:  "mbid",
						Usage: "MusicBrainz ID of the related entity",
					},
					&cli.Int64Flag{
						Name:  "entity-id",
						Usage: "Local ID of the related entity",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name of the related entity",
					},
					&cli.BoolFlag{
						Name:  "unique",
						Usage: "Reuse an active task of the same type and entity",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TaskCreate,
			},
			{
				Name:  "list",
				Usage: "List tasks, newest first",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "status",
						Aliases: []string{"s"},
						Usage:   "Filter by status",
					},
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Filter by task type",
					},
					&cli.StringFlag{
						Name:  "mbid",
						Usage: "Filter by entity MusicBrainz ID",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of tasks to return",
						Value:   50,
					},
				}, formatFlags("text")...),
				Action: r.TaskList,
			},
			{
				Name:  "show",
				Usage: "Show a single task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TaskShow,
			},
			{
				Name:  "cancel",
				Usage: "Cancel a pending or running task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reason",
						Usage: "Reason stored on the task",
						Value: "cancelled from cli",
					},
				},
				Action: r.TaskCancel,
			},
			{
				Name:  "retry",
				Usage: "Queue a new attempt of a failed task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.TaskRetry,
			},
			{
				Name:   "stats",
				Usage:  "Show task counts by status and type",
				Flags:  formatFlags("text"),
				Action: r.TaskStats,
			},
			{
				Name:  "cleanup",
				Usage: "Delete finished tasks older than the given age",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "Age in days",
						Value: 30,
					},
				},
				Action: r.TaskCleanup,
			},
		},
	}
}

// unmatchedCommand lists library files that are not bound to a catalog track.
func unmatchedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "unmatched",
		Usage: "Inspect unmatched library files",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List unmatched files",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "library",
						Usage: "Only files from this library",
					},
					&cli.BoolFlag{
						Name:  "suggested",
						Usage: "Only files with a suggested track",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of files to return",
						Value:   100,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.UnmatchedList,
			},
		},
	}
}

// workerCommand runs the task engine in the foreground.
func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run background workers until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of workers (defaults to worker.count)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Queue scans when library files change (also scanner.watch)",
			},
			&cli.BoolFlag{
				Name:  "no-schedule",
				Usage: "Disable the periodic jobs in [schedule]",
			},
		},
		Action: r.Worker,
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the task API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (defaults to server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (defaults to server.port)",
			},
			&cli.BoolFlag{
				Name:  "worker",
				Usage: "Also run the task engine in this process",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for the task dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive task dashboard",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "Refresh interval",
				Value: 2 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "worker",
				Usage: "Run the task engine in this process and show live progress",
			},
		},
		Action: r.TUI,
	}
}
