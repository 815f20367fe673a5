package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curator/internal/audio"
	"github.com/desertthunder/curator/internal/plugins"
	"github.com/desertthunder/curator/internal/repositories"
	"github.com/desertthunder/curator/internal/scanner"
	"github.com/desertthunder/curator/internal/services"
	"github.com/desertthunder/curator/internal/shared"
	"github.com/desertthunder/curator/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and the task collaborators are opened on first use, so commands that never touch
// the queue (setup, help) do not need a database.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer

	db       *sql.DB
	ownsDB   bool
	metadata services.MetadataSource
	cache    services.Cache
	repo     *repositories.TaskRepository
	factory  *tasks.Factory
	deps     *tasks.Deps
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer

	// DB and Metadata replace the configured database and MusicBrainz client, for tests.
	DB       *sql.DB
	Metadata services.MetadataSource
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		metadata:   opts.Metadata,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, libraryCommand, taskCommand, unmatchedCommand, workerCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file when it exists and applies the log level. A missing file keeps the defaults.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// SetLogger replaces the runner's logger, used by the TUI to keep logs off the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// open prepares the database and task collaborators on first use.
func (r *Runner) open(ctx context.Context) error {
	if r.factory != nil {
		return nil
	}

	if r.db == nil {
		if path := r.config.Database.Path; path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db = db
		r.ownsDB = true
	}

	r.repo = repositories.NewTaskRepository(r.db)
	r.factory = tasks.NewFactory(r.repo)
	r.deps = r.wire(ctx)
	return nil
}

// wire builds processor dependencies from the config.
func (r *Runner) wire(ctx context.Context) *tasks.Deps {
	cfg := r.config
	deps := tasks.NewDeps(r.db, cfg)

	r.cache = services.NewMemoryCache()
	if cfg.Cache.RedisAddr != "" {
		if rc, err := services.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB); err != nil {
			r.logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			r.cache = rc
		}
	}
	deps.Cache = r.cache

	if r.metadata == nil {
		r.metadata = services.NewMusicBrainzService(services.MusicBrainzOptions{
			BaseURL:   cfg.Metadata.BaseURL,
			UserAgent: cfg.Metadata.UserAgent,
			RateLimit: cfg.Metadata.RateLimit,
			Timeout:   cfg.Metadata.Timeout.Duration,
			Cache:     r.cache,
			CacheTTL:  cfg.Cache.TTL.Duration,
		})
	}
	deps.Metadata = r.metadata

	deps.Scanner = scanner.New(cfg.Scanner.Extensions)
	deps.Analyzer = audio.NewFFProbe(cfg.Audio.FFProbePath, cfg.Audio.Timeout.Duration)
	deps.Plugins = plugins.NewManager(repositories.NewPluginRepository(r.db), plugins.Options{
		Dir:      cfg.Plugins.Dir,
		GitPath:  cfg.Plugins.GitPath,
		NPMPath:  cfg.Plugins.NPMPath,
		Executor: plugins.CommandExecutor{Timeout: cfg.Plugins.CommandTimeout.Duration},
		Logger:   shared.WithLogger(r.logger, "component", "plugins"),
	})
	return deps
}

// engine builds a task engine over the runner's queue. A nil progress channel disables progress events.
func (r *Runner) engine(workers int, progress chan<- tasks.ProgressUpdate) *tasks.Engine {
	if workers <= 0 {
		workers = r.config.Worker.Count
	}
	return tasks.NewEngine(r.repo, r.factory, tasks.NewRegistry(r.deps), tasks.EngineOptions{
		Workers:       workers,
		PollInterval:  r.config.Worker.PollInterval.Duration,
		TaskTimeout:   r.config.Worker.TaskTimeout.Duration,
		AgingInterval: r.config.Worker.AgingInterval.Duration,
		Logger:        shared.WithLogger(r.logger, "component", "engine"),
		Progress:      progress,
	})
}

// Close releases the database and cache connections opened by the runner.
func (r *Runner) Close() error {
	if rc, ok := r.cache.(*services.RedisCache); ok {
		rc.Close()
	}
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return err
	}
	return r.writeBytes(append(output, '\n'))
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
