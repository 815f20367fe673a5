package tasks

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/repositories"
	"github.com/desertthunder/curator/internal/shared"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTaskTimeout  = 10 * time.Minute
	defaultAging        = 10 * time.Minute
)

// EngineOptions configures an [Engine].
type EngineOptions struct {
	Workers       int
	PollInterval  time.Duration // idle wait between empty polls
	TaskTimeout   time.Duration // upper bound for one processor run
	AgingInterval time.Duration // one priority level gained per interval waited
	Logger        *log.Logger
	Progress      chan<- ProgressUpdate // optional, sends never block
}

// Engine runs worker loops that claim tasks from the queue and dispatch them to processors.
type Engine struct {
	repo     *repositories.TaskRepository
	factory  *Factory
	registry *Registry
	opts     EngineOptions
	logger   *log.Logger
}

// NewEngine creates an engine. Follow-on tasks are created through factory.
func NewEngine(repo *repositories.TaskRepository, factory *Factory, registry *Registry, opts EngineOptions) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	if opts.AgingInterval == 0 {
		opts.AgingInterval = defaultAging
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Engine{
		repo:     repo,
		factory:  factory,
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every in-flight task has been recorded.
//
// Tasks left running for longer than the task timeout are failed at startup and then once per
// timeout interval, so a lost worker never holds a task in running.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recoverStale(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.sweep(ctx)
	}()

	for i := range e.opts.Workers {
		workerID := fmt.Sprintf("worker-%d-%s", i+1, uuid.NewString()[:8])
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx, workerID)
		}()
	}

	e.logger.Info("engine started", "workers", e.opts.Workers)
	wg.Wait()
	e.logger.Info("engine stopped")
	return nil
}

func (e *Engine) recoverStale(ctx context.Context) error {
	n, err := e.repo.FailStale(ctx, time.Now().Add(-e.opts.TaskTimeout))
	if err != nil {
		return fmt.Errorf("failed to recover stale tasks: %w", err)
	}
	if n > 0 {
		e.logger.Warn("failed stale running tasks", "count", n)
	}
	return nil
}

func (e *Engine) sweep(ctx context.Context) {
	ticker := time.NewTicker(e.opts.TaskTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.recoverStale(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("stale task sweep failed", "error", err)
			}
		}
	}
}

func (e *Engine) work(ctx context.Context, workerID string) {
	idle := rate.NewLimiter(rate.Every(e.opts.PollInterval), 1)

	for ctx.Err() == nil {
		processed, err := e.RunOnce(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			e.logger.Error("failed to claim task", "worker_id", workerID, "error", err)
		}
		if processed {
			continue
		}
		if err := idle.Wait(ctx); err != nil {
			return
		}
	}
}

// RunOnce claims and executes the next task. It reports false when the queue had nothing to claim.
func (e *Engine) RunOnce(ctx context.Context, workerID string) (bool, error) {
	task, err := e.repo.ClaimNext(ctx, workerID, e.opts.AgingInterval)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	e.execute(ctx, workerID, task)
	return true, nil
}

// execute runs a claimed task and records its outcome. Bookkeeping writes ignore ctx cancellation
// so a shutdown never leaves a task running.
func (e *Engine) execute(ctx context.Context, workerID string, task *models.Task) {
	logger := shared.WithLogger(e.logger, "task_id", task.ID, "task_type", task.Type, "worker_id", workerID)
	store := context.WithoutCancel(ctx)
	start := time.Now()

	logger.Info("task claimed", "priority", task.Priority)
	e.sendProgress(claimedUpdate(task, workerID))

	res := e.dispatch(ctx, task, logger)

	meta := res.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	errMsg := ""
	if res.OK {
		meta["message"] = res.Message
	} else {
		errMsg = res.Message
	}

	recorded, err := e.repo.Complete(store, task.ID, res.Status(), errMsg, meta)
	if err != nil {
		// Fall back to a bare failure so the task does not stay running.
		logger.Error("failed to record task outcome", "error", err)
		res = Failure(fmt.Sprintf("failed to record result: %v", err))
		recorded, err = e.repo.Complete(store, task.ID, models.StatusFailed, res.Message, nil)
		if err != nil {
			logger.Error("failed to mark task failed", "error", err)
			return
		}
	}
	if !recorded {
		logger.Warn("task cancelled while running, result discarded", "duration", time.Since(start))
		e.sendProgress(discardedUpdate(task))
		return
	}

	if res.OK {
		logger.Info("task completed", "message", res.Message, "duration", time.Since(start))
	} else {
		logger.Warn("task failed", "error", res.Message, "duration", time.Since(start))
	}
	e.sendProgress(finishedUpdate(task, res))

	for _, spec := range res.Enqueue {
		if spec.Payload != nil {
			spec.Payload.Base().SourceTaskID = task.ID
		}
		child, err := e.factory.CreateTask(store, spec)
		if err != nil {
			logger.Error("failed to enqueue follow-on task", "type", spec.Type, "error", err)
			continue
		}
		logger.Debug("follow-on task queued", "child_id", child.ID, "type", child.Type)
		e.sendProgress(enqueuedUpdate(task, child))
	}
}

// dispatch decodes the payload, looks up the processor and runs it under the task timeout.
// Decode failures, unknown types, returned errors and panics all become failed results.
func (e *Engine) dispatch(ctx context.Context, task *models.Task, logger *log.Logger) (res Result) {
	payload, err := task.Payload()
	if err != nil {
		return Failure(err.Error())
	}

	proc, err := e.registry.Get(task.Type)
	if err != nil {
		return Failure(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("processor panicked", "panic", r, "stack", string(debug.Stack()))
			res = Failure(fmt.Sprintf("panic: %v", r))
		}
	}()

	job := &Job{
		Task:    task,
		Payload: payload,
		Logger:  logger,
		progress: func(step, total int, msg string) {
			e.sendProgress(processingUpdate(task, step, total, msg))
		},
	}

	res, err = proc.Process(ctx, job)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Failure(fmt.Sprintf("%v: %v", shared.ErrTimeout, err))
		}
		return Failure(err.Error())
	}
	return res
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(update ProgressUpdate) {
	if e.opts.Progress == nil {
		return
	}
	select {
	case e.opts.Progress <- update:
	default:
	}
}
