package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/repositories"
	"github.com/desertthunder/curator/internal/shared"
)

// Spec describes a task to create.
type Spec struct {
	Type    models.TaskType
	Entity  models.EntityRef
	Payload models.Payload

	// Priority overrides the type's default priority when set.
	Priority *int

	// Unique returns an existing active task of the same type and entity instead of creating another.
	Unique bool
}

// Priority returns a pointer for [Spec.Priority].
func Priority(p int) *int {
	return &p
}

// InvalidStateError reports a lifecycle operation attempted on a task in the wrong state.
type InvalidStateError struct {
	TaskID string
	Status models.TaskStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s task %s with status %s", e.Op, e.TaskID, e.Status)
}

// Unwrap lets callers match [shared.ErrInvalidState] with errors.Is.
func (e *InvalidStateError) Unwrap() error {
	return shared.ErrInvalidState
}

// Factory is the single write path for task creation and lifecycle changes made outside a worker.
//
// It holds no locks, so processors may create tasks while their own task is running.
type Factory struct {
	repo *repositories.TaskRepository
}

// NewFactory creates a Factory over repo.
func NewFactory(repo *repositories.TaskRepository) *Factory {
	return &Factory{repo: repo}
}

// CreateTask validates spec and persists a new pending task.
//
// The payload must be the struct registered for the type; a nil payload is validated as empty,
// so types with required fields reject it.
func (f *Factory) CreateTask(ctx context.Context, spec Spec) (*models.Task, error) {
	if spec.Unique {
		task, _, err := f.CreateUnique(ctx, spec)
		return task, err
	}
	return f.create(ctx, spec, 0)
}

// CreateUnique returns the oldest active task with the same type and entity, or creates one.
// The boolean reports whether a task was created.
func (f *Factory) CreateUnique(ctx context.Context, spec Spec) (*models.Task, bool, error) {
	if !spec.Type.Valid() {
		return nil, false, fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, spec.Type)
	}

	existing, err := f.repo.FindActive(ctx, spec.Type, spec.Entity)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	task, err := f.create(ctx, spec, 0)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (f *Factory) create(ctx context.Context, spec Spec, retryCount int) (*models.Task, error) {
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, spec.Type)
	}

	payload := spec.Payload
	if payload == nil {
		p, err := models.NewPayload(spec.Type)
		if err != nil {
			return nil, err
		}
		payload = p
	}
	if !models.PayloadMatches(spec.Type, payload) {
		return nil, fmt.Errorf("%w: %T is not the payload for %s", shared.ErrInvalidPayload, payload, spec.Type)
	}

	metadata, err := models.EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Type, err)
	}

	priority := spec.Type.DefaultPriority()
	if spec.Priority != nil {
		priority = *spec.Priority
	}

	task := &models.Task{
		Type:       spec.Type,
		Priority:   priority,
		EntityMBID: spec.Entity.MBID,
		EntityID:   spec.Entity.ID,
		EntityName: spec.Entity.Name,
		Metadata:   metadata,
		RetryCount: retryCount,
	}
	if err := f.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Get returns a task by ID.
func (f *Factory) Get(ctx context.Context, id string) (*models.Task, error) {
	return f.repo.Get(ctx, id)
}

// List returns tasks matching criteria, newest first. See [repositories.TaskRepository.List].
func (f *Factory) List(ctx context.Context, criteria map[string]any) ([]*models.Task, error) {
	return f.repo.List(ctx, criteria)
}

// FindTasksByEntityID returns tasks referencing entityID, optionally of one type.
func (f *Factory) FindTasksByEntityID(ctx context.Context, entityID int64, taskType models.TaskType) ([]*models.Task, error) {
	if taskType != "" && !taskType.Valid() {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, taskType)
	}
	return f.repo.FindByEntityID(ctx, entityID, taskType)
}

// GetTasksForEntity returns tasks matching either identifier.
func (f *Factory) GetTasksForEntity(ctx context.Context, mbid string, entityID *int64) ([]*models.Task, error) {
	return f.repo.ListForEntity(ctx, mbid, entityID)
}

// CancelTask moves an active task to cancelled and records reason.
//
// A finalized task is left untouched and an [*InvalidStateError] is returned. Cancelling a running task
// does not interrupt its processor; the worker discards the result when it finishes.
func (f *Factory) CancelTask(ctx context.Context, id, reason string) (*models.Task, error) {
	task, err := f.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.IsFinalized() {
		return nil, &InvalidStateError{TaskID: id, Status: task.Status, Op: "cancel"}
	}

	if reason == "" {
		reason = "cancelled"
	}
	ok, err := f.repo.Cancel(ctx, id, reason)
	if err != nil {
		return nil, err
	}

	current, err := f.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidStateError{TaskID: id, Status: current.Status, Op: "cancel"}
	}
	return current, nil
}

// RetryFailedTask creates a new task mirroring a failed one. The failed task is not modified.
//
// The new task carries source_task_id and an incremented retry count. When the payload sets max_retries,
// a task that has already been retried that many times returns [shared.ErrRetryLimit].
func (f *Factory) RetryFailedTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := f.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusFailed {
		return nil, &InvalidStateError{TaskID: id, Status: task.Status, Op: "retry"}
	}

	payload, err := task.Payload()
	if err != nil {
		return nil, fmt.Errorf("cannot retry task %s: %w", id, err)
	}

	base := payload.Base()
	if base.MaxRetries > 0 && task.RetryCount >= base.MaxRetries {
		return nil, fmt.Errorf("%w: task %s was retried %d of %d times", shared.ErrRetryLimit, id, task.RetryCount, base.MaxRetries)
	}
	base.SourceTaskID = task.ID

	return f.create(ctx, Spec{
		Type:     task.Type,
		Entity:   task.Ref(),
		Payload:  payload,
		Priority: Priority(task.Priority),
	}, task.RetryCount+1)
}

// CleanupOldTasks deletes finalized tasks created more than daysOld days ago and returns how many were removed.
// Active tasks are never removed.
func (f *Factory) CleanupOldTasks(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 0 {
		return 0, fmt.Errorf("%w: days must not be negative", shared.ErrInvalidArgument)
	}
	cutoff := time.Now().UTC().Add(-time.Duration(daysOld) * 24 * time.Hour)
	return f.repo.DeleteFinalizedBefore(ctx, cutoff)
}

// GetTaskStatistics counts tasks by status and by type.
func (f *Factory) GetTaskStatistics(ctx context.Context) (*models.TaskStatistics, error) {
	return f.repo.Statistics(ctx)
}

// IsInvalidState reports whether err is an illegal lifecycle transition.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise) || errors.Is(err, shared.ErrInvalidState)
}
