package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

// candidateWindow bounds how many pending rows are considered per claim, from each end of the queue.
const candidateWindow = 64

const taskColumns = `id, sequence, type, status, priority, entity_mbid, entity_id, entity_name, metadata,
	result_metadata, error_message, retry_count, worker_id, created_at, started_at, finished_at`

// TaskRepository implements models.Repository[*models.Task, string] and the queue operations on top of it.
//
// Status transitions are compare-and-set UPDATEs so that concurrent workers and cancellations never overwrite each other.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new pending [models.Task] with a generated ID and sequence
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "tasks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	task.ID = shared.GenerateID()
	task.Sequence = sequence
	task.Status = models.StatusPending
	task.CreatedAt = now()
	if len(task.Metadata) == 0 {
		task.Metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO tasks (id, sequence, type, status, priority, entity_mbid, entity_id, entity_name, metadata, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.Sequence,
		task.Type,
		task.Status,
		task.Priority,
		task.EntityMBID,
		nullInt(task.EntityID),
		task.EntityName,
		string(task.Metadata),
		task.RetryCount,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// Get retrieves a task by ID
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := r.scan(row)
	if err != nil {
		return nil, notFound(err, shared.ErrTaskNotFound, "task", id)
	}
	return task, nil
}

// Update writes the mutable lifecycle fields of a task unconditionally.
//
// Workers use [TaskRepository.Claim], [TaskRepository.Complete] and [TaskRepository.Cancel] instead.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	resultMeta, err := encodeResult(task.ResultMetadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET status = ?, error_message = ?, result_metadata = ?, worker_id = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		task.Status,
		task.ErrorMessage,
		resultMeta,
		task.WorkerID,
		nullTime(task.StartedAt),
		nullTime(task.FinishedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return expectOne(result, shared.ErrTaskNotFound, "task", task.ID)
}

// Delete removes a task by ID
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectOne(result, shared.ErrTaskNotFound, "task", id)
}

// List retrieves tasks matching the given criteria, newest first.
//
// Supported keys: status, type, entity_mbid (strings), entity_id, limit (ints).
func (r *TaskRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Task, error) {
	w := &where{}
	if v, ok := criteria["status"]; ok && v != "" {
		w.eq("status", fmt.Sprint(v))
	}
	if v, ok := criteria["type"]; ok && v != "" {
		w.eq("type", fmt.Sprint(v))
	}
	if v, ok := stringCriteria(criteria, "entity_mbid"); ok {
		w.eq("entity_mbid", v)
	}
	if v, ok := int64Criteria(criteria, "entity_id"); ok {
		w.eq("entity_id", v)
	}

	query := "SELECT " + taskColumns + " FROM tasks" + w.String() + " ORDER BY sequence DESC" + limitClause(criteria)
	return r.query(ctx, query, w.args...)
}

// FindByEntityID returns tasks referencing entityID, optionally restricted to one type, oldest first.
func (r *TaskRepository) FindByEntityID(ctx context.Context, entityID int64, taskType models.TaskType) ([]*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE entity_id = ?"
	args := []any{entityID}
	if taskType != "" {
		query += " AND type = ?"
		args = append(args, taskType)
	}
	query += " ORDER BY sequence ASC"
	return r.query(ctx, query, args...)
}

// ListForEntity returns tasks matching either the external ID or the internal ID, oldest first.
func (r *TaskRepository) ListForEntity(ctx context.Context, mbid string, entityID *int64) ([]*models.Task, error) {
	var clauses []string
	var args []any
	if mbid != "" {
		clauses = append(clauses, "entity_mbid = ?")
		args = append(args, mbid)
	}
	if entityID != nil {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, *entityID)
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: mbid or entity id", shared.ErrMissingArgument)
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " + strings.Join(clauses, " OR ") + " ORDER BY sequence ASC"
	return r.query(ctx, query, args...)
}

// FindActive returns the oldest pending or running task of the given type for the entity, or nil.
func (r *TaskRepository) FindActive(ctx context.Context, taskType models.TaskType, ref models.EntityRef) (*models.Task, error) {
	query := "SELECT " + taskColumns + ` FROM tasks
		WHERE type = ? AND status IN ('pending', 'running') AND entity_mbid = ? AND entity_id IS ? AND entity_name = ?
		ORDER BY sequence ASC LIMIT 1`

	tasks, err := r.query(ctx, query, taskType, ref.MBID, nullInt(ref.ID), ref.Name)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// Claim atomically moves a pending task to running. It returns false when another worker claimed it first
// or the task was cancelled.
func (r *TaskRepository) Claim(ctx context.Context, id, workerID string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'running', worker_id = ?, started_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, workerID, now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// ClaimNext claims the best pending task for workerID, or returns nil when the queue is empty.
//
// Candidates are ranked by effective priority (see [EffectivePriority]) then by sequence.
// Lost races move on to the next candidate.
func (r *TaskRepository) ClaimNext(ctx context.Context, workerID string, aging time.Duration) (*models.Task, error) {
	candidates, err := r.pendingCandidates(ctx)
	if err != nil {
		return nil, err
	}

	at := now()
	sort.SliceStable(candidates, func(i, j int) bool {
		pi := EffectivePriority(candidates[i].priority, at.Sub(candidates[i].createdAt), aging)
		pj := EffectivePriority(candidates[j].priority, at.Sub(candidates[j].createdAt), aging)
		if pi != pj {
			return pi > pj
		}
		return candidates[i].sequence < candidates[j].sequence
	})

	for _, c := range candidates {
		ok, err := r.Claim(ctx, c.id, workerID)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.Get(ctx, c.id)
		}
	}

	return nil, nil
}

type candidate struct {
	id        string
	priority  int
	sequence  int64
	createdAt time.Time
}

// pendingCandidates returns the head of the queue by priority plus the oldest pending tasks,
// so that aged low-priority work is always considered.
func (r *TaskRepository) pendingCandidates(ctx context.Context) ([]candidate, error) {
	seen := make(map[string]bool)
	var out []candidate

	for _, order := range []string{"priority DESC, sequence ASC", "sequence ASC"} {
		query := "SELECT id, priority, sequence, created_at FROM tasks WHERE status = 'pending' ORDER BY " + order + " LIMIT ?"

		rows, err := r.db.QueryContext(ctx, query, candidateWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to query pending tasks: %w", err)
		}

		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.id, &c.priority, &c.sequence, &c.createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan candidate: %w", err)
			}
			if !seen[c.id] {
				seen[c.id] = true
				out = append(out, c)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("row iteration error: %w", err)
		}
	}

	return out, nil
}

// EffectivePriority raises priority by one level per elapsed aging interval, capped at [models.MaxPriority].
//
// A non-positive aging interval disables aging.
func EffectivePriority(priority int, age, aging time.Duration) int {
	if aging <= 0 || age <= 0 {
		return priority
	}
	p := priority + int(age/aging)
	if p > models.MaxPriority {
		return models.MaxPriority
	}
	return p
}

// Complete records the outcome of a running task. It returns false when the task is no longer running,
// which happens when it was cancelled mid-flight; the caller must then discard the result.
func (r *TaskRepository) Complete(ctx context.Context, id string, status models.TaskStatus, errMsg string, resultMeta map[string]any) (bool, error) {
	if status != models.StatusSuccess && status != models.StatusFailed {
		return false, fmt.Errorf("%w: cannot complete with status %s", shared.ErrInvalidState, status)
	}

	encoded, err := encodeResult(resultMeta)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE tasks
		SET status = ?, error_message = ?, result_metadata = ?, finished_at = ?
		WHERE id = ? AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, status, errMsg, encoded, now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// Cancel moves an active task to cancelled and records the reason. It returns false when the task
// is already finalized, leaving the terminal outcome untouched.
func (r *TaskRepository) Cancel(ctx context.Context, id, reason string) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'cancelled', error_message = ?, finished_at = ?
		WHERE id = ? AND status IN ('pending', 'running')
	`

	result, err := r.db.ExecContext(ctx, query, reason, now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// FailStale marks tasks that have been running since before cutoff as failed.
//
// Recovers tasks whose worker exited without recording an outcome.
func (r *TaskRepository) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE tasks
		SET status = 'failed', error_message = 'worker stopped before the task finished', finished_at = ?
		WHERE status = 'running' AND started_at < ?
	`

	result, err := r.db.ExecContext(ctx, query, now(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale tasks: %w", err)
	}
	return result.RowsAffected()
}

// DeleteFinalizedBefore removes success, failed and cancelled tasks created before cutoff.
// Active tasks are never removed.
func (r *TaskRepository) DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ('success', 'failed', 'cancelled') AND created_at < ?
	`

	result, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	return result.RowsAffected()
}

// Statistics counts tasks by status and by type.
func (r *TaskRepository) Statistics(ctx context.Context) (*models.TaskStatistics, error) {
	stats := &models.TaskStatistics{
		ByStatus: make(map[models.TaskStatus]int),
		ByType:   make(map[models.TaskType]int),
	}
	for _, s := range models.TaskStatuses() {
		stats.ByStatus[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, "SELECT status, type, COUNT(*) FROM tasks GROUP BY status, type")
	if err != nil {
		return nil, fmt.Errorf("failed to query task statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			typ    string
			count  int
		)
		if err := rows.Scan(&status, &typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task statistics: %w", err)
		}
		stats.ByStatus[models.TaskStatus(status)] += count
		stats.ByType[models.TaskType(typ)] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}

func (r *TaskRepository) query(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tasks, nil
}

// scan reads a task row in [taskColumns] order
func (r *TaskRepository) scan(row rowScanner) (*models.Task, error) {
	var (
		task       models.Task
		entityID   sql.NullInt64
		metadata   string
		resultMeta string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&task.ID, &task.Sequence, &task.Type, &task.Status, &task.Priority,
		&task.EntityMBID, &entityID, &task.EntityName, &metadata,
		&resultMeta, &task.ErrorMessage, &task.RetryCount, &task.WorkerID,
		&task.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	task.EntityID = intPtr(entityID)
	task.Metadata = json.RawMessage(metadata)
	task.StartedAt = timePtr(startedAt)
	task.FinishedAt = timePtr(finishedAt)

	if resultMeta != "" {
		if err := json.Unmarshal([]byte(resultMeta), &task.ResultMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode result metadata: %w", err)
		}
	}

	return &task, nil
}

func encodeResult(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode result metadata: %w", err)
	}
	return string(data), nil
}
