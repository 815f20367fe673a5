package tasks

import (
	"fmt"

	"github.com/desertthunder/curator/internal/models"
)

// ProgressUpdate represents a progress event while the engine works through the queue.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase    Phase           // Lifecycle phase
	TaskID   string          // Task the event belongs to
	TaskType models.TaskType // Type of that task
	Step     int             // Current step reported by the processor
	Total    int             // Total steps, zero when unknown
	Message  string          // Human-readable message for display
	Data     any             // Optional phase-specific data for advanced UIs
}

// Phase enumerates the points at which the engine reports progress.
type Phase int

const (
	Claimed Phase = iota
	Processing
	Succeeded
	Failed
	Discarded
	Enqueued
)

func (p Phase) String() string {
	switch p {
	case Claimed:
		return "claimed"
	case Processing:
		return "processing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Discarded:
		return "discarded"
	case Enqueued:
		return "enqueued"
	default:
		return ""
	}
}

func claimedUpdate(task *models.Task, workerID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:    Claimed,
		TaskID:   task.ID,
		TaskType: task.Type,
		Message:  fmt.Sprintf("%s claimed %s", workerID, task.Type),
	}
}

func processingUpdate(task *models.Task, step, total int, msg string) ProgressUpdate {
	if total > 0 {
		msg = fmt.Sprintf("[%d/%d] %s", step, total, msg)
	}
	return ProgressUpdate{
		Phase:    Processing,
		TaskID:   task.ID,
		TaskType: task.Type,
		Step:     step,
		Total:    total,
		Message:  msg,
	}
}

func finishedUpdate(task *models.Task, res Result) ProgressUpdate {
	if res.OK {
		return ProgressUpdate{
			Phase:    Succeeded,
			TaskID:   task.ID,
			TaskType: task.Type,
			Message:  fmt.Sprintf("✓ %s: %s", task.Type, res.Message),
			Data:     res.Meta,
		}
	}
	return ProgressUpdate{
		Phase:    Failed,
		TaskID:   task.ID,
		TaskType: task.Type,
		Message:  fmt.Sprintf("✗ %s: %s", task.Type, res.Message),
		Data:     res.Meta,
	}
}

func discardedUpdate(task *models.Task) ProgressUpdate {
	return ProgressUpdate{
		Phase:    Discarded,
		TaskID:   task.ID,
		TaskType: task.Type,
		Message:  fmt.Sprintf("%s was cancelled while running, result discarded", task.Type),
	}
}

func enqueuedUpdate(parent, child *models.Task) ProgressUpdate {
	return ProgressUpdate{
		Phase:    Enqueued,
		TaskID:   child.ID,
		TaskType: child.Type,
		Message:  fmt.Sprintf("%s queued by %s", child.Type, parent.Type),
		Data:     parent.ID,
	}
}
