package tasks

import (
	"github.com/charmbracelet/log"

	"github.com/desertthunder/curator/internal/models"
)

// Outcome messages shared by processors.
const (
	MsgCreated         = "created"
	MsgUpdated         = "updated"
	MsgAlreadyExists   = "already_exists"
	MsgAlreadyGone     = "already_gone"
	MsgAlreadyMatched  = "already_matched"
	MsgAlreadyAnalyzed = "already_analyzed"
	MsgAlreadyEnabled  = "already_enabled"
	MsgAlreadyDisabled = "already_disabled"
	MsgDryRun          = "dry_run"
	MsgUnchanged       = "unchanged"
	MsgNoMatch         = "no_match"
	MsgSuggested       = "suggested"
	MsgBound           = "bound"
)

// Result is the outcome of one processor run.
//
// Enqueue lists follow-on tasks. The engine creates them only after the result is recorded,
// and drops them when the task was cancelled while running.
type Result struct {
	OK      bool
	Message string
	Meta    map[string]any
	Enqueue []Spec
}

// Success returns a successful result with a short outcome message.
func Success(msg string) Result {
	return Result{OK: true, Message: msg, Meta: map[string]any{}}
}

// Failure returns a failed result; msg becomes the task's error message.
func Failure(msg string) Result {
	return Result{OK: false, Message: msg, Meta: map[string]any{}}
}

// With adds a result metadata entry.
func (r Result) With(key string, value any) Result {
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}
	r.Meta[key] = value
	return r
}

// Then appends follow-on tasks.
func (r Result) Then(specs ...Spec) Result {
	r.Enqueue = append(r.Enqueue, specs...)
	return r
}

// Status is the terminal task status for the result.
func (r Result) Status() models.TaskStatus {
	if r.OK {
		return models.StatusSuccess
	}
	return models.StatusFailed
}

// Job is what a processor receives: the claimed task, its decoded payload and a task-scoped logger.
type Job struct {
	Task    *models.Task
	Payload models.Payload
	Logger  *log.Logger

	progress func(step, total int, msg string)
}

// Progress reports intermediate progress for long running processors.
func (j *Job) Progress(step, total int, msg string) {
	if j.progress != nil {
		j.progress(step, total, msg)
	}
}
