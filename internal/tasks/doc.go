// Package tasks runs curator's background work: a persisted priority queue of typed tasks and the processors
// that carry them out.
//
// # Lifecycle
//
// Tasks are created through the [Factory], which validates the payload against the task type and applies the
// type's default priority. [Factory.CreateUnique] returns an existing pending or running task for the same type
// and entity instead of queueing a duplicate. A task moves pending → running → success | failed, and may be
// cancelled from pending or running. [Factory.RetryFailedTask] never reopens a failed task; it creates a new one
// carrying source_task_id.
//
// # Engine
//
// [Engine] workers claim the highest effective priority task (priority plus one per aging interval waited),
// decode its payload and dispatch through the [Registry]. Claims and completions are compare-and-set on status,
// so a task cancelled mid-run keeps its cancelled status and its [Result] is discarded along with any follow-ons.
//
// Processors return foreseeable failures (missing entity, remote 404, bad input) as a failed [Result] and
// unexpected errors as error values. Panics and timeouts become failures of the task, never of the worker.
//
// # Chaining
//
// Processors do not create tasks directly. They list follow-ons in [Result.Enqueue] and the engine creates them
// after the originating task is recorded as successful:
//
//	scan-library → process-library-file → auto-associate-track → analyze-audio-quality
//	sync-artist → sync-artist-albums → sync-album
//	associate-artist → sync-artist-albums
//
// # Progress Reporting
//
// Workers publish [ProgressUpdate] values on an optional channel. Sends use select with default, so a slow
// consumer drops updates rather than stalling a worker.
//
// # Scheduling
//
// [Scheduler] wraps robfig/cron to queue library scans and artist syncs, and to prune old tasks, on cron expressions
// from the schedule config section.
package tasks
