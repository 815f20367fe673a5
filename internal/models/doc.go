// Package models defines domain entities and persistence interfaces for the curator.
//
// The package contains three categories of types:
//
// 1. Tasks: Persisted units of asynchronous work
//   - [Task] : Queue record with type, priority, entity reference, payload and lifecycle timestamps
//   - [TaskType] : Closed enumeration of every kind of work the engine dispatches
//   - [TaskStatus] : pending → running → success | failed, with cancelled reachable from any active state
//
// 2. Payloads: One struct per task type, serialized into the task's metadata column
//   - [DecodePayload] : Maps a [TaskType] to its payload struct and validates it
//   - [Common] : Retry bookkeeping shared by every payload (max_retries, source_task_id)
//
// 3. Catalog Entities: The music library the tasks operate on
//   - [Library] : A scanned filesystem root
//   - [Artist], [Album], [Track] : Catalog records synced from the metadata source
//   - [TrackFile] : Binding between a [Track] and a file on disk
//   - [UnmatchedTrack] : A file whose tags have not yet been bound to a [Track]
//   - [Plugin] : An installed extension with its tracked git reference
//
// All persistent entities implement [Model]. [Repository] defines the standard CRUD operations for database access.
package models
