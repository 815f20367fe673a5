// Package ui implements the task dashboard using bubbletea's Elm architecture.
//
// The dashboard has two views:
//  1. [TaskListView] : Auto-refreshing, filterable task list with per-status counts
//  2. [TaskDetailView] : Every field of one task, including payload and result metadata
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving messages via the Msg union type.
// Reads and lifecycle changes go through a [TaskSource], normally a [tasks.Factory]. When the dashboard runs its
// own engine, progress updates flow through a channel and are shown as recent activity.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) plus c to cancel, r to retry and s to cycle
// the status filter, with contextual help displayed via charmbracelet/bubbles/help.
package ui
