package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTasksFetched MsgKind = iota
	MsgTaskFetched
	MsgActionDone
	MsgProgressUpdate
	MsgProgressClosed
	MsgTick
)

type tasksFetched struct {
	tasks []*models.Task
	stats *models.TaskStatistics
	err   error
}

type actionDone struct {
	action string
	task   *models.Task
	err    error
}

// tasksFetchedMsg is the constructor for [MsgTasksFetched]
func tasksFetchedMsg(list []*models.Task, stats *models.TaskStatistics, err error) Msg {
	return Msg{kind: MsgTasksFetched, data: tasksFetched{list, stats, err}}
}

// taskFetchedMsg is the constructor for [MsgTaskFetched]
func taskFetchedMsg(task *models.Task, err error) Msg {
	return Msg{kind: MsgTaskFetched, data: actionDone{action: "get", task: task, err: err}}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(action string, task *models.Task, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{action, task, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

func progressClosedMsg() Msg {
	return Msg{kind: MsgProgressClosed}
}

func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
