package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/curator/internal/formatter"
	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TaskListView ViewState = iota
	TaskDetailView
)

const activitySize = 5

// statusFilters is the cycle followed by the status filter key; the empty status shows everything.
var statusFilters = []models.TaskStatus{"", models.StatusPending, models.StatusRunning, models.StatusFailed, models.StatusSuccess, models.StatusCancelled}

// TaskSource is the part of [tasks.Factory] the dashboard needs.
type TaskSource interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	CancelTask(ctx context.Context, id, reason string) (*models.Task, error)
	RetryFailedTask(ctx context.Context, id string) (*models.Task, error)
	GetTaskStatistics(ctx context.Context) (*models.TaskStatistics, error)
}

// Options configures a [Model].
type Options struct {
	Refresh  time.Duration               // auto-refresh interval, zero disables it
	Limit    int                         // tasks loaded per refresh
	Progress <-chan tasks.ProgressUpdate // optional engine events shown as recent activity
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	source   TaskSource
	view     ViewState
	width    int
	height   int
	taskList list.Model
	tasks    []*models.Task
	stats    *models.TaskStatistics
	selected *models.Task
	filter   int
	activity []string
	flash    string
	err      error
	progress <-chan tasks.ProgressUpdate
	refresh  time.Duration
	limit    int
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model over source.
func NewModel(ctx context.Context, source TaskSource, opts Options) *Model {
	if opts.Limit <= 0 {
		opts.Limit = 200
	}

	taskList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	taskList.Title = "Tasks"
	taskList.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		source:   source,
		view:     TaskListView,
		taskList: taskList,
		progress: opts.Progress,
		refresh:  opts.Refresh,
		limit:    opts.Limit,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init loads the first page of tasks and starts listening for refresh ticks and progress events.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchTasks(), m.tick(), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-12)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TaskListView:
			return m.handleListKeys(msg)
		case TaskDetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTasksFetched:
		data := msg.data.(tasksFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.tasks = data.tasks
		m.stats = data.stats

		items := make([]list.Item, len(data.tasks))
		for i, t := range data.tasks {
			items[i] = taskItem{task: t}
			if m.selected != nil && t.ID == m.selected.ID {
				m.selected = t
			}
		}
		return m, m.taskList.SetItems(items)

	case MsgTaskFetched:
		data := msg.data.(actionDone)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.selected = data.task
		return m, nil

	case MsgActionDone:
		data := msg.data.(actionDone)
		if data.err != nil {
			m.flash = styles.err.Render(fmt.Sprintf("%s failed: %v", data.action, data.err))
			return m, nil
		}
		switch data.action {
		case "retry":
			m.flash = styles.ok.Render(fmt.Sprintf("✓ retried as #%d", data.task.Sequence))
		default:
			m.flash = styles.ok.Render(fmt.Sprintf("✓ %s #%d", data.action, data.task.Sequence))
			if m.selected != nil && m.selected.ID == data.task.ID {
				m.selected = data.task
			}
		}
		return m, m.fetchTasks()

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.activity = append(m.activity, update.Message)
		if len(m.activity) > activitySize {
			m.activity = m.activity[len(m.activity)-activitySize:]
		}
		return m, m.waitForProgress()

	case MsgProgressClosed:
		m.progress = nil
		return m, nil

	case MsgTick:
		return m, tea.Batch(m.fetchTasks(), m.tick())
	}

	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.taskList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.taskList, cmd = m.taskList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if t := m.current(); t != nil {
			m.selected = t
			m.view = TaskDetailView
			m.flash = ""
			return m, m.fetchTask(t.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		if t := m.current(); t != nil {
			return m, m.cancelTask(t.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.retry):
		if t := m.current(); t != nil {
			return m, m.retryTask(t.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.filter):
		m.filter = (m.filter + 1) % len(statusFilters)
		return m, m.fetchTasks()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchTasks()
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = TaskListView
		m.selected = nil
		m.flash = ""
	case key.Matches(msg, m.keys.cancel):
		if m.selected != nil {
			return m, m.cancelTask(m.selected.ID)
		}
	case key.Matches(msg, m.keys.retry):
		if m.selected != nil {
			return m, m.retryTask(m.selected.ID)
		}
	}
	return m, nil
}

// current returns the highlighted task in the list, if any.
func (m *Model) current() *models.Task {
	if item, ok := m.taskList.SelectedItem().(taskItem); ok {
		return item.task
	}
	return nil
}

func (m *Model) fetchTasks() tea.Cmd {
	criteria := map[string]any{"limit": m.limit}
	if s := statusFilters[m.filter]; s != "" {
		criteria["status"] = string(s)
	}

	return func() tea.Msg {
		found, err := m.source.List(m.ctx, criteria)
		if err != nil {
			return tasksFetchedMsg(nil, nil, err)
		}
		stats, err := m.source.GetTaskStatistics(m.ctx)
		return tasksFetchedMsg(found, stats, err)
	}
}

func (m *Model) fetchTask(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.source.Get(m.ctx, id)
		return taskFetchedMsg(task, err)
	}
}

func (m *Model) cancelTask(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.source.CancelTask(m.ctx, id, "cancelled from dashboard")
		return actionDoneMsg("cancel", task, err)
	}
}

func (m *Model) retryTask(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := m.source.RetryFailedTask(m.ctx, id)
		return actionDoneMsg("retry", task, err)
	}
}

func (m *Model) tick() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progress
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return progressClosedMsg()
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case TaskDetailView:
		return m.renderDetail()
	default:
		return m.renderList()
	}
}

func (m *Model) renderList() string {
	var b strings.Builder
	b.WriteString(m.renderSummary())
	b.WriteString("\n\n")
	b.WriteString(m.taskList.View())
	b.WriteString(m.renderFooter())

	helpKeys := []key.Binding{m.keys.enter, m.keys.cancel, m.keys.retry, m.keys.filter, m.keys.quit}
	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderSummary() string {
	filter := "all"
	if s := statusFilters[m.filter]; s != "" {
		filter = string(s)
	}
	if m.stats == nil {
		return styles.help.Render("filter: " + filter)
	}

	parts := make([]string, 0, len(models.TaskStatuses()))
	for _, s := range models.TaskStatuses() {
		parts = append(parts, styles.status(s).Render(fmt.Sprintf("%s %d", s, m.stats.ByStatus[s])))
	}
	return fmt.Sprintf("%s • total %d • filter: %s", strings.Join(parts, " • "), m.stats.Total, filter)
}

func (m *Model) renderFooter() string {
	var b strings.Builder
	if len(m.activity) > 0 {
		b.WriteString("\n\n" + styles.label.Render("Activity"))
		for _, line := range m.activity {
			b.WriteString("\n  " + styles.help.Render(line))
		}
	}
	if m.flash != "" {
		b.WriteString("\n\n" + m.flash)
	}
	if m.err != nil {
		b.WriteString("\n\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return b.String()
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return styles.help.Render("No task selected\n\nPress esc to go back")
	}

	title := styles.title.Render(fmt.Sprintf("Task #%d %s", m.selected.Sequence, m.selected.Type))
	body := string(formatter.TaskDetail(m.selected))

	helpKeys := []key.Binding{m.keys.back}
	if m.selected.IsActive() {
		helpKeys = append(helpKeys, m.keys.cancel)
	}
	if m.selected.Status == models.StatusFailed {
		helpKeys = append(helpKeys, m.keys.retry)
	}
	helpKeys = append(helpKeys, m.keys.quit)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, body, m.renderFooter(), m.help.ShortHelpView(helpKeys))
}
