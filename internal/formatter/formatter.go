// package formatter renders tasks, queue statistics and unmatched tracks as text tables, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

// Format names an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "text", "txt", "table":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

const timeLayout = "2006-01-02 15:04:05"

var taskHeaders = []string{"ID", "Seq", "Type", "Status", "Pri", "Entity", "Created", "Duration", "Error"}

func taskRow(t *models.Task) []string {
	return []string{
		shortID(t.ID),
		strconv.FormatInt(t.Sequence, 10),
		string(t.Type),
		string(t.Status),
		strconv.Itoa(t.Priority),
		entityLabel(t),
		t.CreatedAt.Local().Format(timeLayout),
		durationLabel(t),
		truncate(t.ErrorMessage, 40),
	}
}

// shortID keeps the first UUID group, which is enough to tell tasks apart in a listing.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func entityLabel(t *models.Task) string {
	switch {
	case t.EntityName != "":
		return t.EntityName
	case t.EntityMBID != "":
		return t.EntityMBID
	case t.EntityID != nil:
		return "#" + strconv.FormatInt(*t.EntityID, 10)
	default:
		return "-"
	}
}

func durationLabel(t *models.Task) string {
	if t.StartedAt == nil {
		return "-"
	}
	return t.Duration().Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers(headers...)
}

// TasksToText renders tasks as a bordered table.
func TasksToText(tasks []*models.Task) []byte {
	if len(tasks) == 0 {
		return []byte("No tasks.\n")
	}

	t := newTable(taskHeaders...)
	for _, task := range tasks {
		t.Row(taskRow(task)...)
	}
	return []byte(t.String() + "\n")
}

// TasksToCSV renders tasks with full IDs and RFC 3339 timestamps.
func TasksToCSV(tasks []*models.Task) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Sequence", "Type", "Status", "Priority", "EntityMBID", "EntityID", "EntityName",
		"RetryCount", "CreatedAt", "StartedAt", "FinishedAt", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range tasks {
		entityID := ""
		if t.EntityID != nil {
			entityID = strconv.FormatInt(*t.EntityID, 10)
		}
		record := []string{
			t.ID,
			strconv.FormatInt(t.Sequence, 10),
			string(t.Type),
			string(t.Status),
			strconv.Itoa(t.Priority),
			t.EntityMBID,
			entityID,
			t.EntityName,
			strconv.Itoa(t.RetryCount),
			t.CreatedAt.UTC().Format(time.RFC3339),
			optionalTime(t.StartedAt),
			optionalTime(t.FinishedAt),
			t.ErrorMessage,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// TasksToMarkdown renders tasks as a Markdown table under title.
func TasksToMarkdown(tasks []*models.Task, title string) []byte {
	var buf bytes.Buffer

	if title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", title)
	}
	fmt.Fprintf(&buf, "**Tasks**: %d\n\n", len(tasks))
	if len(tasks) == 0 {
		return buf.Bytes()
	}

	writeMarkdownRow(&buf, taskHeaders)
	sep := make([]string, len(taskHeaders))
	for i := range sep {
		sep[i] = "---"
	}
	writeMarkdownRow(&buf, sep)
	for _, t := range tasks {
		writeMarkdownRow(&buf, taskRow(t))
	}

	return buf.Bytes()
}

func writeMarkdownRow(buf *bytes.Buffer, cells []string) {
	buf.WriteString("|")
	for _, c := range cells {
		buf.WriteString(" " + strings.ReplaceAll(c, "|", `\|`) + " |")
	}
	buf.WriteString("\n")
}

// TaskDetail renders every field of one task, including its payload and result metadata.
func TaskDetail(t *models.Task) []byte {
	var buf bytes.Buffer

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&buf, "%-12s %s\n", name+":", value)
		}
	}

	field("ID", t.ID)
	field("Sequence", strconv.FormatInt(t.Sequence, 10))
	field("Type", string(t.Type))
	field("Status", string(t.Status))
	field("Priority", strconv.Itoa(t.Priority))
	field("Entity", entityLabel(t))
	field("Retries", strconv.Itoa(t.RetryCount))
	field("Worker", t.WorkerID)
	field("Created", t.CreatedAt.Local().Format(timeLayout))
	if t.StartedAt != nil {
		field("Started", t.StartedAt.Local().Format(timeLayout))
	}
	if t.FinishedAt != nil {
		field("Finished", t.FinishedAt.Local().Format(timeLayout))
	}
	if t.StartedAt != nil {
		field("Duration", durationLabel(t))
	}
	field("Error", t.ErrorMessage)

	if len(t.Metadata) > 0 && string(t.Metadata) != "{}" {
		if data, err := shared.MarshalJSON(t.Metadata, true); err == nil {
			fmt.Fprintf(&buf, "\nPayload:\n%s\n", data)
		}
	}
	if len(t.ResultMetadata) > 0 {
		if data, err := shared.MarshalJSON(t.ResultMetadata, true); err == nil {
			fmt.Fprintf(&buf, "\nResult:\n%s\n", data)
		}
	}

	return buf.Bytes()
}

// StatsToText renders queue statistics as two tables, by status in lifecycle order and by type.
func StatsToText(stats *models.TaskStatistics) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Total tasks: %d\n\n", stats.Total)

	byStatus := newTable("Status", "Count")
	for _, s := range models.TaskStatuses() {
		byStatus.Row(string(s), strconv.Itoa(stats.ByStatus[s]))
	}
	buf.WriteString(byStatus.String() + "\n")

	if len(stats.ByType) > 0 {
		byType := newTable("Type", "Count")
		for _, t := range sortedTypes(stats.ByType) {
			byType.Row(string(t), strconv.Itoa(stats.ByType[t]))
		}
		buf.WriteString("\n" + byType.String() + "\n")
	}

	return buf.Bytes()
}

// StatsToMarkdown renders queue statistics as Markdown tables.
func StatsToMarkdown(stats *models.TaskStatistics) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Task Statistics\n\n**Total**: %d\n\n## By Status\n\n", stats.Total)

	writeMarkdownRow(&buf, []string{"Status", "Count"})
	writeMarkdownRow(&buf, []string{"---", "---:"})
	for _, s := range models.TaskStatuses() {
		writeMarkdownRow(&buf, []string{string(s), strconv.Itoa(stats.ByStatus[s])})
	}

	if len(stats.ByType) > 0 {
		buf.WriteString("\n## By Type\n\n")
		writeMarkdownRow(&buf, []string{"Type", "Count"})
		writeMarkdownRow(&buf, []string{"---", "---:"})
		for _, t := range sortedTypes(stats.ByType) {
			writeMarkdownRow(&buf, []string{string(t), strconv.Itoa(stats.ByType[t])})
		}
	}

	return buf.Bytes()
}

func sortedTypes(m map[models.TaskType]int) []models.TaskType {
	types := make([]models.TaskType, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// UnmatchedToText renders unmatched tracks with their stored suggestion, if any.
func UnmatchedToText(tracks []*models.UnmatchedTrack) []byte {
	if len(tracks) == 0 {
		return []byte("No unmatched tracks.\n")
	}

	t := newTable("ID", "Artist", "Title", "Album", "Length", "Suggestion", "Score")
	for _, u := range tracks {
		suggestion, score := "-", "-"
		if u.SuggestedTrackID != nil {
			suggestion = "#" + strconv.FormatInt(*u.SuggestedTrackID, 10)
			score = strconv.FormatFloat(u.SuggestionScore, 'f', 1, 64)
		}
		t.Row(
			strconv.FormatInt(u.ID, 10),
			truncate(u.Artist, 24),
			truncate(u.Title, 32),
			truncate(u.Album, 24),
			shared.FormatDuration(u.Duration),
			suggestion,
			score,
		)
	}
	return []byte(t.String() + "\n")
}

// LibrariesToText renders configured libraries.
func LibrariesToText(libs []*models.Library) []byte {
	if len(libs) == 0 {
		return []byte("No libraries.\n")
	}

	t := newTable("ID", "Name", "Path", "Enabled", "Last Scan")
	for _, l := range libs {
		scanned := "never"
		if l.LastScannedAt != nil {
			scanned = l.LastScannedAt.Local().Format(timeLayout)
		}
		t.Row(strconv.FormatInt(l.ID, 10), l.Name, l.Path, strconv.FormatBool(l.Enabled), scanned)
	}
	return []byte(t.String() + "\n")
}

// RenderTasks encodes tasks in format. Markdown output is titled with title.
func RenderTasks(tasks []*models.Task, format Format, title string) ([]byte, error) {
	switch format {
	case FormatText:
		return TasksToText(tasks), nil
	case FormatCSV:
		return TasksToCSV(tasks)
	case FormatMarkdown:
		return TasksToMarkdown(tasks, title), nil
	case FormatJSON:
		if tasks == nil {
			tasks = []*models.Task{}
		}
		return shared.MarshalJSON(tasks, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteTasksExport writes tasks to path, choosing the format from the file extension.
//
// The parent directory is created when missing.
func WriteTasksExport(tasks []*models.Task, path string) (Format, error) {
	if path == "" {
		return "", fmt.Errorf("%w: export path", shared.ErrMissingArgument)
	}

	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return "", err
	}

	data, err := RenderTasks(tasks, format, "Tasks")
	if err != nil {
		return "", fmt.Errorf("failed to render tasks: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return format, nil
}
