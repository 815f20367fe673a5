package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
	th "github.com/desertthunder/curator/internal/testing"
)

func sampleTasks() []*models.Task {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	finished := started.Add(1500 * time.Millisecond)

	return []*models.Task{
		{
			ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
			Sequence:   1,
			Type:       models.TaskSyncArtist,
			Status:     models.StatusSuccess,
			Priority:   3,
			EntityMBID: "b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d",
			EntityName: "The Beatles",
			Metadata:   json.RawMessage(`{"mbid":"b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d"}`),
			ResultMetadata: map[string]any{
				"message": "artist_synced",
			},
			CreatedAt:  created,
			StartedAt:  &started,
			FinishedAt: &finished,
		},
		{
			ID:           "7c9e6679-7425-40de-944b-e07fc1f90ae7",
			Sequence:     2,
			Type:         models.TaskScanLibrary,
			Status:       models.StatusFailed,
			Priority:     2,
			EntityID:     models.ID64(4),
			Metadata:     json.RawMessage(`{"library_id":4}`),
			ErrorMessage: "library root | missing",
			RetryCount:   1,
			CreatedAt:    created.Add(time.Minute),
		},
	}
}

func TestParseFormat(t *testing.T) {
	tc := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"table", FormatText},
		{".csv", FormatCSV},
		{"MD", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{".json", FormatJSON},
	}

	for _, tt := range tc {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Fatalf("failed to parse %q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTaskFormatters(t *testing.T) {
	tasks := sampleTasks()

	t.Run("TasksToText", func(t *testing.T) {
		output := string(TasksToText(tasks))

		for _, want := range []string{"Type", "Status", "0f8fad5b", "sync-artist", "The Beatles", "#4", "1.5s"} {
			if !strings.Contains(output, want) {
				t.Errorf("text table missing %q, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "d9cb-469f") {
			t.Errorf("expected shortened task ids, got:\n%s", output)
		}

		if got := string(TasksToText(nil)); got != "No tasks.\n" {
			t.Errorf("unexpected empty output %q", got)
		}
	})

	t.Run("TasksToCSV", func(t *testing.T) {
		data, err := TasksToCSV(tasks)
		if err != nil {
			t.Fatalf("TasksToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if !strings.HasPrefix(lines[0], "ID,Sequence,Type,Status,Priority") {
			t.Errorf("CSV missing headers, got: %s", lines[0])
		}
		if !strings.Contains(lines[1], "0f8fad5b-d9cb-469f-a165-70867728950e") || !strings.Contains(lines[1], "2024-03-01T12:00:01Z") {
			t.Errorf("CSV row missing full id or start time: %s", lines[1])
		}
		if !strings.Contains(lines[2], ",4,") || !strings.Contains(lines[2], "library root | missing") {
			t.Errorf("CSV row missing entity id or error: %s", lines[2])
		}
	})

	t.Run("TasksToMarkdown", func(t *testing.T) {
		output := string(TasksToMarkdown(tasks, "Failed Tasks"))

		if !strings.HasPrefix(output, "# Failed Tasks\n\n**Tasks**: 2") {
			t.Errorf("unexpected markdown header:\n%s", output)
		}
		if !strings.Contains(output, "| ID | Seq | Type |") {
			t.Errorf("markdown missing table header:\n%s", output)
		}
		if !strings.Contains(output, `library root \| missing`) {
			t.Errorf("expected pipes in cells to be escaped:\n%s", output)
		}

		empty := string(TasksToMarkdown(nil, ""))
		if strings.Contains(empty, "|") {
			t.Errorf("expected no table for empty list, got:\n%s", empty)
		}
	})

	t.Run("TaskDetail", func(t *testing.T) {
		output := string(TaskDetail(tasks[0]))

		for _, want := range []string{"ID:", tasks[0].ID, "Status:      success", "Payload:", `"mbid"`, "Result:", "artist_synced"} {
			if !strings.Contains(output, want) {
				t.Errorf("detail missing %q, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "Worker:") {
			t.Errorf("expected empty fields to be omitted:\n%s", output)
		}
	})

	t.Run("RenderTasks", func(t *testing.T) {
		data, err := RenderTasks(nil, FormatJSON, "")
		if err != nil {
			t.Fatalf("RenderTasks failed: %v", err)
		}
		if strings.TrimSpace(string(data)) != "[]" {
			t.Errorf("expected an empty JSON array, got %s", data)
		}

		data, err = RenderTasks(tasks, FormatJSON, "")
		if err != nil {
			t.Fatalf("RenderTasks failed: %v", err)
		}
		var decoded []models.Task
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("failed to decode JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[1].ErrorMessage != tasks[1].ErrorMessage {
			t.Errorf("unexpected decoded tasks %+v", decoded)
		}

		if _, err := RenderTasks(tasks, Format("yaml"), ""); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestStatsFormatters(t *testing.T) {
	stats := &models.TaskStatistics{
		Total:    5,
		ByStatus: map[models.TaskStatus]int{models.StatusPending: 3, models.StatusFailed: 2},
		ByType:   map[models.TaskType]int{models.TaskScanLibrary: 4, models.TaskCacheClear: 1},
	}

	t.Run("StatsToText", func(t *testing.T) {
		output := string(StatsToText(stats))

		if !strings.HasPrefix(output, "Total tasks: 5") {
			t.Errorf("unexpected header:\n%s", output)
		}
		for _, s := range models.TaskStatuses() {
			if !strings.Contains(output, string(s)) {
				t.Errorf("expected every status to be listed, missing %s:\n%s", s, output)
			}
		}
		if strings.Index(output, "cache-clear") > strings.Index(output, "scan-library") {
			t.Errorf("expected types in lexical order:\n%s", output)
		}
	})

	t.Run("StatsToMarkdown", func(t *testing.T) {
		output := string(StatsToMarkdown(stats))

		for _, want := range []string{"# Task Statistics", "**Total**: 5", "| pending | 3 |", "| running | 0 |", "## By Type", "| scan-library | 4 |"} {
			if !strings.Contains(output, want) {
				t.Errorf("markdown missing %q, got:\n%s", want, output)
			}
		}
	})
}

func TestCatalogFormatters(t *testing.T) {
	t.Run("UnmatchedToText", func(t *testing.T) {
		tracks := []*models.UnmatchedTrack{
			{ID: 1, Artist: "The Beatles", Title: "Come Together", Album: "Abbey Road", Duration: 259, SuggestedTrackID: models.ID64(12), SuggestionScore: 71.25},
			{ID: 2, Title: "Untitled", Duration: 61},
		}

		output := string(UnmatchedToText(tracks))
		for _, want := range []string{"Come Together", "4:19", "#12", "71.2", "1:01"} {
			if !strings.Contains(output, want) {
				t.Errorf("unmatched table missing %q, got:\n%s", want, output)
			}
		}

		if got := string(UnmatchedToText(nil)); got != "No unmatched tracks.\n" {
			t.Errorf("unexpected empty output %q", got)
		}
	})

	t.Run("LibrariesToText", func(t *testing.T) {
		scanned := time.Now()
		libs := []*models.Library{
			{ID: 1, Name: "Main", Path: "/music", Enabled: true, LastScannedAt: &scanned},
			{ID: 2, Name: "Archive", Path: "/archive"},
		}

		output := string(LibrariesToText(libs))
		for _, want := range []string{"Main", "/archive", "never", "false"} {
			if !strings.Contains(output, want) {
				t.Errorf("library table missing %q, got:\n%s", want, output)
			}
		}
	})
}

func TestWriteTasksExport(t *testing.T) {
	tasks := sampleTasks()

	tc := []struct {
		name   string
		file   string
		format Format
		want   string
	}{
		{"csv", "tasks.csv", FormatCSV, "ID,Sequence,Type"},
		{"markdown", "tasks.md", FormatMarkdown, "# Tasks"},
		{"json", "tasks.json", FormatJSON, `"sequence": 2`},
		{"text", "tasks.txt", FormatText, "sync-artist"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "exports", tt.file)

			format, err := WriteTasksExport(tasks, path)
			if err != nil {
				t.Fatalf("WriteTasksExport failed: %v", err)
			}
			if format != tt.format {
				t.Errorf("expected format %s, got %s", tt.format, format)
			}

			th.AssertDirExists(t, filepath.Dir(path))
			th.AssertFileExists(t, path)
			if content := th.MustReadFile(t, path); !strings.Contains(content, tt.want) {
				t.Errorf("export missing %q, got:\n%s", tt.want, content)
			}
		})
	}

	t.Run("errors", func(t *testing.T) {
		if _, err := WriteTasksExport(tasks, ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if _, err := WriteTasksExport(tasks, filepath.Join(t.TempDir(), "tasks.xml")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
