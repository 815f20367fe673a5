package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/curator/internal/shared"
)

// TaskType identifies the kind of work a [Task] performs.
type TaskType string

const (
	TaskSyncArtist            TaskType = "sync-artist"
	TaskAddArtist             TaskType = "add-artist" // legacy alias of sync-artist
	TaskSyncArtistAlbums      TaskType = "sync-artist-albums"
	TaskSyncAllArtists        TaskType = "sync-all-artists"
	TaskSyncAlbum             TaskType = "sync-album"
	TaskAddAlbum              TaskType = "add-album"
	TaskUpdateAlbumStatuses   TaskType = "update-album-statuses"
	TaskScanLibrary           TaskType = "scan-library"
	TaskProcessLibraryFile    TaskType = "process-library-file"
	TaskAutoAssociateTrack    TaskType = "auto-associate-track"
	TaskAutoAssociateTracks   TaskType = "auto-associate-tracks"
	TaskAssociateArtist       TaskType = "associate-artist"
	TaskAssociateAlbum        TaskType = "associate-album"
	TaskAnalyzeAudioQuality   TaskType = "analyze-audio-quality"
	TaskFixTrackStatuses      TaskType = "fix-track-statuses"
	TaskCacheClear            TaskType = "cache-clear"
	TaskPluginInstall         TaskType = "plugin-install"
	TaskRemotePluginInstall   TaskType = "remote-plugin-install"
	TaskPluginUninstall       TaskType = "plugin-uninstall"
	TaskPluginEnable          TaskType = "plugin-enable"
	TaskPluginDisable         TaskType = "plugin-disable"
	TaskPluginUpgrade         TaskType = "plugin-upgrade"
	TaskPluginReferenceChange TaskType = "plugin-reference-change"
	TaskNPMBuild              TaskType = "npm-build"
)

// defaultPriorities doubles as the closed set of known task types.
var defaultPriorities = map[TaskType]int{
	TaskSyncArtist:            3,
	TaskAddArtist:             3,
	TaskSyncArtistAlbums:      2,
	TaskSyncAllArtists:        1,
	TaskSyncAlbum:             2,
	TaskAddAlbum:              3,
	TaskUpdateAlbumStatuses:   1,
	TaskScanLibrary:           2,
	TaskProcessLibraryFile:    2,
	TaskAutoAssociateTrack:    2,
	TaskAutoAssociateTracks:   1,
	TaskAssociateArtist:       4,
	TaskAssociateAlbum:        4,
	TaskAnalyzeAudioQuality:   0,
	TaskFixTrackStatuses:      1,
	TaskCacheClear:            3,
	TaskPluginInstall:         5,
	TaskRemotePluginInstall:   5,
	TaskPluginUninstall:       5,
	TaskPluginEnable:          5,
	TaskPluginDisable:         5,
	TaskPluginUpgrade:         4,
	TaskPluginReferenceChange: 4,
	TaskNPMBuild:              4,
}

// Valid reports whether t is a member of the closed task type enumeration.
func (t TaskType) Valid() bool {
	_, ok := defaultPriorities[t]
	return ok
}

// DefaultPriority is the priority used when a caller does not supply one.
func (t TaskType) DefaultPriority() int {
	return defaultPriorities[t]
}

func (t TaskType) String() string { return string(t) }

// ParseTaskType validates s against the known task types.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, s)
	}
	return t, nil
}

// TaskTypes returns every known task type in lexical order.
func TaskTypes() []TaskType {
	types := make([]TaskType, 0, len(defaultPriorities))
	for t := range defaultPriorities {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// TaskStatus is the lifecycle state of a [Task].
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusSuccess   TaskStatus = "success"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// TaskStatuses lists every status in lifecycle order.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled}
}

// IsActive reports whether the status is pending or running.
func (s TaskStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// IsFinalized reports whether the status is terminal.
func (s TaskStatus) IsFinalized() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s.IsActive() || s.IsFinalized()
}

const (
	MinPriority = 0
	MaxPriority = 5
)

// Task is a persisted unit of asynchronous work.
//
// Only status, timestamps, error message, worker and result metadata change after creation.
type Task struct {
	ID             string          `json:"id"`
	Sequence       int64           `json:"sequence"`
	Type           TaskType        `json:"type"`
	Status         TaskStatus      `json:"status"`
	Priority       int             `json:"priority"`
	EntityMBID     string          `json:"entity_mbid,omitempty"`
	EntityID       *int64          `json:"entity_id,omitempty"`
	EntityName     string          `json:"entity_name,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	ResultMetadata map[string]any  `json:"result_metadata,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	RetryCount     int             `json:"retry_count"`
	WorkerID       string          `json:"worker_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// IsActive reports whether the task is pending or running.
func (t *Task) IsActive() bool { return t.Status.IsActive() }

// IsFinalized reports whether the task reached success, failed or cancelled.
func (t *Task) IsFinalized() bool { return t.Status.IsFinalized() }

// Duration is the wall time between start and finish, or start and now while running.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.FinishedAt != nil {
		end = *t.FinishedAt
	}
	return end.Sub(*t.StartedAt)
}

// Validate checks the task's type, priority and status.
func (t *Task) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, t.Type)
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("%w: priority %d outside %d-%d", shared.ErrInvalidInput, t.Priority, MinPriority, MaxPriority)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("%w: status %q", shared.ErrInvalidInput, t.Status)
	}
	return nil
}

// Payload decodes the task's metadata into its typed payload.
func (t *Task) Payload() (Payload, error) {
	return DecodePayload(t.Type, t.Metadata)
}

// EntityRef carries the optional identifiers of the entity a task acts on.
type EntityRef struct {
	MBID string
	ID   *int64
	Name string
}

// Ref returns the task's entity reference.
func (t *Task) Ref() EntityRef {
	return EntityRef{MBID: t.EntityMBID, ID: t.EntityID, Name: t.EntityName}
}

// ID64 returns a pointer to id, for populating optional entity references.
func ID64(id int64) *int64 {
	return &id
}

// TaskStatistics summarizes the queue by status and by type.
type TaskStatistics struct {
	Total    int                `json:"total"`
	ByStatus map[TaskStatus]int `json:"by_status"`
	ByType   map[TaskType]int   `json:"by_type"`
}
