package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/curator/internal/shared"
)

// Library is a filesystem root scanned for audio files.
type Library struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	Enabled       bool       `json:"enabled"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (l *Library) Validate() error {
	if strings.TrimSpace(l.Path) == "" {
		return fmt.Errorf("%w: library path is required", shared.ErrInvalidInput)
	}
	if l.Name == "" {
		return fmt.Errorf("%w: library name is required", shared.ErrInvalidInput)
	}
	return nil
}

// Artist is a catalog artist, keyed externally by its MusicBrainz ID.
type Artist struct {
	ID           int64      `json:"id"`
	MBID         string     `json:"mbid,omitempty"`
	Name         string     `json:"name"`
	SortName     string     `json:"sort_name,omitempty"`
	Monitored    bool       `json:"monitored"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (a *Artist) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: artist name is required", shared.ErrInvalidInput)
	}
	return nil
}

// AlbumStatus tracks how much of an album exists on disk.
type AlbumStatus string

const (
	AlbumMissing  AlbumStatus = "missing"
	AlbumPartial  AlbumStatus = "partial"
	AlbumComplete AlbumStatus = "complete"
)

// Album is a release group belonging to an [Artist].
type Album struct {
	ID             int64       `json:"id"`
	ArtistID       int64       `json:"artist_id"`
	ReleaseGroupID string      `json:"release_group_id,omitempty"`
	Title          string      `json:"title"`
	AlbumType      string      `json:"album_type,omitempty"`
	ReleaseYear    int         `json:"release_year,omitempty"`
	Status         AlbumStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (a *Album) Validate() error {
	if a.ArtistID <= 0 {
		return fmt.Errorf("%w: album artist is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: album title is required", shared.ErrInvalidInput)
	}
	return nil
}

// Track is a catalog recording on an [Album].
type Track struct {
	ID          int64     `json:"id"`
	AlbumID     int64     `json:"album_id"`
	ArtistID    int64     `json:"artist_id"`
	MBID        string    `json:"mbid,omitempty"`
	Title       string    `json:"title"`
	TrackNumber int       `json:"track_number,omitempty"`
	DiscNumber  int       `json:"disc_number,omitempty"`
	Duration    int       `json:"duration"` // seconds
	HasFile     bool      `json:"has_file"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Populated by joins for matching; not stored on the tracks row.
	ArtistName  string `json:"artist_name,omitempty"`
	AlbumTitle  string `json:"album_title,omitempty"`
	ReleaseYear int    `json:"release_year,omitempty"`
}

func (t *Track) Validate() error {
	if t.AlbumID <= 0 || t.ArtistID <= 0 {
		return fmt.Errorf("%w: track album and artist are required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: track title is required", shared.ErrInvalidInput)
	}
	return nil
}

// Quality labels written by audio analysis.
const (
	QualityLossless = "lossless"
	QualityHigh     = "high"
	QualityMedium   = "medium"
	QualityLow      = "low"
)

// TrackFile binds a [Track] to a concrete file on disk.
type TrackFile struct {
	ID         int64      `json:"id"`
	TrackID    int64      `json:"track_id"`
	LibraryID  *int64     `json:"library_id,omitempty"`
	Path       string     `json:"path"`
	Size       int64      `json:"size"`
	ModTime    *time.Time `json:"mod_time,omitempty"`
	Duration   int        `json:"duration"`
	Format     string     `json:"format,omitempty"`
	Bitrate    int        `json:"bitrate,omitempty"`
	SampleRate int        `json:"sample_rate,omitempty"`
	Quality    string     `json:"quality,omitempty"`
	LyricsPath string     `json:"lyrics_path,omitempty"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (f *TrackFile) Validate() error {
	if f.TrackID <= 0 {
		return fmt.Errorf("%w: track file requires a track", shared.ErrInvalidInput)
	}
	if f.Path == "" {
		return fmt.Errorf("%w: track file path is required", shared.ErrInvalidInput)
	}
	return nil
}

// UnmatchedTrack is a discovered file whose parsed tags are not yet bound to a [Track].
type UnmatchedTrack struct {
	ID               int64      `json:"id"`
	LibraryID        *int64     `json:"library_id,omitempty"`
	Path             string     `json:"path"`
	Size             int64      `json:"size"`
	ModTime          *time.Time `json:"mod_time,omitempty"`
	Artist           string     `json:"artist"`
	Title            string     `json:"title"`
	Album            string     `json:"album"`
	TrackNumber      int        `json:"track_number,omitempty"`
	Year             int        `json:"year,omitempty"`
	Duration         int        `json:"duration"`
	ArtistID         *int64     `json:"artist_id,omitempty"`
	SuggestedTrackID *int64     `json:"suggested_track_id,omitempty"`
	SuggestionScore  float64    `json:"suggestion_score,omitempty"`
	SuggestionReason string     `json:"suggestion_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (u *UnmatchedTrack) Validate() error {
	if u.Path == "" {
		return fmt.Errorf("%w: unmatched track path is required", shared.ErrInvalidInput)
	}
	return nil
}

// SameTags reports whether u already records the given tag values.
func (u *UnmatchedTrack) SameTags(o *UnmatchedTrack) bool {
	return u.Artist == o.Artist && u.Title == o.Title && u.Album == o.Album &&
		u.TrackNumber == o.TrackNumber && u.Year == o.Year && u.Duration == o.Duration
}

// Plugin is an installed extension checked out from a local path or git repository.
type Plugin struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Repository    string    `json:"repository,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	ReferenceType string    `json:"reference_type,omitempty"`
	Version       string    `json:"version,omitempty"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Plugin) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: plugin name is required", shared.ErrInvalidInput)
	}
	if p.Path == "" {
		return fmt.Errorf("%w: plugin path is required", shared.ErrInvalidInput)
	}
	return nil
}
