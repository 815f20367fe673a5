package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/curator/internal/shared"
)

// Payload is the typed parameter set stored in a task's metadata column.
type Payload interface {
	Validate() error
	Base() *Common
}

// Common holds the keys every payload accepts.
type Common struct {
	MaxRetries   int    `json:"max_retries,omitempty"`
	SourceTaskID string `json:"source_task_id,omitempty"`
}

// Base returns the embedded retry bookkeeping.
func (c *Common) Base() *Common { return c }

type SyncArtistPayload struct {
	Common
	MBID       string `json:"mbid,omitempty"`
	ArtistName string `json:"artist_name,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

func (p *SyncArtistPayload) Validate() error {
	if p.MBID == "" && p.ArtistName == "" {
		return missing("mbid or artist_name")
	}
	return nil
}

type SyncArtistAlbumsPayload struct {
	Common
	ArtistID int64  `json:"artist_id"`
	MBID     string `json:"mbid,omitempty"`
}

func (p *SyncArtistAlbumsPayload) Validate() error {
	if p.ArtistID <= 0 {
		return missing("artist_id")
	}
	return nil
}

type SyncAllArtistsPayload struct {
	Common
	DryRun bool `json:"dry_run,omitempty"`
}

func (p *SyncAllArtistsPayload) Validate() error { return nil }

type SyncAlbumPayload struct {
	Common
	ReleaseGroupID string `json:"release_group_id"`
	ArtistID       int64  `json:"artist_id"`
	MBID           string `json:"mbid,omitempty"`
}

func (p *SyncAlbumPayload) Validate() error {
	if p.ReleaseGroupID == "" {
		return missing("release_group_id")
	}
	if p.ArtistID <= 0 {
		return missing("artist_id")
	}
	return nil
}

type AddAlbumPayload struct {
	Common
	ReleaseGroupID string `json:"release_group_id"`
	ArtistID       int64  `json:"artist_id,omitempty"`
	ArtistName     string `json:"artist_name,omitempty"`
	MBID           string `json:"mbid,omitempty"`
}

func (p *AddAlbumPayload) Validate() error {
	if p.ReleaseGroupID == "" {
		return missing("release_group_id")
	}
	if p.ArtistID <= 0 && p.MBID == "" {
		return missing("artist_id or mbid")
	}
	return nil
}

type UpdateAlbumStatusesPayload struct {
	Common
	ArtistID int64 `json:"artist_id,omitempty"`
}

func (p *UpdateAlbumStatusesPayload) Validate() error { return nil }

type ScanLibraryPayload struct {
	Common
	LibraryID int64 `json:"library_id"`
	DryRun    bool  `json:"dry_run,omitempty"`
}

func (p *ScanLibraryPayload) Validate() error {
	if p.LibraryID <= 0 {
		return missing("library_id")
	}
	return nil
}

type ProcessLibraryFilePayload struct {
	Common
	LibraryID     int64  `json:"library_id"`
	Path          string `json:"path"`
	ForceAnalysis bool   `json:"force_analysis,omitempty"`
}

func (p *ProcessLibraryFilePayload) Validate() error {
	if p.Path == "" {
		return missing("path")
	}
	return nil
}

type AutoAssociateTrackPayload struct {
	Common
	UnmatchedTrackID    int64 `json:"unmatched_track_id"`
	DryRun              bool  `json:"dry_run,omitempty"`
	FindMultipleMatches bool  `json:"find_multiple_matches,omitempty"`
}

func (p *AutoAssociateTrackPayload) Validate() error {
	if p.UnmatchedTrackID <= 0 {
		return missing("unmatched_track_id")
	}
	return nil
}

type AutoAssociateTracksPayload struct {
	Common
	LibraryID int64 `json:"library_id,omitempty"`
	DryRun    bool  `json:"dry_run,omitempty"`
}

func (p *AutoAssociateTracksPayload) Validate() error { return nil }

type AssociateArtistPayload struct {
	Common
	UnmatchedTrackID int64  `json:"unmatched_track_id"`
	MBID             string `json:"mbid"`
	ArtistName       string `json:"artist_name,omitempty"`
	LibraryID        int64  `json:"library_id,omitempty"`
}

func (p *AssociateArtistPayload) Validate() error {
	if p.UnmatchedTrackID <= 0 {
		return missing("unmatched_track_id")
	}
	if p.MBID == "" {
		return missing("mbid")
	}
	return nil
}

type AssociateAlbumPayload struct {
	Common
	UnmatchedTrackID int64  `json:"unmatched_track_id"`
	ReleaseGroupID   string `json:"release_group_id"`
	ArtistID         int64  `json:"artist_id"`
}

func (p *AssociateAlbumPayload) Validate() error {
	switch {
	case p.UnmatchedTrackID <= 0:
		return missing("unmatched_track_id")
	case p.ReleaseGroupID == "":
		return missing("release_group_id")
	case p.ArtistID <= 0:
		return missing("artist_id")
	}
	return nil
}

type AnalyzeAudioQualityPayload struct {
	Common
	TrackFileID   int64 `json:"track_file_id"`
	ForceAnalysis bool  `json:"force_analysis,omitempty"`
}

func (p *AnalyzeAudioQualityPayload) Validate() error {
	if p.TrackFileID <= 0 {
		return missing("track_file_id")
	}
	return nil
}

type FixTrackStatusesPayload struct {
	Common
	ArtistID int64 `json:"artist_id,omitempty"`
}

func (p *FixTrackStatusesPayload) Validate() error { return nil }

type CacheClearPayload struct {
	Common
	Reference string `json:"reference,omitempty"` // key prefix, empty clears everything
}

func (p *CacheClearPayload) Validate() error { return nil }

type PluginInstallPayload struct {
	Common
	Reference     string `json:"reference"`
	ReferenceType string `json:"reference_type,omitempty"`
}

func (p *PluginInstallPayload) Validate() error {
	if p.Reference == "" {
		return missing("reference")
	}
	return nil
}

type RemotePluginInstallPayload struct {
	Common
	Reference     string `json:"reference"`
	ReferenceType string `json:"reference_type,omitempty"`
	TargetVersion string `json:"target_version,omitempty"`
}

func (p *RemotePluginInstallPayload) Validate() error {
	if p.Reference == "" {
		return missing("reference")
	}
	return validReferenceType(p.ReferenceType)
}

// PluginPayload targets an installed plugin by ID.
type PluginPayload struct {
	Common
	PluginID int64 `json:"plugin_id"`
}

func (p *PluginPayload) Validate() error {
	if p.PluginID <= 0 {
		return missing("plugin_id")
	}
	return nil
}

type PluginUpgradePayload struct {
	Common
	PluginID      int64  `json:"plugin_id"`
	TargetVersion string `json:"target_version,omitempty"`
}

func (p *PluginUpgradePayload) Validate() error {
	if p.PluginID <= 0 {
		return missing("plugin_id")
	}
	return nil
}

type PluginReferenceChangePayload struct {
	Common
	PluginID      int64  `json:"plugin_id"`
	Reference     string `json:"reference"`
	ReferenceType string `json:"reference_type"`
}

func (p *PluginReferenceChangePayload) Validate() error {
	if p.PluginID <= 0 {
		return missing("plugin_id")
	}
	if p.Reference == "" {
		return missing("reference")
	}
	return validReferenceType(p.ReferenceType)
}

// Plugin reference kinds accepted by reference_type.
const (
	ReferenceBranch = "branch"
	ReferenceTag    = "tag"
	ReferenceCommit = "commit"
)

func validReferenceType(rt string) error {
	switch rt {
	case "", ReferenceBranch, ReferenceTag, ReferenceCommit:
		return nil
	default:
		return fmt.Errorf("%w: reference_type %q", shared.ErrInvalidPayload, rt)
	}
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", shared.ErrInvalidPayload, field)
}

// NewPayload returns an empty payload of the struct registered for t.
func NewPayload(t TaskType) (Payload, error) {
	switch t {
	case TaskSyncArtist, TaskAddArtist:
		return &SyncArtistPayload{}, nil
	case TaskSyncArtistAlbums:
		return &SyncArtistAlbumsPayload{}, nil
	case TaskSyncAllArtists:
		return &SyncAllArtistsPayload{}, nil
	case TaskSyncAlbum:
		return &SyncAlbumPayload{}, nil
	case TaskAddAlbum:
		return &AddAlbumPayload{}, nil
	case TaskUpdateAlbumStatuses:
		return &UpdateAlbumStatusesPayload{}, nil
	case TaskScanLibrary:
		return &ScanLibraryPayload{}, nil
	case TaskProcessLibraryFile:
		return &ProcessLibraryFilePayload{}, nil
	case TaskAutoAssociateTrack:
		return &AutoAssociateTrackPayload{}, nil
	case TaskAutoAssociateTracks:
		return &AutoAssociateTracksPayload{}, nil
	case TaskAssociateArtist:
		return &AssociateArtistPayload{}, nil
	case TaskAssociateAlbum:
		return &AssociateAlbumPayload{}, nil
	case TaskAnalyzeAudioQuality:
		return &AnalyzeAudioQualityPayload{}, nil
	case TaskFixTrackStatuses:
		return &FixTrackStatusesPayload{}, nil
	case TaskCacheClear:
		return &CacheClearPayload{}, nil
	case TaskPluginInstall:
		return &PluginInstallPayload{}, nil
	case TaskRemotePluginInstall:
		return &RemotePluginInstallPayload{}, nil
	case TaskPluginUninstall, TaskPluginEnable, TaskPluginDisable, TaskNPMBuild:
		return &PluginPayload{}, nil
	case TaskPluginUpgrade:
		return &PluginUpgradePayload{}, nil
	case TaskPluginReferenceChange:
		return &PluginReferenceChangePayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, t)
	}
}

// DecodePayload unmarshals raw into the payload struct for t and validates it.
//
// Unknown keys are rejected so that a payload written for one type cannot be silently run as another.
func DecodePayload(t TaskType, raw []byte) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidPayload, t, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}

	return p, nil
}

// EncodePayload validates p and marshals it for storage.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
	}
	return data, nil
}

// PayloadMatches reports whether p is the struct registered for t.
func PayloadMatches(t TaskType, p Payload) bool {
	want, err := NewPayload(t)
	if err != nil || p == nil {
		return false
	}
	return fmt.Sprintf("%T", want) == fmt.Sprintf("%T", p)
}
