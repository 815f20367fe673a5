package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

// Processor executes one task.
//
// Foreseeable failures (missing entity, bad input, remote errors) are returned as a failed [Result].
// A returned error is an unexpected fault; the engine records it as a failure with the error text.
type Processor interface {
	Process(ctx context.Context, job *Job) (Result, error)
}

// typedProcessor adapts a function over a concrete payload type to [Processor].
type typedProcessor[P models.Payload] func(ctx context.Context, job *Job, p P) (Result, error)

func (fn typedProcessor[P]) Process(ctx context.Context, job *Job) (Result, error) {
	p, ok := job.Payload.(P)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s received %T", shared.ErrInvalidPayload, job.Task.Type, job.Payload)
	}
	return fn(ctx, job, p)
}

// Registry is the static dispatch table from task type to processor.
type Registry struct {
	processors map[models.TaskType]Processor
}

// NewRegistry builds the table for every known task type over deps.
//
// add-artist is a legacy name for sync-artist and is served by the same processor.
func NewRegistry(d *Deps) *Registry {
	syncArtist := typedProcessor[*models.SyncArtistPayload](d.syncArtist)
	pluginState := func(enabled bool) Processor {
		return typedProcessor[*models.PluginPayload](func(ctx context.Context, job *Job, p *models.PluginPayload) (Result, error) {
			return d.setPluginEnabled(ctx, job, p, enabled)
		})
	}

	return &Registry{processors: map[models.TaskType]Processor{
		models.TaskSyncArtist:            syncArtist,
		models.TaskAddArtist:             syncArtist,
		models.TaskSyncArtistAlbums:      typedProcessor[*models.SyncArtistAlbumsPayload](d.syncArtistAlbums),
		models.TaskSyncAllArtists:        typedProcessor[*models.SyncAllArtistsPayload](d.syncAllArtists),
		models.TaskSyncAlbum:             typedProcessor[*models.SyncAlbumPayload](d.syncAlbum),
		models.TaskAddAlbum:              typedProcessor[*models.AddAlbumPayload](d.addAlbum),
		models.TaskUpdateAlbumStatuses:   typedProcessor[*models.UpdateAlbumStatusesPayload](d.updateAlbumStatuses),
		models.TaskScanLibrary:           typedProcessor[*models.ScanLibraryPayload](d.scanLibrary),
		models.TaskProcessLibraryFile:    typedProcessor[*models.ProcessLibraryFilePayload](d.processLibraryFile),
		models.TaskAutoAssociateTrack:    typedProcessor[*models.AutoAssociateTrackPayload](d.autoAssociateTrack),
		models.TaskAutoAssociateTracks:   typedProcessor[*models.AutoAssociateTracksPayload](d.autoAssociateTracks),
		models.TaskAssociateArtist:       typedProcessor[*models.AssociateArtistPayload](d.associateArtist),
		models.TaskAssociateAlbum:        typedProcessor[*models.AssociateAlbumPayload](d.associateAlbum),
		models.TaskAnalyzeAudioQuality:   typedProcessor[*models.AnalyzeAudioQualityPayload](d.analyzeAudioQuality),
		models.TaskFixTrackStatuses:      typedProcessor[*models.FixTrackStatusesPayload](d.fixTrackStatuses),
		models.TaskCacheClear:            typedProcessor[*models.CacheClearPayload](d.cacheClear),
		models.TaskPluginInstall:         typedProcessor[*models.PluginInstallPayload](d.pluginInstall),
		models.TaskRemotePluginInstall:   typedProcessor[*models.RemotePluginInstallPayload](d.remotePluginInstall),
		models.TaskPluginUninstall:       typedProcessor[*models.PluginPayload](d.pluginUninstall),
		models.TaskPluginEnable:          pluginState(true),
		models.TaskPluginDisable:         pluginState(false),
		models.TaskPluginUpgrade:         typedProcessor[*models.PluginUpgradePayload](d.pluginUpgrade),
		models.TaskPluginReferenceChange: typedProcessor[*models.PluginReferenceChangePayload](d.pluginReferenceChange),
		models.TaskNPMBuild:              typedProcessor[*models.PluginPayload](d.npmBuild),
	}}
}

// Get returns the processor for t.
func (r *Registry) Get(t models.TaskType) (Processor, error) {
	p, ok := r.processors[t]
	if !ok {
		return nil, fmt.Errorf("%w: no processor for %q", shared.ErrInvalidTaskType, t)
	}
	return p, nil
}

// Register replaces the processor for t.
func (r *Registry) Register(t models.TaskType, p Processor) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, t)
	}
	r.processors[t] = p
	return nil
}
