package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/services"
	"github.com/desertthunder/curator/internal/shared"
)

// remoteFailure converts a metadata source error into a failed result.
func remoteFailure(what string, err error) Result {
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Failure(fmt.Sprintf("%s not found in metadata source", what))
	}
	return Failure(fmt.Sprintf("failed to fetch %s: %v", what, err))
}

// ensureArtist returns the catalog artist for mb, creating it when absent and refreshing its names otherwise.
// A concurrent create of the same MBID is resolved by reading the winner's row.
func (d *Deps) ensureArtist(ctx context.Context, mb *services.Artist) (*models.Artist, bool, error) {
	existing, err := d.Artists.GetByMBID(ctx, mb.MBID)
	switch {
	case err == nil:
		if existing.Name != mb.Name || (mb.SortName != "" && existing.SortName != mb.SortName) {
			existing.Name = mb.Name
			if mb.SortName != "" {
				existing.SortName = mb.SortName
			}
			if err := d.Artists.Update(ctx, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	case !errors.Is(err, shared.ErrEntityNotFound):
		return nil, false, err
	}

	artist := &models.Artist{MBID: mb.MBID, Name: mb.Name, SortName: mb.SortName, Monitored: true}
	if err := d.Artists.Create(ctx, artist); err != nil {
		if winner, getErr := d.Artists.GetByMBID(ctx, mb.MBID); getErr == nil {
			return winner, false, nil
		}
		return nil, false, err
	}
	return artist, true, nil
}

func (d *Deps) syncArtist(ctx context.Context, job *Job, p *models.SyncArtistPayload) (Result, error) {
	mbid := p.MBID
	if mbid == "" {
		candidates, err := d.Metadata.SearchArtist(ctx, p.ArtistName)
		if err != nil {
			return remoteFailure("artist "+p.ArtistName, err), nil
		}
		if len(candidates) == 0 {
			return Failure(fmt.Sprintf("no artist named %q in metadata source", p.ArtistName)), nil
		}
		mbid = candidates[0].MBID
	}

	mb, err := d.Metadata.GetArtist(ctx, mbid)
	if err != nil {
		return remoteFailure("artist "+mbid, err), nil
	}

	if p.DryRun {
		return Success(MsgDryRun).With("mbid", mb.MBID).With("name", mb.Name), nil
	}

	artist, created, err := d.ensureArtist(ctx, mb)
	if err != nil {
		return Result{}, err
	}
	if err := d.Artists.MarkSynced(ctx, artist.ID, time.Now()); err != nil {
		return Result{}, err
	}

	msg := MsgUpdated
	if created {
		msg = MsgCreated
	}
	job.Logger.Info("artist synced", "artist_id", artist.ID, "name", artist.Name, "created", created)

	return Success(msg).
		With("artist_id", artist.ID).
		Then(Spec{
			Type:    models.TaskSyncArtistAlbums,
			Entity:  models.EntityRef{MBID: artist.MBID, ID: models.ID64(artist.ID), Name: artist.Name},
			Payload: &models.SyncArtistAlbumsPayload{ArtistID: artist.ID, MBID: artist.MBID},
			Unique:  true,
		}), nil
}

func (d *Deps) syncArtistAlbums(ctx context.Context, job *Job, p *models.SyncArtistAlbumsPayload) (Result, error) {
	artist, err := d.Artists.Get(ctx, p.ArtistID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Failure(fmt.Sprintf("artist %d not found", p.ArtistID)), nil
	} else if err != nil {
		return Result{}, err
	}

	mbid := p.MBID
	if mbid == "" {
		mbid = artist.MBID
	}
	if mbid == "" {
		return Failure(fmt.Sprintf("artist %s has no external id", artist.Name)), nil
	}

	groups, err := d.Metadata.GetArtistReleaseGroups(ctx, mbid)
	if err != nil {
		return remoteFailure("release groups for "+artist.Name, err), nil
	}

	res := Success(MsgUpdated)
	known := 0
	for i, rg := range groups {
		job.Progress(i+1, len(groups), rg.Title)

		if _, err := d.Albums.GetByReleaseGroupID(ctx, rg.ID); err == nil {
			known++
			continue
		} else if !errors.Is(err, shared.ErrEntityNotFound) {
			return Result{}, err
		}

		res = res.Then(Spec{
			Type:    models.TaskSyncAlbum,
			Entity:  models.EntityRef{MBID: rg.ID, Name: rg.Title},
			Payload: &models.SyncAlbumPayload{ReleaseGroupID: rg.ID, ArtistID: artist.ID, MBID: mbid},
			Unique:  true,
		})
	}

	return res.
		With("release_groups", len(groups)).
		With("known", known).
		With("queued", len(res.Enqueue)), nil
}

func (d *Deps) syncAllArtists(ctx context.Context, job *Job, p *models.SyncAllArtistsPayload) (Result, error) {
	artists, err := d.Artists.List(ctx, map[string]any{"monitored": true})
	if err != nil {
		return Result{}, err
	}

	res := Success(MsgUpdated)
	skipped := 0
	for _, a := range artists {
		if a.MBID == "" {
			skipped++
			continue
		}
		res = res.Then(Spec{
			Type:    models.TaskSyncArtist,
			Entity:  models.EntityRef{MBID: a.MBID, ID: models.ID64(a.ID), Name: a.Name},
			Payload: &models.SyncArtistPayload{MBID: a.MBID, ArtistName: a.Name},
			Unique:  true,
		})
	}

	if p.DryRun {
		return Success(MsgDryRun).With("artists", len(res.Enqueue)).With("skipped", skipped), nil
	}
	return res.With("queued", len(res.Enqueue)).With("skipped", skipped), nil
}

// createAlbum fetches a release group and stores it with its tracks.
// The boolean is false when another task stored the same release group first.
func (d *Deps) createAlbum(ctx context.Context, artist *models.Artist, rg *services.ReleaseGroup) (*models.Album, bool, error) {
	album := &models.Album{
		ArtistID:       artist.ID,
		ReleaseGroupID: rg.ID,
		Title:          rg.Title,
		AlbumType:      rg.PrimaryType,
		ReleaseYear:    rg.Year(),
		Status:         models.AlbumMissing,
	}
	if err := d.Albums.Create(ctx, album); err != nil {
		if winner, getErr := d.Albums.GetByReleaseGroupID(ctx, rg.ID); getErr == nil {
			return winner, false, nil
		}
		return nil, false, err
	}

	for _, rec := range rg.Tracks {
		track := &models.Track{
			AlbumID:     album.ID,
			ArtistID:    artist.ID,
			MBID:        rec.MBID,
			Title:       rec.Title,
			TrackNumber: rec.Position,
			DiscNumber:  rec.Disc,
			Duration:    rec.Duration,
		}
		if err := d.Tracks.Create(ctx, track); err != nil {
			return nil, false, err
		}
	}
	return album, true, nil
}

func (d *Deps) syncAlbum(ctx context.Context, job *Job, p *models.SyncAlbumPayload) (Result, error) {
	artist, err := d.Artists.Get(ctx, p.ArtistID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Failure(fmt.Sprintf("artist %d not found", p.ArtistID)), nil
	} else if err != nil {
		return Result{}, err
	}

	existing, err := d.Albums.GetByReleaseGroupID(ctx, p.ReleaseGroupID)
	if err != nil && !errors.Is(err, shared.ErrEntityNotFound) {
		return Result{}, err
	}

	rg, err := d.Metadata.GetReleaseGroup(ctx, p.ReleaseGroupID)
	if err != nil {
		if existing != nil {
			job.Logger.Warn("metadata refresh failed, keeping stored album", "album_id", existing.ID, "error", err)
			return Success(MsgAlreadyExists).With("album_id", existing.ID), nil
		}
		return remoteFailure("release group "+p.ReleaseGroupID, err), nil
	}

	if existing != nil {
		existing.Title = rg.Title
		existing.AlbumType = rg.PrimaryType
		if y := rg.Year(); y > 0 {
			existing.ReleaseYear = y
		}
		if err := d.Albums.Update(ctx, existing); err != nil {
			return Result{}, err
		}
		return Success(MsgAlreadyExists).With("album_id", existing.ID), nil
	}

	album, created, err := d.createAlbum(ctx, artist, rg)
	if err != nil {
		return Result{}, err
	}
	if !created {
		return Success(MsgAlreadyExists).With("album_id", album.ID), nil
	}

	job.Logger.Info("album created", "album_id", album.ID, "title", album.Title, "tracks", len(rg.Tracks))
	return Success(MsgCreated).With("album_id", album.ID).With("tracks", len(rg.Tracks)), nil
}

func (d *Deps) addAlbum(ctx context.Context, job *Job, p *models.AddAlbumPayload) (Result, error) {
	if existing, err := d.Albums.GetByReleaseGroupID(ctx, p.ReleaseGroupID); err == nil {
		return Success(MsgAlreadyExists).With("album_id", existing.ID), nil
	} else if !errors.Is(err, shared.ErrEntityNotFound) {
		return Result{}, err
	}

	var artist *models.Artist
	if p.ArtistID > 0 {
		a, err := d.Artists.Get(ctx, p.ArtistID)
		if errors.Is(err, shared.ErrEntityNotFound) {
			return Failure(fmt.Sprintf("artist %d not found", p.ArtistID)), nil
		} else if err != nil {
			return Result{}, err
		}
		artist = a
	} else {
		mb, err := d.Metadata.GetArtist(ctx, p.MBID)
		if err != nil {
			return remoteFailure("artist "+p.MBID, err), nil
		}
		if artist, _, err = d.ensureArtist(ctx, mb); err != nil {
			return Result{}, err
		}
	}

	rg, err := d.Metadata.GetReleaseGroup(ctx, p.ReleaseGroupID)
	if err != nil {
		return remoteFailure("release group "+p.ReleaseGroupID, err), nil
	}

	album, created, err := d.createAlbum(ctx, artist, rg)
	if err != nil {
		return Result{}, err
	}
	if !created {
		return Success(MsgAlreadyExists).With("album_id", album.ID), nil
	}
	return Success(MsgCreated).With("album_id", album.ID).With("artist_id", artist.ID), nil
}

// albumStatus derives an album's status from its track and file counts.
func albumStatus(total, withFile int) models.AlbumStatus {
	switch {
	case total == 0 || withFile == 0:
		return models.AlbumMissing
	case withFile < total:
		return models.AlbumPartial
	default:
		return models.AlbumComplete
	}
}

func (d *Deps) updateAlbumStatuses(ctx context.Context, job *Job, p *models.UpdateAlbumStatusesPayload) (Result, error) {
	criteria := map[string]any{}
	if p.ArtistID > 0 {
		criteria["artist_id"] = p.ArtistID
	}
	albums, err := d.Albums.List(ctx, criteria)
	if err != nil {
		return Result{}, err
	}

	changed := 0
	for _, a := range albums {
		total, withFile, err := d.Albums.TrackCounts(ctx, a.ID)
		if err != nil {
			return Result{}, err
		}
		status := albumStatus(total, withFile)
		if status == a.Status {
			continue
		}
		if err := d.Albums.SetStatus(ctx, a.ID, status); err != nil {
			return Result{}, err
		}
		changed++
	}

	return Success(MsgUpdated).With("albums", len(albums)).With("changed", changed), nil
}

func (d *Deps) fixTrackStatuses(ctx context.Context, job *Job, p *models.FixTrackStatusesPayload) (Result, error) {
	criteria := map[string]any{}
	if p.ArtistID > 0 {
		criteria["artist_id"] = p.ArtistID
	}
	files, err := d.TrackFiles.List(ctx, criteria)
	if err != nil {
		return Result{}, err
	}

	removed := 0
	for _, f := range files {
		if _, err := os.Stat(f.Path); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := d.TrackFiles.Delete(ctx, f.ID); err != nil && !errors.Is(err, shared.ErrEntityNotFound) {
			return Result{}, err
		}
		job.Logger.Info("removed missing track file", "path", f.Path)
		removed++
	}

	flagged, err := d.Tracks.SyncHasFile(ctx, p.ArtistID)
	if err != nil {
		return Result{}, err
	}

	res := Success(MsgUpdated).With("removed_files", removed).With("tracks_changed", flagged)
	if removed > 0 || flagged > 0 {
		res = res.Then(Spec{
			Type:    models.TaskUpdateAlbumStatuses,
			Entity:  artistEntity(p.ArtistID),
			Payload: &models.UpdateAlbumStatusesPayload{ArtistID: p.ArtistID},
			Unique:  true,
		})
	}
	return res, nil
}

// artistEntity references an artist by internal ID, or nothing for library-wide tasks.
func artistEntity(artistID int64) models.EntityRef {
	if artistID <= 0 {
		return models.EntityRef{}
	}
	return models.EntityRef{ID: models.ID64(artistID)}
}
