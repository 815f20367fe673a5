package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/curator/internal/matching"
	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/services"
	"github.com/desertthunder/curator/internal/shared"
)

// hintsFor parses path hints for u relative to its library root.
func (d *Deps) hintsFor(ctx context.Context, u *models.UnmatchedTrack) matching.PathHints {
	return matching.ParsePathHints(relativeTo(d.libraryRoot(ctx, u.LibraryID), u.Path))
}

// bind turns u into a track file for track and queues its analysis and the owning artist's album statuses.
// The boolean is false when the row was bound or removed by another task first.
func (d *Deps) bind(ctx context.Context, u *models.UnmatchedTrack, track *models.Track) (Result, bool, error) {
	tf := &models.TrackFile{
		TrackID:   track.ID,
		LibraryID: u.LibraryID,
		Path:      u.Path,
		Size:      u.Size,
		ModTime:   u.ModTime,
		Duration:  u.Duration,
	}
	if err := d.Unmatched.Bind(ctx, u, tf); errors.Is(err, shared.ErrEntityNotFound) {
		return Success(MsgAlreadyGone), false, nil
	} else if err != nil {
		return Result{}, false, err
	}

	res := Success(MsgBound).
		With("track_id", track.ID).
		With("track_file_id", tf.ID).
		Then(
			analyzeSpec(tf.ID, false),
			Spec{
				Type:    models.TaskUpdateAlbumStatuses,
				Entity:  artistEntity(track.ArtistID),
				Payload: &models.UpdateAlbumStatusesPayload{ArtistID: track.ArtistID},
				Unique:  true,
			},
		)
	return res, true, nil
}

func candidateMeta(m matching.Match) []map[string]any {
	out := make([]map[string]any, 0, len(m.Candidates))
	for _, c := range m.Candidates {
		out = append(out, map[string]any{"track_id": c.Track.ID, "score": c.Score, "reason": c.Reason})
	}
	return out
}

func (d *Deps) autoAssociateTrack(ctx context.Context, job *Job, p *models.AutoAssociateTrackPayload) (Result, error) {
	u, err := d.Unmatched.Get(ctx, p.UnmatchedTrackID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Success(MsgAlreadyGone), nil
	} else if err != nil {
		return Result{}, err
	}

	opts := matching.Options{DryRun: p.DryRun, FindMultipleMatches: p.FindMultipleMatches, Hints: d.hintsFor(ctx, u)}
	m, err := d.Chain.Execute(ctx, u, opts, job.Logger)
	if err != nil {
		return Result{}, err
	}

	decision := d.policy().Decide(m)
	job.Logger.Debug("association decided", "path", u.Path, "decision", decision, "score", m.Score, "reason", m.Reason)

	res := Success(MsgNoMatch).With("reason", m.Reason)
	if m.Found() {
		res = res.With("track_id", m.Track.ID).With("score", m.Score)
	}
	if p.FindMultipleMatches && len(m.Candidates) > 0 {
		res = res.With("candidates", candidateMeta(m))
	}
	if p.DryRun {
		res.Message = MsgDryRun
		return res.With("decision", decision.String()), nil
	}

	switch decision {
	case matching.DecisionNone:
		if u.SuggestedTrackID != nil {
			u.SuggestedTrackID, u.SuggestionScore, u.SuggestionReason = nil, 0, ""
			if err := d.Unmatched.Update(ctx, u); err != nil {
				return Result{}, err
			}
		}
		return res, nil

	case matching.DecisionSuggest:
		u.SuggestedTrackID = models.ID64(m.Track.ID)
		u.SuggestionScore = m.Score
		u.SuggestionReason = m.Reason
		if err := d.Unmatched.Update(ctx, u); errors.Is(err, shared.ErrEntityNotFound) {
			return Success(MsgAlreadyGone), nil
		} else if err != nil {
			return Result{}, err
		}
		res.Message = MsgSuggested
		return res, nil
	}

	bound, ok, err := d.bind(ctx, u, m.Track)
	if err != nil || !ok {
		return bound, err
	}
	job.Logger.Info("file bound", "path", u.Path, "track_id", m.Track.ID, "score", m.Score)
	return bound.With("score", m.Score).With("reason", m.Reason), nil
}

func (d *Deps) autoAssociateTracks(ctx context.Context, job *Job, p *models.AutoAssociateTracksPayload) (Result, error) {
	criteria := map[string]any{}
	if p.LibraryID > 0 {
		criteria["library_id"] = p.LibraryID
	}
	rows, err := d.Unmatched.List(ctx, criteria)
	if err != nil {
		return Result{}, err
	}

	res := Success(MsgUpdated)
	for _, u := range rows {
		res = res.Then(Spec{
			Type:    models.TaskAutoAssociateTrack,
			Entity:  models.EntityRef{ID: models.ID64(u.ID), Name: u.Path},
			Payload: &models.AutoAssociateTrackPayload{UnmatchedTrackID: u.ID, DryRun: p.DryRun},
			Unique:  true,
		})
	}
	return res.With("queued", len(rows)), nil
}

func (d *Deps) associateArtist(ctx context.Context, job *Job, p *models.AssociateArtistPayload) (Result, error) {
	u, err := d.Unmatched.Get(ctx, p.UnmatchedTrackID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Success(MsgAlreadyGone), nil
	} else if err != nil {
		return Result{}, err
	}

	artist, err := d.Artists.GetByMBID(ctx, p.MBID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		mb, mbErr := d.Metadata.GetArtist(ctx, p.MBID)
		if mbErr != nil {
			if p.ArtistName == "" {
				return remoteFailure("artist "+p.MBID, mbErr), nil
			}
			job.Logger.Warn("metadata lookup failed, using given name", "mbid", p.MBID, "error", mbErr)
			mb = &services.Artist{MBID: p.MBID, Name: p.ArtistName}
		}
		if artist, _, err = d.ensureArtist(ctx, mb); err != nil {
			return Result{}, err
		}
	} else if err != nil {
		return Result{}, err
	}

	u.Artist = artist.Name
	u.ArtistID = models.ID64(artist.ID)

	m, err := d.Chain.Execute(ctx, u, matching.Options{Hints: d.hintsFor(ctx, u)}, job.Logger)
	if err != nil {
		return Result{}, err
	}

	res := Success(MsgUpdated).With("artist_id", artist.ID)
	if m.Found() && m.Score >= d.policy().MinScore {
		bound, ok, err := d.bind(ctx, u, m.Track)
		if err != nil || !ok {
			return bound, err
		}
		res = bound.With("artist_id", artist.ID)
	} else {
		if err := d.Unmatched.Delete(ctx, u.ID); errors.Is(err, shared.ErrEntityNotFound) {
			return Success(MsgAlreadyGone), nil
		} else if err != nil {
			return Result{}, err
		}
		res = res.With("reason", m.Reason)
	}

	job.Logger.Info("artist associated", "path", u.Path, "artist", artist.Name, "artist_id", artist.ID)
	return res.Then(Spec{
		Type:    models.TaskSyncArtistAlbums,
		Entity:  models.EntityRef{MBID: artist.MBID, ID: models.ID64(artist.ID), Name: artist.Name},
		Payload: &models.SyncArtistAlbumsPayload{ArtistID: artist.ID, MBID: artist.MBID},
		Unique:  true,
	}), nil
}

func (d *Deps) associateAlbum(ctx context.Context, job *Job, p *models.AssociateAlbumPayload) (Result, error) {
	u, err := d.Unmatched.Get(ctx, p.UnmatchedTrackID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Success(MsgAlreadyGone), nil
	} else if err != nil {
		return Result{}, err
	}

	artist, err := d.Artists.Get(ctx, p.ArtistID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Failure(fmt.Sprintf("artist %d not found", p.ArtistID)), nil
	} else if err != nil {
		return Result{}, err
	}

	album, err := d.Albums.GetByReleaseGroupID(ctx, p.ReleaseGroupID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		rg, err := d.Metadata.GetReleaseGroup(ctx, p.ReleaseGroupID)
		if err != nil {
			return remoteFailure("release group "+p.ReleaseGroupID, err), nil
		}
		if album, _, err = d.createAlbum(ctx, artist, rg); err != nil {
			return Result{}, err
		}
	} else if err != nil {
		return Result{}, err
	}

	tracks, err := d.Tracks.List(ctx, map[string]any{"album_id": album.ID})
	if err != nil {
		return Result{}, err
	}

	hints := d.hintsFor(ctx, u)
	var top matching.Match
	for _, t := range tracks {
		if m := d.Scorer.Score(t, u, hints); m.Score > top.Score {
			top = m
		}
	}

	target := top.Track
	if !top.Found() || top.Score < d.policy().MinScore {
		title := u.Title
		if title == "" {
			title = hints.Title
		}
		if title == "" {
			return Failure("unmatched track has no title to create a track from"), nil
		}
		target = &models.Track{
			AlbumID:     album.ID,
			ArtistID:    artist.ID,
			Title:       title,
			TrackNumber: u.TrackNumber,
			Duration:    u.Duration,
		}
		if err := d.Tracks.Create(ctx, target); err != nil {
			return Result{}, err
		}
		job.Logger.Info("track created from tags", "album", album.Title, "title", title)
	}

	res, ok, err := d.bind(ctx, u, target)
	if err != nil || !ok {
		return res, err
	}
	return res.With("album_id", album.ID).With("score", top.Score), nil
}
