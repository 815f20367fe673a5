package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/scanner"
	"github.com/desertthunder/curator/internal/shared"
)

// sameFile compares size and modification time at second precision.
func sameFile(size int64, mod *time.Time, f scanner.File) bool {
	return size == f.Size && mod != nil && mod.Truncate(time.Second).Equal(f.ModTime.Truncate(time.Second))
}

func (d *Deps) scanLibrary(ctx context.Context, job *Job, p *models.ScanLibraryPayload) (Result, error) {
	lib, err := d.Libraries.Get(ctx, p.LibraryID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Failure(fmt.Sprintf("library %d not found", p.LibraryID)), nil
	} else if err != nil {
		return Result{}, err
	}
	if !lib.Enabled {
		return Success("library_disabled"), nil
	}

	res := Success(MsgUpdated)
	seen := make(map[string]bool)
	files, unchanged := 0, 0

	err = d.Scanner.Walk(ctx, lib.Path, func(f scanner.File) error {
		files++
		seen[f.Path] = true
		if files%100 == 0 {
			job.Progress(files, 0, f.RelPath)
		}

		known, err := d.knownUnchanged(ctx, f)
		if err != nil {
			return err
		}
		if known {
			unchanged++
			return nil
		}

		res = res.Then(Spec{
			Type:    models.TaskProcessLibraryFile,
			Entity:  models.EntityRef{ID: models.ID64(lib.ID), Name: f.Path},
			Payload: &models.ProcessLibraryFilePayload{LibraryID: lib.ID, Path: f.Path},
			Unique:  true,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Failure(fmt.Sprintf("library path %s does not exist", lib.Path)), nil
		}
		return Result{}, err
	}

	removed, missingFiles, err := d.pruneLibrary(ctx, lib.ID, seen, p.DryRun)
	if err != nil {
		return Result{}, err
	}

	queued := len(res.Enqueue)
	if p.DryRun {
		return Success(MsgDryRun).
			With("files", files).
			With("would_queue", queued).
			With("missing_files", missingFiles), nil
	}

	if missingFiles > 0 {
		res = res.Then(Spec{Type: models.TaskFixTrackStatuses, Payload: &models.FixTrackStatusesPayload{}, Unique: true})
	}
	if err := d.Libraries.MarkScanned(ctx, lib.ID, time.Now()); err != nil {
		return Result{}, err
	}

	job.Logger.Info("library scanned", "library", lib.Name, "files", files, "queued", queued, "unchanged", unchanged)
	return res.
		With("files", files).
		With("queued", queued).
		With("unchanged", unchanged).
		With("removed_unmatched", removed), nil
}

// knownUnchanged reports whether f is already recorded, bound or unmatched, with the same size and mtime.
func (d *Deps) knownUnchanged(ctx context.Context, f scanner.File) (bool, error) {
	tf, err := d.TrackFiles.GetByPath(ctx, f.Path)
	if err == nil {
		return sameFile(tf.Size, tf.ModTime, f), nil
	}
	if !errors.Is(err, shared.ErrEntityNotFound) {
		return false, err
	}

	u, err := d.Unmatched.GetByPath(ctx, f.Path)
	if err == nil {
		return sameFile(u.Size, u.ModTime, f), nil
	}
	if !errors.Is(err, shared.ErrEntityNotFound) {
		return false, err
	}
	return false, nil
}

// pruneLibrary deletes unmatched rows for files no longer on disk and counts bound files that went missing.
func (d *Deps) pruneLibrary(ctx context.Context, libraryID int64, seen map[string]bool, dryRun bool) (int, int, error) {
	unmatched, err := d.Unmatched.List(ctx, map[string]any{"library_id": libraryID})
	if err != nil {
		return 0, 0, err
	}
	removed := 0
	for _, u := range unmatched {
		if seen[u.Path] {
			continue
		}
		removed++
		if dryRun {
			continue
		}
		if err := d.Unmatched.Delete(ctx, u.ID); err != nil && !errors.Is(err, shared.ErrEntityNotFound) {
			return 0, 0, err
		}
	}

	files, err := d.TrackFiles.List(ctx, map[string]any{"library_id": libraryID})
	if err != nil {
		return 0, 0, err
	}
	missing := 0
	for _, f := range files {
		if !seen[f.Path] {
			missing++
		}
	}
	return removed, missing, nil
}

// libraryRoot returns the library's root directory, or "" when the library is unknown.
func (d *Deps) libraryRoot(ctx context.Context, id *int64) string {
	if id == nil {
		return ""
	}
	lib, err := d.Libraries.Get(ctx, *id)
	if err != nil {
		return ""
	}
	return lib.Path
}

// relativeTo returns path relative to root when it lies inside it.
func relativeTo(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (d *Deps) processLibraryFile(ctx context.Context, job *Job, p *models.ProcessLibraryFilePayload) (Result, error) {
	info, err := os.Stat(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		if u, err := d.Unmatched.GetByPath(ctx, p.Path); err == nil {
			if err := d.Unmatched.Delete(ctx, u.ID); err != nil && !errors.Is(err, shared.ErrEntityNotFound) {
				return Result{}, err
			}
		}
		return Success(MsgAlreadyGone), nil
	} else if err != nil {
		return Failure(fmt.Sprintf("failed to stat %s: %v", p.Path, err)), nil
	}

	file := scanner.File{Path: p.Path, Size: info.Size(), ModTime: info.ModTime().UTC()}
	var libraryID *int64
	if p.LibraryID > 0 {
		libraryID = models.ID64(p.LibraryID)
	}

	if tf, err := d.TrackFiles.GetByPath(ctx, p.Path); err == nil {
		return d.refreshTrackFile(ctx, tf, file, p.ForceAnalysis)
	} else if !errors.Is(err, shared.ErrEntityNotFound) {
		return Result{}, err
	}

	tags, err := scanner.ReadTags(p.Path, d.libraryRoot(ctx, libraryID))
	if err != nil {
		return Failure(err.Error()), nil
	}

	incoming := &models.UnmatchedTrack{
		LibraryID:   libraryID,
		Path:        p.Path,
		Size:        file.Size,
		ModTime:     &file.ModTime,
		Artist:      tags.Artist,
		Title:       tags.Title,
		Album:       tags.Album,
		TrackNumber: tags.TrackNumber,
		Year:        tags.Year,
		Duration:    tags.Duration,
	}

	u, err := d.Unmatched.GetByPath(ctx, p.Path)
	switch {
	case err == nil:
		if u.SameTags(incoming) && sameFile(u.Size, u.ModTime, file) {
			return Success(MsgUnchanged).With("unmatched_track_id", u.ID), nil
		}
		incoming.ID = u.ID
		incoming.ArtistID = u.ArtistID
		if err := d.Unmatched.Update(ctx, incoming); err != nil {
			return Result{}, err
		}
		u = incoming
	case errors.Is(err, shared.ErrEntityNotFound):
		if err := d.Unmatched.Create(ctx, incoming); err != nil {
			return Result{}, err
		}
		u = incoming
	default:
		return Result{}, err
	}

	job.Logger.Debug("recorded unmatched file", "path", p.Path, "artist", u.Artist, "title", u.Title)

	res := Success(MsgUpdated).With("unmatched_track_id", u.ID)
	if d.Flags.Bool(shared.FlagAutoAssociate) {
		res = res.Then(Spec{
			Type:    models.TaskAutoAssociateTrack,
			Entity:  models.EntityRef{ID: models.ID64(u.ID), Name: u.Path},
			Payload: &models.AutoAssociateTrackPayload{UnmatchedTrackID: u.ID},
			Unique:  true,
		})
	}
	return res, nil
}

// refreshTrackFile updates a bound file's size and mtime, and requests analysis when it changed or when forced.
func (d *Deps) refreshTrackFile(ctx context.Context, tf *models.TrackFile, file scanner.File, force bool) (Result, error) {
	changed := !sameFile(tf.Size, tf.ModTime, file)
	if changed {
		tf.Size = file.Size
		tf.ModTime = &file.ModTime
		if err := d.TrackFiles.Update(ctx, tf); err != nil {
			return Result{}, err
		}
	}

	res := Success(MsgAlreadyMatched).With("track_file_id", tf.ID)
	if changed || force {
		res = res.Then(analyzeSpec(tf.ID, true))
	}
	return res, nil
}

func analyzeSpec(trackFileID int64, force bool) Spec {
	return Spec{
		Type:    models.TaskAnalyzeAudioQuality,
		Entity:  models.EntityRef{ID: models.ID64(trackFileID)},
		Payload: &models.AnalyzeAudioQualityPayload{TrackFileID: trackFileID, ForceAnalysis: force},
		Unique:  true,
	}
}

func (d *Deps) analyzeAudioQuality(ctx context.Context, job *Job, p *models.AnalyzeAudioQualityPayload) (Result, error) {
	tf, err := d.TrackFiles.Get(ctx, p.TrackFileID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Success(MsgAlreadyGone), nil
	} else if err != nil {
		return Result{}, err
	}

	if tf.Quality != "" && !p.ForceAnalysis {
		return Success(MsgAlreadyAnalyzed).With("quality", tf.Quality), nil
	}
	if d.Analyzer == nil {
		return Failure("audio analysis is not configured"), nil
	}

	r, err := d.Analyzer.Analyze(ctx, tf.Path)
	if err != nil {
		return Failure(err.Error()), nil
	}

	now := time.Now().UTC()
	tf.Format = r.Format
	tf.Bitrate = r.Bitrate
	tf.SampleRate = r.SampleRate
	tf.Quality = r.Quality
	tf.AnalyzedAt = &now
	if tf.Duration == 0 {
		tf.Duration = int(r.Duration + 0.5)
	}
	if err := d.TrackFiles.Update(ctx, tf); err != nil {
		return Result{}, err
	}

	job.Logger.Debug("analyzed audio", "path", tf.Path, "codec", r.Codec, "quality", r.Quality)
	return Success(MsgUpdated).
		With("quality", r.Quality).
		With("codec", r.Codec).
		With("bitrate", r.Bitrate), nil
}
