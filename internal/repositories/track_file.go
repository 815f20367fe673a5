package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const trackFileColumns = `id, track_id, library_id, path, size, mod_time, duration, format, bitrate, sample_rate,
	quality, lyrics_path, analyzed_at, created_at, updated_at`

// TrackFileRepository implements models.Repository[*models.TrackFile, int64].
type TrackFileRepository struct {
	db *sql.DB
}

// NewTrackFileRepository creates a new TrackFileRepository with the given database connection
func NewTrackFileRepository(db *sql.DB) *TrackFileRepository {
	return &TrackFileRepository{db: db}
}

// Create inserts a track file and flags its track as having a file
func (r *TrackFileRepository) Create(ctx context.Context, f *models.TrackFile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTrackFile(ctx, tx, f); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTrackFile(ctx context.Context, tx *sql.Tx, f *models.TrackFile) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	f.CreatedAt, f.UpdatedAt = now(), now()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO track_files (track_id, library_id, path, size, mod_time, duration, format, bitrate, sample_rate,
			quality, lyrics_path, analyzed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TrackID, nullInt(f.LibraryID), f.Path, f.Size, nullTime(f.ModTime), f.Duration, f.Format, f.Bitrate, f.SampleRate,
		f.Quality, f.LyricsPath, nullTime(f.AnalyzedAt), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track file: %w", err)
	}

	if f.ID, err = result.LastInsertId(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE tracks SET has_file = 1, updated_at = ? WHERE id = ?", now(), f.TrackID); err != nil {
		return fmt.Errorf("failed to flag track: %w", err)
	}
	return nil
}

// Get retrieves a track file by ID
func (r *TrackFileRepository) Get(ctx context.Context, id int64) (*models.TrackFile, error) {
	f, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+trackFileColumns+" FROM track_files WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "track file", id)
	}
	return f, nil
}

// GetByPath retrieves a track file by its absolute path
func (r *TrackFileRepository) GetByPath(ctx context.Context, path string) (*models.TrackFile, error) {
	f, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+trackFileColumns+" FROM track_files WHERE path = ?", path))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "track file", path)
	}
	return f, nil
}

// Update modifies an existing track file, including analysis results
func (r *TrackFileRepository) Update(ctx context.Context, f *models.TrackFile) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	f.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE track_files
		SET size = ?, mod_time = ?, duration = ?, format = ?, bitrate = ?, sample_rate = ?, quality = ?,
			lyrics_path = ?, analyzed_at = ?, updated_at = ?
		WHERE id = ?`,
		f.Size, nullTime(f.ModTime), f.Duration, f.Format, f.Bitrate, f.SampleRate, f.Quality,
		f.LyricsPath, nullTime(f.AnalyzedAt), f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track file: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "track file", f.ID)
}

// Delete removes a track file by ID. Callers resync has_file afterwards.
func (r *TrackFileRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM track_files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete track file: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "track file", id)
}

// List retrieves track files. Supported keys: track_id, library_id, artist_id (ints).
func (r *TrackFileRepository) List(ctx context.Context, criteria map[string]any) ([]*models.TrackFile, error) {
	w := &where{}
	if v, ok := int64Criteria(criteria, "track_id"); ok {
		w.eq("track_id", v)
	}
	if v, ok := int64Criteria(criteria, "library_id"); ok {
		w.eq("library_id", v)
	}
	if v, ok := int64Criteria(criteria, "artist_id"); ok {
		w.clauses = append(w.clauses, "track_id IN (SELECT id FROM tracks WHERE artist_id = ?)")
		w.args = append(w.args, v)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+trackFileColumns+" FROM track_files"+w.String()+" ORDER BY path"+limitClause(criteria), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query track files: %w", err)
	}
	defer rows.Close()

	var files []*models.TrackFile
	for rows.Next() {
		f, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

func (r *TrackFileRepository) scan(row rowScanner) (*models.TrackFile, error) {
	var (
		f          models.TrackFile
		libraryID  sql.NullInt64
		modTime    sql.NullTime
		analyzedAt sql.NullTime
	)
	err := row.Scan(
		&f.ID, &f.TrackID, &libraryID, &f.Path, &f.Size, &modTime, &f.Duration, &f.Format, &f.Bitrate, &f.SampleRate,
		&f.Quality, &f.LyricsPath, &analyzedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.LibraryID = intPtr(libraryID)
	f.ModTime = timePtr(modTime)
	f.AnalyzedAt = timePtr(analyzedAt)
	return &f, nil
}
