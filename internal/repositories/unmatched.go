package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const unmatchedColumns = `id, library_id, path, size, mod_time, artist, title, album, track_number, year, duration,
	artist_id, suggested_track_id, suggestion_score, suggestion_reason, created_at, updated_at`

// UnmatchedTrackRepository implements models.Repository[*models.UnmatchedTrack, int64].
//
// Rows are keyed by path: a rescan of the same file updates the existing row.
type UnmatchedTrackRepository struct {
	db *sql.DB
}

// NewUnmatchedTrackRepository creates a new UnmatchedTrackRepository with the given database connection
func NewUnmatchedTrackRepository(db *sql.DB) *UnmatchedTrackRepository {
	return &UnmatchedTrackRepository{db: db}
}

// Create inserts an unmatched track
func (r *UnmatchedTrackRepository) Create(ctx context.Context, u *models.UnmatchedTrack) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now(), now()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO unmatched_tracks (library_id, path, size, mod_time, artist, title, album, track_number, year, duration,
			artist_id, suggested_track_id, suggestion_score, suggestion_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt(u.LibraryID), u.Path, u.Size, nullTime(u.ModTime), u.Artist, u.Title, u.Album, u.TrackNumber, u.Year, u.Duration,
		nullInt(u.ArtistID), nullInt(u.SuggestedTrackID), u.SuggestionScore, u.SuggestionReason, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert unmatched track: %w", err)
	}

	u.ID, err = result.LastInsertId()
	return err
}

// Get retrieves an unmatched track by ID
func (r *UnmatchedTrackRepository) Get(ctx context.Context, id int64) (*models.UnmatchedTrack, error) {
	u, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+unmatchedColumns+" FROM unmatched_tracks WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "unmatched track", id)
	}
	return u, nil
}

// GetByPath retrieves an unmatched track by file path
func (r *UnmatchedTrackRepository) GetByPath(ctx context.Context, path string) (*models.UnmatchedTrack, error) {
	u, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+unmatchedColumns+" FROM unmatched_tracks WHERE path = ?", path))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "unmatched track", path)
	}
	return u, nil
}

// Update rewrites the tags, file stats, artist binding and suggestion of an unmatched track
func (r *UnmatchedTrackRepository) Update(ctx context.Context, u *models.UnmatchedTrack) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	u.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE unmatched_tracks
		SET library_id = ?, size = ?, mod_time = ?, artist = ?, title = ?, album = ?, track_number = ?, year = ?, duration = ?,
			artist_id = ?, suggested_track_id = ?, suggestion_score = ?, suggestion_reason = ?, updated_at = ?
		WHERE id = ?`,
		nullInt(u.LibraryID), u.Size, nullTime(u.ModTime), u.Artist, u.Title, u.Album, u.TrackNumber, u.Year, u.Duration,
		nullInt(u.ArtistID), nullInt(u.SuggestedTrackID), u.SuggestionScore, u.SuggestionReason, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update unmatched track: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "unmatched track", u.ID)
}

// Delete removes an unmatched track by ID
func (r *UnmatchedTrackRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM unmatched_tracks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete unmatched track: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "unmatched track", id)
}

// List retrieves unmatched tracks. Supported keys: library_id (int), suggested (bool), limit (int).
func (r *UnmatchedTrackRepository) List(ctx context.Context, criteria map[string]any) ([]*models.UnmatchedTrack, error) {
	w := &where{}
	if v, ok := int64Criteria(criteria, "library_id"); ok {
		w.eq("library_id", v)
	}
	if v, ok := boolCriteria(criteria, "suggested"); ok {
		if v {
			w.clauses = append(w.clauses, "suggested_track_id IS NOT NULL")
		} else {
			w.clauses = append(w.clauses, "suggested_track_id IS NULL")
		}
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+unmatchedColumns+" FROM unmatched_tracks"+w.String()+" ORDER BY path"+limitClause(criteria), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched tracks: %w", err)
	}
	defer rows.Close()

	var out []*models.UnmatchedTrack
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unmatched track: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Bind creates the track file for u and deletes u in one transaction.
//
// Returns [shared.ErrEntityNotFound] when u was already bound by someone else.
func (r *UnmatchedTrackRepository) Bind(ctx context.Context, u *models.UnmatchedTrack, f *models.TrackFile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM unmatched_tracks WHERE id = ?", u.ID)
	if err != nil {
		return fmt.Errorf("failed to delete unmatched track: %w", err)
	}
	if err := expectOne(result, shared.ErrEntityNotFound, "unmatched track", u.ID); err != nil {
		return err
	}

	if err := insertTrackFile(ctx, tx, f); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *UnmatchedTrackRepository) scan(row rowScanner) (*models.UnmatchedTrack, error) {
	var (
		u           models.UnmatchedTrack
		libraryID   sql.NullInt64
		modTime     sql.NullTime
		artistID    sql.NullInt64
		suggestedID sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &libraryID, &u.Path, &u.Size, &modTime, &u.Artist, &u.Title, &u.Album, &u.TrackNumber, &u.Year, &u.Duration,
		&artistID, &suggestedID, &u.SuggestionScore, &u.SuggestionReason, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.LibraryID = intPtr(libraryID)
	u.ModTime = timePtr(modTime)
	u.ArtistID = intPtr(artistID)
	u.SuggestedTrackID = intPtr(suggestedID)
	return &u, nil
}
