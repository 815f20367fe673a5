package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

// trackSelect joins artist and album so matchers can score on names without extra queries.
const trackSelect = `
	SELECT t.id, t.album_id, t.artist_id, t.mbid, t.title, t.track_number, t.disc_number, t.duration, t.has_file,
		t.created_at, t.updated_at, ar.name, al.title, al.release_year
	FROM tracks t
	JOIN artists ar ON ar.id = t.artist_id
	JOIN albums al ON al.id = t.album_id`

// TrackRepository implements models.Repository[*models.Track, int64] for catalog tracks.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new [models.Track]
func (r *TrackRepository) Create(ctx context.Context, t *models.Track) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if t.DiscNumber == 0 {
		t.DiscNumber = 1
	}
	t.CreatedAt, t.UpdatedAt = now(), now()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO tracks (album_id, artist_id, mbid, title, track_number, disc_number, duration, has_file, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AlbumID, t.ArtistID, t.MBID, t.Title, t.TrackNumber, t.DiscNumber, t.Duration, t.HasFile, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	t.ID, err = result.LastInsertId()
	return err
}

// Get retrieves a track by ID with its artist name and album title
func (r *TrackRepository) Get(ctx context.Context, id int64) (*models.Track, error) {
	t, err := r.scan(r.db.QueryRowContext(ctx, trackSelect+" WHERE t.id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "track", id)
	}
	return t, nil
}

// Update modifies an existing track
func (r *TrackRepository) Update(ctx context.Context, t *models.Track) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	t.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE tracks
		SET mbid = ?, title = ?, track_number = ?, disc_number = ?, duration = ?, has_file = ?, updated_at = ?
		WHERE id = ?`,
		t.MBID, t.Title, t.TrackNumber, t.DiscNumber, t.Duration, t.HasFile, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "track", t.ID)
}

// Delete removes a track by ID
func (r *TrackRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "track", id)
}

// List retrieves tracks. Supported keys: album_id, artist_id (ints), has_file (bool).
func (r *TrackRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Track, error) {
	w := &where{}
	if v, ok := int64Criteria(criteria, "album_id"); ok {
		w.eq("t.album_id", v)
	}
	if v, ok := int64Criteria(criteria, "artist_id"); ok {
		w.eq("t.artist_id", v)
	}
	if v, ok := boolCriteria(criteria, "has_file"); ok {
		w.eq("t.has_file", v)
	}
	return r.query(ctx, trackSelect+w.String()+" ORDER BY t.album_id, t.disc_number, t.track_number"+limitClause(criteria), w.args...)
}

// FindByArtistAndTitle returns tracks whose artist name and title equal the given values, ignoring case
func (r *TrackRepository) FindByArtistAndTitle(ctx context.Context, artist, title string) ([]*models.Track, error) {
	return r.query(ctx, trackSelect+" WHERE ar.name = ? COLLATE NOCASE AND t.title = ? COLLATE NOCASE ORDER BY t.id", artist, title)
}

// ListByArtistName returns every track by artists whose name equals artist, ignoring case
func (r *TrackRepository) ListByArtistName(ctx context.Context, artist string) ([]*models.Track, error) {
	return r.query(ctx, trackSelect+" WHERE ar.name = ? COLLATE NOCASE ORDER BY t.id", artist)
}

// ListByAlbumTitle returns every track on albums titled album, ignoring case
func (r *TrackRepository) ListByAlbumTitle(ctx context.Context, album string) ([]*models.Track, error) {
	return r.query(ctx, trackSelect+" WHERE al.title = ? COLLATE NOCASE ORDER BY t.id", album)
}

// SyncHasFile recomputes has_file from track_files, optionally for one artist, returning rows changed
func (r *TrackRepository) SyncHasFile(ctx context.Context, artistID int64) (int64, error) {
	query := `
		UPDATE tracks
		SET has_file = EXISTS (SELECT 1 FROM track_files f WHERE f.track_id = tracks.id), updated_at = ?
		WHERE has_file != EXISTS (SELECT 1 FROM track_files f WHERE f.track_id = tracks.id)`
	args := []any{now()}
	if artistID > 0 {
		query += " AND artist_id = ?"
		args = append(args, artistID)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to sync track file flags: %w", err)
	}
	return result.RowsAffected()
}

func (r *TrackRepository) query(ctx context.Context, query string, args ...any) ([]*models.Track, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

func (r *TrackRepository) scan(row rowScanner) (*models.Track, error) {
	var t models.Track
	err := row.Scan(
		&t.ID, &t.AlbumID, &t.ArtistID, &t.MBID, &t.Title, &t.TrackNumber, &t.DiscNumber, &t.Duration, &t.HasFile,
		&t.CreatedAt, &t.UpdatedAt, &t.ArtistName, &t.AlbumTitle, &t.ReleaseYear,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
