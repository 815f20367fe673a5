package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const albumColumns = "id, artist_id, release_group_id, title, album_type, release_year, status, created_at, updated_at"

// AlbumRepository implements models.Repository[*models.Album, int64].
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// Create inserts an album. A duplicate release group fails on the unique index.
func (r *AlbumRepository) Create(ctx context.Context, a *models.Album) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if a.Status == "" {
		a.Status = models.AlbumMissing
	}
	a.CreatedAt, a.UpdatedAt = now(), now()

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO albums (artist_id, release_group_id, title, album_type, release_year, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ArtistID, nullString(a.ReleaseGroupID), a.Title, a.AlbumType, a.ReleaseYear, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}

	a.ID, err = result.LastInsertId()
	return err
}

// Get retrieves an album by ID
func (r *AlbumRepository) Get(ctx context.Context, id int64) (*models.Album, error) {
	a, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+albumColumns+" FROM albums WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "album", id)
	}
	return a, nil
}

// GetByReleaseGroupID retrieves an album by its external release group ID
func (r *AlbumRepository) GetByReleaseGroupID(ctx context.Context, rgid string) (*models.Album, error) {
	a, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+albumColumns+" FROM albums WHERE release_group_id = ?", rgid))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "album", rgid)
	}
	return a, nil
}

// FindByTitle returns albums whose title equals title ignoring case, optionally within one artist
func (r *AlbumRepository) FindByTitle(ctx context.Context, title string, artistID int64) ([]*models.Album, error) {
	query := "SELECT " + albumColumns + " FROM albums WHERE title = ? COLLATE NOCASE"
	args := []any{title}
	if artistID > 0 {
		query += " AND artist_id = ?"
		args = append(args, artistID)
	}
	return r.query(ctx, query+" ORDER BY id ASC", args...)
}

// Update modifies an existing album
func (r *AlbumRepository) Update(ctx context.Context, a *models.Album) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	a.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx,
		"UPDATE albums SET title = ?, album_type = ?, release_year = ?, status = ?, updated_at = ? WHERE id = ?",
		a.Title, a.AlbumType, a.ReleaseYear, a.Status, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "album", a.ID)
}

// SetStatus writes only the album status
func (r *AlbumRepository) SetStatus(ctx context.Context, id int64, status models.AlbumStatus) error {
	result, err := r.db.ExecContext(ctx, "UPDATE albums SET status = ?, updated_at = ? WHERE id = ?", status, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set album status: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "album", id)
}

// TrackCounts returns the number of tracks on an album and how many of them have a file
func (r *AlbumRepository) TrackCounts(ctx context.Context, id int64) (total, withFile int, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(has_file), 0) FROM tracks WHERE album_id = ?", id,
	).Scan(&total, &withFile)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count album tracks: %w", err)
	}
	return total, withFile, nil
}

// Delete removes an album by ID
func (r *AlbumRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM albums WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "album", id)
}

// List retrieves albums. Supported keys: artist_id (int), status (string).
func (r *AlbumRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Album, error) {
	w := &where{}
	if v, ok := int64Criteria(criteria, "artist_id"); ok {
		w.eq("artist_id", v)
	}
	if v, ok := stringCriteria(criteria, "status"); ok {
		w.eq("status", v)
	}
	return r.query(ctx, "SELECT "+albumColumns+" FROM albums"+w.String()+" ORDER BY release_year ASC, id ASC"+limitClause(criteria), w.args...)
}

func (r *AlbumRepository) query(ctx context.Context, query string, args ...any) ([]*models.Album, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		albums = append(albums, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return albums, nil
}

func (r *AlbumRepository) scan(row rowScanner) (*models.Album, error) {
	var (
		a    models.Album
		rgid sql.NullString
	)
	if err := row.Scan(&a.ID, &a.ArtistID, &rgid, &a.Title, &a.AlbumType, &a.ReleaseYear, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ReleaseGroupID = rgid.String
	return &a, nil
}
