package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const artistColumns = "id, mbid, name, sort_name, monitored, last_synced_at, created_at, updated_at"

// ArtistRepository implements models.Repository[*models.Artist, int64].
//
// The mbid column is unique, so concurrent creates for the same artist collapse to one row.
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// Create inserts an artist
func (r *ArtistRepository) Create(ctx context.Context, a *models.Artist) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = now(), now()

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO artists (mbid, name, sort_name, monitored, last_synced_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		nullString(a.MBID), a.Name, a.SortName, a.Monitored, nullTime(a.LastSyncedAt), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artist: %w", err)
	}

	a.ID, err = result.LastInsertId()
	return err
}

// Get retrieves an artist by ID
func (r *ArtistRepository) Get(ctx context.Context, id int64) (*models.Artist, error) {
	a, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+artistColumns+" FROM artists WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "artist", id)
	}
	return a, nil
}

// GetByMBID retrieves an artist by its external ID
func (r *ArtistRepository) GetByMBID(ctx context.Context, mbid string) (*models.Artist, error) {
	a, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+artistColumns+" FROM artists WHERE mbid = ?", mbid))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "artist", mbid)
	}
	return a, nil
}

// FindByName returns artists whose name equals name, ignoring case
func (r *ArtistRepository) FindByName(ctx context.Context, name string) ([]*models.Artist, error) {
	return r.query(ctx, "SELECT "+artistColumns+" FROM artists WHERE name = ? COLLATE NOCASE ORDER BY id ASC", name)
}

// Update modifies an existing artist
func (r *ArtistRepository) Update(ctx context.Context, a *models.Artist) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	a.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx,
		"UPDATE artists SET mbid = ?, name = ?, sort_name = ?, monitored = ?, last_synced_at = ?, updated_at = ? WHERE id = ?",
		nullString(a.MBID), a.Name, a.SortName, a.Monitored, nullTime(a.LastSyncedAt), a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update artist: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "artist", a.ID)
}

// MarkSynced records the time of the last metadata sync
func (r *ArtistRepository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE artists SET last_synced_at = ?, updated_at = ? WHERE id = ?", at.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark artist synced: %w", err)
	}
	return nil
}

// Delete removes an artist and, by cascade, its albums and tracks
func (r *ArtistRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM artists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete artist: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "artist", id)
}

// List retrieves artists ordered by name. Supported keys: monitored (bool), limit (int).
func (r *ArtistRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Artist, error) {
	w := &where{}
	if v, ok := boolCriteria(criteria, "monitored"); ok {
		w.eq("monitored", v)
	}
	return r.query(ctx, "SELECT "+artistColumns+" FROM artists"+w.String()+" ORDER BY name COLLATE NOCASE ASC"+limitClause(criteria), w.args...)
}

func (r *ArtistRepository) query(ctx context.Context, query string, args ...any) ([]*models.Artist, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artists = append(artists, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return artists, nil
}

func (r *ArtistRepository) scan(row rowScanner) (*models.Artist, error) {
	var (
		a          models.Artist
		mbid       sql.NullString
		lastSynced sql.NullTime
	)
	if err := row.Scan(&a.ID, &mbid, &a.Name, &a.SortName, &a.Monitored, &lastSynced, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.MBID = mbid.String
	a.LastSyncedAt = timePtr(lastSynced)
	return &a, nil
}

// nullString stores empty strings as NULL so UNIQUE columns allow many unset values.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
