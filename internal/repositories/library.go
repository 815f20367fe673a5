package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const libraryColumns = "id, name, path, enabled, last_scanned_at, created_at, updated_at"

// LibraryRepository implements models.Repository[*models.Library, int64].
type LibraryRepository struct {
	db *sql.DB
}

// NewLibraryRepository creates a new LibraryRepository with the given database connection
func NewLibraryRepository(db *sql.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// Create inserts a library, storing its path in absolute form
func (r *LibraryRepository) Create(ctx context.Context, lib *models.Library) error {
	if err := lib.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	abs, err := filepath.Abs(lib.Path)
	if err != nil {
		return fmt.Errorf("%w: library path: %v", shared.ErrInvalidInput, err)
	}
	lib.Path = abs
	lib.CreatedAt, lib.UpdatedAt = now(), now()

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO libraries (name, path, enabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		lib.Name, lib.Path, lib.Enabled, lib.CreatedAt, lib.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert library: %w", err)
	}

	lib.ID, err = result.LastInsertId()
	return err
}

// Get retrieves a library by ID
func (r *LibraryRepository) Get(ctx context.Context, id int64) (*models.Library, error) {
	lib, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+libraryColumns+" FROM libraries WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "library", id)
	}
	return lib, nil
}

// Update modifies an existing library
func (r *LibraryRepository) Update(ctx context.Context, lib *models.Library) error {
	if err := lib.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	lib.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx,
		"UPDATE libraries SET name = ?, path = ?, enabled = ?, last_scanned_at = ?, updated_at = ? WHERE id = ?",
		lib.Name, lib.Path, lib.Enabled, nullTime(lib.LastScannedAt), lib.UpdatedAt, lib.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update library: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "library", lib.ID)
}

// MarkScanned records the completion time of a scan
func (r *LibraryRepository) MarkScanned(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx, "UPDATE libraries SET last_scanned_at = ?, updated_at = ? WHERE id = ?", at.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark library scanned: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "library", id)
}

// Delete removes a library by ID
func (r *LibraryRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete library: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "library", id)
}

// List retrieves libraries. Supported keys: enabled (bool).
func (r *LibraryRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Library, error) {
	w := &where{}
	if v, ok := boolCriteria(criteria, "enabled"); ok {
		w.eq("enabled", v)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+libraryColumns+" FROM libraries"+w.String()+" ORDER BY id ASC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query libraries: %w", err)
	}
	defer rows.Close()

	var libs []*models.Library
	for rows.Next() {
		lib, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return libs, nil
}

func (r *LibraryRepository) scan(row rowScanner) (*models.Library, error) {
	var (
		lib         models.Library
		lastScanned sql.NullTime
	)
	if err := row.Scan(&lib.ID, &lib.Name, &lib.Path, &lib.Enabled, &lastScanned, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
		return nil, err
	}
	lib.LastScannedAt = timePtr(lastScanned)
	return &lib, nil
}
