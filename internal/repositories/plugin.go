package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

const pluginColumns = "id, name, path, repository, reference, reference_type, version, enabled, created_at, updated_at"

// PluginRepository implements models.Repository[*models.Plugin, int64].
type PluginRepository struct {
	db *sql.DB
}

// NewPluginRepository creates a new PluginRepository with the given database connection
func NewPluginRepository(db *sql.DB) *PluginRepository {
	return &PluginRepository{db: db}
}

// Create inserts a plugin
func (r *PluginRepository) Create(ctx context.Context, p *models.Plugin) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = now(), now()

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO plugins (name, path, repository, reference, reference_type, version, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Path, p.Repository, p.Reference, p.ReferenceType, p.Version, p.Enabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plugin: %w", err)
	}

	p.ID, err = result.LastInsertId()
	return err
}

// Get retrieves a plugin by ID
func (r *PluginRepository) Get(ctx context.Context, id int64) (*models.Plugin, error) {
	p, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+pluginColumns+" FROM plugins WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "plugin", id)
	}
	return p, nil
}

// GetByName retrieves a plugin by its unique name
func (r *PluginRepository) GetByName(ctx context.Context, name string) (*models.Plugin, error) {
	p, err := r.scan(r.db.QueryRowContext(ctx, "SELECT "+pluginColumns+" FROM plugins WHERE name = ?", name))
	if err != nil {
		return nil, notFound(err, shared.ErrEntityNotFound, "plugin", name)
	}
	return p, nil
}

// Update modifies an existing plugin
func (r *PluginRepository) Update(ctx context.Context, p *models.Plugin) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	p.UpdatedAt = now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE plugins
		SET path = ?, repository = ?, reference = ?, reference_type = ?, version = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		p.Path, p.Repository, p.Reference, p.ReferenceType, p.Version, p.Enabled, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plugin: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "plugin", p.ID)
}

// Delete removes a plugin by ID
func (r *PluginRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM plugins WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin: %w", err)
	}
	return expectOne(result, shared.ErrEntityNotFound, "plugin", id)
}

// List retrieves plugins by name. Supported keys: enabled (bool).
func (r *PluginRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Plugin, error) {
	w := &where{}
	if v, ok := boolCriteria(criteria, "enabled"); ok {
		w.eq("enabled", v)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+pluginColumns+" FROM plugins"+w.String()+" ORDER BY name", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plugins: %w", err)
	}
	defer rows.Close()

	var plugins []*models.Plugin
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin: %w", err)
		}
		plugins = append(plugins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return plugins, nil
}

func (r *PluginRepository) scan(row rowScanner) (*models.Plugin, error) {
	var p models.Plugin
	err := row.Scan(&p.ID, &p.Name, &p.Path, &p.Repository, &p.Reference, &p.ReferenceType, &p.Version, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
