package store

import (
	"context"
	"database/sql"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// CreateProject inserts a new project row.
func (s *Store) CreateProject(ctx context.Context, p models.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, slug, name, deployment_mode)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.OwnerID, p.Slug, p.Name, p.DeploymentMode)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "create project", err)
	}
	return nil
}

// ListProjectsByOwner returns every non-deleted project owned by ownerID,
// newest first.
func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, slug, name, deployment_mode, created_at, updated_at, deleted_at
		FROM projects WHERE owner_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list projects", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Slug, &p.Name, &p.DeploymentMode, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProjectBySlug resolves a project by its unique slug, used to derive the
// hostnames spec.md §6 routes incoming traffic on.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, slug, name, deployment_mode, created_at, updated_at, deleted_at
		FROM projects WHERE slug = $1 AND deleted_at IS NULL`, slug).Scan(
		&p.ID, &p.OwnerID, &p.Slug, &p.Name, &p.DeploymentMode, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "project not found: "+slug)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "get project by slug", err)
	}
	return &p, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, slug, name, deployment_mode, created_at, updated_at, deleted_at
		FROM projects WHERE id = $1 AND deleted_at IS NULL`, projectID).Scan(
		&p.ID, &p.OwnerID, &p.Slug, &p.Name, &p.DeploymentMode, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "project not found: "+projectID)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "get project", err)
	}
	return &p, nil
}

// SoftDeleteProject marks a project deleted; callers are responsible for
// tearing down its substrate objects first.
func (s *Store) SoftDeleteProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, projectID)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "soft delete project", err)
	}
	return nil
}
