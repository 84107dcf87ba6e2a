package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// GetProjectEnvironment returns the environment row for a project, or
// orcherr.CodeNotFound if the project has never been opened.
func (s *Store) GetProjectEnvironment(ctx context.Context, projectID string) (*models.ProjectEnvironment, error) {
	var e models.ProjectEnvironment
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, substrate_handle, storage_claim_id, file_manager_handle,
		       status, progress, status_message, last_activity_at, created_at, updated_at
		FROM project_environments WHERE project_id = $1`, projectID).Scan(
		&e.ProjectID, &e.SubstrateHandle, &e.StorageClaimID, &e.FileManagerHandle,
		&e.Status, &e.Progress, &e.StatusMessage, &e.LastActivityAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "project environment not found: "+projectID)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "get project environment", err)
	}
	return &e, nil
}

// EnsureProjectEnvironmentRow inserts a `created` row if one does not
// already exist, and returns the current row either way.
func (s *Store) EnsureProjectEnvironmentRow(ctx context.Context, projectID string) (*models.ProjectEnvironment, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_environments (project_id, status, last_activity_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (project_id) DO NOTHING`, projectID, models.EnvCreated)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "ensure project environment row", err)
	}
	return s.GetProjectEnvironment(ctx, projectID)
}

// UpdateProjectEnvironmentStatus transitions status/progress/message.
func (s *Store) UpdateProjectEnvironmentStatus(ctx context.Context, projectID, status string, progress int, statusMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_environments
		SET status = $2, progress = $3, status_message = $4, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = $1`, projectID, status, progress, statusMessage)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "update project environment status", err)
	}
	return nil
}

// SetProjectEnvironmentSubstrate persists the substrate handle, storage
// claim id (or archive key), and file-manager handle once EnsureProjectSpace
// and EnsureFileManager complete.
func (s *Store) SetProjectEnvironmentSubstrate(ctx context.Context, projectID, substrateHandle, storageClaimID, fileManagerHandle string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_environments
		SET substrate_handle = $2, storage_claim_id = $3, file_manager_handle = $4, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = $1`, projectID, substrateHandle, storageClaimID, fileManagerHandle)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "set project environment substrate", err)
	}
	return nil
}

// TouchProjectActivity bumps last_activity_at to now; called on any API
// interaction with an open project so the idle reaper sees fresh usage.
func (s *Store) TouchProjectActivity(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_environments SET last_activity_at = CURRENT_TIMESTAMP WHERE project_id = $1`, projectID)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "touch project activity", err)
	}
	return nil
}

// ListIdleActiveEnvironments returns every `active` environment whose
// last_activity_at is older than olderThan, for the idle reaper's scan.
func (s *Store) ListIdleActiveEnvironments(ctx context.Context, olderThan time.Time) ([]models.ProjectEnvironment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, substrate_handle, storage_claim_id, file_manager_handle,
		       status, progress, status_message, last_activity_at, created_at, updated_at
		FROM project_environments WHERE status = $1 AND last_activity_at < $2`, models.EnvActive, olderThan)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list idle environments", err)
	}
	defer rows.Close()

	var out []models.ProjectEnvironment
	for rows.Next() {
		var e models.ProjectEnvironment
		if err := rows.Scan(&e.ProjectID, &e.SubstrateHandle, &e.StorageClaimID, &e.FileManagerHandle,
			&e.Status, &e.Progress, &e.StatusMessage, &e.LastActivityAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan idle environment", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
