package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// InsertContainer adds a new container row in the pending state.
func (s *Store) InsertContainer(ctx context.Context, c models.Container) error {
	var command string
	if len(c.Command) > 0 {
		command = strings.Join(c.Command, " ")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers (id, project_id, dir_name, image, command, port, hostname,
		                         status, resources_memory, resources_cpu)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ProjectID, c.DirName, c.Image, command, c.Port, c.Hostname,
		c.Status, c.ResourceMemory, c.ResourceCPU)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "insert container", err)
	}
	return nil
}

// DeleteContainer removes a container row outright; callers must have
// already torn down its substrate object.
func (s *Store) DeleteContainer(ctx context.Context, containerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = $1`, containerID)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "delete container", err)
	}
	return nil
}

// MarkContainerFilesReady flips the files_ready flag once
// MaterializeTemplate completes for a container.
func (s *Store) MarkContainerFilesReady(ctx context.Context, containerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE containers SET files_ready = true, updated_at = CURRENT_TIMESTAMP WHERE id = $1`, containerID)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "mark container files ready", err)
	}
	return nil
}

// ListContainersByProject returns every container belonging to a project,
// ordered by creation so dependency-unaware callers get a stable order.
func (s *Store) ListContainersByProject(ctx context.Context, projectID string) ([]models.Container, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, dir_name, image, command, port, hostname, status,
		       status_message, endpoint, files_ready, resources_memory, resources_cpu,
		       created_at, updated_at
		FROM containers WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list containers", err)
	}
	defer rows.Close()

	var out []models.Container
	for rows.Next() {
		var c models.Container
		var command string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.DirName, &c.Image, &command, &c.Port, &c.Hostname,
			&c.Status, &c.StatusMessage, &c.Endpoint, &c.FilesReady, &c.ResourceMemory, &c.ResourceCPU,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan container", err)
		}
		if command != "" {
			c.Command = []string{"/bin/sh", "-c", command}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateContainerStatus transitions a container's lifecycle state.
func (s *Store) UpdateContainerStatus(ctx context.Context, containerID, status, statusMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE containers SET status = $2, status_message = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, containerID, status, statusMessage)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "update container status", err)
	}
	return nil
}

// UpdateContainerEndpoint records the routable endpoint a driver returned
// from StartContainer.
func (s *Store) UpdateContainerEndpoint(ctx context.Context, containerID, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE containers SET endpoint = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, containerID, endpoint)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "update container endpoint", err)
	}
	return nil
}

// GetContainer fetches a single container by id.
func (s *Store) GetContainer(ctx context.Context, containerID string) (*models.Container, error) {
	var c models.Container
	var command string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, dir_name, image, command, port, hostname, status,
		       status_message, endpoint, files_ready, resources_memory, resources_cpu,
		       created_at, updated_at
		FROM containers WHERE id = $1`, containerID).Scan(
		&c.ID, &c.ProjectID, &c.DirName, &c.Image, &command, &c.Port, &c.Hostname,
		&c.Status, &c.StatusMessage, &c.Endpoint, &c.FilesReady, &c.ResourceMemory, &c.ResourceCPU,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "container not found: "+containerID)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "get container", err)
	}
	if command != "" {
		c.Command = []string{"/bin/sh", "-c", command}
	}
	return &c, nil
}

// ListConnectionsByProject returns every dependency/network edge recorded
// for a project.
func (s *Store) ListConnectionsByProject(ctx context.Context, projectID string) ([]models.ContainerConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, from_container_id, to_container_id, kind, created_at
		FROM container_connections WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list connections", err)
	}
	defer rows.Close()

	var out []models.ContainerConnection
	for rows.Next() {
		var c models.ContainerConnection
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FromContainerID, &c.ToContainerID, &c.Kind, &c.CreatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan connection", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertConnection adds a new dependency/network edge. Callers must check
// for cycles (internal/graph.DetectCycle) before calling this: the
// database enforces uniqueness but not acyclicity.
func (s *Store) InsertConnection(ctx context.Context, conn models.ContainerConnection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO container_connections (id, project_id, from_container_id, to_container_id, kind)
		VALUES ($1, $2, $3, $4, $5)`,
		conn.ID, conn.ProjectID, conn.FromContainerID, conn.ToContainerID, conn.Kind)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "insert connection", err)
	}
	return nil
}
