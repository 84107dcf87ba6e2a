package store

import (
	"context"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// InsertToolInvocation records one completed tool execution for a project's
// audit trail (spec.md §4.D).
func (s *Store) InsertToolInvocation(ctx context.Context, inv models.ToolInvocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_invocations (id, user_id, project_id, tool, params_digest, risk_tier,
		                               success, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.UserID, inv.ProjectID, inv.Tool, inv.ParamsDigest, inv.RiskTier,
		inv.Success, inv.ErrorMessage, inv.DurationMS)
	if err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "insert tool invocation", err)
	}
	return nil
}

// ListToolInvocationsByProject returns a project's audit trail, newest
// first, capped at limit rows.
func (s *Store) ListToolInvocationsByProject(ctx context.Context, projectID string, limit int) ([]models.ToolInvocation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, project_id, tool, params_digest, risk_tier, success, error_message, duration_ms, created_at
		FROM tool_invocations WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list tool invocations", err)
	}
	defer rows.Close()

	var out []models.ToolInvocation
	for rows.Next() {
		var inv models.ToolInvocation
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.ProjectID, &inv.Tool, &inv.ParamsDigest, &inv.RiskTier,
			&inv.Success, &inv.ErrorMessage, &inv.DurationMS, &inv.CreatedAt); err != nil {
			return nil, orcherr.PermanentError(orcherr.CodeInternal, "scan tool invocation", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
