package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/metrics"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/store"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
	"github.com/tesslate/studio-orchestrator/internal/tools"
)

// containerLookup adapts the metadata store to tools.ContainerLookup: a
// tool call's Target names a Container by ID, and the registry needs its
// current status and the Substrate space it runs in to decide whether the
// call can dispatch.
func containerLookup(st *store.Store) tools.ContainerLookup {
	return func(ctx context.Context, projectID, containerID string) (string, substrate.SpaceHandle, string, error) {
		c, err := st.GetContainer(ctx, containerID)
		if err != nil {
			return "", "", "", err
		}
		env, err := st.GetProjectEnvironment(ctx, projectID)
		if err != nil {
			return "", "", "", err
		}
		return c.Status, substrate.SpaceHandle(env.SubstrateHandle), c.DirName, nil
	}
}

// metadataLookup answers the agent's "project_metadata" tool against the
// store directly, without the store's schema leaking into internal/tools.
func metadataLookup(st *store.Store) tools.MetadataLookup {
	return func(ctx context.Context, projectID, containerID, query string) (json.RawMessage, error) {
		switch query {
		case "containers":
			containers, err := st.ListContainersByProject(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(containers)
		case "connections":
			conns, err := st.ListConnectionsByProject(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(conns)
		default:
			project, err := st.GetProject(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return json.Marshal(project)
		}
	}
}

// onAudit persists every tool execution to the audit trail (spec.md §4.D)
// and feeds internal/metrics' invocation counters. Params are digested with
// SHA-256 rather than stored raw, since tool parameters can carry file
// contents.
func onAudit(st *store.Store) func(tools.AuditEntry) {
	log := logger.Tools()
	return func(e tools.AuditEntry) {
		outcome := "success"
		if !e.Success {
			outcome = "error"
		}
		metrics.RecordToolInvocation(e.Tool, "execute", outcome, e.Duration.Seconds())

		digest := sha256.Sum256(e.Params)
		inv := models.ToolInvocation{
			ID:           uuid.NewString(),
			UserID:       e.UserID,
			ProjectID:    e.ProjectID,
			Tool:         e.Tool,
			ParamsDigest: hex.EncodeToString(digest[:]),
			RiskTier:     string(e.RiskTier),
			Success:      e.Success,
			ErrorMessage: e.Error,
			DurationMS:   e.Duration.Milliseconds(),
			CreatedAt:    e.Timestamp,
		}
		if err := st.InsertToolInvocation(context.Background(), inv); err != nil {
			log.Error().Err(err).Str("tool", e.Tool).Msg("failed to record tool invocation")
		}
	}
}
