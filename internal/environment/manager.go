// Package environment implements the Project Environment Manager
// (spec.md §4.B): the per-project state machine that owns a Project's
// substrate space, serializes concurrent opens, and reaps idle projects
// into hibernation.
package environment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/cache"
	"github.com/tesslate/studio-orchestrator/internal/events"
	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/metrics"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/store"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// lockTTL bounds how long one caller's ensure() holds the distributed lock;
// if it crashes mid-ensure, a later caller can still make progress.
const lockTTL = 2 * time.Minute

// pollInterval and pollBudget bound how long a non-winning caller of
// ensure() waits for the in-flight winner to finish.
const (
	pollInterval = 250 * time.Millisecond
	pollBudget   = 60 * time.Second
)

// Manager owns the Project Environment state machine described in
// spec.md §4.B. It persists authoritative state in the metadata store, uses
// Redis only to serialize concurrent ensure() calls, and drives the
// configured Substrate Driver directly for every substrate-affecting step.
type Manager struct {
	store     *store.Store
	cache     *cache.Cache
	driver    substrate.Driver
	publisher *events.Publisher
	idleAfter time.Duration
}

// New builds a Manager bound to a single Substrate Driver — the control
// plane selects local-engine or cluster once at startup per deployment_mode
// and never branches on substrate type again.
func New(s *store.Store, c *cache.Cache, driver substrate.Driver, publisher *events.Publisher, idleAfterMinutes int) *Manager {
	return &Manager{store: s, cache: c, driver: driver, publisher: publisher, idleAfter: time.Duration(idleAfterMinutes) * time.Minute}
}

// Ensure idempotently brings a Project's environment to `active` and
// returns its substrate handle. A hibernated environment is restored
// in place rather than rejected, so the open path works whether or not
// the caller hibernated in between. Concurrent callers serialize on a
// distributed lock; a caller that loses the race attaches to the winner's
// in-flight work by polling the persisted status instead of repeating it.
func (m *Manager) Ensure(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	log := logger.Environment()

	env, err := m.store.EnsureProjectEnvironmentRow(ctx, projectID)
	if err != nil {
		return "", err
	}
	if env.Status == models.EnvActive {
		return substrate.SpaceHandle(env.SubstrateHandle), nil
	}
	if env.Status == models.EnvHibernated {
		return m.Restore(ctx, projectID)
	}
	if env.Status == models.EnvError || env.Status == models.EnvTombstone {
		return "", orcherr.UserError(orcherr.CodeConflict, fmt.Sprintf("project %s is %s, cannot ensure", projectID, env.Status))
	}

	// Without a cache, there is no cross-process serialization available;
	// proceed as the sole worker rather than waiting on a lock that can
	// never be won.
	if m.cache.IsEnabled() {
		acquired, lockErr := m.cache.SetNX(ctx, cache.EnvironmentLockKey(projectID), "1", lockTTL)
		if lockErr != nil || !acquired {
			return m.waitForActive(ctx, projectID)
		}
		defer m.cache.Delete(ctx, cache.EnvironmentLockKey(projectID))
	}

	// Re-check after winning the lock: another caller may have finished
	// between our first read and the SetNX.
	env, err = m.store.GetProjectEnvironment(ctx, projectID)
	if err != nil {
		return "", err
	}
	if env.Status == models.EnvActive {
		return substrate.SpaceHandle(env.SubstrateHandle), nil
	}

	log.Info().Str("project_id", projectID).Msg("ensuring project environment")
	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvCreated, 10, "allocating substrate space"); err != nil {
		return "", err
	}

	space, err := m.driver.EnsureProjectSpace(ctx, projectID)
	if err != nil {
		m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvError, 0, err.Error())
		return "", err
	}

	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvCreated, 60, "ensuring file manager"); err != nil {
		return "", err
	}
	if err := m.driver.EnsureFileManager(ctx, space); err != nil {
		m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvError, 0, err.Error())
		return "", err
	}

	if err := m.store.SetProjectEnvironmentSubstrate(ctx, projectID, string(space), "", ""); err != nil {
		return "", err
	}
	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvActive, 100, ""); err != nil {
		return "", err
	}

	metrics.RecordEnvironmentState(models.EnvActive, m.driver.Substrate(), 1)
	log.Info().Str("project_id", projectID).Str("space", string(space)).Msg("project environment active")
	return space, nil
}

func (m *Manager) waitForActive(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	deadline := time.Now().Add(pollBudget)
	for time.Now().Before(deadline) {
		env, err := m.store.GetProjectEnvironment(ctx, projectID)
		if err != nil {
			return "", err
		}
		switch env.Status {
		case models.EnvActive:
			return substrate.SpaceHandle(env.SubstrateHandle), nil
		case models.EnvError:
			return "", orcherr.PermanentError(orcherr.CodeConflict, "project environment failed to start: "+env.StatusMessage, nil)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return "", orcherr.TransientError(orcherr.CodeTimeout, "timed out waiting for project environment", nil)
}

// Hibernate is permitted only from `active`. It stops running containers,
// calls the driver's Hibernate on the space, and marks the environment
// hibernated. A container that fails to stop is logged and skipped. If
// listing containers or the driver's Hibernate fails, the environment
// reverts to `active` and the error is returned. An error while recording
// the result after the driver's Hibernate succeeded is returned as is: the
// status is not reverted and nothing retries the step.
func (m *Manager) Hibernate(ctx context.Context, projectID string) error {
	log := logger.Environment()

	env, err := m.store.GetProjectEnvironment(ctx, projectID)
	if err != nil {
		return err
	}
	if env.Status != models.EnvActive {
		return orcherr.UserError(orcherr.CodeConflict, "hibernate is only valid from active, current status: "+env.Status)
	}

	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvHibernating, 10, "draining containers"); err != nil {
		return err
	}

	space := substrate.SpaceHandle(env.SubstrateHandle)
	containers, err := m.store.ListContainersByProject(ctx, projectID)
	if err != nil {
		m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvActive, 0, err.Error())
		return err
	}
	for _, c := range containers {
		if c.Status != models.ContainerRunning && c.Status != models.ContainerStarting {
			continue
		}
		if err := m.driver.StopContainer(ctx, space, c.ID); err != nil {
			log.Warn().Err(err).Str("container_id", c.ID).Msg("failed to stop container during hibernate")
			continue
		}
		m.store.UpdateContainerStatus(ctx, c.ID, models.ContainerStopped, "")
	}

	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvHibernating, 60, "archiving project space"); err != nil {
		return err
	}

	archiveKey, err := m.driver.Hibernate(ctx, space, projectID)
	if err != nil {
		// Archive failed: permanent, revert to active per spec.md §4.B.
		m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvActive, 0, err.Error())
		return err
	}

	if err := m.store.SetProjectEnvironmentSubstrate(ctx, projectID, "", archiveKey, ""); err != nil {
		return err
	}
	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvHibernated, 100, ""); err != nil {
		return err
	}

	if m.publisher != nil {
		m.publisher.PublishEnvironmentHibernate(ctx, m.driver.Substrate(), events.EnvironmentHibernateEvent{
			ProjectID: projectID, Substrate: m.driver.Substrate(),
		})
	}

	metrics.RecordHibernation("idle_reaper")
	metrics.RecordEnvironmentState(models.EnvHibernated, m.driver.Substrate(), 1)
	log.Info().Str("project_id", projectID).Str("archive_key", archiveKey).Msg("project environment hibernated")
	return nil
}

// Restore is only valid from `hibernated`. Containers are left `stopped`;
// the caller must explicitly start them back up.
func (m *Manager) Restore(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	log := logger.Environment()

	env, err := m.store.GetProjectEnvironment(ctx, projectID)
	if err != nil {
		return "", err
	}
	if env.Status != models.EnvHibernated {
		return "", orcherr.UserError(orcherr.CodeConflict, "restore is only valid from hibernated, current status: "+env.Status)
	}

	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvRestoring, 20, "expanding archive"); err != nil {
		return "", err
	}

	space, err := m.driver.Restore(ctx, projectID, env.StorageClaimID)
	if err != nil {
		m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvHibernated, 0, err.Error())
		return "", err
	}

	if err := m.store.SetProjectEnvironmentSubstrate(ctx, projectID, string(space), env.StorageClaimID, ""); err != nil {
		return "", err
	}
	if err := m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvActive, 100, ""); err != nil {
		return "", err
	}

	if m.publisher != nil {
		m.publisher.PublishEnvironmentRestore(ctx, m.driver.Substrate(), events.EnvironmentRestoreEvent{
			ProjectID: projectID, ArchiveKey: env.StorageClaimID, Substrate: m.driver.Substrate(),
		})
	}

	metrics.RecordRestore()
	metrics.RecordEnvironmentState(models.EnvActive, m.driver.Substrate(), 1)
	log.Info().Str("project_id", projectID).Msg("project environment restored")
	return space, nil
}

// Delete tears down a Project's environment from any state and reaches
// `tombstone`. It is idempotent: a project that never had an environment
// row, or one already tombstoned, returns nil.
func (m *Manager) Delete(ctx context.Context, projectID string) error {
	env, err := m.store.GetProjectEnvironment(ctx, projectID)
	if errors.Is(err, orcherr.User) {
		return nil
	}
	if err != nil {
		return err
	}
	if env.Status == models.EnvTombstone {
		return nil
	}

	if env.Status == models.EnvActive || env.Status == models.EnvHibernating {
		space := substrate.SpaceHandle(env.SubstrateHandle)
		containers, lErr := m.store.ListContainersByProject(ctx, projectID)
		if lErr == nil {
			for _, c := range containers {
				m.driver.StopContainer(ctx, space, c.ID)
			}
		}
		m.driver.Hibernate(ctx, space, projectID)
	}

	return m.store.UpdateProjectEnvironmentStatus(ctx, projectID, models.EnvTombstone, 100, "")
}

// TouchActivity records interaction with a Project so the idle reaper
// doesn't hibernate it out from under an active user.
func (m *Manager) TouchActivity(ctx context.Context, projectID string) error {
	return m.store.TouchProjectActivity(ctx, projectID)
}
