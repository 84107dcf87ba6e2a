package graph

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/events"
	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/metrics"
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/store"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// readinessBudget bounds how long StartAll waits for a container's declared
// port to accept a TCP connection before giving up on it.
const readinessBudget = 30 * time.Second

// ProgressFunc receives one update per container as start_all/stop_all
// proceeds; it may be nil. internal/httpapi passes nil on every call it
// makes, so these updates do not reach a Task's event channel.
type ProgressFunc func(containerID, status, message string)

// Runtime drives start/stop across a Project's Containers in dependency
// order, per spec.md §4.C.
type Runtime struct {
	store  *store.Store
	driver substrate.Driver
	pub    *events.Publisher
}

// New builds a Runtime bound to a single Substrate Driver, matching the
// one-driver-per-deployment wiring used by internal/environment.Manager.
func New(s *store.Store, driver substrate.Driver, pub *events.Publisher) *Runtime {
	return &Runtime{store: s, driver: driver, pub: pub}
}

func noopProgress(string, string, string) {}

// StartAll brings every Container in a Project up in dependency order. A
// Container already `running` is skipped. A Container that ends up
// `failing` does not block siblings that do not depend on it, but its
// dependents are skipped and reported failing-by-dependency.
func (r *Runtime) StartAll(ctx context.Context, space substrate.SpaceHandle, projectID string, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	log := logger.Substrate()

	containers, err := r.store.ListContainersByProject(ctx, projectID)
	if err != nil {
		return err
	}
	connections, err := r.store.ListConnectionsByProject(ctx, projectID)
	if err != nil {
		return err
	}

	ids := make([]string, len(containers))
	byID := make(map[string]models.Container, len(containers))
	for i, c := range containers {
		ids[i] = c.ID
		byID[c.ID] = c
	}
	order, err := TopoOrder(ids, connections)
	if err != nil {
		return err
	}

	dependsOn := make(map[string][]string)
	for _, c := range connections {
		if c.Kind == models.ConnectionDependsOn {
			dependsOn[c.FromContainerID] = append(dependsOn[c.FromContainerID], c.ToContainerID)
		}
	}

	failed := make(map[string]bool)
	for _, id := range order {
		c := byID[id]
		if c.Status == models.ContainerRunning {
			continue
		}

		blocked := false
		for _, dep := range dependsOn[id] {
			if failed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			failed[id] = true
			r.store.UpdateContainerStatus(ctx, id, models.ContainerFailing, "dependency failed to start")
			metrics.RecordContainerTransition(c.Status, models.ContainerFailing)
			progress(id, models.ContainerFailing, "dependency failed to start")
			continue
		}

		if err := r.startOne(ctx, space, c, progress); err != nil {
			log.Warn().Err(err).Str("container_id", id).Msg("container failed to start")
			failed[id] = true
			continue
		}
	}

	if len(failed) > 0 {
		return orcherr.PermanentError(orcherr.CodeInternal, fmt.Sprintf("%d container(s) failed to start", len(failed)), nil)
	}
	return nil
}

func (r *Runtime) startOne(ctx context.Context, space substrate.SpaceHandle, c models.Container, progress ProgressFunc) error {
	from := c.Status
	r.store.UpdateContainerStatus(ctx, c.ID, models.ContainerStarting, "")
	metrics.RecordContainerTransition(from, models.ContainerStarting)
	progress(c.ID, models.ContainerStarting, "")

	endpoint, err := r.driver.StartContainer(ctx, space, substrate.ContainerSpec{
		ContainerID: c.ID,
		DirName:     c.DirName,
		Image:       c.Image,
		Command:     c.Command,
		Port:        c.Port,
		Memory:      c.ResourceMemory,
		CPU:         c.ResourceCPU,
	})
	if err != nil {
		r.store.UpdateContainerStatus(ctx, c.ID, models.ContainerFailing, err.Error())
		metrics.RecordContainerTransition(models.ContainerStarting, models.ContainerFailing)
		progress(c.ID, models.ContainerFailing, err.Error())
		return err
	}
	r.store.UpdateContainerEndpoint(ctx, c.ID, endpoint)

	if c.Port > 0 {
		if !waitForReady(ctx, endpoint, readinessBudget) {
			msg := "readiness probe timed out"
			r.store.UpdateContainerStatus(ctx, c.ID, models.ContainerFailing, msg)
			metrics.RecordContainerTransition(models.ContainerStarting, models.ContainerFailing)
			progress(c.ID, models.ContainerFailing, msg)
			return orcherr.TransientError(orcherr.CodeTimeout, msg, nil)
		}
	}

	r.store.UpdateContainerStatus(ctx, c.ID, models.ContainerRunning, "")
	metrics.RecordContainerTransition(models.ContainerStarting, models.ContainerRunning)
	progress(c.ID, models.ContainerRunning, "")

	if r.pub != nil {
		r.pub.PublishContainerStart(ctx, r.driver.Substrate(), events.ContainerStartEvent{
			ProjectID: c.ProjectID, ContainerID: c.ID, Substrate: r.driver.Substrate(),
			Spec: events.ContainerRun{DirName: c.DirName, Image: c.Image, Command: c.Command, Port: c.Port},
		})
	}
	return nil
}

// StartContainer brings up a single Container, reusing the same start
// path StartAll uses for each node in dependency order. Callers needing
// dependency ordering should use StartAll; this is for the "start the dev
// container" and per-container restart control-plane operations, where
// the caller already knows the target is startable on its own.
func (r *Runtime) StartContainer(ctx context.Context, space substrate.SpaceHandle, containerID string, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	c, err := r.store.GetContainer(ctx, containerID)
	if err != nil {
		return err
	}
	if c.Status == models.ContainerRunning {
		return nil
	}
	return r.startOne(ctx, space, *c, progress)
}

// StopContainer tears down a single Container.
func (r *Runtime) StopContainer(ctx context.Context, space substrate.SpaceHandle, containerID string, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	log := logger.Substrate()

	c, err := r.store.GetContainer(ctx, containerID)
	if err != nil {
		return err
	}
	if c.Status == models.ContainerStopped || c.Status == models.ContainerPending {
		return nil
	}

	from := c.Status
	r.store.UpdateContainerStatus(ctx, containerID, models.ContainerStopping, "")
	metrics.RecordContainerTransition(from, models.ContainerStopping)
	progress(containerID, models.ContainerStopping, "")

	if err := r.driver.StopContainer(ctx, space, containerID); err != nil {
		log.Warn().Err(err).Str("container_id", containerID).Msg("container failed to stop cleanly")
		progress(containerID, models.ContainerFailing, err.Error())
		return err
	}

	r.store.UpdateContainerStatus(ctx, containerID, models.ContainerStopped, "")
	metrics.RecordContainerTransition(models.ContainerStopping, models.ContainerStopped)
	progress(containerID, models.ContainerStopped, "")

	if r.pub != nil {
		r.pub.PublishContainerStop(ctx, r.driver.Substrate(), events.ContainerStopEvent{
			ProjectID: c.ProjectID, ContainerID: containerID, Substrate: r.driver.Substrate(),
		})
	}
	return nil
}

// StopAll tears down every Container in a Project in reverse dependency
// order.
func (r *Runtime) StopAll(ctx context.Context, space substrate.SpaceHandle, projectID string, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	log := logger.Substrate()

	containers, err := r.store.ListContainersByProject(ctx, projectID)
	if err != nil {
		return err
	}
	connections, err := r.store.ListConnectionsByProject(ctx, projectID)
	if err != nil {
		return err
	}

	ids := make([]string, len(containers))
	byID := make(map[string]models.Container, len(containers))
	for i, c := range containers {
		ids[i] = c.ID
		byID[c.ID] = c
	}
	order, err := StopOrder(ids, connections)
	if err != nil {
		return err
	}

	for _, id := range order {
		c := byID[id]
		if c.Status == models.ContainerStopped || c.Status == models.ContainerPending {
			continue
		}
		r.store.UpdateContainerStatus(ctx, id, models.ContainerStopping, "")
		metrics.RecordContainerTransition(c.Status, models.ContainerStopping)
		progress(id, models.ContainerStopping, "")

		if err := r.driver.StopContainer(ctx, space, id); err != nil {
			log.Warn().Err(err).Str("container_id", id).Msg("container failed to stop cleanly")
			progress(id, models.ContainerFailing, err.Error())
			continue
		}

		r.store.UpdateContainerStatus(ctx, id, models.ContainerStopped, "")
		metrics.RecordContainerTransition(models.ContainerStopping, models.ContainerStopped)
		progress(id, models.ContainerStopped, "")

		if r.pub != nil {
			r.pub.PublishContainerStop(ctx, r.driver.Substrate(), events.ContainerStopEvent{
				ProjectID: c.ProjectID, ContainerID: id, Substrate: r.driver.Substrate(),
			})
		}
	}
	return nil
}

func waitForReady(ctx context.Context, endpoint string, budget time.Duration) bool {
	if endpoint == "" {
		return true
	}
	hostport := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		hostport = u.Host
	}

	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", hostport, 2*time.Second)
		if err == nil {
			conn.Close()
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
	return false
}
