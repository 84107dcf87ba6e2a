package environment

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tesslate/studio-orchestrator/internal/logger"
)

// Reaper periodically scans for `active` environments past the
// hibernation idle threshold and hibernates them (spec.md §4.B "An
// idle-reaper scan runs periodically"). Unlike the teacher's per-resource
// controller-runtime reconciler, this is a single scheduled sweep over the
// metadata store, since ProjectEnvironment has no Kubernetes object of its
// own to watch on the local-engine substrate.
type Reaper struct {
	manager *Manager
	cron    *cron.Cron
}

// NewReaper builds a Reaper that checks every checkInterval for projects
// idle past the Manager's configured threshold.
func NewReaper(manager *Manager, checkInterval time.Duration) *Reaper {
	c := cron.New(cron.WithSeconds())
	r := &Reaper{manager: manager, cron: c}
	spec := "@every " + checkInterval.String()
	c.AddFunc(spec, r.scan)
	return r
}

// Start begins the periodic scan; it returns immediately, running on cron's
// own goroutine until Stop is called.
func (r *Reaper) Start() { r.cron.Start() }

// Stop halts the scan and waits for any in-flight run to finish.
func (r *Reaper) Stop() { <-r.cron.Stop().Done() }

func (r *Reaper) scan() {
	log := logger.Environment()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	threshold := time.Now().Add(-r.manager.idleAfter)
	idle, err := r.manager.store.ListIdleActiveEnvironments(ctx, threshold)
	if err != nil {
		log.Error().Err(err).Msg("idle reaper scan failed")
		return
	}

	for _, env := range idle {
		log.Info().Str("project_id", env.ProjectID).
			Time("last_activity_at", env.LastActivityAt).
			Msg("hibernating idle project")
		if err := r.manager.Hibernate(ctx, env.ProjectID); err != nil {
			log.Warn().Err(err).Str("project_id", env.ProjectID).Msg("idle hibernation failed")
		}
	}
}
