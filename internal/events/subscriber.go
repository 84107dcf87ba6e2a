package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tesslate/studio-orchestrator/internal/cache"
	"github.com/tesslate/studio-orchestrator/internal/logger"
)

// staleConnectionThreshold is how long a driver may go without a heartbeat
// before IsDriverStale reports it down (teacher: AgentHub.checkStaleConnections,
// 30s threshold), carried over as the Substrate Driver connection-health
// mechanism for both the local-engine daemon and per-node cluster agents.
const staleConnectionThreshold = 30 * time.Second

// heartbeatTTL bounds how long a heartbeat record survives in the cache
// past its own interval, so a driver that stops entirely ages out instead
// of appearing perpetually "recently seen".
const heartbeatTTL = 45 * time.Second

// StatusBroadcaster fans a raw JSON frame out to every browser client
// watching a Project. internal/websocket.Hub satisfies this.
type StatusBroadcaster interface {
	BroadcastToProject(projectID string, message []byte)
}

// Subscriber receives status events published by substrate drivers and
// reflects them into the metadata store, so the Task & Event Bus can fan
// them out over SSE/WS without polling drivers directly.
type Subscriber struct {
	conn        *nats.Conn
	db          *sql.DB
	cache       *cache.Cache
	broadcaster StatusBroadcaster
	enabled     bool
	subs        []*nats.Subscription
}

// NewSubscriber connects to NATS and prepares a status-event subscriber.
// If cfg.URL is empty or the connection fails, returns a disabled
// subscriber so the control plane can still run against a single local
// driver that is wired in-process instead of over NATS. broadcaster may be
// nil, in which case status events still update the store but are not
// fanned out to browser clients.
func NewSubscriber(cfg Config, db *sql.DB, c *cache.Cache, broadcaster StatusBroadcaster) (*Subscriber, error) {
	log := logger.Log.With().Str("component", "events").Logger()

	if cfg.URL == "" {
		log.Warn().Msg("NATS URL not configured, event subscription disabled")
		return &Subscriber{enabled: false}, nil
	}

	opts := []nats.Option{
		nats.Name("studio-orchestrator-subscriber"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats subscriber disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats subscriber reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("nats subscriber error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.URL).Msg("failed to connect subscriber to nats, event subscription disabled")
		return &Subscriber{enabled: false}, nil
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("subscriber connected to nats")
	return &Subscriber{conn: conn, db: db, cache: c, broadcaster: broadcaster, enabled: true, subs: make([]*nats.Subscription, 0)}, nil
}

// Start subscribes to container/environment status and driver heartbeat
// subjects and blocks until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	log := logger.Log.With().Str("component", "events").Logger()

	if !s.enabled {
		log.Warn().Msg("nats subscriber disabled, not starting")
		return nil
	}

	subjects := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{SubjectContainerStatus, func(msg *nats.Msg) { s.handleContainerStatus(msg.Data) }},
		{SubjectEnvironmentStatus, func(msg *nats.Msg) { s.handleEnvironmentStatus(msg.Data) }},
		{SubjectDriverHeartbeat, func(msg *nats.Msg) { s.handleDriverHeartbeat(msg.Data) }},
	}

	for _, e := range subjects {
		sub, err := s.conn.Subscribe(e.subject, e.handler)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", e.subject, err)
		}
		s.subs = append(s.subs, sub)
		log.Info().Str("subject", e.subject).Msg("subscribed")
	}

	log.Info().Msg("event subscriber started, listening for driver status events")
	<-ctx.Done()
	return nil
}

// Close unsubscribes from all subjects and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.conn == nil {
		return
	}
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.conn.Drain()
	s.conn.Close()
}

func (s *Subscriber) IsEnabled() bool { return s.enabled }

// handleContainerStatus reflects a container's lifecycle status into the
// containers table. A driver may report status for a container the store
// has not yet seen (e.g. after a control-plane restart) — in that case the
// update affects zero rows and is logged, not treated as an error.
func (s *Subscriber) handleContainerStatus(data []byte) {
	log := logger.Log.With().Str("component", "events").Logger()

	var ev ContainerStatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal container status event")
		return
	}

	log.Info().Str("container_id", ev.ContainerID).Str("status", ev.Status).
		Str("driver_id", ev.DriverID).Msg("received container status")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var projectID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE containers SET status = $1, endpoint = $2, status_message = $3, updated_at = $4 WHERE id = $5 RETURNING project_id`,
		ev.Status, ev.Endpoint, ev.Message, time.Now(), ev.ContainerID,
	).Scan(&projectID)
	if err == sql.ErrNoRows {
		log.Warn().Str("container_id", ev.ContainerID).Msg("container status event for unknown container")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("container_id", ev.ContainerID).Msg("failed to update container status")
		return
	}

	s.broadcast(projectID, "container.status", ev)
}

// broadcast marshals payload as a {type, data} frame and fans it out to
// browser clients watching projectID, if a broadcaster is wired.
func (s *Subscriber) broadcast(projectID, eventType string, payload any) {
	if s.broadcaster == nil {
		return
	}
	frame, err := json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: payload})
	if err != nil {
		return
	}
	s.broadcaster.BroadcastToProject(projectID, frame)
}

// handleEnvironmentStatus reflects hibernate/restore progress into the
// project_environments table.
func (s *Subscriber) handleEnvironmentStatus(data []byte) {
	log := logger.Log.With().Str("component", "events").Logger()

	var ev EnvironmentStatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal environment status event")
		return
	}

	log.Info().Str("project_id", ev.ProjectID).Str("status", ev.Status).
		Int("progress", ev.Progress).Msg("received environment status")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE project_environments SET status = $1, progress = $2, status_message = $3, updated_at = $4 WHERE project_id = $5`,
		ev.Status, ev.Progress, ev.Message, time.Now(), ev.ProjectID,
	)
	if err != nil {
		log.Error().Err(err).Str("project_id", ev.ProjectID).Msg("failed to update environment status")
		return
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		log.Warn().Str("project_id", ev.ProjectID).Msg("environment status event for unknown project environment")
		return
	}

	s.broadcast(ev.ProjectID, "environment.status", ev)
}

// handleDriverHeartbeat records that a substrate driver is alive. Heartbeats
// are tracked in the cache layer (internal/cache.AgentHeartbeatKey) rather
// than the metadata store, since they are a liveness signal, not durable
// state.
func (s *Subscriber) handleDriverHeartbeat(data []byte) {
	log := logger.Log.With().Str("component", "events").Logger()

	var ev DriverHeartbeatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal driver heartbeat")
		return
	}

	log.Debug().Str("driver_id", ev.DriverID).Str("substrate", ev.Substrate).
		Str("status", ev.Status).Msg("driver heartbeat")

	if s.cache == nil || !s.cache.IsEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, cache.AgentHeartbeatKey(ev.DriverID), ev, heartbeatTTL); err != nil {
		log.Warn().Err(err).Str("driver_id", ev.DriverID).Msg("failed to record driver heartbeat")
	}
}

// IsDriverStale reports whether driverID has not heartbeated within
// staleConnectionThreshold. A driver with no recorded heartbeat at all
// (never connected, or its cache entry expired) is considered stale.
func (s *Subscriber) IsDriverStale(ctx context.Context, driverID string) (bool, error) {
	if s.cache == nil || !s.cache.IsEnabled() {
		return true, nil
	}
	var ev DriverHeartbeatEvent
	if err := s.cache.Get(ctx, cache.AgentHeartbeatKey(driverID), &ev); err != nil {
		return true, nil
	}
	return time.Since(ev.Timestamp) > staleConnectionThreshold, nil
}
