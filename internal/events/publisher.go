package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tesslate/studio-orchestrator/internal/logger"
)

// Config holds NATS connection settings.
type Config struct {
	URL      string
	User     string
	Password string
}

// Publisher publishes intent events to substrate drivers over NATS. When
// URL is unset or the connection fails at startup, the publisher degrades
// to a disabled no-op rather than failing control-plane startup — substrate
// drivers on a single-node local-engine deployment may instead be driven
// in-process by internal/substrate/localengine without NATS at all.
type Publisher struct {
	conn    *nats.Conn
	enabled bool
}

// NewPublisher connects to NATS, or returns a disabled publisher if cfg.URL
// is empty or the connection cannot be established.
func NewPublisher(cfg Config) (*Publisher, error) {
	log := logger.Log.With().Str("component", "events").Logger()

	if cfg.URL == "" {
		log.Warn().Msg("NATS URL not configured, event publishing disabled")
		return &Publisher{enabled: false}, nil
	}

	opts := []nats.Option{
		nats.Name("studio-orchestrator"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.URL).Msg("failed to connect to nats, event publishing disabled")
		return &Publisher{enabled: false}, nil
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("connected to nats")
	return &Publisher{conn: conn, enabled: true}, nil
}

func (p *Publisher) IsEnabled() bool { return p.enabled }

func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Drain()
		p.conn.Close()
	}
	return nil
}

func (p *Publisher) publish(subject string, event any) error {
	if !p.enabled {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	return p.conn.Publish(subject, data)
}

// PublishContainerStart requests a substrate driver start a Container.
func (p *Publisher) PublishContainerStart(ctx context.Context, substrate string, ev ContainerStartEvent) error {
	return p.publish(SubjectWithSubstrate(SubjectContainerStart, substrate), ev)
}

// PublishContainerStop requests a substrate driver stop a Container.
func (p *Publisher) PublishContainerStop(ctx context.Context, substrate string, ev ContainerStopEvent) error {
	return p.publish(SubjectWithSubstrate(SubjectContainerStop, substrate), ev)
}

// PublishEnvironmentHibernate requests a substrate driver hibernate a
// Project's space.
func (p *Publisher) PublishEnvironmentHibernate(ctx context.Context, substrate string, ev EnvironmentHibernateEvent) error {
	return p.publish(SubjectWithSubstrate(SubjectEnvironmentHibernate, substrate), ev)
}

// PublishEnvironmentRestore requests a substrate driver restore a Project's
// space from an archive.
func (p *Publisher) PublishEnvironmentRestore(ctx context.Context, substrate string, ev EnvironmentRestoreEvent) error {
	return p.publish(SubjectWithSubstrate(SubjectEnvironmentRestore, substrate), ev)
}
