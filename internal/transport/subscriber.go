// Package transport adapts the switch-facing protocol boundary onto NATS
// subjects: inbound session and packet-in events are consumed from one
// subject, outbound flow-mod and packet-out commands are published per
// switch.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"FlowPilot/internal/config"
	"FlowPilot/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Event type discriminators on the wire.
const (
	EventFeatures      = "features"
	EventPacketIn      = "packet_in"
	EventSessionClosed = "session_closed"
)

// Envelope is the wire form of one inbound protocol event.
type Envelope struct {
	Type     string                    `json:"type"`
	Features *model.FeaturesEvent      `json:"features,omitempty"`
	PacketIn *model.PacketInEvent      `json:"packet_in,omitempty"`
	Closed   *model.SessionClosedEvent `json:"session_closed,omitempty"`
}

// EventHandler receives decoded protocol events.
type EventHandler interface {
	OnFeaturesNegotiated(ctx context.Context, ev *model.FeaturesEvent) error
	OnPacketIn(ev *model.PacketInEvent) error
	OnSessionClosed(ev *model.SessionClosedEvent) error
}

// Subscriber consumes protocol events from NATS and feeds them to a handler.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the NATS server named in cfg.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.WithField("url", cfg.URL).Info("Connected to NATS server")
	return &Subscriber{nc: nc, subject: cfg.EventSubject}, nil
}

// Start subscribes to the event subject. NATS delivers messages for one
// subscription serially, which preserves per-switch event ordering into the
// session queues.
func (s *Subscriber) Start(handler EventHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.WithError(err).Warn("Dropping undecodable event")
			return
		}
		if err := dispatch(handler, &env); err != nil {
			log.WithError(err).WithField("type", env.Type).Debug("Event rejected")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", s.subject, err)
	}
	s.sub = sub
	log.WithField("subject", s.subject).Info("Subscribed to switch events")
	return nil
}

func dispatch(handler EventHandler, env *Envelope) error {
	switch env.Type {
	case EventFeatures:
		if env.Features == nil {
			return fmt.Errorf("features event missing body")
		}
		return handler.OnFeaturesNegotiated(context.Background(), env.Features)
	case EventPacketIn:
		if env.PacketIn == nil {
			return fmt.Errorf("packet_in event missing body")
		}
		return handler.OnPacketIn(env.PacketIn)
	case EventSessionClosed:
		if env.Closed == nil {
			return fmt.Errorf("session_closed event missing body")
		}
		return handler.OnSessionClosed(env.Closed)
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Info("NATS event connection closed")
	}
}
