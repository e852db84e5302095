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

// Command type discriminators on the wire.
const (
	CommandFlowMod   = "flow_mod"
	CommandPacketOut = "packet_out"
)

// CommandEnvelope is the wire form of one outbound protocol command.
type CommandEnvelope struct {
	Type      string                  `json:"type"`
	FlowMod   *model.FlowModCommand   `json:"flow_mod,omitempty"`
	PacketOut *model.PacketOutCommand `json:"packet_out,omitempty"`
}

// CommandPublisher implements model.CommandSink over NATS. Commands for each
// switch go to "<prefix>.<dpid>" so per-switch ordering is preserved by the
// subject.
type CommandPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewCommandPublisher connects to the NATS server named in cfg.
func NewCommandPublisher(cfg config.NATSConfig) (*CommandPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &CommandPublisher{nc: nc, prefix: cfg.CommandSubjectPrefix}, nil
}

// SendFlowMod publishes a flow-table modification. Fire-and-forget.
func (p *CommandPublisher) SendFlowMod(_ context.Context, cmd *model.FlowModCommand) error {
	return p.publish(cmd.SwitchID, &CommandEnvelope{Type: CommandFlowMod, FlowMod: cmd})
}

// SendPacketOut publishes a packet-out. Fire-and-forget.
func (p *CommandPublisher) SendPacketOut(_ context.Context, cmd *model.PacketOutCommand) error {
	return p.publish(cmd.SwitchID, &CommandEnvelope{Type: CommandPacketOut, PacketOut: cmd})
}

func (p *CommandPublisher) publish(dpid uint64, env *CommandEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	subject := fmt.Sprintf("%s.%d", p.prefix, dpid)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *CommandPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Info("NATS command connection drained and closed")
	}
}
