// Package installer builds match criteria and action lists and issues
// flow-table modification and packet-out commands to the switch transport.
package installer

import (
	"context"
	"fmt"
	"time"

	"FlowPilot/internal/model"
	"FlowPilot/internal/qos"

	log "github.com/sirupsen/logrus"
)

// Installer issues outbound commands for one controller instance. It is
// stateless across sessions; the per-switch installed-flow bookkeeping lives
// with the session that owns it.
//
// Installation is fire-and-forget: no acknowledgment is awaited and there is
// no retry. A lost flow-mod surfaces only as repeated packet-ins for the
// same flow. This is a known limitation of the design, carried deliberately.
type Installer struct {
	sink        model.CommandSink
	idleTimeout uint16
}

// New creates an installer over a command sink. idleTimeout lets the switch
// purge stale flows without controller involvement.
func New(sink model.CommandSink, idleTimeout time.Duration) *Installer {
	secs := int64(idleTimeout / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs > 0xffff {
		secs = 0xffff
	}
	return &Installer{
		sink:        sink,
		idleTimeout: uint16(secs),
	}
}

// BuildMatch builds the exact-match criteria for a descriptor: ingress port,
// MAC pair, and whatever part of the 5-tuple the packet carries.
func (i *Installer) BuildMatch(fd *model.FlowDescriptor) model.FlowMatch {
	m := model.FlowMatch{
		InPort: fd.InPort,
		SrcMAC: fd.SrcMAC.String(),
		DstMAC: fd.DstMAC.String(),
	}
	if fd.IsIP() {
		m.EtherType = fd.EtherType
		m.SrcIP = fd.FiveTuple.SrcIP.String()
		m.DstIP = fd.FiveTuple.DstIP.String()
		m.Protocol = fd.FiveTuple.Protocol
		m.SrcPort = fd.FiveTuple.SrcPort
		m.DstPort = fd.FiveTuple.DstPort
	}
	return m
}

// InstallTableMiss installs the lowest-priority catch-all rule forwarding
// unmatched packets to the controller, unbuffered. Installed once per
// feature negotiation; re-negotiation reissues it.
func (i *Installer) InstallTableMiss(ctx context.Context, switchID uint64) error {
	cmd := &model.FlowModCommand{
		SwitchID: switchID,
		BufferID: model.NoBuffer,
		Rule: model.FlowRule{
			Match:    model.FlowMatch{}, // match-all
			Priority: qos.TableMissPriority,
			Actions: []model.FlowAction{
				{Type: model.ActionOutput, Port: model.PortController},
			},
		},
	}
	if err := i.sink.SendFlowMod(ctx, cmd); err != nil {
		return fmt.Errorf("table-miss install failed: %w", err)
	}
	return nil
}

// InstallFlow installs the rule for a classified flow and forwards the
// triggering packet. When the switch buffered the packet, the flow-mod
// references the buffer and no separate packet-out is needed.
func (i *Installer) InstallFlow(ctx context.Context, fd *model.FlowDescriptor, dec qos.Decision, outPort uint32, bufferID uint32, data []byte) (model.FlowRule, error) {
	actions := append(dec.Actions(), model.FlowAction{Type: model.ActionOutput, Port: outPort})

	rule := model.FlowRule{
		Match:       i.BuildMatch(fd),
		Priority:    dec.Priority,
		Actions:     actions,
		IdleTimeout: i.idleTimeout,
	}

	cmd := &model.FlowModCommand{
		SwitchID: fd.SwitchID,
		Rule:     rule,
		BufferID: bufferID,
	}
	if err := i.sink.SendFlowMod(ctx, cmd); err != nil {
		return rule, fmt.Errorf("flow install failed: %w", err)
	}

	log.WithFields(log.Fields{
		"dpid":     fd.SwitchID,
		"traffic":  dec.Traffic,
		"class":    dec.Class.String(),
		"priority": dec.Priority,
		"out_port": outPort,
	}).Debug("Flow installed")

	if bufferID != model.NoBuffer {
		return rule, nil
	}
	return rule, i.sendPacket(ctx, fd, actions, bufferID, data)
}

// ReissueFlow re-sends a previously installed rule with its original
// priority, refreshing the output port in case the destination moved. An
// add with identical match and priority overwrites the existing entry, so
// reissuing never creates overlapping rules. The triggering packet is
// forwarded the same way InstallFlow does it.
func (i *Installer) ReissueFlow(ctx context.Context, fd *model.FlowDescriptor, prev model.FlowRule, outPort uint32, bufferID uint32, data []byte) (model.FlowRule, error) {
	actions := make([]model.FlowAction, len(prev.Actions))
	copy(actions, prev.Actions)
	for n := range actions {
		if actions[n].Type == model.ActionOutput {
			actions[n].Port = outPort
		}
	}

	rule := prev
	rule.Actions = actions

	cmd := &model.FlowModCommand{
		SwitchID: fd.SwitchID,
		Rule:     rule,
		BufferID: bufferID,
	}
	if err := i.sink.SendFlowMod(ctx, cmd); err != nil {
		return rule, fmt.Errorf("flow reissue failed: %w", err)
	}

	log.WithFields(log.Fields{
		"dpid":     fd.SwitchID,
		"priority": rule.Priority,
		"out_port": outPort,
	}).Debug("Flow reissued")

	if bufferID != model.NoBuffer {
		return rule, nil
	}
	return rule, i.sendPacket(ctx, fd, actions, bufferID, data)
}

// FloodPacket floods the triggering packet only. No rule is installed, so
// the next packet of the flow re-attempts learning and installation; there
// is no cached flood decision.
func (i *Installer) FloodPacket(ctx context.Context, fd *model.FlowDescriptor, bufferID uint32, data []byte) error {
	actions := []model.FlowAction{{Type: model.ActionOutput, Port: model.PortFlood}}
	return i.sendPacket(ctx, fd, actions, bufferID, data)
}

func (i *Installer) sendPacket(ctx context.Context, fd *model.FlowDescriptor, actions []model.FlowAction, bufferID uint32, data []byte) error {
	cmd := &model.PacketOutCommand{
		SwitchID: fd.SwitchID,
		BufferID: bufferID,
		InPort:   fd.InPort,
		Actions:  actions,
	}
	if bufferID == model.NoBuffer {
		cmd.Data = data
	}
	if err := i.sink.SendPacketOut(ctx, cmd); err != nil {
		return fmt.Errorf("packet-out failed: %w", err)
	}
	return nil
}
