package installer

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"FlowPilot/internal/model"
	"FlowPilot/internal/qos"
)

// captureSink records every outbound command for inspection.
type captureSink struct {
	flowMods   []*model.FlowModCommand
	packetOuts []*model.PacketOutCommand
	failMods   bool
}

func (s *captureSink) SendFlowMod(_ context.Context, cmd *model.FlowModCommand) error {
	if s.failMods {
		return errors.New("transport down")
	}
	s.flowMods = append(s.flowMods, cmd)
	return nil
}

func (s *captureSink) SendPacketOut(_ context.Context, cmd *model.PacketOutCommand) error {
	s.packetOuts = append(s.packetOuts, cmd)
	return nil
}

func descriptor() *model.FlowDescriptor {
	return &model.FlowDescriptor{
		SwitchID:  42,
		InPort:    3,
		SrcMAC:    net.HardwareAddr{0xaa, 0, 0, 0, 0, 1},
		DstMAC:    net.HardwareAddr{0xaa, 0, 0, 0, 0, 2},
		EtherType: 0x0800,
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP("10.0.0.1"),
			DstIP:    net.ParseIP("10.0.0.2"),
			SrcPort:  49152,
			DstPort:  443,
			Protocol: 6,
		},
		Length: 512,
	}
}

func decision() qos.Decision {
	return qos.Decision{
		Class:    qos.ClassMedium,
		Traffic:  model.TrafficWeb,
		Priority: 2400,
		QueueID:  1,
	}
}

func TestInstallTableMiss(t *testing.T) {
	sink := &captureSink{}
	inst := New(sink, 30*time.Second)

	if err := inst.InstallTableMiss(context.Background(), 42); err != nil {
		t.Fatalf("InstallTableMiss failed: %v", err)
	}
	if len(sink.flowMods) != 1 {
		t.Fatalf("Expected 1 flow-mod, got %d", len(sink.flowMods))
	}

	cmd := sink.flowMods[0]
	if cmd.SwitchID != 42 {
		t.Errorf("Expected switch 42, got %d", cmd.SwitchID)
	}
	if cmd.Rule.Priority != qos.TableMissPriority {
		t.Errorf("Table miss must sit at priority %d, got %d", qos.TableMissPriority, cmd.Rule.Priority)
	}
	if cmd.Rule.Match != (model.FlowMatch{}) {
		t.Errorf("Table miss must match everything, got %+v", cmd.Rule.Match)
	}
	if cmd.BufferID != model.NoBuffer {
		t.Errorf("Table miss must not reference a buffer, got %#x", cmd.BufferID)
	}
	if len(cmd.Rule.Actions) != 1 || cmd.Rule.Actions[0].Port != model.PortController {
		t.Errorf("Table miss must output to the controller, got %+v", cmd.Rule.Actions)
	}
	if cmd.Rule.IdleTimeout != 0 {
		t.Errorf("Table miss must never idle out, got %d", cmd.Rule.IdleTimeout)
	}
}

func TestBuildMatch(t *testing.T) {
	inst := New(&captureSink{}, 30*time.Second)

	m := inst.BuildMatch(descriptor())
	if m.InPort != 3 || m.SrcMAC != "aa:00:00:00:00:01" || m.DstMAC != "aa:00:00:00:00:02" {
		t.Errorf("Unexpected L2 match: %+v", m)
	}
	if m.SrcIP != "10.0.0.1" || m.DstIP != "10.0.0.2" || m.Protocol != 6 || m.DstPort != 443 {
		t.Errorf("Unexpected L3/L4 match: %+v", m)
	}

	// Non-IP traffic matches on L2 only.
	fd := descriptor()
	fd.FiveTuple = model.FiveTuple{}
	m = inst.BuildMatch(fd)
	if m.SrcIP != "" || m.Protocol != 0 {
		t.Errorf("Non-IP match should carry no L3 fields: %+v", m)
	}
}

func TestInstallFlowWithBufferedPacket(t *testing.T) {
	sink := &captureSink{}
	inst := New(sink, 30*time.Second)

	// The switch holds the packet; the flow-mod's buffer reference handles
	// forwarding, so no separate packet-out may follow.
	_, err := inst.InstallFlow(context.Background(), descriptor(), decision(), 7, 0x1234, nil)
	if err != nil {
		t.Fatalf("InstallFlow failed: %v", err)
	}
	if len(sink.flowMods) != 1 {
		t.Fatalf("Expected 1 flow-mod, got %d", len(sink.flowMods))
	}
	if sink.flowMods[0].BufferID != 0x1234 {
		t.Errorf("Flow-mod should reference buffer 0x1234, got %#x", sink.flowMods[0].BufferID)
	}
	if len(sink.packetOuts) != 0 {
		t.Errorf("No packet-out expected for a buffered packet, got %d", len(sink.packetOuts))
	}
}

func TestInstallFlowWithUnbufferedPacket(t *testing.T) {
	sink := &captureSink{}
	inst := New(sink, 30*time.Second)
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	rule, err := inst.InstallFlow(context.Background(), descriptor(), decision(), 7, model.NoBuffer, data)
	if err != nil {
		t.Fatalf("InstallFlow failed: %v", err)
	}

	if rule.Priority != 2400 {
		t.Errorf("Expected rule priority 2400, got %d", rule.Priority)
	}
	if rule.IdleTimeout != 30 {
		t.Errorf("Expected 30s idle timeout, got %d", rule.IdleTimeout)
	}

	// Actions: queue assignment first, then the resolved output port.
	last := rule.Actions[len(rule.Actions)-1]
	if last.Type != model.ActionOutput || last.Port != 7 {
		t.Errorf("Final action should output to port 7, got %+v", last)
	}
	if rule.Actions[0].Type != model.ActionSetQueue || rule.Actions[0].QueueID != 1 {
		t.Errorf("First action should set queue 1, got %+v", rule.Actions[0])
	}

	// Unbuffered: the raw frame rides in a separate packet-out.
	if len(sink.packetOuts) != 1 {
		t.Fatalf("Expected 1 packet-out, got %d", len(sink.packetOuts))
	}
	po := sink.packetOuts[0]
	if po.BufferID != model.NoBuffer {
		t.Errorf("Packet-out should carry no buffer id, got %#x", po.BufferID)
	}
	if string(po.Data) != string(data) {
		t.Errorf("Packet-out should carry the raw frame")
	}
	if po.InPort != 3 {
		t.Errorf("Packet-out should name the ingress port 3, got %d", po.InPort)
	}
}

func TestReissueFlowKeepsPriority(t *testing.T) {
	sink := &captureSink{}
	inst := New(sink, 30*time.Second)

	prev, err := inst.InstallFlow(context.Background(), descriptor(), decision(), 7, model.NoBuffer, nil)
	if err != nil {
		t.Fatalf("InstallFlow failed: %v", err)
	}

	// The rule idled out on the switch; reissuing it must reuse the exact
	// priority so the add overwrites instead of overlapping, while the
	// output port follows the current MAC table.
	rule, err := inst.ReissueFlow(context.Background(), descriptor(), prev, 9, model.NoBuffer, []byte{1})
	if err != nil {
		t.Fatalf("ReissueFlow failed: %v", err)
	}

	if rule.Priority != prev.Priority {
		t.Errorf("Reissued priority %d differs from original %d", rule.Priority, prev.Priority)
	}
	if rule.Match != prev.Match {
		t.Errorf("Reissued match differs: %+v vs %+v", rule.Match, prev.Match)
	}
	last := rule.Actions[len(rule.Actions)-1]
	if last.Type != model.ActionOutput || last.Port != 9 {
		t.Errorf("Reissue should refresh the output port to 9, got %+v", last)
	}

	// The original rule's action list must not be mutated in place.
	if prev.Actions[len(prev.Actions)-1].Port != 7 {
		t.Error("ReissueFlow mutated the stored rule's actions")
	}

	if len(sink.flowMods) != 2 {
		t.Fatalf("Expected 2 flow-mods, got %d", len(sink.flowMods))
	}
	// Unbuffered: the packet still goes out.
	if len(sink.packetOuts) != 2 {
		t.Errorf("Expected a packet-out per unbuffered install, got %d", len(sink.packetOuts))
	}
}

func TestFloodPacket(t *testing.T) {
	sink := &captureSink{}
	inst := New(sink, 30*time.Second)

	if err := inst.FloodPacket(context.Background(), descriptor(), model.NoBuffer, []byte{1, 2, 3}); err != nil {
		t.Fatalf("FloodPacket failed: %v", err)
	}
	if len(sink.flowMods) != 0 {
		t.Errorf("Flooding must not install a rule, got %d flow-mods", len(sink.flowMods))
	}
	if len(sink.packetOuts) != 1 {
		t.Fatalf("Expected 1 packet-out, got %d", len(sink.packetOuts))
	}
	actions := sink.packetOuts[0].Actions
	if len(actions) != 1 || actions[0].Port != model.PortFlood {
		t.Errorf("Flood should output to the flood port, got %+v", actions)
	}
}

func TestBufferedFloodOmitsData(t *testing.T) {
	sink := &captureSink{}
	inst := New(sink, 30*time.Second)

	if err := inst.FloodPacket(context.Background(), descriptor(), 0x42, []byte{1, 2, 3}); err != nil {
		t.Fatalf("FloodPacket failed: %v", err)
	}
	po := sink.packetOuts[0]
	if po.BufferID != 0x42 {
		t.Errorf("Expected buffer 0x42, got %#x", po.BufferID)
	}
	if po.Data != nil {
		t.Error("A buffered packet-out must not duplicate the frame data")
	}
}

func TestInstallFlowSinkFailure(t *testing.T) {
	sink := &captureSink{failMods: true}
	inst := New(sink, 30*time.Second)

	_, err := inst.InstallFlow(context.Background(), descriptor(), decision(), 7, model.NoBuffer, nil)
	if err == nil {
		t.Fatal("Expected an error when the sink rejects the flow-mod")
	}
	if len(sink.packetOuts) != 0 {
		t.Errorf("No packet-out should follow a failed install, got %d", len(sink.packetOuts))
	}
}

func TestIdleTimeoutClamping(t *testing.T) {
	inst := New(&captureSink{}, 100000*time.Second)
	if inst.idleTimeout != 0xffff {
		t.Errorf("Expected idle timeout clamped to 65535, got %d", inst.idleTimeout)
	}

	inst = New(&captureSink{}, 0)
	if inst.idleTimeout != 0 {
		t.Errorf("Expected zero idle timeout preserved, got %d", inst.idleTimeout)
	}
}
