package model

import (
	"context"
	"time"
)

// FlowModCommand is an outbound flow-table modification for one switch.
type FlowModCommand struct {
	SwitchID uint64   `json:"switch_id"`
	Rule     FlowRule `json:"rule"`
	BufferID uint32   `json:"buffer_id"`
	Cookie   uint64   `json:"cookie,omitempty"`
}

// PacketOutCommand tells a switch to emit one packet. If the switch buffered
// the packet, BufferID references it and Data stays empty; otherwise Data
// carries the raw frame.
type PacketOutCommand struct {
	SwitchID uint64       `json:"switch_id"`
	BufferID uint32       `json:"buffer_id"`
	InPort   uint32       `json:"in_port"`
	Actions  []FlowAction `json:"actions"`
	Data     []byte       `json:"data,omitempty"`
}

// CommandSink carries outbound protocol commands to the switch transport.
// Sends are fire-and-forget: no acknowledgment is awaited, and failures are
// only observable indirectly through repeated packet-ins.
type CommandSink interface {
	SendFlowMod(ctx context.Context, cmd *FlowModCommand) error
	SendPacketOut(ctx context.Context, cmd *PacketOutCommand) error
}

// FlowRecord is one exported classification/installation outcome, consumed
// by the persistent writer and the query API.
type FlowRecord struct {
	Timestamp   time.Time
	SwitchID    uint64
	SrcMAC      string
	DstMAC      string
	TrafficType TrafficType
	Confidence  float64
	Kind        ClassifierKind
	Method      string
	Priority    uint16
	Installed   bool
	LatencyUs   uint64
}

// RecordWriter persists flow records. Implementations batch internally.
type RecordWriter interface {
	Write(ctx context.Context, records []*FlowRecord) error
	Close() error
}
