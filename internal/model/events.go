package model

import "time"

// FeaturesEvent is delivered when feature negotiation with a switch
// completes. It creates (or replaces) the session for SwitchID.
type FeaturesEvent struct {
	SwitchID     uint64 `json:"switch_id"`
	NumTables    uint8  `json:"num_tables"`
	Capabilities uint32 `json:"capabilities"`
}

// PacketInEvent is delivered when a switch has no matching flow-table entry
// for an arriving packet. Data holds the raw Ethernet frame.
type PacketInEvent struct {
	SwitchID  uint64    `json:"switch_id"`
	BufferID  uint32    `json:"buffer_id"`
	InPort    uint32    `json:"in_port"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionClosedEvent is delivered when the transport connection to a switch
// closes. All session state for SwitchID is released.
type SessionClosedEvent struct {
	SwitchID uint64 `json:"switch_id"`
}
