package model

import (
	"fmt"
	"net"
	"time"
)

// TrafficType is the label a classifier assigns to a flow.
type TrafficType string

const (
	TrafficDNS          TrafficType = "dns"
	TrafficVoIP         TrafficType = "voip"
	TrafficVideo        TrafficType = "video-streaming"
	TrafficChat         TrafficType = "chat"
	TrafficICMP         TrafficType = "icmp"
	TrafficWeb          TrafficType = "web"
	TrafficEmail        TrafficType = "email"
	TrafficSSH          TrafficType = "ssh"
	TrafficGaming       TrafficType = "gaming"
	TrafficFileTransfer TrafficType = "file-transfer"
	TrafficBulk         TrafficType = "bulk"
	TrafficTCPGeneric   TrafficType = "tcp-generic"
	TrafficUDPGeneric   TrafficType = "udp-generic"
	TrafficUnknown      TrafficType = "unknown"
)

// ClassifierKind selects which classifier implementation is in use.
type ClassifierKind string

const (
	ClassifierRule  ClassifierKind = "rule"
	ClassifierModel ClassifierKind = "model"
)

// ClassificationResult is the immutable outcome of classifying one FlowDescriptor.
type ClassificationResult struct {
	Type       TrafficType
	Confidence float64
	Kind       ClassifierKind
	// Method records which stage produced the result. Used for logging,
	// DPI accounting, and export.
	Method string
}

// Stage names reported in ClassificationResult.Method.
const (
	MethodDPI         = "dpi"
	MethodPort        = "port"
	MethodStatistical = "statistical"
	MethodProtocol    = "protocol"
	MethodModel       = "model"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// FlowStats holds the running flow-level statistics for a (srcMAC, dstMAC)
// pair. All values are computed without payload access.
type FlowStats struct {
	PacketCount     uint64
	ByteCount       uint64
	Duration        time.Duration
	AvgPacketSize   float64
	StdPacketSize   float64
	AvgInterArrival float64 // seconds
	StdInterArrival float64 // seconds
	PacketRate      float64 // packets per second
	ByteRate        float64 // bytes per second
}

// FlowDescriptor is a read-only view of a single packet-in event, built once
// per event and discarded after the classification decision.
type FlowDescriptor struct {
	SwitchID  uint64
	InPort    uint32
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	EtherType uint16
	FiveTuple FiveTuple
	TCPFlags  uint8
	TTL       uint8
	Length    int
	Timestamp time.Time

	// Payload is the best-effort application payload. Only the rule-based
	// classifier looks at it; it is empty for encrypted or non-TCP/UDP traffic.
	Payload []byte

	// Stats is the running statistics for this flow, nil until tracked.
	Stats *FlowStats
}

// FlowKey returns the key under which running statistics for this flow are
// tracked. Flow state is keyed by the MAC pair.
func (fd *FlowDescriptor) FlowKey() string {
	return fd.SrcMAC.String() + "-" + fd.DstMAC.String()
}

// IsIP reports whether the descriptor carries an IP 5-tuple.
func (fd *FlowDescriptor) IsIP() bool {
	return fd.FiveTuple.SrcIP != nil
}

// Reserved OpenFlow port numbers, as used in outbound commands.
const (
	PortFlood      uint32 = 0xfffffffb
	PortController uint32 = 0xfffffffd
	NoBuffer       uint32 = 0xffffffff
)

// FlowMatch is the match half of a flow rule. String representations keep the
// commands JSON-friendly on the transport.
type FlowMatch struct {
	InPort    uint32 `json:"in_port,omitempty"`
	SrcMAC    string `json:"src_mac,omitempty"`
	DstMAC    string `json:"dst_mac,omitempty"`
	EtherType uint16 `json:"eth_type,omitempty"`
	SrcIP     string `json:"src_ip,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	Protocol  uint8  `json:"protocol,omitempty"`
	SrcPort   uint16 `json:"src_port,omitempty"`
	DstPort   uint16 `json:"dst_port,omitempty"`
}

// Key returns a canonical fingerprint for the match, used for duplicate
// detection within one switch.
func (m FlowMatch) Key() string {
	return fmt.Sprintf("%d|%s|%s|%04x|%s|%s|%d|%d|%d",
		m.InPort, m.SrcMAC, m.DstMAC, m.EtherType,
		m.SrcIP, m.DstIP, m.Protocol, m.SrcPort, m.DstPort)
}

// ActionType enumerates the supported flow actions.
type ActionType string

const (
	ActionOutput   ActionType = "output"
	ActionSetQueue ActionType = "set_queue"
)

// FlowAction is a single action in a rule's action list.
type FlowAction struct {
	Type    ActionType `json:"type"`
	Port    uint32     `json:"port,omitempty"`
	QueueID uint32     `json:"queue_id,omitempty"`
}

// FlowRule is a (match, priority, actions) entry owned by the installing
// session. Timeouts are enforced by the switch, not tracked here.
type FlowRule struct {
	Match       FlowMatch    `json:"match"`
	Priority    uint16       `json:"priority"`
	Actions     []FlowAction `json:"actions"`
	IdleTimeout uint16       `json:"idle_timeout,omitempty"`
	HardTimeout uint16       `json:"hard_timeout,omitempty"`
}
