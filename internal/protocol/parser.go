package protocol

import (
	"fmt"
	"time"

	"FlowPilot/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EtherType values the dispatcher cares about.
const (
	EtherTypeLLDP uint16 = 0x88cc
)

// ParseFrame decodes a raw Ethernet frame from a packet-in event into a
// FlowDescriptor. Non-IP frames still yield a descriptor with MAC-level
// fields so that learning and flooding keep working; an unparseable frame
// returns model.ErrMalformedPacket.
func ParseFrame(data []byte, switchID uint64, inPort uint32, ts time.Time) (*model.FlowDescriptor, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, fmt.Errorf("%w: no ethernet header in %d bytes", model.ErrMalformedPacket, len(data))
	}
	eth := ethLayer.(*layers.Ethernet)

	if ts.IsZero() {
		ts = time.Now()
	}

	fd := &model.FlowDescriptor{
		SwitchID:  switchID,
		InPort:    inPort,
		SrcMAC:    eth.SrcMAC,
		DstMAC:    eth.DstMAC,
		EtherType: uint16(eth.EthernetType),
		Length:    len(data),
		Timestamp: ts,
	}

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		fd.FiveTuple.SrcIP = ip.SrcIP
		fd.FiveTuple.DstIP = ip.DstIP
		fd.FiveTuple.Protocol = uint8(ip.Protocol)
		fd.TTL = ip.TTL
	} else {
		// Non-IP traffic (ARP and friends) is forwarded on MAC fields alone.
		return fd, nil
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		fd.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		fd.FiveTuple.DstPort = uint16(tcp.DstPort)
		fd.TCPFlags = tcpFlagBits(tcp)
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		fd.FiveTuple.SrcPort = uint16(udp.SrcPort)
		fd.FiveTuple.DstPort = uint16(udp.DstPort)
	}

	if app := packet.ApplicationLayer(); app != nil {
		fd.Payload = app.Payload()
	}

	return fd, nil
}

// IsLinkDiscovery reports whether the frame belongs to a link-layer
// discovery protocol. Those are dropped with no further action.
func IsLinkDiscovery(fd *model.FlowDescriptor) bool {
	return fd.EtherType == EtherTypeLLDP
}

// tcpFlagBits packs the individual gopacket flag booleans back into the
// wire-order bit field the feature extractor expects.
func tcpFlagBits(tcp *layers.TCP) uint8 {
	var bits uint8
	if tcp.FIN {
		bits |= 0x01
	}
	if tcp.SYN {
		bits |= 0x02
	}
	if tcp.RST {
		bits |= 0x04
	}
	if tcp.PSH {
		bits |= 0x08
	}
	if tcp.ACK {
		bits |= 0x10
	}
	if tcp.URG {
		bits |= 0x20
	}
	return bits
}
