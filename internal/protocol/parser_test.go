package protocol

import (
	"errors"
	"net"
	"testing"
	"time"

	"FlowPilot/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0xaa, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0xaa, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func buildTCPFrame(t *testing.T, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		PSH:     true,
		ACK:     true,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("Failed to serialize frame: %v", err)
	}
	return buf.Bytes()
}

func buildUDPFrame(t *testing.T, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("Failed to serialize frame: %v", err)
	}
	return buf.Bytes()
}

func TestParseTCPFrame(t *testing.T) {
	payload := []byte("GET / HTTP/1.1\r\n")
	data := buildTCPFrame(t, 49152, 80, payload)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fd, err := ParseFrame(data, 42, 3, ts)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if fd.SwitchID != 42 || fd.InPort != 3 {
		t.Errorf("Event context lost: switch %d port %d", fd.SwitchID, fd.InPort)
	}
	if fd.SrcMAC.String() != "aa:00:00:00:00:01" || fd.DstMAC.String() != "aa:00:00:00:00:02" {
		t.Errorf("Unexpected MACs: %s -> %s", fd.SrcMAC, fd.DstMAC)
	}
	if !fd.IsIP() {
		t.Fatal("TCP frame should parse as IP")
	}
	if fd.FiveTuple.SrcIP.String() != "10.0.0.1" || fd.FiveTuple.DstIP.String() != "10.0.0.2" {
		t.Errorf("Unexpected IPs: %s -> %s", fd.FiveTuple.SrcIP, fd.FiveTuple.DstIP)
	}
	if fd.FiveTuple.SrcPort != 49152 || fd.FiveTuple.DstPort != 80 || fd.FiveTuple.Protocol != 6 {
		t.Errorf("Unexpected 5-tuple: %+v", fd.FiveTuple)
	}
	if fd.TTL != 64 {
		t.Errorf("Expected TTL 64, got %d", fd.TTL)
	}
	// PSH|ACK
	if fd.TCPFlags != 0x18 {
		t.Errorf("Expected flags 0x18, got %#x", fd.TCPFlags)
	}
	if string(fd.Payload) != string(payload) {
		t.Errorf("Payload lost: %q", fd.Payload)
	}
	if fd.Length != len(data) {
		t.Errorf("Expected frame length %d, got %d", len(data), fd.Length)
	}
	if !fd.Timestamp.Equal(ts) {
		t.Errorf("Timestamp lost: %v", fd.Timestamp)
	}
}

func TestParseUDPFrame(t *testing.T) {
	data := buildUDPFrame(t, 49152, 53, []byte{0x12, 0x34})

	fd, err := ParseFrame(data, 1, 1, time.Now())
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if fd.FiveTuple.Protocol != 17 || fd.FiveTuple.DstPort != 53 {
		t.Errorf("Unexpected UDP 5-tuple: %+v", fd.FiveTuple)
	}
	if fd.TCPFlags != 0 {
		t.Errorf("UDP frame should carry no TCP flags, got %#x", fd.TCPFlags)
	}
}

func TestParseARPFrame(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		t.Fatalf("Failed to serialize ARP frame: %v", err)
	}

	fd, err := ParseFrame(buf.Bytes(), 1, 1, time.Now())
	if err != nil {
		t.Fatalf("Non-IP frames must still parse: %v", err)
	}
	if fd.IsIP() {
		t.Error("ARP frame should not carry a 5-tuple")
	}
	if fd.SrcMAC.String() != "aa:00:00:00:00:01" {
		t.Errorf("MAC-level fields must survive: %s", fd.SrcMAC)
	}
}

func TestParseMalformedFrame(t *testing.T) {
	_, err := ParseFrame([]byte{0x01, 0x02, 0x03}, 1, 1, time.Now())
	if !errors.Is(err, model.ErrMalformedPacket) {
		t.Fatalf("Expected ErrMalformedPacket, got %v", err)
	}

	_, err = ParseFrame(nil, 1, 1, time.Now())
	if !errors.Is(err, model.ErrMalformedPacket) {
		t.Fatalf("Expected ErrMalformedPacket for empty input, got %v", err)
	}
}

func TestLinkDiscoveryDetection(t *testing.T) {
	fd := &model.FlowDescriptor{EtherType: EtherTypeLLDP}
	if !IsLinkDiscovery(fd) {
		t.Error("LLDP ethertype should be detected as link discovery")
	}
	fd = &model.FlowDescriptor{EtherType: 0x0800}
	if IsLinkDiscovery(fd) {
		t.Error("IPv4 should not be detected as link discovery")
	}
}
