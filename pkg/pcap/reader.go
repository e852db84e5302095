// Package pcap replays captured traffic as raw frames for offline runs.
package pcap

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Frame is one captured link-layer frame with its capture timestamp.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Reader reads frames from a pcap file.
type Reader struct {
	handle *pcap.Handle
}

// NewReader opens the given capture file for offline reading.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadFrames sends every frame in the capture to the provided channel and
// closes the channel when done.
func (r *Reader) ReadFrames(out chan<- Frame) {
	defer close(out)

	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range source.Packets() {
		out <- Frame{
			Data:      packet.Data(),
			Timestamp: packet.Metadata().Timestamp,
		}
	}
}
