package main

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"sync/atomic"

	"FlowPilot/internal/classifier"
	_ "FlowPilot/internal/classifier/mlmodel"
	_ "FlowPilot/internal/classifier/rule"
	"FlowPilot/internal/config"
	"FlowPilot/internal/controller"
	"FlowPilot/internal/model"
	"FlowPilot/internal/stats"
	"FlowPilot/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// replaySwitchID is the datapath id of the single synthesized switch.
const replaySwitchID = 1

// replayPorts is how many switch ports the synthesized topology has. Frames
// are assigned an ingress port by hashing their source MAC, so each host
// stays on a stable port and MAC learning behaves as on a real switch.
const replayPorts = 16

// printSink logs every outbound command instead of sending it anywhere.
type printSink struct {
	flowMods   atomic.Uint64
	packetOuts atomic.Uint64
}

func (s *printSink) SendFlowMod(_ context.Context, cmd *model.FlowModCommand) error {
	s.flowMods.Add(1)
	log.WithFields(log.Fields{
		"dpid":     cmd.SwitchID,
		"priority": cmd.Rule.Priority,
		"match":    cmd.Rule.Match.Key(),
	}).Debug("flow-mod")
	return nil
}

func (s *printSink) SendPacketOut(_ context.Context, cmd *model.PacketOutCommand) error {
	s.packetOuts.Add(1)
	return nil
}

func ingressPort(data []byte) uint32 {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return 1
	}
	h := fnv.New32a()
	h.Write(eth.SrcMAC)
	return h.Sum32()%replayPorts + 1
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: fp-replay [-config path] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Build the engine with a logging sink instead of a live transport
	collector := stats.NewCollector(prometheus.NewRegistry())
	cls, err := classifier.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}
	sink := &printSink{}
	ctrl, err := controller.New(cfg, cls, sink, collector, nil)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	// 3. Synthesize one switch session
	if err := ctrl.OnFeaturesNegotiated(context.Background(), &model.FeaturesEvent{
		SwitchID:  replaySwitchID,
		NumTables: 1,
	}); err != nil {
		log.Fatalf("Failed to open replay session: %v", err)
	}

	// 4. Replay the capture as packet-in events
	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Infof("Replaying packets from '%s'...", pcapFilePath)

	frames := make(chan pcap.Frame, 256)
	go reader.ReadFrames(frames)

	var fed, rejected uint64
	for frame := range frames {
		ev := &model.PacketInEvent{
			SwitchID:  replaySwitchID,
			BufferID:  model.NoBuffer,
			InPort:    ingressPort(frame.Data),
			Data:      frame.Data,
			Timestamp: frame.Timestamp,
		}
		if err := ctrl.OnPacketIn(ev); err != nil {
			rejected++
			continue
		}
		fed++
	}

	// 5. Drain the session queue, then print the outcome
	ctrl.Stop()

	fmt.Printf("\nReplay finished: %d packets fed, %d rejected\n", fed, rejected)
	fmt.Printf("Flow-mods sent: %d, packet-outs sent: %d\n", sink.flowMods.Load(), sink.packetOuts.Load())
	for name, value := range collector.Export() {
		fmt.Printf("  %-40s %v\n", name, value)
	}
}
