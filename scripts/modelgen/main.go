// modelgen writes a nearest-centroid model artifact usable by the
// model-based classifier. The centroids below are handcrafted from typical
// per-class traffic profiles; a real deployment replaces this artifact with
// one fitted offline against captured flows.
package main

import (
	"encoding/gob"
	"flag"
	"log"
	"os"
	"sort"

	"FlowPilot/internal/classifier/mlmodel"
)

// Per-feature divisors, matching mlmodel.FeatureNames order.
var scale = []float64{
	1500,  // packet_length
	255,   // ip_proto
	255,   // ip_ttl
	65535, // src_port
	65535, // dst_port
	63,    // tcp_flags
	1, 1, 1, 1, 1, 1, // individual flag bits
	60,      // flow_duration (s)
	1000,    // flow_packet_count
	1500000, // flow_byte_count
	1,       // avg_inter_arrival (s)
	1,       // std_inter_arrival (s)
	1500,    // avg_packet_size
	750,     // std_packet_size
	1000,    // packet_rate (pps)
	1500000, // byte_rate (Bps)
}

// profiles holds raw (unscaled) centroids per label.
var profiles = map[string][]float64{
	"DNS": {
		80, 17, 64, 40000, 53, 0, 0, 0, 0, 0, 0, 0,
		0.05, 2, 160, 0.02, 0.01, 80, 10, 40, 3200,
	},
	"Browsing": {
		900, 6, 64, 45000, 443, 0x18, 0, 0, 0, 1, 1, 0,
		5, 40, 36000, 0.1, 0.2, 900, 400, 8, 7200,
	},
	"Video-Streaming": {
		1400, 6, 64, 50000, 443, 0x10, 0, 0, 0, 0, 1, 0,
		30, 800, 1120000, 0.03, 0.02, 1400, 100, 27, 37000,
	},
	"VOIP": {
		200, 17, 64, 20000, 20000, 0, 0, 0, 0, 0, 0, 0,
		20, 1000, 200000, 0.02, 0.005, 200, 20, 50, 10000,
	},
	"Chat": {
		120, 6, 64, 48000, 443, 0x18, 0, 0, 0, 1, 1, 0,
		60, 30, 3600, 2, 3, 120, 40, 0.5, 60,
	},
	"File-Transfer": {
		1450, 6, 64, 52000, 21, 0x10, 0, 0, 0, 0, 1, 0,
		15, 5000, 7250000, 0.003, 0.002, 1450, 50, 330, 480000,
	},
	"SSH": {
		150, 6, 64, 47000, 22, 0x18, 0, 0, 0, 1, 1, 0,
		120, 200, 30000, 0.6, 1.5, 150, 80, 1.6, 250,
	},
	"Email": {
		600, 6, 64, 46000, 587, 0x18, 0, 0, 0, 1, 1, 0,
		3, 20, 12000, 0.15, 0.2, 600, 300, 6, 4000,
	},
	"Gaming": {
		90, 17, 64, 27015, 27015, 0, 0, 0, 0, 0, 0, 0,
		60, 3000, 270000, 0.02, 0.003, 90, 15, 50, 4500,
	},
	"ICMP": {
		64, 1, 64, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		5, 5, 320, 1, 0.01, 64, 0, 1, 64,
	},
}

func main() {
	outputPath := flag.String("o", "models/traffic_classifier.gob", "Output path for the model artifact")
	flag.Parse()

	if len(scale) != mlmodel.NumFeatures {
		log.Fatalf("scale has %d entries, feature vector has %d", len(scale), mlmodel.NumFeatures)
	}

	labels := make([]string, 0, len(profiles))
	for label := range profiles {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	m := &mlmodel.CentroidModel{Scale: scale}
	for _, label := range labels {
		raw := profiles[label]
		if len(raw) != mlmodel.NumFeatures {
			log.Fatalf("profile %q has %d features, want %d", label, len(raw), mlmodel.NumFeatures)
		}
		scaled := make([]float64, len(raw))
		for i, v := range raw {
			if scale[i] != 0 {
				scaled[i] = v / scale[i]
			} else {
				scaled[i] = v
			}
		}
		m.Labels = append(m.Labels, label)
		m.Centroids = append(m.Centroids, scaled)
	}

	f, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(m); err != nil {
		log.Fatalf("Failed to encode model: %v", err)
	}
	log.Printf("Wrote %d centroids to %s", len(m.Labels), *outputPath)
}
