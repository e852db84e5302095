// Package stats accumulates per-event counters for the flow-control engine
// and exposes them both as a plain name→value map and as Prometheus metrics.
package stats

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"FlowPilot/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// SwitchCounters are the per-switch aggregates, updated with atomics since
// sessions run in parallel.
type SwitchCounters struct {
	PacketIns    atomic.Uint64
	FlowInstalls atomic.Uint64
	Floods       atomic.Uint64
}

// Collector is the process-wide statistics collector. Created once, shared
// by every session; reset only on process restart.
type Collector struct {
	classificationAttempts  atomic.Uint64
	classificationSuccesses atomic.Uint64
	classifierFailures      atomic.Uint64
	dpiAttempts             atomic.Uint64
	dpiHits                 atomic.Uint64
	flowInstalls            atomic.Uint64
	floods                  atomic.Uint64
	malformedPackets        atomic.Uint64
	sessionsNotReady        atomic.Uint64
	packetIns               atomic.Uint64

	installLatencySumUs atomic.Uint64
	installLatencyCount atomic.Uint64

	mu       sync.RWMutex
	switches map[uint64]*SwitchCounters

	promPacketIns      *prometheus.CounterVec
	promClassification *prometheus.CounterVec
	promDPI            *prometheus.CounterVec
	promInstalls       *prometheus.CounterVec
	promFloods         *prometheus.CounterVec
	promInstallLatency prometheus.Histogram
}

// NewCollector creates a collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		switches: make(map[uint64]*SwitchCounters),
		promPacketIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpilot_packet_in_total",
			Help: "Packet-in events received, by switch.",
		}, []string{"dpid"}),
		promClassification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpilot_classification_total",
			Help: "Classification attempts by classifier kind and outcome.",
		}, []string{"kind", "outcome"}),
		promDPI: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpilot_dpi_total",
			Help: "Deep-packet-inspection attempts by outcome.",
		}, []string{"outcome"}),
		promInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpilot_flow_install_total",
			Help: "Flow rules installed, by switch.",
		}, []string{"dpid"}),
		promFloods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowpilot_flood_total",
			Help: "Packets flooded, by switch.",
		}, []string{"dpid"}),
		promInstallLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowpilot_install_latency_seconds",
			Help:    "Packet-in to flow-install latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(c.promPacketIns, c.promClassification, c.promDPI,
			c.promInstalls, c.promFloods, c.promInstallLatency)
	}
	return c
}

func (c *Collector) forSwitch(dpid uint64) *SwitchCounters {
	c.mu.RLock()
	sc, ok := c.switches[dpid]
	c.mu.RUnlock()
	if ok {
		return sc
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, ok = c.switches[dpid]; ok {
		return sc
	}
	sc = &SwitchCounters{}
	c.switches[dpid] = sc
	return sc
}

// PacketIn records one packet-in event for a switch.
func (c *Collector) PacketIn(dpid uint64) {
	c.packetIns.Add(1)
	c.forSwitch(dpid).PacketIns.Add(1)
	c.promPacketIns.WithLabelValues(dpidLabel(dpid)).Inc()
}

// Classification records one classification attempt and its outcome.
func (c *Collector) Classification(kind model.ClassifierKind, err error) {
	c.classificationAttempts.Add(1)
	outcome := "success"
	if err != nil {
		outcome = "failure"
		c.classifierFailures.Add(1)
	} else {
		c.classificationSuccesses.Add(1)
	}
	c.promClassification.WithLabelValues(string(kind), outcome).Inc()
}

// DPI records one deep-packet-inspection attempt.
func (c *Collector) DPI(hit bool) {
	c.dpiAttempts.Add(1)
	outcome := "miss"
	if hit {
		c.dpiHits.Add(1)
		outcome = "hit"
	}
	c.promDPI.WithLabelValues(outcome).Inc()
}

// FlowInstall records one flow rule installation and its latency from
// packet-in receipt.
func (c *Collector) FlowInstall(dpid uint64, latency time.Duration) {
	c.flowInstalls.Add(1)
	c.forSwitch(dpid).FlowInstalls.Add(1)
	c.installLatencySumUs.Add(uint64(latency.Microseconds()))
	c.installLatencyCount.Add(1)
	c.promInstalls.WithLabelValues(dpidLabel(dpid)).Inc()
	c.promInstallLatency.Observe(latency.Seconds())
}

// Flood records one flooded packet.
func (c *Collector) Flood(dpid uint64) {
	c.floods.Add(1)
	c.forSwitch(dpid).Floods.Add(1)
	c.promFloods.WithLabelValues(dpidLabel(dpid)).Inc()
}

// Malformed records one unparseable frame.
func (c *Collector) Malformed(dpid uint64) {
	c.malformedPackets.Add(1)
}

// SessionNotReady records one event rejected for a non-active session.
func (c *Collector) SessionNotReady(dpid uint64) {
	c.sessionsNotReady.Add(1)
}

// DPIAttempts returns the DPI attempt and hit counts.
func (c *Collector) DPIAttempts() (attempts, hits uint64) {
	return c.dpiAttempts.Load(), c.dpiHits.Load()
}

// ClassifierFailures returns the failed classification count.
func (c *Collector) ClassifierFailures() uint64 {
	return c.classifierFailures.Load()
}

// FlowInstalls returns the total installed-rule count.
func (c *Collector) FlowInstalls() uint64 {
	return c.flowInstalls.Load()
}

// Floods returns the total flooded-packet count.
func (c *Collector) Floods() uint64 {
	return c.floods.Load()
}

// Export returns a snapshot of all counters as a metric-name→value map for
// the polling exporter.
func (c *Collector) Export() map[string]float64 {
	out := map[string]float64{
		"packet_ins":               float64(c.packetIns.Load()),
		"classification_attempts":  float64(c.classificationAttempts.Load()),
		"classification_successes": float64(c.classificationSuccesses.Load()),
		"classifier_failures":      float64(c.classifierFailures.Load()),
		"dpi_attempts":             float64(c.dpiAttempts.Load()),
		"dpi_hits":                 float64(c.dpiHits.Load()),
		"flow_installs":            float64(c.flowInstalls.Load()),
		"floods":                   float64(c.floods.Load()),
		"malformed_packets":        float64(c.malformedPackets.Load()),
		"sessions_not_ready":       float64(c.sessionsNotReady.Load()),
	}
	if n := c.installLatencyCount.Load(); n > 0 {
		out["install_latency_avg_us"] = float64(c.installLatencySumUs.Load()) / float64(n)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for dpid, sc := range c.switches {
		prefix := "switch_" + dpidLabel(dpid) + "_"
		out[prefix+"packet_ins"] = float64(sc.PacketIns.Load())
		out[prefix+"flow_installs"] = float64(sc.FlowInstalls.Load())
		out[prefix+"floods"] = float64(sc.Floods.Load())
	}
	return out
}

func dpidLabel(dpid uint64) string {
	return strconv.FormatUint(dpid, 10)
}
