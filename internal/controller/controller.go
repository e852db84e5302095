// Package controller implements the flow-control engine: switch session
// lifecycle, packet-in dispatch, MAC learning, classification, QoS priority
// assignment, and flow installation.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FlowPilot/internal/config"
	"FlowPilot/internal/flowstats"
	"FlowPilot/internal/installer"
	"FlowPilot/internal/model"
	"FlowPilot/internal/protocol"
	"FlowPilot/internal/qos"
	"FlowPilot/internal/stats"

	log "github.com/sirupsen/logrus"
)

// Recorder receives one record per classification outcome; implementations
// must not block.
type Recorder interface {
	Record(*model.FlowRecord)
}

// Controller serves many switches from one process. Each session's events
// are handled serially by that session's own loop; different switches are
// processed fully in parallel. The only cross-session shared writes go
// through the stats collector and the flow statistics tracker, both of which
// are safe for concurrent use.
type Controller struct {
	classifier model.Classifier
	policy     *qos.Policy
	installer  *installer.Installer
	tracker    *flowstats.Tracker
	stats      *stats.Collector
	recorder   Recorder

	macExpiry       time.Duration
	queueSize       int
	perfLogInterval int

	mu       sync.RWMutex
	sessions map[uint64]*SwitchSession

	classifyCount    atomic.Uint64
	classifyLatSumUs atomic.Uint64
}

// New creates a controller from configuration. recorder may be nil when
// record export is disabled.
func New(cfg *config.Config, cls model.Classifier, sink model.CommandSink, collector *stats.Collector, recorder Recorder) (*Controller, error) {
	idle, err := cfg.FlowIdleTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid flow_idle_timeout: %w", err)
	}
	macExpiry, err := cfg.MacEntryExpiry()
	if err != nil {
		return nil, fmt.Errorf("invalid mac_table entry_expiry: %w", err)
	}

	return &Controller{
		classifier:      cls,
		policy:          qos.NewPolicy(cfg.Classifier.ConfidenceThreshold),
		installer:       installer.New(sink, idle),
		tracker:         flowstats.NewTracker(cfg.FlowStats.NumShards),
		stats:           collector,
		recorder:        recorder,
		macExpiry:       macExpiry,
		queueSize:       cfg.Controller.EventChannelSize,
		perfLogInterval: cfg.Controller.PerfLogInterval,
		sessions:        make(map[uint64]*SwitchSession),
	}, nil
}

// OnFeaturesNegotiated creates the session state for a switch and installs
// its table-miss entry. Idempotent per switch: re-negotiation replaces any
// prior session state.
func (c *Controller) OnFeaturesNegotiated(ctx context.Context, ev *model.FeaturesEvent) error {
	c.mu.Lock()
	if old, ok := c.sessions[ev.SwitchID]; ok {
		log.WithField("dpid", ev.SwitchID).Info("Re-negotiation, replacing existing session")
		delete(c.sessions, ev.SwitchID)
		c.mu.Unlock()
		old.close()
		c.mu.Lock()
	}
	sess := newSession(ev, c.macExpiry, c.queueSize)
	c.sessions[ev.SwitchID] = sess
	c.mu.Unlock()

	if err := c.installer.InstallTableMiss(ctx, ev.SwitchID); err != nil {
		// Without a table miss the switch never punts packets; the session
		// is useless, so do not leave it lingering in Connecting.
		c.mu.Lock()
		if c.sessions[ev.SwitchID] == sess {
			delete(c.sessions, ev.SwitchID)
		}
		c.mu.Unlock()
		return fmt.Errorf("switch %d: %w", ev.SwitchID, err)
	}

	sess.activate()
	sess.wg.Add(1)
	go c.runSession(sess)

	log.WithFields(log.Fields{
		"dpid":   ev.SwitchID,
		"tables": ev.NumTables,
	}).Info("Switch session active, table-miss installed")
	return nil
}

// OnPacketIn enqueues a packet-in event to its session. Events for unknown
// or non-active switches are rejected with ErrSessionNotReady.
func (c *Controller) OnPacketIn(ev *model.PacketInEvent) error {
	c.mu.RLock()
	sess, ok := c.sessions[ev.SwitchID]
	c.mu.RUnlock()
	if !ok {
		c.stats.SessionNotReady(ev.SwitchID)
		return fmt.Errorf("switch %d: %w", ev.SwitchID, model.ErrSessionNotReady)
	}
	if err := sess.enqueue(ev); err != nil {
		if errors.Is(err, model.ErrSessionNotReady) {
			c.stats.SessionNotReady(ev.SwitchID)
		}
		return err
	}
	return nil
}

// OnSessionClosed releases all session state for a switch. It waits for any
// handler already running for that session to finish first.
func (c *Controller) OnSessionClosed(ev *model.SessionClosedEvent) error {
	c.mu.Lock()
	sess, ok := c.sessions[ev.SwitchID]
	if ok {
		delete(c.sessions, ev.SwitchID)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("switch %d: %w", ev.SwitchID, model.ErrSessionNotReady)
	}
	sess.close()
	log.WithField("dpid", ev.SwitchID).Info("Switch session closed")
	return nil
}

// Session returns the live session for a switch, if any.
func (c *Controller) Session(dpid uint64) (*SwitchSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, ok := c.sessions[dpid]
	return sess, ok
}

// Stop tears down every session. Each close waits out its in-flight handler.
func (c *Controller) Stop() {
	c.mu.Lock()
	sessions := make([]*SwitchSession, 0, len(c.sessions))
	for dpid, sess := range c.sessions {
		sessions = append(sessions, sess)
		delete(c.sessions, dpid)
	}
	c.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
	log.Info("Controller stopped")
}

// runSession is the per-switch event loop: one packet-in handled to
// completion before the next for the same switch. Once the session closes,
// the queued backlog is discarded unhandled; the connection is gone and no
// command may be sent toward it.
func (c *Controller) runSession(sess *SwitchSession) {
	defer sess.wg.Done()
	discarded := 0
	for ev := range sess.events {
		if sess.State() == StateClosed {
			discarded++
			continue
		}
		c.handlePacketIn(sess, ev)
	}
	if discarded > 0 {
		log.WithFields(log.Fields{
			"dpid":      sess.ID,
			"discarded": discarded,
		}).Debug("Dropped queued events for closed session")
	}
}

// handlePacketIn is the steady-state path: parse, learn, classify, assign
// priority, install. Every failure past parsing degrades to flooding so the
// data plane stays connected.
func (c *Controller) handlePacketIn(sess *SwitchSession, ev *model.PacketInEvent) {
	start := time.Now()
	ctx := context.Background()
	c.stats.PacketIn(ev.SwitchID)

	fd, err := protocol.ParseFrame(ev.Data, ev.SwitchID, ev.InPort, ev.Timestamp)
	if err != nil {
		// No valid destination to flood toward.
		c.stats.Malformed(ev.SwitchID)
		log.WithError(err).WithField("dpid", ev.SwitchID).Warn("Dropping malformed packet")
		return
	}
	if protocol.IsLinkDiscovery(fd) {
		return
	}

	sess.macTable.Learn(fd.SrcMAC.String(), ev.InPort)

	// Every packet-in feeds the flow statistics, flood path included, so
	// the statistical classifier stages see the whole flow history.
	fd.Stats = c.tracker.Observe(fd.FlowKey(), fd.Length, fd.Timestamp)

	outPort, known := sess.macTable.Lookup(fd.DstMAC.String())
	if !known {
		// Flood this packet only; the next packet of the flow re-attempts
		// learning and installation.
		c.flood(ctx, sess, fd, ev)
		return
	}

	matchKey := c.installer.BuildMatch(fd).Key()
	if prev, installed := sess.hasFlow(matchKey); installed {
		// The rule idled out on the switch or is still in flight. Reissue
		// it at its original priority: an identical match and priority
		// overwrites rather than overlaps, so the data plane heals without
		// burning a fresh tie-break slot.
		rule, err := c.installer.ReissueFlow(ctx, fd, prev, outPort, ev.BufferID, ev.Data)
		if err != nil {
			log.WithError(err).WithField("dpid", ev.SwitchID).Warn("Flow reissue failed, flooding")
			c.flood(ctx, sess, fd, ev)
			return
		}
		sess.recordFlow(matchKey, rule)
		return
	}

	res, err := c.classifier.Classify(ctx, fd)
	c.stats.Classification(c.classifier.Kind(), err)
	if c.classifier.Kind() == model.ClassifierRule && err == nil {
		c.stats.DPI(res.Method == model.MethodDPI)
	}
	if err != nil {
		if errors.Is(err, model.ErrClassifierUnavailable) {
			log.WithField("dpid", ev.SwitchID).Debug("Classifier unavailable, flooding")
		} else {
			log.WithError(err).WithField("dpid", ev.SwitchID).Warn("Classification failed, flooding")
		}
		c.flood(ctx, sess, fd, ev)
		return
	}

	dec := c.policy.Assign(res)
	rule, err := c.installer.InstallFlow(ctx, fd, dec, outPort, ev.BufferID, ev.Data)
	if err != nil {
		log.WithError(err).WithField("dpid", ev.SwitchID).Warn("Flow install failed, flooding")
		c.flood(ctx, sess, fd, ev)
		return
	}
	sess.recordFlow(matchKey, rule)

	latency := time.Since(start)
	c.stats.FlowInstall(ev.SwitchID, latency)
	c.record(fd, res, dec, true, latency)
	c.logPerformance(latency)
}

// flood issues the conservative fallback action and accounts for it.
func (c *Controller) flood(ctx context.Context, sess *SwitchSession, fd *model.FlowDescriptor, ev *model.PacketInEvent) {
	if err := c.installer.FloodPacket(ctx, fd, ev.BufferID, ev.Data); err != nil {
		log.WithError(err).WithField("dpid", ev.SwitchID).Error("Flood packet-out failed")
		return
	}
	c.stats.Flood(ev.SwitchID)
}

func (c *Controller) record(fd *model.FlowDescriptor, res model.ClassificationResult, dec qos.Decision, installed bool, latency time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(&model.FlowRecord{
		Timestamp:   fd.Timestamp,
		SwitchID:    fd.SwitchID,
		SrcMAC:      fd.SrcMAC.String(),
		DstMAC:      fd.DstMAC.String(),
		TrafficType: dec.Traffic,
		Confidence:  res.Confidence,
		Kind:        res.Kind,
		Method:      res.Method,
		Priority:    dec.Priority,
		Installed:   installed,
		LatencyUs:   uint64(latency.Microseconds()),
	})
}

// logPerformance emits a periodic summary line with the running DPI success
// rate and average handling latency.
func (c *Controller) logPerformance(latency time.Duration) {
	if c.perfLogInterval <= 0 {
		return
	}
	c.classifyLatSumUs.Add(uint64(latency.Microseconds()))
	n := c.classifyCount.Add(1)
	if n%uint64(c.perfLogInterval) != 0 {
		return
	}
	attempts, hits := c.stats.DPIAttempts()
	fields := log.Fields{
		"classifications": n,
		"avg_latency_us":  c.classifyLatSumUs.Load() / n,
	}
	if attempts > 0 {
		fields["dpi_success_pct"] = float64(hits) / float64(attempts) * 100
	}
	log.WithFields(fields).Info("Classification performance")
}
