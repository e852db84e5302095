package controller

import (
	"fmt"
	"sync"
	"time"

	"FlowPilot/internal/mactable"
	"FlowPilot/internal/model"
)

// SessionState tracks the lifecycle of one switch connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "invalid"
}

// SwitchSession owns all per-switch mutable state: the MAC learning table
// and the installed-flow set. Exactly one session exists per connected
// switch. The flows map is written only by the session's event loop but may
// be read from outside it, so access goes through the session mutex.
type SwitchSession struct {
	ID           uint64
	Capabilities uint32
	NumTables    uint8

	macTable *mactable.Table

	mu     sync.Mutex
	state  SessionState
	flows  map[string]model.FlowRule
	events chan *model.PacketInEvent
	wg     sync.WaitGroup
}

func newSession(ev *model.FeaturesEvent, macExpiry time.Duration, queueSize int) *SwitchSession {
	return &SwitchSession{
		ID:           ev.SwitchID,
		Capabilities: ev.Capabilities,
		NumTables:    ev.NumTables,
		macTable:     mactable.New(macExpiry),
		flows:        make(map[string]model.FlowRule),
		state:        StateConnecting,
		events:       make(chan *model.PacketInEvent, queueSize),
	}
}

// State returns the current lifecycle state.
func (s *SwitchSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SwitchSession) activate() {
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
}

// enqueue hands a packet-in to the session loop. Only Active sessions accept
// events; a full queue drops the event, which the switch recovers from by
// resending on the next table miss.
func (s *SwitchSession) enqueue(ev *model.PacketInEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return model.ErrSessionNotReady
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return fmt.Errorf("switch %d: event queue full, packet-in dropped", s.ID)
	}
}

// close transitions to Closed and waits for the in-flight handler to
// complete. Safe to call more than once.
func (s *SwitchSession) close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	close(s.events)
	s.mu.Unlock()
	s.wg.Wait()
}

// hasFlow reports whether a rule for the match key is already installed.
func (s *SwitchSession) hasFlow(key string) (model.FlowRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.flows[key]
	return r, ok
}

// recordFlow remembers an installed rule.
func (s *SwitchSession) recordFlow(key string, rule model.FlowRule) {
	s.mu.Lock()
	s.flows[key] = rule
	s.mu.Unlock()
}

// FlowCount returns the number of rules this session has installed.
func (s *SwitchSession) FlowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}
