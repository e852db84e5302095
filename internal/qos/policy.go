// Package qos maps classification results to flow-table priority bands and
// queue assignments.
package qos

import (
	"sync"

	"FlowPilot/internal/model"
)

// Class is a QoS priority tier.
type Class int

const (
	ClassFloor Class = iota // unknown and demoted traffic
	ClassLow
	ClassMedium
	ClassHigh
)

func (c Class) String() string {
	switch c {
	case ClassHigh:
		return "high"
	case ClassMedium:
		return "medium"
	case ClassLow:
		return "low"
	default:
		return "floor"
	}
}

// Flow-table priority layout. The table-miss entry sits at 0, every QoS band
// strictly above it, and everything stays below the administrative floor so
// manually pinned rules always win.
const (
	TableMissPriority  uint16 = 0
	AdminFloorPriority uint16 = 60000

	floorBase  uint16 = 100
	lowBase    uint16 = 1000
	mediumBase uint16 = 2000
	highBase   uint16 = 3000

	// tieBreakSpan is the per-class headroom for the install tie-break.
	// Bands are spaced wider than the span so classes never collide.
	tieBreakSpan uint16 = 499
)

// classBases indexes base priorities by Class.
var classBases = map[Class]uint16{
	ClassFloor:  floorBase,
	ClassLow:    lowBase,
	ClassMedium: mediumBase,
	ClassHigh:   highBase,
}

// trafficClasses buckets traffic types into QoS tiers. Latency-sensitive
// traffic rides high, interactive medium, throughput-bound low.
var trafficClasses = map[model.TrafficType]Class{
	model.TrafficDNS:          ClassHigh,
	model.TrafficVoIP:         ClassHigh,
	model.TrafficVideo:        ClassHigh,
	model.TrafficChat:         ClassHigh,
	model.TrafficICMP:         ClassHigh,
	model.TrafficWeb:          ClassMedium,
	model.TrafficEmail:        ClassMedium,
	model.TrafficSSH:          ClassMedium,
	model.TrafficGaming:       ClassMedium,
	model.TrafficFileTransfer: ClassLow,
	model.TrafficBulk:         ClassLow,
	model.TrafficTCPGeneric:   ClassLow,
	model.TrafficUDPGeneric:   ClassLow,
	model.TrafficUnknown:      ClassFloor,
}

// queueIDs assigns the output queue per class.
var queueIDs = map[Class]uint32{
	ClassFloor:  0,
	ClassLow:    0,
	ClassMedium: 1,
	ClassHigh:   2,
}

// Decision is the outcome of applying the policy to one classification.
type Decision struct {
	Class    Class
	Traffic  model.TrafficType
	Priority uint16
	QueueID  uint32
	Demoted  bool
}

// Policy is the deterministic priority table plus the per-class install
// tie-break state. Safe for concurrent use across sessions.
type Policy struct {
	threshold float64

	mu   sync.Mutex
	next map[Class]uint16 // remaining tie-break offset per class
}

// NewPolicy creates a policy with the given confidence threshold.
// Classifications below the threshold are demoted to unknown.
func NewPolicy(confidenceThreshold float64) *Policy {
	next := make(map[Class]uint16, len(classBases))
	for class := range classBases {
		next[class] = tieBreakSpan
	}
	return &Policy{threshold: confidenceThreshold, next: next}
}

// Assign maps a classification result to a priority decision. Within one
// class the tie-break offset decreases per install, so a later install never
// outranks an earlier one at the same class; once exhausted, installs share
// the class base. Low-confidence predictions are demoted to the floor class
// regardless of their raw label.
func (p *Policy) Assign(res model.ClassificationResult) Decision {
	traffic := res.Type
	demoted := false
	if res.Confidence < p.threshold && traffic != model.TrafficUnknown {
		traffic = model.TrafficUnknown
		demoted = true
	}

	class, ok := trafficClasses[traffic]
	if !ok {
		class = ClassFloor
	}

	p.mu.Lock()
	offset := p.next[class]
	if offset > 0 {
		p.next[class] = offset - 1
	}
	p.mu.Unlock()

	return Decision{
		Class:    class,
		Traffic:  traffic,
		Priority: classBases[class] + offset,
		QueueID:  queueIDs[class],
		Demoted:  demoted,
	}
}

// Actions returns the action set for a decision, excluding the output port,
// which the installer appends once the egress is resolved.
func (d Decision) Actions() []model.FlowAction {
	return []model.FlowAction{
		{Type: model.ActionSetQueue, QueueID: d.QueueID},
	}
}
