// Package rule implements the rule-based traffic classifier: a staged
// pipeline of payload inspection, well-known port matching, and statistical
// heuristics, each stage with its own confidence.
package rule

import (
	"bytes"
	"context"

	"FlowPilot/internal/classifier"
	"FlowPilot/internal/config"
	"FlowPilot/internal/model"
)

func init() {
	classifier.Register(model.ClassifierRule, func(cfg *config.Config) (model.Classifier, error) {
		return New(), nil
	})
}

// Acceptance thresholds per stage. A stage's answer is taken only when its
// confidence clears the bar; otherwise the next stage runs.
const (
	dpiAcceptConf  = 0.7
	portAcceptConf = 0.5
	statAcceptConf = 0.4
)

// dpiSignature is one plaintext application-protocol marker.
type dpiSignature struct {
	marker     []byte
	traffic    model.TrafficType
	confidence float64
}

// Signatures only fire on unencrypted payloads; on encrypted traffic DPI
// falls through to the port stage, which is the measured failure mode.
var dpiSignatures = []dpiSignature{
	{[]byte("GET "), model.TrafficWeb, 0.9},
	{[]byte("POST "), model.TrafficWeb, 0.9},
	{[]byte("HTTP/"), model.TrafficWeb, 0.9},
	{[]byte("Host:"), model.TrafficWeb, 0.9},
	{[]byte("User-Agent:"), model.TrafficWeb, 0.9},
	{[]byte("Content-Type:"), model.TrafficWeb, 0.9},
	{[]byte("SSH-"), model.TrafficSSH, 0.8},
	{[]byte("SMTP"), model.TrafficEmail, 0.7},
	{[]byte("MAIL"), model.TrafficEmail, 0.7},
}

// Classifier is the rule-based variant. It holds no mutable state and is
// safe for concurrent use across sessions.
type Classifier struct{}

// New creates a rule-based classifier.
func New() *Classifier {
	return &Classifier{}
}

// Kind implements model.Classifier.
func (c *Classifier) Kind() model.ClassifierKind {
	return model.ClassifierRule
}

// Classify runs the staged pipeline. It never fails: when every stage comes
// up empty the result is unknown with low confidence.
func (c *Classifier) Classify(_ context.Context, fd *model.FlowDescriptor) (model.ClassificationResult, error) {
	if res, ok := c.inspectPayload(fd); ok && res.Confidence > dpiAcceptConf {
		return res, nil
	}
	if res, ok := c.matchPorts(fd); ok && res.Confidence > portAcceptConf {
		return res, nil
	}
	if res, ok := c.analyzeStatistics(fd); ok && res.Confidence > statAcceptConf {
		return res, nil
	}
	return c.protocolFallback(fd), nil
}

// inspectPayload attempts DPI against known plaintext markers.
func (c *Classifier) inspectPayload(fd *model.FlowDescriptor) (model.ClassificationResult, bool) {
	if len(fd.Payload) == 0 {
		return model.ClassificationResult{}, false
	}
	for _, sig := range dpiSignatures {
		if bytes.Contains(fd.Payload, sig.marker) {
			return model.ClassificationResult{
				Type:       sig.traffic,
				Confidence: sig.confidence,
				Kind:       model.ClassifierRule,
				Method:     model.MethodDPI,
			}, true
		}
	}
	return model.ClassificationResult{}, false
}

// matchPorts classifies by well-known transport ports.
func (c *Classifier) matchPorts(fd *model.FlowDescriptor) (model.ClassificationResult, bool) {
	if !fd.IsIP() {
		return model.ClassificationResult{}, false
	}
	src, dst := fd.FiveTuple.SrcPort, fd.FiveTuple.DstPort

	match := func(t model.TrafficType, conf float64) (model.ClassificationResult, bool) {
		return model.ClassificationResult{
			Type:       t,
			Confidence: conf,
			Kind:       model.ClassifierRule,
			Method:     model.MethodPort,
		}, true
	}

	switch {
	case src == 53 || dst == 53:
		return match(model.TrafficDNS, 0.9)
	case anyPort(src, dst, 80, 443, 8080, 8443):
		return match(model.TrafficWeb, 0.8)
	case src == 22 || dst == 22:
		return match(model.TrafficSSH, 0.7)
	case anyPort(src, dst, 25, 587, 993, 995):
		return match(model.TrafficEmail, 0.6)
	case anyPort(src, dst, 20, 21):
		return match(model.TrafficFileTransfer, 0.6)
	case inRange(src, dst, 27015, 27030):
		return match(model.TrafficGaming, 0.8)
	case fd.FiveTuple.Protocol == 17 && inRange(src, dst, 16384, 32768):
		return match(model.TrafficVoIP, 0.7)
	}
	return model.ClassificationResult{}, false
}

// analyzeStatistics classifies by flow-level characteristics. Needs the
// tracker's running stats, which arrive on the descriptor.
func (c *Classifier) analyzeStatistics(fd *model.FlowDescriptor) (model.ClassificationResult, bool) {
	match := func(t model.TrafficType, conf float64) (model.ClassificationResult, bool) {
		return model.ClassificationResult{
			Type:       t,
			Confidence: conf,
			Kind:       model.ClassifierRule,
			Method:     model.MethodStatistical,
		}, true
	}

	if fd.FiveTuple.Protocol == 1 {
		return match(model.TrafficICMP, 0.8)
	}

	if st := fd.Stats; st != nil {
		// Bulk transfer before video: both have large packets, bulk wins
		// only at distinctly higher throughput.
		if st.AvgPacketSize > 1200 && st.ByteRate > 500000 {
			return match(model.TrafficFileTransfer, 0.6)
		}
		if st.AvgPacketSize > 1000 && st.ByteRate > 100000 {
			return match(model.TrafficVideo, 0.6)
		}
	}

	if fd.Length > 0 && fd.Length <= 64 {
		return match(model.TrafficChat, 0.5)
	}

	// ACK-only segments indicate interactive traffic.
	if fd.FiveTuple.Protocol == 6 && fd.TCPFlags == 0x10 {
		return match(model.TrafficChat, 0.5)
	}

	return model.ClassificationResult{}, false
}

// protocolFallback is the last stage and always answers.
func (c *Classifier) protocolFallback(fd *model.FlowDescriptor) model.ClassificationResult {
	res := model.ClassificationResult{
		Type:       model.TrafficUnknown,
		Confidence: 0.1,
		Kind:       model.ClassifierRule,
		Method:     model.MethodProtocol,
	}
	switch fd.FiveTuple.Protocol {
	case 6:
		res.Type = model.TrafficTCPGeneric
		res.Confidence = 0.3
	case 17:
		res.Type = model.TrafficUDPGeneric
		res.Confidence = 0.3
	}
	return res
}

func anyPort(src, dst uint16, ports ...uint16) bool {
	for _, p := range ports {
		if src == p || dst == p {
			return true
		}
	}
	return false
}

func inRange(src, dst, lo, hi uint16) bool {
	return (src >= lo && src < hi) || (dst >= lo && dst < hi)
}
