// Package mlmodel implements the model-based traffic classifier. It computes
// a fixed-size feature vector from flow-level statistics and delegates the
// decision to a trained Predictor loaded at startup. No payload access.
package mlmodel

import (
	"context"
	"fmt"
	"time"

	"FlowPilot/internal/classifier"
	"FlowPilot/internal/config"
	"FlowPilot/internal/model"

	log "github.com/sirupsen/logrus"
)

func init() {
	classifier.Register(model.ClassifierModel, func(cfg *config.Config) (model.Classifier, error) {
		timeout, err := cfg.PredictTimeout()
		if err != nil {
			return nil, fmt.Errorf("invalid predict_timeout: %w", err)
		}

		var predictor model.Predictor
		if cfg.Classifier.ModelPath != "" {
			m, err := LoadCentroidModel(cfg.Classifier.ModelPath)
			if err != nil {
				// A missing artifact is the degraded mode, not a startup
				// failure: the classifier reports unavailable per event and
				// the controller floods.
				log.WithError(err).WithField("path", cfg.Classifier.ModelPath).
					Warn("Model artifact not loaded, classifier will report unavailable")
			} else {
				predictor = m
				log.WithFields(log.Fields{
					"path":   cfg.Classifier.ModelPath,
					"labels": len(m.Labels),
				}).Info("Model artifact loaded")
			}
		}
		return New(predictor, timeout), nil
	})
}

// labelTypes maps predictor labels onto traffic types. Labels follow the
// training set's naming.
var labelTypes = map[string]model.TrafficType{
	"DNS":             model.TrafficDNS,
	"VOIP":            model.TrafficVoIP,
	"Video-Streaming": model.TrafficVideo,
	"Audio-Streaming": model.TrafficVideo,
	"Chat":            model.TrafficChat,
	"ICMP":            model.TrafficICMP,
	"Browsing":        model.TrafficWeb,
	"Email":           model.TrafficEmail,
	"SSH":             model.TrafficSSH,
	"Gaming":          model.TrafficGaming,
	"File-Transfer":   model.TrafficFileTransfer,
	"P2P":             model.TrafficBulk,
	"Bulk":            model.TrafficBulk,
}

// Classifier is the model-based variant.
type Classifier struct {
	predictor model.Predictor
	timeout   time.Duration
}

// New creates a model-based classifier around a predictor. A nil predictor
// is allowed and makes every Classify return ErrClassifierUnavailable.
func New(predictor model.Predictor, timeout time.Duration) *Classifier {
	return &Classifier{predictor: predictor, timeout: timeout}
}

// Kind implements model.Classifier.
func (c *Classifier) Kind() model.ClassifierKind {
	return model.ClassifierModel
}

type prediction struct {
	label string
	score float64
	err   error
}

// Classify computes the feature vector and evaluates the model within the
// configured budget. On timeout or model absence the call fails and the
// caller degrades to flood-only forwarding.
func (c *Classifier) Classify(ctx context.Context, fd *model.FlowDescriptor) (model.ClassificationResult, error) {
	if c.predictor == nil {
		return model.ClassificationResult{}, model.ErrClassifierUnavailable
	}

	features := BuildFeatures(fd)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan prediction, 1)
	go func() {
		label, score, err := c.predictor.Predict(features)
		done <- prediction{label: label, score: score, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.ClassificationResult{}, fmt.Errorf("%w: prediction timed out: %v", model.ErrClassifierUnavailable, ctx.Err())
	case p := <-done:
		if p.err != nil {
			return model.ClassificationResult{}, fmt.Errorf("prediction failed: %w", p.err)
		}
		traffic, ok := labelTypes[p.label]
		if !ok {
			// Tolerate labels the mapping has never seen rather than erroring.
			traffic = model.TrafficUnknown
		}
		return model.ClassificationResult{
			Type:       traffic,
			Confidence: p.score,
			Kind:       model.ClassifierModel,
			Method:     model.MethodModel,
		}, nil
	}
}
