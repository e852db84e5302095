package model

import "context"

// Classifier maps a FlowDescriptor to a ClassificationResult. The rule-based
// and model-based implementations are selected by configuration and plugged
// in behind this one contract.
type Classifier interface {
	Classify(ctx context.Context, fd *FlowDescriptor) (ClassificationResult, error)
	Kind() ClassifierKind
}

// Predictor is the capability boundary to a trained decision model. The
// implementation must be immutable after load and safe for concurrent use.
type Predictor interface {
	Predict(features []float64) (label string, score float64, err error)
}
