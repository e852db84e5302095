package classifier

import (
	"fmt"

	"FlowPilot/internal/config"
	"FlowPilot/internal/model"

	log "github.com/sirupsen/logrus"
)

// Factory creates a classifier from the loaded configuration.
type Factory func(cfg *config.Config) (model.Classifier, error)

// registry maps classifier kinds to their factory functions.
var registry = make(map[model.ClassifierKind]Factory)

// Register registers a classifier implementation for a kind. Implementations
// call this from init(); importing the package wires them in.
func Register(kind model.ClassifierKind, factory Factory) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("classifier kind '%s' already registered", kind))
	}
	registry[kind] = factory
}

// New creates the classifier selected by cfg.Classifier.Kind.
func New(cfg *config.Config) (model.Classifier, error) {
	kind := model.ClassifierKind(cfg.Classifier.Kind)
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown classifier kind: '%s'", kind)
	}
	log.WithField("kind", kind).Info("Creating traffic classifier")
	return factory(cfg)
}
