package mlmodel

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
)

// CentroidModel is a nearest-centroid classifier over the fixed feature
// vector. The artifact is produced offline and loaded read-only; after load
// the model is immutable and safe for concurrent Predict calls.
type CentroidModel struct {
	Labels    []string
	Centroids [][]float64
	// Scale holds per-feature divisors applied to inputs before distance
	// computation; centroids are stored already scaled. A zero entry
	// disables scaling for that feature.
	Scale []float64
}

// LoadCentroidModel reads a gob-encoded model artifact from disk.
func LoadCentroidModel(path string) (*CentroidModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer f.Close()

	var m CentroidModel
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *CentroidModel) check() error {
	if len(m.Labels) == 0 || len(m.Labels) != len(m.Centroids) {
		return fmt.Errorf("model artifact has %d labels for %d centroids", len(m.Labels), len(m.Centroids))
	}
	for i, c := range m.Centroids {
		if len(c) != NumFeatures {
			return fmt.Errorf("centroid %d has %d features, want %d", i, len(c), NumFeatures)
		}
	}
	return nil
}

// Predict returns the label of the nearest centroid. The score is the
// relative margin to the runner-up, in [0,1]: 1 when the runner-up is
// infinitely far, approaching 0 when the two nearest centroids tie. Inputs
// the model never saw during fitting still land on some centroid; there is
// no out-of-vocabulary failure mode.
func (m *CentroidModel) Predict(features []float64) (string, float64, error) {
	if len(features) != NumFeatures {
		return "", 0, fmt.Errorf("feature vector has %d entries, want %d", len(features), NumFeatures)
	}

	best, second := -1, -1
	bestDist, secondDist := math.Inf(1), math.Inf(1)
	for i, c := range m.Centroids {
		d := m.distance(features, c)
		switch {
		case d < bestDist:
			second, secondDist = best, bestDist
			best, bestDist = i, d
		case d < secondDist:
			second, secondDist = i, d
		}
	}

	score := 1.0
	if second >= 0 && secondDist > 0 {
		score = 1 - bestDist/secondDist
		if score < 0 {
			score = 0
		}
	}
	return m.Labels[best], score, nil
}

func (m *CentroidModel) distance(x, c []float64) float64 {
	var sum float64
	for i := range x {
		v := x[i]
		if i < len(m.Scale) && m.Scale[i] != 0 {
			v /= m.Scale[i]
		}
		d := v - c[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
