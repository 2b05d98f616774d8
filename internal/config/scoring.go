package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const weightSumTolerance = 0.001

// ErrWeightSum is returned when scoring weights do not sum to 1.0.
var ErrWeightSum = errors.New("scoring weights must sum to 1.0")

type (
	// ScoringWeights holds the per-rule weights used to compose the
	// induction composite score. Weights are fixed for the duration of a
	// decision run.
	ScoringWeights struct {
		Certificate float64 `yaml:"certificate"`
		WorkOrder   float64 `yaml:"workorder"`
		Branding    float64 `yaml:"branding"`
		Mileage     float64 `yaml:"mileage"`
		Cleaning    float64 `yaml:"cleaning"`
		Stabling    float64 `yaml:"stabling"`
	}

	// ScoringFile is the on-disk deployment override for decision weights
	// and per-topic bus backpressure policies.
	ScoringFile struct {
		Weights  ScoringWeights    `yaml:"weights"`
		Policies map[string]string `yaml:"bus_policies,omitempty"`
	}
)

// DefaultScoringWeights returns the deployment-default rule weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Certificate: 0.25,
		WorkOrder:   0.20,
		Branding:    0.15,
		Mileage:     0.15,
		Cleaning:    0.15,
		Stabling:    0.10,
	}
}

// Sum returns the total of all rule weights.
func (w ScoringWeights) Sum() float64 {
	return w.Certificate + w.WorkOrder + w.Branding + w.Mileage + w.Cleaning + w.Stabling
}

// Validate checks that the weights form a convex combination.
func (w ScoringWeights) Validate() error {
	if math.Abs(w.Sum()-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: got %.4f", ErrWeightSum, w.Sum())
	}

	return nil
}

// LoadScoringFile reads a YAML scoring override file. A missing path returns
// defaults without error so deployments can run file-less.
func LoadScoringFile(path string) (*ScoringFile, error) {
	file := &ScoringFile{Weights: DefaultScoringWeights()}

	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}

		return nil, fmt.Errorf("failed to read scoring file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("failed to parse scoring file %s: %w", path, err)
	}

	if err := file.Weights.Validate(); err != nil {
		return nil, err
	}

	return file, nil
}
