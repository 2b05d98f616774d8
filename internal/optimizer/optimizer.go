// Package optimizer searches induction plans with NSGA-II: a genetic
// algorithm that evolves subsets of eligible trainsets against five
// objectives at once and returns the Pareto front instead of a single
// blended answer. Runs execute asynchronously in a bounded worker pool and
// stream progress over the event bus.
package optimizer

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrNoEligibleTrainsets is returned when fewer trainsets pass the
	// hard constraints than the minimum service subset size.
	ErrNoEligibleTrainsets = errors.New("no eligible trainsets to optimize over")

	// ErrCancelled marks a run stopped by an operator before completion.
	ErrCancelled = errors.New("optimization cancelled")

	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("optimization run not found")

	// ErrRunNotCancellable is returned when cancelling a finished run.
	ErrRunNotCancellable = errors.New("optimization run already finished")

	// ErrInvalidParams is returned when request overrides are out of range.
	ErrInvalidParams = errors.New("invalid optimization parameters")
)

// Genetic algorithm defaults. Request overrides may lower generations or
// population for faster, rougher runs.
const (
	DefaultPopulationSize = 50
	DefaultGenerations    = 100
	DefaultMutationRate   = 0.1
	DefaultCrossoverRate  = 0.9
	DefaultElitismRate    = 0.1
	TournamentSize        = 3

	// MinTrainsets and MaxTrainsets bound the service subset. Solutions
	// outside the band are penalized, not discarded.
	MinTrainsets = 15
	MaxTrainsets = 25

	// PenaltyUnderMin and PenaltyOverMax are applied to every objective of
	// an out-of-band solution.
	PenaltyUnderMin = -50.0
	PenaltyOverMax  = -20.0

	// GenerationBudget is the soft per-generation time budget; a run that
	// exceeds it logs and keeps going.
	GenerationBudget = 2 * time.Second

	// HardTimeout is the wall-clock ceiling after which a run stops with
	// the best front found so far.
	HardTimeout = 5 * time.Minute
)

// Objective identifies one of the five optimization axes. Every objective is
// scored on [0,100], higher is better.
type Objective string

// Objectives, in report order.
const (
	ObjectiveServiceReadiness  Objective = "service_readiness"
	ObjectiveReliability       Objective = "reliability"
	ObjectiveCostEfficiency    Objective = "cost_efficiency"
	ObjectiveBrandingExposure  Objective = "branding_exposure"
	ObjectiveEnergyEfficiency  Objective = "energy_efficiency"
)

// NumObjectives is the dimensionality of the objective vector.
const NumObjectives = 5

// AllObjectives returns the objectives in report order.
func AllObjectives() []Objective {
	return []Objective{
		ObjectiveServiceReadiness,
		ObjectiveReliability,
		ObjectiveCostEfficiency,
		ObjectiveBrandingExposure,
		ObjectiveEnergyEfficiency,
	}
}

// Params configures one optimization run.
type Params struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`
	CrossoverRate  float64 `json:"crossover_rate"`
	ElitismRate    float64 `json:"elitism_rate"`
	MinTrainsets   int     `json:"min_trainsets"`
	MaxTrainsets   int     `json:"max_trainsets"`

	// Seed fixes the random source; zero draws a time-based seed.
	Seed int64 `json:"seed,omitempty"`
}

// DefaultParams returns the deployment-default GA parameters.
func DefaultParams() Params {
	return Params{
		PopulationSize: DefaultPopulationSize,
		Generations:    DefaultGenerations,
		MutationRate:   DefaultMutationRate,
		CrossoverRate:  DefaultCrossoverRate,
		ElitismRate:    DefaultElitismRate,
		MinTrainsets:   MinTrainsets,
		MaxTrainsets:   MaxTrainsets,
	}
}

// Validate checks that overrides stay in a sane range.
func (p Params) Validate() error {
	switch {
	case p.PopulationSize < 2 || p.PopulationSize > 1000:
		return errors.Join(ErrInvalidParams, errors.New("population_size must be in [2,1000]"))
	case p.Generations < 1 || p.Generations > 10000:
		return errors.Join(ErrInvalidParams, errors.New("generations must be in [1,10000]"))
	case p.MutationRate < 0 || p.MutationRate > 1:
		return errors.Join(ErrInvalidParams, errors.New("mutation_rate must be in [0,1]"))
	case p.CrossoverRate < 0 || p.CrossoverRate > 1:
		return errors.Join(ErrInvalidParams, errors.New("crossover_rate must be in [0,1]"))
	case p.ElitismRate < 0 || p.ElitismRate > 0.5:
		return errors.Join(ErrInvalidParams, errors.New("elitism_rate must be in [0,0.5]"))
	case p.MinTrainsets < 1 || p.MaxTrainsets < p.MinTrainsets:
		return errors.Join(ErrInvalidParams, errors.New("trainset bounds must satisfy 1 <= min <= max"))
	}

	return nil
}
