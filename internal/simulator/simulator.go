package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inductor-io/inductor/internal/clock"
	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
)

// Weight of the mean composite versus the ready fraction in the overall
// scenario score.
const (
	overallCompositeWeight = 0.6
	overallReadyWeight     = 0.4
)

// defaultPlanParams bounds the inline optimization pass each scenario runs.
// What-if plans are advisory, so a short seeded search keeps scenario
// latency interactive while staying deterministic per simulation.
var defaultPlanParams = optimizer.Params{
	PopulationSize: 30,
	Generations:    20,
	Seed:           1,
}

type (
	// Evaluator reruns the decision engine against overlaid snapshots.
	Evaluator interface {
		Evaluate(snapshot *fleet.Context) (*decision.Decision, error)
	}

	// Planner runs an inline optimization pass against an overlaid
	// snapshot; the run registry's Solve satisfies it.
	Planner interface {
		Solve(ctx context.Context, snapshot *fleet.Context, params optimizer.Params) (*optimizer.Report, error)
	}

	// SnapshotStore loads the baseline fleet snapshot.
	SnapshotStore interface {
		Snapshot(ctx context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error)
	}

	// Metrics is the per-scenario outcome vector. The readiness block comes
	// from the decision engine; the objective block carries the best plan
	// found by the inline optimization pass.
	Metrics struct {
		ServiceReadiness     float64 `json:"service_readiness"`
		Reliability          float64 `json:"reliability"`
		CostEfficiency       float64 `json:"cost_efficiency"`
		BrandingExposure     float64 `json:"branding_exposure"`
		EnergyEfficiency     float64 `json:"energy_efficiency"`
		AverageComposite     float64 `json:"average_composite"`
		ReadyCount           int     `json:"ready_count"`
		ConstraintViolations int     `json:"constraint_violations"`
		RecommendationCount  int     `json:"recommendation_count"`
		Confidence           float64 `json:"confidence"`
		OverallScore         float64 `json:"overall_score"`
	}

	// Delta is the metric difference of a scenario against the baseline.
	Delta struct {
		ServiceReadiness     float64 `json:"service_readiness"`
		Reliability          float64 `json:"reliability"`
		CostEfficiency       float64 `json:"cost_efficiency"`
		BrandingExposure     float64 `json:"branding_exposure"`
		EnergyEfficiency     float64 `json:"energy_efficiency"`
		AverageComposite     float64 `json:"average_composite"`
		ReadyCount           int     `json:"ready_count"`
		ConstraintViolations int     `json:"constraint_violations"`
		OverallScore         float64 `json:"overall_score"`
	}

	// ScenarioResult is one evaluated alternative.
	ScenarioResult struct {
		Name     string   `json:"name"`
		Metrics  Metrics  `json:"metrics"`
		Delta    Delta    `json:"delta"`
		Warnings []string `json:"warnings,omitempty"`
	}

	// BestScenario names the winning alternative and its improvement over
	// the baseline overall score.
	BestScenario struct {
		Name                string  `json:"name"`
		ExpectedImprovement float64 `json:"expected_improvement"`
	}

	// Result is the full outcome of one simulation, memoized by ID.
	Result struct {
		ID        string           `json:"id"`
		CreatedAt time.Time        `json:"created_at"`
		Date      time.Time        `json:"date"`
		Shift     fleet.Shift      `json:"shift"`
		Baseline  Metrics          `json:"baseline"`
		Scenarios []ScenarioResult `json:"scenarios"`
		Best      *BestScenario    `json:"best,omitempty"`
	}

	// Simulator evaluates what-if scenarios against cloned snapshots.
	Simulator struct {
		store      SnapshotStore
		evaluator  Evaluator
		planner    Planner
		logger     *slog.Logger
		clk        clock.Clock
		planParams optimizer.Params

		mu      sync.Mutex
		results map[string]*Result
	}

	// Option configures optional simulator behavior.
	Option func(*Simulator)
)

// WithClock substitutes the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Simulator) {
		s.clk = clk
	}
}

// WithPlanParams overrides the inline optimization pass parameters.
func WithPlanParams(params optimizer.Params) Option {
	return func(s *Simulator) {
		s.planParams = params
	}
}

// New creates a simulator over the given snapshot source, evaluator, and
// planner.
func New(store SnapshotStore, evaluator Evaluator, planner Planner, logger *slog.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		store:      store,
		evaluator:  evaluator,
		planner:    planner,
		logger:     logger,
		clk:        clock.System(),
		planParams: defaultPlanParams,
		results:    make(map[string]*Result),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run evaluates the baseline plus every scenario and returns the comparison.
// Each scenario works on its own clone of the baseline snapshot; the store
// is read exactly once and never written.
func (s *Simulator) Run(ctx context.Context, date time.Time, shift fleet.Shift, scenarios []Scenario) (*Result, error) {
	if len(scenarios) == 0 {
		return nil, ErrNoScenarios
	}

	base, err := s.store.Snapshot(ctx, date, shift)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline snapshot: %w", err)
	}

	baseDecision, err := s.evaluator.Evaluate(base)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate baseline: %w", err)
	}

	baseReport, baseWarnings := s.plan(ctx, base)
	for _, warning := range baseWarnings {
		s.logger.Warn("Baseline optimization pass degraded", slog.String("warning", warning))
	}

	result := &Result{
		ID:        uuid.NewString(),
		CreatedAt: s.clk.Now().UTC(),
		Date:      date,
		Shift:     shift,
		Baseline:  metricsOf(baseDecision, baseReport),
	}

	for _, scenario := range scenarios {
		overlay := base.Clone()

		for i := range scenario.Modifications {
			if err := scenario.Modifications[i].apply(overlay); err != nil {
				return nil, fmt.Errorf("scenario %q modification %d: %w", scenario.Name, i+1, err)
			}
		}

		overlayDecision, err := s.evaluator.Evaluate(overlay)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}

		overlayReport, warnings := s.plan(ctx, overlay)

		metrics := metricsOf(overlayDecision, overlayReport)

		for _, conflict := range overlayDecision.Conflicts {
			warnings = append(warnings, conflict.Description)
		}

		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:     scenario.Name,
			Metrics:  metrics,
			Delta:    deltaOf(result.Baseline, metrics),
			Warnings: warnings,
		})
	}

	result.Best = bestOf(result)

	s.mu.Lock()
	s.results[result.ID] = result
	s.mu.Unlock()

	s.logger.Info("Simulation completed",
		slog.String("simulation_id", result.ID),
		slog.Int("scenarios", len(result.Scenarios)),
		slog.Float64("baseline_score", result.Baseline.OverallScore),
	)

	return result, nil
}

// Get returns a memoized simulation result.
func (s *Simulator) Get(id string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[id]
	if !ok {
		return nil, ErrSimulationNotFound
	}

	return result, nil
}

// plan runs the inline optimization pass. Planner failures degrade to
// warnings so a scenario that starves the eligible pool still yields a
// comparable metric vector.
func (s *Simulator) plan(ctx context.Context, snapshot *fleet.Context) (*optimizer.Report, []string) {
	if s.planner == nil {
		return nil, nil
	}

	report, err := s.planner.Solve(ctx, snapshot, s.planParams)
	if err != nil {
		if errors.Is(err, optimizer.ErrNoEligibleTrainsets) {
			return nil, []string{"optimizer: " + err.Error()}
		}

		return nil, []string{fmt.Sprintf("optimization pass failed: %v", err)}
	}

	return report, nil
}

func metricsOf(d *decision.Decision, report *optimizer.Report) Metrics {
	ready := d.ReadyCount()
	total := len(d.Ranked)

	var compositeSum float64

	for _, row := range d.Ranked {
		compositeSum += row.Composite
	}

	readiness := 0.0
	avg := 0.0

	if total > 0 {
		readiness = float64(ready) / float64(total) * 100
		avg = compositeSum / float64(total)
	}

	metrics := Metrics{
		ServiceReadiness:     round2(readiness),
		AverageComposite:     round2(avg),
		ReadyCount:           ready,
		ConstraintViolations: len(d.Conflicts),
		RecommendationCount:  len(d.Recommendations),
		Confidence:           d.Confidence,
		OverallScore:         round2(overallCompositeWeight*avg + overallReadyWeight*readiness),
	}

	if report != nil && report.Best != nil {
		metrics.Reliability = report.Best.Objectives[optimizer.ObjectiveReliability]
		metrics.CostEfficiency = report.Best.Objectives[optimizer.ObjectiveCostEfficiency]
		metrics.BrandingExposure = report.Best.Objectives[optimizer.ObjectiveBrandingExposure]
		metrics.EnergyEfficiency = report.Best.Objectives[optimizer.ObjectiveEnergyEfficiency]
		metrics.ConstraintViolations += len(report.Best.Violations)
		metrics.RecommendationCount += len(report.Recommendations)
	}

	return metrics
}

func deltaOf(base, scenario Metrics) Delta {
	return Delta{
		ServiceReadiness:     round2(scenario.ServiceReadiness - base.ServiceReadiness),
		Reliability:          round2(scenario.Reliability - base.Reliability),
		CostEfficiency:       round2(scenario.CostEfficiency - base.CostEfficiency),
		BrandingExposure:     round2(scenario.BrandingExposure - base.BrandingExposure),
		EnergyEfficiency:     round2(scenario.EnergyEfficiency - base.EnergyEfficiency),
		AverageComposite:     round2(scenario.AverageComposite - base.AverageComposite),
		ReadyCount:           scenario.ReadyCount - base.ReadyCount,
		ConstraintViolations: scenario.ConstraintViolations - base.ConstraintViolations,
		OverallScore:         round2(scenario.OverallScore - base.OverallScore),
	}
}

// bestOf picks the scenario with the highest overall score, but only when it
// actually beats the baseline.
func bestOf(result *Result) *BestScenario {
	var best *ScenarioResult

	for i := range result.Scenarios {
		if best == nil || result.Scenarios[i].Metrics.OverallScore > best.Metrics.OverallScore {
			best = &result.Scenarios[i]
		}
	}

	if best == nil || best.Metrics.OverallScore <= result.Baseline.OverallScore {
		return nil
	}

	return &BestScenario{
		Name:                best.Name,
		ExpectedImprovement: round2(best.Metrics.OverallScore - result.Baseline.OverallScore),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
