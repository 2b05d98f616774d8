package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/clock"
	"github.com/inductor-io/inductor/internal/config"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/metrics"
)

// State is the lifecycle phase of an optimization run.
type State string

// Run states. COMPLETED, FAILED, CANCELLED, and TIMED_OUT are terminal.
const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
	StateTimedOut  State = "TIMED_OUT"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}

	return false
}

type (
	// Store is the persistence surface the registry needs.
	Store interface {
		Snapshot(ctx context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error)
		SaveRun(ctx context.Context, view RunView) error
	}

	// Publisher is the event surface the registry needs.
	Publisher interface {
		Publish(topic bus.Topic, payload any) bus.Event
	}

	// RunView is the immutable snapshot of a run handed to callers and the
	// store.
	RunView struct {
		ID          string      `json:"id"`
		State       State       `json:"state"`
		Progress    float64     `json:"progress"`
		Date        time.Time   `json:"date"`
		Shift       fleet.Shift `json:"shift"`
		Params      Params      `json:"params"`
		SubmittedAt time.Time   `json:"submitted_at"`
		StartedAt   *time.Time  `json:"started_at,omitempty"`
		FinishedAt  *time.Time  `json:"finished_at,omitempty"`
		Error       string      `json:"error,omitempty"`
		Report      *Report     `json:"report,omitempty"`
	}

	// run is the registry's mutable record of one optimization.
	run struct {
		mu     sync.Mutex
		view   RunView
		cancel context.CancelFunc
	}

	// Registry owns the asynchronous run lifecycle: a bounded worker pool
	// executes runs, callers poll or subscribe for progress, and every
	// state change is persisted and published.
	Registry struct {
		store     Store
		publisher Publisher
		logger    *slog.Logger
		clk       clock.Clock
		weights   config.ScoringWeights

		mu   sync.Mutex
		runs map[string]*run
		sem  chan struct{}
		wg   sync.WaitGroup
	}

	// RegistryOption configures optional registry behavior.
	RegistryOption func(*Registry)

	// ProgressPayload is the optimization.progress event body.
	ProgressPayload struct {
		RunID       string  `json:"run_id"`
		Generation  int     `json:"generation"`
		Generations int     `json:"generations"`
		Progress    float64 `json:"progress"`
		BestFitness float64 `json:"best_fitness"`
	}

	// LifecyclePayload is the body of started/completed/failed/cancelled
	// events.
	LifecyclePayload struct {
		RunID string      `json:"run_id"`
		State State       `json:"state"`
		Date  time.Time   `json:"date"`
		Shift fleet.Shift `json:"shift"`
		Error string      `json:"error,omitempty"`
	}
)

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.sem = make(chan struct{}, n)
		}
	}
}

// WithRegistryClock substitutes the time source, for tests.
func WithRegistryClock(clk clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clk = clk
	}
}

// WithRegistryWeights overrides the composite weights fed to the readiness
// objective.
func WithRegistryWeights(w config.ScoringWeights) RegistryOption {
	return func(r *Registry) {
		r.weights = w
	}
}

// NewRegistry creates a run registry with GOMAXPROCS workers.
func NewRegistry(store Store, publisher Publisher, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:     store,
		publisher: publisher,
		logger:    logger,
		clk:       clock.System(),
		weights:   config.DefaultScoringWeights(),
		runs:      make(map[string]*run),
		sem:       make(chan struct{}, runtime.GOMAXPROCS(0)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start queues an optimization run and returns immediately with its view.
// Zero-valued params fields fall back to defaults before validation.
func (r *Registry) Start(date time.Time, shift fleet.Shift, params Params) (RunView, error) {
	params = withDefaults(params)

	if err := params.Validate(); err != nil {
		return RunView{}, err
	}

	if params.Seed == 0 {
		params.Seed = r.clk.Now().UnixNano()
	}

	ctx, cancel := context.WithCancel(context.Background())

	rn := &run{
		view: RunView{
			ID:          uuid.NewString(),
			State:       StateQueued,
			Date:        date,
			Shift:       shift,
			Params:      params,
			SubmittedAt: r.clk.Now().UTC(),
		},
		cancel: cancel,
	}

	r.mu.Lock()
	r.runs[rn.view.ID] = rn
	r.mu.Unlock()

	r.wg.Add(1)

	go r.execute(ctx, rn)

	return rn.snapshot(), nil
}

// Get returns the current view of a run.
func (r *Registry) Get(id string) (RunView, error) {
	r.mu.Lock()
	rn, ok := r.runs[id]
	r.mu.Unlock()

	if !ok {
		return RunView{}, ErrRunNotFound
	}

	return rn.snapshot(), nil
}

// List returns views of all known runs, newest first.
func (r *Registry) List() []RunView {
	r.mu.Lock()
	views := make([]RunView, 0, len(r.runs))

	for _, rn := range r.runs {
		views = append(views, rn.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].SubmittedAt.After(views[j].SubmittedAt)
	})

	return views
}

// Solve runs the genetic search inline against an already-loaded snapshot
// and returns the final report. Cancellation through ctx stops the search
// and keeps the best front found so far. Solve bypasses the run registry;
// the what-if simulator uses it for bounded per-scenario passes.
func (r *Registry) Solve(ctx context.Context, snapshot *fleet.Context, params Params) (*Report, error) {
	params = withDefaults(params)

	if err := params.Validate(); err != nil {
		return nil, err
	}

	if params.Seed == 0 {
		params.Seed = r.clk.Now().UnixNano()
	}

	prob, err := newProblem(snapshot, r.weights, params)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(params.Seed))

	pop := make(population, params.PopulationSize)
	for i := range pop {
		pop[i] = prob.randomIndividual(rng)
	}

	started := r.clk.Now()
	generationsRun := 0

	for gen := 0; gen < params.Generations; gen++ {
		next, err := prob.nextGeneration(ctx, pop, rng)
		if err != nil {
			break
		}

		pop = next
		generationsRun++
	}

	return prob.buildReport(paretoFront(pop), Stats{
		GenerationsRun: generationsRun,
		Evaluations:    (generationsRun + 1) * params.PopulationSize,
		Elapsed:        r.clk.Now().Sub(started),
	}), nil
}

// Cancel requests a run stop at the next generation boundary. The partial
// Pareto front found so far is preserved in the final report.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	rn, ok := r.runs[id]
	r.mu.Unlock()

	if !ok {
		return ErrRunNotFound
	}

	rn.mu.Lock()
	terminal := rn.view.State.Terminal()
	rn.mu.Unlock()

	if terminal {
		return ErrRunNotCancellable
	}

	rn.cancel()

	return nil
}

// Close cancels every in-flight run and waits for workers to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	for _, rn := range r.runs {
		rn.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Registry) execute(ctx context.Context, rn *run) {
	defer r.wg.Done()

	// Queue until a worker slot frees; cancellation while queued is final.
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		r.finish(rn, StateCancelled, nil, "")

		return
	}

	defer func() { <-r.sem }()

	metrics.OptimizerRunsActive.Inc()
	defer metrics.OptimizerRunsActive.Dec()

	ctx, cancelTimeout := context.WithTimeout(ctx, HardTimeout)
	defer cancelTimeout()

	view := rn.snapshot()

	started := r.clk.Now().UTC()
	rn.update(func(v *RunView) {
		v.State = StateRunning
		v.StartedAt = &started
	})
	r.publish(bus.TopicOptimizationStarted, rn)

	snapshot, err := r.store.Snapshot(ctx, view.Date, view.Shift)
	if err != nil {
		r.finish(rn, StateFailed, nil, fmt.Sprintf("failed to load fleet snapshot: %v", err))

		return
	}

	prob, err := newProblem(snapshot, r.weights, view.Params)
	if err != nil {
		r.finish(rn, StateFailed, nil, err.Error())

		return
	}

	rng := rand.New(rand.NewSource(view.Params.Seed))

	pop := make(population, view.Params.PopulationSize)
	for i := range pop {
		pop[i] = prob.randomIndividual(rng)
	}

	evaluations := view.Params.PopulationSize
	generationsRun := 0

	for gen := 0; gen < view.Params.Generations; gen++ {
		// Cancellation and the hard timeout are honored at generation
		// boundaries and inside the evaluation loop, so even the largest
		// configurations stop within a bounded interval.
		if ctx.Err() != nil {
			r.finishPartial(ctx, rn, prob, pop, generationsRun, evaluations, started)

			return
		}

		genStart := time.Now()

		next, err := prob.nextGeneration(ctx, pop, rng)
		if err != nil {
			r.finishPartial(ctx, rn, prob, pop, generationsRun, evaluations, started)

			return
		}

		pop = next
		generationsRun++
		evaluations += view.Params.PopulationSize
		metrics.OptimizerGenerations.Inc()

		if elapsed := time.Since(genStart); elapsed > GenerationBudget {
			r.logger.Warn("Optimizer generation exceeded soft budget",
				slog.String("run_id", view.ID),
				slog.Int("generation", generationsRun),
				slog.Duration("elapsed", elapsed),
			)
		}

		progress := float64(generationsRun) / float64(view.Params.Generations)
		rn.update(func(v *RunView) { v.Progress = progress })

		best := paretoFront(pop)

		bestFitness := 0.0
		if len(best) > 0 {
			bestFitness = best[0].Fitness
		}

		r.publisher.Publish(bus.TopicOptimizationProgress, ProgressPayload{
			RunID:       view.ID,
			Generation:  generationsRun,
			Generations: view.Params.Generations,
			Progress:    progress,
			BestFitness: bestFitness,
		})
	}

	report := prob.buildReport(paretoFront(pop), Stats{
		GenerationsRun: generationsRun,
		Evaluations:    evaluations,
		Elapsed:        r.clk.Now().Sub(started),
	})

	r.finish(rn, StateCompleted, report, "")
}

// finishPartial closes a cancelled or timed-out run with the best front
// found so far.
func (r *Registry) finishPartial(ctx context.Context, rn *run, prob *problem, pop population, generations, evaluations int, started time.Time) {
	report := prob.buildReport(paretoFront(pop), Stats{
		GenerationsRun: generations,
		Evaluations:    evaluations,
		Elapsed:        r.clk.Now().Sub(started),
	})

	if ctx.Err() == context.DeadlineExceeded {
		r.finish(rn, StateTimedOut, report, "hard timeout exceeded")

		return
	}

	r.finish(rn, StateCancelled, report, "")
}

func (r *Registry) finish(rn *run, state State, report *Report, errMsg string) {
	finished := r.clk.Now().UTC()

	rn.update(func(v *RunView) {
		v.State = state
		v.FinishedAt = &finished
		v.Report = report
		v.Error = errMsg

		if state == StateCompleted {
			v.Progress = 1
		}
	})

	topic := bus.TopicOptimizationCompleted

	switch state {
	case StateFailed, StateTimedOut:
		topic = bus.TopicOptimizationFailed
	case StateCancelled:
		topic = bus.TopicOptimizationCancelled
	}

	r.publish(topic, rn)

	view := rn.snapshot()

	if err := r.store.SaveRun(context.Background(), view); err != nil {
		r.logger.Error("Failed to persist optimization run",
			slog.String("run_id", view.ID),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Info("Optimization run finished",
		slog.String("run_id", view.ID),
		slog.String("state", string(state)),
		slog.Float64("progress", view.Progress),
	)
}

func (r *Registry) publish(topic bus.Topic, rn *run) {
	view := rn.snapshot()

	r.publisher.Publish(topic, LifecyclePayload{
		RunID: view.ID,
		State: view.State,
		Date:  view.Date,
		Shift: view.Shift,
		Error: view.Error,
	})
}

func (rn *run) snapshot() RunView {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	return rn.view
}

func (rn *run) update(fn func(*RunView)) {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	fn(&rn.view)
}

func withDefaults(p Params) Params {
	defaults := DefaultParams()

	if p.PopulationSize == 0 {
		p.PopulationSize = defaults.PopulationSize
	}

	if p.Generations == 0 {
		p.Generations = defaults.Generations
	}

	if p.MutationRate == 0 {
		p.MutationRate = defaults.MutationRate
	}

	if p.CrossoverRate == 0 {
		p.CrossoverRate = defaults.CrossoverRate
	}

	if p.ElitismRate == 0 {
		p.ElitismRate = defaults.ElitismRate
	}

	if p.MinTrainsets == 0 {
		p.MinTrainsets = defaults.MinTrainsets
	}

	if p.MaxTrainsets == 0 {
		p.MaxTrainsets = defaults.MaxTrainsets
	}

	return p
}
