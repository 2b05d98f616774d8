package decision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/clock"
	"github.com/inductor-io/inductor/internal/config"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/metrics"
	"github.com/inductor-io/inductor/internal/rules"
)

// DefaultMinimumReady is the minimum INDUCTION_READY count required for a
// full service plan; fewer raises a CAPACITY conflict.
const DefaultMinimumReady = 15

// maintenanceDueSoon is the horizon for the maintenance-window
// recommendation.
const maintenanceDueSoon = 3 * 24 * time.Hour

type (
	// Store is the persistence surface the engine needs.
	Store interface {
		Snapshot(ctx context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error)
		SaveDecision(ctx context.Context, decision *Decision) error
		SaveSchedule(ctx context.Context, schedule *fleet.Schedule) error
	}

	// Publisher is the event surface the engine needs.
	Publisher interface {
		Publish(topic bus.Topic, payload any) bus.Event
	}

	// Engine turns a fleet snapshot into a ranked induction decision.
	Engine struct {
		store         Store
		publisher     Publisher
		logger        *slog.Logger
		clk           clock.Clock
		weights       config.ScoringWeights
		cleaningCycle time.Duration
		minReady      int
	}

	// EngineOption configures optional engine behavior.
	EngineOption func(*Engine)

	// GeneratedPayload is the decision.generated event body.
	GeneratedPayload struct {
		DecisionID string      `json:"decision_id"`
		Date       time.Time   `json:"date"`
		Shift      fleet.Shift `json:"shift"`
		ReadyCount int         `json:"ready_count"`
		Conflicts  int         `json:"conflicts"`
		Confidence float64     `json:"confidence"`
		InputsHash string      `json:"inputs_hash"`
	}

	// ScheduleUpdatedPayload is the schedule.updated event body.
	ScheduleUpdatedPayload struct {
		ScheduleID string      `json:"schedule_id"`
		DecisionID string      `json:"decision_id"`
		Date       time.Time   `json:"date"`
		Shift      fleet.Shift `json:"shift"`
		Entries    int         `json:"entries"`
	}
)

// WithWeights overrides the composite scoring weights. The weights must
// already be validated.
func WithWeights(w config.ScoringWeights) EngineOption {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithMinimumReady overrides the CAPACITY conflict threshold.
func WithMinimumReady(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.minReady = n
		}
	}
}

// WithCleaningCycle overrides the cleaning due interval.
func WithCleaningCycle(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.cleaningCycle = d
		}
	}
}

// WithClock substitutes the time source, for tests.
func WithClock(clk clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clk = clk
	}
}

// NewEngine creates a decision engine with default weights and thresholds.
func NewEngine(store Store, publisher Publisher, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		publisher:     publisher,
		logger:        logger,
		clk:           clock.System(),
		weights:       config.DefaultScoringWeights(),
		cleaningCycle: rules.DefaultCleaningCycle,
		minReady:      DefaultMinimumReady,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Generate loads the snapshot for (date, shift), evaluates it, persists the
// decision, and publishes decision.generated.
func (e *Engine) Generate(ctx context.Context, date time.Time, shift fleet.Shift) (*Decision, error) {
	snapshot, err := e.store.Snapshot(ctx, date, shift)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	decision, err := e.Evaluate(snapshot)
	if err != nil {
		return nil, err
	}

	if err := e.store.SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("%w: failed to save decision: %w", ErrStoreUnavailable, err)
	}

	schedule := decision.BuildSchedule(e.minReady)
	schedule.ID = uuid.NewString()

	if err := e.store.SaveSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("%w: failed to save schedule: %w", ErrStoreUnavailable, err)
	}

	if e.publisher != nil {
		e.publisher.Publish(bus.TopicDecisionGenerated, GeneratedPayload{
			DecisionID: decision.ID,
			Date:       decision.Date,
			Shift:      decision.Shift,
			ReadyCount: decision.ReadyCount(),
			Conflicts:  len(decision.Conflicts),
			Confidence: decision.Confidence,
			InputsHash: decision.InputsHash,
		})

		e.publisher.Publish(bus.TopicScheduleUpdated, ScheduleUpdatedPayload{
			ScheduleID: schedule.ID,
			DecisionID: decision.ID,
			Date:       schedule.Date,
			Shift:      schedule.Shift,
			Entries:    len(schedule.Entries),
		})
	}

	metrics.DecisionsGenerated.Inc()

	e.logger.Info("Induction decision generated",
		slog.String("decision_id", decision.ID),
		slog.String("date", decision.Date.Format("2006-01-02")),
		slog.String("shift", string(decision.Shift)),
		slog.Int("trainsets", len(decision.Ranked)),
		slog.Int("ready", decision.ReadyCount()),
		slog.Int("conflicts", len(decision.Conflicts)),
		slog.Float64("confidence", decision.Confidence),
	)

	return decision, nil
}

// Evaluate runs the six rules over every active trainset in the snapshot and
// assembles the ranked decision. Evaluate never touches the store, so the
// what-if simulator can call it against overlaid clones. The result is
// deterministic for a given snapshot fingerprint and configuration.
func (e *Engine) Evaluate(snapshot *fleet.Context) (*Decision, error) {
	active := snapshot.ActiveTrainsets()
	if len(active) == 0 {
		return nil, ErrContextEmpty
	}

	params := rules.Params{
		Now:           snapshot.TakenAt,
		CleaningCycle: e.cleaningCycle,
	}
	fleetMean := snapshot.FleetMeanMileage()

	ranked := make([]RankedTrainset, 0, len(active))
	sets := make(map[string]rules.Set, len(active))

	for i := range active {
		ts := &active[i]
		set := rules.Evaluate(ts, snapshot, params)
		sets[ts.ID] = set

		composite := round2(e.composite(&set))

		ranked = append(ranked, RankedTrainset{
			TrainsetID: ts.ID,
			Number:     ts.Number,
			Composite:  composite,
			Readiness:  classify(composite, set.Eligible()),
			RuleScores: scoreMap(&set),
			Eligible:   set.Eligible(),
			MileageDeviation: round2(ts.MileageDeviation(fleetMean)),
			Warnings:   collectWarnings(&set),
		})
	}

	e.sortRanked(ranked, active)

	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	decision := &Decision{
		ID:          uuid.NewString(),
		GeneratedAt: e.clk.Now().UTC(),
		Date:        snapshot.Date,
		Shift:       snapshot.Shift,
		Ranked:      ranked,
		InputsHash:  snapshot.Fingerprint(),
	}

	decision.Warnings = aggregateWarnings(ranked)
	decision.KeyFactors = e.keyFactors(active, snapshot, sets)
	decision.Conflicts = e.conflicts(decision, sets)
	decision.Recommendations = e.recommendations(active, snapshot, sets, decision)
	decision.Confidence = e.confidence(decision, sets)

	return decision, nil
}

// composite folds the six rule scores with the configured weights.
func (e *Engine) composite(set *rules.Set) float64 {
	return set.Certificate.Score*e.weights.Certificate +
		set.WorkOrder.Score*e.weights.WorkOrder +
		set.Branding.Score*e.weights.Branding +
		set.Mileage.Score*e.weights.Mileage +
		set.Cleaning.Score*e.weights.Cleaning +
		set.Stabling.Score*e.weights.Stabling
}

// sortRanked orders by composite descending with deterministic tie-breaks:
// certificate score, then mileage deviation (lower first), then the earlier
// next-maintenance due date, then trainset id.
func (e *Engine) sortRanked(ranked []RankedTrainset, active []fleet.Trainset) {
	nextDue := make(map[string]*time.Time, len(active))
	for i := range active {
		nextDue[active[i].ID] = active[i].NextMaintenance
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}

		if a.RuleScores[rules.RuleCertificate] != b.RuleScores[rules.RuleCertificate] {
			return a.RuleScores[rules.RuleCertificate] > b.RuleScores[rules.RuleCertificate]
		}

		if a.MileageDeviation != b.MileageDeviation {
			return a.MileageDeviation < b.MileageDeviation
		}

		dueA, dueB := nextDue[a.TrainsetID], nextDue[b.TrainsetID]

		switch {
		case dueA != nil && dueB == nil:
			return true
		case dueA == nil && dueB != nil:
			return false
		case dueA != nil && dueB != nil && !dueA.Equal(*dueB):
			return dueA.Before(*dueB)
		}

		return a.TrainsetID < b.TrainsetID
	})
}

func (e *Engine) keyFactors(active []fleet.Trainset, snapshot *fleet.Context, sets map[string]rules.Set) []KeyFactor {
	var factors []KeyFactor

	var expired, expiring, blocked, uncleaned, imbalanced []string

	for i := range active {
		ts := &active[i]
		set := sets[ts.ID]

		if set.Certificate.Tag == rules.TagCritical {
			expired = append(expired, ts.Number)
		} else if set.Certificate.Tag == rules.TagWarning {
			expiring = append(expiring, ts.Number)
		}

		if set.WorkOrder.Tag == rules.TagCritical {
			blocked = append(blocked, ts.Number)
		}

		if set.Cleaning.Score <= 20 {
			uncleaned = append(uncleaned, ts.Number)
		}

		if set.Mileage.Score <= 30 {
			imbalanced = append(imbalanced, ts.Number)
		}
	}

	if len(expired) > 0 {
		factors = append(factors, KeyFactor{
			Factor: "fitness_certificates",
			Impact: rules.TagCritical,
			Description: fmt.Sprintf("%d trainset(s) have an expired or missing fitness certificate: %v",
				len(expired), expired),
		})
	}

	if len(expiring) > 0 {
		factors = append(factors, KeyFactor{
			Factor: "fitness_certificates",
			Impact: rules.TagWarning,
			Description: fmt.Sprintf("%d trainset(s) have certificates expiring within 14 days: %v",
				len(expiring), expiring),
		})
	}

	if len(blocked) > 0 {
		factors = append(factors, KeyFactor{
			Factor: "work_orders",
			Impact: rules.TagCritical,
			Description: fmt.Sprintf("%d trainset(s) carry blocking work orders: %v",
				len(blocked), blocked),
		})
	}

	if len(uncleaned) > 0 {
		factors = append(factors, KeyFactor{
			Factor:      "cleaning",
			Impact:      rules.TagWarning,
			Description: fmt.Sprintf("%d trainset(s) are overdue for cleaning: %v", len(uncleaned), uncleaned),
		})
	}

	if len(imbalanced) > 0 {
		factors = append(factors, KeyFactor{
			Factor: "mileage_balance",
			Impact: rules.TagWarning,
			Description: fmt.Sprintf("%d trainset(s) deviate more than 20%% from the fleet mean mileage of %.0f km: %v",
				len(imbalanced), snapshot.FleetMeanMileage(), imbalanced),
		})
	}

	return factors
}

func (e *Engine) conflicts(decision *Decision, sets map[string]rules.Set) []Conflict {
	var conflicts []Conflict

	if ready := decision.ReadyCount(); ready < e.minReady {
		eligible := decision.EligibleIDs()

		conflicts = append(conflicts, Conflict{
			Type:     ConflictCapacity,
			Severity: SeverityHigh,
			Description: fmt.Sprintf("only %d trainset(s) are induction-ready, %d required for full service",
				ready, e.minReady),
			TrainsetIDs: eligible,
		})
	}

	var critical []string

	for _, row := range decision.Ranked {
		set := sets[row.TrainsetID]
		if set.HasCritical() {
			critical = append(critical, row.TrainsetID)
		}
	}

	if len(critical) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictCriticalRule,
			Severity: SeverityCritical,
			Description: fmt.Sprintf("%d trainset(s) are excluded by critical rule violations",
				len(critical)),
			TrainsetIDs: critical,
		})
	}

	return conflicts
}

func (e *Engine) recommendations(active []fleet.Trainset, snapshot *fleet.Context, sets map[string]rules.Set, decision *Decision) []Recommendation {
	var recs []Recommendation

	now := snapshot.TakenAt

	var dueSoon, cleaningDue, brandingShort []string

	for i := range active {
		ts := &active[i]

		if ts.NextMaintenance != nil {
			until := ts.NextMaintenance.Sub(now)
			if until > 0 && until <= maintenanceDueSoon {
				dueSoon = append(dueSoon, ts.ID)
			}
		}

		set := sets[ts.ID]

		if set.Cleaning.Score <= 20 {
			cleaningDue = append(cleaningDue, ts.ID)
		}

		if set.Branding.Tag == rules.TagWarning {
			brandingShort = append(brandingShort, ts.ID)
		}
	}

	if len(dueSoon) > 0 {
		recs = append(recs, Recommendation{
			Type:     "maintenance_window",
			Priority: SeverityMedium,
			Message: fmt.Sprintf("%d trainset(s) reach their maintenance due date within 3 days; "+
				"schedule depot windows before inducting them", len(dueSoon)),
			TrainsetIDs: dueSoon,
		})
	}

	if len(cleaningDue) > 0 {
		recs = append(recs, Recommendation{
			Type:        "cleaning_rotation",
			Priority:    SeverityLow,
			Message:     fmt.Sprintf("%d trainset(s) are overdue for cleaning; rotate them into tonight's window", len(cleaningDue)),
			TrainsetIDs: cleaningDue,
		})
	}

	if len(brandingShort) > 0 {
		recs = append(recs, Recommendation{
			Type:        "branding_exposure",
			Priority:    SeverityLow,
			Message:     fmt.Sprintf("%d trainset(s) carry campaigns behind on contracted exposure; prefer them for revenue service", len(brandingShort)),
			TrainsetIDs: brandingShort,
		})
	}

	for _, conflict := range decision.Conflicts {
		if conflict.Type == ConflictCapacity {
			recs = append(recs, Recommendation{
				Type:     "capacity_shortfall",
				Priority: SeverityHigh,
				Message: "ready fleet is below the minimum service requirement; " +
					"expedite certificate renewals and close blocking work orders",
			})
		}
	}

	return recs
}

// confidence starts at 100 and deducts a fixed amount per critical rule
// violation and per conflict, so equal inputs always yield an equal figure.
func (e *Engine) confidence(decision *Decision, sets map[string]rules.Set) float64 {
	confidence := 100.0

	for _, row := range decision.Ranked {
		set := sets[row.TrainsetID]
		if set.HasCritical() {
			confidence -= 5
		}
	}

	confidence -= 10 * float64(len(decision.Conflicts))

	if confidence < 0 {
		confidence = 0
	}

	return confidence
}

func classify(composite float64, eligible bool) Readiness {
	switch {
	case !eligible:
		return NotReady
	case composite >= 80:
		return InductionReady
	case composite >= 60:
		return ConditionalReady
	default:
		return RequiresAttention
	}
}

func scoreMap(set *rules.Set) map[rules.Rule]float64 {
	scores := make(map[rules.Rule]float64, 6)

	for _, result := range set.All() {
		scores[result.Rule] = result.Score
	}

	return scores
}

// aggregateWarnings rolls every per-trainset rule warning up to the
// decision, in rank order. Rule warnings already name the trainset.
func aggregateWarnings(ranked []RankedTrainset) []string {
	var warnings []string

	for _, row := range ranked {
		warnings = append(warnings, row.Warnings...)
	}

	return warnings
}

func collectWarnings(set *rules.Set) []string {
	var warnings []string

	for _, result := range set.All() {
		warnings = append(warnings, result.Warnings...)
	}

	return warnings
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
