package decision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/rules"
)

var testNow = time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

// healthySnapshot builds n trainsets with valid certificates, no open work
// orders, fresh cleaning, and depot stabling.
func healthySnapshot(n int) *fleet.Context {
	snapshot := &fleet.Context{
		Date:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:   fleet.ShiftMorning,
		TakenAt: testNow,
	}

	cleaned := testNow.Add(-24 * time.Hour)
	nextMaint := testNow.Add(30 * 24 * time.Hour)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("ts-%03d", i+1)

		snapshot.Trainsets = append(snapshot.Trainsets, fleet.Trainset{
			ID:              id,
			Number:          fmt.Sprintf("KM-%03d", i+1),
			Status:          fleet.StatusAvailable,
			Depot:           "muttom",
			Location:        "muttom",
			CurrentMileage:  50000,
			TotalMileage:    120000,
			LastCleaning:    &cleaned,
			NextMaintenance: &nextMaint,
			IsActive:        true,
		})

		snapshot.Certificates = append(snapshot.Certificates, fleet.FitnessCertificate{
			ID:         "cert-" + id,
			TrainsetID: id,
			IssuedAt:   testNow.Add(-300 * 24 * time.Hour),
			ExpiresAt:  testNow.Add(60 * 24 * time.Hour),
			Status:     fleet.CertificateValid,
		})
	}

	return snapshot
}

// expireCertificate rewrites a trainset's certificate to be past its expiry.
func expireCertificate(snapshot *fleet.Context, trainsetID string) {
	for i := range snapshot.Certificates {
		if snapshot.Certificates[i].TrainsetID == trainsetID {
			snapshot.Certificates[i].ExpiresAt = testNow.Add(-24 * time.Hour)
		}
	}
}

func newTestEngine(tb testing.TB, store Store) *Engine {
	tb.Helper()

	logger := slog.New(slog.DiscardHandler)

	return NewEngine(store, bus.New(logger), logger)
}

type fakeStore struct {
	snapshot  *fleet.Context
	saved     []*Decision
	schedules []*fleet.Schedule
	err       error
}

func (f *fakeStore) Snapshot(_ context.Context, _ time.Time, _ fleet.Shift) (*fleet.Context, error) {
	return f.snapshot, f.err
}

func (f *fakeStore) SaveDecision(_ context.Context, d *Decision) error {
	f.saved = append(f.saved, d)

	return f.err
}

func (f *fakeStore) SaveSchedule(_ context.Context, schedule *fleet.Schedule) error {
	f.schedules = append(f.schedules, schedule)

	return f.err
}

func TestEvaluateHealthyFleet(t *testing.T) {
	engine := newTestEngine(t, nil)

	decision, err := engine.Evaluate(healthySnapshot(20))
	require.NoError(t, err)

	assert.Len(t, decision.Ranked, 20)
	assert.Empty(t, decision.Conflicts)
	assert.InDelta(t, 100.0, decision.Confidence, 0.01)
	assert.NotEmpty(t, decision.InputsHash)

	for _, row := range decision.Ranked {
		assert.Equal(t, InductionReady, row.Readiness, "trainset %s", row.TrainsetID)
		assert.True(t, row.Eligible)
		assert.GreaterOrEqual(t, row.Composite, 80.0)
	}

	// Ranks are contiguous from 1.
	for i, row := range decision.Ranked {
		assert.Equal(t, i+1, row.Rank)
	}
}

func TestEvaluateEmptyContext(t *testing.T) {
	engine := newTestEngine(t, nil)

	_, err := engine.Evaluate(&fleet.Context{TakenAt: testNow})
	require.ErrorIs(t, err, ErrContextEmpty)
}

func TestEvaluateExpiredCertificateIsNotReady(t *testing.T) {
	snapshot := healthySnapshot(20)
	expireCertificate(snapshot, "ts-001")

	engine := newTestEngine(t, nil)

	decision, err := engine.Evaluate(snapshot)
	require.NoError(t, err)

	var row *RankedTrainset

	for i := range decision.Ranked {
		if decision.Ranked[i].TrainsetID == "ts-001" {
			row = &decision.Ranked[i]
		}
	}

	require.NotNil(t, row)
	assert.Equal(t, NotReady, row.Readiness)
	assert.False(t, row.Eligible)
	assert.Zero(t, row.RuleScores[rules.RuleCertificate])

	// The expired certificate surfaces as a CRITICAL key factor.
	var critical bool

	for _, factor := range decision.KeyFactors {
		if factor.Factor == "fitness_certificates" && factor.Impact == rules.TagCritical {
			critical = true
		}
	}

	assert.True(t, critical, "expected a critical fitness_certificates key factor")

	// NOT_READY rows rank below every ready row.
	assert.Equal(t, "ts-001", decision.Ranked[len(decision.Ranked)-1].TrainsetID)
}

func TestEvaluateCapacityConflict(t *testing.T) {
	snapshot := healthySnapshot(16)

	for _, id := range []string{"ts-001", "ts-002", "ts-003", "ts-004"} {
		expireCertificate(snapshot, id)
	}

	engine := newTestEngine(t, nil)

	decision, err := engine.Evaluate(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 12, decision.ReadyCount())

	var capacity *Conflict

	for i := range decision.Conflicts {
		if decision.Conflicts[i].Type == ConflictCapacity {
			capacity = &decision.Conflicts[i]
		}
	}

	require.NotNil(t, capacity, "expected a CAPACITY conflict")
	assert.Equal(t, SeverityHigh, capacity.Severity)
	assert.Len(t, capacity.TrainsetIDs, 12)

	// Capacity shortfall carries a high-priority recommendation.
	var shortfall bool

	for _, rec := range decision.Recommendations {
		if rec.Type == "capacity_shortfall" {
			shortfall = true
			assert.Equal(t, SeverityHigh, rec.Priority)
		}
	}

	assert.True(t, shortfall)
}

func TestEvaluateDeterministic(t *testing.T) {
	snapshot := healthySnapshot(20)
	expireCertificate(snapshot, "ts-007")

	engine := newTestEngine(t, nil)

	first, err := engine.Evaluate(snapshot)
	require.NoError(t, err)

	second, err := engine.Evaluate(snapshot)
	require.NoError(t, err)

	assert.Equal(t, first.InputsHash, second.InputsHash)
	assert.Equal(t, first.Confidence, second.Confidence)
	require.Len(t, second.Ranked, len(first.Ranked))

	for i := range first.Ranked {
		assert.Equal(t, first.Ranked[i].TrainsetID, second.Ranked[i].TrainsetID)
		assert.Equal(t, first.Ranked[i].Composite, second.Ranked[i].Composite)
		assert.Equal(t, first.Ranked[i].Readiness, second.Ranked[i].Readiness)
	}
}

func TestEvaluateMaintenanceWindowRecommendation(t *testing.T) {
	snapshot := healthySnapshot(20)

	soon := testNow.Add(48 * time.Hour)
	snapshot.Trainsets[4].NextMaintenance = &soon

	engine := newTestEngine(t, nil)

	decision, err := engine.Evaluate(snapshot)
	require.NoError(t, err)

	var rec *Recommendation

	for i := range decision.Recommendations {
		if decision.Recommendations[i].Type == "maintenance_window" {
			rec = &decision.Recommendations[i]
		}
	}

	require.NotNil(t, rec, "expected a maintenance_window recommendation")
	assert.Contains(t, rec.TrainsetIDs, snapshot.Trainsets[4].ID)
}

func TestGeneratePersistsAndPublishes(t *testing.T) {
	store := &fakeStore{snapshot: healthySnapshot(20)}
	logger := slog.New(slog.DiscardHandler)
	b := bus.New(logger)

	sub, err := b.Subscribe([]bus.Topic{bus.TopicDecisionGenerated, bus.TopicScheduleUpdated}, nil, nil)
	require.NoError(t, err)

	engine := NewEngine(store, b, logger)

	decision, err := engine.Generate(context.Background(), store.snapshot.Date, fleet.ShiftMorning)
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, decision.ID, store.saved[0].ID)

	// The materialized schedule is persisted alongside the decision.
	require.Len(t, store.schedules, 1)
	assert.NotEmpty(t, store.schedules[0].ID)
	assert.Len(t, store.schedules[0].Entries, 20)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, bus.TopicDecisionGenerated, event.Kind)

	payload, ok := event.Payload.(GeneratedPayload)
	require.True(t, ok)
	assert.Equal(t, decision.ID, payload.DecisionID)
	assert.Equal(t, decision.InputsHash, payload.InputsHash)

	updated, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, bus.TopicScheduleUpdated, updated.Kind)

	schedulePayload, ok := updated.Payload.(ScheduleUpdatedPayload)
	require.True(t, ok)
	assert.Equal(t, store.schedules[0].ID, schedulePayload.ScheduleID)
	assert.Equal(t, decision.ID, schedulePayload.DecisionID)
	assert.Equal(t, 20, schedulePayload.Entries)
}

func TestEvaluateAggregatesWarnings(t *testing.T) {
	snapshot := healthySnapshot(20)

	// A certificate inside the 14-day warning horizon raises a rule warning
	// that must roll up to the decision with the trainset number.
	for i := range snapshot.Certificates {
		if snapshot.Certificates[i].TrainsetID == "ts-006" {
			snapshot.Certificates[i].ExpiresAt = testNow.Add(5 * 24 * time.Hour)
		}
	}

	engine := newTestEngine(t, nil)

	decision, err := engine.Evaluate(snapshot)
	require.NoError(t, err)

	require.NotEmpty(t, decision.Warnings)

	var found bool

	for _, warning := range decision.Warnings {
		if strings.Contains(warning, "KM-006") && strings.Contains(warning, "expires") {
			found = true
		}
	}

	assert.True(t, found, "expected an expiry warning attributed to KM-006")
}

func TestGenerateStoreFailure(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("connection refused")}
	engine := newTestEngine(t, store)

	_, err := engine.Generate(context.Background(), testNow, fleet.ShiftMorning)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestBuildSchedule(t *testing.T) {
	snapshot := healthySnapshot(20)
	expireCertificate(snapshot, "ts-003")

	engine := newTestEngine(t, nil)

	decision, err := engine.Evaluate(snapshot)
	require.NoError(t, err)

	schedule := decision.BuildSchedule(15)
	require.NoError(t, schedule.Validate())
	require.Len(t, schedule.Entries, 20)

	var inService, standby int

	for _, entry := range schedule.Entries {
		switch entry.Decision {
		case fleet.DecideInService:
			inService++
		case fleet.DecideStandby:
			standby++
		case fleet.DecideMaintenance:
			assert.Equal(t, "ts-003", entry.TrainsetID)
		}
	}

	assert.Equal(t, 15, inService)
	assert.Equal(t, 4, standby)
}
