package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
)

var storeNow = time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

func seedTrainset(t *testing.T, store FleetStore, id string, status fleet.Status) {
	t.Helper()

	next := storeNow.Add(30 * 24 * time.Hour)

	err := store.UpsertTrainset(context.Background(), fleet.Trainset{
		ID:              id,
		Number:          "TS-" + id,
		Manufacturer:    "Alstom",
		Model:           "Metropolis",
		YearBuilt:       2019,
		Capacity:        975,
		MaxSpeed:        80,
		Status:          status,
		Depot:           "Muttom",
		CurrentMileage:  48_000,
		TotalMileage:    240_000,
		NextMaintenance: &next,
		IsActive:        true,
	})
	require.NoError(t, err)
}

func TestMemoryStoreSnapshotIsIsolated(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	seedTrainset(t, store, "ts-001", fleet.StatusAvailable)
	seedTrainset(t, store, "ts-002", fleet.StatusAvailable)

	snapshot, err := store.Snapshot(ctx, storeNow, fleet.ShiftMorning)
	require.NoError(t, err)
	require.Len(t, snapshot.Trainsets, 2)

	// Later writes must not leak into an already-taken snapshot.
	err = store.UpdateTrainsetStatus(ctx, "ts-001", fleet.StatusAvailable, fleet.StatusMaintenance, "test", storeNow)
	require.NoError(t, err)

	assert.Equal(t, fleet.StatusAvailable, snapshot.Trainsets[0].Status)

	fresh, err := store.Snapshot(ctx, storeNow, fleet.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, fleet.StatusMaintenance, fresh.Trainsets[0].Status)
}

func TestMemoryStoreSnapshotSortsByID(t *testing.T) {
	store := NewMemoryFleetStore()

	seedTrainset(t, store, "ts-003", fleet.StatusAvailable)
	seedTrainset(t, store, "ts-001", fleet.StatusAvailable)
	seedTrainset(t, store, "ts-002", fleet.StatusAvailable)

	snapshot, err := store.Snapshot(context.Background(), storeNow, fleet.ShiftMorning)
	require.NoError(t, err)

	ids := make([]string, 0, len(snapshot.Trainsets))
	for _, ts := range snapshot.Trainsets {
		ids = append(ids, ts.ID)
	}

	assert.Equal(t, []string{"ts-001", "ts-002", "ts-003"}, ids)
}

func TestMemoryStoreUpsertTrainsetValidates(t *testing.T) {
	store := NewMemoryFleetStore()

	err := store.UpsertTrainset(context.Background(), fleet.Trainset{
		ID:             "ts-bad",
		CurrentMileage: 100,
		TotalMileage:   50,
	})

	require.ErrorIs(t, err, fleet.ErrMileageInvariant)
}

func TestMemoryStoreGuardedStatusUpdate(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	seedTrainset(t, store, "ts-001", fleet.StatusAvailable)

	err := store.UpdateTrainsetStatus(ctx, "ts-001", fleet.StatusAvailable, fleet.StatusInService, "dispatch", storeNow)
	require.NoError(t, err)

	// The guard observed AVAILABLE; the trainset is now IN_SERVICE.
	err = store.UpdateTrainsetStatus(ctx, "ts-001", fleet.StatusAvailable, fleet.StatusCleaning, "stale sweep", storeNow)
	require.ErrorIs(t, err, ErrConflict)

	err = store.UpdateTrainsetStatus(ctx, "ts-404", fleet.StatusAvailable, fleet.StatusCleaning, "missing", storeNow)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreStampCleaning(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	seedTrainset(t, store, "ts-001", fleet.StatusAvailable)

	next := storeNow.Add(7 * 24 * time.Hour)

	err := store.StampCleaning(ctx, "ts-001", storeNow, next)
	require.NoError(t, err)

	snapshot, err := store.Snapshot(ctx, storeNow, fleet.ShiftMorning)
	require.NoError(t, err)

	require.NotNil(t, snapshot.Trainsets[0].LastCleaning)
	assert.Equal(t, storeNow, *snapshot.Trainsets[0].LastCleaning)
	require.NotNil(t, snapshot.Trainsets[0].NextCleaning)
	assert.Equal(t, next, *snapshot.Trainsets[0].NextCleaning)

	err = store.StampCleaning(ctx, "ts-404", storeNow, next)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAuditsNewestFirst(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	for i, reason := range []string{"first", "second", "third"} {
		err := store.SaveAudit(ctx, fleet.StatusAudit{
			ID:         reason,
			TrainsetID: "ts-001",
			FromStatus: fleet.StatusAvailable,
			ToStatus:   fleet.StatusCleaning,
			Reason:     reason,
			Applied:    true,
			OccurredAt: storeNow.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	err := store.SaveAudit(ctx, fleet.StatusAudit{
		ID:         "other",
		TrainsetID: "ts-002",
		OccurredAt: storeNow,
	})
	require.NoError(t, err)

	audits, err := store.ListAudits(ctx, "ts-001")
	require.NoError(t, err)
	require.Len(t, audits, 3)

	assert.Equal(t, "third", audits[0].Reason)
	assert.Equal(t, "second", audits[1].Reason)
	assert.Equal(t, "first", audits[2].Reason)
}

func TestMemoryStoreDecisionRoundTrip(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	d := &decision.Decision{
		ID:          "dec-001",
		GeneratedAt: storeNow,
		Date:        storeNow,
		Shift:       fleet.ShiftMorning,
		Confidence:  95,
		InputsHash:  "abc123",
	}

	require.NoError(t, store.SaveDecision(ctx, d))

	got, err := store.GetDecision(ctx, "dec-001")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.InDelta(t, 95, got.Confidence, 0.001)

	// The stored record is a copy, not an alias.
	d.Confidence = 0

	got, err = store.GetDecision(ctx, "dec-001")
	require.NoError(t, err)
	assert.InDelta(t, 95, got.Confidence, 0.001)

	_, err = store.GetDecision(ctx, "dec-404")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreScheduleValidates(t *testing.T) {
	store := NewMemoryFleetStore()

	err := store.SaveSchedule(context.Background(), &fleet.Schedule{
		ID:    "sch-001",
		Date:  storeNow,
		Shift: fleet.ShiftMorning,
		Entries: []fleet.ScheduleEntry{
			{TrainsetID: "ts-001", Decision: fleet.DecideInService, Rank: 1},
			{TrainsetID: "ts-002", Decision: fleet.DecideInService, Rank: 1},
		},
	})

	require.ErrorIs(t, err, fleet.ErrDuplicateRank)
}

func TestMemoryStoreSnapshotCarriesPriorSchedules(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	entries := []fleet.ScheduleEntry{
		{TrainsetID: "ts-001", Decision: fleet.DecideInService, Rank: 1, Reasons: []string{"top ranked"}},
	}

	for i, id := range []string{"sch-002", "sch-001", "sch-003"} {
		require.NoError(t, store.SaveSchedule(ctx, &fleet.Schedule{
			ID:      id,
			Date:    storeNow.Add(time.Duration(-1-i) * 24 * time.Hour),
			Shift:   fleet.ShiftMorning,
			Entries: entries,
		}))
	}

	// A same-day schedule is not "prior" and stays out of the snapshot.
	require.NoError(t, store.SaveSchedule(ctx, &fleet.Schedule{
		ID:      "sch-today",
		Date:    storeNow,
		Shift:   fleet.ShiftMorning,
		Entries: entries,
	}))

	snapshot, err := store.Snapshot(ctx, storeNow, fleet.ShiftMorning)
	require.NoError(t, err)

	require.Len(t, snapshot.PriorSchedules, 3)

	// Newest first.
	assert.Equal(t, "sch-002", snapshot.PriorSchedules[0].ID)
	assert.Equal(t, "sch-001", snapshot.PriorSchedules[1].ID)
	assert.Equal(t, "sch-003", snapshot.PriorSchedules[2].ID)

	// Entries are deep copies; mutating the snapshot never reaches the store.
	snapshot.PriorSchedules[0].Entries[0].Reasons[0] = "mutated"

	fresh, err := store.Snapshot(ctx, storeNow, fleet.ShiftMorning)
	require.NoError(t, err)
	assert.Equal(t, "top ranked", fresh.PriorSchedules[0].Entries[0].Reasons[0])
}

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	store := NewMemoryFleetStore()
	ctx := context.Background()

	view := optimizer.RunView{
		ID:          "run-001",
		State:       optimizer.StateCompleted,
		Progress:    1,
		Date:        storeNow,
		Shift:       fleet.ShiftMorning,
		SubmittedAt: storeNow,
	}

	require.NoError(t, store.SaveRun(ctx, view))

	got, err := store.GetRun(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, optimizer.StateCompleted, got.State)

	_, err = store.GetRun(ctx, "run-404")
	require.ErrorIs(t, err, ErrNotFound)
}
