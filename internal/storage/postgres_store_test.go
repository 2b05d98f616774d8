package storage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/inductor-io/inductor/internal/config"
	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
	"github.com/inductor-io/inductor/internal/rules"
)

// setupPostgresStore starts a disposable PostgreSQL container with the real
// migrations applied and returns a store backed by it.
func setupPostgresStore(t *testing.T) *PostgresFleetStore {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn, err := NewConnection(NewConfig(testDB.ConnectionURL))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewPostgresFleetStore(conn, slog.New(slog.DiscardHandler))
}

func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store := setupPostgresStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	next := now.Add(30 * 24 * time.Hour)

	t.Run("snapshot round trip", func(t *testing.T) {
		err := store.UpsertTrainset(ctx, fleet.Trainset{
			ID:              "ts-001",
			Number:          "TS-001",
			Manufacturer:    "Alstom",
			Model:           "Metropolis",
			YearBuilt:       2019,
			Capacity:        975,
			MaxSpeed:        80,
			Status:          fleet.StatusAvailable,
			Depot:           "Muttom",
			Location:        "Bay 4",
			CurrentMileage:  48_000,
			TotalMileage:    240_000,
			NextMaintenance: &next,
			IsActive:        true,
		})
		require.NoError(t, err)

		err = store.UpsertCertificate(ctx, fleet.FitnessCertificate{
			ID:               "cert-001",
			TrainsetID:       "ts-001",
			IssuedAt:         now.Add(-180 * 24 * time.Hour),
			ExpiresAt:        now.Add(180 * 24 * time.Hour),
			Status:           fleet.CertificateValid,
			IssuingAuthority: "CMRS",
		})
		require.NoError(t, err)

		hours := 8.0

		err = store.UpsertJobCard(ctx, fleet.JobCard{
			ID:             "jc-001",
			TrainsetID:     "ts-001",
			ExternalID:     "WO-42",
			Title:          "HVAC filter swap",
			Priority:       fleet.PriorityLow,
			Status:         fleet.JobCardOpen,
			Category:       "preventive",
			EstimatedHours: &hours,
		})
		require.NoError(t, err)

		err = store.UpsertBranding(ctx, fleet.BrandingRecord{
			ID:                "br-001",
			TrainsetID:        "ts-001",
			Campaign:          "SkyFiber",
			Priority:          60,
			TargetHoursPerDay: 10,
			DeliveredHours:    120,
			ContractStart:     now.Add(-30 * 24 * time.Hour),
			ContractEnd:       now.Add(60 * 24 * time.Hour),
		})
		require.NoError(t, err)

		err = store.UpsertCleaningSlot(ctx, fleet.CleaningSlot{
			ID:          "slot-001",
			Bay:         "bay-1",
			StartsAt:    now.Add(18 * time.Hour),
			EndsAt:      now.Add(20 * time.Hour),
			Capacity:    2,
			AssignedIDs: []string{"ts-001"},
		})
		require.NoError(t, err)

		snapshot, err := store.Snapshot(ctx, now, fleet.ShiftMorning)
		require.NoError(t, err)

		require.Len(t, snapshot.Trainsets, 1)
		assert.Equal(t, "ts-001", snapshot.Trainsets[0].ID)
		assert.Equal(t, fleet.StatusAvailable, snapshot.Trainsets[0].Status)
		require.NotNil(t, snapshot.Trainsets[0].NextMaintenance)

		require.Len(t, snapshot.Certificates, 1)
		assert.True(t, snapshot.Certificates[0].IsValidAt(now))

		require.Len(t, snapshot.JobCards, 1)
		require.NotNil(t, snapshot.JobCards[0].EstimatedHours)
		assert.InDelta(t, 8.0, *snapshot.JobCards[0].EstimatedHours, 0.001)

		require.Len(t, snapshot.Branding, 1)
		require.Len(t, snapshot.CleaningSlots, 1)
		assert.Equal(t, []string{"ts-001"}, snapshot.CleaningSlots[0].AssignedIDs)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		ts := fleet.Trainset{
			ID:           "ts-002",
			Number:       "TS-002",
			Status:       fleet.StatusAvailable,
			TotalMileage: 100_000,
			IsActive:     true,
		}

		require.NoError(t, store.UpsertTrainset(ctx, ts))

		ts.Location = "Bay 7"
		require.NoError(t, store.UpsertTrainset(ctx, ts))

		snapshot, err := store.Snapshot(ctx, now, fleet.ShiftMorning)
		require.NoError(t, err)

		var found *fleet.Trainset

		for i := range snapshot.Trainsets {
			if snapshot.Trainsets[i].ID == "ts-002" {
				found = &snapshot.Trainsets[i]
			}
		}

		require.NotNil(t, found)
		assert.Equal(t, "Bay 7", found.Location)
	})

	t.Run("guarded status update", func(t *testing.T) {
		err := store.UpdateTrainsetStatus(ctx, "ts-001", fleet.StatusAvailable, fleet.StatusInService, "dispatch", now)
		require.NoError(t, err)

		err = store.UpdateTrainsetStatus(ctx, "ts-001", fleet.StatusAvailable, fleet.StatusCleaning, "stale sweep", now)
		require.ErrorIs(t, err, ErrConflict)

		err = store.UpdateTrainsetStatus(ctx, "ts-404", fleet.StatusAvailable, fleet.StatusCleaning, "missing", now)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("stamp cleaning", func(t *testing.T) {
		err := store.StampCleaning(ctx, "ts-001", now, now.Add(7*24*time.Hour))
		require.NoError(t, err)

		snapshot, err := store.Snapshot(ctx, now, fleet.ShiftMorning)
		require.NoError(t, err)

		require.NotNil(t, snapshot.Trainsets[0].LastCleaning)
		assert.WithinDuration(t, now, *snapshot.Trainsets[0].LastCleaning, time.Second)

		err = store.StampCleaning(ctx, "ts-404", now, now)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("audits newest first", func(t *testing.T) {
		for i, id := range []string{"aud-1", "aud-2", "aud-3"} {
			err := store.SaveAudit(ctx, fleet.StatusAudit{
				ID:         id,
				TrainsetID: "ts-001",
				FromStatus: fleet.StatusAvailable,
				ToStatus:   fleet.StatusCleaning,
				Reason:     "rotation",
				Applied:    true,
				OccurredAt: now.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		audits, err := store.ListAudits(ctx, "ts-001")
		require.NoError(t, err)
		require.Len(t, audits, 3)
		assert.Equal(t, "aud-3", audits[0].ID)
		assert.Equal(t, "aud-1", audits[2].ID)
	})

	t.Run("decision payload round trip", func(t *testing.T) {
		d := &decision.Decision{
			ID:          "dec-001",
			GeneratedAt: now,
			Date:        now,
			Shift:       fleet.ShiftMorning,
			Ranked: []decision.RankedTrainset{
				{
					TrainsetID: "ts-001",
					Number:     "TS-001",
					Rank:       1,
					Composite:  91.5,
					Readiness:  decision.InductionReady,
					RuleScores: map[rules.Rule]float64{rules.RuleCertificate: 100},
					Eligible:   true,
				},
			},
			Confidence: 95,
			InputsHash: "abc123",
		}

		require.NoError(t, store.SaveDecision(ctx, d))

		// Decisions are immutable; a duplicate save is a silent no-op.
		require.NoError(t, store.SaveDecision(ctx, d))

		got, err := store.GetDecision(ctx, "dec-001")
		require.NoError(t, err)
		assert.Equal(t, d.InputsHash, got.InputsHash)
		require.Len(t, got.Ranked, 1)
		assert.InDelta(t, 91.5, got.Ranked[0].Composite, 0.001)
		assert.InDelta(t, 100, got.Ranked[0].RuleScores[rules.RuleCertificate], 0.001)

		_, err = store.GetDecision(ctx, "dec-404")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("schedule save and prior lookback", func(t *testing.T) {
		err := store.SaveSchedule(ctx, &fleet.Schedule{
			ID:    "sch-001",
			Date:  now,
			Shift: fleet.ShiftMorning,
			Entries: []fleet.ScheduleEntry{
				{TrainsetID: "ts-001", Decision: fleet.DecideInService, Rank: 1},
				{TrainsetID: "ts-002", Decision: fleet.DecideStandby, Rank: 2},
			},
		})
		require.NoError(t, err)

		// The saved plan surfaces as a prior schedule for later dates.
		snapshot, err := store.Snapshot(ctx, now.Add(24*time.Hour), fleet.ShiftMorning)
		require.NoError(t, err)
		require.NotEmpty(t, snapshot.PriorSchedules)
		assert.Equal(t, "sch-001", snapshot.PriorSchedules[0].ID)
		require.Len(t, snapshot.PriorSchedules[0].Entries, 2)
		assert.Equal(t, fleet.DecideInService, snapshot.PriorSchedules[0].Entries[0].Decision)

		// A same-day plan is not prior.
		sameDay, err := store.Snapshot(ctx, now, fleet.ShiftMorning)
		require.NoError(t, err)
		assert.Empty(t, sameDay.PriorSchedules)
	})

	t.Run("run payload round trip", func(t *testing.T) {
		view := optimizer.RunView{
			ID:          "run-001",
			State:       optimizer.StateCompleted,
			Progress:    1,
			Date:        now,
			Shift:       fleet.ShiftMorning,
			Params:      optimizer.DefaultParams(),
			SubmittedAt: now,
		}

		require.NoError(t, store.SaveRun(ctx, view))

		view.State = optimizer.StateFailed
		require.NoError(t, store.SaveRun(ctx, view))

		got, err := store.GetRun(ctx, "run-001")
		require.NoError(t, err)
		assert.Equal(t, optimizer.StateFailed, got.State)
		assert.Equal(t, optimizer.DefaultPopulationSize, got.Params.PopulationSize)

		_, err = store.GetRun(ctx, "run-404")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
