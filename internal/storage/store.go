package storage

import (
	"context"
	"errors"
	"time"

	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
	"github.com/inductor-io/inductor/internal/simulator"
	"github.com/inductor-io/inductor/internal/statusloop"
)

// Sentinel errors for fleet storage operations.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a guarded update observes a state other
	// than the one the caller asserted.
	ErrConflict = errors.New("entity state conflict")
)

// snapshotTimeout caps how long assembling a fleet snapshot may take.
const snapshotTimeout = 5 * time.Second

// priorScheduleLimit caps how many past schedules a snapshot carries for
// stabling continuity, newest first.
const priorScheduleLimit = 30

// FleetStore is the persistence surface of the induction core. The memory
// and PostgreSQL implementations are interchangeable; both return value
// snapshots, never live references into their own state.
type FleetStore interface {
	// Snapshot assembles a self-consistent fleet view for (date, shift).
	Snapshot(ctx context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error)

	// Entity upserts keyed by id.
	UpsertTrainset(ctx context.Context, ts fleet.Trainset) error
	UpsertCertificate(ctx context.Context, cert fleet.FitnessCertificate) error
	UpsertJobCard(ctx context.Context, card fleet.JobCard) error
	UpsertBranding(ctx context.Context, record fleet.BrandingRecord) error
	UpsertCleaningSlot(ctx context.Context, slot fleet.CleaningSlot) error

	// UpdateTrainsetStatus applies a status change guarded on the expected
	// current status; a mismatch returns ErrConflict.
	UpdateTrainsetStatus(ctx context.Context, id string, from, to fleet.Status, reason string, at time.Time) error

	// StampCleaning records last/next cleaning dates after a rotation.
	StampCleaning(ctx context.Context, id string, last, next time.Time) error

	// SaveAudit appends one transition audit row.
	SaveAudit(ctx context.Context, audit fleet.StatusAudit) error

	// ListAudits returns the audit trail for a trainset, newest first.
	ListAudits(ctx context.Context, trainsetID string) ([]fleet.StatusAudit, error)

	// SaveDecision persists an immutable decision audit record.
	SaveDecision(ctx context.Context, d *decision.Decision) error

	// GetDecision loads a decision by id.
	GetDecision(ctx context.Context, id string) (*decision.Decision, error)

	// SaveSchedule persists a ranked induction plan.
	SaveSchedule(ctx context.Context, schedule *fleet.Schedule) error

	// SaveRun persists the final view of an optimization run.
	SaveRun(ctx context.Context, view optimizer.RunView) error

	// GetRun loads a persisted optimization run by id.
	GetRun(ctx context.Context, id string) (optimizer.RunView, error)

	// Close releases the store's resources. Safe to call multiple times.
	Close() error
}

// Compile-time assertions that both stores satisfy every consumer-side
// interface. Early compile errors beat runtime surprises when a consumer
// contract changes.
var (
	_ FleetStore = (*MemoryFleetStore)(nil)
	_ FleetStore = (*PostgresFleetStore)(nil)

	_ decision.Store          = (FleetStore)(nil)
	_ optimizer.Store         = (FleetStore)(nil)
	_ statusloop.Store        = (FleetStore)(nil)
	_ simulator.SnapshotStore = (FleetStore)(nil)
)
