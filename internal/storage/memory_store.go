package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
)

// MemoryFleetStore is the in-memory FleetStore. It mirrors the PostgreSQL
// store's semantics exactly, including the guarded status update, so tests
// and single-node trials exercise the same contract.
type MemoryFleetStore struct {
	mu            sync.RWMutex
	trainsets     map[string]fleet.Trainset
	certificates  map[string]fleet.FitnessCertificate
	jobCards      map[string]fleet.JobCard
	branding      map[string]fleet.BrandingRecord
	cleaningSlots map[string]fleet.CleaningSlot
	schedules     map[string]fleet.Schedule
	decisions     map[string]decision.Decision
	runs          map[string]optimizer.RunView
	audits        []fleet.StatusAudit
}

// NewMemoryFleetStore creates an empty in-memory store.
func NewMemoryFleetStore() *MemoryFleetStore {
	return &MemoryFleetStore{
		trainsets:     make(map[string]fleet.Trainset),
		certificates:  make(map[string]fleet.FitnessCertificate),
		jobCards:      make(map[string]fleet.JobCard),
		branding:      make(map[string]fleet.BrandingRecord),
		cleaningSlots: make(map[string]fleet.CleaningSlot),
		schedules:     make(map[string]fleet.Schedule),
		decisions:     make(map[string]decision.Decision),
		runs:          make(map[string]optimizer.RunView),
	}
}

// Snapshot implements FleetStore. Collections are copied; callers can never
// observe later writes through a snapshot.
func (s *MemoryFleetStore) Snapshot(_ context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &fleet.Context{
		Date:    date,
		Shift:   shift,
		TakenAt: date,
	}

	for _, ts := range s.trainsets {
		snapshot.Trainsets = append(snapshot.Trainsets, ts)
	}

	sort.Slice(snapshot.Trainsets, func(i, j int) bool {
		return snapshot.Trainsets[i].ID < snapshot.Trainsets[j].ID
	})

	for _, cert := range s.certificates {
		snapshot.Certificates = append(snapshot.Certificates, cert)
	}

	sort.Slice(snapshot.Certificates, func(i, j int) bool {
		return snapshot.Certificates[i].ID < snapshot.Certificates[j].ID
	})

	for _, card := range s.jobCards {
		snapshot.JobCards = append(snapshot.JobCards, card)
	}

	sort.Slice(snapshot.JobCards, func(i, j int) bool {
		return snapshot.JobCards[i].ID < snapshot.JobCards[j].ID
	})

	for _, record := range s.branding {
		snapshot.Branding = append(snapshot.Branding, record)
	}

	sort.Slice(snapshot.Branding, func(i, j int) bool {
		return snapshot.Branding[i].ID < snapshot.Branding[j].ID
	})

	for _, slot := range s.cleaningSlots {
		slot.AssignedIDs = append([]string(nil), slot.AssignedIDs...)
		snapshot.CleaningSlots = append(snapshot.CleaningSlots, slot)
	}

	sort.Slice(snapshot.CleaningSlots, func(i, j int) bool {
		return snapshot.CleaningSlots[i].ID < snapshot.CleaningSlots[j].ID
	})

	for _, schedule := range s.schedules {
		if !schedule.Date.Before(date) {
			continue
		}

		entries := make([]fleet.ScheduleEntry, len(schedule.Entries))

		for i, entry := range schedule.Entries {
			entry.Reasons = append([]string(nil), entry.Reasons...)
			entry.Conflicts = append([]string(nil), entry.Conflicts...)
			entries[i] = entry
		}

		schedule.Entries = entries
		snapshot.PriorSchedules = append(snapshot.PriorSchedules, schedule)
	}

	sort.Slice(snapshot.PriorSchedules, func(i, j int) bool {
		a, b := snapshot.PriorSchedules[i], snapshot.PriorSchedules[j]

		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}

		return a.ID < b.ID
	})

	if len(snapshot.PriorSchedules) > priorScheduleLimit {
		snapshot.PriorSchedules = snapshot.PriorSchedules[:priorScheduleLimit]
	}

	return snapshot, nil
}

// UpsertTrainset implements FleetStore.
func (s *MemoryFleetStore) UpsertTrainset(_ context.Context, ts fleet.Trainset) error {
	if err := ts.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trainsets[ts.ID] = ts

	return nil
}

// UpsertCertificate implements FleetStore.
func (s *MemoryFleetStore) UpsertCertificate(_ context.Context, cert fleet.FitnessCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.certificates[cert.ID] = cert

	return nil
}

// UpsertJobCard implements FleetStore.
func (s *MemoryFleetStore) UpsertJobCard(_ context.Context, card fleet.JobCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobCards[card.ID] = card

	return nil
}

// UpsertBranding implements FleetStore.
func (s *MemoryFleetStore) UpsertBranding(_ context.Context, record fleet.BrandingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.branding[record.ID] = record

	return nil
}

// UpsertCleaningSlot implements FleetStore.
func (s *MemoryFleetStore) UpsertCleaningSlot(_ context.Context, slot fleet.CleaningSlot) error {
	if err := slot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleaningSlots[slot.ID] = slot

	return nil
}

// UpdateTrainsetStatus implements FleetStore. The update is guarded on the
// caller's observed status so concurrent sweeps cannot double-apply.
func (s *MemoryFleetStore) UpdateTrainsetStatus(_ context.Context, id string, from, to fleet.Status, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.trainsets[id]
	if !ok {
		return fmt.Errorf("%w: trainset %s", ErrNotFound, id)
	}

	if ts.Status != from {
		return fmt.Errorf("%w: trainset %s is %s, expected %s", ErrConflict, id, ts.Status, from)
	}

	ts.Status = to
	s.trainsets[id] = ts

	return nil
}

// StampCleaning implements FleetStore.
func (s *MemoryFleetStore) StampCleaning(_ context.Context, id string, last, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.trainsets[id]
	if !ok {
		return fmt.Errorf("%w: trainset %s", ErrNotFound, id)
	}

	ts.LastCleaning = &last
	ts.NextCleaning = &next
	s.trainsets[id] = ts

	return nil
}

// SaveAudit implements FleetStore.
func (s *MemoryFleetStore) SaveAudit(_ context.Context, audit fleet.StatusAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audits = append(s.audits, audit)

	return nil
}

// ListAudits implements FleetStore.
func (s *MemoryFleetStore) ListAudits(_ context.Context, trainsetID string) ([]fleet.StatusAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var audits []fleet.StatusAudit

	for _, audit := range s.audits {
		if audit.TrainsetID == trainsetID {
			audits = append(audits, audit)
		}
	}

	sort.Slice(audits, func(i, j int) bool {
		return audits[i].OccurredAt.After(audits[j].OccurredAt)
	})

	return audits, nil
}

// SaveDecision implements FleetStore.
func (s *MemoryFleetStore) SaveDecision(_ context.Context, d *decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions[d.ID] = *d

	return nil
}

// GetDecision implements FleetStore.
func (s *MemoryFleetStore) GetDecision(_ context.Context, id string) (*decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decisions[id]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", ErrNotFound, id)
	}

	return &d, nil
}

// SaveSchedule implements FleetStore.
func (s *MemoryFleetStore) SaveSchedule(_ context.Context, schedule *fleet.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules[schedule.ID] = *schedule

	return nil
}

// SaveRun implements FleetStore.
func (s *MemoryFleetStore) SaveRun(_ context.Context, view optimizer.RunView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[view.ID] = view

	return nil
}

// GetRun implements FleetStore.
func (s *MemoryFleetStore) GetRun(_ context.Context, id string) (optimizer.RunView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, ok := s.runs[id]
	if !ok {
		return optimizer.RunView{}, fmt.Errorf("%w: optimization run %s", ErrNotFound, id)
	}

	return view, nil
}

// Close implements FleetStore. The memory store holds no resources.
func (s *MemoryFleetStore) Close() error {
	return nil
}
