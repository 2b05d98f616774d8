// Package simulator answers what-if questions: apply hypothetical overlays
// to a cloned fleet snapshot, rerun the decision engine, and compare each
// scenario's outcome against the unmodified baseline. The store is never
// written to.
package simulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inductor-io/inductor/internal/fleet"
)

// Sentinel errors.
var (
	// ErrUnknownModification is returned for a modification kind outside
	// the typed set.
	ErrUnknownModification = errors.New("unknown modification kind")

	// ErrTrainsetNotFound is returned when an overlay targets a trainset
	// absent from the snapshot.
	ErrTrainsetNotFound = errors.New("modification targets unknown trainset")

	// ErrNoScenarios is returned for a simulation without scenarios.
	ErrNoScenarios = errors.New("simulation requires at least one scenario")

	// ErrSimulationNotFound is returned for an unknown simulation id.
	ErrSimulationNotFound = errors.New("simulation not found")
)

// ModificationKind selects which overlay fields apply.
type ModificationKind string

// Modification kinds.
const (
	ModifyFitness  ModificationKind = "fitness"
	ModifyJobCard  ModificationKind = "jobcard"
	ModifyTrainset ModificationKind = "trainset"
)

type (
	// Modification is one typed overlay. Overlays within a scenario apply
	// in declaration order; later overlays see the effects of earlier ones.
	Modification struct {
		Kind       ModificationKind `json:"kind"`
		TrainsetID string           `json:"trainset_id"`

		// fitness overlay
		CertificateStatus *fleet.CertificateStatus `json:"certificate_status,omitempty"`
		ExpiresAt         *time.Time               `json:"expires_at,omitempty"`

		// jobcard overlay
		AddJobCard    *JobCardSpec `json:"add_job_card,omitempty"`
		CloseOpenCards bool        `json:"close_open_cards,omitempty"`

		// trainset overlay
		Status         *fleet.Status `json:"status,omitempty"`
		CurrentMileage *float64      `json:"current_mileage,omitempty"`
		Location       *string       `json:"location,omitempty"`
	}

	// JobCardSpec describes a hypothetical open work order.
	JobCardSpec struct {
		Title    string                `json:"title"`
		Priority fleet.JobCardPriority `json:"priority"`
		Category string                `json:"category,omitempty"`
	}

	// Scenario is a named bundle of overlays evaluated as one alternative.
	Scenario struct {
		Name          string         `json:"name"`
		Modifications []Modification `json:"modifications"`
	}
)

// apply mutates the cloned snapshot in place.
func (m *Modification) apply(snapshot *fleet.Context) error {
	if !hasTrainset(snapshot, m.TrainsetID) {
		return fmt.Errorf("%w: %s", ErrTrainsetNotFound, m.TrainsetID)
	}

	switch m.Kind {
	case ModifyFitness:
		return m.applyFitness(snapshot)
	case ModifyJobCard:
		return m.applyJobCard(snapshot)
	case ModifyTrainset:
		return m.applyTrainset(snapshot)
	}

	return fmt.Errorf("%w: %q", ErrUnknownModification, m.Kind)
}

func (m *Modification) applyFitness(snapshot *fleet.Context) error {
	found := false

	for i := range snapshot.Certificates {
		if snapshot.Certificates[i].TrainsetID != m.TrainsetID {
			continue
		}

		found = true

		if m.CertificateStatus != nil {
			snapshot.Certificates[i].Status = *m.CertificateStatus
		}

		if m.ExpiresAt != nil {
			snapshot.Certificates[i].ExpiresAt = *m.ExpiresAt
		}
	}

	// A trainset without any certificate gains a synthetic one so the
	// scenario can model a fresh issuance.
	if !found && m.CertificateStatus != nil {
		cert := fleet.FitnessCertificate{
			ID:         uuid.NewString(),
			TrainsetID: m.TrainsetID,
			IssuedAt:   snapshot.TakenAt,
			Status:     *m.CertificateStatus,
		}

		if m.ExpiresAt != nil {
			cert.ExpiresAt = *m.ExpiresAt
		} else {
			cert.ExpiresAt = snapshot.TakenAt.Add(365 * 24 * time.Hour)
		}

		snapshot.Certificates = append(snapshot.Certificates, cert)
	}

	return nil
}

func (m *Modification) applyJobCard(snapshot *fleet.Context) error {
	if m.CloseOpenCards {
		now := snapshot.TakenAt

		for i := range snapshot.JobCards {
			card := &snapshot.JobCards[i]
			if card.TrainsetID == m.TrainsetID && card.Status.IsOpen() {
				card.Status = fleet.JobCardCompleted
				card.CompletedAt = &now
			}
		}
	}

	if m.AddJobCard != nil {
		snapshot.JobCards = append(snapshot.JobCards, fleet.JobCard{
			ID:         uuid.NewString(),
			TrainsetID: m.TrainsetID,
			Title:      m.AddJobCard.Title,
			Priority:   m.AddJobCard.Priority,
			Status:     fleet.JobCardOpen,
			Category:   m.AddJobCard.Category,
		})
	}

	return nil
}

func (m *Modification) applyTrainset(snapshot *fleet.Context) error {
	for i := range snapshot.Trainsets {
		ts := &snapshot.Trainsets[i]
		if ts.ID != m.TrainsetID {
			continue
		}

		if m.Status != nil {
			ts.Status = *m.Status
		}

		if m.CurrentMileage != nil {
			ts.CurrentMileage = *m.CurrentMileage
		}

		if m.Location != nil {
			ts.Location = *m.Location
		}

		return ts.Validate()
	}

	return nil
}

func hasTrainset(snapshot *fleet.Context, id string) bool {
	for i := range snapshot.Trainsets {
		if snapshot.Trainsets[i].ID == id {
			return true
		}
	}

	return false
}
