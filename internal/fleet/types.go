package fleet

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain invariant violations.
var (
	// ErrMileageInvariant is returned when current mileage exceeds total mileage.
	ErrMileageInvariant = errors.New("current_mileage must not exceed total_mileage")

	// ErrMaintenanceInvariant is returned when last maintenance is after the next due date.
	ErrMaintenanceInvariant = errors.New("last_maintenance_at must not be after next_maintenance_due_at")

	// ErrSlotOverCapacity is returned when a cleaning slot holds more trainsets than its capacity.
	ErrSlotOverCapacity = errors.New("cleaning slot assignments exceed capacity")

	// ErrDuplicateRank is returned when two schedule entries in one shift share a rank.
	ErrDuplicateRank = errors.New("schedule ranks must be unique within a shift")
)

type (
	// Trainset is a single revenue vehicle set. Value snapshots are handed
	// to callers; the store owns the persistent record.
	Trainset struct {
		ID               string
		Number           string
		Manufacturer     string
		Model            string
		YearBuilt        int
		Capacity         int
		MaxSpeed         int
		Status           Status
		Depot            string
		Location         string
		CurrentMileage   float64
		TotalMileage     float64
		OperationalHours float64
		LastMaintenance  *time.Time
		NextMaintenance  *time.Time
		LastCleaning     *time.Time
		NextCleaning     *time.Time
		FitnessExpiry    *time.Time
		IsActive         bool
	}

	// FitnessCertificate authorizes a trainset for revenue service. At most
	// one VALID certificate exists per trainset at any time.
	FitnessCertificate struct {
		ID               string
		TrainsetID       string
		IssuedAt         time.Time
		ExpiresAt        time.Time
		Status           CertificateStatus
		IssuingAuthority string
	}

	// JobCard is an open or historical work order, optionally bound to a
	// trainset and optionally mirrored from an external maintenance system.
	JobCard struct {
		ID             string
		TrainsetID     string
		ExternalID     string
		Title          string
		Description    string
		Priority       JobCardPriority
		Status         JobCardStatus
		Category       string
		EstimatedHours *float64
		ActualHours    *float64
		ScheduledAt    *time.Time
		DueAt          *time.Time
		CompletedAt    *time.Time
	}

	// BrandingRecord tracks an advertising campaign's exposure contract.
	// Priority ranges 1..100; higher is more valuable.
	BrandingRecord struct {
		ID                 string
		TrainsetID         string
		Campaign           string
		Priority           int
		TargetHoursPerDay  float64
		DeliveredHours     float64
		ContractStart      time.Time
		ContractEnd        time.Time
	}

	// CleaningSlot is a bay reservation window. Slots on the same bay must
	// not overlap; assignments must not exceed capacity.
	CleaningSlot struct {
		ID          string
		Bay         string
		StartsAt    time.Time
		EndsAt      time.Time
		Capacity    int
		AssignedIDs []string
	}

	// Schedule owns the ranked induction plan for one (date, shift).
	Schedule struct {
		ID      string
		Date    time.Time
		Shift   Shift
		Entries []ScheduleEntry
	}

	// ScheduleEntry places one trainset in the running order.
	ScheduleEntry struct {
		TrainsetID string
		Decision   EntryDecision
		Rank       int
		Route      string
		StartTime  *time.Time
		EndTime    *time.Time
		Reasons    []string
		Conflicts  []string
	}

	// StatusAudit records one applied (or refused) status transition.
	StatusAudit struct {
		ID         string
		TrainsetID string
		FromStatus Status
		ToStatus   Status
		Reason     string
		Applied    bool
		OccurredAt time.Time
	}
)

// Validate checks trainset invariants that must hold at every instant.
func (t *Trainset) Validate() error {
	if t.CurrentMileage > t.TotalMileage {
		return fmt.Errorf("%w: trainset %s has current=%.1f total=%.1f",
			ErrMileageInvariant, t.ID, t.CurrentMileage, t.TotalMileage)
	}

	if t.LastMaintenance != nil && t.NextMaintenance != nil && t.LastMaintenance.After(*t.NextMaintenance) {
		return fmt.Errorf("%w: trainset %s", ErrMaintenanceInvariant, t.ID)
	}

	return nil
}

// MileageDeviation returns |mileage - mean| / mean against a fleet mean.
// A zero mean yields zero deviation.
func (t *Trainset) MileageDeviation(fleetMean float64) float64 {
	if fleetMean <= 0 {
		return 0
	}

	deviation := t.CurrentMileage - fleetMean
	if deviation < 0 {
		deviation = -deviation
	}

	return deviation / fleetMean
}

// IsValidAt reports whether the certificate authorizes service at the given
// instant. EXPIRED is derived when now passes ExpiresAt regardless of the
// stored status.
func (c *FitnessCertificate) IsValidAt(now time.Time) bool {
	return c.Status == CertificateValid && now.Before(c.ExpiresAt)
}

// DaysToExpiry returns whole days until the certificate expires, negative
// when already past.
func (c *FitnessCertificate) DaysToExpiry(now time.Time) int {
	return int(c.ExpiresAt.Sub(now).Hours() / 24)
}

// RemainingContractDays returns whole days of campaign contract left,
// never below zero.
func (b *BrandingRecord) RemainingContractDays(now time.Time) int {
	days := int(b.ContractEnd.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}

	return days
}

// ExposureDeficit returns the gap between contracted and delivered exposure
// hours accumulated so far, never below zero.
func (b *BrandingRecord) ExposureDeficit(now time.Time) float64 {
	elapsed := now.Sub(b.ContractStart).Hours() / 24
	if elapsed < 0 {
		elapsed = 0
	}

	expected := b.TargetHoursPerDay * elapsed

	deficit := expected - b.DeliveredHours
	if deficit < 0 {
		return 0
	}

	return deficit
}

// Active reports whether the campaign contract covers the given instant.
func (b *BrandingRecord) Active(now time.Time) bool {
	return !now.Before(b.ContractStart) && !now.After(b.ContractEnd)
}

// Validate checks the slot capacity invariant.
func (s *CleaningSlot) Validate() error {
	if len(s.AssignedIDs) > s.Capacity {
		return fmt.Errorf("%w: slot %s has %d assigned, capacity %d",
			ErrSlotOverCapacity, s.ID, len(s.AssignedIDs), s.Capacity)
	}

	return nil
}

// Overlaps reports whether two slots on the same bay intersect in time.
func (s *CleaningSlot) Overlaps(other *CleaningSlot) bool {
	if s.Bay != other.Bay {
		return false
	}

	return s.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(s.EndsAt)
}

// Validate checks that ranks are unique within the schedule's shift.
func (s *Schedule) Validate() error {
	seen := make(map[int]string, len(s.Entries))

	for _, entry := range s.Entries {
		if prior, ok := seen[entry.Rank]; ok {
			return fmt.Errorf("%w: rank %d held by %s and %s",
				ErrDuplicateRank, entry.Rank, prior, entry.TrainsetID)
		}

		seen[entry.Rank] = entry.TrainsetID
	}

	return nil
}
