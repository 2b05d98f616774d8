package fleet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Context is a self-consistent view of the fleet at a point in time. All
// collections are value snapshots; mutating a Context never touches the
// store. Decisions record the Context fingerprint they were computed from.
type Context struct {
	Date           time.Time
	Shift          Shift
	TakenAt        time.Time
	Trainsets      []Trainset
	Certificates   []FitnessCertificate
	JobCards       []JobCard
	Branding       []BrandingRecord
	CleaningSlots  []CleaningSlot
	PriorSchedules []Schedule
}

// ActiveTrainsets returns the trainsets not soft-deleted.
func (c *Context) ActiveTrainsets() []Trainset {
	active := make([]Trainset, 0, len(c.Trainsets))

	for _, ts := range c.Trainsets {
		if ts.IsActive {
			active = append(active, ts)
		}
	}

	return active
}

// CertificateFor returns the certificate for a trainset, preferring a VALID
// one; nil when the trainset has no certificate at all.
func (c *Context) CertificateFor(trainsetID string) *FitnessCertificate {
	var latest *FitnessCertificate

	for i := range c.Certificates {
		cert := &c.Certificates[i]
		if cert.TrainsetID != trainsetID {
			continue
		}

		if cert.Status == CertificateValid {
			return cert
		}

		if latest == nil || cert.ExpiresAt.After(latest.ExpiresAt) {
			latest = cert
		}
	}

	return latest
}

// OpenJobCardsFor returns the non-terminal work orders bound to a trainset.
func (c *Context) OpenJobCardsFor(trainsetID string) []JobCard {
	var open []JobCard

	for _, card := range c.JobCards {
		if card.TrainsetID == trainsetID && card.Status.IsOpen() {
			open = append(open, card)
		}
	}

	return open
}

// BrandingFor returns the branding records attached to a trainset.
func (c *Context) BrandingFor(trainsetID string) []BrandingRecord {
	var records []BrandingRecord

	for _, record := range c.Branding {
		if record.TrainsetID == trainsetID {
			records = append(records, record)
		}
	}

	return records
}

// FleetMeanMileage returns the mean current mileage across active trainsets.
func (c *Context) FleetMeanMileage() float64 {
	var sum float64

	var count int

	for _, ts := range c.Trainsets {
		if !ts.IsActive {
			continue
		}

		sum += ts.CurrentMileage
		count++
	}

	if count == 0 {
		return 0
	}

	return sum / float64(count)
}

// Clone returns a deep copy of the Context. What-if overlays mutate clones
// only; the originating snapshot stays untouched.
func (c *Context) Clone() *Context {
	clone := &Context{
		Date:    c.Date,
		Shift:   c.Shift,
		TakenAt: c.TakenAt,
	}

	clone.Trainsets = append([]Trainset(nil), c.Trainsets...)
	clone.Certificates = append([]FitnessCertificate(nil), c.Certificates...)
	clone.JobCards = append([]JobCard(nil), c.JobCards...)
	clone.Branding = append([]BrandingRecord(nil), c.Branding...)

	clone.CleaningSlots = make([]CleaningSlot, len(c.CleaningSlots))
	for i, slot := range c.CleaningSlots {
		slot.AssignedIDs = append([]string(nil), slot.AssignedIDs...)
		clone.CleaningSlots[i] = slot
	}

	clone.PriorSchedules = make([]Schedule, len(c.PriorSchedules))
	for i, schedule := range c.PriorSchedules {
		entries := make([]ScheduleEntry, len(schedule.Entries))

		for j, entry := range schedule.Entries {
			entry.Reasons = append([]string(nil), entry.Reasons...)
			entry.Conflicts = append([]string(nil), entry.Conflicts...)
			entries[j] = entry
		}

		schedule.Entries = entries
		clone.PriorSchedules[i] = schedule
	}

	return clone
}

// Fingerprint returns a deterministic sha256 over the ids and observed
// mutable fields of every entity in the snapshot. Two contexts with the
// same fingerprint produce identical decisions under the same
// configuration.
func (c *Context) Fingerprint() string {
	hasher := sha256.New()

	fmt.Fprintf(hasher, "date=%s;shift=%s\n", c.Date.UTC().Format("2006-01-02"), c.Shift)

	lines := make([]string, 0, len(c.Trainsets)+len(c.Certificates)+len(c.JobCards)+len(c.Branding)+len(c.CleaningSlots))

	for _, ts := range c.Trainsets {
		lines = append(lines, fmt.Sprintf("ts|%s|%s|%.1f|%.1f|%.1f|%s|%s|%s|%t",
			ts.ID, ts.Status, ts.CurrentMileage, ts.TotalMileage, ts.OperationalHours,
			timePtr(ts.NextMaintenance), timePtr(ts.LastCleaning), timePtr(ts.FitnessExpiry), ts.IsActive))
	}

	for _, cert := range c.Certificates {
		lines = append(lines, fmt.Sprintf("cert|%s|%s|%s|%s",
			cert.ID, cert.TrainsetID, cert.Status, cert.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	for _, card := range c.JobCards {
		lines = append(lines, fmt.Sprintf("jc|%s|%s|%s|%s",
			card.ID, card.TrainsetID, card.Status, card.Priority))
	}

	for _, record := range c.Branding {
		lines = append(lines, fmt.Sprintf("brand|%s|%s|%d|%.1f|%.1f",
			record.ID, record.TrainsetID, record.Priority, record.TargetHoursPerDay, record.DeliveredHours))
	}

	for _, slot := range c.CleaningSlots {
		assigned := append([]string(nil), slot.AssignedIDs...)
		sort.Strings(assigned)
		lines = append(lines, fmt.Sprintf("slot|%s|%s|%d|%v", slot.ID, slot.Bay, slot.Capacity, assigned))
	}

	sort.Strings(lines)

	for _, line := range lines {
		fmt.Fprintln(hasher, line)
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

func timePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.UTC().Format(time.RFC3339)
}
