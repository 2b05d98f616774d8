// Package fleet provides the domain model for the induction-planning core:
// trainsets, fitness certificates, job cards, branding records, cleaning
// slots, schedules, and the status transition graph that governs how a
// trainset moves between operational states.
package fleet

import (
	"errors"
	"fmt"
)

// Status is the operational state of a trainset. Values are closed; strings
// appear only at the persistence and API edges.
type Status string

// Trainset operational states.
const (
	StatusAvailable   Status = "AVAILABLE"
	StatusInService   Status = "IN_SERVICE"
	StatusMaintenance Status = "MAINTENANCE"
	StatusCleaning    Status = "CLEANING"
	StatusOutOfOrder  Status = "OUT_OF_ORDER"
	StatusInspection  Status = "INSPECTION"
)

// ErrUnknownStatus is returned when parsing an unrecognized status string.
var ErrUnknownStatus = errors.New("unknown trainset status")

// ParseStatus converts a persisted status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAvailable, StatusInService, StatusMaintenance,
		StatusCleaning, StatusOutOfOrder, StatusInspection:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// CertificateStatus is the lifecycle state of a fitness certificate.
type CertificateStatus string

// Fitness certificate states. Expired is also derived from expiry time.
const (
	CertificateValid     CertificateStatus = "VALID"
	CertificateExpired   CertificateStatus = "EXPIRED"
	CertificateSuspended CertificateStatus = "SUSPENDED"
	CertificateRevoked   CertificateStatus = "REVOKED"
)

// JobCardStatus is the lifecycle state of a work order.
type JobCardStatus string

// Work-order states. Completed and Cancelled are terminal.
const (
	JobCardOpen       JobCardStatus = "OPEN"
	JobCardInProgress JobCardStatus = "IN_PROGRESS"
	JobCardOnHold     JobCardStatus = "ON_HOLD"
	JobCardCompleted  JobCardStatus = "COMPLETED"
	JobCardCancelled  JobCardStatus = "CANCELLED"
)

// IsTerminal reports whether the work order can no longer change state.
func (s JobCardStatus) IsTerminal() bool {
	return s == JobCardCompleted || s == JobCardCancelled
}

// IsOpen reports whether the work order still demands attention.
func (s JobCardStatus) IsOpen() bool {
	return s == JobCardOpen || s == JobCardInProgress || s == JobCardOnHold
}

// JobCardPriority orders work by urgency.
type JobCardPriority string

// Work-order priorities.
const (
	PriorityLow      JobCardPriority = "LOW"
	PriorityMedium   JobCardPriority = "MEDIUM"
	PriorityHigh     JobCardPriority = "HIGH"
	PriorityCritical JobCardPriority = "CRITICAL"
)

// Blocking reports whether an open card of this priority disqualifies a
// trainset from induction.
func (p JobCardPriority) Blocking() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// Shift is the scheduling unit of an operating day.
type Shift string

// Shifts.
const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftEvening   Shift = "EVENING"
	ShiftNight     Shift = "NIGHT"
)

// ErrUnknownShift is returned when parsing an unrecognized shift string.
var ErrUnknownShift = errors.New("unknown shift")

// ParseShift converts a persisted shift string into a Shift.
func ParseShift(s string) (Shift, error) {
	switch Shift(s) {
	case ShiftMorning, ShiftAfternoon, ShiftEvening, ShiftNight:
		return Shift(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShift, s)
	}
}

// EntryDecision is the per-trainset outcome within a schedule.
type EntryDecision string

// Schedule entry decisions.
const (
	DecideInService   EntryDecision = "IN_SERVICE"
	DecideStandby     EntryDecision = "STANDBY"
	DecideMaintenance EntryDecision = "MAINTENANCE"
	DecideCleaning    EntryDecision = "CLEANING"
)
