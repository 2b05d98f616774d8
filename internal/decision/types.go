// Package decision composes the six rule evaluators into a ranked,
// explainable induction list with conflicts, key factors, recommendations,
// and a deterministic confidence figure.
package decision

import (
	"errors"
	"time"

	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/rules"
)

// Sentinel errors surfaced by the engine.
var (
	// ErrContextEmpty is returned when the snapshot has no active trainsets.
	ErrContextEmpty = errors.New("context has no active trainsets")

	// ErrStoreUnavailable wraps snapshot or persistence failures.
	ErrStoreUnavailable = errors.New("fleet store unavailable")
)

// Readiness classifies a trainset's induction standing.
type Readiness string

// Readiness classes.
const (
	InductionReady    Readiness = "INDUCTION_READY"
	ConditionalReady  Readiness = "CONDITIONAL_READY"
	RequiresAttention Readiness = "REQUIRES_ATTENTION"
	NotReady          Readiness = "NOT_READY"
)

// Severity grades conflicts and recommendations.
type Severity string

// Severities.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Conflict types.
const (
	ConflictCapacity     = "CAPACITY"
	ConflictCriticalRule = "CRITICAL_RULE"
)

type (
	// RankedTrainset is one row of the induction list.
	RankedTrainset struct {
		TrainsetID       string             `json:"trainset_id"`
		Number           string             `json:"number"`
		Rank             int                `json:"rank"`
		Composite        float64            `json:"composite"`
		Readiness        Readiness          `json:"readiness"`
		RuleScores       map[rules.Rule]float64 `json:"rule_scores"`
		Eligible         bool               `json:"eligible"`
		MileageDeviation float64            `json:"mileage_deviation"`
		Warnings         []string           `json:"warnings,omitempty"`
	}

	// KeyFactor is an aggregate observation that shaped the decision.
	KeyFactor struct {
		Factor      string    `json:"factor"`
		Impact      rules.Tag `json:"impact"`
		Description string    `json:"description"`
	}

	// Conflict flags a condition that prevents a clean induction plan.
	Conflict struct {
		Type        string   `json:"type"`
		Severity    Severity `json:"severity"`
		Description string   `json:"description"`
		TrainsetIDs []string `json:"trainset_ids,omitempty"`
	}

	// Recommendation is an operator-facing, explainable suggestion.
	Recommendation struct {
		Type        string   `json:"type"`
		Priority    Severity `json:"priority"`
		Message     string   `json:"message"`
		TrainsetIDs []string `json:"trainset_ids,omitempty"`
	}

	// Decision is the immutable audit snapshot of one engine run. Given the
	// same inputs hash and configuration, repeated runs yield an identical
	// Decision apart from ID and GeneratedAt.
	Decision struct {
		ID              string           `json:"id"`
		GeneratedAt     time.Time        `json:"generated_at"`
		Date            time.Time        `json:"date"`
		Shift           fleet.Shift      `json:"shift"`
		Ranked          []RankedTrainset `json:"ranked"`
		KeyFactors      []KeyFactor      `json:"key_factors"`
		Warnings        []string         `json:"warnings,omitempty"`
		Conflicts       []Conflict       `json:"conflicts,omitempty"`
		Recommendations []Recommendation `json:"recommendations,omitempty"`
		Confidence      float64          `json:"confidence"`
		InputsHash      string           `json:"inputs_hash"`
	}
)

// ReadyCount returns how many trainsets are INDUCTION_READY.
func (d *Decision) ReadyCount() int {
	count := 0

	for _, row := range d.Ranked {
		if row.Readiness == InductionReady {
			count++
		}
	}

	return count
}

// EligibleIDs returns the trainsets passing the certificate and work-order
// hard constraints, in rank order.
func (d *Decision) EligibleIDs() []string {
	var ids []string

	for _, row := range d.Ranked {
		if row.Eligible {
			ids = append(ids, row.TrainsetID)
		}
	}

	return ids
}

// BuildSchedule materializes the ranked list into a schedule: the top
// serviceLimit eligible trainsets run IN_SERVICE, further eligible sets
// stand by, blocked sets go to MAINTENANCE, and cleaning-due sets to
// CLEANING.
func (d *Decision) BuildSchedule(serviceLimit int) *fleet.Schedule {
	schedule := &fleet.Schedule{
		Date:  d.Date,
		Shift: d.Shift,
	}

	inService := 0

	for i, row := range d.Ranked {
		entry := fleet.ScheduleEntry{
			TrainsetID: row.TrainsetID,
			Rank:       i + 1,
			Reasons:    append([]string(nil), row.Warnings...),
		}

		switch {
		case row.Eligible && inService < serviceLimit:
			entry.Decision = fleet.DecideInService
			inService++
		case row.Eligible:
			entry.Decision = fleet.DecideStandby
		case row.RuleScores[rules.RuleWorkOrder] <= 20 || row.RuleScores[rules.RuleCertificate] == 0:
			entry.Decision = fleet.DecideMaintenance
		default:
			entry.Decision = fleet.DecideCleaning
		}

		schedule.Entries = append(schedule.Entries, entry)
	}

	return schedule
}
