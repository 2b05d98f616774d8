package fleet

import (
	"errors"
	"fmt"
)

// Sentinel errors for status transition validation. These can be used with
// errors.Is() for error checking.
var (
	// ErrTransitionRefused indicates an edge outside the allowed graph.
	ErrTransitionRefused = errors.New("status transition refused")

	// ErrSelfTransition indicates a no-op transition. Callers skip these
	// silently; they are not graph violations.
	ErrSelfTransition = errors.New("self transition ignored")
)

// Canonical transition reasons. Audit rows and events carry these verbatim.
const (
	ReasonMaintenanceDue       = "Maintenance due"
	ReasonMaintenanceCompleted = "Maintenance completed"
	ReasonScheduledCleaning    = "Scheduled daily cleaning"
	ReasonCleaningCompleted    = "Cleaning completed"
	ReasonFitnessExpired       = "Fitness certificate expired"
	ReasonFitnessRenewed       = "Fitness certificate renewed"
)

// allowedTransitions is the closed edge set of the status graph. A fitness
// expiry additionally forces any state into OUT_OF_ORDER; see
// ValidateTransition.
var allowedTransitions = map[Status]map[Status]bool{
	StatusAvailable: {
		StatusMaintenance: true,
		StatusCleaning:    true,
		StatusOutOfOrder:  true,
	},
	StatusInService: {
		StatusMaintenance: true,
		StatusCleaning:    true,
		StatusOutOfOrder:  true,
	},
	StatusMaintenance: {
		StatusAvailable: true,
	},
	StatusCleaning: {
		StatusAvailable: true,
	},
	StatusOutOfOrder: {
		StatusAvailable: true,
	},
	StatusInspection: {},
}

// CanTransition reports whether the edge from → to is in the allowed graph.
// The fitness-expiry override (any → OUT_OF_ORDER) is always permitted.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}

	if to == StatusOutOfOrder {
		return true
	}

	return allowedTransitions[from][to]
}

// ValidateTransition validates a proposed status change. Self-loops return
// ErrSelfTransition so sweeps can skip them without logging a violation;
// disallowed edges return ErrTransitionRefused.
func ValidateTransition(from, to Status) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfTransition, from)
	}

	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrTransitionRefused, from, to)
	}

	return nil
}
