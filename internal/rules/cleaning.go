package rules

import (
	"fmt"
	"time"

	"github.com/inductor-io/inductor/internal/fleet"
)

const cleaningOverdueFactor = 2

// EvaluateCleaning scores time since last cleaning against the cleaning
// cycle (default 7 days). A trainset past the cycle is flagged as needing
// cleaning; one past twice the cycle is heavily discounted.
//
// Bands: within the cycle = 100, up to twice the cycle = 60, beyond = 20.
// A trainset never cleaned scores as overdue.
func EvaluateCleaning(ts *fleet.Trainset, now time.Time, cycle time.Duration) Result {
	result := Result{Rule: RuleCleaning, Tag: TagOK, CanInduct: true}

	if ts.LastCleaning == nil {
		result.Score = 20
		result.Tag = TagWarning
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s has no cleaning record", ts.Number))

		return result
	}

	elapsed := now.Sub(*ts.LastCleaning)

	switch {
	case elapsed < cycle:
		result.Score = 100
	case elapsed < cleaningOverdueFactor*cycle:
		result.Score = 60
	default:
		result.Score = 20
	}

	if elapsed >= cycle {
		result.Tag = TagWarning
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s is due for cleaning (%.0f days since last)",
				ts.Number, elapsed.Hours()/24))
	}

	return result
}
