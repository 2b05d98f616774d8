package rules

import (
	"fmt"

	"github.com/inductor-io/inductor/internal/fleet"
)

// Mileage deviation bands against the fleet mean.
const (
	mileageBalanced = 0.10
	mileageSkewed   = 0.20
)

// EvaluateMileage scores how close a trainset sits to the fleet mean
// mileage. Deviations beyond 10% flag the trainset for balancing: a
// low-mileage set should be preferred for induction, a high-mileage set
// avoided.
//
// Bands: deviation ≤10% = 100, ≤20% = 60, otherwise 30.
func EvaluateMileage(ts *fleet.Trainset, ctx *fleet.Context) Result {
	result := Result{Rule: RuleMileage, Tag: TagOK, CanInduct: true}

	mean := ctx.FleetMeanMileage()
	deviation := ts.MileageDeviation(mean)

	switch {
	case deviation <= mileageBalanced:
		result.Score = 100
	case deviation <= mileageSkewed:
		result.Score = 60
	default:
		result.Score = 30
	}

	if deviation > mileageBalanced {
		result.Tag = TagWarning

		direction := "prefer induction to balance low mileage"
		if ts.CurrentMileage > mean {
			direction = "avoid induction to balance high mileage"
		}

		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s deviates %.0f%% from fleet mean mileage: %s",
				ts.Number, deviation*100, direction))
	}

	return result
}
