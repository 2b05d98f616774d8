package rules

import (
	"fmt"
	"strings"

	"github.com/inductor-io/inductor/internal/fleet"
)

// Shunting complexity contributions.
const (
	awayFromDepotCost = 2
	terminalCost      = 1
	complexityHigh    = 3
)

// EvaluateStabling scores the shunting complexity implied by where the
// trainset is currently stabled. A set parked away from its home depot or
// at a terminal costs extra movements before it can enter service.
//
// Complexity 0 = 100, 1-3 = 60, >3 = 30.
func EvaluateStabling(ts *fleet.Trainset) Result {
	result := Result{Rule: RuleStabling, Tag: TagOK, CanInduct: true}

	complexity := ShuntingComplexity(ts)

	switch {
	case complexity == 0:
		result.Score = 100
	case complexity <= complexityHigh:
		result.Score = 60
	default:
		result.Score = 30
	}

	if complexity > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s requires shunting (complexity %d) from %q", ts.Number, complexity, ts.Location))
	}

	return result
}

// ShuntingComplexity computes the integer movement cost of bringing the
// trainset from its stabling position into service.
func ShuntingComplexity(ts *fleet.Trainset) int {
	complexity := 0

	if ts.Location != "" && ts.Depot != "" && !strings.EqualFold(ts.Location, ts.Depot) {
		complexity += awayFromDepotCost
	}

	if strings.Contains(strings.ToLower(ts.Location), "terminal") {
		complexity += terminalCost
	}

	return complexity
}
