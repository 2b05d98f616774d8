package rules

import (
	"fmt"

	"github.com/inductor-io/inductor/internal/fleet"
)

const openCardBacklog = 3

// EvaluateWorkOrder scores open work-order pressure. Any open CRITICAL or
// HIGH card disqualifies the trainset from induction.
//
// Bands: blocking card open = 20, more than 3 open = 40, 1-3 open = 70,
// none = 100.
func EvaluateWorkOrder(ts *fleet.Trainset, ctx *fleet.Context) Result {
	result := Result{Rule: RuleWorkOrder, Tag: TagOK}

	open := ctx.OpenJobCardsFor(ts.ID)

	var blocking int

	for _, card := range open {
		if card.Priority.Blocking() {
			blocking++
		}
	}

	switch {
	case blocking > 0:
		result.Score = 20
		result.Tag = TagCritical
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s has %d open high/critical work orders", ts.Number, blocking))
	case len(open) > openCardBacklog:
		result.Score = 40
		result.Tag = TagWarning
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s has a backlog of %d open work orders", ts.Number, len(open)))
	case len(open) > 0:
		result.Score = 70
	default:
		result.Score = 100
	}

	result.CanInduct = blocking == 0

	return result
}
