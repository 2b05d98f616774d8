package rules

import (
	"fmt"
	"time"

	"github.com/inductor-io/inductor/internal/fleet"
)

// Branding priority tiers. A campaign's contractual priority sits in 1..100.
const (
	brandTierTop    = 80
	brandTierMid    = 50
	brandTierLow    = 20
	brandNeutral    = 50.0
	deficitUrgent   = 0.5
	deficitElevated = 0.25
)

// EvaluateBranding scores advertising-exposure pressure. High scores mark
// trainsets that should be preferred for induction because a campaign is
// behind on contracted hours or carries a top priority tier. The deficit
// contribution is weighted by the campaign's priority tier rather than by
// raw remaining contract days.
//
// A trainset with no active campaign sits at the neutral midpoint.
func EvaluateBranding(ts *fleet.Trainset, ctx *fleet.Context, now time.Time) Result {
	result := Result{Rule: RuleBranding, Tag: TagOK, CanInduct: true}

	var (
		topPriority  int
		urgencyRatio float64
		campaign     string
	)

	for _, record := range ctx.BrandingFor(ts.ID) {
		if !record.Active(now) {
			continue
		}

		if record.Priority > topPriority {
			topPriority = record.Priority
			campaign = record.Campaign
		}

		remaining := record.RemainingContractDays(now)
		if remaining == 0 {
			remaining = 1
		}

		requiredPerDay := record.ExposureDeficit(now) / float64(remaining)
		if record.TargetHoursPerDay > 0 {
			if ratio := requiredPerDay / record.TargetHoursPerDay; ratio > urgencyRatio {
				urgencyRatio = ratio
			}
		}
	}

	if topPriority == 0 {
		result.Score = brandNeutral

		return result
	}

	score := brandNeutral

	switch {
	case topPriority >= brandTierTop:
		score += 30
	case topPriority >= brandTierMid:
		score += 20
	case topPriority >= brandTierLow:
		score += 10
	default:
		score += 5
	}

	switch {
	case urgencyRatio >= deficitUrgent:
		score += 20
	case urgencyRatio >= deficitElevated:
		score += 10
	}

	if score > 100 {
		score = 100
	}

	result.Score = score

	if topPriority >= brandTierTop || urgencyRatio >= deficitUrgent {
		result.Tag = TagWarning
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Trainset %s should be prioritized for campaign %q exposure", ts.Number, campaign))
	}

	return result
}
