package optimizer

import (
	"fmt"
	"math"
	"time"
)

// reportTopN caps how many Pareto solutions the report carries.
const reportTopN = 5

// Recommendation thresholds for the narrative section.
const (
	reliabilityAdvisory = 80.0
	brandingAdvisory    = 60.0
	energyAdvisory      = 60.0
)

type (
	// Solution is one Pareto-optimal plan in the final report.
	Solution struct {
		Rank       int                   `json:"rank"`
		Trainsets  []string              `json:"trainsets"`
		Objectives map[Objective]float64 `json:"objectives"`
		Fitness    float64               `json:"fitness"`
		Violations []string              `json:"violations,omitempty"`
	}

	// Stats summarizes the run's execution.
	Stats struct {
		GenerationsRun int           `json:"generations_run"`
		Evaluations    int           `json:"evaluations"`
		ParetoSize     int           `json:"pareto_size"`
		EligiblePool   int           `json:"eligible_pool"`
		Elapsed        time.Duration `json:"elapsed"`
	}

	// Report is the final output of an optimization run. A cancelled or
	// timed-out run still carries the best front found so far.
	Report struct {
		Best            *Solution  `json:"best"`
		Solutions       []Solution `json:"solutions"`
		Stats           Stats      `json:"stats"`
		Recommendations []string   `json:"recommendations,omitempty"`
	}
)

// buildReport converts the final Pareto front into the operator-facing
// report with plain-language recommendations.
func (p *problem) buildReport(front population, stats Stats) *Report {
	report := &Report{Stats: stats}
	report.Stats.ParetoSize = len(front)
	report.Stats.EligiblePool = len(p.profiles)

	limit := len(front)
	if limit > reportTopN {
		limit = reportTopN
	}

	for i := 0; i < limit; i++ {
		ind := front[i]

		solution := Solution{
			Rank:       i + 1,
			Trainsets:  append([]string(nil), ind.Genome...),
			Objectives: make(map[Objective]float64, NumObjectives),
			Fitness:    round1(ind.Fitness),
		}

		for j, objective := range AllObjectives() {
			solution.Objectives[objective] = round1(ind.Objectives[j])
		}

		if len(ind.Genome) < p.params.MinTrainsets {
			solution.Violations = append(solution.Violations,
				fmt.Sprintf("subset of %d is below the minimum of %d trainsets", len(ind.Genome), p.params.MinTrainsets))
		}

		if len(ind.Genome) > p.params.MaxTrainsets {
			solution.Violations = append(solution.Violations,
				fmt.Sprintf("subset of %d exceeds the maximum of %d trainsets", len(ind.Genome), p.params.MaxTrainsets))
		}

		report.Solutions = append(report.Solutions, solution)
	}

	if len(report.Solutions) > 0 {
		report.Best = &report.Solutions[0]
		report.Recommendations = p.recommendations(report.Best)
	}

	return report
}

// recommendations derives plain-language advice from the best solution's
// objective vector.
func (p *problem) recommendations(best *Solution) []string {
	var recs []string

	if best.Objectives[ObjectiveReliability] < reliabilityAdvisory {
		recs = append(recs,
			"reliability is below target; prefer newer trainsets and renew certificates nearing expiry")
	}

	if best.Objectives[ObjectiveBrandingExposure] < brandingAdvisory {
		recs = append(recs,
			"branding exposure coverage is low; rotate trainsets with campaign deficits into service")
	}

	if best.Objectives[ObjectiveEnergyEfficiency] < energyAdvisory {
		recs = append(recs,
			"shunting cost is high; restable the selected trainsets at their home depot overnight")
	}

	if len(best.Violations) > 0 {
		recs = append(recs,
			"the best plan violates the service-size band; review the eligible pool before applying it")
	}

	return recs
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
