package optimizer

import (
	"fmt"
	"time"

	"github.com/inductor-io/inductor/internal/config"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/rules"
)

// Reliability sub-weights and normalization spans.
const (
	certMarginSpanDays = 180
	fleetAgeSpanYears  = 25

	reliabilityCertWeight = 0.5
	reliabilityCardWeight = 0.3
	reliabilityAgeWeight  = 0.2
)

type (
	// trainsetProfile is the per-trainset evaluation cache. All six rules
	// run exactly once per trainset per run; objective functions then work
	// off these numbers, keeping generation cost linear in subset size.
	trainsetProfile struct {
		id          string
		number      string
		composite   float64
		reliability float64
		cost        float64
		energy      float64
		deficit     float64
		hasCritical bool
		eligible    bool
	}

	// problem is the immutable evaluation context for one run.
	problem struct {
		profiles     []trainsetProfile
		byID         map[string]int
		totalDeficit float64
		params       Params
	}
)

// newProblem evaluates every active trainset in the snapshot once and
// returns the cached profiles. Ineligible trainsets are kept out of the
// genome pool entirely; a plan must never induct them.
func newProblem(snapshot *fleet.Context, weights config.ScoringWeights, params Params) (*problem, error) {
	active := snapshot.ActiveTrainsets()

	ruleParams := rules.Params{Now: snapshot.TakenAt}
	fleetMean := snapshot.FleetMeanMileage()

	p := &problem{
		byID:   make(map[string]int),
		params: params,
	}

	for i := range active {
		ts := &active[i]
		set := rules.Evaluate(ts, snapshot, ruleParams)

		if !set.Eligible() {
			continue
		}

		profile := trainsetProfile{
			id:     ts.ID,
			number: ts.Number,
			composite: set.Certificate.Score*weights.Certificate +
				set.WorkOrder.Score*weights.WorkOrder +
				set.Branding.Score*weights.Branding +
				set.Mileage.Score*weights.Mileage +
				set.Cleaning.Score*weights.Cleaning +
				set.Stabling.Score*weights.Stabling,
			reliability: reliabilityOf(ts, snapshot, &set),
			cost:        costOf(ts, snapshot.TakenAt, fleetMean),
			energy:      set.Stabling.Score,
			deficit:     brandingDeficitOf(ts, snapshot),
			hasCritical: set.HasCritical(),
			eligible:    true,
		}

		p.byID[ts.ID] = len(p.profiles)
		p.profiles = append(p.profiles, profile)
		p.totalDeficit += profile.deficit
	}

	// A pool smaller than the minimum subset can never produce a valid
	// plan, so the run fails immediately instead of evolving penalties.
	if len(p.profiles) < params.MinTrainsets {
		return nil, fmt.Errorf("%w: %d eligible, %d required",
			ErrNoEligibleTrainsets, len(p.profiles), params.MinTrainsets)
	}

	return p, nil
}

// reliabilityOf blends certificate margin, work-order pressure, and fleet
// age into one [0,100] figure.
func reliabilityOf(ts *fleet.Trainset, snapshot *fleet.Context, set *rules.Set) float64 {
	certScore := 0.0

	if cert := snapshot.CertificateFor(ts.ID); cert != nil {
		days := cert.DaysToExpiry(snapshot.TakenAt)
		if days > 0 {
			if days > certMarginSpanDays {
				days = certMarginSpanDays
			}

			certScore = float64(days) / certMarginSpanDays * 100
		}
	}

	ageScore := 100.0

	if ts.YearBuilt > 0 {
		age := snapshot.TakenAt.Year() - ts.YearBuilt
		if age < 0 {
			age = 0
		}

		if age > fleetAgeSpanYears {
			age = fleetAgeSpanYears
		}

		ageScore = float64(fleetAgeSpanYears-age) / fleetAgeSpanYears * 100
	}

	return reliabilityCertWeight*certScore +
		reliabilityCardWeight*set.WorkOrder.Score +
		reliabilityAgeWeight*ageScore
}

// costOf penalizes mileage imbalance and imminent maintenance: running a
// high-deviation set accelerates uneven wear, and inducting a set due for
// maintenance within days forces an expensive swap.
func costOf(ts *fleet.Trainset, now time.Time, fleetMean float64) float64 {
	cost := 100.0

	dev := ts.MileageDeviation(fleetMean)
	if dev > 0.5 {
		dev = 0.5
	}

	cost -= dev * 120

	if ts.NextMaintenance != nil {
		until := ts.NextMaintenance.Sub(now)
		if until > 0 && until <= 3*24*time.Hour {
			cost -= 20
		}
	}

	if cost < 0 {
		cost = 0
	}

	return cost
}

func brandingDeficitOf(ts *fleet.Trainset, snapshot *fleet.Context) float64 {
	var deficit float64

	for _, record := range snapshot.BrandingFor(ts.ID) {
		if record.Active(snapshot.TakenAt) {
			deficit += record.ExposureDeficit(snapshot.TakenAt)
		}
	}

	return deficit
}

// evaluate fills the individual's objective vector and scalar fitness. A
// subset outside [min,max] is penalized on every objective; a subset
// containing a critical violation scores zero outright.
func (p *problem) evaluate(ind *Individual) {
	if len(ind.Genome) == 0 {
		ind.Objectives = [NumObjectives]float64{}
		ind.Fitness = 0

		return
	}

	var readiness, reliability, cost, energy, deficit float64

	critical := false

	for _, id := range ind.Genome {
		profile := p.profiles[p.byID[id]]

		readiness += profile.composite
		reliability += profile.reliability
		cost += profile.cost
		energy += profile.energy
		deficit += profile.deficit
		critical = critical || profile.hasCritical
	}

	n := float64(len(ind.Genome))

	branding := 100.0
	if p.totalDeficit > 0 {
		branding = deficit / p.totalDeficit * 100
	}

	ind.Objectives = [NumObjectives]float64{
		readiness / n,
		reliability / n,
		cost / n,
		branding,
		energy / n,
	}

	penalty := 0.0

	switch {
	case len(ind.Genome) < p.params.MinTrainsets:
		penalty = PenaltyUnderMin
	case len(ind.Genome) > p.params.MaxTrainsets:
		penalty = PenaltyOverMax
	}

	if penalty != 0 {
		for i := range ind.Objectives {
			ind.Objectives[i] += penalty
			if ind.Objectives[i] < 0 {
				ind.Objectives[i] = 0
			}
		}
	}

	if critical {
		ind.Objectives = [NumObjectives]float64{}
		ind.Fitness = 0

		return
	}

	var sum float64

	for _, v := range ind.Objectives {
		sum += v
	}

	ind.Fitness = sum / NumObjectives
}
