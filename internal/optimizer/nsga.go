package optimizer

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

type (
	// Individual is one candidate plan: an ordered subset of eligible
	// trainset ids. Order is the proposed induction ranking.
	Individual struct {
		Genome     []string
		Objectives [NumObjectives]float64
		Fitness    float64

		rank     int
		crowding float64
	}

	// population is one NSGA-II generation.
	population []*Individual
)

// clone returns a deep copy of the individual's genome; evaluation fields
// are recomputed after any genome change.
func (ind *Individual) clone() *Individual {
	return &Individual{
		Genome:     append([]string(nil), ind.Genome...),
		Objectives: ind.Objectives,
		Fitness:    ind.Fitness,
	}
}

// dominates reports Pareto dominance: no objective worse, at least one
// strictly better.
func (ind *Individual) dominates(other *Individual) bool {
	better := false

	for i := 0; i < NumObjectives; i++ {
		if ind.Objectives[i] < other.Objectives[i] {
			return false
		}

		if ind.Objectives[i] > other.Objectives[i] {
			better = true
		}
	}

	return better
}

// randomIndividual draws a subset of random size within the configured band
// (clamped to pool size) in random order.
func (p *problem) randomIndividual(rng *rand.Rand) *Individual {
	pool := make([]string, len(p.profiles))
	for i, profile := range p.profiles {
		pool[i] = profile.id
	}

	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	low := p.params.MinTrainsets
	if low > len(pool) {
		low = len(pool)
	}

	high := p.params.MaxTrainsets
	if high > len(pool) {
		high = len(pool)
	}

	size := low
	if high > low {
		size = low + rng.Intn(high-low+1)
	}

	ind := &Individual{Genome: append([]string(nil), pool[:size]...)}
	p.evaluate(ind)

	return ind
}

// fastNonDominatedSort partitions the population into Pareto fronts and
// stamps each individual's rank (0 = best front).
func fastNonDominatedSort(pop population) []population {
	dominatedBy := make([][]int, len(pop))
	dominationCount := make([]int, len(pop))

	var fronts []population

	var current []int

	for i := range pop {
		for j := range pop {
			if i == j {
				continue
			}

			if pop[i].dominates(pop[j]) {
				dominatedBy[i] = append(dominatedBy[i], j)
			} else if pop[j].dominates(pop[i]) {
				dominationCount[i]++
			}
		}

		if dominationCount[i] == 0 {
			pop[i].rank = 0
			current = append(current, i)
		}
	}

	for len(current) > 0 {
		front := make(population, 0, len(current))

		var next []int

		for _, i := range current {
			front = append(front, pop[i])

			for _, j := range dominatedBy[i] {
				dominationCount[j]--

				if dominationCount[j] == 0 {
					pop[j].rank = len(fronts) + 1
					next = append(next, j)
				}
			}
		}

		fronts = append(fronts, front)
		current = next
	}

	return fronts
}

// crowdingDistance stamps each front member with the NSGA-II density
// estimate: boundary solutions get +Inf so diversity at the extremes is
// always preserved.
func crowdingDistance(front population) {
	for _, ind := range front {
		ind.crowding = 0
	}

	if len(front) <= 2 {
		for _, ind := range front {
			ind.crowding = math.Inf(1)
		}

		return
	}

	for m := 0; m < NumObjectives; m++ {
		sort.Slice(front, func(i, j int) bool {
			return front[i].Objectives[m] < front[j].Objectives[m]
		})

		span := front[len(front)-1].Objectives[m] - front[0].Objectives[m]

		front[0].crowding = math.Inf(1)
		front[len(front)-1].crowding = math.Inf(1)

		if span == 0 {
			continue
		}

		for i := 1; i < len(front)-1; i++ {
			front[i].crowding += (front[i+1].Objectives[m] - front[i-1].Objectives[m]) / span
		}
	}
}

// tournament picks the better of TournamentSize random individuals by
// (rank, crowding) order.
func tournament(pop population, rng *rand.Rand) *Individual {
	best := pop[rng.Intn(len(pop))]

	for i := 1; i < TournamentSize; i++ {
		challenger := pop[rng.Intn(len(pop))]

		if challenger.rank < best.rank ||
			(challenger.rank == best.rank && challenger.crowding > best.crowding) {
			best = challenger
		}
	}

	return best
}

// crossover builds a child by uniform membership mixing: trainsets in both
// parents are always kept, trainsets in one parent join with probability
// one half. Order follows the first parent, then the second.
func (p *problem) crossover(a, b *Individual, rng *rand.Rand) *Individual {
	inA := make(map[string]bool, len(a.Genome))
	for _, id := range a.Genome {
		inA[id] = true
	}

	inB := make(map[string]bool, len(b.Genome))
	for _, id := range b.Genome {
		inB[id] = true
	}

	var genome []string

	for _, id := range a.Genome {
		if inB[id] || rng.Float64() < 0.5 {
			genome = append(genome, id)
		}
	}

	for _, id := range b.Genome {
		if !inA[id] && rng.Float64() < 0.5 {
			genome = append(genome, id)
		}
	}

	child := &Individual{Genome: genome}
	p.evaluate(child)

	return child
}

// mutate perturbs the genome in place with the configured probability:
// either swap two ranks, drop a member, or add an unused eligible trainset.
func (p *problem) mutate(ind *Individual, rng *rand.Rand) {
	if rng.Float64() >= p.params.MutationRate {
		return
	}

	switch op := rng.Intn(3); {
	case op == 0 && len(ind.Genome) >= 2:
		i, j := rng.Intn(len(ind.Genome)), rng.Intn(len(ind.Genome))
		ind.Genome[i], ind.Genome[j] = ind.Genome[j], ind.Genome[i]

	case op == 1 && len(ind.Genome) > 1:
		i := rng.Intn(len(ind.Genome))
		ind.Genome = append(ind.Genome[:i], ind.Genome[i+1:]...)

	default:
		member := make(map[string]bool, len(ind.Genome))
		for _, id := range ind.Genome {
			member[id] = true
		}

		var unused []string

		for _, profile := range p.profiles {
			if !member[profile.id] {
				unused = append(unused, profile.id)
			}
		}

		if len(unused) > 0 {
			pick := unused[rng.Intn(len(unused))]
			at := rng.Intn(len(ind.Genome) + 1)
			ind.Genome = append(ind.Genome[:at], append([]string{pick}, ind.Genome[at:]...)...)
		}
	}

	p.evaluate(ind)
}

// nextGeneration produces the successor population: elites carry over
// unchanged, the rest come from tournament selection, crossover with the
// configured rate, and mutation, then NSGA-II environmental selection trims
// back to size. The context is checked between evaluations so cancellation
// lands within a bounded interval even at the largest population sizes; on
// cancellation the parent population is returned untouched.
func (p *problem) nextGeneration(ctx context.Context, pop population, rng *rand.Rand) (population, error) {
	fronts := fastNonDominatedSort(pop)
	for _, front := range fronts {
		crowdingDistance(front)
	}

	eliteCount := int(float64(p.params.PopulationSize) * p.params.ElitismRate)

	offspring := make(population, 0, p.params.PopulationSize)

	for _, front := range fronts {
		for _, ind := range front {
			if len(offspring) >= eliteCount {
				break
			}

			offspring = append(offspring, ind.clone())
		}
	}

	for len(offspring) < p.params.PopulationSize {
		if err := ctx.Err(); err != nil {
			return pop, err
		}

		parent := tournament(pop, rng)

		var child *Individual

		if rng.Float64() < p.params.CrossoverRate {
			child = p.crossover(parent, tournament(pop, rng), rng)
		} else {
			child = parent.clone()
		}

		p.mutate(child, rng)
		offspring = append(offspring, child)
	}

	if err := ctx.Err(); err != nil {
		return pop, err
	}

	// Environmental selection over parents plus offspring.
	combined := append(append(population{}, pop...), offspring...)
	fronts = fastNonDominatedSort(combined)

	next := make(population, 0, p.params.PopulationSize)

	for _, front := range fronts {
		crowdingDistance(front)

		if len(next)+len(front) <= p.params.PopulationSize {
			next = append(next, front...)

			continue
		}

		sort.Slice(front, func(i, j int) bool {
			return front[i].crowding > front[j].crowding
		})

		next = append(next, front[:p.params.PopulationSize-len(next)]...)

		break
	}

	return next, nil
}

// paretoFront returns the current first front sorted by fitness descending,
// then genome size, for a stable report order.
func paretoFront(pop population) population {
	fronts := fastNonDominatedSort(pop)
	if len(fronts) == 0 {
		return nil
	}

	front := fronts[0]

	sort.SliceStable(front, func(i, j int) bool {
		if front[i].Fitness != front[j].Fitness {
			return front[i].Fitness > front[j].Fitness
		}

		return len(front[i].Genome) < len(front[j].Genome)
	})

	return front
}
