package genetic

import (
	"math"
	"math/rand"
)

// mutationScale is the Gaussian std as a fraction of the log10 range
const mutationScale = 0.1

// logUniform samples uniformly in log10 space so every decade is equally likely.
func logUniform(rng *rand.Rand, b Bounds) float64 {
	lo, hi := b.logMin(), b.logMax()
	return b.Clip(math.Pow(10, lo+rng.Float64()*(hi-lo)))
}

func (o *Optimizer) initPopulation(rng *rand.Rand) []Individual {
	pop := make([]Individual, o.cfg.PopulationSize)
	for i := range pop {
		pop[i] = newIndividual(logUniform(rng, o.cfg.CBounds), logUniform(rng, o.cfg.GammaBounds))
	}
	return pop
}

// tournament samples k distinct individuals and returns the fittest.
// Ties go to the first sampled.
func (o *Optimizer) tournament(rng *rand.Rand, pop []Individual) Individual {
	k := o.cfg.TournamentSize
	if k > len(pop) {
		k = len(pop)
	}
	idx := rng.Perm(len(pop))[:k]

	winner := pop[idx[0]]
	for _, i := range idx[1:] {
		if pop[i].Fitness > winner.Fitness {
			winner = pop[i]
		}
	}
	return winner
}

// crossover applies BLX-alpha with probability CrossoverRate, otherwise
// returns clones of the parents. Children are always unevaluated.
func (o *Optimizer) crossover(rng *rand.Rand, a, b Individual) (Individual, Individual) {
	if rng.Float64() >= o.cfg.CrossoverRate {
		return newIndividual(a.C, a.Gamma), newIndividual(b.C, b.Gamma)
	}

	alpha := o.cfg.BlendAlpha
	c1 := blend(rng, a.C, b.C, alpha, o.cfg.CBounds)
	g1 := blend(rng, a.Gamma, b.Gamma, alpha, o.cfg.GammaBounds)
	c2 := blend(rng, a.C, b.C, alpha, o.cfg.CBounds)
	g2 := blend(rng, a.Gamma, b.Gamma, alpha, o.cfg.GammaBounds)
	return newIndividual(c1, g1), newIndividual(c2, g2)
}

func blend(rng *rand.Rand, x, y, alpha float64, b Bounds) float64 {
	lo, hi := math.Min(x, y), math.Max(x, y)
	d := hi - lo
	return b.Clip(lo - alpha*d + rng.Float64()*(d+2*alpha*d))
}

// mutate perturbs each gene in log10 space with probability MutationRate.
func (o *Optimizer) mutate(rng *rand.Rand, ind Individual) Individual {
	if rng.Float64() < o.cfg.MutationRate {
		ind.C = logGaussian(rng, ind.C, o.cfg.CBounds)
	}
	if rng.Float64() < o.cfg.MutationRate {
		ind.Gamma = logGaussian(rng, ind.Gamma, o.cfg.GammaBounds)
	}
	return ind
}

func logGaussian(rng *rand.Rand, v float64, b Bounds) float64 {
	lo, hi := b.logMin(), b.logMax()
	lv := math.Log10(v) + rng.NormFloat64()*mutationScale*(hi-lo)
	lv = math.Max(lo, math.Min(hi, lv))
	return b.Clip(math.Pow(10, lv))
}

// breed builds the next generation from a population sorted best first.
func (o *Optimizer) breed(rng *rand.Rand, ranked []Individual) []Individual {
	size := o.cfg.PopulationSize
	next := make([]Individual, 0, size)
	next = append(next, ranked[:o.cfg.ElitismCount]...)

	for len(next) < size {
		p1 := o.tournament(rng, ranked)
		p2 := o.tournament(rng, ranked)
		c1, c2 := o.crossover(rng, p1, p2)
		next = append(next, o.mutate(rng, c1))
		if len(next) < size {
			next = append(next, o.mutate(rng, c2))
		}
	}
	return next
}
