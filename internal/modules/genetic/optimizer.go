package genetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// logEvery controls how often generation progress is logged
const logEvery = 10

// GenerationStats summarizes one evaluated generation.
// Mean and Std cover only finite fitness values.
type GenerationStats struct {
	Generation        int     `msgpack:"generation" json:"generation"`
	BestFitness       float64 `msgpack:"best_fitness" json:"best_fitness"` // best ever up to this generation
	GenerationBest    float64 `msgpack:"generation_best" json:"generation_best"`
	MeanFitness       float64 `msgpack:"mean_fitness" json:"mean_fitness"`
	StdFitness        float64 `msgpack:"std_fitness" json:"std_fitness"`
	BestC             float64 `msgpack:"best_c" json:"best_c"`
	BestGamma         float64 `msgpack:"best_gamma" json:"best_gamma"`
	FailedEvaluations int     `msgpack:"failed_evaluations" json:"failed_evaluations"`
}

// Result is the outcome of one Evolve call.
type Result struct {
	BestC          float64
	BestGamma      float64
	BestFitness    float64
	GenerationsRun int
	StoppedEarly   bool
	History        []GenerationStats
}

// Optimizer runs the generational loop. An Optimizer holds no per-run state
// and may be reused.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// NewOptimizer validates cfg and creates an optimizer.
func NewOptimizer(cfg Config, log zerolog.Logger) (*Optimizer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "genetic_optimizer").Logger(),
	}, nil
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Evolve searches for the (C, gamma) pair maximizing fitness. All randomness
// is drawn from rng on the calling goroutine, so a given seed reproduces the
// same run regardless of Workers. Cancellation is checked before each
// generation is evaluated.
func (o *Optimizer) Evolve(ctx context.Context, rng *rand.Rand, fitness FitnessFunc) (Result, error) {
	if rng == nil {
		return Result{}, errors.New("random source is required")
	}
	if fitness == nil {
		return Result{}, errors.New("fitness function is required")
	}

	pop := o.initPopulation(rng)
	best := Individual{Fitness: math.Inf(-1)}
	haveBest := false
	stale := 0

	res := Result{History: make([]GenerationStats, 0, o.cfg.Generations)}

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("search stopped before generation %d: %w", gen, err)
		}
		if err := o.evaluate(pop, fitness); err != nil {
			return Result{}, fmt.Errorf("failed to evaluate generation %d: %w", gen, err)
		}
		sort.SliceStable(pop, func(i, j int) bool {
			return pop[i].Fitness > pop[j].Fitness
		})

		if !haveBest || pop[0].Fitness > best.Fitness {
			best = pop[0]
			haveBest = true
			stale = 0
		} else {
			stale++
		}

		stats := summarize(gen, pop, best)
		res.History = append(res.History, stats)
		res.GenerationsRun = gen + 1

		if (gen+1)%logEvery == 0 {
			o.log.Info().
				Int("generation", gen+1).
				Float64("best_fitness", best.Fitness).
				Float64("mean_fitness", stats.MeanFitness).
				Float64("best_c", best.C).
				Float64("best_gamma", best.Gamma).
				Msg("GA progress")
		}

		if o.cfg.EarlyStoppingRounds > 0 && stale >= o.cfg.EarlyStoppingRounds {
			res.StoppedEarly = true
			o.log.Info().
				Int("generation", gen+1).
				Int("stale_rounds", stale).
				Msg("GA early stop, no improvement")
			break
		}
		if gen == o.cfg.Generations-1 {
			break
		}
		pop = o.breed(rng, pop)
	}

	res.BestC = best.C
	res.BestGamma = best.Gamma
	res.BestFitness = best.Fitness
	return res, nil
}

// evaluate scores every unevaluated individual. Results are written by index,
// so completion order does not matter.
func (o *Optimizer) evaluate(pop []Individual, fitness FitnessFunc) error {
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i := range pop {
		if pop[i].evaluated {
			continue
		}
		i := i
		g.Go(func() error {
			pop[i].Fitness = safeFitness(fitness, pop[i].C, pop[i].Gamma)
			pop[i].evaluated = true
			return nil
		})
	}
	return g.Wait()
}

// safeFitness maps errors, panics and non-finite scores to -Inf.
func safeFitness(fitness FitnessFunc, c, gamma float64) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			score = math.Inf(-1)
		}
	}()
	v, err := fitness(c, gamma)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.Inf(-1)
	}
	return v
}

func summarize(gen int, ranked []Individual, best Individual) GenerationStats {
	finite := make([]float64, 0, len(ranked))
	for _, ind := range ranked {
		if !math.IsInf(ind.Fitness, 0) {
			finite = append(finite, ind.Fitness)
		}
	}

	s := GenerationStats{
		Generation:        gen,
		BestFitness:       best.Fitness,
		GenerationBest:    ranked[0].Fitness,
		BestC:             best.C,
		BestGamma:         best.Gamma,
		FailedEvaluations: len(ranked) - len(finite),
		MeanFitness:       math.Inf(-1),
	}
	if len(finite) > 0 {
		s.MeanFitness, s.StdFitness = stat.PopMeanStdDev(finite, nil)
	}
	return s
}
